package runs

import (
	"context"
	"time"

	"github.com/rs/xid"
)

// SubscribeProgress streams events for a run. The first event is always a
// snapshot. For a run that already finished the channel is closed right after
// the snapshot.
func (m *Manager) SubscribeProgress(ctx context.Context, id string) (<-chan ProgressEvent, func(), error) {
	m.mu.Lock()
	record, ok := m.runs[id]
	if !ok || id != m.active {
		m.mu.Unlock()
		run, err := m.Get(id)
		if err != nil {
			return nil, nil, err
		}
		ch := make(chan ProgressEvent, 1)
		ch <- ProgressEvent{Event: "snapshot", Timestamp: time.Now().UTC(), State: run.State, Run: run}
		close(ch)
		return ch, func() {}, nil
	}

	ch := make(chan ProgressEvent, 16)
	subID := xid.New().String()
	if _, exists := m.subscribers[id]; !exists {
		m.subscribers[id] = make(map[string]chan ProgressEvent)
	}
	m.subscribers[id][subID] = ch
	ch <- ProgressEvent{
		Event:     "snapshot",
		Timestamp: time.Now().UTC(),
		State:     record.State,
		Run:       *record,
	}
	m.mu.Unlock()

	cancel := func() {
		m.removeSubscriber(id, subID)
	}

	if ctx != nil {
		go func() {
			<-ctx.Done()
			cancel()
		}()
	}

	return ch, cancel, nil
}

// publishProgress sends without blocking; slow subscribers miss events. Sends
// happen under the read lock so a subscriber cannot be closed mid-send.
func (m *Manager) publishProgress(id string, update ProgressEvent) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	record, ok := m.runs[id]
	if !ok {
		return
	}
	update.Run = *record
	if update.Timestamp.IsZero() {
		update.Timestamp = time.Now().UTC()
	}

	for _, ch := range m.subscribers[id] {
		select {
		case ch <- update:
		default:
		}
	}
}

func (m *Manager) removeSubscriber(runID, subscriberID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	subs, ok := m.subscribers[runID]
	if !ok {
		return
	}
	if ch, ok := subs[subscriberID]; ok {
		delete(subs, subscriberID)
		close(ch)
	}
	if len(subs) == 0 {
		delete(m.subscribers, runID)
	}
}

func (m *Manager) closeSubscribers(runID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, ch := range m.subscribers[runID] {
		close(ch)
	}
	delete(m.subscribers, runID)
}
