package runs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/xid"
	"github.com/rs/zerolog"

	"github.com/Project-Sylos/Sylos-Cutover/internal/corebridge/history"
	"github.com/Project-Sylos/Sylos-Cutover/internal/cutover"
)

// Executor performs the cutover itself.
type Executor interface {
	Up(ctx context.Context, cfg cutover.Config, observe ...func(cutover.Event)) (cutover.Report, error)
	Down(ctx context.Context, oldDB, newDB string) (cutover.Report, error)
}

// Request describes one run. Up uses Config; Down uses OldDB and NewDB, the
// names as they were passed to the forward run.
type Request struct {
	Direction cutover.Direction
	Config    cutover.Config
	OldDB     string
	NewDB     string
}

// ProgressEvent is pushed to subscribers of a run.
type ProgressEvent struct {
	Event     string        `json:"event"`
	Timestamp time.Time     `json:"timestamp"`
	State     cutover.State `json:"state,omitempty"`
	Table     string        `json:"table,omitempty"`
	Rows      int64         `json:"rows,omitempty"`
	Run       history.Run   `json:"run"`
}

// Manager tracks runs started by this process, persists them to the history
// file and fans progress out to subscribers. Only one run is active at a time.
type Manager struct {
	logger      zerolog.Logger
	baseCtx     context.Context
	exec        Executor
	history     *history.Manager
	runs        map[string]*history.Run
	subscribers map[string]map[string]chan ProgressEvent
	active      string
	mu          sync.RWMutex
	wg          sync.WaitGroup
}

// NewManager creates a run manager. Runs started with Start are bound to
// baseCtx, so cancelling it interrupts them through the failure path.
func NewManager(baseCtx context.Context, logger zerolog.Logger, exec Executor, hist *history.Manager) *Manager {
	return &Manager{
		logger:      logger,
		baseCtx:     baseCtx,
		exec:        exec,
		history:     hist,
		runs:        make(map[string]*history.Run),
		subscribers: make(map[string]map[string]chan ProgressEvent),
	}
}

// Start registers a run and executes it in the background.
func (m *Manager) Start(req Request) (history.Run, error) {
	record, err := m.register(req)
	if err != nil {
		return history.Run{}, err
	}
	snapshot := *record

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.execute(m.baseCtx, record.ID, req)
	}()

	return snapshot, nil
}

// Run executes a run in the caller's goroutine and returns the finished record
// together with the error Up or Down returned.
func (m *Manager) Run(ctx context.Context, req Request) (history.Run, error) {
	record, err := m.register(req)
	if err != nil {
		return history.Run{}, err
	}
	runErr := m.execute(ctx, record.ID, req)

	m.mu.RLock()
	defer m.mu.RUnlock()
	return *m.runs[record.ID], runErr
}

// Wait blocks until every background run has finished.
func (m *Manager) Wait() {
	m.wg.Wait()
}

// Active returns the ID of the running cutover, if any.
func (m *Manager) Active() (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.active, m.active != ""
}

func (m *Manager) Get(id string) (history.Run, error) {
	m.mu.RLock()
	record, ok := m.runs[id]
	if ok {
		snapshot := *record
		m.mu.RUnlock()
		return snapshot, nil
	}
	m.mu.RUnlock()

	return m.history.Get(id)
}

func (m *Manager) List() ([]history.Run, error) {
	return m.history.List()
}

func (m *Manager) register(req Request) (*history.Run, error) {
	record := &history.Run{
		ID:        xid.New().String(),
		Direction: req.Direction,
		Status:    history.StatusRunning,
		State:     cutover.StateStart,
		StartedAt: time.Now().UTC(),
	}
	switch req.Direction {
	case cutover.DirectionUp:
		record.SourceDB = req.Config.SourceDB
		record.TargetDB = req.Config.TargetDB
	case cutover.DirectionDown:
		record.SourceDB = req.NewDB
		record.TargetDB = req.OldDB
	default:
		return nil, fmt.Errorf("unknown cutover direction %q", req.Direction)
	}

	m.mu.Lock()
	if m.active != "" {
		m.mu.Unlock()
		return nil, cutover.ErrCutoverInProgress
	}
	m.active = record.ID
	m.runs[record.ID] = record
	m.mu.Unlock()

	if err := m.history.Save(*record); err != nil {
		m.logger.Warn().Err(err).Str("run_id", record.ID).Msg("failed to persist run start")
	}
	return record, nil
}

func (m *Manager) execute(ctx context.Context, id string, req Request) error {
	logger := m.logger.With().
		Str("run_id", id).
		Str("direction", string(req.Direction)).
		Logger()
	logger.Info().Msg("starting cutover run")

	var (
		report cutover.Report
		err    error
	)
	switch req.Direction {
	case cutover.DirectionUp:
		report, err = m.exec.Up(ctx, req.Config, func(evt cutover.Event) {
			m.observe(id, evt)
		})
	case cutover.DirectionDown:
		report, err = m.exec.Down(ctx, req.OldDB, req.NewDB)
	}

	m.mu.Lock()
	record := m.runs[id]
	finished := history.FromReport(id, report)
	finished.Direction = record.Direction
	finished.SourceDB = record.SourceDB
	finished.TargetDB = record.TargetDB
	finished.StartedAt = record.StartedAt
	if err != nil {
		finished.Status = history.StatusFailed
		if finished.Error == "" {
			finished.Error = err.Error()
		}
		if finished.State == "" {
			finished.State = cutover.StateFailed
		}
	}
	if finished.CompletedAt == nil {
		now := time.Now().UTC()
		finished.CompletedAt = &now
	}
	*record = finished
	m.active = ""
	m.mu.Unlock()

	if saveErr := m.history.Save(finished); saveErr != nil {
		logger.Error().Err(saveErr).Msg("failed to persist run result")
	}

	event := history.StatusCompleted
	switch {
	case finished.Status == history.StatusFailed:
		event = history.StatusFailed
		logger.Error().Str("error", finished.Error).Msg("cutover run failed")
	case finished.BookkeepingError != "":
		logger.Warn().Str("error", finished.BookkeepingError).Msg("cutover run completed without bookkeeping")
	default:
		logger.Info().Msg("cutover run completed")
	}

	m.publishProgress(id, ProgressEvent{Event: event, State: finished.State})
	m.closeSubscribers(id)

	if err == nil && report.Failed() {
		err = report.Cause()
	}
	if err != nil && errors.Is(err, context.Canceled) {
		logger.Warn().Msg("cutover run interrupted")
	}
	return err
}

func (m *Manager) observe(id string, evt cutover.Event) {
	m.mu.Lock()
	record, ok := m.runs[id]
	if ok {
		if evt.Table != "" {
			record.Tables = append(record.Tables, cutover.TableCopy{Table: evt.Table, Rows: evt.Rows})
		} else {
			record.State = evt.State
		}
	}
	m.mu.Unlock()
	if !ok {
		return
	}

	name := "state"
	if evt.Table != "" {
		name = "table"
	}
	m.publishProgress(id, ProgressEvent{
		Event:     name,
		Timestamp: evt.At,
		State:     evt.State,
		Table:     evt.Table,
		Rows:      evt.Rows,
	})
}
