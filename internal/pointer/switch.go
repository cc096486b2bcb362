package pointer

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

var (
	ErrSameDatabase     = errors.New("active and staging database names must differ")
	ErrPointerUnset     = errors.New("pointer key is not set")
	ErrPointerCollision = errors.New("active and staging pointers hold the same database")
)

// Store is the persisted configuration the running application reads its
// database name from.
type Store interface {
	Get(key string) (string, bool)
	SetAll(values map[string]string) error
	Reload() error
}

// Keys names the two pointer slots.
type Keys struct {
	Active  string
	Staging string
}

// State is a snapshot of both slots.
type State struct {
	Active  string `json:"active"`
	Staging string `json:"staging"`
}

// Invalidator drops whatever configuration cache the application keeps so that
// the next unit of work re-reads the store.
type Invalidator func(ctx context.Context) error

type Switch struct {
	store      Store
	keys       Keys
	invalidate Invalidator
	logger     zerolog.Logger
}

func New(store Store, keys Keys, invalidate Invalidator, logger zerolog.Logger) *Switch {
	return &Switch{
		store:      store,
		keys:       keys,
		invalidate: invalidate,
		logger:     logger,
	}
}

// Switch makes newName active and oldName staging, then reloads the store and
// invalidates the application cache. Slots already holding their target value
// are not written.
func (s *Switch) Switch(ctx context.Context, oldName, newName string) error {
	if oldName == newName {
		return fmt.Errorf("%w: %q", ErrSameDatabase, newName)
	}

	targets := map[string]string{
		s.keys.Active:  newName,
		s.keys.Staging: oldName,
	}
	changes := make(map[string]string, len(targets))
	for key, value := range targets {
		current, _ := s.store.Get(key)
		if current != value {
			changes[key] = value
		}
	}

	if len(changes) == 0 {
		s.logger.Debug().
			Str("active", newName).
			Str("staging", oldName).
			Msg("pointer already in place")
		return nil
	}

	// Both slots land in one write so the file never holds the same name twice.
	if err := s.store.SetAll(changes); err != nil {
		return fmt.Errorf("failed to update pointer: %w", err)
	}
	for key, value := range changes {
		s.logger.Info().
			Str("key", key).
			Str("to", value).
			Msg("pointer updated")
	}

	if err := s.store.Reload(); err != nil {
		return fmt.Errorf("failed to reload pointer store: %w", err)
	}
	if s.invalidate != nil {
		if err := s.invalidate(ctx); err != nil {
			return fmt.Errorf("failed to invalidate configuration cache: %w", err)
		}
	}
	return nil
}

// Current reads both slots and checks they name two different databases.
func (s *Switch) Current() (State, error) {
	active, ok := s.store.Get(s.keys.Active)
	if !ok || active == "" {
		return State{}, fmt.Errorf("%w: %s", ErrPointerUnset, s.keys.Active)
	}
	staging, ok := s.store.Get(s.keys.Staging)
	if !ok || staging == "" {
		return State{}, fmt.Errorf("%w: %s", ErrPointerUnset, s.keys.Staging)
	}
	state := State{Active: active, Staging: staging}
	if active == staging {
		return state, fmt.Errorf("%w: %q", ErrPointerCollision, active)
	}
	return state, nil
}
