package cutover

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

type State string

const (
	StateStart    State = "START"
	StateLocked   State = "LOCKED"
	StateSwitched State = "SWITCHED"
	StateCopied   State = "COPIED"
	StateReleased State = "RELEASED"
	StateFailed   State = "FAILED"
)

// Switcher flips the active/staging pointer. It is called while the tables of
// both databases are write-locked.
type Switcher interface {
	Switch(ctx context.Context, oldName, newName string) error
}

// TableCopy is the outcome of copying one table.
type TableCopy struct {
	Table string `json:"table" yaml:"table"`
	Rows  int64  `json:"rows" yaml:"rows"`
}

// Event is published on every state transition and after each copied table.
type Event struct {
	State State
	Table string
	Rows  int64
	At    time.Time
}

// Result describes how far a coordinator run got. Released reports that the
// locks were dropped and the unit of work committed cleanly. PointerMoved is set
// once the application points at the target, whatever happens afterwards.
type Result struct {
	State        State
	FailedIn     State
	Success      bool
	Released     bool
	PointerMoved bool
	Err        error
	ReleaseErr error
	Tables     []TableCopy
	StartedAt  time.Time
	FinishedAt time.Time
}

type Coordinator struct {
	db            *sql.DB
	switcher      Switcher
	logger        zerolog.Logger
	unlockTimeout time.Duration
	observers     []func(Event)
}

type CoordinatorOption func(*Coordinator)

// WithObserver registers fn to receive the events of every run.
func WithObserver(fn func(Event)) CoordinatorOption {
	return func(c *Coordinator) {
		if fn != nil {
			c.observers = append(c.observers, fn)
		}
	}
}

// WithUnlockTimeout bounds how long the release phase may take.
func WithUnlockTimeout(d time.Duration) CoordinatorOption {
	return func(c *Coordinator) {
		if d > 0 {
			c.unlockTimeout = d
		}
	}
}

func NewCoordinator(db *sql.DB, switcher Switcher, logger zerolog.Logger, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		db:            db,
		switcher:      switcher,
		logger:        logger,
		unlockTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type run struct {
	res       Result
	logger    zerolog.Logger
	observers []func(Event)
}

// Run locks every managed table in both databases, switches the pointer, copies
// all rows and releases the locks. Failures inside the locked phase are reported
// in the Result; UNLOCK TABLES and COMMIT run on every path, including a
// cancelled ctx. observe, if given, receives this run's events.
func (c *Coordinator) Run(ctx context.Context, cfg Config, observe ...func(Event)) Result {
	r := &run{
		res: Result{State: StateStart, StartedAt: time.Now().UTC()},
		logger: c.logger.With().
			Str("source_db", cfg.SourceDB).
			Str("target_db", cfg.TargetDB).
			Logger(),
		observers: append(append([]func(Event){}, c.observers...), observe...),
	}
	c.execute(ctx, cfg, r)
	r.res.FinishedAt = time.Now().UTC()
	return r.res
}

func (c *Coordinator) execute(ctx context.Context, cfg Config, r *run) {
	// Locks belong to the session, so every statement goes through one
	// pinned connection.
	conn, err := c.db.Conn(ctx)
	if err != nil {
		r.fail(fmt.Errorf("failed to open session: %w", err))
		return
	}
	defer conn.Close()

	// The unit of work must outlive a cancelled ctx long enough to unlock.
	workCtx := context.WithoutCancel(ctx)
	tx, err := conn.BeginTx(workCtx, nil)
	if err != nil {
		r.fail(fmt.Errorf("failed to begin unit of work: %w", err))
		return
	}
	defer c.release(workCtx, r, conn, tx)

	steps := []struct {
		next State
		run  func() error
	}{
		{StateLocked, func() error {
			if _, err := tx.ExecContext(ctx, LockStatement(cfg.SourceDB, cfg.TargetDB, cfg.Tables)); err != nil {
				return fmt.Errorf("failed to lock tables: %w", err)
			}
			return nil
		}},
		{StateSwitched, func() error {
			if err := c.switcher.Switch(ctx, cfg.SourceDB, cfg.TargetDB); err != nil {
				return err
			}
			r.res.PointerMoved = true
			return nil
		}},
		{StateCopied, func() error {
			return c.copyTables(ctx, r, tx, cfg)
		}},
	}

	for _, step := range steps {
		if err := step.run(); err != nil {
			r.fail(err)
			return
		}
		r.transition(step.next)
	}
	r.res.Success = true
}

func (c *Coordinator) copyTables(ctx context.Context, r *run, tx *sql.Tx, cfg Config) error {
	for _, table := range cfg.Tables {
		result, err := tx.ExecContext(ctx, CopyStatement(cfg.SourceDB, cfg.TargetDB, table))
		if err != nil {
			return fmt.Errorf("failed to copy table %s: %w", table, err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			rows = -1
		}
		r.res.Tables = append(r.res.Tables, TableCopy{Table: table, Rows: rows})

		r.logger.Info().Str("table", table).Int64("rows", rows).Msg("table copied")
		r.emit(Event{State: r.res.State, Table: table, Rows: rows})
	}
	return nil
}

// release unlocks and commits. If either fails the session is discarded rather
// than returned to the pool, which makes the server drop whatever it still holds.
func (c *Coordinator) release(ctx context.Context, r *run, conn *sql.Conn, tx *sql.Tx) {
	ctx, cancel := context.WithTimeout(ctx, c.unlockTimeout)
	defer cancel()

	var errs []error
	if _, err := tx.ExecContext(ctx, UnlockStatement); err != nil {
		errs = append(errs, fmt.Errorf("failed to unlock tables: %w", err))
	}
	if err := tx.Commit(); err != nil {
		errs = append(errs, fmt.Errorf("failed to commit unit of work: %w", err))
	}

	if len(errs) > 0 {
		r.res.ReleaseErr = errors.Join(errs...)
		_ = conn.Raw(func(any) error { return driver.ErrBadConn })
		r.logger.Error().Err(r.res.ReleaseErr).Msg("release failed, session discarded")
		if r.res.Err == nil {
			r.res.Success = false
			r.fail(r.res.ReleaseErr)
		}
		return
	}

	r.res.Released = true
	if r.res.Err == nil {
		r.transition(StateReleased)
		return
	}
	r.logger.Info().Str("failed_in", string(r.res.FailedIn)).Msg("locks released after failure")
}

func (r *run) fail(err error) {
	r.res.FailedIn = r.res.State
	r.res.Err = &CutoverError{State: r.res.State, Err: err}
	r.res.State = StateFailed

	r.logger.Error().Err(err).Str("failed_in", string(r.res.FailedIn)).Msg("Error occurred")
	r.emit(Event{State: StateFailed})
}

func (r *run) transition(next State) {
	r.logger.Info().Str("from", string(r.res.State)).Str("to", string(next)).Msg("cutover state")
	r.res.State = next
	r.emit(Event{State: next})
}

func (r *run) emit(evt Event) {
	if evt.At.IsZero() {
		evt.At = time.Now().UTC()
	}
	for _, fn := range r.observers {
		fn(evt)
	}
}
