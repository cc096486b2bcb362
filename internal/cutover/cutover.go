// Package cutover moves a live MySQL database into a sibling database: it
// replicates the structure, locks both copies of every managed table, flips the
// active pointer, copies the rows and records the cutover in the new database.
package cutover

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
)

type StructureReplicator interface {
	Replicate(ctx context.Context, cfg Config) error
}

type LockedRunner interface {
	Run(ctx context.Context, cfg Config, observe ...func(Event)) Result
}

type Recorder interface {
	Record(ctx context.Context, newDB, migration string) (int64, error)
}

// Report is what an up or down run hands back to the operator.
type Report struct {
	Direction      Direction
	SourceDB       string
	TargetDB       string
	State          State
	FailedIn       State
	Success        bool
	Released       bool
	PointerMoved   bool
	Tables         []TableCopy
	Batch          int64
	Err            error
	BookkeepingErr error
	StartedAt      time.Time
	FinishedAt     time.Time
}

// Failed reports whether anything in the run went wrong, bookkeeping included.
func (r Report) Failed() bool {
	return !r.Success || r.BookkeepingErr != nil
}

// Cause returns the first failure of the run, or nil.
func (r Report) Cause() error {
	if r.Err != nil {
		return r.Err
	}
	return r.BookkeepingErr
}

type Deps struct {
	Replicator  StructureReplicator
	Coordinator LockedRunner
	Bookkeeper  Recorder
	Switcher    Switcher
	// GuardPath is the host-local lock file. Empty disables the guard.
	GuardPath string
	Migration string
	Logger    zerolog.Logger
}

type Cutover struct {
	deps Deps
}

func New(deps Deps) *Cutover {
	return &Cutover{deps: deps}
}

// Up runs the full forward cutover for cfg. Guard, replication and pre-flight
// failures come back as the error with no locks taken. Anything that happens
// once the locked phase starts is reported in the Report.
func (c *Cutover) Up(ctx context.Context, cfg Config, observe ...func(Event)) (Report, error) {
	logger := c.deps.Logger.With().
		Str("direction", string(DirectionUp)).
		Str("source_db", cfg.SourceDB).
		Str("target_db", cfg.TargetDB).
		Logger()

	guard, err := c.acquire()
	if err != nil {
		return Report{}, err
	}
	defer c.release(logger, guard)

	report := Report{
		Direction: DirectionUp,
		SourceDB:  cfg.SourceDB,
		TargetDB:  cfg.TargetDB,
		State:     StateStart,
		StartedAt: time.Now().UTC(),
	}

	if err := c.deps.Replicator.Replicate(ctx, cfg); err != nil {
		logger.Error().Err(err).Msg("Error occurred")
		report.State = StateFailed
		report.FailedIn = StateStart
		report.Err = err
		report.FinishedAt = time.Now().UTC()
		return report, err
	}

	res := c.deps.Coordinator.Run(ctx, cfg, observe...)
	report.State = res.State
	report.FailedIn = res.FailedIn
	report.Success = res.Success
	report.Released = res.Released
	report.PointerMoved = res.PointerMoved
	report.Tables = res.Tables
	report.Err = res.Err
	report.FinishedAt = res.FinishedAt

	if !res.Success {
		event := logger.Warn().Str("failed_in", string(res.FailedIn))
		if res.PointerMoved {
			event.Msg("cutover failed after the pointer moved; reverse it before retrying")
			return report, nil
		}
		event.Msg("cutover did not succeed; bookkeeping skipped")
		return report, nil
	}

	batch, err := c.deps.Bookkeeper.Record(context.WithoutCancel(ctx), cfg.TargetDB, c.deps.Migration)
	if err != nil {
		report.BookkeepingErr = fmt.Errorf("cutover succeeded but bookkeeping failed: %w", err)
		logger.Error().Err(err).Msg("Error occurred")
	} else {
		report.Batch = batch
		logger.Info().Int64("batch", batch).Msg("cutover recorded")
	}
	report.FinishedAt = time.Now().UTC()
	return report, nil
}

// Down points the active slot back at oldDB and the staging slot at newDB. Row
// data is left alone, and running it twice is harmless.
func (c *Cutover) Down(ctx context.Context, oldDB, newDB string) (Report, error) {
	logger := c.deps.Logger.With().
		Str("direction", string(DirectionDown)).
		Str("active_db", oldDB).
		Str("staging_db", newDB).
		Logger()

	guard, err := c.acquire()
	if err != nil {
		return Report{}, err
	}
	defer c.release(logger, guard)

	report := Report{
		Direction: DirectionDown,
		SourceDB:  newDB,
		TargetDB:  oldDB,
		State:     StateStart,
		StartedAt: time.Now().UTC(),
	}

	// The pointer roles after Up are active=newDB, staging=oldDB.
	if err := c.deps.Switcher.Switch(ctx, newDB, oldDB); err != nil {
		logger.Error().Err(err).Msg("Error occurred")
		report.State = StateFailed
		report.FailedIn = StateStart
		report.Err = err
		report.FinishedAt = time.Now().UTC()
		return report, nil
	}

	logger.Info().Msg("pointer reversed")
	report.State = StateSwitched
	report.Success = true
	report.Released = true
	report.PointerMoved = true
	report.FinishedAt = time.Now().UTC()
	return report, nil
}

func (c *Cutover) acquire() (*Guard, error) {
	if c.deps.GuardPath == "" {
		return nil, nil
	}
	return AcquireGuard(c.deps.GuardPath)
}

func (c *Cutover) release(logger zerolog.Logger, guard *Guard) {
	if err := guard.Release(); err != nil {
		logger.Warn().Err(err).Msg("failed to release cutover lock")
	}
}
