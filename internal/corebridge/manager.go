package corebridge

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/Project-Sylos/Sylos-Cutover/internal/corebridge/database"
	"github.com/Project-Sylos/Sylos-Cutover/internal/corebridge/history"
	"github.com/Project-Sylos/Sylos-Cutover/internal/corebridge/runs"
	"github.com/Project-Sylos/Sylos-Cutover/internal/cutover"
	"github.com/Project-Sylos/Sylos-Cutover/internal/envfile"
	"github.com/Project-Sylos/Sylos-Cutover/internal/pointer"
	"github.com/Project-Sylos/Sylos-Cutover/internal/shell"
	"github.com/Project-Sylos/Sylos-Cutover/pkg/config"
)

// OpenFunc opens the primary connection for one run.
type OpenFunc func(ctx context.Context, profile config.ConnectionConfig, username, password string) (*sql.DB, error)

// Options overrides collaborators. Zero values select the real ones.
type Options struct {
	Runner shell.Runner
	Open   OpenFunc
}

type Manager struct {
	logger   zerolog.Logger
	cfg      config.Config
	env      *envfile.Store
	switcher *pointer.Switch
	runner   shell.Runner
	open     OpenFunc
	history  *history.Manager
	runs     *runs.Manager
}

// NewManager wires the cutover service. Runs started through the API are bound
// to ctx.
func NewManager(ctx context.Context, logger zerolog.Logger, cfg config.Config, opts Options) (*Manager, error) {
	env, err := envfile.Open(cfg.Cutover.EnvFile)
	if err != nil {
		return nil, err
	}

	runner := opts.Runner
	if runner == nil {
		runner = shell.NewExecRunner(logger)
	}
	open := opts.Open
	if open == nil {
		open = func(ctx context.Context, profile config.ConnectionConfig, username, password string) (*sql.DB, error) {
			return database.Open(ctx, logger, profile, username, password, database.DefaultPoolOptions())
		}
	}

	m := &Manager{
		logger:  logger,
		cfg:     cfg,
		env:     env,
		runner:  runner,
		open:    open,
		history: history.NewManager(cfg.Runtime.DataDir),
	}
	m.switcher = pointer.New(env, m.pointerKeys(), CommandInvalidator(runner, cfg.Cutover.ReloadCommand), logger)
	m.runs = runs.NewManager(ctx, logger, executor{m: m}, m.history)
	return m, nil
}

func (m *Manager) pointerKeys() pointer.Keys {
	return pointer.Keys{Active: m.cfg.Cutover.ActiveKey, Staging: m.cfg.Cutover.StagingKey}
}

// Resolve re-reads the env file and resolves the configuration for a run.
func (m *Manager) Resolve() (cutover.Config, error) {
	if err := m.env.Reload(); err != nil {
		return cutover.Config{}, err
	}
	return cutover.Resolve(m.env, m.cfg, cutover.OptionsFrom(m.cfg.Cutover))
}

// prepare resolves a forward run and refuses it while a failed cutover still
// has the application on its target database. Resolving in that state would
// swap source and target.
func (m *Manager) prepare() (cutover.Config, error) {
	cfg, err := m.Resolve()
	if err != nil {
		return cutover.Config{}, err
	}
	last, ok, err := m.history.LatestUp()
	if err != nil {
		return cutover.Config{}, err
	}
	if ok && m.stranded(last) {
		return cutover.Config{}, fmt.Errorf("%w: run %s failed in %s with %s active; run down to point back at %s",
			ErrPointerStranded, last.ID, last.FailedIn, last.TargetDB, last.SourceDB)
	}
	return cfg, nil
}

// stranded reports whether run is a forward run that did not complete but left
// the active pointer on its target. A run still in flight is not stranded.
func (m *Manager) stranded(run history.Run) bool {
	if run.Direction != cutover.DirectionUp || run.Succeeded() || run.TargetDB == "" {
		return false
	}
	if active, ok := m.runs.Active(); ok && active == run.ID {
		return false
	}
	if err := m.env.Reload(); err != nil {
		m.logger.Warn().Err(err).Msg("failed to reload env file")
		return run.PointerMoved
	}
	state, _ := m.switcher.Current()
	return state.Active == run.TargetDB
}

func (m *Manager) StartCutover(ctx context.Context) (history.Run, error) {
	cfg, err := m.prepare()
	if err != nil {
		return history.Run{}, err
	}
	return m.runs.Start(runs.Request{Direction: cutover.DirectionUp, Config: cfg})
}

// RunCutover performs a forward cutover in the caller's goroutine.
func (m *Manager) RunCutover(ctx context.Context) (history.Run, error) {
	cfg, err := m.prepare()
	if err != nil {
		return history.Run{}, err
	}
	return m.runs.Run(ctx, runs.Request{Direction: cutover.DirectionUp, Config: cfg})
}

func (m *Manager) StartReverse(ctx context.Context, req ReverseRequest) (history.Run, error) {
	target, err := m.reverseTarget(req.RunID)
	if err != nil {
		return history.Run{}, err
	}
	return m.runs.Start(runs.Request{Direction: cutover.DirectionDown, OldDB: target.SourceDB, NewDB: target.TargetDB})
}

// RunReverse points the application back at the source of a forward run.
func (m *Manager) RunReverse(ctx context.Context, req ReverseRequest) (history.Run, error) {
	target, err := m.reverseTarget(req.RunID)
	if err != nil {
		return history.Run{}, err
	}
	return m.runs.Run(ctx, runs.Request{Direction: cutover.DirectionDown, OldDB: target.SourceDB, NewDB: target.TargetDB})
}

func (m *Manager) reverseTarget(runID string) (history.Run, error) {
	if runID == "" {
		latest, ok, err := m.history.LatestUp()
		if err != nil {
			return history.Run{}, err
		}
		if ok && m.stranded(latest) {
			return latest, nil
		}

		run, ok, err := m.history.LatestReversible()
		if err != nil {
			return history.Run{}, err
		}
		if !ok {
			return history.Run{}, ErrNothingToReverse
		}
		return run, nil
	}

	run, err := m.history.Get(runID)
	if err != nil {
		return history.Run{}, err
	}
	if !run.Reversible() && !m.stranded(run) {
		return history.Run{}, fmt.Errorf("%w: run %s is a %s run with status %s that never moved the pointer", ErrNothingToReverse, run.ID, run.Direction, run.Status)
	}
	return run, nil
}

func (m *Manager) GetRun(ctx context.Context, id string) (history.Run, error) {
	return m.runs.Get(id)
}

func (m *Manager) ListRuns(ctx context.Context) ([]history.Run, error) {
	return m.runs.List()
}

func (m *Manager) SubscribeProgress(ctx context.Context, id string) (<-chan runs.ProgressEvent, func(), error) {
	return m.runs.SubscribeProgress(ctx, id)
}

func (m *Manager) Pointer(ctx context.Context) (PointerView, error) {
	if err := m.env.Reload(); err != nil {
		return PointerView{}, err
	}
	keys := m.pointerKeys()
	view := PointerView{ActiveKey: keys.Active, StagingKey: keys.Staging, EnvFile: m.env.Path()}

	state, err := m.switcher.Current()
	view.Active = state.Active
	view.Staging = state.Staging
	return view, err
}

func (m *Manager) Status(ctx context.Context) (StatusView, error) {
	view := StatusView{Tables: m.cfg.Cutover.Tables}

	ptr, err := m.Pointer(ctx)
	view.Pointer = ptr
	if err != nil {
		return view, err
	}

	if id, ok := m.runs.Active(); ok {
		if run, err := m.runs.Get(id); err == nil {
			view.ActiveRun = &run
		}
	}

	all, err := m.runs.List()
	if err != nil {
		return view, err
	}
	if len(all) > 0 {
		last := all[0]
		view.LastRun = &last
	}
	return view, nil
}

func (m *Manager) Plan(ctx context.Context) (cutover.Plan, error) {
	cfg, err := m.prepare()
	if err != nil {
		return cutover.Plan{}, err
	}
	return cutover.NewPlan(cfg, m.cfg.Cutover.DumpDir, m.cfg.Cutover.BookkeepingTable), nil
}

// Wait blocks until background runs finish.
func (m *Manager) Wait() {
	m.runs.Wait()
}

func (m *Manager) guardPath() string {
	return filepath.Join(m.cfg.Runtime.DataDir, "cutover.lock")
}

// executor builds a cutover per run so the primary connection only lives as
// long as the run does.
type executor struct {
	m *Manager
}

func (e executor) Up(ctx context.Context, cfg cutover.Config, observe ...func(cutover.Event)) (cutover.Report, error) {
	m := e.m
	profile, ok := m.cfg.Connection(m.cfg.Cutover.Connection)
	if !ok {
		return cutover.Report{}, &cutover.ConfigurationError{Missing: fmt.Sprintf("[connections.%s]", m.cfg.Cutover.Connection)}
	}

	db, err := m.open(ctx, profile, cfg.Username, cfg.Password)
	if err != nil {
		return cutover.Report{}, err
	}
	defer db.Close()

	report, err := e.service(db).Up(ctx, cfg, observe...)
	if !report.Success && !report.PointerMoved && report.TargetDB != "" {
		// A switch that failed after writing the file still moved the pointer.
		if reloadErr := m.env.Reload(); reloadErr == nil {
			if state, _ := m.switcher.Current(); state.Active == cfg.TargetDB {
				report.PointerMoved = true
			}
		}
	}
	return report, err
}

func (e executor) Down(ctx context.Context, oldDB, newDB string) (cutover.Report, error) {
	return e.service(nil).Down(ctx, oldDB, newDB)
}

func (e executor) service(db *sql.DB) *cutover.Cutover {
	m := e.m
	deps := cutover.Deps{
		Replicator: cutover.NewReplicator(m.runner, m.cfg.Cutover.DumpDir, m.logger),
		Switcher:   m.switcher,
		GuardPath:  m.guardPath(),
		Migration:  m.cfg.Cutover.Migration,
		Logger:     m.logger,
	}
	if db != nil {
		deps.Coordinator = cutover.NewCoordinator(db, m.switcher, m.logger,
			cutover.WithUnlockTimeout(m.cfg.Cutover.UnlockTimeout))
		deps.Bookkeeper = cutover.NewBookkeeper(db, m.cfg.Cutover.BookkeepingTable)
	}
	return cutover.New(deps)
}
