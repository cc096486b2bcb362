package cutover

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Project-Sylos/Sylos-Cutover/internal/envfile"
	"github.com/Project-Sylos/Sylos-Cutover/internal/pointer"
)

const envContents = `APP_NAME=shop
DB_CONNECTION=mysql
DB_DATABASE=app_old
DB_DUMP_DATABASE=app_new
DB_USERNAME=app
DB_PASSWORD=secret
`

type harness struct {
	cutover  *Cutover
	mock     sqlmock.Sqlmock
	store    *envfile.Store
	switcher *pointer.Switch
	runner   *scriptedRunner
	dir      string
	reloads  int
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envPath, []byte(envContents), 0o644))

	store, err := envfile.Open(envPath)
	require.NoError(t, err)

	db, mock := newMock(t)
	h := &harness{mock: mock, store: store, runner: &scriptedRunner{}, dir: dir}
	h.switcher = pointer.New(store, pointer.Keys{Active: "DB_DATABASE", Staging: "DB_DUMP_DATABASE"},
		func(context.Context) error {
			h.reloads++
			return nil
		}, zerolog.Nop())

	h.cutover = New(Deps{
		Replicator:  NewReplicator(h.runner, dir, zerolog.Nop()),
		Coordinator: NewCoordinator(db, h.switcher, zerolog.Nop()),
		Bookkeeper:  NewBookkeeper(db, "migrations"),
		Switcher:    h.switcher,
		GuardPath:   filepath.Join(dir, "cutover.lock"),
		Migration:   migrationName,
		Logger:      zerolog.Nop(),
	})
	return h
}

func (h *harness) resolve(t *testing.T) Config {
	t.Helper()
	cfg, err := Resolve(h.store, registry(), testOptions())
	require.NoError(t, err)
	return cfg
}

func TestUpAndDown(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	cfg := h.resolve(t)

	expectLock(h.mock, cfg)
	h.mock.ExpectExec(CopyStatement("app_old", "app_new", "t1")).WillReturnResult(sqlmock.NewResult(0, 100))
	h.mock.ExpectExec(CopyStatement("app_old", "app_new", "t2")).WillReturnResult(sqlmock.NewResult(0, 50))
	h.mock.ExpectExec(CopyStatement("app_old", "app_new", "t3")).WillReturnResult(sqlmock.NewResult(0, 10))
	expectRelease(h.mock)
	h.mock.ExpectBegin()
	h.mock.ExpectQuery(MaxBatchQuery("app_new", "migrations")).
		WillReturnRows(sqlmock.NewRows([]string{"batch"}).AddRow(int64(7)))
	h.mock.ExpectExec(InsertBookkeepingStatement("app_new", "migrations")).
		WithArgs(migrationName, int64(8)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	h.mock.ExpectCommit()

	report, err := h.cutover.Up(ctx, cfg)
	require.NoError(t, err)
	require.NoError(t, report.Cause())
	assert.False(t, report.Failed())
	assert.Equal(t, StateReleased, report.State)
	assert.Equal(t, int64(8), report.Batch)
	assert.Equal(t, []TableCopy{{"t1", 100}, {"t2", 50}, {"t3", 10}}, report.Tables)
	assert.NoError(t, h.mock.ExpectationsWereMet())

	state, err := h.switcher.Current()
	require.NoError(t, err)
	assert.Equal(t, pointer.State{Active: "app_new", Staging: "app_old"}, state)
	assert.Equal(t, 1, h.reloads)
	assert.NoFileExists(t, filepath.Join(h.dir, "app_old.dump"))

	data, err := os.ReadFile(h.store.Path())
	require.NoError(t, err)
	assert.Contains(t, string(data), "APP_NAME=shop\nDB_CONNECTION=mysql\nDB_DATABASE=app_new\nDB_DUMP_DATABASE=app_old\n")

	// Reverse touches only the pointer.
	report, err = h.cutover.Down(ctx, "app_old", "app_new")
	require.NoError(t, err)
	assert.True(t, report.Success)
	assert.Equal(t, DirectionDown, report.Direction)

	state, err = h.switcher.Current()
	require.NoError(t, err)
	assert.Equal(t, pointer.State{Active: "app_old", Staging: "app_new"}, state)
	assert.Equal(t, 2, h.reloads)

	data, err = os.ReadFile(h.store.Path())
	require.NoError(t, err)
	assert.Equal(t, envContents, string(data))

	// Reversing again is a no-op.
	_, err = h.cutover.Down(ctx, "app_old", "app_new")
	require.NoError(t, err)
	assert.Equal(t, 2, h.reloads)
	assert.NoError(t, h.mock.ExpectationsWereMet())
}

func TestUpReplicationFailureTakesNoLocks(t *testing.T) {
	h := newHarness(t)
	h.runner.exitCode = map[string]int{"restore": 1}
	cfg := h.resolve(t)

	report, err := h.cutover.Up(context.Background(), cfg)

	var replErr *ReplicationError
	require.ErrorAs(t, err, &replErr)
	assert.Equal(t, StateFailed, report.State)
	assert.True(t, report.Failed())
	assert.NoError(t, h.mock.ExpectationsWereMet())

	state, err := h.switcher.Current()
	require.NoError(t, err)
	assert.Equal(t, "app_old", state.Active)
}

func TestUpLockedFailureSkipsBookkeeping(t *testing.T) {
	h := newHarness(t)
	cfg := h.resolve(t)

	expectLock(h.mock, cfg)
	h.mock.ExpectExec(CopyStatement("app_old", "app_new", "t1")).
		WillReturnError(assert.AnError)
	expectRelease(h.mock)

	report, err := h.cutover.Up(context.Background(), cfg)
	require.NoError(t, err)
	assert.False(t, report.Success)
	assert.True(t, report.Released)
	assert.Equal(t, StateSwitched, report.FailedIn)
	assert.Zero(t, report.Batch)
	assert.ErrorIs(t, report.Cause(), assert.AnError)
	assert.NoError(t, h.mock.ExpectationsWereMet())
}

func TestUpFailedCopyLeavesReversiblePointer(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	cfg := h.resolve(t)

	expectLock(h.mock, cfg)
	h.mock.ExpectExec(CopyStatement("app_old", "app_new", "t1")).WillReturnResult(sqlmock.NewResult(0, 100))
	h.mock.ExpectExec(CopyStatement("app_old", "app_new", "t2")).WillReturnError(errors.New("disk full"))
	expectRelease(h.mock)

	report, err := h.cutover.Up(ctx, cfg)
	require.NoError(t, err)
	assert.True(t, report.Failed())
	assert.True(t, report.PointerMoved)
	assert.Equal(t, StateSwitched, report.FailedIn)
	assert.Equal(t, []TableCopy{{"t1", 100}}, report.Tables)
	assert.NoError(t, h.mock.ExpectationsWereMet())

	// The application already reads from the partly filled target.
	state, err := h.switcher.Current()
	require.NoError(t, err)
	assert.Equal(t, pointer.State{Active: "app_new", Staging: "app_old"}, state)

	// Resolving now would run the cutover backwards.
	retry := h.resolve(t)
	assert.Equal(t, "app_new", retry.SourceDB)
	assert.Equal(t, "app_old", retry.TargetDB)

	report, err = h.cutover.Down(ctx, cfg.SourceDB, cfg.TargetDB)
	require.NoError(t, err)
	assert.True(t, report.Success)

	data, err := os.ReadFile(h.store.Path())
	require.NoError(t, err)
	assert.Equal(t, envContents, string(data))

	retry = h.resolve(t)
	assert.Equal(t, cfg.SourceDB, retry.SourceDB)
	assert.Equal(t, cfg.TargetDB, retry.TargetDB)
}

func TestUpRefusesConcurrentRun(t *testing.T) {
	h := newHarness(t)
	cfg := h.resolve(t)

	guard, err := AcquireGuard(filepath.Join(h.dir, "cutover.lock"))
	require.NoError(t, err)
	defer guard.Release()

	_, err = h.cutover.Up(context.Background(), cfg)
	assert.ErrorIs(t, err, ErrCutoverInProgress)
	assert.Empty(t, h.runner.commands)

	_, err = h.cutover.Down(context.Background(), "app_old", "app_new")
	assert.ErrorIs(t, err, ErrCutoverInProgress)
}
