package cutover

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Project-Sylos/Sylos-Cutover/internal/shell"
	"github.com/Project-Sylos/Sylos-Cutover/pkg/config"
)

const dumpBody = "-- MySQL dump\n" +
	"CREATE TABLE `t1` (`id` int NOT NULL, PRIMARY KEY (`id`));\n" +
	"CREATE TABLE IF NOT EXISTS `t2` (`id` int NOT NULL);\n"

// scriptedRunner records commands, writes a dump file for mysqldump, keeps what
// the restore step was fed and removes files for rm.
type scriptedRunner struct {
	commands []shell.Command
	exitCode map[string]int
	fail     map[string]error
	restored string
}

func (r *scriptedRunner) Run(_ context.Context, cmd shell.Command) (shell.Result, error) {
	r.commands = append(r.commands, cmd)
	key := cmd.Name
	if cmd.Stdin != "" {
		key = "restore"
	}
	if err := r.fail[key]; err != nil {
		return shell.Result{ExitCode: -1}, err
	}
	if cmd.Stdout != "" {
		if err := os.WriteFile(cmd.Stdout, []byte(dumpBody), 0o644); err != nil {
			return shell.Result{ExitCode: -1}, err
		}
	}
	if key == "restore" {
		data, err := os.ReadFile(cmd.Stdin)
		if err != nil {
			return shell.Result{ExitCode: -1}, err
		}
		r.restored = string(data)
	}
	if key == "rm" {
		if err := os.Remove(cmd.Args[len(cmd.Args)-1]); err != nil && !errors.Is(err, os.ErrNotExist) {
			return shell.Result{ExitCode: 1, Stderr: err.Error()}, nil
		}
	}
	if code := r.exitCode[key]; code != 0 {
		return shell.Result{ExitCode: code, Stderr: "ERROR 1049 (42000): Unknown database"}, nil
	}
	return shell.Result{}, nil
}

func replicationConfig() Config {
	return Config{
		SourceDB:         "app_old",
		TargetDB:         "app_new",
		Username:         "app",
		Password:         "secret",
		Tables:           []string{"t1", "t2", "t3"},
		AlternateProfile: config.ConnectionConfig{Name: "mysql_dump", Host: "db-dump", Port: 3307},
		Charset:          "utf8mb4",
		Collation:        "utf8mb4_unicode_ci",
	}
}

func TestReplicate(t *testing.T) {
	ctx := context.Background()

	t.Run("CreateDumpRestore", func(t *testing.T) {
		dir := t.TempDir()
		runner := &scriptedRunner{}
		replicator := NewReplicator(runner, dir, zerolog.Nop())
		cfg := replicationConfig()

		require.NoError(t, replicator.Replicate(ctx, cfg))
		require.Len(t, runner.commands, 4)

		create, dump, restore, cleanup := runner.commands[0], runner.commands[1], runner.commands[2], runner.commands[3]
		assert.Equal(t, "mysql", create.Name)
		assert.Equal(t, CreateDatabaseStatement("app_new", "utf8mb4", "utf8mb4_unicode_ci")+"\n", create.Input)

		assert.Equal(t, "mysqldump", dump.Name)
		assert.Equal(t, []string{
			"--host=db-dump", "--port=3307", "--user=app",
			"--no-data", "--skip-add-drop-table", "--default-character-set=utf8mb4", "app_old",
		}, dump.Args)
		assert.Equal(t, filepath.Join(dir, "app_old.dump"), dump.Stdout)

		assert.Equal(t, "mysql", restore.Name)
		assert.Equal(t, "app_new", restore.Args[len(restore.Args)-1])
		assert.Equal(t, filepath.Join(dir, "app_old.dump"), restore.Stdin)

		assert.Equal(t, "-- MySQL dump\n"+
			"CREATE TABLE IF NOT EXISTS `t1` (`id` int NOT NULL, PRIMARY KEY (`id`));\n"+
			"CREATE TABLE IF NOT EXISTS `t2` (`id` int NOT NULL);\n", runner.restored)
		assert.NotContains(t, runner.restored, "DROP TABLE")

		for _, cmd := range runner.commands[:3] {
			assert.Equal(t, []string{"MYSQL_PWD=secret"}, cmd.Env)
			assert.NotContains(t, cmd.String(), "secret")
		}

		assert.Equal(t, "rm", cleanup.Name)
		assert.Equal(t, []string{"-f", "--", replicator.DumpPath(cfg)}, cleanup.Args)
		assert.NoFileExists(t, replicator.DumpPath(cfg))
	})

	t.Run("CleanupRunsAfterCancel", func(t *testing.T) {
		dir := t.TempDir()
		cctx, cancel := context.WithCancel(ctx)
		runner := &scriptedRunner{exitCode: map[string]int{"restore": 1}}
		replicator := NewReplicator(runner, dir, zerolog.Nop())
		cancel()

		err := replicator.Replicate(cctx, replicationConfig())
		require.Error(t, err)
		last := runner.commands[len(runner.commands)-1]
		assert.Equal(t, "rm", last.Name)
		assert.NoFileExists(t, filepath.Join(dir, "app_old.dump"))
	})

	t.Run("RestoreFailureRemovesDump", func(t *testing.T) {
		dir := t.TempDir()
		runner := &scriptedRunner{exitCode: map[string]int{"restore": 1}}
		replicator := NewReplicator(runner, dir, zerolog.Nop())

		err := replicator.Replicate(ctx, replicationConfig())

		var replErr *ReplicationError
		require.ErrorAs(t, err, &replErr)
		assert.Equal(t, "restore structure", replErr.Step)
		assert.Equal(t, 1, replErr.ExitCode)
		assert.Contains(t, err.Error(), "Unknown database")
		assert.NoFileExists(t, filepath.Join(dir, "app_old.dump"))
	})

	t.Run("DumpFailureStopsBeforeRestore", func(t *testing.T) {
		dir := t.TempDir()
		runner := &scriptedRunner{exitCode: map[string]int{"mysqldump": 2}}
		replicator := NewReplicator(runner, dir, zerolog.Nop())

		err := replicator.Replicate(ctx, replicationConfig())

		var replErr *ReplicationError
		require.ErrorAs(t, err, &replErr)
		assert.Equal(t, "dump structure", replErr.Step)
		require.Len(t, runner.commands, 3)
		assert.Equal(t, "rm", runner.commands[2].Name)
		assert.NoFileExists(t, filepath.Join(dir, "app_old.dump"))
	})

	t.Run("CreateFailureSkipsDump", func(t *testing.T) {
		boom := errors.New("mysql: executable file not found in $PATH")
		runner := &scriptedRunner{fail: map[string]error{"mysql": boom}}
		replicator := NewReplicator(runner, t.TempDir(), zerolog.Nop())

		err := replicator.Replicate(ctx, replicationConfig())

		var replErr *ReplicationError
		require.ErrorAs(t, err, &replErr)
		assert.Equal(t, "create database", replErr.Step)
		assert.ErrorIs(t, err, boom)
		assert.Len(t, runner.commands, 1)
	})
}
