package cutover

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/Project-Sylos/Sylos-Cutover/internal/shell"
)

const (
	mysqlBinary     = "mysql"
	mysqldumpBinary = "mysqldump"
	removeBinary    = "rm"
)

// createTable matches the start of every CREATE TABLE statement in a dump.
var createTable = regexp.MustCompile(`(?m)^CREATE TABLE (?:IF NOT EXISTS )?`)

// Replicator seeds the target database with the source's table structure. It
// runs entirely in subprocesses and must finish before any table is locked.
type Replicator struct {
	runner  shell.Runner
	dumpDir string
	logger  zerolog.Logger
}

func NewReplicator(runner shell.Runner, dumpDir string, logger zerolog.Logger) *Replicator {
	if dumpDir == "" {
		dumpDir = "."
	}
	return &Replicator{
		runner:  runner,
		dumpDir: dumpDir,
		logger:  logger,
	}
}

// DumpPath is where the structure dump for cfg is written.
func (r *Replicator) DumpPath(cfg Config) string {
	return filepath.Join(r.dumpDir, cfg.SourceDB+".dump")
}

// Replicate creates the target database and loads the source structure into
// it. Tables that already exist in the target are left untouched, so a retry
// keeps rows copied by an earlier attempt. The dump file is removed on every
// path out of this method.
func (r *Replicator) Replicate(ctx context.Context, cfg Config) error {
	logger := r.logger.With().
		Str("source_db", cfg.SourceDB).
		Str("target_db", cfg.TargetDB).
		Logger()

	if err := r.run(ctx, "create database", r.createCommand(cfg)); err != nil {
		return err
	}
	logger.Info().Msg("target database ready")

	dumpPath := r.DumpPath(cfg)
	defer r.cleanup(context.WithoutCancel(ctx), logger, dumpPath)

	if err := r.run(ctx, "dump structure", r.dumpCommand(cfg)); err != nil {
		return err
	}
	if err := keepExistingTables(dumpPath); err != nil {
		return &ReplicationError{Step: "prepare structure", ExitCode: -1, Err: err}
	}
	if err := r.run(ctx, "restore structure", r.restoreCommand(cfg)); err != nil {
		return err
	}

	logger.Info().Msg("table structure replicated")
	return nil
}

func (r *Replicator) cleanup(ctx context.Context, logger zerolog.Logger, dumpPath string) {
	res, err := r.runner.Run(ctx, removeCommand(dumpPath))
	if err != nil || res.ExitCode != 0 {
		logger.Warn().
			Err(err).
			Int("exit_code", res.ExitCode).
			Str("stderr", res.Stderr).
			Str("dump", dumpPath).
			Msg("failed to remove structure dump")
		return
	}
	logger.Debug().Str("dump", dumpPath).Msg("structure dump removed")
}

// keepExistingTables rewrites the dump so its CREATE TABLE statements skip
// tables the target already has.
func keepExistingTables(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read structure dump: %w", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to stat structure dump: %w", err)
	}
	data = createTable.ReplaceAll(data, []byte("CREATE TABLE IF NOT EXISTS "))
	if err := os.WriteFile(path, data, info.Mode().Perm()); err != nil {
		return fmt.Errorf("failed to write structure dump: %w", err)
	}
	return nil
}

func (r *Replicator) run(ctx context.Context, step string, cmd shell.Command) error {
	res, err := r.runner.Run(ctx, cmd)
	if err != nil {
		return &ReplicationError{Step: step, ExitCode: res.ExitCode, Err: err}
	}
	if res.ExitCode != 0 {
		return &ReplicationError{Step: step, ExitCode: res.ExitCode, Stderr: res.Stderr}
	}
	return nil
}

func (r *Replicator) createCommand(cfg Config) shell.Command {
	args := append(connectionArgs(cfg), "--default-character-set="+cfg.Charset)
	return shell.Command{
		Name:  mysqlBinary,
		Args:  args,
		Env:   passwordEnv(cfg),
		Input: CreateDatabaseStatement(cfg.TargetDB, cfg.Charset, cfg.Collation) + "\n",
	}
}

func (r *Replicator) dumpCommand(cfg Config) shell.Command {
	args := append(connectionArgs(cfg), "--no-data", "--skip-add-drop-table", "--default-character-set="+cfg.Charset, cfg.SourceDB)
	return shell.Command{
		Name:   mysqldumpBinary,
		Args:   args,
		Env:    passwordEnv(cfg),
		Stdout: r.DumpPath(cfg),
	}
}

func (r *Replicator) restoreCommand(cfg Config) shell.Command {
	args := append(connectionArgs(cfg), "--default-character-set="+cfg.Charset, cfg.TargetDB)
	return shell.Command{
		Name:  mysqlBinary,
		Args:  args,
		Env:   passwordEnv(cfg),
		Stdin: r.DumpPath(cfg),
	}
}

func removeCommand(path string) shell.Command {
	return shell.Command{Name: removeBinary, Args: []string{"-f", "--", path}}
}

func connectionArgs(cfg Config) []string {
	args := make([]string, 0, 8)
	if cfg.AlternateProfile.Host != "" {
		args = append(args, "--host="+cfg.AlternateProfile.Host)
	}
	if cfg.AlternateProfile.Port != 0 {
		args = append(args, "--port="+strconv.Itoa(cfg.AlternateProfile.Port))
	}
	return append(args, "--user="+cfg.Username)
}

// passwordEnv hands the password to the client through MYSQL_PWD so it never
// shows up in the process list.
func passwordEnv(cfg Config) []string {
	return []string{fmt.Sprintf("MYSQL_PWD=%s", cfg.Password)}
}
