package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Command is one external process invocation. Stdin/Stdout name files; Input is
// literal text fed on stdin when Stdin is empty.
type Command struct {
	Name   string
	Args   []string
	Env    []string
	Stdin  string
	Stdout string
	Input  string
}

// String renders the command line for logs. Env values are never included.
func (c Command) String() string {
	var b strings.Builder
	b.WriteString(c.Name)
	for _, arg := range c.Args {
		b.WriteByte(' ')
		b.WriteString(arg)
	}
	if c.Stdin != "" {
		b.WriteString(" < ")
		b.WriteString(c.Stdin)
	}
	if c.Stdout != "" {
		b.WriteString(" > ")
		b.WriteString(c.Stdout)
	}
	return b.String()
}

// Result is what a finished process reports back.
type Result struct {
	ExitCode int
	Stderr   string
	Duration time.Duration
}

// Runner executes external commands synchronously. Processes it spawns share no
// session or transaction with the caller.
type Runner interface {
	Run(ctx context.Context, cmd Command) (Result, error)
}

type ExecRunner struct {
	logger zerolog.Logger
}

func NewExecRunner(logger zerolog.Logger) *ExecRunner {
	return &ExecRunner{logger: logger}
}

// Run starts the process and waits for it. A non-zero exit is reported through
// Result.ExitCode with a nil error; err is reserved for processes that could not
// be started or wired up.
func (r *ExecRunner) Run(ctx context.Context, cmd Command) (Result, error) {
	start := time.Now()
	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	c.Env = append(os.Environ(), cmd.Env...)

	var stderr bytes.Buffer
	c.Stderr = &stderr

	switch {
	case cmd.Stdin != "":
		in, err := os.Open(cmd.Stdin)
		if err != nil {
			return Result{ExitCode: -1}, fmt.Errorf("failed to open stdin file: %w", err)
		}
		defer in.Close()
		c.Stdin = in
	case cmd.Input != "":
		c.Stdin = strings.NewReader(cmd.Input)
	}

	var out io.WriteCloser
	if cmd.Stdout != "" {
		f, err := os.Create(cmd.Stdout)
		if err != nil {
			return Result{ExitCode: -1}, fmt.Errorf("failed to create stdout file: %w", err)
		}
		out = f
		c.Stdout = f
	}

	r.logger.Debug().Str("command", cmd.String()).Msg("running command")
	runErr := c.Run()
	if out != nil {
		if err := out.Close(); err != nil && runErr == nil {
			runErr = fmt.Errorf("failed to close stdout file: %w", err)
		}
	}

	res := Result{
		ExitCode: 0,
		Stderr:   strings.TrimSpace(stderr.String()),
		Duration: time.Since(start),
	}

	if runErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			res.ExitCode = -1
			return res, fmt.Errorf("%s interrupted: %w", cmd.Name, ctxErr)
		}
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			r.logger.Warn().
				Str("command", cmd.String()).
				Int("exit_code", res.ExitCode).
				Str("stderr", res.Stderr).
				Msg("command exited non-zero")
			return res, nil
		}
		res.ExitCode = -1
		return res, fmt.Errorf("failed to run %s: %w", cmd.Name, runErr)
	}

	r.logger.Debug().
		Str("command", cmd.String()).
		Dur("duration", res.Duration).
		Msg("command finished")
	return res, nil
}
