package corebridge

import (
	"context"
	"fmt"

	"github.com/Project-Sylos/Sylos-Cutover/internal/pointer"
	"github.com/Project-Sylos/Sylos-Cutover/internal/shell"
)

// CommandInvalidator runs command through the shell to make the application
// drop its cached configuration, e.g. "php artisan config:clear". An empty
// command does nothing.
func CommandInvalidator(runner shell.Runner, command string) pointer.Invalidator {
	return func(ctx context.Context) error {
		if command == "" {
			return nil
		}
		res, err := runner.Run(ctx, shell.Command{Name: "sh", Args: []string{"-c", command}})
		if err != nil {
			return fmt.Errorf("reload command failed: %w", err)
		}
		if res.ExitCode != 0 {
			return fmt.Errorf("reload command exited with code %d: %s", res.ExitCode, res.Stderr)
		}
		return nil
	}
}
