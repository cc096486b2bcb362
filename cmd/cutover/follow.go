package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/Project-Sylos/Sylos-Cutover/internal/corebridge"
	"github.com/Project-Sylos/Sylos-Cutover/internal/corebridge/history"
)

// follow prints progress for runID until it finishes and returns an error
// when the run failed.
func follow(ctx context.Context, m *corebridge.Manager, runID string) error {
	updates, cancel, err := m.SubscribeProgress(ctx, runID)
	if err != nil {
		return err
	}
	defer cancel()

	for update := range updates {
		if jsonOutput {
			continue
		}
		switch update.Event {
		case "state":
			fmt.Printf("  %s\n", update.State)
		case "table":
			fmt.Printf("  copied %d rows into %s\n", update.Rows, update.Table)
		}
	}

	m.Wait()
	run, err := m.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	if jsonOutput {
		if err := printJSON(run); err != nil {
			return err
		}
	} else {
		printRun(run)
	}

	return runError(run)
}

// runError turns a finished run into the command's exit status. A cutover whose
// bookkeeping row was not written still fails the command.
func runError(run history.Run) error {
	switch {
	case run.Status != history.StatusCompleted:
		if run.Error == "" {
			return fmt.Errorf("run %s %s", run.ID, run.Status)
		}
		return errors.New(run.Error)
	case run.BookkeepingError != "":
		return errors.New(run.BookkeepingError)
	}
	return nil
}

func printRun(run history.Run) {
	fmt.Printf("Run %s (%s) %s\n", run.ID, run.Direction, run.Status)
	fmt.Printf("  state:    %s\n", run.State)
	if run.FailedIn != "" {
		fmt.Printf("  failed in: %s\n", run.FailedIn)
	}
	if run.Status == history.StatusFailed && run.PointerMoved {
		fmt.Printf("  pointer:  moved to %s; run `cutover down` before retrying\n", run.TargetDB)
	}
	fmt.Printf("  released: %t\n", run.Released)
	if run.Batch > 0 {
		fmt.Printf("  batch:    %d\n", run.Batch)
	}
	if run.BookkeepingError != "" {
		fmt.Printf("  bookkeeping: %s\n", run.BookkeepingError)
	}
	if run.Error != "" {
		fmt.Printf("  error:    %s\n", run.Error)
	}
}
