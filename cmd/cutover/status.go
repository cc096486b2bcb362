package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Project-Sylos/Sylos-Cutover/internal/corebridge"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the database pointer and the latest run",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withManager(cmd, func(ctx context.Context, m *corebridge.Manager) error {
			status, err := m.Status(ctx)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(status)
			}

			fmt.Printf("Env file: %s\n", status.Pointer.EnvFile)
			fmt.Printf("  %s = %s\n", status.Pointer.ActiveKey, status.Pointer.Active)
			fmt.Printf("  %s = %s\n", status.Pointer.StagingKey, status.Pointer.Staging)
			fmt.Printf("Tables: %s\n", strings.Join(status.Tables, ", "))
			if status.LastRun != nil {
				printRun(*status.LastRun)
			}
			return nil
		})
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded cutover runs, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withManager(cmd, func(ctx context.Context, m *corebridge.Manager) error {
			all, err := m.ListRuns(ctx)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(all)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tDIRECTION\tSOURCE\tTARGET\tSTATUS\tSTATE\tSTARTED")
			for _, run := range all {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
					run.ID, run.Direction, run.SourceDB, run.TargetDB, run.Status, run.State,
					run.StartedAt.Local().Format("2006-01-02 15:04:05"))
			}
			return w.Flush()
		})
	},
}

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Print the commands and statements a cutover would run",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withManager(cmd, func(ctx context.Context, m *corebridge.Manager) error {
			plan, err := m.Plan(ctx)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(plan)
			}

			fmt.Println(plan.CreateDatabase)
			fmt.Println(plan.Dump)
			fmt.Println(plan.Restore)
			fmt.Println(plan.Cleanup)
			fmt.Println(plan.Lock)
			for _, stmt := range plan.Copies {
				fmt.Println(stmt)
			}
			fmt.Println(plan.Unlock)
			fmt.Println(plan.Bookkeeping)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(statusCmd, historyCmd, planCmd)
}
