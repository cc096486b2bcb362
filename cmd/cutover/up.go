package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Project-Sylos/Sylos-Cutover/internal/corebridge"
)

var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Replicate the active schema and cut the application over to it",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withManager(cmd, func(ctx context.Context, m *corebridge.Manager) error {
			run, err := m.StartCutover(ctx)
			if err != nil {
				return err
			}
			if !jsonOutput {
				fmt.Printf("Cutover %s: %s -> %s\n", run.ID, run.SourceDB, run.TargetDB)
			}

			return follow(ctx, m, run.ID)
		})
	},
}

func init() {
	rootCmd.AddCommand(upCmd)
}
