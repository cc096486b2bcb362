package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Project-Sylos/Sylos-Cutover/internal/corebridge"
)

var downRunID string

var downCmd = &cobra.Command{
	Use:   "down",
	Short: "Point the application back at the database a cutover replaced",
	Long: `down swaps the active and staging pointers back for a successful forward
cutover. It does not copy rows written to the new database since the cutover.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withManager(cmd, func(ctx context.Context, m *corebridge.Manager) error {
			run, err := m.RunReverse(ctx, corebridge.ReverseRequest{RunID: downRunID})
			if jsonOutput && run.ID != "" {
				if err := printJSON(run); err != nil {
					return err
				}
			}
			if err != nil {
				return err
			}
			if !jsonOutput {
				fmt.Printf("Reverse %s: application now uses %s\n", run.ID, run.TargetDB)
			}
			return nil
		})
	},
}

func init() {
	downCmd.Flags().StringVar(&downRunID, "run", "", "Forward run to reverse (default: latest successful)")

	rootCmd.AddCommand(downCmd)
}
