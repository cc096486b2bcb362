package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Project-Sylos/Sylos-Cutover/internal/corebridge"
	"github.com/Project-Sylos/Sylos-Cutover/pkg/config"
	"github.com/Project-Sylos/Sylos-Cutover/pkg/logger"
)

var (
	jsonOutput bool

	cfg config.Config
	log zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "cutover",
	Short: "Switch an application to a freshly replicated MySQL schema",
	Long: `cutover replicates the structure of the active database into the staging
database, locks the configured tables, moves the application's database
pointer and copies the remaining rows before releasing the locks.

Examples:
  cutover plan
  cutover up
  cutover down
  cutover down --run cs1a2b3c4d5e6f7g8h9i
  cutover history --json`,
	SilenceUsage: true,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
		log = logger.New(cfg.Environment)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Print results as JSON")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// withManager builds the cutover service bound to a context cancelled by
// SIGINT or SIGTERM.
func withManager(cmd *cobra.Command, fn func(ctx context.Context, m *corebridge.Manager) error) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m, err := corebridge.NewManager(ctx, log, cfg, corebridge.Options{})
	if err != nil {
		return err
	}
	defer m.Wait()

	return fn(ctx, m)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
