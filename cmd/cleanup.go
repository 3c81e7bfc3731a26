package cmd

import (
	"fmt"

	"github.com/ethpandaops/apiwatch/internal/config"
	"github.com/ethpandaops/apiwatch/internal/history"
	"github.com/ethpandaops/apiwatch/internal/orchestrator"
	"github.com/ethpandaops/apiwatch/internal/retention"
	"github.com/spf13/cobra"
)

var (
	cleanupNoReports bool
	cleanupNoHistory bool
	cleanupNoExports bool
	cleanupDryRun    bool
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Apply retention to reports, history and exports",
	Long: `Remove reports older than retention.reportMaxAge, trim the run history to
retention.maxHistoryEntries and keep only the newest retention.keepExports
history exports. Prints storage usage before and after.

Example:
  apiwatch cleanup --dry-run
  apiwatch cleanup --no-history`,
	RunE: func(_ *cobra.Command, _ []string) error {
		cfg, err := loadConfig(config.Overrides{})
		if err != nil {
			return err
		}

		return runCleanup(cfg, orchestrator.CleanupOptions{
			Reports: !cleanupNoReports,
			History: !cleanupNoHistory,
			Exports: !cleanupNoExports,
			DryRun:  cleanupDryRun,
		})
	},
}

func init() {
	rootCmd.AddCommand(cleanupCmd)

	cleanupCmd.Flags().BoolVar(&cleanupNoReports, "no-reports", false, "Keep old reports")
	cleanupCmd.Flags().BoolVar(&cleanupNoHistory, "no-history", false, "Do not trim the history")
	cleanupCmd.Flags().BoolVar(&cleanupNoExports, "no-exports", false, "Keep all history exports")
	cleanupCmd.Flags().BoolVar(&cleanupDryRun, "dry-run", false, "Report what would be removed without deleting")
}

func newMaintenance(cfg *config.Config) *orchestrator.Maintenance {
	store := history.NewStore(Logger, cfg.Reporting.HistoryFile, cfg.Retention.MaxHistoryEntries)
	return orchestrator.NewMaintenance(Logger, cfg, store, retention.NewManager(Logger))
}

func runCleanup(cfg *config.Config, opts orchestrator.CleanupOptions) error {
	summary := newMaintenance(cfg).Cleanup(opts)

	f := newFormatter()
	f.PrintCleanup(summary)

	if n := summary.ErrorCount(); n > 0 {
		return &exitError{code: 1, err: fmt.Errorf("cleanup finished with %d error(s)", n)}
	}

	return nil
}
