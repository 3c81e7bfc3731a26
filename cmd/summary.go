package cmd

import (
	"github.com/ethpandaops/apiwatch/internal/config"
	"github.com/spf13/cobra"
)

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Summarize the run history",
	Long: `Print total runs, date range, average success rate and duration, assertion
totals, the recent trend and storage usage.`,
	RunE: func(_ *cobra.Command, _ []string) error {
		cfg, err := loadConfig(config.Overrides{})
		if err != nil {
			return err
		}

		return runSummary(cfg)
	},
}

func init() {
	rootCmd.AddCommand(summaryCmd)
}

func runSummary(cfg *config.Config) error {
	m := newMaintenance(cfg)

	summary, err := m.Summary()
	if err != nil {
		return err
	}

	usage, err := m.Usage()
	if err != nil {
		return err
	}

	f := newFormatter()
	f.PrintDataSummary(summary)
	f.PrintUsage(usage)

	return nil
}
