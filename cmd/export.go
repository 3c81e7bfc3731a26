package cmd

import (
	"errors"

	"github.com/ethpandaops/apiwatch/internal/config"
	"github.com/ethpandaops/apiwatch/internal/history"
	"github.com/spf13/cobra"
)

var exportFormat string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the run history as JSON or CSV",
	Long: `Write a snapshot of the run history to the data directory as
test-export-<timestamp>.json or .csv.

Example:
  apiwatch export --format csv`,
	RunE: func(_ *cobra.Command, _ []string) error {
		format, err := history.ParseExportFormat(exportFormat)
		if err != nil {
			return err
		}

		cfg, err := loadConfig(config.Overrides{})
		if err != nil {
			return err
		}

		return runExport(cfg, format)
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)

	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", string(history.FormatJSON), "Export format (json, csv)")
}

func runExport(cfg *config.Config, format history.ExportFormat) error {
	f := newFormatter()

	path, err := newMaintenance(cfg).Export(format)
	if err != nil {
		if errors.Is(err, history.ErrNoHistory) {
			f.PrintWarning("No history to export. Run the collection first.")
		}

		return err
	}

	f.PrintSuccess("Exported history to " + path)

	return nil
}
