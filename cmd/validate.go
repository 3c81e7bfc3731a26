package cmd

import (
	"errors"
	"os"

	"github.com/ethpandaops/apiwatch/internal/config"
	"github.com/ethpandaops/apiwatch/internal/setup"
	"github.com/spf13/cobra"
)

var errSetupInvalid = errors.New("setup validation failed")

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check environment, files, directories and dependencies",
	Long: `Validate that apiwatch can run: required environment variables, collection
and environment files, writable output directories, the newman binary and the
resolved configuration. Exits 1 when any check fails.`,
	RunE: func(_ *cobra.Command, _ []string) error {
		cfg, err := loadConfig(config.Overrides{})
		if err != nil {
			return err
		}

		return runValidate(cfg)
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cfg *config.Config) error {
	report := setup.NewValidator(Logger, cfg, os.Getenv).Validate()

	newFormatter().PrintValidation(report)

	if !report.Valid() {
		return &exitError{code: 1, err: errSetupInvalid}
	}

	return nil
}
