package cmd

import (
	"fmt"

	"github.com/ethpandaops/apiwatch/internal/config"
	"github.com/spf13/cobra"
)

var showConfigCmd = &cobra.Command{
	Use:   "show-config",
	Short: "Display the resolved configuration",
	Long:  `Shows the configuration resolved from built-in profiles, the config file, environment variables and .env file. Secrets are masked.`,
	RunE: func(_ *cobra.Command, _ []string) error {
		cfg, err := loadConfig(config.Overrides{})
		if err != nil {
			return err
		}

		fmt.Println(cfg.String())

		return nil
	},
}

func init() {
	rootCmd.AddCommand(showConfigCmd)
}
