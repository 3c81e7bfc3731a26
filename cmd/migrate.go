package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethpandaops/apiwatch/internal/config"
	"github.com/ethpandaops/apiwatch/internal/warehouse"
	"github.com/spf13/cobra"
)

var errWarehouseDisabled = errors.New("no ClickHouse URL configured (set " + config.EnvClickHouseURL + " or clickhouse.url)")

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the ClickHouse warehouse schema",
	Long: `Create or upgrade the api_test_runs and api_test_executions tables in the
configured ClickHouse database. Safe to run multiple times.`,
	RunE: func(_ *cobra.Command, _ []string) error {
		cfg, err := loadConfig(config.Overrides{})
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return runMigrate(ctx, cfg)
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(ctx context.Context, cfg *config.Config) error {
	if !cfg.ClickHouse.Enabled() {
		return errWarehouseDisabled
	}

	sink := warehouse.NewSink(Logger, cfg.ClickHouse)
	if err := sink.Start(ctx); err != nil {
		return err
	}
	defer func() { _ = sink.Stop() }()

	if err := sink.Migrate(ctx); err != nil {
		return fmt.Errorf("migrating warehouse: %w", err)
	}

	newFormatter().PrintSuccess("Warehouse schema is up to date")

	return nil
}
