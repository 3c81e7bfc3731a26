package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethpandaops/apiwatch/internal/config"
	"github.com/ethpandaops/apiwatch/internal/executor"
	"github.com/ethpandaops/apiwatch/internal/history"
	"github.com/ethpandaops/apiwatch/internal/metrics"
	"github.com/ethpandaops/apiwatch/internal/newman"
	"github.com/ethpandaops/apiwatch/internal/notify"
	"github.com/ethpandaops/apiwatch/internal/orchestrator"
	"github.com/ethpandaops/apiwatch/internal/retention"
	"github.com/ethpandaops/apiwatch/internal/warehouse"
	"github.com/spf13/cobra"
)

var (
	// Run command flags
	runCollection     string
	runPostmanEnv     string
	runIterations     int
	runTimeout        time.Duration
	runRequestTimeout time.Duration
	runDelay          time.Duration
	runRetries        int
	runRetryDelay     time.Duration
	runInsecure       bool
	runReportsDir     string
	runDataDir        string
	runNoNotify       bool
	runNoWarehouse    bool
)

// runOptions switches optional delivery off for a single run.
type runOptions struct {
	noNotify    bool
	noWarehouse bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the collection and record the result",
	Long: `Run the configured Postman collection through newman with retries, append
the result to the run history, print the trend analysis and deliver the result
to every configured notification channel.

Exits 0 when every assertion passed and 1 otherwise.

Example:
  apiwatch run --environment staging
  apiwatch run --collection api.json --iterations 3 --retries 0`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(runOverrides(cmd))
		if err != nil {
			return err
		}

		if err := validateRunConfig(cfg); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		code, err := executeRun(ctx, cfg, runOptions{noNotify: runNoNotify, noWarehouse: runNoWarehouse})
		if err != nil {
			return &exitError{code: 1, err: err}
		}

		if code != 0 {
			return &exitError{code: code}
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runCollection, "collection", "", "Postman collection file")
	runCmd.Flags().StringVar(&runPostmanEnv, "postman-env", "", "Postman environment file")
	runCmd.Flags().IntVarP(&runIterations, "iterations", "n", 1, "Number of collection iterations")
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 30*time.Minute, "Overall run timeout including retries")
	runCmd.Flags().DurationVar(&runRequestTimeout, "request-timeout", 30*time.Second, "Per-request timeout")
	runCmd.Flags().DurationVar(&runDelay, "delay", time.Second, "Delay between requests")
	runCmd.Flags().IntVar(&runRetries, "retries", 3, "Retries after a failed execution")
	runCmd.Flags().DurationVar(&runRetryDelay, "retry-delay", 5*time.Second, "Delay between retries")
	runCmd.Flags().BoolVarP(&runInsecure, "insecure", "k", false, "Disable TLS verification")
	runCmd.Flags().StringVar(&runReportsDir, "reports-dir", "", "Reports directory")
	runCmd.Flags().StringVar(&runDataDir, "data-dir", "", "Data directory holding history and exports")
	runCmd.Flags().BoolVar(&runNoNotify, "no-notify", false, "Skip notifications")
	runCmd.Flags().BoolVar(&runNoWarehouse, "no-warehouse", false, "Skip the ClickHouse warehouse")
}

// validateRunConfig rejects configurations a run cannot start with.
func validateRunConfig(cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	return nil
}

// runOverrides maps explicitly set flags onto config overrides so that
// defaults never mask file or environment values.
func runOverrides(cmd *cobra.Command) config.Overrides {
	o := config.Overrides{
		Collection:      runCollection,
		EnvironmentFile: runPostmanEnv,
		ReportsDir:      runReportsDir,
		DataDir:         runDataDir,
	}

	flags := cmd.Flags()

	if flags.Changed("iterations") {
		o.IterationCount = &runIterations
	}

	if flags.Changed("timeout") {
		o.RunTimeout = &runTimeout
	}

	if flags.Changed("request-timeout") {
		o.RequestTimeout = &runRequestTimeout
	}

	if flags.Changed("delay") {
		o.DelayRequest = &runDelay
	}

	if flags.Changed("retries") {
		o.MaxRetries = &runRetries
	}

	if flags.Changed("retry-delay") {
		o.RetryDelay = &runRetryDelay
	}

	if flags.Changed("insecure") {
		o.Insecure = &runInsecure
	}

	return o
}

// executeRun wires the run pipeline for cfg and returns the process exit code.
func executeRun(parent context.Context, cfg *config.Config, opts runOptions) (int, error) {
	ctx := parent
	if cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, cfg.RunTimeout)
		defer cancel()
	}

	collector := metrics.NewCollector(Logger)
	runner := newman.NewCLIRunner(Logger, cfg.Newman.Binary)
	exec := executor.NewExecutor(Logger, runner, collector, executor.Config{
		MaxRetries: cfg.Retry.EffectiveMaxRetries(),
		RetryDelay: cfg.Retry.RetryDelay,
	})

	orchCfg := &orchestrator.Config{
		Logger:    Logger,
		Settings:  cfg,
		Executor:  exec,
		Metrics:   collector,
		History:   history.NewStore(Logger, cfg.Reporting.HistoryFile, cfg.Retention.MaxHistoryEntries),
		Retention: retention.NewManager(Logger),
		Writer:    os.Stdout,
	}

	if !opts.noNotify {
		orchCfg.Notifier = notify.NewDispatcher(Logger, notify.ChannelsFromConfig(cfg)...)
	}

	if !opts.noWarehouse && cfg.ClickHouse.Enabled() {
		if sink := startWarehouse(ctx, cfg); sink != nil {
			defer func() { _ = sink.Stop() }()
			orchCfg.Recorder = sink
		}
	}

	outcome, err := orchestrator.New(orchCfg).Run(ctx)
	if err != nil {
		return 1, err
	}

	return outcome.ExitCode(), nil
}

// startWarehouse connects and migrates the sink. The warehouse is optional,
// so failures disable it for this run.
func startWarehouse(ctx context.Context, cfg *config.Config) *warehouse.Sink {
	sink := warehouse.NewSink(Logger, cfg.ClickHouse)

	if err := sink.Start(ctx); err != nil {
		Logger.WithError(err).Warn("warehouse unavailable, skipping")
		return nil
	}

	if err := sink.Migrate(ctx); err != nil {
		Logger.WithError(err).Warn("warehouse migration failed, skipping")
		_ = sink.Stop()

		return nil
	}

	return sink
}
