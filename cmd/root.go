// Package cmd contains CLI command definitions
package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/ethpandaops/apiwatch/internal/config"
	"github.com/ethpandaops/apiwatch/internal/output"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const defaultEnvFile = ".env"

var (
	// Logger is the shared logger instance for all commands
	Logger = logrus.New()

	envFile     string
	environment string
	configFile  string
	verbose     bool

	rootCmd = &cobra.Command{
		Use:   "apiwatch",
		Short: "apiwatch - API collection runner with history and trends",
		Long: `apiwatch runs Postman collections through newman, keeps a bounded run
history, analyzes trends and delivers results to Slack, Teams and email.

Run without arguments to launch interactive mode, or use subcommands for direct operations.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			if err := loadEnvFile(envFile); err != nil {
				return err
			}

			InitLogger()

			return nil
		},
		RunE: func(_ *cobra.Command, _ []string) error {
			return runInteractive()
		},
	}
)

// exitError carries a process exit code. A nil err exits silently.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}

	return e.err.Error()
}

func (e *exitError) Unwrap() error {
	return e.err
}

// Execute runs the root command and exits with the command's exit code.
func Execute() {
	err := rootCmd.Execute()
	if err == nil {
		return
	}

	var exit *exitError
	if errors.As(err, &exit) {
		if exit.err != nil {
			fmt.Fprintln(os.Stderr, exit.err)
		}

		os.Exit(exit.code)
	}

	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env", "", "Env file to load (default .env)")
	rootCmd.PersistentFlags().StringVar(&environment, "environment", "", "Environment profile (default $APIWATCH_ENV, $NODE_ENV or 'default')")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (default ./"+config.DefaultConfigFile+" if present)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}

// InitLogger creates the shared logger. --verbose forces debug, otherwise
// LOG_LEVEL applies and info is the fallback.
func InitLogger() {
	Logger = logrus.New()
	Logger.SetLevel(resolveLogLevel(verbose, os.Getenv("LOG_LEVEL")))
}

func resolveLogLevel(verbose bool, raw string) logrus.Level {
	if verbose {
		return logrus.DebugLevel
	}

	if raw == "" {
		return logrus.InfoLevel
	}

	level, err := logrus.ParseLevel(raw)
	if err != nil {
		fmt.Printf("Invalid LOG_LEVEL '%s', defaulting to 'info'\n", raw)
		return logrus.InfoLevel
	}

	return level
}

// loadEnvFile loads the specified environment file
func loadEnvFile(file string) error {
	if file == "" {
		file = defaultEnvFile
	}

	if err := godotenv.Load(file); err != nil {
		// If it's the default .env file and it doesn't exist, that's okay
		if file == defaultEnvFile && os.IsNotExist(err) {
			return nil
		}

		return fmt.Errorf("failed to load env file '%s': %w", file, err)
	}

	return nil
}

// loadConfig resolves the configuration from the root flags, process
// environment and the given flag overrides.
func loadConfig(overrides config.Overrides) (*config.Config, error) {
	cfg, err := config.Load(Logger, config.LoadOptions{
		Environment: config.ResolveEnvironment(environment, os.Getenv),
		File:        configFile,
		Getenv:      os.Getenv,
		Overrides:   overrides,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

func newFormatter() output.Formatter {
	return output.NewFormatter(os.Stdout)
}
