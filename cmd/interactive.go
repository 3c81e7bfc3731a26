package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethpandaops/apiwatch/internal/config"
	"github.com/ethpandaops/apiwatch/internal/history"
	"github.com/ethpandaops/apiwatch/internal/interactive"
	"github.com/ethpandaops/apiwatch/internal/orchestrator"
	"github.com/spf13/cobra"
)

var interactiveCmd = &cobra.Command{
	Use:   "interactive",
	Short: "Launch interactive mode",
	Long:  `Launches the interactive menu for running collections and maintaining history.`,
	RunE: func(_ *cobra.Command, _ []string) error {
		return runInteractive()
	},
}

func init() {
	rootCmd.AddCommand(interactiveCmd)
}

// menuAction wraps an action so that its error is shown and the menu continues.
func menuAction(fn func() error) func() error {
	return func() error {
		if err := fn(); err != nil {
			fmt.Printf("\n❌ Error: %v\n", err)
		}

		interactive.PauseForEnter()

		return nil
	}
}

func runInteractive() error {
	cfg, err := loadConfig(config.Overrides{})
	if err != nil {
		return err
	}

	fmt.Println("apiwatch - Interactive Mode")
	fmt.Println("===========================")
	fmt.Printf("Environment: %s\n\n", cfg.Environment)

	for {
		if err := interactive.ShowMainMenu(menuOptions(cfg)); err != nil {
			if errors.Is(err, interactive.ErrExit) {
				fmt.Println("Goodbye!")
				return nil
			}

			return err
		}

		fmt.Println()
	}
}

// runFromMenu runs the collection with the loaded configuration, applying the
// same validation as the run command.
func runFromMenu(cfg *config.Config) error {
	if err := validateRunConfig(cfg); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	code, err := executeRun(ctx, cfg, runOptions{})
	if err != nil {
		return err
	}

	if code != 0 {
		fmt.Println("\n❌ Some assertions failed")
	} else {
		fmt.Println("\n✅ All assertions passed")
	}

	return nil
}

func menuOptions(cfg *config.Config) []interactive.MenuOption {
	options := []interactive.MenuOption{
		{
			Name:        "▶️  Run Tests",
			Description: "Run the collection, record history and notify",
			Action:      menuAction(func() error { return runFromMenu(cfg) }),
		},
		{
			Name:        "✅ Validate Setup",
			Description: "Check environment, files, directories and dependencies",
			Action:      menuAction(func() error { return runValidate(cfg) }),
		},
		{
			Name:        "📊 History Summary",
			Description: "Summarize recorded runs and storage usage",
			Action:      menuAction(func() error { return runSummary(cfg) }),
		},
		{
			Name:        "📤 Export History",
			Description: "Write the history to the data directory as JSON or CSV",
			Action: menuAction(func() error {
				choice, err := interactive.Select("Export format:", []string{
					string(history.FormatJSON),
					string(history.FormatCSV),
				}, string(history.FormatJSON))
				if err != nil {
					return err
				}

				format, err := history.ParseExportFormat(choice)
				if err != nil {
					return err
				}

				return runExport(cfg, format)
			}),
		},
		{
			Name:        "🧹 Cleanup",
			Description: "Preview and apply retention to reports, history and exports",
			Action: menuAction(func() error {
				preview := orchestrator.DefaultCleanupOptions()
				preview.DryRun = true

				if err := runCleanup(cfg, preview); err != nil {
					return err
				}

				if !interactive.Confirm("Apply this cleanup?") {
					fmt.Println("Cleanup canceled.")
					return nil
				}

				return runCleanup(cfg, orchestrator.DefaultCleanupOptions())
			}),
		},
		{
			Name:        "📋 Show Config",
			Description: "Display the resolved configuration",
			Action: menuAction(func() error {
				fmt.Println(cfg.String())
				return nil
			}),
		},
	}

	if cfg.ClickHouse.Enabled() {
		options = append(options, interactive.MenuOption{
			Name:        "🗄️  Migrate Warehouse",
			Description: "Apply the ClickHouse schema (safe to run multiple times)",
			Action: menuAction(func() error {
				if !interactive.Confirm("Apply warehouse migrations?") {
					fmt.Println("Migration canceled.")
					return nil
				}

				return runMigrate(context.Background(), cfg)
			}),
		})
	}

	return options
}
