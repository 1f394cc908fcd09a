// Command smartfi drives the SmartFi data layer from a terminal.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/ashureev/smartfi/internal/app"
	"github.com/ashureev/smartfi/internal/config"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	verbose bool
	dbPath  string
	format  string

	instance *app.App
)

var rootCmd = &cobra.Command{
	Use:   "smartfi",
	Short: "Aggregate and analyze your financial data",
	Long: `smartfi fetches net worth, credit report, EPF, mutual fund and bank
transaction data from the remote financial data API and produces a written
analysis of it.

Quick Start:
  smartfi profiles                 # List demo profiles
  smartfi demo 2222222222          # Enter demo mode and fetch everything
  smartfi fetch net-worth -f yaml  # Refetch one source
  smartfi analyze "How can I save more?"`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		level := slog.LevelWarn
		if verbose {
			level = slog.LevelDebug
		}
		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
		slog.SetDefault(logger)

		_ = godotenv.Load()
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if dbPath != "" {
			cfg.DBPath = dbPath
		}

		instance, err = app.New(cmd.Context(), cfg, logger)
		if err != nil {
			return fmt.Errorf("initialize: %w", err)
		}
		return nil
	},
}

func closeApp() {
	if instance == nil {
		return
	}
	if err := instance.Close(); err != nil {
		slog.Warn("Failed to close application", "error", err)
	}
	instance = nil
}

func init() {
	cobra.OnFinalize(closeApp)

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Database path (overrides DB_PATH)")
	rootCmd.PersistentFlags().StringVarP(&format, "format", "f", formatJSON, "Output format: json or yaml")

	rootCmd.AddCommand(sessionCmd, profilesCmd, demoCmd, delegatedCmd, fetchCmd, analyzeCmd, historyCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
