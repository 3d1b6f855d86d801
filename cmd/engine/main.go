package main

import (
	"fmt"
	"os"
	_ "time/tzdata" // schedules name arbitrary IANA zones; do not depend on the host's zoneinfo

	"reminder_engine/internal/infra/config"
	"reminder_engine/internal/infra/logger"

	"github.com/spf13/cobra"
)

var cfg *config.AppConfig

var rootCmd = &cobra.Command{
	Use:   "reminder-engine",
	Short: "Recurring reminder scheduling engine",
	Long: `Sweeps subscriber reminder schedules once per minute and publishes one
deduplicated batch of due recipients per tick to the message bus.

Without a subcommand the engine runs until it receives SIGINT or SIGTERM.`,
	SilenceUsage: true,
	RunE:         runEngine,
}

func init() {
	rootCmd.AddCommand(runCmd, sweepCmd, migrateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads configuration (called by commands that need it)
func loadConfig() error {
	var err error
	cfg, err = config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger.Init(cfg)
	return nil
}
