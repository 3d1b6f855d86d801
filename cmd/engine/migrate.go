package main

import (
	"fmt"

	idb "reminder_engine/internal/infra/database"
	"reminder_engine/internal/infra/logger"

	"github.com/spf13/cobra"
)

var migratePrint bool

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the reminder_schedules table if it does not exist",
	RunE:  runMigrate,
}

func init() {
	migrateCmd.Flags().BoolVar(&migratePrint, "print", false, "Print the schema instead of applying it")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	if migratePrint {
		fmt.Fprintln(cmd.OutOrStdout(), idb.Schema)
		return nil
	}
	if err := loadConfig(); err != nil {
		return err
	}
	db, err := idb.NewPostgresConnection(cmd.Context(), cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	if _, err := db.ExecContext(cmd.Context(), idb.Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	logger.Get().Info("Schema applied.")
	return nil
}
