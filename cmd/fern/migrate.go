package main

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Ramsey-B/fern/pkg/database"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := database.Open(cmd.Context(), cfg.Database(), logger)
		if err != nil {
			return err
		}
		defer db.Close()

		if err := database.NewMigrationService(logger, cfg.Migration()).MigratePostgres(db.SQLX(), cfg.DatabaseName); err != nil {
			return err
		}

		latest, err := database.LatestMigrationVersion(cfg.DatabaseMigrationFolderPath)
		if err == nil {
			color.Green("Database is migrated (latest available version %d)", latest)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
