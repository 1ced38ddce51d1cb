package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/awaybot/awaybot/internal/database"
)

var rollbackSteps int

func init() {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back database migrations",
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE:  runMigrateUp,
	}
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		Args:  cobra.NoArgs,
		RunE:  runMigrateDown,
	}
	down.Flags().IntVar(&rollbackSteps, "steps", 1, "Number of migrations to roll back")

	cmd.AddCommand(up, down)
	RootCmd.AddCommand(cmd)
}

func runMigrateUp(_ *cobra.Command, _ []string) error {
	if cfg.DB.Driver == "sqlite" {
		db, err := database.OpenSQLite(cfg.DB.SQLitePath)
		if err != nil {
			return err
		}
		slog.Info("sqlite schema applied", "path", cfg.DB.SQLitePath)
		return db.Close()
	}
	return database.RunMigrations(cfg.DB.DSN(), cfg.DB.MigrationsPath)
}

func runMigrateDown(_ *cobra.Command, _ []string) error {
	if cfg.DB.Driver == "sqlite" {
		return fmt.Errorf("rollback is not supported for the sqlite driver")
	}
	return database.RollbackMigrations(cfg.DB.DSN(), cfg.DB.MigrationsPath, rollbackSteps)
}
