package main

import (
	"fmt"

	"github.com/manslikestiffler/smart-granary/pkg/database"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	Long:  `Apply, list or revert the embedded schema migrations for the reading and alert store.`,
	RunE:  runMigrate,
}

var (
	migrateStatus bool
	migrateDown   bool
)

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.Flags().BoolVar(&migrateStatus, "status", false, "list pending migrations without applying them")
	migrateCmd.Flags().BoolVar(&migrateDown, "down", false, "revert the most recently applied migration")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg := configFrom(cmd)

	dbManager, err := database.NewDatabaseManager(cfg.Database.DSN(),
		database.WithPool(cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns),
		database.WithHealthInterval(cfg.Database.HealthInterval),
	)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer dbManager.Close()

	if !migrateStatus && !migrateDown {
		return dbManager.Init()
	}

	runner, err := database.NewMigrationsRunner(dbManager.GetDB())
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	if migrateDown {
		reverted, err := runner.Rollback(cmd.Context())
		if err != nil {
			return err
		}
		if !reverted {
			fmt.Fprintln(out, "No applied migrations to revert")
		}
		return nil
	}

	pending, err := runner.Pending()
	if err != nil {
		return err
	}

	if len(pending) == 0 {
		fmt.Fprintln(out, "✓ Database is up to date")
		return nil
	}
	for _, m := range pending {
		fmt.Fprintf(out, "pending %06d %s\n", m.Version, m.Name)
	}
	return nil
}
