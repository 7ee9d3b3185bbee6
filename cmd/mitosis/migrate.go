package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/banshee-data/mitosis.report/internal/storage/sqlite"
)

func newMigrateCommand(ctx *commandContext) *cobra.Command {
	var dbPath string

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the schema of the results database",
	}
	migrateCmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite database path")
	_ = migrateCmd.MarkPersistentFlagRequired("db")

	withDB := func(fn func(cmd *cobra.Command, db *sqlite.DB) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			db, err := sqlite.Open(dbPath)
			if err != nil {
				return err
			}
			defer db.Close()
			return fn(cmd, db)
		}
	}

	migrateCmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: withDB(func(cmd *cobra.Command, db *sqlite.DB) error {
			if err := db.MigrateUp(); err != nil {
				return err
			}
			return printVersion(cmd, db)
		}),
	})
	migrateCmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration",
		RunE: withDB(func(cmd *cobra.Command, db *sqlite.DB) error {
			if err := db.MigrateDown(); err != nil {
				return err
			}
			return printVersion(cmd, db)
		}),
	})
	migrateCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show the current and latest schema versions",
		RunE:  withDB(printVersion),
	})

	return migrateCmd
}

func printVersion(cmd *cobra.Command, db *sqlite.DB) error {
	current, dirty, err := db.MigrateVersion()
	if err != nil {
		return err
	}
	latest, err := sqlite.LatestMigrationVersion()
	if err != nil {
		return err
	}
	state := "clean"
	if dirty {
		state = "dirty"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Schema version %d of %d (%s)\n", current, latest, state)
	return nil
}
