package main

import (
	"fmt"
	"os"

	"github.com/kdimtricp/photobooth/internal/config"
	"github.com/kdimtricp/photobooth/internal/database"
	"github.com/spf13/cobra"
)

var (
	configFile string
	status     bool
)

var rootCmd = &cobra.Command{
	Use:          "photobooth-migrate",
	Short:        "Apply or inspect the capture database schema",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configFile, cmd.Flags())
		if err != nil {
			return err
		}

		db, err := database.Open(database.Config{SQLitePath: cfg.DBPath})
		if err != nil {
			return err
		}
		defer db.Close()

		migrator := database.NewMigrator(db)

		if status {
			return printStatus(cmd, migrator)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Running migrations on %s...\n", db.Path())
		if err := migrator.Run(); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}

		version, dirty, err := migrator.Version()
		if err != nil {
			return err
		}
		if dirty {
			return fmt.Errorf("schema version %d is dirty", version)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Migrations completed, schema at version %d\n", version)

		return nil
	},
}

func printStatus(cmd *cobra.Command, migrator *database.Migrator) error {
	migrations, err := migrator.Status()
	if err != nil {
		return fmt.Errorf("failed to get migration status: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Migration Status:")
	fmt.Fprintln(out, "=================")
	for _, m := range migrations {
		state := "pending"
		if m.Applied {
			state = "applied"
		}
		fmt.Fprintf(out, "%06d - %s [%s]\n", m.Version, m.Name, state)
	}

	return nil
}

func init() {
	flags := rootCmd.Flags()
	flags.StringVar(&configFile, "config", "", "path to a config file (default ./photobooth.yaml)")
	flags.String("db-path", "./db.sqlite", "SQLite database file")
	flags.BoolVar(&status, "status", false, "show migration status only")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
