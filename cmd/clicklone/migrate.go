package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/clicklone/clicklone/internal/app/storage/postgres"
	"github.com/clicklone/clicklone/internal/config"
	"github.com/clicklone/clicklone/internal/platform/migrations"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the PostgreSQL schema",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDatabase(cmd, func(m migrator) error {
			if err := m.up(); err != nil {
				return err
			}
			return m.report(cmd)
		})
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down [steps]",
	Short: "Roll back migrations (default one step)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		steps := 1
		if len(args) == 1 {
			n, err := strconv.Atoi(args[0])
			if err != nil || n <= 0 {
				return fmt.Errorf("steps must be a positive integer")
			}
			steps = n
		}
		return withDatabase(cmd, func(m migrator) error {
			if err := m.down(steps); err != nil {
				return err
			}
			return m.report(cmd)
		})
	},
}

var migrateVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the current schema version",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDatabase(cmd, func(m migrator) error { return m.report(cmd) })
	},
}

func init() {
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd, migrateVersionCmd)
}

type migrator struct {
	up     func() error
	down   func(steps int) error
	report func(cmd *cobra.Command) error
}

func withDatabase(cmd *cobra.Command, fn func(migrator) error) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.StorageDriver != config.DriverPostgres {
		return fmt.Errorf("migrate requires STORAGE_DRIVER=postgres (got %s)", cfg.StorageDriver)
	}
	db, err := postgres.Open(cmd.Context(), cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	return fn(migrator{
		up: func() error {
			log.Info("applying migrations")
			return migrations.Up(db.DB)
		},
		down: func(steps int) error {
			log.WithField("steps", steps).Info("rolling back migrations")
			return migrations.Down(db.DB, steps)
		},
		report: func(cmd *cobra.Command) error {
			version, dirty, err := migrations.Version(db.DB)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema version %d (dirty=%t)\n", version, dirty)
			return nil
		},
	})
}
