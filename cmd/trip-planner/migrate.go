package main

import (
	"errors"
	"fmt"
	"log/slog"

	gomigrate "github.com/golang-migrate/migrate/v4"
	"github.com/spf13/cobra"

	"github.com/txn2/trip-planner/internal/server"
	"github.com/txn2/trip-planner/pkg/database/migrate"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the PostgreSQL schema",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withDatabase(cmd, func(run migrationRunner) error {
			if err := run.up(); err != nil {
				return err
			}
			return printVersion(cmd, run)
		})
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back migrations",
	RunE: func(cmd *cobra.Command, _ []string) error {
		steps, _ := cmd.Flags().GetInt("steps")
		all, _ := cmd.Flags().GetBool("all")
		return withDatabase(cmd, func(run migrationRunner) error {
			var err error
			if all {
				err = run.down()
			} else {
				err = run.steps(-steps)
			}
			if err != nil {
				return err
			}
			return printVersion(cmd, run)
		})
	},
}

var migrateVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the current schema version",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withDatabase(cmd, func(run migrationRunner) error {
			return printVersion(cmd, run)
		})
	},
}

func init() {
	migrateDownCmd.Flags().Int("steps", 1, "Number of migrations to roll back")
	migrateDownCmd.Flags().Bool("all", false, "Roll back every migration")
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd, migrateVersionCmd)
	rootCmd.AddCommand(migrateCmd)
}

// migrationRunner binds the migrate package to one database.
type migrationRunner struct {
	up      func() error
	down    func() error
	steps   func(n int) error
	version func() (uint, bool, error)
}

func withDatabase(cmd *cobra.Command, fn func(migrationRunner) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	db, err := server.OpenDatabase(cmd.Context(), cfg.Database)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			slog.Warn("closing database", "error", err)
		}
	}()

	return fn(migrationRunner{
		up:      func() error { return migrate.Run(db) },
		down:    func() error { return migrate.Down(db) },
		steps:   func(n int) error { return migrate.Steps(db, n) },
		version: func() (uint, bool, error) { return migrate.Version(db) },
	})
}

func printVersion(cmd *cobra.Command, run migrationRunner) error {
	version, dirty, err := run.version()
	if errors.Is(err, gomigrate.ErrNilVersion) {
		_, err = fmt.Fprintln(cmd.OutOrStdout(), "no migrations applied")
		return err
	}
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "schema version %d (dirty: %t)\n", version, dirty)
	return err
}
