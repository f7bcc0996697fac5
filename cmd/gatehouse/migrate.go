// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package main

import (
	"strconv"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/gatehouse/gatehouse/internal/config"
	"github.com/gatehouse/gatehouse/internal/store"
)

// newSchemaMigrator creates the migrator used by the migrate subcommands.
// Overridable in tests.
var newSchemaMigrator = func(dsn string) (SchemaMigrator, error) {
	return store.NewMigrator(dsn)
}

// NewMigrateCmd creates the migrate subcommand with its actions.
func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database schema migrations",
		Long:  `Apply, roll back, and inspect schema migrations on the PostgreSQL database.`,
	}

	cmd.PersistentFlags().String("database_url", "", "PostgreSQL connection string (default: DATABASE_URL)")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withMigrator(cmd, func(m SchemaMigrator) error {
					if err := m.Up(); err != nil {
						return err
					}
					cmd.Println("Migrations applied")
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back all migrations",
			Long: `Roll back all migrations to version 0.
WARNING: this drops all tables and data.`,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withMigrator(cmd, func(m SchemaMigrator) error {
					if err := m.Down(); err != nil {
						return err
					}
					cmd.Println("Migrations rolled back")
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "steps <n>",
			Short: "Apply n migrations (negative n rolls back)",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				n, err := strconv.Atoi(args[0])
				if err != nil {
					return oops.Code("CONFIG_INVALID").Errorf("steps requires an integer, got %q", args[0])
				}
				return withMigrator(cmd, func(m SchemaMigrator) error {
					if err := m.Steps(n); err != nil {
						return err
					}
					cmd.Printf("Applied %d migration step(s)\n", n)
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Show the current migration version",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withMigrator(cmd, func(m SchemaMigrator) error {
					version, dirty, err := m.Version()
					if err != nil {
						return err
					}
					if dirty {
						cmd.Printf("Version: %d (dirty)\n", version)
					} else {
						cmd.Printf("Version: %d\n", version)
					}
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "force <version>",
			Short: "Force the migration version without running migrations",
			Long: `Set the schema version record directly. Use this to recover from a
dirty state after a failed migration, once the database has been
repaired by hand.`,
			Args: cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				v, err := strconv.Atoi(args[0])
				if err != nil {
					return oops.Code("CONFIG_INVALID").Errorf("force requires an integer version, got %q", args[0])
				}
				return withMigrator(cmd, func(m SchemaMigrator) error {
					if err := m.Force(v); err != nil {
						return err
					}
					cmd.Printf("Forced version to %d\n", v)
					return nil
				})
			},
		},
	)

	return cmd
}

// withMigrator resolves the database URL, opens a migrator, runs fn, and
// closes the migrator.
func withMigrator(cmd *cobra.Command, fn func(SchemaMigrator) error) error {
	dsn, err := migrateDatabaseURL(cmd)
	if err != nil {
		return err
	}

	m, err := newSchemaMigrator(dsn)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := m.Close(); closeErr != nil {
			cmd.PrintErrf("warning: error closing migrator: %v\n", closeErr)
		}
	}()

	return fn(m)
}

// migrateDatabaseURL resolves the connection string from the flag, the
// config file, or the DATABASE_URL environment variable, in that order.
func migrateDatabaseURL(cmd *cobra.Command) (string, error) {
	if v, err := cmd.Flags().GetString("database_url"); err == nil && v != "" {
		return v, nil
	}

	cfg, err := config.Load(configFile, nil)
	if err != nil {
		return "", err
	}
	if cfg.DatabaseURL == "" {
		return "", oops.Code("CONFIG_INVALID").Errorf("database_url is required (set DATABASE_URL or --database_url)")
	}
	return cfg.DatabaseURL, nil
}
