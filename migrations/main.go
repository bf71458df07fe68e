// Package main is the schema migrator of the RCM warehouse.
//
// The SQL files next to this package are embedded in the binary, so a deployment needs
// only DATABASE_URL:
//
//	migrator up       apply pending migrations
//	migrator down     roll back the last migration
//	migrator status   compare the database with the shipped schema
//	migrator validate check the embedded migrations without a database
//	migrator drop     drop every table (requires --yes)
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/MAHI-CHOWDARY/rcm-project/internal/config"
)

// Set at build time with -ldflags.
var (
	Version   = "1.0.0-dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

const name = "migrator"

// ErrDropNotConfirmed is returned by drop without --yes.
var ErrDropNotConfirmed = errors.New("drop requires --yes")

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: config.GetEnvLogLevel("LOG_LEVEL", slog.LevelInfo),
	}))

	if err := newRootCommand(logger, openRunner).Execute(); err != nil {
		logger.Error("Migration failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// openRunner builds a Runner from the environment.
func openRunner(logger *slog.Logger) (MigrationRunner, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, err
	}

	return NewMigrationRunner(cfg, nil, logger)
}

func newRootCommand(logger *slog.Logger, open func(*slog.Logger) (MigrationRunner, error)) *cobra.Command {
	root := &cobra.Command{
		Use:           name,
		Short:         "Database migration tool for the RCM warehouse",
		Version:       fmt.Sprintf("%s (commit %s, built %s)", Version, GitCommit, BuildTime),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	withRunner := func(fn func(MigrationRunner) error) func(*cobra.Command, []string) error {
		return func(*cobra.Command, []string) error {
			runner, err := open(logger)
			if err != nil {
				return err
			}

			defer func() {
				_ = runner.Close()
			}()

			return fn(runner)
		}
	}

	var confirmed bool

	drop := &cobra.Command{
		Use:   "drop",
		Short: "Drop all tables",
		PreRunE: func(*cobra.Command, []string) error {
			if !confirmed {
				return ErrDropNotConfirmed
			}

			return nil
		},
		RunE: withRunner(func(r MigrationRunner) error { return r.Drop() }),
	}
	drop.Flags().BoolVar(&confirmed, "yes", false, "confirm dropping every table")

	root.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			RunE:  withRunner(func(r MigrationRunner) error { return r.Up() }),
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the last migration",
			RunE:  withRunner(func(r MigrationRunner) error { return r.Down() }),
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show the applied and latest schema versions",
			RunE: withRunner(func(r MigrationRunner) error {
				status, err := r.Status()
				if err != nil {
					return err
				}

				if status.Dirty {
					return fmt.Errorf("schema %s", status)
				}

				return nil
			}),
		},
		&cobra.Command{
			Use:   "validate",
			Short: "Validate the embedded migrations",
			RunE: func(*cobra.Command, []string) error {
				set := NewMigrationSet(nil)
				if err := set.Validate(); err != nil {
					return err
				}

				latest, err := set.Latest()
				if err != nil {
					return err
				}

				logger.Info("Embedded migrations are valid", slog.Int("latest", latest))

				return nil
			},
		},
		drop,
	)

	return root
}
