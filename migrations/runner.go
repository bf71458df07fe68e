package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	_ "github.com/lib/pq" // PostgreSQL driver
)

type (
	// MigrationRunner applies the warehouse schema.
	MigrationRunner interface {
		Up() error
		Down() error
		Status() (Status, error)
		Drop() error
		Close() error
	}

	// Status compares the database schema with the migrations shipped in the binary.
	Status struct {
		// Current is the applied version, 0 when nothing was applied.
		Current int
		Dirty   bool
		Latest  int
	}

	// Runner implements MigrationRunner with golang-migrate.
	Runner struct {
		migrate    *migrate.Migrate
		db         *sql.DB
		migrations *MigrationSet
		logger     *slog.Logger
	}

	migrateLogger struct {
		logger *slog.Logger
	}
)

var _ migrate.Logger = (*migrateLogger)(nil)

// NewMigrationRunner validates the migration set, connects and prepares golang-migrate.
func NewMigrationRunner(cfg *Config, migrations *MigrationSet, logger *slog.Logger) (*Runner, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if migrations == nil {
		migrations = NewMigrationSet(nil)
	}

	logger.Info("Initializing migration runner", slog.String("config", cfg.String()))

	if err := migrations.Validate(); err != nil {
		return nil, fmt.Errorf("migration set validation failed: %w", err)
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	if err := db.PingContext(context.Background()); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{MigrationsTable: cfg.MigrationTable})
	if err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("failed to create postgres driver: %w", err)
	}

	source, err := iofs.New(migrations.FS(), ".")
	if err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}

	m.Log = &migrateLogger{logger: logger}
	if cfg.LockTimeout > 0 {
		m.LockTimeout = cfg.LockTimeout
	}

	return &Runner{migrate: m, db: db, migrations: migrations, logger: logger}, nil
}

// Up applies all pending migrations. An up-to-date schema is not an error.
func (r *Runner) Up() error {
	if err := r.migrations.Validate(); err != nil {
		return fmt.Errorf("pre-operation validation failed: %w", err)
	}

	err := r.migrate.Up()

	switch {
	case errors.Is(err, migrate.ErrNoChange):
		r.logger.Info("No new migrations to apply")
	case err != nil:
		return fmt.Errorf("migration up failed: %w", err)
	default:
		r.logger.Info("All migrations applied")
	}

	return nil
}

// Down rolls back the last applied migration.
func (r *Runner) Down() error {
	if err := r.migrations.Validate(); err != nil {
		return fmt.Errorf("pre-operation validation failed: %w", err)
	}

	err := r.migrate.Steps(-1)

	switch {
	case errors.Is(err, migrate.ErrNoChange), errors.Is(err, migrate.ErrNilVersion):
		r.logger.Info("No migrations to roll back")
	case err != nil:
		return fmt.Errorf("migration down failed: %w", err)
	default:
		r.logger.Info("Last migration rolled back")
	}

	return nil
}

// Status reports the applied and latest shipped schema versions.
func (r *Runner) Status() (Status, error) {
	latest, err := r.migrations.Latest()
	if err != nil {
		return Status{}, err
	}

	status := Status{Latest: latest}

	version, dirty, err := r.migrate.Version()

	switch {
	case errors.Is(err, migrate.ErrNilVersion):
	case err != nil:
		return Status{}, fmt.Errorf("failed to get migration version: %w", err)
	default:
		status.Current = int(version) // #nosec G115 - migration versions are three digits
		status.Dirty = dirty
	}

	r.logger.Info("Migration status",
		slog.Int("current", status.Current),
		slog.Int("latest", status.Latest),
		slog.Bool("dirty", status.Dirty),
		slog.String("state", status.String()))

	return status, nil
}

// Drop removes every table of the warehouse schema, including the migration table.
func (r *Runner) Drop() error {
	r.logger.Warn("Dropping all tables")

	if err := r.migrate.Drop(); err != nil {
		return fmt.Errorf("drop operation failed: %w", err)
	}

	r.logger.Info("All tables dropped")

	return nil
}

// Close releases the migrate instance and the database connection.
func (r *Runner) Close() error {
	var errs []error

	if r.migrate != nil {
		sourceErr, dbErr := r.migrate.Close()
		if sourceErr != nil {
			errs = append(errs, fmt.Errorf("source close error: %w", sourceErr))
		}

		if dbErr != nil {
			errs = append(errs, fmt.Errorf("database close error: %w", dbErr))
		}
	}

	// the postgres driver does not own db
	if r.db != nil {
		if err := r.db.Close(); err != nil && !errors.Is(err, sql.ErrConnDone) {
			errs = append(errs, fmt.Errorf("database connection close error: %w", err))
		}
	}

	return errors.Join(errs...)
}

// Pending returns the number of shipped migrations not yet applied.
func (s Status) Pending() int {
	if s.Current >= s.Latest {
		return 0
	}

	return s.Latest - s.Current
}

// String describes the status in one phrase.
func (s Status) String() string {
	switch {
	case s.Dirty:
		return fmt.Sprintf("dirty at version %03d, needs manual intervention", s.Current)
	case s.Current == s.Latest:
		return "up to date"
	case s.Current < s.Latest:
		return fmt.Sprintf("%d migration(s) pending", s.Pending())
	default:
		return fmt.Sprintf("database schema v%03d is newer than this migrator (v%03d)", s.Current, s.Latest)
	}
}

func (l *migrateLogger) Printf(format string, v ...any) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, v...)), slog.String("component", "migrate"))
}

func (l *migrateLogger) Verbose() bool {
	return l.logger.Enabled(context.Background(), slog.LevelDebug)
}
