package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/MAHI-CHOWDARY/rcm-project/internal/config"
	"github.com/MAHI-CHOWDARY/rcm-project/internal/storage"
)

const (
	defaultMigrationTable = "schema_migrations"
	defaultLockTimeout    = 15 * time.Second
)

var (
	// ErrDatabaseURLRequired is returned when DATABASE_URL is not set.
	ErrDatabaseURLRequired = errors.New("DATABASE_URL is required")

	// ErrMigrationTableRequired is returned when MIGRATION_TABLE is set to an empty name.
	ErrMigrationTableRequired = errors.New("MIGRATION_TABLE cannot be empty")
)

// Config holds the migrator settings.
type Config struct {
	DatabaseURL    string
	MigrationTable string
	// LockTimeout bounds the wait for the advisory lock another migrator may hold.
	LockTimeout time.Duration
}

// LoadConfig reads DATABASE_URL, MIGRATION_TABLE and MIGRATION_LOCK_TIMEOUT.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		DatabaseURL:    config.GetEnvStr("DATABASE_URL", ""),
		MigrationTable: config.GetEnvStr("MIGRATION_TABLE", defaultMigrationTable),
		LockTimeout:    config.GetEnvDuration("MIGRATION_LOCK_TIMEOUT", defaultLockTimeout),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks the required settings.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return ErrDatabaseURLRequired
	}

	if c.MigrationTable == "" {
		return ErrMigrationTableRequired
	}

	return nil
}

// String renders the configuration with the database password masked.
func (c *Config) String() string {
	return fmt.Sprintf("Config{DatabaseURL: %s, MigrationTable: %s, LockTimeout: %s}",
		storage.NewConfig(c.DatabaseURL).MaskDatabaseURL(), c.MigrationTable, c.LockTimeout)
}
