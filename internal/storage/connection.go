// Package storage reads the persisted patient dimension from PostgreSQL and bulk loads a
// rebuilt warehouse back into it.
//
// The snapshot read goes through database/sql with lib/pq. The replace-all load uses a pgx
// pool and streams every table with COPY inside one transaction.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/lib/pq" // PostgreSQL driver
)

// ErrNoDatabaseConnection is returned when a store is used without a connection.
var ErrNoDatabaseConnection = errors.New("no database connection available")

// Connection wraps a pooled database/sql handle.
type Connection struct {
	DB *sql.DB
}

// NewConnection opens a pooled connection and verifies it with a ping.
func NewConnection(cfg *Config) (*Connection, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid storage config: %w", err)
	}

	db, err := sql.Open("postgres", cfg.databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", cfg.MaskDatabaseURL(), err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	conn := &Connection{DB: db}

	if err := conn.HealthCheck(context.Background()); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("failed to connect to %s: %w", cfg.MaskDatabaseURL(), err)
	}

	return conn, nil
}

// HealthCheck pings the database.
func (c *Connection) HealthCheck(ctx context.Context) error {
	if c == nil || c.DB == nil {
		return ErrNoDatabaseConnection
	}

	return c.DB.PingContext(ctx)
}

// Close closes the pool. It is safe to call on a nil connection.
func (c *Connection) Close() error {
	if c == nil || c.DB == nil {
		return nil
	}

	return c.DB.Close()
}
