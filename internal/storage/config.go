package storage

import (
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/MAHI-CHOWDARY/rcm-project/internal/config"
)

const (
	defaultMaxOpenConns    = 10
	defaultMaxIdleConns    = 2
	defaultConnMaxLifetime = 30 * time.Minute
	defaultConnMaxIdleTime = 10 * time.Minute
	defaultLoadTimeout     = 15 * time.Minute
)

var (
	// ErrDatabaseURLEmpty is returned when the database url is an empty string.
	ErrDatabaseURLEmpty = errors.New("database URL cannot be empty")

	// ErrInvalidPoolSize is returned when the pool limits cannot serve a load.
	ErrInvalidPoolSize = errors.New("database pool size must be positive")
)

// Config holds PostgreSQL connection settings for the snapshot reader and the warehouse loader.
type Config struct {
	databaseURL     string
	MaxOpenConns    int           // Maximum number of open connections
	MaxIdleConns    int           // Maximum number of idle connections
	ConnMaxLifetime time.Duration // Maximum lifetime of connections
	ConnMaxIdleTime time.Duration // Maximum idle time for connections
	LoadTimeout     time.Duration // Upper bound of one replace-all load transaction
}

// LoadConfig loads PostgreSQL configuration from environment variables with fallback to defaults.
func LoadConfig() *Config {
	return &Config{
		databaseURL:     config.GetEnvStr("DATABASE_URL", ""), // kept private so it is never logged by accident
		MaxOpenConns:    config.GetEnvInt("DATABASE_MAX_OPEN_CONNS", defaultMaxOpenConns),
		MaxIdleConns:    config.GetEnvInt("DATABASE_MAX_IDLE_CONNS", defaultMaxIdleConns),
		ConnMaxLifetime: config.GetEnvDuration("DATABASE_CONN_MAX_LIFETIME", defaultConnMaxLifetime),
		ConnMaxIdleTime: config.GetEnvDuration("DATABASE_CONN_MAX_IDLE_TIME", defaultConnMaxIdleTime),
		LoadTimeout:     config.GetEnvDuration("DATABASE_LOAD_TIMEOUT", defaultLoadTimeout),
	}
}

// NewConfig returns a Config for databaseURL with default pool settings.
func NewConfig(databaseURL string) *Config {
	return &Config{
		databaseURL:     databaseURL,
		MaxOpenConns:    defaultMaxOpenConns,
		MaxIdleConns:    defaultMaxIdleConns,
		ConnMaxLifetime: defaultConnMaxLifetime,
		ConnMaxIdleTime: defaultConnMaxIdleTime,
		LoadTimeout:     defaultLoadTimeout,
	}
}

// Validate checks if the PostgreSQL configuration is valid.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.databaseURL) == "" {
		return ErrDatabaseURLEmpty
	}

	if c.MaxOpenConns <= 0 {
		return ErrInvalidPoolSize
	}

	return nil
}

// MaskDatabaseURL returns the database URL with its password replaced, safe for logging.
// Key/value DSNs and URLs without a password are returned unchanged.
func (c *Config) MaskDatabaseURL() string {
	if c.databaseURL == "" {
		return ""
	}

	u, err := url.Parse(c.databaseURL)
	if err != nil || u.User == nil {
		return c.databaseURL
	}

	password, ok := u.User.Password()
	if !ok || password == "" {
		return c.databaseURL
	}

	// Rebuild by hand: url.UserPassword would percent-encode the mask.
	schemeEnd := strings.Index(c.databaseURL, "://")
	if schemeEnd < 0 {
		return c.databaseURL
	}

	rest := c.databaseURL[schemeEnd+len("://"):]
	authority := rest

	if end := strings.IndexAny(rest, "/?#"); end >= 0 {
		authority = rest[:end]
	}

	at := strings.LastIndex(authority, "@")
	colon := strings.Index(authority, ":")

	if at < 0 || colon < 0 || colon > at {
		return c.databaseURL
	}

	return c.databaseURL[:schemeEnd+len("://")] + authority[:colon] + ":***" + rest[at:]
}
