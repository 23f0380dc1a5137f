package walletstore

import "time"

// Config holds the Postgres connection settings for the wallet snapshot
// store.
type Config struct {
	DSN                 string
	MaxOpenConns        int
	MaxIdleConns        int
	ConnMaxLifetime     time.Duration
	ConnMaxIdleTime     time.Duration
	RetryAttempts       int
	RetryDelay          time.Duration
	MigrationsPath      string
}

// DefaultConfig returns sensible production defaults for the snapshot
// store's connection pool.
func DefaultConfig() *Config {
	return &Config{
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 1 * time.Minute,
		RetryAttempts:   3,
		RetryDelay:      1 * time.Second,
		MigrationsPath:  "file://internal/walletstore/migrations",
	}
}

// Validate fills in defaults for unset fields and reports ErrInvalidDSN
// when the DSN is empty.
func (c *Config) Validate() error {
	if c.DSN == "" {
		return ErrInvalidDSN
	}
	if c.MaxOpenConns <= 0 {
		c.MaxOpenConns = 25
	}
	if c.MaxIdleConns <= 0 {
		c.MaxIdleConns = 5
	}
	if c.MaxIdleConns > c.MaxOpenConns {
		c.MaxIdleConns = c.MaxOpenConns
	}
	if c.ConnMaxLifetime <= 0 {
		c.ConnMaxLifetime = 5 * time.Minute
	}
	if c.ConnMaxIdleTime <= 0 {
		c.ConnMaxIdleTime = 1 * time.Minute
	}
	if c.RetryAttempts < 0 {
		c.RetryAttempts = 0
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 1 * time.Second
	}
	return nil
}
