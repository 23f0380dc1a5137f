// Package walletstore persists the wallet snapshot blob keyed by run_id:
// each Save serialises the complete wallet state and overwrites it
// atomically, with no partial updates. The orchestrator saves once per
// decision step, after advance_to; an individual place, cancel, modify
// or fill does not trigger a save of its own.
package walletstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// DB wraps sql.DB with the retry-connect and health-check conventions
// the rest of the project's infrastructure packages follow.
type DB struct {
	*sql.DB
	config *Config
}

// Connect establishes a connection with retry and exponential backoff,
// then configures the pool per config.
func Connect(ctx context.Context, config *Config) (*DB, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("walletstore: invalid config: %w", err)
	}

	var db *sql.DB
	var err error

	delay := config.RetryDelay
	for attempt := 0; attempt <= config.RetryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
				delay *= 2
			}
		}

		db, err = sql.Open("pgx", config.DSN)
		if err != nil {
			if attempt == config.RetryAttempts {
				return nil, fmt.Errorf("walletstore: open after %d attempts: %w", attempt+1, err)
			}
			continue
		}

		db.SetMaxOpenConns(config.MaxOpenConns)
		db.SetMaxIdleConns(config.MaxIdleConns)
		db.SetConnMaxLifetime(config.ConnMaxLifetime)
		db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

		if err = db.PingContext(ctx); err != nil {
			db.Close()
			if attempt == config.RetryAttempts {
				return nil, fmt.Errorf("walletstore: ping after %d attempts: %w", attempt+1, err)
			}
			continue
		}

		return &DB{DB: db, config: config}, nil
	}

	return nil, fmt.Errorf("walletstore: connect: %w", err)
}

// ConnectWithMigrations connects and then applies all pending
// migrations from config.MigrationsPath before returning.
func ConnectWithMigrations(ctx context.Context, config *Config) (*DB, error) {
	db, err := Connect(ctx, config)
	if err != nil {
		return nil, err
	}

	if err := RunMigrations(db.DB, config.MigrationsPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", ErrMigrationFailed, err)
	}

	return db, nil
}

// HealthCheck pings the database with a bounded timeout.
func (db *DB) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("walletstore: health check: %w", err)
	}
	return nil
}

// Stats returns the connection pool statistics.
func (db *DB) Stats() sql.DBStats {
	return db.DB.Stats()
}

// Config returns the store's connection configuration.
func (db *DB) Config() *Config {
	return db.config
}
