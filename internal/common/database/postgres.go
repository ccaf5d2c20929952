// internal/common/database/postgres.go
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"engagement-workers/internal/common/config"
	"engagement-workers/internal/common/errors"

	_ "github.com/lib/pq"
)

// PostgresClient wraps the SQL database connection
type PostgresClient struct {
	DB *sql.DB
}

// NewPostgres creates a new PostgreSQL client
func NewPostgres(cfg config.PostgresConfig) (*PostgresClient, error) {
	dsn := cfg.GetDSN()

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.MaxIdle)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)

	return &PostgresClient{DB: db}, nil
}

// Ping tests the database connection
func (c *PostgresClient) Ping(ctx context.Context) error {
	return c.DB.PingContext(ctx)
}

// Close closes the database connection
func (c *PostgresClient) Close() error {
	if c.DB != nil {
		return c.DB.Close()
	}
	return nil
}

// Querier is the read surface shared by *sql.DB and *sql.Tx. Guard checks
// take a Querier so they can run inside the caller's transaction.
type Querier interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

// Execer extends Querier with writes.
type Execer interface {
	Querier
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// WithinTx runs fn inside a transaction. Every lifecycle transition goes
// through here: the guard check and the write commit or roll back together.
// A transient storage failure earns exactly one automatic retry; all other
// failures roll back and return immediately.
func WithinTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	var lastErr error

	for attempt := 0; attempt < 2; attempt++ {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			lastErr = errors.MapStorageError("begin", err)
			if !errors.IsTransient(lastErr) {
				return lastErr
			}
			continue
		}

		if err := fn(tx); err != nil {
			_ = tx.Rollback()
			lastErr = err
			if !errors.IsTransient(err) {
				return err
			}
			continue
		}

		if err := tx.Commit(); err != nil {
			lastErr = errors.MapStorageError("commit", err)
			if !errors.IsTransient(lastErr) {
				return lastErr
			}
			continue
		}

		return nil
	}

	return lastErr
}
