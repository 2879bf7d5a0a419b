// Package postgres stores vectors (pgvector), bookkeeping, the search log,
// sweep schedules and advisory locks in one PostgreSQL database.
package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	_ "embed"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/lib/pq"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
)

//go:embed schema.sql
var schema string

// DB is the pool shared by every store in this package.
type DB struct {
	*sql.DB
}

// Config describes the pool. Zero values fall back to the defaults below.
type Config struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration

	// ConnectAttempts bounds the startup ping; the database container is
	// often still booting when the service starts
	ConnectAttempts int
	RetryDelay      time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxOpenConns <= 0 {
		c.MaxOpenConns = 25
	}
	if c.MaxIdleConns <= 0 {
		c.MaxIdleConns = 5
	}
	if c.ConnMaxLifetime <= 0 {
		c.ConnMaxLifetime = 5 * time.Minute
	}
	if c.ConnMaxIdleTime <= 0 {
		c.ConnMaxIdleTime = time.Minute
	}
	if c.ConnectAttempts <= 0 {
		c.ConnectAttempts = 5
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = time.Second
	}
	return c
}

// Connect opens the pool and waits until the server answers.
func Connect(ctx context.Context, cfg Config) (*DB, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("%w: database URL is empty", domain.ErrConfiguration)
	}
	cfg = cfg.withDefaults()

	pool, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConfiguration, err)
	}
	pool.SetMaxOpenConns(cfg.MaxOpenConns)
	pool.SetMaxIdleConns(cfg.MaxIdleConns)
	pool.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	pool.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	for attempt := 1; ; attempt++ {
		err = pool.PingContext(ctx)
		if err == nil {
			return &DB{DB: pool}, nil
		}
		if attempt >= cfg.ConnectAttempts || ctx.Err() != nil {
			break
		}
		select {
		case <-ctx.Done():
		case <-time.After(cfg.RetryDelay * time.Duration(attempt)):
		}
	}
	pool.Close()
	return nil, fmt.Errorf("%w: postgres unreachable after %d attempts: %v", domain.ErrIndexUnavailable, cfg.ConnectAttempts, err)
}

// InitSchema applies schema.sql. Concurrent starts serialise on a
// transaction-scoped advisory lock so CREATE ... IF NOT EXISTS never races.
func (db *DB) InitSchema(ctx context.Context) error {
	return db.Transaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, hashLockName("schema")); err != nil {
			return unavailable(err)
		}
		if _, err := tx.ExecContext(ctx, schema); err != nil {
			return fmt.Errorf("apply schema: %w", unavailable(err))
		}
		return nil
	})
}

func (db *DB) Ping(ctx context.Context) error {
	return unavailable(db.PingContext(ctx))
}

// Transaction runs fn in a transaction, committing only when fn succeeds.
func (db *DB) Transaction(ctx context.Context, fn func(*sql.Tx) error) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable(err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				err = errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
			}
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return unavailable(err)
	}
	return nil
}

// unavailable wraps connection-level failures in domain.ErrIndexUnavailable.
// Constraint violations and SQL errors pass through unchanged.
func unavailable(err error) error {
	if err == nil || errors.Is(err, domain.ErrIndexUnavailable) {
		return err
	}
	if isConnectionError(err) {
		return fmt.Errorf("%w: %v", domain.ErrIndexUnavailable, err)
	}
	return err
}

func isConnectionError(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		// 08: connection exception, 57: operator intervention
		switch pqErr.Code.Class() {
		case "08", "57":
			return true
		}
		return false
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
