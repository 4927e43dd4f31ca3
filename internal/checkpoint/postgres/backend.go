// Package postgres stores the checkpoint record as one row of a Postgres table.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/paginated-scraper/internal/checkpoint"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

const (
	defaultTable = "scraper_checkpoints"
	defaultKey   = "default"
)

// Config controls the Postgres connection pool and the row used for the record.
type Config struct {
	DSN             string
	Table           string
	Key             string
	MaxConns        int32
	MaxConnLifetime time.Duration
}

type querier interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// Backend upserts the record into a keyed row. A single statement replaces
// the previous value, so readers never observe a partial record.
type Backend struct {
	pool  querier
	table string
	key   string
}

// New connects to Postgres and ensures the checkpoint table exists.
func New(ctx context.Context, cfg Config) (*Backend, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("checkpoint.postgres_dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	b, err := NewWithPool(pool, cfg.Table, cfg.Key)
	if err != nil {
		pool.Close()
		return nil, err
	}
	if err := b.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return b, nil
}

// NewWithPool constructs a backend from an existing pool (primarily for testing).
func NewWithPool(pool querier, table, key string) (*Backend, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	if key == "" {
		key = defaultKey
	}
	return &Backend{pool: pool, table: table, key: key}, nil
}

// EnsureSchema creates the checkpoint table when missing.
func (b *Backend) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	checkpoint_key TEXT PRIMARY KEY,
	record JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`, b.table)
	if _, err := b.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create checkpoint table: %w", err)
	}
	return nil
}

// Read loads the record for the configured key.
func (b *Backend) Read(ctx context.Context) ([]byte, error) {
	query := fmt.Sprintf(`SELECT record FROM %s WHERE checkpoint_key = $1`, b.table)
	var data []byte
	err := b.pool.QueryRow(ctx, query, b.key).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, checkpoint.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select checkpoint: %w", err)
	}
	return data, nil
}

// Write upserts the record.
func (b *Backend) Write(ctx context.Context, data []byte) error {
	query := fmt.Sprintf(`
INSERT INTO %s (checkpoint_key, record, updated_at)
VALUES ($1, $2, now())
ON CONFLICT (checkpoint_key) DO UPDATE
SET record = EXCLUDED.record, updated_at = EXCLUDED.updated_at`, b.table)
	if _, err := b.pool.Exec(ctx, query, b.key, data); err != nil {
		return fmt.Errorf("upsert checkpoint: %w", err)
	}
	return nil
}

// Delete removes the row for the configured key.
func (b *Backend) Delete(ctx context.Context) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE checkpoint_key = $1`, b.table)
	if _, err := b.pool.Exec(ctx, query, b.key); err != nil {
		return fmt.Errorf("delete checkpoint: %w", err)
	}
	return nil
}

// Close releases the pool.
func (b *Backend) Close() error {
	if b == nil || b.pool == nil {
		return nil
	}
	b.pool.Close()
	return nil
}

// Location names the table and key.
func (b *Backend) Location() string {
	return fmt.Sprintf("postgres:%s/%s", b.table, b.key)
}
