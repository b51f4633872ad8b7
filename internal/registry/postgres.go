package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore keeps registry keys in a single table.
//
// Schema:
//
//	CREATE TABLE scorelens_registry (
//	  key        TEXT PRIMARY KEY,
//	  value      BYTEA NOT NULL,
//	  updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
//	);
type PostgresStore struct {
	pool *pgxpool.Pool
}

const postgresDDL = `
CREATE TABLE IF NOT EXISTS scorelens_registry (
  key        TEXT PRIMARY KEY,
  value      BYTEA NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// NewPostgresStore connects, pings and creates the table if missing.
func NewPostgresStore(connStr string) (*PostgresStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresDDL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create registry table: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Create relies on the primary key and ON CONFLICT DO NOTHING for first-write-wins.
func (p *PostgresStore) Create(ctx context.Context, key string, data []byte) error {
	if !validKey(key) {
		return fmt.Errorf("registry: invalid key %q", key)
	}
	tag, err := p.pool.Exec(ctx, `
		INSERT INTO scorelens_registry (key, value)
		VALUES ($1, $2)
		ON CONFLICT (key) DO NOTHING
	`, key, data)
	if err != nil {
		return fmt.Errorf("postgres insert failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrExists
	}
	return nil
}

func (p *PostgresStore) Put(ctx context.Context, key string, data []byte) error {
	if !validKey(key) {
		return fmt.Errorf("registry: invalid key %q", key)
	}
	_, err := p.pool.Exec(ctx, `
		INSERT INTO scorelens_registry (key, value)
		VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
	`, key, data)
	if err != nil {
		return fmt.Errorf("postgres upsert failed: %w", err)
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := p.pool.QueryRow(ctx, `SELECT value FROM scorelens_registry WHERE key = $1`, key).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres query failed: %w", err)
	}
	return data, nil
}

func (p *PostgresStore) List(ctx context.Context, prefix string) ([]string, error) {
	rows, err := p.pool.Query(ctx, `SELECT key FROM scorelens_registry WHERE starts_with(key, $1)`, prefix)
	if err != nil {
		return nil, fmt.Errorf("postgres query failed: %w", err)
	}
	keys, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("postgres scan failed: %w", err)
	}
	return keys, nil
}

func (p *PostgresStore) Close() error {
	p.pool.Close()
	return nil
}
