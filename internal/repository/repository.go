// Package repository stores shortlinks, parameter sets, the target registry
// and click events. Repository is the PostgreSQL Store; package sqlite holds
// the embedded one. Both report the same sentinel errors.
package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Pool sizing. Redirects hold a connection for one indexed lookup and one
// counter update, so a small pool serves a busy site.
const (
	maxConns = 10
	minConns = 2
)

// Repository is the PostgreSQL Store.
type Repository struct {
	pool *pgxpool.Pool
}

var _ Store = (*Repository)(nil)

// New connects to databaseURL and verifies the connection.
// The schema comes from migrations/.
func New(ctx context.Context, databaseURL string) (*Repository, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}
	cfg.MaxConns = maxConns
	cfg.MinConns = minConns

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Repository{pool: pool}, nil
}

// Ping reports whether the database is reachable. Used by /readyz.
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close releases the pool.
func (r *Repository) Close() {
	r.pool.Close()
}

// Pool exposes the pool to integration tests that reset the schema.
func (r *Repository) Pool() *pgxpool.Pool {
	return r.pool
}
