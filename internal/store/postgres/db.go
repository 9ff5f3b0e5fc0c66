package postgres

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var Schema string

// Storage is the PostgreSQL backend. It satisfies oauth2.Storage; the pool
// is safe for concurrent use.
type Storage struct {
	pool *pgxpool.Pool
}

// New connects to the database URL and verifies the connection.
func New(ctx context.Context, url string) (*Storage, error) {
	poolConfig, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Storage{pool: pool}, nil
}

// Init applies the embedded schema. Every statement is idempotent.
func (s *Storage) Init(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// Healthcheck verifies the database is reachable.
func (s *Storage) Healthcheck(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *Storage) Close() error {
	s.pool.Close()
	return nil
}
