package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // registers the "sqlite" database/sql driver
)

//go:embed schema.sql
var Schema string

// Storage is the SQLite backend. A single pooled connection serializes
// writers, which sidesteps SQLITE_BUSY under concurrent requests.
type Storage struct {
	db *sql.DB
}

// New opens the database at path, creating the file and its parent
// directory if needed. The path ":memory:" yields a private in-memory
// database.
func New(ctx context.Context, path string) (*Storage, error) {
	dsn := path
	if path == ":memory:" {
		// A named in-memory database with shared cache survives
		// connection churn in the database/sql pool. The random name
		// keeps separate opens isolated from each other.
		dsn = fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	} else if dir := filepath.Dir(path); dir != "." && dir != "/" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000; PRAGMA journal_mode = WAL;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to configure sqlite database: %w", err)
	}

	return &Storage{db: db}, nil
}

// Init applies the embedded schema. Every statement is idempotent.
func (s *Storage) Init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// Healthcheck verifies the database is reachable.
func (s *Storage) Healthcheck(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	return nil
}

// Close closes the underlying database handle.
func (s *Storage) Close() error {
	return s.db.Close()
}
