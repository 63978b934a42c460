// Package store owns the embedded SQLite database behind every repository.
// The handle is opened lazily exactly once per process and shared; all
// mutations go through the repositories in internal/repo.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/lectorium/lectorium/internal/store/migrations"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

// Store wraps the shared database handle.
type Store struct {
	db *sql.DB
}

// DB exposes the underlying handle for the repositories.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// RunMigrations applies the embedded goose migrations.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	return goose.UpContext(ctx, db, ".")
}

// Open opens (or creates) the database at dsn and migrates it to the latest
// schema version.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	// modernc sqlite serializes writers; a single connection avoids
	// SQLITE_BUSY between concurrent transactional scopes.
	db.SetMaxOpenConns(1)

	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Store{db: db}, nil
}

var (
	sharedMu  sync.Mutex
	shared    *Store
	sharedErr error
	sharedKey string
)

// Shared returns the process-wide store handle, opening it on first use.
// Concurrent first-use never opens the store twice.
func Shared(ctx context.Context, dsn string) (*Store, error) {
	sharedMu.Lock()
	defer sharedMu.Unlock()

	if shared != nil && sharedKey == dsn {
		return shared, nil
	}
	if shared == nil {
		shared, sharedErr = Open(ctx, dsn)
		if sharedErr != nil {
			shared = nil
			return nil, sharedErr
		}
		sharedKey = dsn
		return shared, nil
	}
	return nil, fmt.Errorf("shared store already open at %s", sharedKey)
}
