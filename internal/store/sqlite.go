// ABOUTME: SQLite implementation of the Storage interface using modernc.org/sqlite
// ABOUTME: Keeps one row per (origin, key) with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"
)

// DefaultOrigin is used when no origin is configured.
const DefaultOrigin = "local"

// SQLiteStore implements the Storage interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	origin string
	logger *slog.Logger
	closed atomic.Bool
}

// NewSQLiteStore creates a new SQLite store at the given path, scoped to origin.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path, origin string) (*SQLiteStore, error) {
	if origin == "" {
		origin = DefaultOrigin
	}
	logger := slog.Default().With("component", "store", "origin", origin)

	// Ensure parent directory exists
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if path == ":memory:" {
		// Every pooled connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	}

	// Enable WAL mode so several processes can share one origin file
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		origin: origin,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the storage table if it doesn't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS local_storage (
			origin     TEXT NOT NULL,
			key        TEXT NOT NULL,
			value      TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (origin, key)
		);
	`
	_, err := s.db.Exec(schema)
	return err
}

// GetItem retrieves the value stored under key.
// Returns ErrNotFound if the key has no value for this origin.
func (s *SQLiteStore) GetItem(ctx context.Context, key string) (string, error) {
	if s.closed.Load() {
		return "", ErrUnavailable
	}
	query := `SELECT value FROM local_storage WHERE origin = ? AND key = ?`

	var value string
	err := s.db.QueryRowContext(ctx, query, s.origin, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("querying key %q: %w", key, err)
	}

	return value, nil
}

// SetItem saves or replaces the value stored under key.
func (s *SQLiteStore) SetItem(ctx context.Context, key, value string) error {
	if s.closed.Load() {
		return ErrUnavailable
	}
	query := `
		INSERT INTO local_storage (origin, key, value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(origin, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`

	_, err := s.db.ExecContext(ctx, query,
		s.origin,
		key,
		value,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("saving key %q: %w", key, err)
	}

	s.logger.Debug("saved item", "key", key, "size", len(value))
	return nil
}

// RemoveItem deletes the value stored under key.
func (s *SQLiteStore) RemoveItem(ctx context.Context, key string) error {
	if s.closed.Load() {
		return ErrUnavailable
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM local_storage WHERE origin = ? AND key = ?`, s.origin, key)
	if err != nil {
		return fmt.Errorf("removing key %q: %w", key, err)
	}
	return nil
}

// Keys lists all keys stored for this origin.
func (s *SQLiteStore) Keys(ctx context.Context) ([]string, error) {
	if s.closed.Load() {
		return nil, ErrUnavailable
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT key FROM local_storage WHERE origin = ? ORDER BY key ASC
	`, s.origin)
	if err != nil {
		return nil, fmt.Errorf("listing keys: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// Origin returns the origin this store is scoped to.
func (s *SQLiteStore) Origin() string {
	return s.origin
}

// Close closes the database connection. Later operations return
// ErrUnavailable; closing twice is a no-op.
func (s *SQLiteStore) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.db.Close()
}
