package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"
)

// SQLiteStore is a SQLite-backed Store: a single-file database holding one
// row per (location, node id), keyed on the current fingerprint. Good for
// local development and single-machine batch runs that want a durable,
// queryable cache without standing up a server.
type SQLiteStore struct {
	db       *sql.DB
	mu       sync.RWMutex
	closed   bool
	path     string
	location string
}

// NewSQLiteStore opens (creating if necessary) the database at path. Use
// ":memory:" for a non-durable store scoped to the process.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("flow/store: open sqlite connection: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx := context.Background()
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("flow/store: %s: %w", pragma, err)
		}
	}

	s := &SQLiteStore{db: db, path: path}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("flow/store: create tables: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) createTables(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS flow_values (
			location TEXT NOT NULL,
			node_id INTEGER NOT NULL,
			fingerprint TEXT NOT NULL,
			value BLOB NOT NULL,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (location, node_id)
		)
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create flow_values table: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "CREATE INDEX IF NOT EXISTS idx_flow_values_location ON flow_values(location)"); err != nil {
		return fmt.Errorf("create idx_flow_values_location: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Bind(_ context.Context, location string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosedStore
	}
	s.location = location
	return nil
}

func (s *SQLiteStore) Lookup(ctx context.Context, nodeID int, fingerprint string) ([]byte, bool, error) {
	s.mu.RLock()
	closed, location := s.closed, s.location
	s.mu.RUnlock()
	if closed {
		return nil, false, ErrClosedStore
	}

	var storedFP string
	var value []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT fingerprint, value FROM flow_values WHERE location = ? AND node_id = ?`,
		location, nodeID,
	).Scan(&storedFP, &value)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("flow/store: lookup node %d: %w", nodeID, err)
	}
	if storedFP != fingerprint {
		return nil, false, nil
	}
	return value, true, nil
}

func (s *SQLiteStore) Store(ctx context.Context, nodeID int, fingerprint string, value []byte) error {
	s.mu.RLock()
	closed, location := s.closed, s.location
	s.mu.RUnlock()
	if closed {
		return ErrClosedStore
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO flow_values (location, node_id, fingerprint, value)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(location, node_id) DO UPDATE SET
			fingerprint = excluded.fingerprint,
			value = excluded.value,
			updated_at = CURRENT_TIMESTAMP
	`, location, nodeID, fingerprint, value)
	if err != nil {
		return fmt.Errorf("flow/store: store node %d: %w", nodeID, err)
	}
	return nil
}

func (s *SQLiteStore) Forget(ctx context.Context, nodeID int) error {
	s.mu.RLock()
	closed, location := s.closed, s.location
	s.mu.RUnlock()
	if closed {
		return ErrClosedStore
	}

	_, err := s.db.ExecContext(ctx, `DELETE FROM flow_values WHERE location = ? AND node_id = ?`, location, nodeID)
	if err != nil {
		return fmt.Errorf("flow/store: forget node %d: %w", nodeID, err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// Ping verifies the underlying connection is alive.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Path returns the database file path this store was opened with.
func (s *SQLiteStore) Path() string { return s.path }
