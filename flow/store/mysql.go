package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// MySQLStore is a MySQL/MariaDB-backed Store, for batch runs that want a
// shared, durable cache reachable from multiple machines (e.g. a fleet of
// workers processing disjoint item ranges against the same node versions).
//
// DSN format: [username[:password]@][protocol[(address)]]/dbname[?params].
type MySQLStore struct {
	db       *sql.DB
	mu       sync.RWMutex
	closed   bool
	location string
}

// NewMySQLStore opens a connection pool against dsn and ensures the
// flow_values table exists.
func NewMySQLStore(dsn string) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("flow/store: open mysql connection: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("flow/store: ping mysql: %w", err)
	}

	s := &MySQLStore{db: db}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("flow/store: create tables: %w", err)
	}
	return s, nil
}

func (s *MySQLStore) createTables(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS flow_values (
			location VARCHAR(512) NOT NULL,
			node_id INT NOT NULL,
			fingerprint VARCHAR(128) NOT NULL,
			value LONGBLOB NOT NULL,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
			PRIMARY KEY (location, node_id)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create flow_values table: %w", err)
	}
	return nil
}

func (s *MySQLStore) Bind(_ context.Context, location string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosedStore
	}
	s.location = location
	return nil
}

func (s *MySQLStore) Lookup(ctx context.Context, nodeID int, fingerprint string) ([]byte, bool, error) {
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

func (s *MySQLStore) Store(ctx context.Context, nodeID int, fingerprint string, value []byte) error {
	s.mu.RLock()
	closed, location := s.closed, s.location
	s.mu.RUnlock()
	if closed {
		return ErrClosedStore
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO flow_values (location, node_id, fingerprint, value)
		VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			fingerprint = VALUES(fingerprint),
			value = VALUES(value)
	`, location, nodeID, fingerprint, value)
	if err != nil {
		return fmt.Errorf("flow/store: store node %d: %w", nodeID, err)
	}
	return nil
}

func (s *MySQLStore) Forget(ctx context.Context, nodeID int) error {
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

func (s *MySQLStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// Ping verifies the underlying connection is alive.
func (s *MySQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
