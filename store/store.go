// Package store provides the durable storage layer.
// All database operations should go through this package.
package store

import (
	"database/sql"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"

	"gridcore/logger"
)

// Store is the unified storage handle backed by SQLite.
type Store struct {
	db *sql.DB

	// Sub-stores (lazy initialization)
	intent   *IntentStore
	trade    *TradeStore
	snapshot *SnapshotStore

	mu sync.Mutex
}

// New opens (or creates) the database at dbPath and initializes tables.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// modernc sqlite serializes writers; a single connection avoids
	// SQLITE_BUSY under concurrent outbox flushes and API reads.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.initTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize table structure: %w", err)
	}

	logger.Infof("[Store] database ready at %s", dbPath)
	return s, nil
}

// NewFromDB wraps an existing connection. Tables must already exist.
func NewFromDB(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) initTables() error {
	if err := s.Intent().initTables(); err != nil {
		return fmt.Errorf("failed to initialize intent tables: %w", err)
	}
	if err := s.Trade().initTables(); err != nil {
		return fmt.Errorf("failed to initialize trade tables: %w", err)
	}
	if err := s.Snapshot().initTables(); err != nil {
		return fmt.Errorf("failed to initialize snapshot tables: %w", err)
	}
	return nil
}

// Intent gets order intent storage.
func (s *Store) Intent() *IntentStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.intent == nil {
		s.intent = &IntentStore{db: s.db}
	}
	return s.intent
}

// Trade gets settled trade storage.
func (s *Store) Trade() *TradeStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.trade == nil {
		s.trade = &TradeStore{db: s.db}
	}
	return s.trade
}

// Snapshot gets engine status snapshot storage.
func (s *Store) Snapshot() *SnapshotStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snapshot == nil {
		s.snapshot = &SnapshotStore{db: s.db}
	}
	return s.snapshot
}

// DB exposes the underlying connection.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
