package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"gridcore/grid"
)

// SnapshotStore persists per-bar engine status snapshots as JSON rows.
// Only the latest snapshot per symbol is typically read back; history
// stays available for equity-curve plotting.
type SnapshotStore struct {
	db *sql.DB
}

func (s *SnapshotStore) initTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS engine_snapshots (
			key TEXT PRIMARY KEY,
			symbol TEXT NOT NULL,
			payload TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_snapshots_symbol_time ON engine_snapshots(symbol, created_at DESC)`,
	}
	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute SQL: %w", err)
		}
	}
	return nil
}

// Save writes one snapshot under its record key, idempotently.
func (s *SnapshotStore) Save(key string, snap grid.Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO engine_snapshots (key, symbol, payload)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO NOTHING
	`, key, snap.Symbol, string(payload))
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

// Latest returns the most recent snapshot for a symbol, or nil.
func (s *SnapshotStore) Latest(symbol string) (*grid.Snapshot, error) {
	var payload string
	err := s.db.QueryRow(`
		SELECT payload FROM engine_snapshots
		WHERE symbol = ? ORDER BY created_at DESC LIMIT 1
	`, symbol).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot: %w", err)
	}
	snap := &grid.Snapshot{}
	if err := json.Unmarshal([]byte(payload), snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return snap, nil
}

// Count returns the number of persisted snapshots for a symbol.
func (s *SnapshotStore) Count(symbol string) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM engine_snapshots WHERE symbol = ?`, symbol).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count snapshots: %w", err)
	}
	return n, nil
}
