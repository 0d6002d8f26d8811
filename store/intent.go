package store

import (
	"database/sql"
	"fmt"
	"time"

	"gridcore/grid"
)

// IntentStore persists emitted order intents. Writes are keyed so an
// outbox replay of the same record is a no-op.
type IntentStore struct {
	db *sql.DB
}

// IntentRow is one persisted order intent.
type IntentRow struct {
	Key        string    `json:"key"`
	Symbol     string    `json:"symbol"`
	Side       string    `json:"side"`
	LevelIndex int       `json:"level_index"`
	Price      float64   `json:"price"`
	Size       float64   `json:"size"`
	Reason     string    `json:"reason"`
	CreatedAt  time.Time `json:"created_at"`
}

func (s *IntentStore) initTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS order_intents (
			key TEXT PRIMARY KEY,
			symbol TEXT NOT NULL,
			side TEXT NOT NULL,
			level_index INTEGER NOT NULL,
			price REAL NOT NULL,
			size REAL NOT NULL,
			reason TEXT DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_intents_symbol_time ON order_intents(symbol, created_at DESC)`,
	}
	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute SQL: %w", err)
		}
	}
	return nil
}

// Save writes one intent under its record key. Replaying a key that was
// already written changes nothing.
func (s *IntentStore) Save(key, symbol string, intent grid.OrderIntent) error {
	_, err := s.db.Exec(`
		INSERT INTO order_intents (key, symbol, side, level_index, price, size, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO NOTHING
	`, key, symbol, intent.Side.String(), intent.LevelIndex, intent.Price, intent.Size, intent.Reason)
	if err != nil {
		return fmt.Errorf("failed to save order intent: %w", err)
	}
	return nil
}

// List returns the most recent intents for a symbol, newest first.
func (s *IntentStore) List(symbol string, limit int) ([]*IntentRow, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(`
		SELECT key, symbol, side, level_index, price, size, reason, created_at
		FROM order_intents WHERE symbol = ?
		ORDER BY created_at DESC LIMIT ?
	`, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query order intents: %w", err)
	}
	defer rows.Close()

	var out []*IntentRow
	for rows.Next() {
		r := &IntentRow{}
		var created string
		if err := rows.Scan(&r.Key, &r.Symbol, &r.Side, &r.LevelIndex, &r.Price, &r.Size, &r.Reason, &created); err != nil {
			return nil, fmt.Errorf("failed to scan order intent: %w", err)
		}
		r.CreatedAt = parseStoredTime(created)
		out = append(out, r)
	}
	return out, rows.Err()
}

// parseStoredTime accepts both RFC3339 and SQLite's default layout.
func parseStoredTime(v string) time.Time {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t
	}
	t, _ := time.Parse("2006-01-02 15:04:05", v)
	return t.UTC()
}
