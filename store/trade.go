package store

import (
	"database/sql"
	"fmt"
	"time"

	"gridcore/grid"
)

// TradeStore persists settled grid trades (matched buy/sell pairs).
type TradeStore struct {
	db *sql.DB
}

// TradeRow is one persisted settled trade.
type TradeRow struct {
	Key        string    `json:"key"`
	Symbol     string    `json:"symbol"`
	EntryTime  time.Time `json:"entry_time"`
	ExitTime   time.Time `json:"exit_time"`
	EntryPrice float64   `json:"entry_price"`
	ExitPrice  float64   `json:"exit_price"`
	EntryLevel int       `json:"entry_level"`
	ExitLevel  int       `json:"exit_level"`
	Size       float64   `json:"size"`
	PnL        float64   `json:"pnl"`
	ReturnPct  float64   `json:"return_pct"`
	MatchType  string    `json:"match_type"`
	Shortfall  float64   `json:"shortfall"`
}

func (s *TradeStore) initTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS grid_trades (
			key TEXT PRIMARY KEY,
			symbol TEXT NOT NULL,
			entry_time DATETIME NOT NULL,
			exit_time DATETIME NOT NULL,
			entry_price REAL NOT NULL,
			exit_price REAL NOT NULL,
			entry_level INTEGER NOT NULL,
			exit_level INTEGER NOT NULL,
			size REAL NOT NULL,
			pnl REAL NOT NULL,
			return_pct REAL NOT NULL,
			match_type TEXT NOT NULL,
			shortfall REAL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_symbol_exit ON grid_trades(symbol, exit_time DESC)`,
	}
	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute SQL: %w", err)
		}
	}
	return nil
}

// Save writes one settled trade under its record key, idempotently.
func (s *TradeStore) Save(key, symbol string, tr grid.TradeRecord) error {
	_, err := s.db.Exec(`
		INSERT INTO grid_trades (
			key, symbol, entry_time, exit_time, entry_price, exit_price,
			entry_level, exit_level, size, pnl, return_pct, match_type, shortfall
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO NOTHING
	`,
		key, symbol,
		tr.EntryTime.UTC().Format(time.RFC3339),
		tr.ExitTime.UTC().Format(time.RFC3339),
		tr.EntryPrice, tr.ExitPrice,
		tr.EntryLevel, tr.ExitLevel,
		tr.Size, tr.PnL, tr.ReturnPct,
		string(tr.MatchType), tr.Shortfall,
	)
	if err != nil {
		return fmt.Errorf("failed to save trade: %w", err)
	}
	return nil
}

// List returns the most recent trades for a symbol, newest exit first.
func (s *TradeStore) List(symbol string, limit int) ([]*TradeRow, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(`
		SELECT key, symbol, entry_time, exit_time, entry_price, exit_price,
			entry_level, exit_level, size, pnl, return_pct, match_type, shortfall
		FROM grid_trades WHERE symbol = ?
		ORDER BY exit_time DESC LIMIT ?
	`, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	var out []*TradeRow
	for rows.Next() {
		r := &TradeRow{}
		var entry, exit string
		if err := rows.Scan(&r.Key, &r.Symbol, &entry, &exit, &r.EntryPrice, &r.ExitPrice,
			&r.EntryLevel, &r.ExitLevel, &r.Size, &r.PnL, &r.ReturnPct, &r.MatchType, &r.Shortfall); err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		r.EntryTime = parseStoredTime(entry)
		r.ExitTime = parseStoredTime(exit)
		out = append(out, r)
	}
	return out, rows.Err()
}

// TotalPnL sums realized PnL over all persisted trades for a symbol.
func (s *TradeStore) TotalPnL(symbol string) (float64, error) {
	var total sql.NullFloat64
	err := s.db.QueryRow(`SELECT SUM(pnl) FROM grid_trades WHERE symbol = ?`, symbol).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to sum trade pnl: %w", err)
	}
	return total.Float64, nil
}
