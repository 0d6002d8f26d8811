package grid

import "time"

// Side identifies the direction of an order or fill.
type Side int

const (
	SideBuy Side = iota
	SideSell
)

func (s Side) String() string {
	if s == SideBuy {
		return "buy"
	}
	return "sell"
}

// LevelState tracks the lifecycle of a single grid slot.
// A slot moves Armed -> Triggered -> Filled and back to Armed when the
// engine re-arms it after the opposite side completes.
type LevelState int

const (
	LevelIdle LevelState = iota // no order wanted at this slot
	LevelArmed
	LevelTriggered
	LevelFilled
)

func (s LevelState) String() string {
	switch s {
	case LevelArmed:
		return "armed"
	case LevelTriggered:
		return "triggered"
	case LevelFilled:
		return "filled"
	default:
		return "idle"
	}
}

// MatchType tags how a sell fill was resolved against open buy positions.
type MatchType string

const (
	MatchPairedLevel  MatchType = "paired_level"
	MatchFifoFallback MatchType = "fifo_fallback"
)

// PendingOrder is a grid order the engine wants on the book.
// Owned exclusively by the MatchingEngine.
type PendingOrder struct {
	Side       Side
	LevelIndex int
	Price      float64
	Placed     bool
	Triggered  bool
}

// OpenPosition is one buy fill that has not yet been matched away.
// TargetSellLevel is the level this position must preferentially match
// against; it equals the buy level index (one spacing unit apart).
type OpenPosition struct {
	Size            float64
	BuyPrice        float64
	LevelIndex      int
	TargetSellLevel int
	OpenedAt        time.Time
}

// TradeRecord is one matched (buy position, sell fill) pair. Append-only.
type TradeRecord struct {
	EntryTime     time.Time `json:"entry_time"`
	ExitTime      time.Time `json:"exit_time"`
	EntryPrice    float64   `json:"entry_price"`
	ExitPrice     float64   `json:"exit_price"`
	EntryLevel    int       `json:"entry_level"`
	ExitLevel     int       `json:"exit_level"`
	Size          float64   `json:"size"`
	PnL           float64   `json:"pnl"`
	ReturnPct     float64   `json:"return_pct"`
	HoldingPeriod float64   `json:"holding_period_sec"`
	MatchType     MatchType `json:"match_type"`
	// Shortfall is set on the warning record emitted when a sell exceeded
	// total holdings and had to be truncated.
	Shortfall float64 `json:"shortfall,omitempty"`
}

// OrderIntent is what the engine emits to the execution layer after a
// bar's decision step.
type OrderIntent struct {
	Side       Side    `json:"side"`
	LevelIndex int     `json:"level_index"`
	Price      float64 `json:"price"`
	Size       float64 `json:"size"`
	Reason     string  `json:"reason"`
}

// Snapshot is the read-only status view polled by the dashboard/CLI.
type Snapshot struct {
	Symbol         string  `json:"symbol"`
	Equity         float64 `json:"equity"`
	Holdings       float64 `json:"holdings"`
	CostBasis      float64 `json:"cost_basis"`
	RealizedPnL    float64 `json:"realized_pnl"`
	UnrealizedPnL  float64 `json:"unrealized_pnl"`
	DailyPnL       float64 `json:"daily_pnl"`
	MaxDrawdownPct float64 `json:"max_drawdown_pct"`
	RiskLevel      int     `json:"risk_level"`
	ShutdownReason string  `json:"shutdown_reason,omitempty"`
	InventoryRatio float64 `json:"inventory_ratio"`
	GridEnabled    bool    `json:"grid_enabled"`
	KillSwitch     bool    `json:"kill_switch"`
	PendingBuys    int     `json:"pending_buys"`
	PendingSells   int     `json:"pending_sells"`
	TotalTrades    int     `json:"total_trades"`
	LastPrice      float64 `json:"last_price"`
}
