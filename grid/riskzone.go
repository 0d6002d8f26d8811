package grid

import (
	"fmt"
	"time"
)

// RiskLevel is the tiered de-risking state. Levels 1-3 progressively
// throttle buys and amplify sells; Shutdown stops order generation.
type RiskLevel int

const (
	RiskNormal RiskLevel = iota
	RiskLevel1
	RiskLevel2
	RiskLevel3
	RiskShutdown
)

func (l RiskLevel) String() string {
	switch l {
	case RiskLevel1:
		return "level1"
	case RiskLevel2:
		return "level2"
	case RiskLevel3:
		return "level3"
	case RiskShutdown:
		return "shutdown"
	default:
		return "normal"
	}
}

// RiskInput is everything the state machine observes for one bar.
type RiskInput struct {
	Price   float64
	Support float64
	ATR     float64
	Cushion float64

	UnrealizedPnL float64
	RealizedPnL   float64
	Equity        float64

	InventoryNotional float64
	Capacity          float64
	InventoryRatio    float64

	Now time.Time
}

// RiskZoneState is the published state, consumed by the sizing pipeline
// and the orchestrator.
type RiskZoneState struct {
	Level          RiskLevel
	ShutdownReason string
	ZoneEnteredAt  time.Time
	GridEnabled    bool
}

// RiskZoneStateMachine re-evaluates every bar. There is no sticky lock:
// any level can relax the next bar, except Level 2 which additionally
// requires the Level-1 condition to have persisted past the dwell timer.
// Recovery from Shutdown is automatic once no condition holds.
type RiskZoneStateMachine struct {
	cfg   RiskZoneConfig
	state RiskZoneState

	// zoneSince is when the Level-1 condition first held continuously.
	zoneSince time.Time
}

func NewRiskZoneStateMachine(cfg RiskZoneConfig) *RiskZoneStateMachine {
	return &RiskZoneStateMachine{
		cfg:   cfg,
		state: RiskZoneState{Level: RiskNormal, GridEnabled: true},
	}
}

// Evaluate advances the state machine by one bar and returns the new state.
func (m *RiskZoneStateMachine) Evaluate(in RiskInput) RiskZoneState {
	prev := m.state

	if reason := m.shutdownReason(in); reason != "" {
		m.state = RiskZoneState{
			Level:          RiskShutdown,
			ShutdownReason: reason,
			ZoneEnteredAt:  prev.ZoneEnteredAt,
			GridEnabled:    false,
		}
		if prev.Level != RiskShutdown {
			m.state.ZoneEnteredAt = in.Now
		}
		return m.state
	}

	level := RiskNormal
	inZone := in.Price < in.Support+in.Cushion
	if inZone {
		if m.zoneSince.IsZero() {
			m.zoneSince = in.Now
		}
		level = RiskLevel1
		if in.Now.Sub(m.zoneSince) > m.cfg.Level2Dwell {
			level = RiskLevel2
		}
		if in.Price < in.Support-2*in.ATR {
			level = RiskLevel3
		}
	} else {
		m.zoneSince = time.Time{}
	}

	m.state = RiskZoneState{
		Level:       level,
		GridEnabled: true,
	}
	if level != RiskNormal {
		m.state.ZoneEnteredAt = m.zoneSince
	}
	return m.state
}

// shutdownReason returns a non-empty reason string when any shutdown
// condition holds. Banked realized gains raise the loss threshold before
// shutdown (profit buffer).
func (m *RiskZoneStateMachine) shutdownReason(in RiskInput) string {
	if in.Price < in.Support-3*in.ATR {
		return fmt.Sprintf("price %.2f below support-3*ATR (%.2f)", in.Price, in.Support-3*in.ATR)
	}
	if in.Equity > 0 {
		adjusted := m.cfg.MaxLossPct + (maxFloat(0, in.RealizedPnL)*m.cfg.ProfitBufferRatio)/in.Equity
		if in.UnrealizedPnL < -adjusted*in.Equity {
			return fmt.Sprintf("unrealized pnl %.2f breached %.1f%% of equity", in.UnrealizedPnL, adjusted*100)
		}
	}
	if in.Capacity > 0 && in.InventoryNotional > m.cfg.MaxInventoryPct*in.Capacity {
		return fmt.Sprintf("inventory notional %.2f above %.0f%% of capacity", in.InventoryNotional, m.cfg.MaxInventoryPct*100)
	}
	return ""
}

// State returns the last evaluated state.
func (m *RiskZoneStateMachine) State() RiskZoneState {
	return m.state
}

// Multipliers returns the buy/sell size multipliers for the current
// level. Level 1 takes an additional buy cut when inventory is heavy.
func (m *RiskZoneStateMachine) Multipliers(inventoryRatio float64) (buy, sell float64) {
	switch m.state.Level {
	case RiskLevel1:
		buy, sell = 0.20, 3.0
		if inventoryRatio > m.cfg.HighInvRatio {
			buy *= 1 - m.cfg.HighInvBuyCut
		}
	case RiskLevel2:
		buy, sell = 0.10, 4.0
	case RiskLevel3:
		buy, sell = 0.05, 5.0
	case RiskShutdown:
		buy, sell = 0, 0
	default:
		buy, sell = 1, 1
	}
	return buy, sell
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
