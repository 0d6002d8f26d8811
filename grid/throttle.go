package grid

// ThrottleInput is the live execution state the overlay inspects. It is
// rebuilt every bar; the throttle cannot be applied in a vectorized
// backtest because daily PnL and ATR ratios are path-dependent.
type ThrottleInput struct {
	Exposure   float64
	DailyPnL   float64
	CurrentATR float64
	AvgATR     float64
}

// ThrottleManager is the execution-time overlay, independent of the
// tiered risk zone. Three checks run with fixed precedence
// Inventory > Profit-lock > Volatility; the first matching rule wins.
type ThrottleManager struct {
	cfg ThrottleConfig
}

func NewThrottleManager(cfg ThrottleConfig) *ThrottleManager {
	return &ThrottleManager{cfg: cfg}
}

// Multiplier returns the size multiplier and the name of the rule that
// fired, or (1, "") when no rule matches.
func (t *ThrottleManager) Multiplier(in ThrottleInput) (float64, string) {
	if t.cfg.MaxUnits > 0 && in.Exposure/t.cfg.MaxUnits >= t.cfg.InventoryThreshold {
		return 0, "inventory"
	}
	if t.cfg.RiskBudget > 0 && in.DailyPnL >= t.cfg.RiskBudget*t.cfg.ProfitTargetPct {
		return t.cfg.ProfitReduction, "profit_lock"
	}
	if in.AvgATR > 0 && in.CurrentATR/in.AvgATR >= t.cfg.VolatilityThreshold {
		return t.cfg.VolatilityReduction, "volatility"
	}
	return 1, ""
}
