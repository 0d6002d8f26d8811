package grid

import "time"

// Config carries every threshold and multiplier the engine consumes.
// It is immutable input for a given run: changes require re-initialization,
// never hot-patching.
type Config struct {
	Symbol string `json:"symbol"`

	// Trader-specified range.
	Support    float64 `json:"support"`
	Resistance float64 `json:"resistance"`

	// Account sizing.
	Equity      float64 `json:"equity"`
	Investment  float64 `json:"investment"` // budget allocated across levels
	Leverage    float64 `json:"leverage"`
	CapacityPct float64 `json:"capacity_pct"` // capacity = equity*leverage*capacity_pct

	// Level generation.
	CushionMult    float64 `json:"cushion_mult"`    // ATR cushion multiplier
	MinReturn      float64 `json:"min_return"`      // minimum per-cycle return
	MakerFee       float64 `json:"maker_fee"`       // one-side maker fee
	VolatilityK    float64 `json:"volatility_k"`    // spacing widening per unit of excess ATR
	SpacingMult    float64 `json:"spacing_mult"`    // must be >= 1.0 (cost coverage)
	SpacingCeiling float64 `json:"spacing_ceiling"` // hard spacing cap
	LayersBuy      int     `json:"layers_buy"`
	LayersSell     int     `json:"layers_sell"`

	// Weight allocation.
	WeightSlope float64 `json:"weight_slope"` // k in raw(i) = 1 + k*(i-1)
	Regime      Regime  `json:"regime"`

	Trend    TrendFactorConfig     `json:"trend"`
	Breakout BreakoutFactorConfig  `json:"breakout"`
	Funding  FundingFactorConfig   `json:"funding"`
	RangePos RangeFactorConfig     `json:"range_position"`
	VolBoost VolRegimeFactorConfig `json:"vol_regime"`
	Skew     InventorySkewConfig   `json:"inventory_skew"`
	Risk     RiskZoneConfig        `json:"risk_zone"`
	Throttle ThrottleConfig        `json:"throttle"`
}

// TrendFactorConfig drives the trend/mean-reversion factor (buy side only).
type TrendFactorConfig struct {
	BlockThreshold  float64 `json:"block_threshold"` // hard-block buy at trend <= -threshold
	DampenK         float64 `json:"dampen_k"`
	Floor           float64 `json:"floor"`
	MeanRevStrength float64 `json:"mean_rev_strength"` // scales the dampened multiplier
}

// BreakoutFactorConfig drives the breakout-risk factor (buy side only).
type BreakoutFactorConfig struct {
	BlockThreshold float64 `json:"block_threshold"` // hard-block at score >= threshold
	Floor          float64 `json:"floor"`
}

// FundingFactorConfig drives the time-gated funding-rate factor.
type FundingFactorConfig struct {
	WindowMinutes float64 `json:"window_minutes"` // active window around settlement
	Reference     float64 `json:"reference"`      // funding rate giving unit effect
	BuyDampenK    float64 `json:"buy_dampen_k"`
	SellAmplifyK  float64 `json:"sell_amplify_k"`
	BuyFloor      float64 `json:"buy_floor"`
	SellCap       float64 `json:"sell_cap"`
	BuyBlockAbove float64 `json:"buy_block_above"` // 0 disables the hard block
}

// RangeFactorConfig drives the top-of-range asymmetry factor.
type RangeFactorConfig struct {
	BandStart   float64 `json:"band_start"` // range position where the band begins
	BuyDampenK  float64 `json:"buy_dampen_k"`
	SellBoostK  float64 `json:"sell_boost_k"`
	BuyFloor    float64 `json:"buy_floor"`
	SellCeiling float64 `json:"sell_ceiling"`
}

// VolRegimeFactorConfig drives the extreme-volatility de-risking factor.
type VolRegimeFactorConfig struct {
	ScoreThreshold float64 `json:"score_threshold"` // volatility percentile 0..100
	SellBoostK     float64 `json:"sell_boost_k"`
	SellCeiling    float64 `json:"sell_ceiling"`
}

// InventorySkewConfig drives the buy-side inventory dampening factor.
type InventorySkewConfig struct {
	Threshold float64 `json:"threshold"` // notional/capacity ratio that hard-blocks buys
	SkewK     float64 `json:"skew_k"`
}

// RiskZoneConfig drives the tiered risk zone state machine.
type RiskZoneConfig struct {
	Level2Dwell       time.Duration `json:"level2_dwell"`
	MaxLossPct        float64       `json:"max_loss_pct"`         // of equity
	ProfitBufferRatio float64       `json:"profit_buffer_ratio"`  // banked-gain offset
	MaxInventoryPct   float64       `json:"max_inventory_pct"`    // of capacity
	HighInvBuyCut     float64       `json:"high_inv_buy_cut"`     // extra L1 buy cut ratio
	HighInvRatio      float64       `json:"high_inv_ratio"`       // inventory ratio arming the cut
}

// ThrottleConfig drives the execution-time overlay, distinct from the
// tiered risk zone.
type ThrottleConfig struct {
	InventoryThreshold  float64 `json:"inventory_threshold"` // exposure/max_units
	MaxUnits            float64 `json:"max_units"`
	ProfitTargetPct     float64 `json:"profit_target_pct"` // of risk budget
	ProfitReduction     float64 `json:"profit_reduction"`
	RiskBudget          float64 `json:"risk_budget"`
	VolatilityThreshold float64 `json:"volatility_threshold"` // ATR / avg ATR
	VolatilityReduction float64 `json:"volatility_reduction"`
}

// SetDefaults fills zero-valued tunables with conservative defaults.
func (c *Config) SetDefaults() {
	if c.CapacityPct <= 0 {
		c.CapacityPct = 0.7
	}
	if c.Leverage <= 0 {
		c.Leverage = 1
	}
	if c.Investment <= 0 {
		c.Investment = c.Equity
	}
	if c.CushionMult <= 0 {
		c.CushionMult = 1.5
	}
	if c.SpacingMult <= 0 {
		c.SpacingMult = 1.0
	}
	if c.SpacingCeiling <= 0 {
		c.SpacingCeiling = 0.05
	}
	if c.LayersBuy <= 0 {
		c.LayersBuy = 40
	}
	if c.LayersSell <= 0 {
		c.LayersSell = c.LayersBuy
	}
	if c.WeightSlope < 0 {
		c.WeightSlope = 0
	}
	if c.Regime == "" {
		c.Regime = RegimeNeutralRange
	}
	if c.Trend.BlockThreshold <= 0 {
		c.Trend.BlockThreshold = 0.8
	}
	if c.Trend.DampenK <= 0 {
		c.Trend.DampenK = 0.6
	}
	if c.Trend.Floor <= 0 {
		c.Trend.Floor = 0.2
	}
	if c.Trend.MeanRevStrength <= 0 {
		c.Trend.MeanRevStrength = 1.0
	}
	if c.Breakout.BlockThreshold <= 0 {
		c.Breakout.BlockThreshold = 0.85
	}
	if c.Breakout.Floor <= 0 {
		c.Breakout.Floor = 0.25
	}
	if c.Funding.WindowMinutes <= 0 {
		c.Funding.WindowMinutes = 30
	}
	if c.Funding.Reference <= 0 {
		c.Funding.Reference = 0.0001 // 1 bp per settlement
	}
	if c.Funding.BuyDampenK <= 0 {
		c.Funding.BuyDampenK = 0.3
	}
	if c.Funding.SellAmplifyK <= 0 {
		c.Funding.SellAmplifyK = 0.2
	}
	if c.Funding.BuyFloor <= 0 {
		c.Funding.BuyFloor = 0.3
	}
	if c.Funding.SellCap <= 0 {
		c.Funding.SellCap = 1.5
	}
	if c.RangePos.BandStart <= 0 {
		c.RangePos.BandStart = 0.8
	}
	if c.RangePos.BuyDampenK <= 0 {
		c.RangePos.BuyDampenK = 0.7
	}
	if c.RangePos.SellBoostK <= 0 {
		c.RangePos.SellBoostK = 0.5
	}
	if c.RangePos.BuyFloor <= 0 {
		c.RangePos.BuyFloor = 0.3
	}
	if c.RangePos.SellCeiling <= 0 {
		c.RangePos.SellCeiling = 1.5
	}
	if c.VolBoost.ScoreThreshold <= 0 {
		c.VolBoost.ScoreThreshold = 95
	}
	if c.VolBoost.SellBoostK <= 0 {
		c.VolBoost.SellBoostK = 0.5
	}
	if c.VolBoost.SellCeiling <= 0 {
		c.VolBoost.SellCeiling = 2.0
	}
	if c.Skew.Threshold <= 0 {
		c.Skew.Threshold = 0.85
	}
	if c.Skew.SkewK <= 0 {
		c.Skew.SkewK = 0.8
	}
	if c.Risk.Level2Dwell <= 0 {
		c.Risk.Level2Dwell = 30 * time.Minute
	}
	if c.Risk.MaxLossPct <= 0 {
		c.Risk.MaxLossPct = 0.12
	}
	if c.Risk.ProfitBufferRatio <= 0 {
		c.Risk.ProfitBufferRatio = 0.5
	}
	if c.Risk.MaxInventoryPct <= 0 {
		c.Risk.MaxInventoryPct = 0.95
	}
	if c.Risk.HighInvBuyCut <= 0 {
		c.Risk.HighInvBuyCut = 0.5
	}
	if c.Risk.HighInvRatio <= 0 {
		c.Risk.HighInvRatio = 0.5
	}
	if c.Throttle.InventoryThreshold <= 0 {
		c.Throttle.InventoryThreshold = 0.9
	}
	if c.Throttle.ProfitTargetPct <= 0 {
		c.Throttle.ProfitTargetPct = 1.0
	}
	if c.Throttle.ProfitReduction <= 0 {
		c.Throttle.ProfitReduction = 0.5
	}
	if c.Throttle.VolatilityThreshold <= 0 {
		c.Throttle.VolatilityThreshold = 2.0
	}
	if c.Throttle.VolatilityReduction <= 0 {
		c.Throttle.VolatilityReduction = 0.5
	}
}

// Validate rejects configurations the engine must refuse to start with.
func (c *Config) Validate() error {
	if c.Symbol == "" {
		return newConfigError("symbol", "must not be empty")
	}
	if c.Support >= c.Resistance {
		return newConfigError("support", "support %.4f must be below resistance %.4f", c.Support, c.Resistance)
	}
	if c.SpacingMult < 1.0 {
		return newConfigError("spacing_mult", "%.4f < 1.0 breaks the cost-coverage invariant", c.SpacingMult)
	}
	if c.Equity <= 0 {
		return newConfigError("equity", "must be positive, got %.4f", c.Equity)
	}
	if c.MinReturn <= 0 {
		return newConfigError("min_return", "must be positive, got %.6f", c.MinReturn)
	}
	if c.MakerFee < 0 {
		return newConfigError("maker_fee", "must not be negative, got %.6f", c.MakerFee)
	}
	base := (c.MinReturn + 2*c.MakerFee) * c.SpacingMult
	if base > c.SpacingCeiling {
		return newConfigError("spacing_mult", "base spacing %.4f exceeds ceiling %.4f", base, c.SpacingCeiling)
	}
	if c.RangePos.BandStart >= 1 {
		return newConfigError("band_start", "must be below 1.0, got %.4f", c.RangePos.BandStart)
	}
	if _, _, err := BudgetSplit(c.Regime); err != nil {
		return err
	}
	return nil
}
