package grid

import "math"

// FactorInput is the market/risk context a triggered level is sized
// against. All fields are read-only inside the chain.
type FactorInput struct {
	Side       Side
	LevelIndex int
	Price      float64

	// TrendScore is the tanh-normalized EMA-slope score in [-1, 1];
	// negative means downtrend pressure.
	TrendScore float64

	// FundingRate is the current perp funding rate per settlement.
	// MinutesToFunding is the absolute distance to the nearest settlement.
	FundingRate      float64
	MinutesToFunding float64

	// RangePosition maps price into [0,1] across the effective range.
	RangePosition float64

	// VolScore is the volatility percentile score in [0,100].
	VolScore float64

	// InventoryRatio is notional over capacity.
	InventoryRatio float64

	// Risk-zone multipliers for the current tier.
	RiskBuyMult  float64
	RiskSellMult float64
}

// FactorResult is one factor's verdict. A blocked result suppresses the
// order outright; the first hard block wins and later factors never run.
type FactorResult struct {
	Multiplier float64
	Blocked    bool
	Reason     string
}

func pass() FactorResult {
	return FactorResult{Multiplier: 1}
}

func scale(m float64) FactorResult {
	return FactorResult{Multiplier: m}
}

func block(reason string) FactorResult {
	return FactorResult{Blocked: true, Reason: reason}
}

// Factor is a pure sizing adjustment evaluated in a fixed order.
type Factor struct {
	Name  string
	Apply func(cfg *Config, in *FactorInput) FactorResult
}

// factorChain returns the ordered pipeline. Order is load-bearing: it is
// part of the contract and covered by tests.
func factorChain() []Factor {
	return []Factor{
		{Name: "trend", Apply: trendFactor},
		{Name: "breakout_risk", Apply: breakoutRiskFactor},
		{Name: "funding", Apply: fundingFactor},
		{Name: "range_position", Apply: rangePositionFactor},
		{Name: "vol_regime", Apply: volRegimeFactor},
		{Name: "inventory_skew", Apply: inventorySkewFactor},
		{Name: "risk_zone", Apply: riskZoneFactor},
	}
}

// trendFactor dampens or blocks buys against a confirmed downtrend.
// The dampened multiplier is scaled by the configured mean-reversion
// strength: strong mean reversion restores size faster.
func trendFactor(cfg *Config, in *FactorInput) FactorResult {
	if in.Side != SideBuy {
		return pass()
	}
	if in.TrendScore <= -cfg.Trend.BlockThreshold {
		return block("trend score below block threshold")
	}
	down := math.Max(0, -in.TrendScore)
	m := math.Max(cfg.Trend.Floor, 1-cfg.Trend.DampenK*down)
	m *= cfg.Trend.MeanRevStrength
	if m > 1 {
		m = 1
	}
	return scale(m)
}

// breakoutRiskFactor scores the chance of a downside range breakout:
// proximity to the lower boundary combined with directional trend
// pressure. High scores block the buy; moderate ones dampen it linearly.
func breakoutRiskFactor(cfg *Config, in *FactorInput) FactorResult {
	if in.Side != SideBuy {
		return pass()
	}
	proximity := 1 - in.RangePosition // 1 at effective support
	pressure := math.Max(0, -in.TrendScore)
	score := proximity * (0.5 + 0.5*pressure)
	if score >= cfg.Breakout.BlockThreshold {
		return block("breakout risk score at block threshold")
	}
	return scale(math.Max(cfg.Breakout.Floor, 1-score))
}

// fundingFactor is time-gated: outside the settlement window it is a
// no-op. Positive funding taxes longs, so buys shrink and sells grow.
func fundingFactor(cfg *Config, in *FactorInput) FactorResult {
	if in.MinutesToFunding > cfg.Funding.WindowMinutes {
		return pass()
	}
	if in.FundingRate <= 0 {
		return pass()
	}
	strength := in.FundingRate / cfg.Funding.Reference
	if in.Side == SideBuy {
		if cfg.Funding.BuyBlockAbove > 0 && in.FundingRate >= cfg.Funding.BuyBlockAbove {
			return block("funding rate above buy block threshold")
		}
		return scale(math.Max(cfg.Funding.BuyFloor, 1-cfg.Funding.BuyDampenK*strength))
	}
	return scale(math.Min(cfg.Funding.SellCap, 1+cfg.Funding.SellAmplifyK*strength))
}

// rangePositionFactor activates only in the top band of the range and
// leans the book short: buys shrink and sells grow with normalized depth
// into the band.
func rangePositionFactor(cfg *Config, in *FactorInput) FactorResult {
	if in.RangePosition < cfg.RangePos.BandStart {
		return pass()
	}
	depth := (in.RangePosition - cfg.RangePos.BandStart) / (1 - cfg.RangePos.BandStart)
	if in.Side == SideBuy {
		return scale(math.Max(cfg.RangePos.BuyFloor, 1-cfg.RangePos.BuyDampenK*depth))
	}
	return scale(math.Min(cfg.RangePos.SellCeiling, 1+cfg.RangePos.SellBoostK*depth))
}

// volRegimeFactor amplifies sells above the extreme-volatility percentile
// to bias toward de-risking. Buys are untouched.
func volRegimeFactor(cfg *Config, in *FactorInput) FactorResult {
	if in.Side != SideSell || in.VolScore < cfg.VolBoost.ScoreThreshold {
		return pass()
	}
	depth := (in.VolScore - cfg.VolBoost.ScoreThreshold) / (100 - cfg.VolBoost.ScoreThreshold)
	return scale(math.Min(cfg.VolBoost.SellCeiling, 1+cfg.VolBoost.SellBoostK*depth))
}

// inventorySkewFactor throttles buys as held inventory approaches the
// capacity threshold. The multiplier is non-increasing in the ratio and
// reaches exactly zero at the threshold.
func inventorySkewFactor(cfg *Config, in *FactorInput) FactorResult {
	if in.Side != SideBuy {
		return pass()
	}
	if in.InventoryRatio >= cfg.Skew.Threshold {
		return block("inventory at capacity threshold")
	}
	m := 1 - cfg.Skew.SkewK*in.InventoryRatio/cfg.Skew.Threshold
	return scale(math.Max(0, m))
}

// riskZoneFactor applies the tiered zone multipliers last so the zone
// overrides everything upstream once price breaches the support cushion.
func riskZoneFactor(cfg *Config, in *FactorInput) FactorResult {
	if in.Side == SideBuy {
		if in.RiskBuyMult <= 0 {
			return block("risk zone disabled buys")
		}
		return scale(in.RiskBuyMult)
	}
	return scale(in.RiskSellMult)
}
