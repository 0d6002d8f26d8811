package grid

import "math"

// LevelPlan is the generated set of grid prices for one grid version.
// Immutable once generated; regenerated wholesale on range update or
// mid-shift.
type LevelPlan struct {
	Mid           float64
	BuyLevels     []float64
	SellLevels    []float64
	EffSupport    float64
	EffResistance float64
	Spacing       float64
	Cushion       float64
}

// GenerateLevels builds the grid around mid. atrMean is the rolling mean
// of ATR over the warm-up window (20 bars); it normalizes the current ATR
// into a volatility ratio that widens spacing in stressed regimes.
//
// Buy levels descend geometrically from mid; each buy level i is paired
// 1:1 with a sell at buy_i * (1+spacing), one spacing unit above.
func GenerateLevels(cfg *Config, mid, atr, atrMean float64) (*LevelPlan, error) {
	if cfg.Support >= cfg.Resistance {
		return nil, newConfigError("support", "support %.4f must be below resistance %.4f", cfg.Support, cfg.Resistance)
	}
	if cfg.SpacingMult < 1.0 {
		return nil, newConfigError("spacing_mult", "%.4f < 1.0 breaks the cost-coverage invariant", cfg.SpacingMult)
	}

	cushion := atr * cfg.CushionMult
	effSupport := cfg.Support - cushion
	effResistance := cfg.Resistance + cushion

	spacing := spacingFor(cfg, atr, atrMean)

	plan := &LevelPlan{
		Mid:           mid,
		EffSupport:    effSupport,
		EffResistance: effResistance,
		Spacing:       spacing,
		Cushion:       cushion,
	}

	price := mid
	for i := 0; i < cfg.LayersBuy; i++ {
		price = price / (1 + spacing)
		if price < effSupport {
			break
		}
		plan.BuyLevels = append(plan.BuyLevels, price)
	}

	for i, buy := range plan.BuyLevels {
		if i >= cfg.LayersSell {
			break
		}
		sell := buy * (1 + spacing)
		if sell > effResistance {
			break
		}
		plan.SellLevels = append(plan.SellLevels, sell)
	}
	// Paired matching needs a sell slot per buy slot; drop buys that lost
	// their pair to the resistance or layer cap.
	if len(plan.SellLevels) < len(plan.BuyLevels) {
		plan.BuyLevels = plan.BuyLevels[:len(plan.SellLevels)]
	}

	return plan, nil
}

// spacingFor computes the per-level spacing. The base spacing covers the
// round-trip cost (min return plus both maker fees); volatility widens it
// and the hard ceiling bounds the worst case.
func spacingFor(cfg *Config, atr, atrMean float64) float64 {
	base := (cfg.MinReturn + 2*cfg.MakerFee) * cfg.SpacingMult
	atrPct := 1.0
	if atrMean > 0 {
		atrPct = atr / atrMean
	}
	spacing := base * (1 + cfg.VolatilityK*math.Max(0, atrPct-1))
	if spacing > cfg.SpacingCeiling {
		spacing = cfg.SpacingCeiling
	}
	if spacing < base {
		spacing = base
	}
	return spacing
}

// RangePosition maps price into [0,1] across the effective range.
// 0 is the effective support, 1 the effective resistance.
func (p *LevelPlan) RangePosition(price float64) float64 {
	width := p.EffResistance - p.EffSupport
	if width <= 0 {
		return 0.5
	}
	pos := (price - p.EffSupport) / width
	return math.Min(1, math.Max(0, pos))
}

// Levels returns the number of paired buy/sell slots.
func (p *LevelPlan) Levels() int {
	return len(p.BuyLevels)
}
