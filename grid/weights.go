package grid

// Regime classifies the range the trader expects price to work within.
type Regime string

const (
	RegimeUpRange      Regime = "up_range"
	RegimeNeutralRange Regime = "neutral_range"
	RegimeDownRange    Regime = "down_range"
)

// LevelWeights returns normalized per-level weights for n levels.
// raw(i) = 1 + slope*(i-1) with i=1 the level nearest mid, so edge levels
// carry more budget. The weights sum to 1.
func LevelWeights(n int, slope float64) []float64 {
	if n <= 0 {
		return nil
	}
	weights := make([]float64, n)
	total := 0.0
	for i := 0; i < n; i++ {
		weights[i] = 1 + slope*float64(i)
		total += weights[i]
	}
	for i := range weights {
		weights[i] /= total
	}
	return weights
}

// BudgetSplit returns the buy/sell budget shares for a regime.
func BudgetSplit(r Regime) (buy, sell float64, err error) {
	switch r {
	case RegimeUpRange:
		return 0.7, 0.3, nil
	case RegimeNeutralRange:
		return 0.5, 0.5, nil
	case RegimeDownRange:
		return 0.3, 0.7, nil
	default:
		return 0, 0, newConfigError("regime", "unrecognized regime %q", string(r))
	}
}
