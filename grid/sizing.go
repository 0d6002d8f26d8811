package grid

// SizeResult distinguishes an intentionally suppressed order from an
// anomalous one. Blocked carries the name of the factor that vetoed the
// order; a zero size with Blocked false means the multipliers drained it.
type SizeResult struct {
	Size      float64
	Blocked   bool
	BlockedBy string
	Reason    string
	// Capped is set when a sell was reduced to its paired holdings.
	Capped bool
}

// SizingPipeline turns a triggered level into a final order size by
// applying the multiplicative factor chain in its fixed order.
type SizingPipeline struct {
	cfg     *Config
	factors []Factor
	weights []float64
	buyPot  float64
	sellPot float64
}

// NewSizingPipeline precomputes level weights and the regime budget
// split. Fails with ConfigError on an unrecognized regime.
func NewSizingPipeline(cfg *Config, levels int) (*SizingPipeline, error) {
	buyShare, sellShare, err := BudgetSplit(cfg.Regime)
	if err != nil {
		return nil, err
	}
	return &SizingPipeline{
		cfg:     cfg,
		factors: factorChain(),
		weights: LevelWeights(levels, cfg.WeightSlope),
		buyPot:  cfg.Investment * buyShare,
		sellPot: cfg.Investment * sellShare,
	}, nil
}

// BaseSize is the unadjusted size for a level: its budget share divided
// by the level price.
func (p *SizingPipeline) BaseSize(side Side, levelIndex int, price float64) float64 {
	if levelIndex < 0 || levelIndex >= len(p.weights) || price <= 0 {
		return 0
	}
	pot := p.buyPot
	if side == SideSell {
		pot = p.sellPot
	}
	return pot * p.weights[levelIndex] / price
}

// Size runs the factor chain over the base size. pairedHoldings is the
// sum of open-position sizes targeting this sell level; totalHoldings is
// the aggregate long inventory. For sells, the final size is capped at
// pairedHoldings (falling back to totalHoldings when no position targets
// the level) so a single amplified sell can never require multiple buy
// positions and corrupt the cost-basis pairing.
func (p *SizingPipeline) Size(in *FactorInput, pairedHoldings, totalHoldings float64) SizeResult {
	size := p.BaseSize(in.Side, in.LevelIndex, in.Price)
	if size <= 0 {
		return SizeResult{}
	}

	mult := 1.0
	for _, f := range p.factors {
		res := f.Apply(p.cfg, in)
		if res.Blocked {
			return SizeResult{Blocked: true, BlockedBy: f.Name, Reason: res.Reason}
		}
		mult *= res.Multiplier
		if mult <= 0 {
			return SizeResult{Reason: f.Name + " drained the multiplier"}
		}
	}
	size *= mult

	if in.Side == SideSell {
		cap := pairedHoldings
		if cap <= holdingsEpsilon {
			cap = totalHoldings
		}
		if size > cap {
			size = cap
			if size <= 0 {
				return SizeResult{Reason: "no holdings to sell"}
			}
			return SizeResult{Size: size, Capped: true}
		}
	}

	return SizeResult{Size: size}
}
