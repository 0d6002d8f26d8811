package grid

import (
	"time"

	"gridcore/logger"
	"gridcore/market"
)

// holdingsEpsilon is the tolerance under which aggregate holdings are
// treated as zero and the cost basis is snapped to exactly zero.
const holdingsEpsilon = 1e-8

// Trigger is a pending order whose price the current bar crossed.
type Trigger struct {
	Side       Side
	LevelIndex int
	Price      float64
}

// MatchingEngine owns the per-level order slots, the open buy positions
// and the engine-wide cost basis. It resolves sell fills against buy
// positions paired-level-first with a FIFO fallback, and never raises:
// anomalies are truncated, tagged and logged.
type MatchingEngine struct {
	plan      *LevelPlan
	buySlots  []LevelState
	sellSlots []LevelState

	// positions is kept oldest-first; FIFO fallback consumes from the head.
	positions []*OpenPosition
	costBasis float64
	trades    []TradeRecord

	prevPrice float64
	primed    bool

	// makerFee is charged per side; trade PnL is recorded net of both legs.
	makerFee float64
}

// NewMatchingEngine arms a buy order at every level of the plan. Sell
// slots stay idle until their paired buy fills.
func NewMatchingEngine(plan *LevelPlan, makerFee float64) *MatchingEngine {
	m := &MatchingEngine{plan: plan, makerFee: makerFee}
	m.buySlots = make([]LevelState, plan.Levels())
	m.sellSlots = make([]LevelState, plan.Levels())
	for i := range m.buySlots {
		m.buySlots[i] = LevelArmed
	}
	return m
}

// Reset swaps in a freshly generated plan and drops all pending orders.
// Open positions and cost basis survive a grid regeneration; their
// target sell levels are remapped to the closest new level.
func (m *MatchingEngine) Reset(plan *LevelPlan) {
	m.plan = plan
	m.buySlots = make([]LevelState, plan.Levels())
	m.sellSlots = make([]LevelState, plan.Levels())
	for i := range m.buySlots {
		m.buySlots[i] = LevelArmed
	}
	for _, pos := range m.positions {
		idx := closestLevel(plan.SellLevels, pos.BuyPrice*(1+plan.Spacing))
		pos.LevelIndex = idx
		pos.TargetSellLevel = idx
		if idx >= 0 {
			m.buySlots[idx] = LevelFilled
			m.sellSlots[idx] = LevelArmed
		}
	}
}

func closestLevel(levels []float64, price float64) int {
	best, bestDist := -1, 0.0
	for i, p := range levels {
		d := p - price
		if d < 0 {
			d = -d
		}
		if best == -1 || d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

// ObserveBar records the bar close as the reference price for the next
// bar's crossing checks. Called once per bar, after trigger detection.
func (m *MatchingEngine) ObserveBar(bar market.Bar) {
	m.prevPrice = bar.Close
	m.primed = true
}

// CheckTriggers returns every armed order whose price this bar crossed.
// Crossing semantics, not touch semantics: a buy triggers when the bar
// low reaches the level and the previous close was above it, so one bar
// cannot double-trigger the same level.
func (m *MatchingEngine) CheckTriggers(bar market.Bar) []Trigger {
	if !m.primed {
		return nil
	}
	var out []Trigger
	for i, state := range m.buySlots {
		price := m.plan.BuyLevels[i]
		if state == LevelArmed && bar.Low <= price && m.prevPrice > price {
			out = append(out, Trigger{Side: SideBuy, LevelIndex: i, Price: price})
		}
	}
	for i, state := range m.sellSlots {
		price := m.plan.SellLevels[i]
		if state == LevelArmed && bar.High >= price && m.prevPrice < price {
			out = append(out, Trigger{Side: SideSell, LevelIndex: i, Price: price})
		}
	}
	return out
}

// MarkTriggered moves a slot to Triggered once an order intent has been
// emitted for it.
func (m *MatchingEngine) MarkTriggered(side Side, level int) {
	m.slots(side)[level] = LevelTriggered
}

// Suppress re-arms a slot whose order was suppressed this bar (sized to
// zero or hard-blocked). Suppression is not an error.
func (m *MatchingEngine) Suppress(side Side, level int) {
	m.slots(side)[level] = LevelArmed
}

func (m *MatchingEngine) slots(side Side) []LevelState {
	if side == SideBuy {
		return m.buySlots
	}
	return m.sellSlots
}

// OnBuyFill opens a position at the level's price and immediately arms
// the paired sell one spacing unit above.
func (m *MatchingEngine) OnBuyFill(level int, size float64, ts time.Time) {
	if level < 0 || level >= m.plan.Levels() || size <= 0 {
		return
	}
	price := m.plan.BuyLevels[level]
	m.positions = append(m.positions, &OpenPosition{
		Size:            size,
		BuyPrice:        price,
		LevelIndex:      level,
		TargetSellLevel: level,
		OpenedAt:        ts,
	})
	m.costBasis += size * price
	m.buySlots[level] = LevelFilled
	m.sellSlots[level] = LevelArmed
}

// OnSellFill resolves a sell fill of the given size at the given level.
//
// Matching runs paired-level-first: positions whose TargetSellLevel is
// this level are consumed oldest first, and a fully consumed position
// re-arms a fresh buy at its own level (re-entry). Any unmatched
// remainder falls back to the globally oldest position regardless of its
// target. A remainder that survives the fallback means the sell exceeded
// total holdings; it is truncated to what was held and flagged, never
// raised.
func (m *MatchingEngine) OnSellFill(level int, size float64, ts time.Time) ([]TradeRecord, AnomalyKind) {
	if level < 0 || level >= m.plan.Levels() || size <= 0 {
		return nil, AnomalyNone
	}
	if len(m.positions) == 0 {
		// Cannot sell what is not held.
		m.sellSlots[level] = LevelIdle
		return nil, AnomalyNone
	}

	exitPrice := m.plan.SellLevels[level]
	remaining := size
	var matched []TradeRecord

	// Paired pass.
	for _, pos := range m.positions {
		if remaining <= holdingsEpsilon {
			break
		}
		if pos.TargetSellLevel != level {
			continue
		}
		matched = append(matched, m.consume(pos, &remaining, level, exitPrice, ts, MatchPairedLevel))
	}
	m.compact()

	// FIFO fallback for whatever the paired pass left over. Rare when the
	// sizing cap is active, but always handled.
	for len(m.positions) > 0 && remaining > holdingsEpsilon {
		matched = append(matched, m.consume(m.positions[0], &remaining, level, exitPrice, ts, MatchFifoFallback))
		m.compact()
	}

	anomaly := AnomalyNone
	if remaining > holdingsEpsilon {
		anomaly = AnomalySellExceedsHoldings
		logger.Warnf("[Match] sell at level %d exceeded holdings by %.8f, truncated", level, remaining)
		if len(matched) > 0 {
			matched[len(matched)-1].Shortfall = remaining
		}
	}

	if m.costBasis < 0 {
		m.costBasis = 0
	}
	if m.TotalHoldings() <= holdingsEpsilon {
		m.costBasis = 0
	}

	// Keep the sell armed while positions still target this level.
	if m.PairedHoldings(level) > holdingsEpsilon {
		m.sellSlots[level] = LevelArmed
	} else {
		m.sellSlots[level] = LevelIdle
	}

	m.trades = append(m.trades, matched...)
	return matched, anomaly
}

// consume takes min(remaining, pos.Size) from pos, decrements the cost
// basis and records the matched pair. A drained position re-arms its buy
// level.
func (m *MatchingEngine) consume(pos *OpenPosition, remaining *float64, exitLevel int, exitPrice float64, ts time.Time, mt MatchType) TradeRecord {
	take := minFloat(*remaining, pos.Size)
	*remaining -= take
	pos.Size -= take
	m.costBasis -= take * pos.BuyPrice

	if pos.Size <= holdingsEpsilon {
		pos.Size = 0
		if pos.LevelIndex >= 0 && pos.LevelIndex < len(m.buySlots) {
			m.buySlots[pos.LevelIndex] = LevelArmed
		}
	}

	pnl := take*(exitPrice-pos.BuyPrice) - take*(exitPrice+pos.BuyPrice)*m.makerFee
	ret := 0.0
	if pos.BuyPrice > 0 {
		ret = (exitPrice - pos.BuyPrice) / pos.BuyPrice
	}
	return TradeRecord{
		EntryTime:     pos.OpenedAt,
		ExitTime:      ts,
		EntryPrice:    pos.BuyPrice,
		ExitPrice:     exitPrice,
		EntryLevel:    pos.LevelIndex,
		ExitLevel:     exitLevel,
		Size:          take,
		PnL:           pnl,
		ReturnPct:     ret,
		HoldingPeriod: ts.Sub(pos.OpenedAt).Seconds(),
		MatchType:     mt,
	}
}

// compact drops fully consumed positions, preserving age order.
func (m *MatchingEngine) compact() {
	kept := m.positions[:0]
	for _, pos := range m.positions {
		if pos.Size > 0 {
			kept = append(kept, pos)
		}
	}
	m.positions = kept
}

// CostBasis is the aggregate purchase cost of open inventory, floored at
// zero. Invariant: equals the sum of size*buy_price over open positions.
func (m *MatchingEngine) CostBasis() float64 { return m.costBasis }

// TotalHoldings is the aggregate size of all open positions.
func (m *MatchingEngine) TotalHoldings() float64 {
	total := 0.0
	for _, pos := range m.positions {
		total += pos.Size
	}
	return total
}

// PairedHoldings is the holdings whose target sell level is the given
// level, which is the cap the sizing pipeline applies to sell orders.
func (m *MatchingEngine) PairedHoldings(level int) float64 {
	total := 0.0
	for _, pos := range m.positions {
		if pos.TargetSellLevel == level {
			total += pos.Size
		}
	}
	return total
}

// Positions returns a copy of the open positions, oldest first.
func (m *MatchingEngine) Positions() []OpenPosition {
	out := make([]OpenPosition, len(m.positions))
	for i, pos := range m.positions {
		out[i] = *pos
	}
	return out
}

// Trades returns the append-only trade log.
func (m *MatchingEngine) Trades() []TradeRecord { return m.trades }

// PendingCounts reports armed/triggered slots per side.
func (m *MatchingEngine) PendingCounts() (buys, sells int) {
	for _, s := range m.buySlots {
		if s == LevelArmed || s == LevelTriggered {
			buys++
		}
	}
	for _, s := range m.sellSlots {
		if s == LevelArmed || s == LevelTriggered {
			sells++
		}
	}
	return buys, sells
}

// Plan returns the active level plan.
func (m *MatchingEngine) Plan() *LevelPlan { return m.plan }
