package grid

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridcore/market"
)

func testPlan() *LevelPlan {
	return &LevelPlan{
		Mid:           110,
		BuyLevels:     []float64{108, 106, 104},
		SellLevels:    []float64{109, 107, 105},
		EffSupport:    95,
		EffResistance: 125,
		Spacing:       0.01,
	}
}

func testBar(high, low, close float64) market.Bar {
	return market.Bar{
		Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Open:      close,
		High:      high,
		Low:       low,
		Close:     close,
	}
}

func TestCheckTriggersRequiresPriming(t *testing.T) {
	m := NewMatchingEngine(testPlan(), 0)
	// the very first bar has no previous close to cross from
	assert.Empty(t, m.CheckTriggers(testBar(112, 103, 107)))
}

func TestCheckTriggersCrossingSemantics(t *testing.T) {
	m := NewMatchingEngine(testPlan(), 0)
	m.ObserveBar(testBar(111, 109, 110)) // prev close 110

	triggers := m.CheckTriggers(testBar(110, 107.5, 108.5))
	require.Len(t, triggers, 1)
	assert.Equal(t, SideBuy, triggers[0].Side)
	assert.Equal(t, 0, triggers[0].LevelIndex)
	assert.InDelta(t, 108, triggers[0].Price, 1e-12)
}

func TestCheckTriggersNoCrossFromBelow(t *testing.T) {
	m := NewMatchingEngine(testPlan(), 0)
	m.ObserveBar(testBar(108, 106, 107)) // prev close 107, already below L0

	// bar touches 108 from below: not a downward cross, no buy trigger
	for _, trig := range m.CheckTriggers(testBar(108.5, 106.5, 107.5)) {
		assert.NotEqual(t, SideBuy, trig.Side)
	}
}

func TestBuyFillArmsPairedSell(t *testing.T) {
	m := NewMatchingEngine(testPlan(), 0)
	ts := time.Now()

	m.OnBuyFill(0, 1.0, ts)

	assert.InDelta(t, 108, m.CostBasis(), 1e-12)
	assert.InDelta(t, 1.0, m.TotalHoldings(), 1e-12)
	assert.InDelta(t, 1.0, m.PairedHoldings(0), 1e-12)

	// sell at the paired level can now trigger on an upward cross
	m.ObserveBar(testBar(109, 107, 108))
	triggers := m.CheckTriggers(testBar(109.5, 108, 109.2))
	require.Len(t, triggers, 1)
	assert.Equal(t, SideSell, triggers[0].Side)
	assert.Equal(t, 0, triggers[0].LevelIndex)
}

func TestSellFillPairedLevelFirst(t *testing.T) {
	m := NewMatchingEngine(testPlan(), 0)
	ts := time.Now()

	m.OnBuyFill(1, 0.4, ts)           // targets sell level 1
	m.OnBuyFill(0, 0.6, ts.Add(time.Minute)) // targets sell level 0, newer

	trades, anomaly := m.OnSellFill(0, 0.6, ts.Add(2*time.Minute))
	require.Len(t, trades, 1)
	assert.Equal(t, AnomalyNone, anomaly)
	assert.Equal(t, MatchPairedLevel, trades[0].MatchType)
	assert.Equal(t, 0, trades[0].EntryLevel)
	assert.InDelta(t, 0.6, trades[0].Size, 1e-12)
	// profit is one spacing step: 0.6 * (109 - 108)
	assert.InDelta(t, 0.6, trades[0].PnL, 1e-9)

	// the older position at level 1 is untouched
	assert.InDelta(t, 0.4, m.PairedHoldings(1), 1e-12)
	assert.InDelta(t, 0.4*106, m.CostBasis(), 1e-9)
}

func TestSellFillFifoFallback(t *testing.T) {
	m := NewMatchingEngine(testPlan(), 0)
	ts := time.Now()

	m.OnBuyFill(1, 0.3, ts)
	m.OnBuyFill(2, 0.3, ts.Add(time.Minute))

	// nothing targets sell level 0, so the oldest position is consumed
	trades, anomaly := m.OnSellFill(0, 0.3, ts.Add(2*time.Minute))
	require.Len(t, trades, 1)
	assert.Equal(t, AnomalyNone, anomaly)
	assert.Equal(t, MatchFifoFallback, trades[0].MatchType)
	assert.Equal(t, 1, trades[0].EntryLevel)
	assert.InDelta(t, 106, trades[0].EntryPrice, 1e-12)
	assert.InDelta(t, 109, trades[0].ExitPrice, 1e-12)
}

func TestSellFillWithoutHoldingsIsNoop(t *testing.T) {
	m := NewMatchingEngine(testPlan(), 0)

	trades, anomaly := m.OnSellFill(0, 1.0, time.Now())
	assert.Empty(t, trades)
	assert.Equal(t, AnomalyNone, anomaly)
	assert.InDelta(t, 0, m.CostBasis(), 1e-12)
}

func TestSellFillTruncatedWhenExceedingHoldings(t *testing.T) {
	m := NewMatchingEngine(testPlan(), 0)
	ts := time.Now()

	m.OnBuyFill(0, 0.5, ts)

	trades, anomaly := m.OnSellFill(0, 1.2, ts.Add(time.Minute))
	require.Len(t, trades, 1)
	assert.Equal(t, AnomalySellExceedsHoldings, anomaly)
	assert.InDelta(t, 0.5, trades[0].Size, 1e-12)
	assert.InDelta(t, 0.7, trades[0].Shortfall, 1e-9)

	assert.InDelta(t, 0, m.TotalHoldings(), 1e-12)
	assert.InDelta(t, 0, m.CostBasis(), 1e-12)
}

func TestCostBasisInvariant(t *testing.T) {
	m := NewMatchingEngine(testPlan(), 0)
	ts := time.Now()

	m.OnBuyFill(0, 0.5, ts)
	m.OnBuyFill(1, 0.3, ts)
	m.OnBuyFill(2, 0.2, ts)

	check := func() {
		expected := 0.0
		for _, pos := range m.Positions() {
			expected += pos.Size * pos.BuyPrice
		}
		assert.InDelta(t, expected, m.CostBasis(), 1e-9)
	}
	check()

	m.OnSellFill(1, 0.3, ts.Add(time.Minute))
	check()
	m.OnSellFill(0, 0.2, ts.Add(2*time.Minute))
	check()

	// drain everything: basis snaps to exactly zero
	m.OnSellFill(0, 10, ts.Add(3*time.Minute))
	assert.Equal(t, 0.0, m.CostBasis())
	assert.InDelta(t, 0, m.TotalHoldings(), 1e-12)
}

func TestDrainedPositionRearmsBuyLevel(t *testing.T) {
	m := NewMatchingEngine(testPlan(), 0)
	ts := time.Now()

	m.OnBuyFill(0, 1.0, ts)
	buys, sells := m.PendingCounts()
	assert.Equal(t, 2, buys) // level 0 filled, 1 and 2 still armed
	assert.Equal(t, 1, sells)

	m.OnSellFill(0, 1.0, ts.Add(time.Minute))
	buys, sells = m.PendingCounts()
	assert.Equal(t, 3, buys) // level 0 re-armed for re-entry
	assert.Equal(t, 0, sells)
}

func TestPartialSellKeepsSellArmed(t *testing.T) {
	m := NewMatchingEngine(testPlan(), 0)
	ts := time.Now()

	m.OnBuyFill(0, 1.0, ts)
	m.OnSellFill(0, 0.4, ts.Add(time.Minute))

	// 0.6 still targets level 0, so the sell slot stays armed
	assert.InDelta(t, 0.6, m.PairedHoldings(0), 1e-9)
	_, sells := m.PendingCounts()
	assert.Equal(t, 1, sells)
}

func TestMakerFeeReducesTradePnL(t *testing.T) {
	fee := 0.0002
	m := NewMatchingEngine(testPlan(), fee)
	ts := time.Now()

	m.OnBuyFill(0, 1.0, ts)
	trades, _ := m.OnSellFill(0, 1.0, ts.Add(time.Minute))
	require.Len(t, trades, 1)

	gross := 109.0 - 108.0
	fees := (109.0 + 108.0) * fee
	assert.InDelta(t, gross-fees, trades[0].PnL, 1e-9)
}

func TestDeepGridPairedRoundTrip(t *testing.T) {
	const (
		entry   = 108915.85
		size    = 0.5729
		spacing = 0.0044
		fee     = 0.0002
	)

	// a 40-level geometric plan anchored so buy level 33 sits at entry
	levels := 40
	buys := make([]float64, levels)
	sells := make([]float64, levels)
	for i := 0; i < levels; i++ {
		buys[i] = entry * math.Pow(1+spacing, float64(33-i))
		sells[i] = buys[i] * (1 + spacing)
	}
	plan := &LevelPlan{
		Mid:           sells[0],
		BuyLevels:     buys,
		SellLevels:    sells,
		EffSupport:    buys[levels-1] * 0.95,
		EffResistance: sells[0] * 1.05,
		Spacing:       spacing,
	}
	m := NewMatchingEngine(plan, fee)
	ts := time.Now()

	m.OnBuyFill(33, size, ts)
	require.InDelta(t, size, m.PairedHoldings(33), 1e-12)

	trades, anomaly := m.OnSellFill(33, size, ts.Add(time.Minute))
	require.Len(t, trades, 1)
	assert.Equal(t, AnomalyNone, anomaly)

	tr := trades[0]
	assert.Equal(t, MatchPairedLevel, tr.MatchType)
	assert.Equal(t, 33, tr.EntryLevel)
	assert.Equal(t, 33, tr.ExitLevel)
	assert.InDelta(t, size, tr.Size, 1e-12)
	assert.InDelta(t, entry, tr.EntryPrice, 1e-6)

	// one spacing step of profit net of maker fees on both legs
	gross := size * entry * spacing
	fees := size * (tr.ExitPrice + entry) * fee
	assert.InDelta(t, gross-fees, tr.PnL, 1e-6)
	assert.Greater(t, tr.PnL, 0.0)

	assert.Equal(t, 0.0, m.CostBasis())
	assert.InDelta(t, 0, m.TotalHoldings(), 1e-12)
}

func TestResetRemapsPositionTargets(t *testing.T) {
	m := NewMatchingEngine(testPlan(), 0)
	ts := time.Now()
	m.OnBuyFill(0, 1.0, ts)

	next := &LevelPlan{
		Mid:           111,
		BuyLevels:     []float64{109, 107, 105},
		SellLevels:    []float64{110, 108, 106},
		EffSupport:    95,
		EffResistance: 126,
		Spacing:       0.01,
	}
	m.Reset(next)

	require.Len(t, m.Positions(), 1)
	// 108 * 1.01 = 109.08, closest new sell level is 110 at index 0
	assert.Equal(t, 0, m.Positions()[0].TargetSellLevel)
	assert.InDelta(t, 108, m.CostBasis(), 1e-12)
}
