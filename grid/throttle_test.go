package grid

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func throttleCfg() ThrottleConfig {
	return ThrottleConfig{
		InventoryThreshold:  0.9,
		MaxUnits:            10,
		ProfitTargetPct:     1.0,
		ProfitReduction:     0.5,
		RiskBudget:          200,
		VolatilityThreshold: 2.0,
		VolatilityReduction: 0.5,
	}
}

func TestThrottleNoRule(t *testing.T) {
	tm := NewThrottleManager(throttleCfg())
	mult, rule := tm.Multiplier(ThrottleInput{Exposure: 1, DailyPnL: 0, CurrentATR: 1, AvgATR: 1})
	assert.Equal(t, 1.0, mult)
	assert.Empty(t, rule)
}

func TestThrottleInventoryZeroesSize(t *testing.T) {
	tm := NewThrottleManager(throttleCfg())
	mult, rule := tm.Multiplier(ThrottleInput{Exposure: 9.5, CurrentATR: 1, AvgATR: 1})
	assert.Equal(t, 0.0, mult)
	assert.Equal(t, "inventory", rule)
}

func TestThrottleProfitLock(t *testing.T) {
	tm := NewThrottleManager(throttleCfg())
	mult, rule := tm.Multiplier(ThrottleInput{Exposure: 1, DailyPnL: 250, CurrentATR: 1, AvgATR: 1})
	assert.Equal(t, 0.5, mult)
	assert.Equal(t, "profit_lock", rule)
}

func TestThrottleVolatility(t *testing.T) {
	tm := NewThrottleManager(throttleCfg())
	mult, rule := tm.Multiplier(ThrottleInput{Exposure: 1, CurrentATR: 3, AvgATR: 1})
	assert.Equal(t, 0.5, mult)
	assert.Equal(t, "volatility", rule)
}

// Precedence is fixed: inventory wins over profit-lock wins over
// volatility even when several rules fire at once.
func TestThrottlePrecedence(t *testing.T) {
	tm := NewThrottleManager(throttleCfg())
	all := ThrottleInput{Exposure: 9.5, DailyPnL: 250, CurrentATR: 3, AvgATR: 1}

	mult, rule := tm.Multiplier(all)
	assert.Equal(t, 0.0, mult)
	assert.Equal(t, "inventory", rule)

	all.Exposure = 1
	mult, rule = tm.Multiplier(all)
	assert.Equal(t, 0.5, mult)
	assert.Equal(t, "profit_lock", rule)
}
