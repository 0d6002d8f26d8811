package trader

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridcore/market"
)

func paperBar(high, low float64) market.Bar {
	return market.Bar{
		Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		High:      high,
		Low:       low,
		Close:     (high + low) / 2,
	}
}

func TestPaperGatewayFillsOnTouch(t *testing.T) {
	g := NewPaperGateway(time.Minute)
	var fills []Fill
	g.SetFillHandler(func(f Fill) { fills = append(fills, f) })

	res, err := g.PlaceLimitOrder(&LimitOrderRequest{
		Symbol: "BTCUSDT", Side: "BUY", Price: 100, Quantity: 1,
	})
	require.NoError(t, err)
	require.NotEmpty(t, res.OrderID)

	g.OnBar(paperBar(103, 101)) // never reaches 100
	assert.Empty(t, fills)
	assert.Equal(t, 1, g.OpenOrders())

	g.OnBar(paperBar(102, 99.5))
	require.Len(t, fills, 1)
	assert.Equal(t, res.OrderID, fills[0].OrderID)
	assert.InDelta(t, 100, fills[0].Price, 1e-12) // fills at the limit, no slippage
	assert.Equal(t, 0, g.OpenOrders())
}

func TestPaperGatewayFillTimestampFollowsInterval(t *testing.T) {
	g := NewPaperGateway(5 * time.Minute)
	var fills []Fill
	g.SetFillHandler(func(f Fill) { fills = append(fills, f) })

	_, err := g.PlaceLimitOrder(&LimitOrderRequest{
		Symbol: "BTCUSDT", Side: "BUY", Price: 100, Quantity: 1,
	})
	require.NoError(t, err)

	bar := paperBar(102, 99)
	g.OnBar(bar)
	require.Len(t, fills, 1)
	// fills are stamped at the bar close, one interval past the open
	assert.Equal(t, bar.Timestamp.Add(5*time.Minute), fills[0].Timestamp)
}

func TestPaperGatewaySellFillsAboveLimit(t *testing.T) {
	g := NewPaperGateway(time.Minute)
	var fills []Fill
	g.SetFillHandler(func(f Fill) { fills = append(fills, f) })

	_, err := g.PlaceLimitOrder(&LimitOrderRequest{
		Symbol: "BTCUSDT", Side: "SELL", Price: 105, Quantity: 0.5,
	})
	require.NoError(t, err)

	g.OnBar(paperBar(104, 100))
	assert.Empty(t, fills)

	g.OnBar(paperBar(105.5, 103))
	require.Len(t, fills, 1)
	assert.InDelta(t, 0.5, fills[0].Size, 1e-12)
}

func TestPaperGatewayFillsInPlacementOrder(t *testing.T) {
	g := NewPaperGateway(time.Minute)
	var got []string
	g.SetFillHandler(func(f Fill) { got = append(got, f.OrderID) })

	first, _ := g.PlaceLimitOrder(&LimitOrderRequest{Symbol: "BTCUSDT", Side: "BUY", Price: 100, Quantity: 1})
	second, _ := g.PlaceLimitOrder(&LimitOrderRequest{Symbol: "BTCUSDT", Side: "BUY", Price: 101, Quantity: 1})

	g.OnBar(paperBar(103, 99))
	require.Equal(t, []string{first.OrderID, second.OrderID}, got)
}

func TestPaperGatewayCancel(t *testing.T) {
	g := NewPaperGateway(time.Minute)
	res, _ := g.PlaceLimitOrder(&LimitOrderRequest{Symbol: "BTCUSDT", Side: "BUY", Price: 100, Quantity: 1})

	require.NoError(t, g.CancelOrder("BTCUSDT", res.OrderID))
	assert.Error(t, g.CancelOrder("BTCUSDT", res.OrderID))
	assert.Equal(t, 0, g.OpenOrders())

	var fills []Fill
	g.SetFillHandler(func(f Fill) { fills = append(fills, f) })
	g.OnBar(paperBar(102, 99))
	assert.Empty(t, fills)
}

func TestPaperGatewayRejectsInvalidOrders(t *testing.T) {
	g := NewPaperGateway(time.Minute)
	_, err := g.PlaceLimitOrder(&LimitOrderRequest{Symbol: "BTCUSDT", Side: "BUY", Price: 0, Quantity: 1})
	assert.Error(t, err)
	_, err = g.PlaceLimitOrder(&LimitOrderRequest{Symbol: "BTCUSDT", Side: "BUY", Price: 100, Quantity: 0})
	assert.Error(t, err)
}
