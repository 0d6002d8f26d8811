package market

import "time"

// Bar is one OHLCV candle at the engine's fixed resolution.
type Bar struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// Aux carries the precomputed auxiliary series aligned to a bar's
// timestamp: volatility, funding and trend context the decision core
// consumes but does not compute inline.
type Aux struct {
	ATR              float64 `json:"atr"`
	ATRMean          float64 `json:"atr_mean"` // rolling mean of ATR (20 bars)
	FundingRate      float64 `json:"funding_rate"`
	MinutesToFunding float64 `json:"minutes_to_funding"`
	VolScore         float64 `json:"vol_score"`   // ATR percentile 0..100
	TrendScore       float64 `json:"trend_score"` // tanh-normalized EMA slope [-1,1]
}

// Event is one feed tick: a closed bar plus its aligned aux series.
type Event struct {
	Bar Bar
	Aux Aux
}

// Feed is an ordered stream of events for one symbol. Bars arrive
// strictly in time order; the channel closes when the feed is exhausted
// or stopped.
type Feed interface {
	Events() <-chan Event
	Stop()
}
