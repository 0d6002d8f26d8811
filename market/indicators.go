package market

import (
	"math"
	"sort"
	"time"
)

const (
	atrPeriod     = 14
	atrMeanPeriod = 20
	emaPeriod     = 20
	emaSlopeBars  = 5
	volWindow     = 240

	// trendSlopeScale normalizes the EMA slope before tanh: a 0.5% move
	// of the EMA over emaSlopeBars bars saturates toward +-0.76.
	trendSlopeScale = 0.005

	fundingInterval = 8 * time.Hour
)

// AuxBuilder derives the auxiliary series from the raw bar stream: ATR,
// its rolling mean, an EMA-slope trend score and an ATR percentile
// score. Funding comes from the exchange and is set externally.
type AuxBuilder struct {
	prevClose float64
	haveBar   bool

	trs      []float64 // true ranges, trailing
	atrs     []float64 // ATR history, trailing
	emas     []float64 // EMA history, trailing
	ema      float64
	emaReady bool

	fundingRate float64
}

func NewAuxBuilder() *AuxBuilder {
	return &AuxBuilder{}
}

// SetFundingRate updates the latest funding rate per settlement.
func (b *AuxBuilder) SetFundingRate(rate float64) {
	b.fundingRate = rate
}

// Push folds one closed bar into the rolling state and returns the aux
// values aligned to it.
func (b *AuxBuilder) Push(bar Bar) Aux {
	tr := bar.High - bar.Low
	if b.haveBar {
		tr = math.Max(tr, math.Max(math.Abs(bar.High-b.prevClose), math.Abs(bar.Low-b.prevClose)))
	}
	b.prevClose = bar.Close
	b.haveBar = true

	b.trs = appendBounded(b.trs, tr, atrPeriod)
	atr := mean(b.trs)
	b.atrs = appendBounded(b.atrs, atr, volWindow)

	if !b.emaReady {
		b.ema = bar.Close
		b.emaReady = true
	} else {
		k := 2.0 / float64(emaPeriod+1)
		b.ema = bar.Close*k + b.ema*(1-k)
	}
	b.emas = appendBounded(b.emas, b.ema, emaSlopeBars+1)

	return Aux{
		ATR:              atr,
		ATRMean:          mean(tail(b.atrs, atrMeanPeriod)),
		FundingRate:      b.fundingRate,
		MinutesToFunding: MinutesToFundingSettlement(bar.Timestamp),
		VolScore:         percentileRank(b.atrs, atr),
		TrendScore:       b.trendScore(),
	}
}

// trendScore is the EMA slope over emaSlopeBars bars, tanh-normalized
// into [-1, 1].
func (b *AuxBuilder) trendScore() float64 {
	if len(b.emas) <= emaSlopeBars {
		return 0
	}
	old := b.emas[0]
	if old <= 0 {
		return 0
	}
	slope := (b.emas[len(b.emas)-1] - old) / old
	return math.Tanh(slope / trendSlopeScale)
}

// MinutesToFundingSettlement is the absolute distance in minutes from ts
// to the nearest perp funding settlement (00:00/08:00/16:00 UTC).
func MinutesToFundingSettlement(ts time.Time) float64 {
	utc := ts.UTC()
	dayStart := time.Date(utc.Year(), utc.Month(), utc.Day(), 0, 0, 0, 0, time.UTC)
	since := utc.Sub(dayStart) % fundingInterval
	until := fundingInterval - since
	nearest := since
	if until < nearest {
		nearest = until
	}
	return nearest.Minutes()
}

func appendBounded(s []float64, v float64, limit int) []float64 {
	s = append(s, v)
	if len(s) > limit {
		s = s[len(s)-limit:]
	}
	return s
}

func tail(s []float64, n int) []float64 {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

func mean(s []float64) float64 {
	if len(s) == 0 {
		return 0
	}
	total := 0.0
	for _, v := range s {
		total += v
	}
	return total / float64(len(s))
}

// percentileRank returns the percentile (0..100) of v within window.
func percentileRank(window []float64, v float64) float64 {
	if len(window) < 2 {
		return 50
	}
	sorted := make([]float64, len(window))
	copy(sorted, window)
	sort.Float64s(sorted)
	below := sort.SearchFloat64s(sorted, v)
	return float64(below) / float64(len(sorted)-1) * 100
}
