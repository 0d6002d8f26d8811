package market

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2/futures"
)

// Backfiller pulls warm-up history over REST so the aux series (ATR
// window, EMA) are primed before the first live bar is processed.
type Backfiller struct {
	client *futures.Client
}

func NewBackfiller() *Backfiller {
	return &Backfiller{client: futures.NewClient("", "")}
}

// Klines fetches the most recent limit closed candles for symbol.
func (b *Backfiller) Klines(ctx context.Context, symbol, interval string, limit int) ([]Bar, error) {
	klines, err := b.client.NewKlinesService().
		Symbol(symbol).
		Interval(interval).
		Limit(limit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("kline backfill for %s failed: %w", symbol, err)
	}

	bars := make([]Bar, 0, len(klines))
	for _, k := range klines {
		bars = append(bars, Bar{
			Timestamp: time.UnixMilli(k.OpenTime).UTC(),
			Open:      mustFloat(k.Open),
			High:      mustFloat(k.High),
			Low:       mustFloat(k.Low),
			Close:     mustFloat(k.Close),
			Volume:    mustFloat(k.Volume),
		})
	}
	return bars, nil
}

// FundingRate fetches the current funding rate for symbol.
func (b *Backfiller) FundingRate(ctx context.Context, symbol string) (float64, error) {
	premiums, err := b.client.NewPremiumIndexService().Symbol(symbol).Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("premium index for %s failed: %w", symbol, err)
	}
	if len(premiums) == 0 {
		return 0, fmt.Errorf("no premium index returned for %s", symbol)
	}
	return mustFloat(premiums[0].LastFundingRate), nil
}

func mustFloat(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}
