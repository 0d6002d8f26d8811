package market

import (
	"sync"

	"gridcore/logger"
)

// ReplayFeed replays a fixed bar history through the aux builder. Used
// for warm-up and deterministic testing; bars are delivered in order.
type ReplayFeed struct {
	events chan Event
	stop   chan struct{}
	once   sync.Once
}

func NewReplayFeed(bars []Bar, builder *AuxBuilder) *ReplayFeed {
	f := &ReplayFeed{
		events: make(chan Event),
		stop:   make(chan struct{}),
	}
	go func() {
		defer close(f.events)
		for _, bar := range bars {
			aux := builder.Push(bar)
			select {
			case f.events <- Event{Bar: bar, Aux: aux}:
			case <-f.stop:
				return
			}
		}
	}()
	return f
}

func (f *ReplayFeed) Events() <-chan Event { return f.events }

func (f *ReplayFeed) Stop() {
	f.once.Do(func() { close(f.stop) })
}

// LiveFeed bridges the websocket kline stream into the Feed interface,
// folding each closed bar through the aux builder.
type LiveFeed struct {
	events chan Event
	stop   chan struct{}
	once   sync.Once
}

// NewLiveFeed warms the builder with backfilled bars, then follows the
// live stream. fundingPoll, when non-nil, refreshes the funding rate
// before each bar is folded.
func NewLiveFeed(warmup []Bar, bars <-chan Bar, builder *AuxBuilder, fundingPoll func() (float64, bool)) *LiveFeed {
	for _, bar := range warmup {
		builder.Push(bar)
	}

	f := &LiveFeed{
		events: make(chan Event, 16),
		stop:   make(chan struct{}),
	}
	go func() {
		defer close(f.events)
		for {
			select {
			case <-f.stop:
				return
			case bar, ok := <-bars:
				if !ok {
					logger.Infof("[Feed] upstream bar channel closed")
					return
				}
				if fundingPoll != nil {
					if rate, ok := fundingPoll(); ok {
						builder.SetFundingRate(rate)
					}
				}
				aux := builder.Push(bar)
				select {
				case f.events <- Event{Bar: bar, Aux: aux}:
				case <-f.stop:
					return
				}
			}
		}
	}()
	return f
}

func (f *LiveFeed) Events() <-chan Event { return f.events }

func (f *LiveFeed) Stop() {
	f.once.Do(func() { close(f.stop) })
}
