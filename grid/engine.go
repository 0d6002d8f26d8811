package grid

import (
	"fmt"
	"sync"
	"time"

	"gridcore/logger"
	"gridcore/market"
	"gridcore/trader"
)

// EventRecorder is the persistence boundary. The engine hands every
// intent, trade and snapshot to the recorder and never blocks on it:
// durability retries are the recorder's problem.
type EventRecorder interface {
	RecordIntent(symbol string, intent OrderIntent) error
	RecordTrade(symbol string, trade TradeRecord) error
	RecordSnapshot(snap Snapshot) error
}

type orderRef struct {
	Side       Side
	LevelIndex int
	Price      float64
}

// Engine is the per-symbol decision core. All mutation happens on the
// bar/fill path under one mutex; there is no internal concurrency, so
// every decision is a deterministic function of the event sequence.
type Engine struct {
	mu  sync.RWMutex
	cfg *Config

	plan      *LevelPlan
	matcher   *MatchingEngine
	sizing    *SizingPipeline
	inventory *InventoryTracker
	riskZone  *RiskZoneStateMachine
	throttle  *ThrottleManager

	gateway  trader.ExecutionGateway
	recorder EventRecorder

	// orderLevels maps live order IDs back to the slot that placed them.
	orderLevels map[string]orderRef

	killSwitch bool

	realizedPnL float64
	dailyPnL    float64
	dailyAnchor time.Time // UTC midnight of the current trading day

	peakEquity     float64
	maxDrawdownPct float64

	lastPrice float64
	lastAux   market.Aux
	lastRisk  RiskZoneState
	barCount  int
}

// NewEngine validates the config and builds an engine. The level plan is
// generated lazily on the first bar, once ATR context exists.
func NewEngine(cfg *Config, gateway trader.ExecutionGateway, recorder EventRecorder) (*Engine, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		cfg:         cfg,
		inventory:   NewInventoryTracker(cfg.Equity, cfg.Leverage, cfg.CapacityPct),
		riskZone:    NewRiskZoneStateMachine(cfg.Risk),
		throttle:    NewThrottleManager(cfg.Throttle),
		gateway:     gateway,
		recorder:    recorder,
		orderLevels: make(map[string]orderRef),
		peakEquity:  cfg.Equity,
		lastRisk:    RiskZoneState{Level: RiskNormal, GridEnabled: true},
	}
	gateway.SetFillHandler(e.OnFill)
	return e, nil
}

// OnBar processes one closed bar end to end: risk evaluation, trigger
// detection, sizing and order placement. It must be called from a single
// goroutine in strict bar order.
func (e *Engine) OnBar(ev market.Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	bar := ev.Bar
	e.lastAux = ev.Aux
	e.barCount++

	if e.plan == nil {
		if err := e.initPlan(bar.Close, ev.Aux); err != nil {
			return err
		}
		e.lastPrice = bar.Close
		e.matcher.ObserveBar(bar)
		return nil
	}

	e.rollTradingDay(bar.Timestamp)

	equity := e.equityAt(bar.Close)
	if equity > e.peakEquity {
		e.peakEquity = equity
	}
	if e.peakEquity > 0 {
		dd := (e.peakEquity - equity) / e.peakEquity
		if dd > e.maxDrawdownPct {
			e.maxDrawdownPct = dd
		}
	}

	invRatio := e.inventory.Ratio(bar.Close)
	risk := e.riskZone.Evaluate(RiskInput{
		Price:             bar.Close,
		Support:           e.cfg.Support,
		ATR:               ev.Aux.ATR,
		Cushion:           e.plan.Cushion,
		UnrealizedPnL:     e.unrealizedAt(bar.Close),
		RealizedPnL:       e.realizedPnL,
		Equity:            e.cfg.Equity,
		InventoryNotional: e.inventory.Notional(bar.Close),
		Capacity:          e.inventory.Capacity(),
		InventoryRatio:    invRatio,
		Now:               bar.Timestamp,
	})
	if risk.Level != e.lastRisk.Level {
		logger.Infof("[Engine] %s risk zone %s -> %s", e.cfg.Symbol, e.lastRisk.Level, risk.Level)
	}
	e.lastRisk = risk

	// When frozen the slots stay armed so they can fire on a later bar.
	triggers := e.matcher.CheckTriggers(bar)
	if len(triggers) > 0 && !e.killSwitch && risk.GridEnabled {
		e.placeTriggered(bar, ev.Aux, triggers, invRatio)
	}

	e.matcher.ObserveBar(bar)
	e.lastPrice = bar.Close

	if e.recorder != nil {
		if err := e.recorder.RecordSnapshot(e.snapshotLocked()); err != nil {
			logger.Warnf("[Engine] %s snapshot record failed: %v", e.cfg.Symbol, err)
		}
	}
	return nil
}

func (e *Engine) initPlan(mid float64, aux market.Aux) error {
	plan, err := GenerateLevels(e.cfg, mid, aux.ATR, aux.ATRMean)
	if err != nil {
		return err
	}
	sizing, err := NewSizingPipeline(e.cfg, plan.Levels())
	if err != nil {
		return err
	}
	e.plan = plan
	e.sizing = sizing
	e.matcher = NewMatchingEngine(plan, e.cfg.MakerFee)
	logger.Infof("[Engine] %s grid initialized: %d levels, spacing %.5f, range [%.2f, %.2f]",
		e.cfg.Symbol, plan.Levels(), plan.Spacing, plan.EffSupport, plan.EffResistance)
	return nil
}

func (e *Engine) placeTriggered(bar market.Bar, aux market.Aux, triggers []Trigger, invRatio float64) {
	buyMult, sellMult := e.riskZone.Multipliers(invRatio)
	throttleMult, throttleRule := e.throttle.Multiplier(ThrottleInput{
		Exposure:   e.inventory.LongExposure(),
		DailyPnL:   e.dailyPnL,
		CurrentATR: aux.ATR,
		AvgATR:     aux.ATRMean,
	})

	for _, trig := range triggers {
		in := &FactorInput{
			Side:             trig.Side,
			LevelIndex:       trig.LevelIndex,
			Price:            trig.Price,
			TrendScore:       aux.TrendScore,
			FundingRate:      aux.FundingRate,
			MinutesToFunding: aux.MinutesToFunding,
			RangePosition:    e.plan.RangePosition(bar.Close),
			VolScore:         aux.VolScore,
			InventoryRatio:   invRatio,
			RiskBuyMult:      buyMult,
			RiskSellMult:     sellMult,
		}
		res := e.sizing.Size(in, e.matcher.PairedHoldings(trig.LevelIndex), e.matcher.TotalHoldings())
		if res.Blocked {
			logger.Infof("[Engine] %s %s L%d suppressed by %s: %s",
				e.cfg.Symbol, trig.Side, trig.LevelIndex, res.BlockedBy, res.Reason)
			e.matcher.Suppress(trig.Side, trig.LevelIndex)
			continue
		}
		size := res.Size * throttleMult
		if size <= holdingsEpsilon {
			if throttleRule != "" && throttleMult == 0 {
				logger.Infof("[Engine] %s %s L%d throttled by %s rule",
					e.cfg.Symbol, trig.Side, trig.LevelIndex, throttleRule)
			}
			e.matcher.Suppress(trig.Side, trig.LevelIndex)
			continue
		}

		req := &trader.LimitOrderRequest{
			Symbol:   e.cfg.Symbol,
			Side:     wireSide(trig.Side),
			Price:    trig.Price,
			Quantity: size,
			PostOnly: true,
			ClientID: fmt.Sprintf("grid-%s-%d-%d", trig.Side, trig.LevelIndex, bar.Timestamp.UnixMilli()),
		}
		result, err := e.gateway.PlaceLimitOrder(req)
		if err != nil {
			logger.Errorf("[Engine] %s %s L%d order rejected: %v", e.cfg.Symbol, trig.Side, trig.LevelIndex, err)
			e.matcher.Suppress(trig.Side, trig.LevelIndex)
			continue
		}
		e.orderLevels[result.OrderID] = orderRef{Side: trig.Side, LevelIndex: trig.LevelIndex, Price: trig.Price}
		e.matcher.MarkTriggered(trig.Side, trig.LevelIndex)

		if e.recorder != nil {
			intent := OrderIntent{
				Side:       trig.Side,
				LevelIndex: trig.LevelIndex,
				Price:      trig.Price,
				Size:       size,
				Reason:     throttleRule,
			}
			if err := e.recorder.RecordIntent(e.cfg.Symbol, intent); err != nil {
				logger.Warnf("[Engine] %s intent record failed: %v", e.cfg.Symbol, err)
			}
		}
	}
}

// OnFill applies an execution confirmation. Buys open positions and arm
// the paired sell; sells settle against positions paired-level-first.
func (e *Engine) OnFill(fill trader.Fill) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ref, ok := e.orderLevels[fill.OrderID]
	if !ok {
		logger.Warnf("[Engine] %s fill for unknown order %s ignored", e.cfg.Symbol, fill.OrderID)
		return
	}
	delete(e.orderLevels, fill.OrderID)

	switch ref.Side {
	case SideBuy:
		e.matcher.OnBuyFill(ref.LevelIndex, fill.Size, fill.Timestamp)
		e.inventory.ApplyFill(SideBuy, fill.Size)
	case SideSell:
		trades, anomaly := e.matcher.OnSellFill(ref.LevelIndex, fill.Size, fill.Timestamp)
		var settled float64
		for _, tr := range trades {
			settled += tr.Size
			e.realizedPnL += tr.PnL
			e.dailyPnL += tr.PnL
			if e.recorder != nil {
				if err := e.recorder.RecordTrade(e.cfg.Symbol, tr); err != nil {
					logger.Warnf("[Engine] %s trade record failed: %v", e.cfg.Symbol, err)
				}
			}
		}
		e.inventory.ApplyFill(SideSell, settled)
		if anomaly != AnomalyNone {
			logger.Warnf("[Engine] %s sell fill anomaly at L%d: %s", e.cfg.Symbol, ref.LevelIndex, anomaly)
		}
	}
}

func wireSide(s Side) string {
	if s == SideBuy {
		return "BUY"
	}
	return "SELL"
}

// rollTradingDay resets the daily PnL at UTC midnight.
func (e *Engine) rollTradingDay(ts time.Time) {
	day := ts.UTC().Truncate(24 * time.Hour)
	if e.dailyAnchor.IsZero() {
		e.dailyAnchor = day
		return
	}
	if day.After(e.dailyAnchor) {
		logger.Infof("[Engine] %s trading day rolled, daily pnl %.4f banked", e.cfg.Symbol, e.dailyPnL)
		e.dailyPnL = 0
		e.dailyAnchor = day
	}
}

func (e *Engine) unrealizedAt(price float64) float64 {
	return e.matcher.TotalHoldings()*price - e.matcher.CostBasis()
}

func (e *Engine) equityAt(price float64) float64 {
	return e.cfg.Equity + e.realizedPnL + e.unrealizedAt(price)
}

// Kill permanently stops new order generation. Resting orders and open
// positions are left untouched.
func (e *Engine) Kill() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.killSwitch {
		e.killSwitch = true
		logger.Warnf("[Engine] %s kill switch engaged", e.cfg.Symbol)
	}
}

// Killed reports whether the kill switch has been engaged.
func (e *Engine) Killed() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.killSwitch
}

// Snapshot returns the current status view. Safe for concurrent reads
// from the API layer.
func (e *Engine) Snapshot() Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.snapshotLocked()
}

func (e *Engine) snapshotLocked() Snapshot {
	snap := Snapshot{
		Symbol:         e.cfg.Symbol,
		RealizedPnL:    e.realizedPnL,
		DailyPnL:       e.dailyPnL,
		MaxDrawdownPct: e.maxDrawdownPct,
		RiskLevel:      int(e.lastRisk.Level),
		ShutdownReason: e.lastRisk.ShutdownReason,
		GridEnabled:    e.lastRisk.GridEnabled,
		KillSwitch:     e.killSwitch,
		LastPrice:      e.lastPrice,
	}
	if e.matcher != nil {
		snap.Holdings = e.matcher.TotalHoldings()
		snap.CostBasis = e.matcher.CostBasis()
		snap.TotalTrades = len(e.matcher.Trades())
		snap.PendingBuys, snap.PendingSells = e.matcher.PendingCounts()
	}
	if e.lastPrice > 0 {
		snap.UnrealizedPnL = e.unrealizedAt(e.lastPrice)
		snap.Equity = e.equityAt(e.lastPrice)
		snap.InventoryRatio = e.inventory.Ratio(e.lastPrice)
	} else {
		snap.Equity = e.cfg.Equity
	}
	return snap
}

// Trades returns a copy of the settled trade log for the API layer.
func (e *Engine) Trades() []TradeRecord {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.matcher == nil {
		return nil
	}
	out := make([]TradeRecord, len(e.matcher.Trades()))
	copy(out, e.matcher.Trades())
	return out
}

// Positions returns a copy of the open positions for the API layer.
func (e *Engine) Positions() []OpenPosition {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.matcher == nil {
		return nil
	}
	return e.matcher.Positions()
}
