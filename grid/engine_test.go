package grid

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/agiledragon/gomonkey/v2"
	"github.com/stretchr/testify/suite"

	"gridcore/market"
	"gridcore/trader"
)

// EngineTestSuite drives a full engine against the paper gateway, bar by
// bar, the way the production loop does.
type EngineTestSuite struct {
	suite.Suite

	cfg     *Config
	gateway *trader.PaperGateway
	engine  *Engine

	patches *gomonkey.Patches
	now     time.Time
}

func (s *EngineTestSuite) SetupTest() {
	s.cfg = testConfig()
	s.gateway = trader.NewPaperGateway(time.Minute)

	engine, err := NewEngine(s.cfg, s.gateway, nil)
	s.Require().NoError(err)
	s.engine = engine

	s.patches = gomonkey.NewPatches()
	s.now = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
}

func (s *EngineTestSuite) TearDownTest() {
	s.patches.Reset()
}

// step feeds one bar through the engine and then the gateway, matching
// the production ordering: orders placed on a crossing bar may fill
// within that bar's range.
func (s *EngineTestSuite) step(high, low, close float64) {
	s.now = s.now.Add(time.Minute)
	bar := market.Bar{
		Timestamp: s.now,
		Open:      close,
		High:      high,
		Low:       low,
		Close:     close,
	}
	ev := market.Event{
		Bar: bar,
		Aux: market.Aux{ATR: 1, ATRMean: 1, MinutesToFunding: 500, VolScore: 50},
	}
	s.Require().NoError(s.engine.OnBar(ev))
	s.gateway.OnBar(bar)
}

func (s *EngineTestSuite) TestInitializesOnFirstBar() {
	s.step(110.5, 109.5, 110)

	snap := s.engine.Snapshot()
	s.Equal("BTCUSDT", snap.Symbol)
	s.Greater(snap.PendingBuys, 0)
	s.Equal(0, snap.PendingSells)
	s.True(snap.GridEnabled)
}

func (s *EngineTestSuite) TestBuySellRoundTrip() {
	s.step(110.5, 109.6, 110) // init bar, mid 110

	// first buy level sits one spacing step below mid
	spacing := (s.cfg.MinReturn + 2*s.cfg.MakerFee) * s.cfg.SpacingMult
	buy0 := 110 / (1 + spacing)

	s.step(110.2, buy0-0.1, buy0-0.05) // cross down through the level
	s.Len(s.engine.Positions(), 1)
	s.Greater(s.engine.Snapshot().Holdings, 0.0)

	s.step(110.5, buy0, 110.3) // cross up through the paired sell at 110

	snap := s.engine.Snapshot()
	s.Equal(1, snap.TotalTrades)
	s.Greater(snap.RealizedPnL, 0.0)
	s.InDelta(0, snap.Holdings, 1e-9)
	s.Equal(0.0, snap.CostBasis)
	s.Empty(s.engine.Positions())
}

func (s *EngineTestSuite) TestKillSwitchStopsNewOrders() {
	s.step(110.5, 109.6, 110)
	s.engine.Kill()
	s.True(s.engine.Killed())

	s.step(110.2, 109.0, 109.2) // would trigger a buy otherwise

	s.Equal(0, s.gateway.OpenOrders())
	s.Empty(s.engine.Positions())
	s.True(s.engine.Snapshot().KillSwitch)
}

func (s *EngineTestSuite) TestShutdownFreezesGridAndRecovers() {
	s.step(110.5, 109.6, 110)

	// close below support - 3*ATR forces shutdown; the crash bar crosses
	// every buy level but none may be placed
	s.step(110, 92, 93)

	snap := s.engine.Snapshot()
	s.False(snap.GridEnabled)
	s.NotEmpty(snap.ShutdownReason)
	s.Equal(0, s.gateway.OpenOrders())
	s.Empty(s.engine.Positions())

	// recovery is automatic once the condition clears
	s.step(110.5, 109.8, 110.2)
	snap = s.engine.Snapshot()
	s.True(snap.GridEnabled)
	s.Empty(snap.ShutdownReason)
}

func (s *EngineTestSuite) TestGatewayRejectionRearmsSlot() {
	s.step(110.5, 109.6, 110)

	s.patches.ApplyMethod(reflect.TypeOf(s.gateway), "PlaceLimitOrder",
		func(_ *trader.PaperGateway, _ *trader.LimitOrderRequest) (*trader.LimitOrderResult, error) {
			return nil, errors.New("gateway unavailable")
		})

	spacing := (s.cfg.MinReturn + 2*s.cfg.MakerFee) * s.cfg.SpacingMult
	buy0 := 110 / (1 + spacing)
	pendingBefore := s.engine.Snapshot().PendingBuys

	s.step(110.2, buy0-0.1, buy0-0.05)

	s.Equal(0, s.gateway.OpenOrders())
	s.Empty(s.engine.Positions())
	// the slot went back to armed, not stuck in triggered limbo
	s.Equal(pendingBefore, s.engine.Snapshot().PendingBuys)

	s.patches.Reset()

	// once the gateway is healthy the same level can fire again
	s.step(buy0+0.3, buy0+0.2, buy0+0.25) // climb back above the level
	s.step(buy0+0.2, buy0-0.1, buy0-0.05)
	s.Len(s.engine.Positions(), 1)
}

func (s *EngineTestSuite) TestDailyPnLResetsAtMidnight() {
	s.step(110.5, 109.6, 110)

	spacing := (s.cfg.MinReturn + 2*s.cfg.MakerFee) * s.cfg.SpacingMult
	buy0 := 110 / (1 + spacing)
	s.step(110.2, buy0-0.1, buy0-0.05)
	s.step(110.5, buy0, 110.3)

	snap := s.engine.Snapshot()
	s.Greater(snap.DailyPnL, 0.0)
	realized := snap.RealizedPnL

	// jump past UTC midnight
	s.now = s.now.Add(24 * time.Hour)
	s.step(110.5, 109.8, 110.2)

	snap = s.engine.Snapshot()
	s.Equal(0.0, snap.DailyPnL)
	s.InDelta(realized, snap.RealizedPnL, 1e-12)
}

func (s *EngineTestSuite) TestUnknownFillIgnored() {
	s.step(110.5, 109.6, 110)
	s.NotPanics(func() {
		s.engine.OnFill(trader.Fill{OrderID: "bogus", Size: 1, Price: 110})
	})
	s.Empty(s.engine.Positions())
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineTestSuite))
}

func TestNewEngineRejectsBadConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Symbol = ""
	_, err := NewEngine(cfg, trader.NewPaperGateway(time.Minute), nil)
	if err == nil {
		t.Fatal("expected config validation error")
	}
}
