package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"gridcore/api"
	"gridcore/config"
	"gridcore/grid"
	"gridcore/logger"
	"gridcore/market"
	"gridcore/store"
	"gridcore/trader"
)

type symbolRuntime struct {
	engine  *grid.Engine
	gateway *trader.PaperGateway
	feed    market.Feed
}

func main() {
	// .env is optional; environment wins either way
	_ = godotenv.Load()

	config.Init()
	if err := config.LoadFile("config.json"); err != nil {
		logger.Fatalf("config load failed: %v", err)
	}
	cfg := config.Get()
	if err := cfg.Validate(); err != nil {
		logger.Fatalf("config invalid: %v", err)
	}
	if err := logger.Init(&cfg.Log); err != nil {
		logger.Fatalf("logger init failed: %v", err)
	}

	st, err := store.New(cfg.DBPath)
	if err != nil {
		logger.Fatalf("store init failed: %v", err)
	}
	defer st.Close()

	outbox := store.NewOutbox(store.NewStoreSink(st))
	defer outbox.Close()

	apiServer := api.NewServer(st, cfg.APIServerPort)
	go func() {
		if err := apiServer.Start(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("API server stopped: %v", err)
		}
	}()

	runtimes, err := buildRuntimes(cfg, outbox)
	if err != nil {
		logger.Fatalf("engine setup failed: %v", err)
	}
	for sym, rt := range runtimes {
		apiServer.Register(sym, rt.engine)
	}

	var wg sync.WaitGroup
	for sym, rt := range runtimes {
		wg.Add(1)
		go func(sym string, rt *symbolRuntime) {
			defer wg.Done()
			runBarLoop(sym, rt)
		}(sym, rt)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	donech := make(chan struct{})
	go func() {
		wg.Wait()
		close(donech)
	}()

	select {
	case sig := <-sigCh:
		logger.Warnf("received %v, engaging kill switch", sig)
		for _, rt := range runtimes {
			rt.engine.Kill()
			rt.feed.Stop()
		}
		wg.Wait()
	case <-donech:
		logger.Info("all feeds drained")
	}

	if err := outbox.Flush(); err != nil {
		logger.Warnf("final outbox flush failed: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Stop(ctx); err != nil {
		logger.Warnf("API server shutdown: %v", err)
	}
	logger.Info("shutdown complete")
}

// buildRuntimes assembles one engine, paper gateway and feed per symbol.
func buildRuntimes(cfg *config.Config, recorder grid.EventRecorder) (map[string]*symbolRuntime, error) {
	runtimes := make(map[string]*symbolRuntime, len(cfg.Grids))

	var stream *market.KlineStreamClient
	var backfiller *market.Backfiller
	if cfg.Mode == "live" {
		stream = market.NewKlineStreamClient(cfg.Interval)
		if err := stream.Connect(); err != nil {
			return nil, err
		}
		backfiller = market.NewBackfiller()
	}

	for _, gc := range cfg.Grids {
		gateway := trader.NewPaperGateway(cfg.BarInterval())
		engine, err := grid.NewEngine(gc, gateway, recorder)
		if err != nil {
			return nil, err
		}

		var feed market.Feed
		switch cfg.Mode {
		case "replay":
			bars, err := market.LoadBarsCSV(cfg.ReplayFile)
			if err != nil {
				return nil, err
			}
			feed = market.NewReplayFeed(bars, market.NewAuxBuilder())
		case "live":
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			warmup, err := backfiller.Klines(ctx, gc.Symbol, cfg.Interval, cfg.WarmupBars)
			cancel()
			if err != nil {
				return nil, err
			}
			liveBars, err := stream.Subscribe(gc.Symbol)
			if err != nil {
				return nil, err
			}
			symbol := gc.Symbol
			fundingPoll := func() (float64, bool) {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				rate, err := backfiller.FundingRate(ctx, symbol)
				if err != nil {
					logger.Debugf("[Feed] funding poll failed for %s: %v", symbol, err)
					return 0, false
				}
				return rate, true
			}
			feed = market.NewLiveFeed(warmup, liveBars, market.NewAuxBuilder(), fundingPoll)
		}

		runtimes[gc.Symbol] = &symbolRuntime{engine: engine, gateway: gateway, feed: feed}
		logger.Infof("engine ready for %s (%s mode)", gc.Symbol, cfg.Mode)
	}
	return runtimes, nil
}

// runBarLoop drains the feed into the engine. The paper gateway sees
// each bar after the engine, so an order placed on a crossing bar can
// fill within that same bar's range.
func runBarLoop(symbol string, rt *symbolRuntime) {
	for ev := range rt.feed.Events() {
		if err := rt.engine.OnBar(ev); err != nil {
			logger.Errorf("%s bar processing failed: %v", symbol, err)
			continue
		}
		rt.gateway.OnBar(ev.Bar)
	}
	logger.Infof("%s feed exhausted", symbol)
}
