package api

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"gridcore/grid"
	"gridcore/logger"
	"gridcore/store"
)

// Server exposes read-only engine status plus the kill switch over HTTP.
type Server struct {
	router     *gin.Engine
	store      *store.Store
	httpServer *http.Server
	port       int

	mu      sync.RWMutex
	engines map[string]*grid.Engine
}

// NewServer creates the API server. Engines are registered per symbol.
func NewServer(st *store.Store, port int) *Server {
	// Release mode keeps gin's request logging out of the bar loop output
	gin.SetMode(gin.ReleaseMode)

	router := gin.Default()
	router.Use(corsMiddleware())

	s := &Server{
		router:  router,
		store:   st,
		port:    port,
		engines: make(map[string]*grid.Engine),
	}
	s.setupRoutes()
	return s
}

// Register adds an engine under its symbol.
func (s *Server) Register(symbol string, engine *grid.Engine) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.engines[symbol] = engine
}

func (s *Server) engine(symbol string) (*grid.Engine, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.engines[symbol]
	return e, ok
}

// corsMiddleware CORS middleware
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusOK)
			return
		}

		c.Next()
	}
}

func (s *Server) setupRoutes() {
	api := s.router.Group("/api")
	{
		api.Any("/health", s.handleHealth)
		api.GET("/symbols", s.handleSymbols)
		api.GET("/status", s.handleStatus)
		api.GET("/positions", s.handlePositions)
		api.GET("/trades", s.handleTrades)
		api.GET("/intents", s.handleIntents)
		api.POST("/kill", s.handleKill)
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleSymbols(c *gin.Context) {
	s.mu.RLock()
	symbols := make([]string, 0, len(s.engines))
	for sym := range s.engines {
		symbols = append(symbols, sym)
	}
	s.mu.RUnlock()
	sort.Strings(symbols)
	c.JSON(http.StatusOK, gin.H{"symbols": symbols})
}

// handleStatus returns the live snapshot for one symbol.
func (s *Server) handleStatus(c *gin.Context) {
	symbol := c.Query("symbol")
	engine, ok := s.engine(symbol)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown symbol"})
		return
	}
	c.JSON(http.StatusOK, engine.Snapshot())
}

func (s *Server) handlePositions(c *gin.Context) {
	symbol := c.Query("symbol")
	engine, ok := s.engine(symbol)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown symbol"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"positions": engine.Positions()})
}

// handleTrades serves the persisted trade history, falling back to the
// in-memory log when the store has no rows yet.
func (s *Server) handleTrades(c *gin.Context) {
	symbol := c.Query("symbol")
	engine, ok := s.engine(symbol)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown symbol"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	if s.store != nil {
		rows, err := s.store.Trade().List(symbol, limit)
		if err == nil && len(rows) > 0 {
			c.JSON(http.StatusOK, gin.H{"trades": rows})
			return
		}
		if err != nil {
			logger.Warnf("[API] trade query failed for %s: %v", symbol, err)
		}
	}
	c.JSON(http.StatusOK, gin.H{"trades": engine.Trades()})
}

func (s *Server) handleIntents(c *gin.Context) {
	symbol := c.Query("symbol")
	if _, ok := s.engine(symbol); !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown symbol"})
		return
	}
	if s.store == nil {
		c.JSON(http.StatusOK, gin.H{"intents": []any{}})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	rows, err := s.store.Intent().List(symbol, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"intents": rows})
}

// handleKill engages the kill switch for one symbol, or for every
// registered engine when no symbol is given. Irreversible for the run.
func (s *Server) handleKill(c *gin.Context) {
	symbol := c.Query("symbol")
	if symbol != "" {
		engine, ok := s.engine(symbol)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown symbol"})
			return
		}
		engine.Kill()
		c.JSON(http.StatusOK, gin.H{"killed": []string{symbol}})
		return
	}

	s.mu.RLock()
	killed := make([]string, 0, len(s.engines))
	for sym, engine := range s.engines {
		engine.Kill()
		killed = append(killed, sym)
	}
	s.mu.RUnlock()
	sort.Strings(killed)
	c.JSON(http.StatusOK, gin.H{"killed": killed})
}

// Start runs the HTTP server. Blocks until shutdown.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	logger.Infof("[API] server starting at http://localhost%s", addr)
	logger.Infof("  GET  /api/health              - Health check")
	logger.Infof("  GET  /api/symbols             - Registered symbols")
	logger.Infof("  GET  /api/status?symbol=xxx   - Engine status snapshot")
	logger.Infof("  GET  /api/positions?symbol=xxx - Open positions")
	logger.Infof("  GET  /api/trades?symbol=xxx   - Settled trade history")
	logger.Infof("  GET  /api/intents?symbol=xxx  - Emitted order intents")
	logger.Infof("  POST /api/kill[?symbol=xxx]   - Engage kill switch")

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.router,
	}
	return s.httpServer.ListenAndServe()
}

// Stop shuts the HTTP server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// Router exposes the gin engine for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}
