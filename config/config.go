// Package config carries process-level configuration loaded from the
// environment and from config.json. Per-symbol grid parameters live in
// the grid package; this layer only assembles them.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gridcore/grid"
	"gridcore/logger"
)

var global *Config

// Config is the process configuration.
type Config struct {
	APIServerPort int    `json:"api_server_port"`
	DBPath        string `json:"db_path"`

	// Mode selects the feed: "live" streams klines from the exchange,
	// "replay" drains a CSV file and exits.
	Mode       string `json:"mode"`
	ReplayFile string `json:"replay_file"`
	Interval   string `json:"interval"` // kline interval, e.g. 1m, 5m

	// WarmupBars is how much history to backfill before going live.
	WarmupBars int `json:"warmup_bars"`

	Log logger.Config `json:"log"`

	// Grids is one engine configuration per symbol.
	Grids []*grid.Config `json:"grids"`
}

// Init builds the global config from environment variables only.
// Values from config.json (see LoadFile) take precedence for grids.
func Init() {
	cfg := &Config{
		APIServerPort: 8080,
		DBPath:        "data/gridcore.db",
		Mode:          "live",
		Interval:      "1m",
		WarmupBars:    300,
	}

	if v := os.Getenv("API_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			cfg.APIServerPort = port
		}
	}
	if v := os.Getenv("DB_PATH"); v != "" {
		cfg.DBPath = strings.TrimSpace(v)
	}
	if v := os.Getenv("RUN_MODE"); v != "" {
		cfg.Mode = strings.ToLower(strings.TrimSpace(v))
	}
	if v := os.Getenv("REPLAY_FILE"); v != "" {
		cfg.ReplayFile = strings.TrimSpace(v)
	}
	if v := os.Getenv("KLINE_INTERVAL"); v != "" {
		cfg.Interval = strings.TrimSpace(v)
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = strings.ToLower(strings.TrimSpace(v))
	}

	global = cfg
}

// LoadFile merges config.json into the global config. A missing file
// is not an error; the env-derived defaults stand.
func LoadFile(path string) error {
	if global == nil {
		Init()
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		logger.Infof("[Config] %s not found, using defaults", path)
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, global); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

// BarInterval converts the kline interval string (Binance notation,
// e.g. "1m", "5m", "1h", "1d") into a duration. Unparseable values fall
// back to one minute.
func (c *Config) BarInterval() time.Duration {
	s := strings.TrimSpace(c.Interval)
	if len(s) < 2 {
		return time.Minute
	}
	n, err := strconv.Atoi(s[:len(s)-1])
	if err != nil || n <= 0 {
		return time.Minute
	}
	switch s[len(s)-1] {
	case 'm':
		return time.Duration(n) * time.Minute
	case 'h':
		return time.Duration(n) * time.Hour
	case 'd':
		return time.Duration(n) * 24 * time.Hour
	case 'w':
		return time.Duration(n) * 7 * 24 * time.Hour
	}
	return time.Minute
}

// Get returns the global config, initializing it on first use.
func Get() *Config {
	if global == nil {
		Init()
	}
	return global
}

// Validate checks the assembled configuration.
func (c *Config) Validate() error {
	switch c.Mode {
	case "live", "replay":
	default:
		return fmt.Errorf("unknown run mode %q", c.Mode)
	}
	if c.Mode == "replay" && c.ReplayFile == "" {
		return fmt.Errorf("replay mode requires replay_file")
	}
	if len(c.Grids) == 0 {
		return fmt.Errorf("no grid configurations given")
	}
	seen := make(map[string]bool)
	for _, g := range c.Grids {
		if seen[g.Symbol] {
			return fmt.Errorf("duplicate grid config for symbol %s", g.Symbol)
		}
		seen[g.Symbol] = true
	}
	return nil
}
