package grid

import "fmt"

// ConfigError reports invalid static configuration. It is the only error
// class that surfaces to the operator: the engine refuses to start on it.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid config %s: %s", e.Field, e.Reason)
}

func newConfigError(field, format string, args ...interface{}) *ConfigError {
	return &ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// AnomalyKind classifies per-bar conditions that are absorbed locally
// instead of being raised. They are reflected in state and records so
// downstream dashboards can alert without crashing the loop.
type AnomalyKind string

const (
	AnomalyNone AnomalyKind = ""
	// AnomalySellExceedsHoldings means a sell remained unmatched after the
	// FIFO fallback and was truncated to available holdings.
	AnomalySellExceedsHoldings AnomalyKind = "sell_exceeds_holdings"
)
