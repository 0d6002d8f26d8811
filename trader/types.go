// Package trader is the execution boundary: the decision core emits
// order intents through an ExecutionGateway and receives fills back
// through a registered handler, in confirmation order.
package trader

import "time"

// LimitOrderRequest is a resting limit order the engine wants placed.
type LimitOrderRequest struct {
	Symbol   string
	Side     string // BUY or SELL
	Price    float64
	Quantity float64
	PostOnly bool
	ClientID string
}

// LimitOrderResult reports the placed order.
type LimitOrderResult struct {
	OrderID  string
	ClientID string
	Symbol   string
	Side     string
	Price    float64
	Quantity float64
	Status   string
}

// Fill is an asynchronous execution confirmation. Fills for one symbol
// are delivered strictly in confirmation order.
type Fill struct {
	OrderID   string
	Symbol    string
	Side      string
	Price     float64
	Size      float64
	Timestamp time.Time
}

// FillHandler receives fills. At most one outstanding fill is processed
// at a time per symbol.
type FillHandler func(Fill)

// ExecutionGateway abstracts the exchange connection. Implementations
// must deliver fills through the registered handler only.
type ExecutionGateway interface {
	PlaceLimitOrder(req *LimitOrderRequest) (*LimitOrderResult, error)
	CancelOrder(symbol, orderID string) error
	SetFillHandler(h FillHandler)
}
