package trader

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"gridcore/logger"
	"gridcore/market"
)

// PaperGateway simulates a limit-order book against the bar stream.
// An order rests until a bar's range touches its price, then fills in
// full at the limit price. Fills are delivered synchronously through the
// handler, so the caller observes them in placement order.
type PaperGateway struct {
	mu       sync.Mutex
	orders   map[string]*LimitOrderRequest
	order    []string // placement order, for deterministic fill delivery
	handler  FillHandler
	interval time.Duration // bar duration, stamps fills at bar close
}

func NewPaperGateway(interval time.Duration) *PaperGateway {
	if interval <= 0 {
		interval = time.Minute
	}
	return &PaperGateway{orders: make(map[string]*LimitOrderRequest), interval: interval}
}

func (g *PaperGateway) SetFillHandler(h FillHandler) {
	g.mu.Lock()
	g.handler = h
	g.mu.Unlock()
}

func (g *PaperGateway) PlaceLimitOrder(req *LimitOrderRequest) (*LimitOrderResult, error) {
	if req.Quantity <= 0 || req.Price <= 0 {
		return nil, fmt.Errorf("invalid order: price=%.8f qty=%.8f", req.Price, req.Quantity)
	}
	id := uuid.NewString()

	g.mu.Lock()
	stored := *req
	g.orders[id] = &stored
	g.order = append(g.order, id)
	g.mu.Unlock()

	logger.Debugf("[Paper] placed %s %s %.6f @ %.2f (%s)", req.Side, req.Symbol, req.Quantity, req.Price, id)
	return &LimitOrderResult{
		OrderID:  id,
		ClientID: req.ClientID,
		Symbol:   req.Symbol,
		Side:     req.Side,
		Price:    req.Price,
		Quantity: req.Quantity,
		Status:   "NEW",
	}, nil
}

func (g *PaperGateway) CancelOrder(symbol, orderID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.orders[orderID]; !ok {
		return fmt.Errorf("unknown order %s", orderID)
	}
	delete(g.orders, orderID)
	return nil
}

// OpenOrders reports the number of resting orders.
func (g *PaperGateway) OpenOrders() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.orders)
}

// OnBar fills every resting order the bar's range reached, oldest first,
// and delivers the fills through the handler before returning.
func (g *PaperGateway) OnBar(bar market.Bar) {
	g.mu.Lock()
	var fills []Fill
	kept := g.order[:0]
	for _, id := range g.order {
		req, ok := g.orders[id]
		if !ok {
			continue // cancelled
		}
		filled := (req.Side == "BUY" && bar.Low <= req.Price) ||
			(req.Side == "SELL" && bar.High >= req.Price)
		if !filled {
			kept = append(kept, id)
			continue
		}
		fills = append(fills, Fill{
			OrderID:   id,
			Symbol:    req.Symbol,
			Side:      req.Side,
			Price:     req.Price,
			Size:      req.Quantity,
			Timestamp: bar.Timestamp.Add(g.interval), // filled within the bar
		})
		delete(g.orders, id)
	}
	g.order = kept
	handler := g.handler
	g.mu.Unlock()

	if handler == nil {
		return
	}
	for _, fill := range fills {
		handler(fill)
	}
}
