package market

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"gridcore/logger"
)

const combinedStreamURL = "wss://fstream.binance.com/stream"

// KlineStreamClient consumes Binance futures combined kline streams over
// a single websocket and emits closed bars per symbol.
type KlineStreamClient struct {
	conn        *websocket.Conn
	mu          sync.RWMutex
	subscribers map[string]chan Bar
	reconnect   bool
	done        chan struct{}
	interval    string
}

func NewKlineStreamClient(interval string) *KlineStreamClient {
	return &KlineStreamClient{
		subscribers: make(map[string]chan Bar),
		reconnect:   true,
		done:        make(chan struct{}),
		interval:    interval,
	}
}

// Connect dials the combined-stream endpoint and starts the read loop.
func (c *KlineStreamClient) Connect() error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.Dial(combinedStreamURL, nil)
	if err != nil {
		return fmt.Errorf("kline stream connection failed: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	logger.Infof("[Stream] kline websocket connected")
	go c.readMessages()
	return nil
}

// Subscribe registers a symbol and returns its bar channel. Only closed
// candles are delivered, in exchange order.
func (c *KlineStreamClient) Subscribe(symbol string) (<-chan Bar, error) {
	stream := fmt.Sprintf("%s@kline_%s", strings.ToLower(symbol), c.interval)

	c.mu.Lock()
	ch, ok := c.subscribers[stream]
	if !ok {
		ch = make(chan Bar, 64)
		c.subscribers[stream] = ch
	}
	conn := c.conn
	c.mu.Unlock()
	if ok {
		return ch, nil
	}

	if conn == nil {
		return nil, fmt.Errorf("websocket not connected")
	}
	msg := map[string]interface{}{
		"method": "SUBSCRIBE",
		"params": []string{stream},
		"id":     time.Now().UnixNano(),
	}
	if err := conn.WriteJSON(msg); err != nil {
		return nil, fmt.Errorf("subscribe %s failed: %w", stream, err)
	}
	logger.Infof("[Stream] subscribed to %s", stream)
	return ch, nil
}

// Close stops the read loop and closes all subscriber channels.
func (c *KlineStreamClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reconnect = false
	select {
	case <-c.done:
	default:
		close(c.done)
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	for stream, ch := range c.subscribers {
		close(ch)
		delete(c.subscribers, stream)
	}
}

func (c *KlineStreamClient) readMessages() {
	for {
		select {
		case <-c.done:
			return
		default:
			c.mu.RLock()
			conn := c.conn
			c.mu.RUnlock()

			if conn == nil {
				time.Sleep(time.Second)
				continue
			}

			_, message, err := conn.ReadMessage()
			if err != nil {
				logger.Warnf("[Stream] read failed: %v", err)
				c.handleReconnect()
				return
			}
			c.handleCombinedMessage(message)
		}
	}
}

// combinedKlineEvent is the combined-stream envelope for kline payloads.
type combinedKlineEvent struct {
	Stream string `json:"stream"`
	Data   struct {
		EventTime int64 `json:"E"`
		Kline     struct {
			OpenTime int64  `json:"t"`
			Open     string `json:"o"`
			High     string `json:"h"`
			Low      string `json:"l"`
			Close    string `json:"c"`
			Volume   string `json:"v"`
			Closed   bool   `json:"x"`
		} `json:"k"`
	} `json:"data"`
}

func (c *KlineStreamClient) handleCombinedMessage(message []byte) {
	var event combinedKlineEvent
	if err := json.Unmarshal(message, &event); err != nil || event.Stream == "" {
		return
	}
	k := event.Data.Kline
	if !k.Closed {
		return
	}

	bar := Bar{
		Timestamp: time.UnixMilli(k.OpenTime).UTC(),
		Open:      parseFloat(k.Open),
		High:      parseFloat(k.High),
		Low:       parseFloat(k.Low),
		Close:     parseFloat(k.Close),
		Volume:    parseFloat(k.Volume),
	}

	c.mu.RLock()
	ch := c.subscribers[event.Stream]
	c.mu.RUnlock()
	if ch == nil {
		return
	}
	select {
	case ch <- bar:
	default:
		logger.Warnf("[Stream] subscriber for %s is slow, dropping bar", event.Stream)
	}
}

func (c *KlineStreamClient) handleReconnect() {
	c.mu.RLock()
	shouldReconnect := c.reconnect
	c.mu.RUnlock()
	if !shouldReconnect {
		return
	}

	logger.Infof("[Stream] reconnecting in 5s...")
	time.Sleep(5 * time.Second)

	if err := c.Connect(); err != nil {
		logger.Errorf("[Stream] reconnect failed: %v", err)
		go c.handleReconnect()
		return
	}

	// Re-subscribe existing streams on the fresh connection.
	c.mu.RLock()
	streams := make([]string, 0, len(c.subscribers))
	for stream := range c.subscribers {
		streams = append(streams, stream)
	}
	conn := c.conn
	c.mu.RUnlock()

	if conn != nil && len(streams) > 0 {
		msg := map[string]interface{}{
			"method": "SUBSCRIBE",
			"params": streams,
			"id":     time.Now().UnixNano(),
		}
		if err := conn.WriteJSON(msg); err != nil {
			logger.Errorf("[Stream] re-subscribe failed: %v", err)
		}
	}
}

func parseFloat(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}
