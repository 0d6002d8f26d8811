package store

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"gridcore/grid"
	"gridcore/logger"
)

// Sink is the durable target of the outbox. Writes must be idempotent
// per record key so a replayed entry changes nothing.
type Sink interface {
	SaveIntent(key, symbol string, intent grid.OrderIntent) error
	SaveTrade(key, symbol string, tr grid.TradeRecord) error
	SaveSnapshot(key string, snap grid.Snapshot) error
}

// StoreSink adapts a Store to the Sink interface.
type StoreSink struct {
	store *Store
}

func NewStoreSink(s *Store) *StoreSink {
	return &StoreSink{store: s}
}

func (s *StoreSink) SaveIntent(key, symbol string, intent grid.OrderIntent) error {
	return s.store.Intent().Save(key, symbol, intent)
}

func (s *StoreSink) SaveTrade(key, symbol string, tr grid.TradeRecord) error {
	return s.store.Trade().Save(key, symbol, tr)
}

func (s *StoreSink) SaveSnapshot(key string, snap grid.Snapshot) error {
	return s.store.Snapshot().Save(key, snap)
}

type outboxKind int

const (
	outboxIntent outboxKind = iota
	outboxTrade
	outboxSnapshot
)

type outboxEntry struct {
	kind   outboxKind
	key    string // assigned once at enqueue time, reused on every replay
	symbol string

	intent grid.OrderIntent
	trade  grid.TradeRecord
	snap   grid.Snapshot
}

// Outbox buffers engine events in memory and flushes them to the sink
// in order, retrying failed writes with backoff. Enqueueing never
// blocks the bar loop. It implements grid.EventRecorder.
type Outbox struct {
	sink Sink

	mu    sync.Mutex
	queue []outboxEntry

	// flushMu serializes flush cycles. The background worker and direct
	// Flush callers (shutdown path) may run concurrently; without this a
	// second flusher could pop an entry the first one already removed.
	flushMu sync.Mutex

	wake chan struct{}
	done chan struct{}
	once sync.Once

	flushInterval time.Duration
	maxBackoff    time.Duration
}

// NewOutbox starts the background flusher.
func NewOutbox(sink Sink) *Outbox {
	o := &Outbox{
		sink:          sink,
		wake:          make(chan struct{}, 1),
		done:          make(chan struct{}),
		flushInterval: time.Second,
		maxBackoff:    30 * time.Second,
	}
	go o.run()
	return o
}

// RecordIntent enqueues an order intent for durable write.
func (o *Outbox) RecordIntent(symbol string, intent grid.OrderIntent) error {
	o.enqueue(outboxEntry{kind: outboxIntent, key: uuid.NewString(), symbol: symbol, intent: intent})
	return nil
}

// RecordTrade enqueues a settled trade for durable write.
func (o *Outbox) RecordTrade(symbol string, tr grid.TradeRecord) error {
	o.enqueue(outboxEntry{kind: outboxTrade, key: uuid.NewString(), symbol: symbol, trade: tr})
	return nil
}

// RecordSnapshot enqueues a status snapshot for durable write.
func (o *Outbox) RecordSnapshot(snap grid.Snapshot) error {
	o.enqueue(outboxEntry{kind: outboxSnapshot, key: uuid.NewString(), symbol: snap.Symbol, snap: snap})
	return nil
}

func (o *Outbox) enqueue(e outboxEntry) {
	o.mu.Lock()
	o.queue = append(o.queue, e)
	o.mu.Unlock()
	select {
	case o.wake <- struct{}{}:
	default:
	}
}

func (o *Outbox) run() {
	ticker := time.NewTicker(o.flushInterval)
	defer ticker.Stop()
	backoff := o.flushInterval
	for {
		select {
		case <-o.done:
			o.Flush()
			return
		case <-o.wake:
		case <-ticker.C:
		}
		if err := o.Flush(); err != nil {
			logger.Warnf("[Outbox] flush failed, retrying in %v: %v", backoff, err)
			select {
			case <-o.done:
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > o.maxBackoff {
				backoff = o.maxBackoff
			}
		} else {
			backoff = o.flushInterval
		}
	}
}

// Flush writes every queued entry to the sink in order. On the first
// failure the remaining entries stay queued for the next attempt; the
// failed entry keeps its key, so the eventual replay is idempotent.
// Safe to call concurrently with the background worker.
func (o *Outbox) Flush() error {
	o.flushMu.Lock()
	defer o.flushMu.Unlock()
	for {
		o.mu.Lock()
		if len(o.queue) == 0 {
			o.mu.Unlock()
			return nil
		}
		e := o.queue[0]
		o.mu.Unlock()

		var err error
		switch e.kind {
		case outboxIntent:
			err = o.sink.SaveIntent(e.key, e.symbol, e.intent)
		case outboxTrade:
			err = o.sink.SaveTrade(e.key, e.symbol, e.trade)
		case outboxSnapshot:
			err = o.sink.SaveSnapshot(e.key, e.snap)
		}
		if err != nil {
			return err
		}

		o.mu.Lock()
		o.queue = o.queue[1:]
		o.mu.Unlock()
	}
}

// Pending returns the number of entries not yet flushed.
func (o *Outbox) Pending() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.queue)
}

// Close flushes remaining entries and stops the background worker.
func (o *Outbox) Close() {
	o.once.Do(func() { close(o.done) })
}
