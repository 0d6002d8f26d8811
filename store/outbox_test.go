package store

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridcore/grid"
)

// flakySink fails the first failures writes, then accepts. It records
// every accepted key so replays can be checked for duplicates.
type flakySink struct {
	mu       sync.Mutex
	failures int
	attempts int
	hold     time.Duration
	seen     map[string]int
}

func newFlakySink(failures int) *flakySink {
	return &flakySink{failures: failures, seen: make(map[string]int)}
}

func (s *flakySink) accept(key string) error {
	if s.hold > 0 {
		time.Sleep(s.hold)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts++
	if s.attempts <= s.failures {
		return errors.New("sink unavailable")
	}
	s.seen[key]++
	return nil
}

func (s *flakySink) SaveIntent(key, _ string, _ grid.OrderIntent) error { return s.accept(key) }
func (s *flakySink) SaveTrade(key, _ string, _ grid.TradeRecord) error  { return s.accept(key) }
func (s *flakySink) SaveSnapshot(key string, _ grid.Snapshot) error     { return s.accept(key) }

func (s *flakySink) counts() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int, len(s.seen))
	for k, v := range s.seen {
		out[k] = v
	}
	return out
}

func TestOutboxFlushesInOrder(t *testing.T) {
	sink := newFlakySink(0)
	o := &Outbox{sink: sink}

	require.NoError(t, o.RecordIntent("BTCUSDT", grid.OrderIntent{Side: grid.SideBuy}))
	require.NoError(t, o.RecordTrade("BTCUSDT", grid.TradeRecord{Size: 1}))
	require.NoError(t, o.RecordSnapshot(grid.Snapshot{Symbol: "BTCUSDT"}))
	assert.Equal(t, 3, o.Pending())

	require.NoError(t, o.Flush())
	assert.Equal(t, 0, o.Pending())
	assert.Len(t, sink.counts(), 3)
}

func TestOutboxRetryKeepsRecordKey(t *testing.T) {
	sink := newFlakySink(2)
	o := &Outbox{sink: sink}

	require.NoError(t, o.RecordTrade("BTCUSDT", grid.TradeRecord{Size: 1}))

	// two failed flushes leave the entry queued with its original key
	require.Error(t, o.Flush())
	require.Error(t, o.Flush())
	assert.Equal(t, 1, o.Pending())

	require.NoError(t, o.Flush())
	assert.Equal(t, 0, o.Pending())

	// the eventual write happened exactly once, under one key
	counts := sink.counts()
	require.Len(t, counts, 1)
	for _, n := range counts {
		assert.Equal(t, 1, n)
	}
}

func TestOutboxFailureBlocksLaterEntries(t *testing.T) {
	sink := newFlakySink(1)
	o := &Outbox{sink: sink}

	require.NoError(t, o.RecordTrade("BTCUSDT", grid.TradeRecord{Size: 1}))
	require.NoError(t, o.RecordTrade("BTCUSDT", grid.TradeRecord{Size: 2}))

	require.Error(t, o.Flush())
	// nothing was skipped past the failed head
	assert.Equal(t, 2, o.Pending())

	require.NoError(t, o.Flush())
	assert.Equal(t, 0, o.Pending())
	assert.Len(t, sink.counts(), 2)
}

func TestOutboxConcurrentFlushWritesEachEntryOnce(t *testing.T) {
	sink := newFlakySink(0)
	sink.hold = 2 * time.Millisecond
	o := &Outbox{sink: sink}

	for i := 0; i < 5; i++ {
		require.NoError(t, o.RecordTrade("BTCUSDT", grid.TradeRecord{Size: float64(i + 1)}))
	}

	// the background worker and the shutdown path can flush at the same
	// time; both racing over one queue must still deliver every entry
	// exactly once and leave the queue intact
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, o.Flush())
		}()
	}
	wg.Wait()

	assert.Equal(t, 0, o.Pending())
	counts := sink.counts()
	require.Len(t, counts, 5)
	for key, n := range counts {
		assert.Equal(t, 1, n, "entry %s written more than once", key)
	}
}

func TestOutboxAgainstRealStore(t *testing.T) {
	st := testStore(t)
	o := NewOutbox(NewStoreSink(st))
	defer o.Close()

	require.NoError(t, o.RecordTrade("BTCUSDT", sampleTrade()))
	require.NoError(t, o.Flush())

	rows, err := st.Trade().List("BTCUSDT", 10)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}
