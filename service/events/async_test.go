package events

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// capturePublisher records events and optionally fails the first N deliveries.
type capturePublisher struct {
	mu       sync.Mutex
	txns     []*TransactionEvent
	balances []*BalanceEvent
	failLeft int
	block    chan struct{} // if non-nil, deliveries wait on this
}

func (c *capturePublisher) PublishTransaction(_ context.Context, event *TransactionEvent) error {
	if c.block != nil {
		<-c.block
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failLeft > 0 {
		c.failLeft--
		return errors.New("broker unavailable")
	}
	c.txns = append(c.txns, event)
	return nil
}

func (c *capturePublisher) PublishBalance(_ context.Context, event *BalanceEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.balances = append(c.balances, event)
	return nil
}

func (c *capturePublisher) Close() error { return nil }

func (c *capturePublisher) transactionCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.txns)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestAsyncPublisher_DeliversInBackground(t *testing.T) {
	capture := &capturePublisher{}
	p := NewAsyncPublisher(capture, 16, testLogger())

	require.NoError(t, p.PublishTransaction(context.Background(), &TransactionEvent{TransactionID: "t1", AccountID: "a1"}))
	require.NoError(t, p.PublishBalance(context.Background(), &BalanceEvent{AccountID: "a1"}))
	require.NoError(t, p.Close())

	assert.Equal(t, 1, capture.transactionCount())
	assert.Len(t, capture.balances, 1)
	assert.EqualValues(t, 0, p.Dropped())
}

func TestAsyncPublisher_RetriesOnce(t *testing.T) {
	capture := &capturePublisher{failLeft: 1}
	p := NewAsyncPublisher(capture, 16, testLogger())

	require.NoError(t, p.PublishTransaction(context.Background(), &TransactionEvent{TransactionID: "t1"}))
	require.NoError(t, p.Close())

	assert.Equal(t, 1, capture.transactionCount(), "second attempt should have succeeded")
}

func TestAsyncPublisher_DropsWhenFull(t *testing.T) {
	block := make(chan struct{})
	capture := &capturePublisher{block: block}
	p := NewAsyncPublisher(capture, 1, testLogger())

	// First event is picked up by the worker and blocks; second fills the
	// queue; third must be dropped without blocking the caller.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 3; i++ {
			_ = p.PublishTransaction(context.Background(), &TransactionEvent{TransactionID: "t"})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked the caller")
	}
	assert.Eventually(t, func() bool { return p.Dropped() >= 1 }, 2*time.Second, 10*time.Millisecond)

	close(block)
	require.NoError(t, p.Close())
}

func TestAsyncPublisher_PublishAfterClose(t *testing.T) {
	capture := &capturePublisher{}
	p := NewAsyncPublisher(capture, 4, testLogger())
	require.NoError(t, p.Close())

	// Must not panic on a closed queue.
	assert.NoError(t, p.PublishTransaction(context.Background(), &TransactionEvent{}))
	assert.NoError(t, p.Close(), "double close is a no-op")
}
