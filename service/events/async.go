package events

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// deliverTimeout bounds a single delivery attempt by the worker.
const deliverTimeout = 10 * time.Second

type envelope struct {
	txn     *TransactionEvent
	balance *BalanceEvent
}

// AsyncPublisher decouples event delivery from the caller's critical path.
// Publish calls enqueue onto a buffered channel and return immediately; a
// worker goroutine drains the queue into the wrapped publisher. When the
// queue is full the event is dropped and counted rather than blocking the
// transaction that produced it.
type AsyncPublisher struct {
	inner  Publisher
	queue  chan envelope
	logger *slog.Logger

	mu      sync.Mutex
	dropped int64
	closed  bool
	done    chan struct{}
}

// NewAsyncPublisher wraps inner with a queue of the given size and starts the
// delivery worker.
func NewAsyncPublisher(inner Publisher, queueSize int, logger *slog.Logger) *AsyncPublisher {
	if queueSize <= 0 {
		queueSize = 256
	}
	p := &AsyncPublisher{
		inner:  inner,
		queue:  make(chan envelope, queueSize),
		logger: logger,
		done:   make(chan struct{}),
	}
	go p.run()
	return p
}

func (p *AsyncPublisher) run() {
	defer close(p.done)
	for env := range p.queue {
		ctx, cancel := context.WithTimeout(context.Background(), deliverTimeout)
		var err error
		switch {
		case env.txn != nil:
			err = p.inner.PublishTransaction(ctx, env.txn)
		case env.balance != nil:
			err = p.inner.PublishBalance(ctx, env.balance)
		}
		cancel()
		if err != nil {
			// At-least-once is best effort here: one immediate retry, then
			// the event is logged and abandoned.
			ctx, cancel := context.WithTimeout(context.Background(), deliverTimeout)
			switch {
			case env.txn != nil:
				err = p.inner.PublishTransaction(ctx, env.txn)
			case env.balance != nil:
				err = p.inner.PublishBalance(ctx, env.balance)
			}
			cancel()
			if err != nil {
				p.logger.Error("failed to deliver event", "error", err)
			}
		}
	}
}

// PublishTransaction enqueues a transaction event without blocking.
func (p *AsyncPublisher) PublishTransaction(_ context.Context, event *TransactionEvent) error {
	p.enqueue(envelope{txn: event})
	return nil
}

// PublishBalance enqueues a balance event without blocking.
func (p *AsyncPublisher) PublishBalance(_ context.Context, event *BalanceEvent) error {
	p.enqueue(envelope{balance: event})
	return nil
}

func (p *AsyncPublisher) enqueue(env envelope) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	select {
	case p.queue <- env:
		p.mu.Unlock()
	default:
		p.dropped++
		dropped := p.dropped
		p.mu.Unlock()
		p.logger.Warn("event queue full, dropping event", "dropped_total", dropped)
	}
}

// Dropped reports how many events were dropped due to a full queue.
func (p *AsyncPublisher) Dropped() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dropped
}

// Close drains the queue, waits for the worker to finish, and closes the
// wrapped publisher.
func (p *AsyncPublisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	close(p.queue)
	<-p.done
	return p.inner.Close()
}
