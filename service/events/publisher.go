// Package events publishes ledger domain events. Delivery is at-least-once
// and never blocks the transaction's own completion: the services hand events
// to an AsyncPublisher whose worker drains a queue into the configured
// backend (NATS JetStream in production).
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Publisher delivers domain events to the event stream.
type Publisher interface {
	PublishTransaction(ctx context.Context, event *TransactionEvent) error
	PublishBalance(ctx context.Context, event *BalanceEvent) error
	Close() error
}

const (
	// StreamName is the JetStream stream holding ledger events.
	StreamName = "LEDGER"

	// StreamSubjects covers transaction and balance subjects.
	StreamSubjects = "ledger.>"

	// StreamRetention is how long events are retained.
	StreamRetention = 30 * 24 * time.Hour
)

// JetStreamPublisher publishes ledger events to NATS JetStream.
type JetStreamPublisher struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	logger *slog.Logger
}

// NewJetStreamPublisher connects to NATS and ensures the stream exists.
func NewJetStreamPublisher(natsURL string, logger *slog.Logger) (*JetStreamPublisher, error) {
	nc, err := nats.Connect(natsURL,
		nats.Name("ledger-publisher"),
		nats.Timeout(10*time.Second),
		nats.ReconnectWait(1*time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	p := &JetStreamPublisher{nc: nc, js: js, logger: logger}
	if err := p.ensureStream(); err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to ensure stream exists: %w", err)
	}

	logger.Info("NATS publisher initialized", "url", natsURL, "stream", StreamName)
	return p, nil
}

func (p *JetStreamPublisher) ensureStream() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := p.js.Stream(ctx, StreamName); err == nil {
		return nil
	}

	p.logger.Info("creating JetStream stream", "stream", StreamName)
	_, err := p.js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Description: "Ledger transaction and balance events",
		Subjects:    []string{StreamSubjects},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      StreamRetention,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}
	return nil
}

// PublishTransaction publishes a transaction event to
// "ledger.txn.{account_id}".
func (p *JetStreamPublisher) PublishTransaction(ctx context.Context, event *TransactionEvent) error {
	event.PublishedAt = time.Now().UTC()
	return p.publish(ctx, fmt.Sprintf("ledger.txn.%s", event.AccountID), event)
}

// PublishBalance publishes a balance event to "ledger.balance.{account_id}".
func (p *JetStreamPublisher) PublishBalance(ctx context.Context, event *BalanceEvent) error {
	event.PublishedAt = time.Now().UTC()
	return p.publish(ctx, fmt.Sprintf("ledger.balance.%s", event.AccountID), event)
}

func (p *JetStreamPublisher) publish(ctx context.Context, subject string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if _, err := p.js.Publish(ctx, subject, data); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	p.logger.Debug("published event", "subject", subject)
	return nil
}

// Close closes the connection to NATS.
func (p *JetStreamPublisher) Close() error {
	if p.nc != nil {
		p.nc.Close()
		p.logger.Info("NATS publisher closed")
	}
	return nil
}

// NopPublisher discards all events. Used in tests and embedded deployments
// without an event stream.
type NopPublisher struct{}

func (NopPublisher) PublishTransaction(context.Context, *TransactionEvent) error { return nil }
func (NopPublisher) PublishBalance(context.Context, *BalanceEvent) error         { return nil }
func (NopPublisher) Close() error                                                { return nil }
