// Package metrics holds the Prometheus collectors for the ledger service.
// Following the explicit dependency injection pattern, the Metrics struct is
// passed to every component that records metrics; a nil *Metrics disables
// recording.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the application.
type Metrics struct {
	// Transaction metrics
	transactionsCreatedTotal   *prometheus.CounterVec
	transactionsProcessedTotal *prometheus.CounterVec
	transactionDuration        *prometheus.HistogramVec
	insufficientBalanceTotal   *prometheus.CounterVec

	// Balance metrics
	balanceOperationsTotal *prometheus.CounterVec
	totalValueLocked       prometheus.Gauge

	// Settlement metrics
	settlementCallsTotal   *prometheus.CounterVec
	settlementCallDuration *prometheus.HistogramVec

	// Event metrics
	eventsPublishedTotal *prometheus.CounterVec
	eventsDroppedTotal   prometheus.Counter

	// HTTP metrics
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates a Metrics instance and registers all collectors.
// If registry is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &Metrics{
		transactionsCreatedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_transactions_created_total",
				Help: "Total number of transactions created, by type",
			},
			[]string{"type"},
		),
		transactionsProcessedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_transactions_processed_total",
				Help: "Total number of processed transactions, by type and terminal status",
			},
			[]string{"type", "status"},
		),
		transactionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ledger_transaction_processing_duration_seconds",
				Help:    "Duration of transaction processing in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
			},
			[]string{"type"},
		),
		insufficientBalanceTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_insufficient_balance_total",
				Help: "Total number of operations rejected for insufficient balance",
			},
			[]string{"operation"},
		),
		balanceOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_balance_operations_total",
				Help: "Total number of balance mutations, by operation and outcome",
			},
			[]string{"operation", "status"},
		),
		totalValueLocked: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "ledger_total_value_locked_usd",
				Help: "USD value currently locked into yield strategies",
			},
		),
		settlementCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_settlement_calls_total",
				Help: "Total number of settlement calls, by status",
			},
			[]string{"status"},
		),
		settlementCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ledger_settlement_call_duration_seconds",
				Help:    "Duration of external settlement calls in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
			},
			[]string{"status"},
		),
		eventsPublishedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_events_published_total",
				Help: "Total number of domain events handed to the publisher, by kind",
			},
			[]string{"kind"},
		),
		eventsDroppedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "ledger_events_dropped_total",
				Help: "Total number of domain events dropped due to a full queue",
			},
		),
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_http_requests_total",
				Help: "Total number of HTTP requests, by method, path and status code",
			},
			[]string{"method", "path", "code"},
		),
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ledger_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
			},
			[]string{"method", "path"},
		),
	}
}

// RecordTransactionCreated increments the created counter.
func (m *Metrics) RecordTransactionCreated(txnType string) {
	if m == nil {
		return
	}
	m.transactionsCreatedTotal.WithLabelValues(txnType).Inc()
}

// RecordTransactionProcessed records a terminal processing outcome.
func (m *Metrics) RecordTransactionProcessed(txnType, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.transactionsProcessedTotal.WithLabelValues(txnType, status).Inc()
	m.transactionDuration.WithLabelValues(txnType).Observe(duration.Seconds())
}

// RecordInsufficientBalance counts a rejection for insufficient funds.
func (m *Metrics) RecordInsufficientBalance(operation string) {
	if m == nil {
		return
	}
	m.insufficientBalanceTotal.WithLabelValues(operation).Inc()
}

// RecordBalanceOperation counts a balance mutation attempt.
func (m *Metrics) RecordBalanceOperation(operation, status string) {
	if m == nil {
		return
	}
	m.balanceOperationsTotal.WithLabelValues(operation, status).Inc()
}

// SetTotalValueLocked updates the TVL gauge.
func (m *Metrics) SetTotalValueLocked(usd float64) {
	if m == nil {
		return
	}
	m.totalValueLocked.Set(usd)
}

// RecordSettlementCall records an external settlement attempt.
func (m *Metrics) RecordSettlementCall(status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.settlementCallsTotal.WithLabelValues(status).Inc()
	m.settlementCallDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordEventPublished counts an event handed to the publisher.
func (m *Metrics) RecordEventPublished(kind string) {
	if m == nil {
		return
	}
	m.eventsPublishedTotal.WithLabelValues(kind).Inc()
}

// RecordEventDropped counts an event dropped by the async queue.
func (m *Metrics) RecordEventDropped() {
	if m == nil {
		return
	}
	m.eventsDroppedTotal.Inc()
}

// RecordHTTPRequest records a completed HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path, code string, duration time.Duration) {
	if m == nil {
		return
	}
	m.httpRequestsTotal.WithLabelValues(method, path, code).Inc()
	m.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}
