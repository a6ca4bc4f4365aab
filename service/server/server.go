// Package server exposes the ledger over HTTP: transaction lifecycle
// endpoints, balance queries and mutations, and strategy fund operations.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/diboas/ledger/service/ledger"
	"github.com/diboas/ledger/service/metrics"
	"github.com/diboas/ledger/service/temporal"
)

// Server represents the HTTP server for the ledger service.
type Server struct {
	addr      string
	txns      *ledger.TransactionService
	balances  *ledger.BalanceService
	processor temporal.Processor
	metrics   *metrics.Metrics
	logger    *slog.Logger
	server    *http.Server
}

// New creates a new HTTP server with the given dependencies.
// The processor is optional: when set, transaction processing runs as a
// durable Temporal workflow; when nil, processing runs synchronously in the
// request. The metrics is optional - if nil, no metrics are recorded.
func New(addr string, txns *ledger.TransactionService, balances *ledger.BalanceService, processor temporal.Processor, m *metrics.Metrics, logger *slog.Logger) *Server {
	return &Server{
		addr:      addr,
		txns:      txns,
		balances:  balances,
		processor: processor,
		metrics:   m,
		logger:    logger,
	}
}

// Handler builds the route table. Exposed separately from Start so tests can
// drive it through httptest.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	route := func(pattern string, h http.Handler) {
		mux.Handle(pattern, s.metrics.HTTPMiddleware(pattern, h))
	}

	// Transaction routes
	route("POST /api/v1/transactions", handleCreateTransaction(s.txns, s.logger))
	route("GET /api/v1/transactions/{id}", handleGetTransaction(s.txns, s.logger))
	route("POST /api/v1/transactions/{id}/process", handleProcessTransaction(s.txns, s.processor, s.logger))
	route("POST /api/v1/transactions/{id}/cancel", handleCancelTransaction(s.txns, s.logger))
	route("GET /api/v1/transactions", handleListTransactions(s.txns, s.logger))

	// Balance routes
	route("POST /api/v1/accounts/{id}/balance", handleInitializeBalance(s.balances, s.logger))
	route("GET /api/v1/accounts/{id}/balance", handleGetBalance(s.balances, s.logger))
	route("GET /api/v1/accounts/{id}/balance/assets", handleGetBalanceAssets(s.balances, s.logger))
	route("GET /api/v1/accounts/{id}/balance/chains", handleGetBalanceChains(s.balances, s.logger))
	route("GET /api/v1/accounts/{id}/statistics", handleGetStatistics(s.txns, s.logger))
	route("POST /api/v1/accounts/{id}/transfers", handleTransfer(s.balances, s.logger))

	// Strategy routes
	route("POST /api/v1/accounts/{id}/strategies/{strategyID}/lock", handleLockStrategyFunds(s.balances, s.logger))
	route("POST /api/v1/accounts/{id}/strategies/{strategyID}/release", handleReleaseStrategyFunds(s.balances, s.logger))

	// Health check endpoint
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Prometheus metrics endpoint (if metrics collector is configured)
	if s.metrics != nil {
		mux.Handle("GET /metrics", promhttp.Handler())
	}

	return corsMiddleware(mux)
}

// Start starts the HTTP server and blocks until shutdown.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting HTTP server", "addr", s.addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// corsMiddleware adds CORS headers to all responses and handles OPTIONS preflight requests.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "3600")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
