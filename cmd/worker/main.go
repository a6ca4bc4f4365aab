package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"github.com/diboas/ledger/service/config"
	"github.com/diboas/ledger/service/events"
	"github.com/diboas/ledger/service/fees"
	"github.com/diboas/ledger/service/ledger"
	"github.com/diboas/ledger/service/metrics"
	"github.com/diboas/ledger/service/pricing"
	"github.com/diboas/ledger/service/settlement"
	"github.com/diboas/ledger/service/store"
	"github.com/diboas/ledger/service/temporal"
)

func main() {
	// Load and validate configuration from environment
	cfg := config.MustLoad()

	logger := setupLogger(cfg.LogLevel)
	logger.Info("starting temporal worker",
		"temporal_host", cfg.TemporalHost,
		"namespace", cfg.TemporalNamespace,
		"task_queue", cfg.TemporalTaskQueue,
		"log_level", cfg.LogLevel,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Persistence: the worker must share the server's store, so an in-memory
	// fallback would silently process against empty state.
	if cfg.DatabaseURL == "" {
		logger.Error("DATABASE_URL is required for the worker")
		os.Exit(1)
	}
	dbPool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()

	if err := dbPool.Ping(ctx); err != nil {
		logger.Error("failed to ping database", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to database")
	st := store.NewPostgresStore(dbPool)

	metricsCollector := metrics.NewMetrics(nil) // nil uses default registry

	// Metrics HTTP server
	metricsAddr := getEnv("METRICS_ADDR", ":9091")
	metricsServer := &http.Server{
		Addr:    metricsAddr,
		Handler: promhttp.Handler(),
	}
	go func() {
		logger.Info("starting metrics HTTP server", "addr", metricsAddr)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown metrics server", "error", err)
		}
	}()

	// Events: JetStream when configured, disabled otherwise
	var publisher events.Publisher
	if cfg.NATSURL != "" {
		jsPublisher, err := events.NewJetStreamPublisher(cfg.NATSURL, logger)
		if err != nil {
			logger.Error("failed to create NATS publisher", "error", err)
			os.Exit(1)
		}
		async := events.NewAsyncPublisher(jsPublisher, 1024, logger)
		defer async.Close()
		publisher = async
		logger.Info("connected to NATS", "url", cfg.NATSURL)
	} else {
		logger.Warn("NATS_URL not set, event publishing disabled")
	}

	// Settlement: on-chain Solana when configured, mock otherwise
	var settler settlement.Executor
	if cfg.SettlementEnabled() {
		solanaExecutor, err := settlement.NewSolanaExecutorFromURL(cfg.SolanaRPCURL, cfg.ServiceKeypairPath, logger)
		if err != nil {
			logger.Error("failed to create solana settlement executor", "error", err)
			os.Exit(1)
		}
		settler = solanaExecutor
		logger.Info("initialized solana settlement executor", "rpc_url", cfg.SolanaRPCURL)
	} else {
		logger.Warn("solana settlement not configured, using mock executor")
		settler = settlement.NewMockExecutor()
	}

	prices := pricing.NewStaticPriceService(map[string]decimal.Decimal{
		"BTC": decimal.NewFromInt(50000),
		"ETH": decimal.NewFromInt(2500),
		"SOL": decimal.NewFromInt(100),
		"SUI": decimal.NewFromInt(2),
	})

	balances := ledger.NewBalanceService(st, prices, publisher, metricsCollector, logger)
	txns := ledger.NewTransactionService(ledger.TransactionServiceConfig{
		Transactions:      st,
		Balances:          balances,
		Fees:              fees.NewScheduleCalculator(),
		Settlement:        settler,
		Publisher:         publisher,
		Metrics:           metricsCollector,
		Logger:            logger,
		SettlementTimeout: cfg.SettlementTimeout,
	})

	worker, err := temporal.NewWorker(temporal.WorkerConfig{
		TemporalHost:      cfg.TemporalHost,
		TemporalNamespace: cfg.TemporalNamespace,
		TaskQueue:         cfg.TemporalTaskQueue,
		Transactions:      txns,
		Logger:            logger,
	})
	if err != nil {
		logger.Error("failed to create temporal worker", "error", err)
		os.Exit(1)
	}

	logger.Info("temporal worker initialized, all dependencies ready",
		"temporal_host", cfg.TemporalHost,
		"temporal_namespace", cfg.TemporalNamespace,
		"task_queue", cfg.TemporalTaskQueue,
	)

	workerErrors := make(chan error, 1)
	go func() {
		workerErrors <- worker.Start()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-workerErrors:
		logger.Error("temporal worker error", "error", err)
		os.Exit(1)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
		worker.Stop()
		logger.Info("shutdown complete")
	}
}

// setupLogger creates a structured logger with the given log level.
func setupLogger(levelStr string) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

// getEnv returns the value of an environment variable or a default if not set.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
