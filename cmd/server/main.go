package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/diboas/ledger/service/config"
	"github.com/diboas/ledger/service/events"
	"github.com/diboas/ledger/service/fees"
	"github.com/diboas/ledger/service/ledger"
	"github.com/diboas/ledger/service/metrics"
	"github.com/diboas/ledger/service/pricing"
	"github.com/diboas/ledger/service/server"
	"github.com/diboas/ledger/service/settlement"
	"github.com/diboas/ledger/service/store"
	"github.com/diboas/ledger/service/temporal"
)

func main() {
	// Load and validate configuration from environment
	// This fails fast if any required config is missing or invalid
	cfg := config.MustLoad()

	logger := setupLogger(cfg.LogLevel)
	logger.Info("starting server",
		"addr", cfg.ServerAddr,
		"log_level", cfg.LogLevel,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Persistence: Postgres when configured, in-memory otherwise
	var st store.Store
	if cfg.DatabaseURL != "" {
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
		st = store.NewPostgresStore(dbPool)
	} else {
		logger.Warn("DATABASE_URL not set, using in-memory store")
		st = store.NewMemoryStore()
	}

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

	metricsCollector := metrics.NewMetrics(nil) // nil uses default registry

	prices := pricing.NewStaticPriceService(defaultPrices())

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

	// Durable processing via Temporal; falls back to synchronous processing
	// inside the request when the Temporal server is unreachable.
	var processor temporal.Processor
	temporalClient, err := temporal.NewClient(cfg.TemporalHost, cfg.TemporalNamespace, cfg.TemporalTaskQueue, logger)
	if err != nil {
		logger.Warn("temporal unavailable, transactions will process synchronously", "error", err)
	} else {
		defer temporalClient.Close()
		processor = temporalClient
	}

	httpServer := server.New(cfg.ServerAddr, txns, balances, processor, metricsCollector, logger)

	logger.Info("server initialized, all dependencies ready",
		"nats_url", cfg.NATSURL,
		"temporal_host", cfg.TemporalHost,
	)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- httpServer.Start()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error("server error", "error", err)
		os.Exit(1)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown server gracefully", "error", err)
			os.Exit(1)
		}

		logger.Info("server shutdown complete")
	}
}

// defaultPrices seeds the static price table for non-spendable assets.
// Spendable assets are always priced at 1 by the price service itself.
func defaultPrices() map[string]decimal.Decimal {
	return map[string]decimal.Decimal{
		"BTC": decimal.NewFromInt(50000),
		"ETH": decimal.NewFromInt(2500),
		"SOL": decimal.NewFromInt(100),
		"SUI": decimal.NewFromInt(2),
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
