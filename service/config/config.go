// Package config loads application configuration from environment variables
// with fail-fast validation at startup.
package config

import (
	"fmt"
	"os"
	"time"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Server configuration
	ServerAddr string
	LogLevel   string

	// Database configuration. Empty selects the in-memory store, which is
	// suitable for development and tests only.
	DatabaseURL string

	// NATS configuration. Empty disables event publishing.
	NATSURL string

	// Temporal configuration
	TemporalHost      string
	TemporalNamespace string
	TemporalTaskQueue string

	// Settlement configuration
	SettlementTimeout  time.Duration
	SolanaRPCURL       string
	ServiceKeypairPath string
}

// Load reads configuration from environment variables and validates it.
// Returns an error if any setting is invalid.
func Load() (*Config, error) {
	cfg := &Config{}
	var errs []error

	// Server configuration
	cfg.ServerAddr = getEnvOrDefault("SERVER_ADDR", ":8080")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	// Optional backends: absent DATABASE_URL falls back to the in-memory
	// store, absent NATS_URL disables events.
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.NATSURL = os.Getenv("NATS_URL")

	// Temporal configuration
	cfg.TemporalHost = getEnvOrDefault("TEMPORAL_HOST", "localhost:7233")
	cfg.TemporalNamespace = getEnvOrDefault("TEMPORAL_NAMESPACE", "default")
	cfg.TemporalTaskQueue = getEnvOrDefault("TEMPORAL_TASK_QUEUE", "ledger-transactions")

	// Settlement configuration
	timeout, err := parseDuration("SETTLEMENT_TIMEOUT", "30s")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.SettlementTimeout = timeout
	}
	cfg.SolanaRPCURL = os.Getenv("SOLANA_RPC_URL")
	cfg.ServiceKeypairPath = os.Getenv("SERVICE_KEYPAIR_PATH")

	// A keypair without an RPC endpoint (or vice versa) is a misconfigured
	// settlement backend.
	if (cfg.SolanaRPCURL == "") != (cfg.ServiceKeypairPath == "") {
		errs = append(errs, fmt.Errorf("SOLANA_RPC_URL and SERVICE_KEYPAIR_PATH must be set together"))
	}

	if cfg.SettlementTimeout < time.Second {
		errs = append(errs, fmt.Errorf("SETTLEMENT_TIMEOUT must be at least 1 second"))
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %v", errs)
	}

	return cfg, nil
}

// MustLoad is like Load but panics if configuration is invalid.
// Useful for server initialization where misconfiguration should halt startup.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// SettlementEnabled reports whether on-chain settlement is configured. When
// false the service uses the mock executor.
func (c *Config) SettlementEnabled() bool {
	return c.SolanaRPCURL != "" && c.ServiceKeypairPath != ""
}

// getEnvOrDefault returns the environment variable value or a default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseDuration parses a duration from an environment variable or uses a default.
func parseDuration(key, defaultValue string) (time.Duration, error) {
	value := getEnvOrDefault(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, value, err)
	}
	return duration, nil
}
