package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cleanupEnv()

	cfg, err := Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, ":8080", cfg.ServerAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Empty(t, cfg.DatabaseURL)
	assert.Empty(t, cfg.NATSURL)
	assert.Equal(t, "localhost:7233", cfg.TemporalHost)
	assert.Equal(t, "default", cfg.TemporalNamespace)
	assert.Equal(t, "ledger-transactions", cfg.TemporalTaskQueue)
	assert.Equal(t, 30*time.Second, cfg.SettlementTimeout)
	assert.False(t, cfg.SettlementEnabled())
}

func TestLoad_CustomValues(t *testing.T) {
	os.Setenv("SERVER_ADDR", ":9090")
	os.Setenv("LOG_LEVEL", "debug")
	os.Setenv("DATABASE_URL", "postgres://localhost/ledger")
	os.Setenv("NATS_URL", "nats://localhost:4222")
	os.Setenv("TEMPORAL_TASK_QUEUE", "ledger-test")
	os.Setenv("SETTLEMENT_TIMEOUT", "45s")
	os.Setenv("SOLANA_RPC_URL", "https://api.mainnet-beta.solana.com")
	os.Setenv("SERVICE_KEYPAIR_PATH", "/etc/ledger/service.json")
	defer cleanupEnv()

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.ServerAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "postgres://localhost/ledger", cfg.DatabaseURL)
	assert.Equal(t, "nats://localhost:4222", cfg.NATSURL)
	assert.Equal(t, "ledger-test", cfg.TemporalTaskQueue)
	assert.Equal(t, 45*time.Second, cfg.SettlementTimeout)
	assert.True(t, cfg.SettlementEnabled())
}

func TestLoad_InvalidSettlementTimeout(t *testing.T) {
	os.Setenv("SETTLEMENT_TIMEOUT", "not-a-duration")
	defer cleanupEnv()

	cfg, err := Load()
	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "invalid duration")
}

func TestLoad_SettlementTimeoutTooShort(t *testing.T) {
	os.Setenv("SETTLEMENT_TIMEOUT", "100ms")
	defer cleanupEnv()

	cfg, err := Load()
	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "at least 1 second")
}

func TestLoad_PartialSolanaConfig(t *testing.T) {
	os.Setenv("SOLANA_RPC_URL", "https://api.devnet.solana.com")
	defer cleanupEnv()

	cfg, err := Load()
	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "must be set together")
}

func TestMustLoad_PanicsOnInvalid(t *testing.T) {
	os.Setenv("SETTLEMENT_TIMEOUT", "garbage")
	defer cleanupEnv()

	assert.Panics(t, func() { MustLoad() })
}

func cleanupEnv() {
	vars := []string{
		"SERVER_ADDR", "LOG_LEVEL", "DATABASE_URL", "NATS_URL",
		"TEMPORAL_HOST", "TEMPORAL_NAMESPACE", "TEMPORAL_TASK_QUEUE",
		"SETTLEMENT_TIMEOUT", "SOLANA_RPC_URL", "SERVICE_KEYPAIR_PATH",
	}
	for _, v := range vars {
		os.Unsetenv(v)
	}
}
