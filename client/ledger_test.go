package client

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diboas/ledger/service/domain"
	"github.com/diboas/ledger/service/fees"
	"github.com/diboas/ledger/service/ledger"
	"github.com/diboas/ledger/service/pricing"
	"github.com/diboas/ledger/service/server"
	"github.com/diboas/ledger/service/settlement"
	"github.com/diboas/ledger/service/store"
)

// newTestClient runs the real HTTP surface behind httptest and returns a
// client pointed at it.
func newTestClient(t *testing.T) (*Client, *ledger.BalanceService) {
	t.Helper()
	st := store.NewMemoryStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	prices := pricing.NewStaticPriceService(map[string]decimal.Decimal{
		"BTC": decimal.NewFromInt(50000),
	})
	balances := ledger.NewBalanceService(st, prices, nil, nil, logger)
	txns := ledger.NewTransactionService(ledger.TransactionServiceConfig{
		Transactions: st,
		Balances:     balances,
		Fees:         fees.NewScheduleCalculator(),
		Settlement:   settlement.NewMockExecutor(),
		Logger:       logger,
	})
	srv := httptest.NewServer(server.New(":0", txns, balances, nil, nil, logger).Handler())
	t.Cleanup(srv.Close)

	return NewClient(srv.URL, srv.Client(), logger), balances
}

func TestClientTransactionLifecycle(t *testing.T) {
	c, balances := newTestClient(t)
	ctx := context.Background()

	_, err := c.InitializeBalance(ctx, "acct-1")
	require.NoError(t, err)
	_, err = balances.CreditBalance(ctx, "acct-1", decimal.NewFromInt(1000), "USD", "SOL")
	require.NoError(t, err)

	txn, err := c.CreateTransaction(ctx, CreateTransactionRequest{
		AccountID: "acct-1",
		Type:      "SEND",
		Amount:    decimal.NewFromInt(200),
		Asset:     "USD",
		Chain:     "SOL",
		Recipient: "alice",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, txn.Status)
	assert.True(t, txn.Amount.Equal(decimal.NewFromInt(200)))

	processed, err := c.ProcessTransaction(ctx, txn.ID)
	require.NoError(t, err)
	require.NotNil(t, processed.Transaction)
	assert.Equal(t, domain.StatusCompleted, processed.Transaction.Status)

	fetched, err := c.GetTransaction(ctx, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, fetched.Status)

	history, err := c.ListTransactions(ctx, "acct-1", 10, 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, txn.ID, history[0].ID)

	stats, err := c.GetStatistics(ctx, "acct-1")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalCount)
	assert.True(t, stats.CompletedVolume.Equal(decimal.NewFromInt(200)))
}

func TestClientCancelTransaction(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	txn, err := c.CreateTransaction(ctx, CreateTransactionRequest{
		AccountID: "acct-1",
		Type:      "ADD",
		Amount:    decimal.NewFromInt(50),
		Asset:     "USD",
		Chain:     "SOL",
	})
	require.NoError(t, err)

	cancelled, err := c.CancelTransaction(ctx, txn.ID, "fat finger")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, cancelled.Status)
	assert.Equal(t, "fat finger", cancelled.Metadata.CancellationReason)

	_, err = c.CancelTransaction(ctx, txn.ID, "again")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cancel")
}

func TestClientCreateTransaction_ServerError(t *testing.T) {
	c, _ := newTestClient(t)

	_, err := c.CreateTransaction(context.Background(), CreateTransactionRequest{
		AccountID: "acct-1",
		Type:      "NOT_A_TYPE",
		Amount:    decimal.NewFromInt(10),
		Asset:     "USD",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown transaction type")
}

func TestClientBalanceAndTransfer(t *testing.T) {
	c, balances := newTestClient(t)
	ctx := context.Background()

	_, err := c.InitializeBalance(ctx, "acct-1")
	require.NoError(t, err)
	_, err = balances.CreditBalance(ctx, "acct-1", decimal.NewFromInt(1000), "USD", "SOL")
	require.NoError(t, err)

	balance, err := c.GetBalance(ctx, "acct-1")
	require.NoError(t, err)
	assert.True(t, balance.AvailableForSpending.Equal(decimal.NewFromInt(1000)))

	result, err := c.Transfer(ctx, "acct-1", "USD", "BTC", decimal.NewFromInt(500), "BTC")
	require.NoError(t, err)
	assert.True(t, result.ToAmount.Equal(decimal.NewFromFloat(0.01)), "got %s", result.ToAmount)

	_, err = c.GetBalance(ctx, "missing")
	require.Error(t, err)
}

func TestClientStrategyFunds(t *testing.T) {
	c, balances := newTestClient(t)
	ctx := context.Background()

	_, err := c.InitializeBalance(ctx, "acct-1")
	require.NoError(t, err)
	_, err = balances.CreditBalance(ctx, "acct-1", decimal.NewFromInt(1000), "USDC", "SOL")
	require.NoError(t, err)

	locked, err := c.LockStrategyFunds(ctx, "acct-1", "strat-1", decimal.NewFromInt(400))
	require.NoError(t, err)
	assert.True(t, locked.StrategyBalance.Equal(decimal.NewFromInt(400)))

	released, err := c.ReleaseStrategyFunds(ctx, "acct-1", "strat-1", decimal.NewFromInt(400))
	require.NoError(t, err)
	assert.True(t, released.StrategyBalance.IsZero())
	assert.True(t, released.AvailableForSpending.Equal(decimal.NewFromInt(1000)))
}
