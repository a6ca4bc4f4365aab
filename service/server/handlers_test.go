package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diboas/ledger/service/domain"
	"github.com/diboas/ledger/service/fees"
	"github.com/diboas/ledger/service/ledger"
	"github.com/diboas/ledger/service/pricing"
	"github.com/diboas/ledger/service/settlement"
	"github.com/diboas/ledger/service/store"
)

type testServer struct {
	handler  http.Handler
	txns     *ledger.TransactionService
	balances *ledger.BalanceService
	settler  *settlement.MockExecutor
}

// fakeProcessor satisfies temporal.Processor without a Temporal server.
type fakeProcessor struct {
	started []string
}

func (f *fakeProcessor) StartProcessing(_ context.Context, transactionID string) (string, error) {
	f.started = append(f.started, transactionID)
	return "run-" + transactionID, nil
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	st := store.NewMemoryStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	prices := pricing.NewStaticPriceService(map[string]decimal.Decimal{
		"BTC": decimal.NewFromInt(50000),
	})
	balances := ledger.NewBalanceService(st, prices, nil, nil, logger)
	settler := settlement.NewMockExecutor()
	txns := ledger.NewTransactionService(ledger.TransactionServiceConfig{
		Transactions: st,
		Balances:     balances,
		Fees:         fees.NewScheduleCalculator(),
		Settlement:   settler,
		Logger:       logger,
	})
	srv := New(":0", txns, balances, nil, nil, logger)
	return &testServer{
		handler:  srv.Handler(),
		txns:     txns,
		balances: balances,
		settler:  settler,
	}
}

func (ts *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(buf)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) seed(t *testing.T, accountID string, amount int64) {
	t.Helper()
	ctx := context.Background()
	_, err := ts.balances.InitializeBalance(ctx, accountID)
	require.NoError(t, err)
	if amount > 0 {
		_, err = ts.balances.CreditBalance(ctx, accountID, decimal.NewFromInt(amount), "USD", "SOL")
		require.NoError(t, err)
	}
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	return out
}

func TestHandleCreateTransaction(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/v1/transactions", map[string]string{
		"account_id":     "acct-1",
		"type":           "ADD",
		"amount":         "1000",
		"asset":          "USD",
		"chain":          "SOL",
		"payment_method": "credit_card",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	txn := decodeBody[domain.Transaction](t, rec)
	assert.NotEmpty(t, txn.ID)
	assert.Equal(t, domain.StatusPending, txn.Status)
	assert.True(t, txn.Fees.Total.IsPositive())
}

func TestHandleCreateTransaction_BadRequests(t *testing.T) {
	ts := newTestServer(t)

	cases := []struct {
		name string
		body map[string]string
	}{
		{"missing account", map[string]string{"type": "ADD", "amount": "10", "asset": "USD"}},
		{"unknown type", map[string]string{"account_id": "a", "type": "LEND", "amount": "10", "asset": "USD"}},
		{"bad amount", map[string]string{"account_id": "a", "type": "ADD", "amount": "ten", "asset": "USD"}},
		{"negative amount", map[string]string{"account_id": "a", "type": "ADD", "amount": "-10", "asset": "USD"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodPost, "/api/v1/transactions", tc.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}
}

func TestHandleGetTransaction_NotFound(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/v1/transactions/no-such-id", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleProcessTransaction_Synchronous(t *testing.T) {
	ts := newTestServer(t)
	ts.seed(t, "acct-1", 1000)

	created := ts.do(t, http.MethodPost, "/api/v1/transactions", map[string]string{
		"account_id": "acct-1",
		"type":       "SEND",
		"amount":     "200",
		"asset":      "USD",
		"chain":      "SOL",
	})
	require.Equal(t, http.StatusCreated, created.Code)
	txn := decodeBody[domain.Transaction](t, created)

	rec := ts.do(t, http.MethodPost, "/api/v1/transactions/"+txn.ID+"/process", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	processed := decodeBody[domain.Transaction](t, rec)
	assert.Equal(t, domain.StatusCompleted, processed.Status)
	assert.Equal(t, "0xmock", processed.Metadata.TransactionHash)
}

func TestHandleProcessTransaction_InsufficientBalance(t *testing.T) {
	ts := newTestServer(t)
	ts.seed(t, "acct-1", 10)

	created := ts.do(t, http.MethodPost, "/api/v1/transactions", map[string]string{
		"account_id": "acct-1",
		"type":       "SEND",
		"amount":     "500",
		"asset":      "USD",
		"chain":      "SOL",
	})
	require.Equal(t, http.StatusCreated, created.Code)
	txn := decodeBody[domain.Transaction](t, created)

	rec := ts.do(t, http.MethodPost, "/api/v1/transactions/"+txn.ID+"/process", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())

	// The failure is durable and visible on a subsequent read.
	get := ts.do(t, http.MethodGet, "/api/v1/transactions/"+txn.ID, nil)
	stored := decodeBody[domain.Transaction](t, get)
	assert.Equal(t, domain.StatusFailed, stored.Status)
}

func TestHandleProcessTransaction_Durable(t *testing.T) {
	st := store.NewMemoryStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	balances := ledger.NewBalanceService(st, pricing.NewStaticPriceService(nil), nil, nil, logger)
	txns := ledger.NewTransactionService(ledger.TransactionServiceConfig{
		Transactions: st,
		Balances:     balances,
		Fees:         fees.NewScheduleCalculator(),
		Settlement:   settlement.NewMockExecutor(),
		Logger:       logger,
	})
	processor := &fakeProcessor{}
	handler := New(":0", txns, balances, processor, nil, logger).Handler()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/transactions/txn-42/process", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, []string{"txn-42"}, processor.started)

	var resp map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "run-txn-42", resp["run_id"])
	assert.Equal(t, "processing", resp["status"])
}

func TestHandleCancelTransaction(t *testing.T) {
	ts := newTestServer(t)
	ts.seed(t, "acct-1", 1000)

	created := ts.do(t, http.MethodPost, "/api/v1/transactions", map[string]string{
		"account_id": "acct-1",
		"type":       "SEND",
		"amount":     "100",
		"asset":      "USD",
		"chain":      "SOL",
	})
	txn := decodeBody[domain.Transaction](t, created)

	rec := ts.do(t, http.MethodPost, "/api/v1/transactions/"+txn.ID+"/cancel", map[string]string{
		"reason": "user requested",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	cancelled := decodeBody[domain.Transaction](t, rec)
	assert.Equal(t, domain.StatusCancelled, cancelled.Status)
	assert.Equal(t, "user requested", cancelled.Metadata.CancellationReason)

	// Cancelling a final transaction conflicts.
	again := ts.do(t, http.MethodPost, "/api/v1/transactions/"+txn.ID+"/cancel", map[string]string{
		"reason": "again",
	})
	assert.Equal(t, http.StatusConflict, again.Code)
}

func TestHandleListTransactions(t *testing.T) {
	ts := newTestServer(t)

	for i := 0; i < 3; i++ {
		rec := ts.do(t, http.MethodPost, "/api/v1/transactions", map[string]string{
			"account_id": "acct-1",
			"type":       "ADD",
			"amount":     "100",
			"asset":      "USD",
			"chain":      "SOL",
		})
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := ts.do(t, http.MethodGet, "/api/v1/transactions?account_id=acct-1&limit=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		AccountID    string               `json:"account_id"`
		Transactions []domain.Transaction `json:"transactions"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "acct-1", resp.AccountID)
	assert.Len(t, resp.Transactions, 2)

	missing := ts.do(t, http.MethodGet, "/api/v1/transactions", nil)
	assert.Equal(t, http.StatusBadRequest, missing.Code)

	badLimit := ts.do(t, http.MethodGet, "/api/v1/transactions?account_id=acct-1&limit=-1", nil)
	assert.Equal(t, http.StatusBadRequest, badLimit.Code)
}

func TestHandleBalanceEndpoints(t *testing.T) {
	ts := newTestServer(t)

	created := ts.do(t, http.MethodPost, "/api/v1/accounts/acct-1/balance", nil)
	require.Equal(t, http.StatusCreated, created.Code)

	_, err := ts.balances.CreditBalance(context.Background(), "acct-1", decimal.NewFromInt(250), "USDC", "SOL")
	require.NoError(t, err)

	rec := ts.do(t, http.MethodGet, "/api/v1/accounts/acct-1/balance", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	balance := decodeBody[domain.Balance](t, rec)
	assert.True(t, balance.AvailableForSpending.Equal(decimal.NewFromInt(250)))

	assets := ts.do(t, http.MethodGet, "/api/v1/accounts/acct-1/balance/assets", nil)
	require.Equal(t, http.StatusOK, assets.Code)
	assert.Contains(t, assets.Body.String(), "USDC")

	chains := ts.do(t, http.MethodGet, "/api/v1/accounts/acct-1/balance/chains", nil)
	require.Equal(t, http.StatusOK, chains.Code)
	assert.Contains(t, chains.Body.String(), "SOL")

	unknown := ts.do(t, http.MethodGet, "/api/v1/accounts/nobody/balance", nil)
	assert.Equal(t, http.StatusNotFound, unknown.Code)
}

func TestHandleTransfer(t *testing.T) {
	ts := newTestServer(t)
	ts.seed(t, "acct-1", 1000)

	rec := ts.do(t, http.MethodPost, "/api/v1/accounts/acct-1/transfers", map[string]string{
		"from_asset": "USD",
		"to_asset":   "BTC",
		"amount":     "500",
		"chain":      "BTC",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result ledger.TransferResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&result))
	assert.True(t, result.ToAmount.Equal(decimal.NewFromFloat(0.01)), "got %s", result.ToAmount)

	insufficient := ts.do(t, http.MethodPost, "/api/v1/accounts/acct-1/transfers", map[string]string{
		"from_asset": "USD",
		"to_asset":   "BTC",
		"amount":     "10000",
		"chain":      "BTC",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, insufficient.Code)
}

func TestHandleStrategyFunds(t *testing.T) {
	ts := newTestServer(t)
	ts.seed(t, "acct-1", 1000)

	lock := ts.do(t, http.MethodPost, "/api/v1/accounts/acct-1/strategies/strat-1/lock", map[string]string{
		"amount": "600",
	})
	require.Equal(t, http.StatusOK, lock.Code, lock.Body.String())
	balance := decodeBody[domain.Balance](t, lock)
	assert.True(t, balance.StrategyBalance.Equal(decimal.NewFromInt(600)))
	assert.True(t, balance.AvailableForSpending.Equal(decimal.NewFromInt(400)))

	release := ts.do(t, http.MethodPost, "/api/v1/accounts/acct-1/strategies/strat-1/release", map[string]string{
		"amount": "600",
	})
	require.Equal(t, http.StatusOK, release.Code)
	balance = decodeBody[domain.Balance](t, release)
	assert.True(t, balance.StrategyBalance.IsZero())

	over := ts.do(t, http.MethodPost, "/api/v1/accounts/acct-1/strategies/strat-1/lock", map[string]string{
		"amount": "5000",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, over.Code)
}

func TestHandleGetStatistics(t *testing.T) {
	ts := newTestServer(t)
	ts.seed(t, "acct-1", 1000)

	created := ts.do(t, http.MethodPost, "/api/v1/transactions", map[string]string{
		"account_id": "acct-1",
		"type":       "ADD",
		"amount":     "100",
		"asset":      "USD",
		"chain":      "SOL",
	})
	txn := decodeBody[domain.Transaction](t, created)
	proc := ts.do(t, http.MethodPost, "/api/v1/transactions/"+txn.ID+"/process", nil)
	require.Equal(t, http.StatusOK, proc.Code)

	rec := ts.do(t, http.MethodGet, "/api/v1/accounts/acct-1/statistics", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	stats := decodeBody[store.TransactionStatistics](t, rec)
	assert.Equal(t, 1, stats.TotalCount)
	assert.Equal(t, 1, stats.ByStatus[domain.StatusCompleted])
	assert.True(t, stats.CompletedVolume.Equal(decimal.NewFromInt(100)))
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}
