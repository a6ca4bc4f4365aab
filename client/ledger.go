// Package client is the HTTP client for the ledger service API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/diboas/ledger/service/domain"
	"github.com/diboas/ledger/service/ledger"
	"github.com/diboas/ledger/service/store"
)

// Client is the HTTP client for the ledger service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new ledger service client.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
	}
}

// CreateTransactionRequest are the fields for creating a transaction.
type CreateTransactionRequest struct {
	AccountID        string          `json:"account_id"`
	Type             string          `json:"type"`
	Amount           decimal.Decimal `json:"-"`
	Asset            string          `json:"asset"`
	Chain            string          `json:"chain,omitempty"`
	DestinationChain string          `json:"destination_chain,omitempty"`
	PaymentMethod    string          `json:"payment_method,omitempty"`
	Recipient        string          `json:"recipient,omitempty"`
	StrategyID       string          `json:"strategy_id,omitempty"`
}

// ProcessResponse is the result of a process call. Transaction is set when the
// server processed synchronously; RunID is set when a durable workflow was
// started instead.
type ProcessResponse struct {
	Transaction *domain.Transaction
	RunID       string
}

// CreateTransaction creates a new PENDING transaction.
func (c *Client) CreateTransaction(ctx context.Context, req CreateTransactionRequest) (*domain.Transaction, error) {
	// The API takes amounts as strings to avoid float precision loss.
	payload := struct {
		CreateTransactionRequest
		Amount string `json:"amount"`
	}{CreateTransactionRequest: req, Amount: req.Amount.String()}

	var txn domain.Transaction
	if err := c.post(ctx, "/api/v1/transactions", payload, http.StatusCreated, &txn); err != nil {
		return nil, err
	}
	c.logger.Debug("transaction created", "transaction_id", txn.ID, "type", txn.Type)
	return &txn, nil
}

// GetTransaction retrieves a transaction by ID.
func (c *Client) GetTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	var txn domain.Transaction
	if err := c.get(ctx, "/api/v1/transactions/"+url.PathEscape(id), &txn); err != nil {
		return nil, err
	}
	return &txn, nil
}

// ProcessTransaction runs a transaction through settlement.
func (c *Client) ProcessTransaction(ctx context.Context, id string) (*ProcessResponse, error) {
	resp, err := c.do(ctx, "POST", "/api/v1/transactions/"+url.PathEscape(id)+"/process", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var txn domain.Transaction
		if err := json.NewDecoder(resp.Body).Decode(&txn); err != nil {
			return nil, fmt.Errorf("failed to decode response: %w", err)
		}
		return &ProcessResponse{Transaction: &txn}, nil
	case http.StatusAccepted:
		var accepted struct {
			RunID string `json:"run_id"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&accepted); err != nil {
			return nil, fmt.Errorf("failed to decode response: %w", err)
		}
		return &ProcessResponse{RunID: accepted.RunID}, nil
	default:
		return nil, c.parseErrorResponse(resp)
	}
}

// CancelTransaction cancels a non-final transaction.
func (c *Client) CancelTransaction(ctx context.Context, id, reason string) (*domain.Transaction, error) {
	var txn domain.Transaction
	path := "/api/v1/transactions/" + url.PathEscape(id) + "/cancel"
	if err := c.post(ctx, path, map[string]string{"reason": reason}, http.StatusOK, &txn); err != nil {
		return nil, err
	}
	return &txn, nil
}

// ListTransactions retrieves an account's transactions, newest first.
func (c *Client) ListTransactions(ctx context.Context, accountID string, limit, offset int) ([]*domain.Transaction, error) {
	q := url.Values{"account_id": {accountID}}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		q.Set("offset", strconv.Itoa(offset))
	}

	var response struct {
		Transactions []*domain.Transaction `json:"transactions"`
	}
	if err := c.get(ctx, "/api/v1/transactions?"+q.Encode(), &response); err != nil {
		return nil, err
	}
	return response.Transactions, nil
}

// InitializeBalance creates the account's balance aggregate if absent.
func (c *Client) InitializeBalance(ctx context.Context, accountID string) (*domain.Balance, error) {
	var balance domain.Balance
	path := "/api/v1/accounts/" + url.PathEscape(accountID) + "/balance"
	if err := c.post(ctx, path, nil, http.StatusCreated, &balance); err != nil {
		return nil, err
	}
	return &balance, nil
}

// GetBalance retrieves the account's full balance aggregate.
func (c *Client) GetBalance(ctx context.Context, accountID string) (*domain.Balance, error) {
	var balance domain.Balance
	if err := c.get(ctx, "/api/v1/accounts/"+url.PathEscape(accountID)+"/balance", &balance); err != nil {
		return nil, err
	}
	return &balance, nil
}

// GetStatistics retrieves aggregate statistics for an account's history.
func (c *Client) GetStatistics(ctx context.Context, accountID string) (*store.TransactionStatistics, error) {
	var stats store.TransactionStatistics
	if err := c.get(ctx, "/api/v1/accounts/"+url.PathEscape(accountID)+"/statistics", &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// Transfer converts between assets within an account at the current rate.
func (c *Client) Transfer(ctx context.Context, accountID, fromAsset, toAsset string, amount decimal.Decimal, chain string) (*ledger.TransferResult, error) {
	payload := map[string]string{
		"from_asset": fromAsset,
		"to_asset":   toAsset,
		"amount":     amount.String(),
		"chain":      chain,
	}

	var result ledger.TransferResult
	path := "/api/v1/accounts/" + url.PathEscape(accountID) + "/transfers"
	if err := c.post(ctx, path, payload, http.StatusOK, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// LockStrategyFunds moves spendable funds into a yield strategy.
func (c *Client) LockStrategyFunds(ctx context.Context, accountID, strategyID string, amount decimal.Decimal) (*domain.Balance, error) {
	return c.strategyFunds(ctx, accountID, strategyID, amount, "lock")
}

// ReleaseStrategyFunds returns strategy funds to spendable.
func (c *Client) ReleaseStrategyFunds(ctx context.Context, accountID, strategyID string, amount decimal.Decimal) (*domain.Balance, error) {
	return c.strategyFunds(ctx, accountID, strategyID, amount, "release")
}

func (c *Client) strategyFunds(ctx context.Context, accountID, strategyID string, amount decimal.Decimal, op string) (*domain.Balance, error) {
	var balance domain.Balance
	path := "/api/v1/accounts/" + url.PathEscape(accountID) + "/strategies/" + url.PathEscape(strategyID) + "/" + op
	if err := c.post(ctx, path, map[string]string{"amount": amount.String()}, http.StatusOK, &balance); err != nil {
		return nil, err
	}
	return &balance, nil
}

// get issues a GET and decodes a 200 response into out.
func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	resp, err := c.do(ctx, "GET", path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.parseErrorResponse(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// post issues a POST with a JSON body and decodes the expected-status
// response into out (out may be nil).
func (c *Client) post(ctx context.Context, path string, payload interface{}, wantStatus int, out interface{}) error {
	resp, err := c.do(ctx, "POST", path, payload)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != wantStatus {
		return c.parseErrorResponse(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, payload interface{}) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	return resp, nil
}

// parseErrorResponse attempts to parse an error response from the server.
func (c *Client) parseErrorResponse(resp *http.Response) error {
	var errResp struct {
		Error string `json:"error"`
	}

	body, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error == "" {
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(body))
	}

	return fmt.Errorf("request failed: %s", errResp.Error)
}
