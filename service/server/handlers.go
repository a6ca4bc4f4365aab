package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/diboas/ledger/service/domain"
	"github.com/diboas/ledger/service/ledger"
	"github.com/diboas/ledger/service/temporal"
)

const maxRequestBodySize = 1 << 20 // 1MB - plenty for any transaction payload

// handleCreateTransaction returns a handler that creates a PENDING transaction.
// POST /api/v1/transactions
func handleCreateTransaction(txns *ledger.TransactionService, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

		var req struct {
			AccountID        string `json:"account_id"`
			Type             string `json:"type"`
			Amount           string `json:"amount"`
			Asset            string `json:"asset"`
			Chain            string `json:"chain"`
			DestinationChain string `json:"destination_chain"`
			PaymentMethod    string `json:"payment_method"`
			Recipient        string `json:"recipient"`
			StrategyID       string `json:"strategy_id"`
		}
		if err := decodeRequest(w, r, &req); err != nil {
			logger.Debug("failed to decode create request", "error", err)
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		if req.AccountID == "" {
			writeError(w, "account_id is required", http.StatusBadRequest)
			return
		}
		txnType, ok := domain.ParseTransactionType(req.Type)
		if !ok {
			writeError(w, "invalid type: unknown transaction type", http.StatusBadRequest)
			return
		}
		amount, err := decimal.NewFromString(req.Amount)
		if err != nil {
			writeError(w, "invalid amount: must be a decimal number", http.StatusBadRequest)
			return
		}

		txn, err := txns.CreateTransaction(r.Context(), req.AccountID, domain.NewTransactionParams{
			Type:             txnType,
			Amount:           amount,
			Asset:            req.Asset,
			Chain:            req.Chain,
			DestinationChain: req.DestinationChain,
			PaymentMethod:    req.PaymentMethod,
			Recipient:        req.Recipient,
			StrategyID:       req.StrategyID,
		})
		if err != nil {
			writeDomainError(w, logger, "create transaction", err)
			return
		}

		writeJSON(w, txn, http.StatusCreated)
	})
}

// handleGetTransaction returns a handler that retrieves a transaction by ID.
// GET /api/v1/transactions/{id}
func handleGetTransaction(txns *ledger.TransactionService, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		txn, err := txns.GetTransaction(r.Context(), r.PathValue("id"))
		if err != nil {
			writeDomainError(w, logger, "get transaction", err)
			return
		}
		writeJSON(w, txn, http.StatusOK)
	})
}

// handleProcessTransaction returns a handler that runs a transaction through
// settlement. With a configured processor the work is handed to a durable
// workflow and the handler returns 202; otherwise processing is synchronous.
// POST /api/v1/transactions/{id}/process
func handleProcessTransaction(txns *ledger.TransactionService, processor temporal.Processor, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")

		if processor != nil {
			runID, err := processor.StartProcessing(r.Context(), id)
			if err != nil {
				logger.Error("failed to start processing workflow", "transaction_id", id, "error", err)
				writeError(w, "failed to start processing", http.StatusInternalServerError)
				return
			}
			writeJSON(w, map[string]string{
				"transaction_id": id,
				"run_id":         runID,
				"status":         "processing",
			}, http.StatusAccepted)
			return
		}

		txn, err := txns.ProcessTransaction(r.Context(), id)
		if err != nil {
			writeDomainError(w, logger, "process transaction", err)
			return
		}
		writeJSON(w, txn, http.StatusOK)
	})
}

// handleCancelTransaction returns a handler that cancels a non-final transaction.
// POST /api/v1/transactions/{id}/cancel
func handleCancelTransaction(txns *ledger.TransactionService, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

		var req struct {
			Reason string `json:"reason"`
		}
		if err := decodeRequest(w, r, &req); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		txn, err := txns.CancelTransaction(r.Context(), r.PathValue("id"), req.Reason)
		if err != nil {
			writeDomainError(w, logger, "cancel transaction", err)
			return
		}
		writeJSON(w, txn, http.StatusOK)
	})
}

// handleListTransactions returns a handler that lists an account's
// transactions, newest first.
// GET /api/v1/transactions?account_id={id}&limit={n}&offset={n}
func handleListTransactions(txns *ledger.TransactionService, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accountID := r.URL.Query().Get("account_id")
		if accountID == "" {
			writeError(w, "account_id is required", http.StatusBadRequest)
			return
		}
		limit, err := parseIntParam(r, "limit", 0)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		offset, err := parseIntParam(r, "offset", 0)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		page, err := txns.GetTransactionHistory(r.Context(), accountID, limit, offset)
		if err != nil {
			writeDomainError(w, logger, "list transactions", err)
			return
		}
		writeJSON(w, map[string]interface{}{
			"account_id":   accountID,
			"transactions": page,
		}, http.StatusOK)
	})
}

// handleInitializeBalance returns a handler that creates the account's
// balance aggregate if it does not exist yet.
// POST /api/v1/accounts/{id}/balance
func handleInitializeBalance(balances *ledger.BalanceService, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		balance, err := balances.InitializeBalance(r.Context(), r.PathValue("id"))
		if err != nil {
			writeDomainError(w, logger, "initialize balance", err)
			return
		}
		writeJSON(w, balance, http.StatusCreated)
	})
}

// handleGetBalance returns a handler that retrieves the full balance aggregate.
// GET /api/v1/accounts/{id}/balance
func handleGetBalance(balances *ledger.BalanceService, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		balance, err := balances.GetBalance(r.Context(), r.PathValue("id"))
		if err != nil {
			writeDomainError(w, logger, "get balance", err)
			return
		}
		writeJSON(w, balance, http.StatusOK)
	})
}

// handleGetBalanceAssets returns the account's holdings grouped by asset.
// GET /api/v1/accounts/{id}/balance/assets
func handleGetBalanceAssets(balances *ledger.BalanceService, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accountID := r.PathValue("id")
		assets, err := balances.GetBalanceByAsset(r.Context(), accountID)
		if err != nil {
			writeDomainError(w, logger, "get balance assets", err)
			return
		}
		writeJSON(w, map[string]interface{}{
			"account_id": accountID,
			"assets":     assets,
		}, http.StatusOK)
	})
}

// handleGetBalanceChains returns the account's holdings grouped by chain.
// GET /api/v1/accounts/{id}/balance/chains
func handleGetBalanceChains(balances *ledger.BalanceService, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accountID := r.PathValue("id")
		chains, err := balances.GetBalanceByChain(r.Context(), accountID)
		if err != nil {
			writeDomainError(w, logger, "get balance chains", err)
			return
		}
		writeJSON(w, map[string]interface{}{
			"account_id": accountID,
			"chains":     chains,
		}, http.StatusOK)
	})
}

// handleGetStatistics returns aggregate statistics for an account's history.
// GET /api/v1/accounts/{id}/statistics
func handleGetStatistics(txns *ledger.TransactionService, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stats, err := txns.GetTransactionStatistics(r.Context(), r.PathValue("id"))
		if err != nil {
			writeDomainError(w, logger, "get statistics", err)
			return
		}
		writeJSON(w, stats, http.StatusOK)
	})
}

// handleTransfer returns a handler that converts between assets within an
// account at the current exchange rate.
// POST /api/v1/accounts/{id}/transfers
func handleTransfer(balances *ledger.BalanceService, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

		var req struct {
			FromAsset string `json:"from_asset"`
			ToAsset   string `json:"to_asset"`
			Amount    string `json:"amount"`
			Chain     string `json:"chain"`
		}
		if err := decodeRequest(w, r, &req); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		amount, err := decimal.NewFromString(req.Amount)
		if err != nil {
			writeError(w, "invalid amount: must be a decimal number", http.StatusBadRequest)
			return
		}

		result, err := balances.TransferBetweenAssets(r.Context(), r.PathValue("id"), req.FromAsset, req.ToAsset, amount, req.Chain)
		if err != nil {
			writeDomainError(w, logger, "transfer", err)
			return
		}
		writeJSON(w, result, http.StatusOK)
	})
}

// handleLockStrategyFunds moves spendable funds into a yield strategy.
// POST /api/v1/accounts/{id}/strategies/{strategyID}/lock
func handleLockStrategyFunds(balances *ledger.BalanceService, logger *slog.Logger) http.Handler {
	return strategyFundsHandler(logger, balances.LockFundsForStrategy)
}

// handleReleaseStrategyFunds returns strategy funds to spendable.
// POST /api/v1/accounts/{id}/strategies/{strategyID}/release
func handleReleaseStrategyFunds(balances *ledger.BalanceService, logger *slog.Logger) http.Handler {
	return strategyFundsHandler(logger, balances.ReleaseFundsFromStrategy)
}

func strategyFundsHandler(logger *slog.Logger, move func(ctx context.Context, accountID string, amount decimal.Decimal, strategyID string) (*domain.Balance, error)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

		var req struct {
			Amount string `json:"amount"`
		}
		if err := decodeRequest(w, r, &req); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		amount, err := decimal.NewFromString(req.Amount)
		if err != nil {
			writeError(w, "invalid amount: must be a decimal number", http.StatusBadRequest)
			return
		}

		balance, err := move(r.Context(), r.PathValue("id"), amount, r.PathValue("strategyID"))
		if err != nil {
			writeDomainError(w, logger, "strategy funds", err)
			return
		}
		writeJSON(w, balance, http.StatusOK)
	})
}

// decodeRequest decodes a JSON request body with a friendly error for
// oversized payloads.
func decodeRequest(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if strings.Contains(err.Error(), "http: request body too large") {
			return errors.New("request body too large: maximum size is 1MB")
		}
		return errors.New("invalid request body: must be valid JSON")
	}
	return nil
}

// parseIntParam parses a non-negative integer query parameter.
func parseIntParam(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errors.New("invalid " + name + ": must be a non-negative integer")
	}
	return n, nil
}

// writeDomainError maps domain errors onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, logger *slog.Logger, op string, err error) {
	var (
		verr   *domain.ValidationError
		nfErr  *domain.NotFoundError
		insErr *domain.InsufficientBalanceError
		stErr  *domain.InvalidStateError
		extErr *domain.ExternalServiceError
	)
	switch {
	case errors.As(err, &verr):
		writeError(w, err.Error(), http.StatusBadRequest)
	case errors.As(err, &nfErr):
		writeError(w, err.Error(), http.StatusNotFound)
	case errors.As(err, &insErr):
		writeError(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.As(err, &stErr):
		writeError(w, err.Error(), http.StatusConflict)
	case errors.As(err, &extErr):
		logger.Error(op+" failed", "error", err)
		writeError(w, err.Error(), http.StatusBadGateway)
	default:
		logger.Error(op+" failed", "error", err)
		writeError(w, "internal server error", http.StatusInternalServerError)
	}
}

// writeJSON writes data as a JSON response.
func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}
