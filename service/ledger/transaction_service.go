package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/diboas/ledger/service/domain"
	"github.com/diboas/ledger/service/events"
	"github.com/diboas/ledger/service/fees"
	"github.com/diboas/ledger/service/metrics"
	"github.com/diboas/ledger/service/settlement"
	"github.com/diboas/ledger/service/store"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 100

	// DefaultSettlementTimeout bounds the external settlement call when the
	// service is constructed without an explicit timeout.
	DefaultSettlementTimeout = 30 * time.Second
)

// TransactionServiceConfig bundles the collaborators of a TransactionService.
type TransactionServiceConfig struct {
	Transactions      store.TransactionRepository
	Balances          *BalanceService
	Fees              fees.Calculator
	Settlement        settlement.Executor
	Accounts          AccountService // optional: when set, accounts are verified at creation
	Publisher         events.Publisher
	Metrics           *metrics.Metrics
	Logger            *slog.Logger
	SettlementTimeout time.Duration
}

// TransactionService drives transactions through their lifecycle: creation
// with fee computation, processing with balance checks and settlement, and
// terminal completion/failure recording. Validation and balance errors are
// recorded as durable FAILED transactions, then re-surfaced to the caller;
// the service never retries settlement itself.
type TransactionService struct {
	repo          store.TransactionRepository
	balances      *BalanceService
	feeCalc       fees.Calculator
	settler       settlement.Executor
	accounts      AccountService
	publisher     events.Publisher
	metrics       *metrics.Metrics
	logger        *slog.Logger
	settleTimeout time.Duration
}

// NewTransactionService creates a transaction service from cfg.
func NewTransactionService(cfg TransactionServiceConfig) *TransactionService {
	publisher := cfg.Publisher
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	timeout := cfg.SettlementTimeout
	if timeout <= 0 {
		timeout = DefaultSettlementTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &TransactionService{
		repo:          cfg.Transactions,
		balances:      cfg.Balances,
		feeCalc:       cfg.Fees,
		settler:       cfg.Settlement,
		accounts:      cfg.Accounts,
		publisher:     publisher,
		metrics:       cfg.Metrics,
		logger:        logger,
		settleTimeout: timeout,
	}
}

// CreateTransaction validates the input, computes fees, and persists a
// PENDING transaction.
func (s *TransactionService) CreateTransaction(ctx context.Context, accountID string, params domain.NewTransactionParams) (*domain.Transaction, error) {
	if s.accounts != nil {
		if _, err := s.accounts.GetUserWithAccount(ctx, accountID); err != nil {
			return nil, err
		}
	}

	txn, err := domain.NewTransaction(accountID, params)
	if err != nil {
		return nil, err
	}

	quote := fees.Quote{
		Type:             params.Type,
		Amount:           params.Amount,
		Asset:            params.Asset,
		Chain:            params.Chain,
		DestinationChain: params.DestinationChain,
		PaymentMethod:    params.PaymentMethod,
	}
	feeBreakdown, err := s.feeCalc.Calculate(ctx, quote)
	if err != nil {
		var extErr *domain.ExternalServiceError
		if !errors.As(err, &extErr) {
			err = &domain.ExternalServiceError{Service: "fees", Err: err}
		}
		return nil, err
	}
	txn.UpdateFees(feeBreakdown)

	if err := s.repo.SaveTransaction(ctx, txn); err != nil {
		return nil, fmt.Errorf("save transaction: %w", err)
	}

	s.metrics.RecordTransactionCreated(string(txn.Type))
	s.emit(ctx, txn)
	s.logger.Info("created transaction",
		"transaction_id", txn.ID,
		"account_id", accountID,
		"type", txn.Type,
		"amount", txn.Amount.String(),
		"asset", txn.Asset,
		"fees_total", txn.Fees.Total.String(),
	)
	return txn, nil
}

// ProcessTransaction runs the full processing sequence synchronously:
// state-machine guard, funds reservation, settlement, and terminal recording.
// On failure the transaction is durably FAILED and the causal error is
// returned. Compensation for a reserved-then-unsettleable transaction is an
// explicit reversing credit.
func (s *TransactionService) ProcessTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	started := time.Now()

	txn, err := s.BeginProcessing(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.ReserveFunds(ctx, txn); err != nil {
		s.failTransaction(ctx, txn, err, started)
		return txn, err
	}

	result, err := s.SettleTransaction(ctx, txn)
	if err != nil {
		if relErr := s.ReleaseReservation(ctx, txn); relErr != nil {
			// The reservation could not be reversed; this needs operator
			// attention, but the transaction still fails durably.
			s.logger.Error("failed to release reservation after settlement failure",
				"transaction_id", txn.ID,
				"error", relErr,
			)
		}
		s.failTransaction(ctx, txn, err, started)
		return txn, err
	}

	if err := s.CompleteTransaction(ctx, txn, result); err != nil {
		s.failTransaction(ctx, txn, err, started)
		return txn, err
	}

	s.metrics.RecordTransactionProcessed(string(txn.Type), string(domain.StatusCompleted), time.Since(started))
	return txn, nil
}

// BeginProcessing loads the transaction and moves it to PROCESSING. A
// concurrent second call is rejected by the state-machine guard.
func (s *TransactionService) BeginProcessing(ctx context.Context, id string) (*domain.Transaction, error) {
	txn, err := s.repo.GetTransaction(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := txn.StartProcessing(); err != nil {
		return nil, err
	}
	if err := s.repo.SaveTransaction(ctx, txn); err != nil {
		return nil, fmt.Errorf("save transaction: %w", err)
	}
	return txn, nil
}

// ReserveFunds applies the debit side of the transaction. Incoming
// transactions reserve nothing; outgoing ones debit amount plus fees;
// strategy operations charge fees and move funds between the spendable and
// strategy buckets.
func (s *TransactionService) ReserveFunds(ctx context.Context, txn *domain.Transaction) error {
	switch txn.Direction {
	case domain.DirectionIncoming:
		return nil

	case domain.DirectionOutgoing:
		balance, err := s.balances.GetBalance(ctx, txn.AccountID)
		if err != nil {
			return err
		}
		required := txn.TotalCost()
		if !balance.HasSufficientBalance(required, txn.Asset) {
			s.metrics.RecordInsufficientBalance("process")
			available := decimal.Zero
			if ab, ok := balance.Assets[txn.Asset]; ok {
				available = ab.Balance
			}
			return &domain.InsufficientBalanceError{Asset: txn.Asset, Requested: required, Available: available}
		}
		_, err = s.balances.DebitBalance(ctx, txn.AccountID, required, txn.Asset, txn.Chain)
		return err

	case domain.DirectionInternal:
		return s.reserveInternal(ctx, txn)
	}
	return &domain.ValidationError{Field: "direction", Reason: "unknown direction"}
}

func (s *TransactionService) reserveInternal(ctx context.Context, txn *domain.Transaction) error {
	// Fees are charged against the spendable asset before the bucket move.
	if txn.Fees.Total.IsPositive() {
		if _, err := s.balances.DebitBalance(ctx, txn.AccountID, txn.Fees.Total, txn.Asset, txn.Chain); err != nil {
			return err
		}
	}

	var err error
	switch txn.Type {
	case domain.TypeStopStrategy:
		_, err = s.balances.ReleaseFundsFromStrategy(ctx, txn.AccountID, txn.Amount, txn.Metadata.StrategyID)
	default: // START_STRATEGY, INVEST
		_, err = s.balances.LockFundsForStrategy(ctx, txn.AccountID, txn.Amount, txn.Metadata.StrategyID)
	}
	if err != nil && txn.Fees.Total.IsPositive() {
		if _, credErr := s.balances.CreditBalance(ctx, txn.AccountID, txn.Fees.Total, txn.Asset, txn.Chain); credErr != nil {
			s.logger.Error("failed to refund fees after bucket move failure",
				"transaction_id", txn.ID,
				"error", credErr,
			)
		}
	}
	return err
}

// ReleaseReservation reverses ReserveFunds after a settlement failure.
func (s *TransactionService) ReleaseReservation(ctx context.Context, txn *domain.Transaction) error {
	switch txn.Direction {
	case domain.DirectionIncoming:
		return nil

	case domain.DirectionOutgoing:
		_, err := s.balances.CreditBalance(ctx, txn.AccountID, txn.TotalCost(), txn.Asset, txn.Chain)
		return err

	case domain.DirectionInternal:
		var err error
		switch txn.Type {
		case domain.TypeStopStrategy:
			_, err = s.balances.LockFundsForStrategy(ctx, txn.AccountID, txn.Amount, txn.Metadata.StrategyID)
		default:
			_, err = s.balances.ReleaseFundsFromStrategy(ctx, txn.AccountID, txn.Amount, txn.Metadata.StrategyID)
		}
		if err != nil {
			return err
		}
		if txn.Fees.Total.IsPositive() {
			_, err = s.balances.CreditBalance(ctx, txn.AccountID, txn.Fees.Total, txn.Asset, txn.Chain)
		}
		return err
	}
	return nil
}

// SettleTransaction invokes the external settlement call under the configured
// timeout. Failures are not retried here; retry policy belongs to the caller
// or the durable workflow.
func (s *TransactionService) SettleTransaction(ctx context.Context, txn *domain.Transaction) (*domain.SettlementResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.settleTimeout)
	defer cancel()

	started := time.Now()
	result, err := s.settler.Execute(ctx, txn)
	if err != nil {
		s.metrics.RecordSettlementCall("error", time.Since(started))
		var extErr *domain.ExternalServiceError
		var verr *domain.ValidationError
		if !errors.As(err, &extErr) && !errors.As(err, &verr) {
			err = &domain.ExternalServiceError{Service: "settlement", Err: err}
		}
		return nil, err
	}
	s.metrics.RecordSettlementCall("ok", time.Since(started))

	return &domain.SettlementResult{
		Success:       true,
		TxHash:        result.TxHash,
		Confirmations: result.Confirmations,
	}, nil
}

// CompleteTransaction applies the credit side for incoming transactions,
// marks the transaction COMPLETED and persists it.
func (s *TransactionService) CompleteTransaction(ctx context.Context, txn *domain.Transaction, result *domain.SettlementResult) error {
	if txn.Direction == domain.DirectionIncoming {
		if _, err := s.balances.CreditBalance(ctx, txn.AccountID, txn.NetAmount(), txn.Asset, txn.Chain); err != nil {
			return err
		}
	}

	if result != nil && result.TxHash != "" {
		txn.AddConfirmation(result.TxHash, result.Confirmations)
	}
	if err := txn.Complete(result); err != nil {
		return err
	}
	if err := s.repo.SaveTransaction(ctx, txn); err != nil {
		return fmt.Errorf("save transaction: %w", err)
	}

	s.emit(ctx, txn)
	s.logger.Info("completed transaction", "transaction_id", txn.ID, "type", txn.Type)
	return nil
}

// FailTransaction marks the transaction FAILED with a human-readable error
// and persists it, making the failure durable and queryable.
func (s *TransactionService) FailTransaction(ctx context.Context, id string, cause string) (*domain.Transaction, error) {
	txn, err := s.repo.GetTransaction(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := txn.Fail(errors.New(cause)); err != nil {
		return nil, err
	}
	if err := s.repo.SaveTransaction(ctx, txn); err != nil {
		return nil, fmt.Errorf("save transaction: %w", err)
	}
	s.emit(ctx, txn)
	return txn, nil
}

// CancelTransaction cancels a non-final transaction. No balance compensation
// is performed for transactions cancelled mid-processing; the state machine
// permits the transition but any in-flight reservation must be resolved by
// the processing path that owns it.
func (s *TransactionService) CancelTransaction(ctx context.Context, id, reason string) (*domain.Transaction, error) {
	txn, err := s.repo.GetTransaction(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := txn.Cancel(reason); err != nil {
		return nil, err
	}
	if err := s.repo.SaveTransaction(ctx, txn); err != nil {
		return nil, fmt.Errorf("save transaction: %w", err)
	}

	s.emit(ctx, txn)
	s.logger.Info("cancelled transaction", "transaction_id", id, "reason", reason)
	return txn, nil
}

// GetTransaction returns a transaction by ID.
func (s *TransactionService) GetTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	return s.repo.GetTransaction(ctx, id)
}

// GetTransactionHistory returns an account's transactions, newest first.
func (s *TransactionService) GetTransactionHistory(ctx context.Context, accountID string, limit, offset int) ([]*domain.Transaction, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListTransactionsByAccount(ctx, accountID, store.TransactionFilters{Limit: limit, Offset: offset})
}

// GetTransactionStatistics aggregates the account's history; volume and fee
// totals cover completed transactions only.
func (s *TransactionService) GetTransactionStatistics(ctx context.Context, accountID string) (*store.TransactionStatistics, error) {
	return s.repo.GetTransactionStatistics(ctx, accountID)
}

// failTransaction records a terminal failure during processing.
func (s *TransactionService) failTransaction(ctx context.Context, txn *domain.Transaction, cause error, started time.Time) {
	if err := txn.Fail(cause); err != nil {
		s.logger.Error("could not mark transaction failed", "transaction_id", txn.ID, "error", err)
		return
	}
	if err := s.repo.SaveTransaction(ctx, txn); err != nil {
		s.logger.Error("could not persist failed transaction", "transaction_id", txn.ID, "error", err)
	}
	s.emit(ctx, txn)
	s.metrics.RecordTransactionProcessed(string(txn.Type), string(domain.StatusFailed), time.Since(started))
	s.logger.Warn("failed transaction",
		"transaction_id", txn.ID,
		"type", txn.Type,
		"error", cause,
	)
}

func (s *TransactionService) emit(ctx context.Context, txn *domain.Transaction) {
	if err := s.publisher.PublishTransaction(ctx, events.FromTransaction(txn)); err != nil {
		s.logger.Error("failed to publish transaction event", "transaction_id", txn.ID, "error", err)
		return
	}
	s.metrics.RecordEventPublished("transaction")
}
