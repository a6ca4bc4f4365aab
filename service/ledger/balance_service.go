// Package ledger orchestrates the transaction and balance domain: balance
// mutations, strategy fund locking, fee computation, and the transaction
// lifecycle from creation through settlement.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/diboas/ledger/service/domain"
	"github.com/diboas/ledger/service/events"
	"github.com/diboas/ledger/service/metrics"
	"github.com/diboas/ledger/service/pricing"
	"github.com/diboas/ledger/service/store"
)

// TransferResult reports the outcome of a cross-asset transfer.
type TransferResult struct {
	FromAsset    string          `json:"from_asset"`
	ToAsset      string          `json:"to_asset"`
	FromAmount   decimal.Decimal `json:"from_amount"`
	ToAmount     decimal.Decimal `json:"to_amount"`
	ExchangeRate decimal.Decimal `json:"exchange_rate"`
}

// BalanceService orchestrates balance mutations. All writes for a given
// account are serialized through a per-account lock so concurrent debits can
// never both pass a stale sufficiency check.
type BalanceService struct {
	repo      store.BalanceRepository
	prices    pricing.PriceService
	publisher events.Publisher
	metrics   *metrics.Metrics
	logger    *slog.Logger
	locks     *accountLocks
}

// NewBalanceService creates a balance service. The publisher may be nil to
// disable events; metrics may be nil to disable recording.
func NewBalanceService(repo store.BalanceRepository, prices pricing.PriceService, publisher events.Publisher, m *metrics.Metrics, logger *slog.Logger) *BalanceService {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &BalanceService{
		repo:      repo,
		prices:    prices,
		publisher: publisher,
		metrics:   m,
		logger:    logger,
		locks:     newAccountLocks(),
	}
}

// InitializeBalance returns the account's balance, creating it if absent.
// The check-or-create runs under the account lock, so concurrent first calls
// for the same account always resolve to a single aggregate.
func (s *BalanceService) InitializeBalance(ctx context.Context, accountID string) (*domain.Balance, error) {
	if accountID == "" {
		return nil, &domain.ValidationError{Field: "account_id", Reason: "must not be empty"}
	}
	unlock := s.locks.Lock(accountID)
	defer unlock()

	existing, err := s.repo.GetBalanceByAccount(ctx, accountID)
	if err == nil {
		return existing, nil
	}
	var nfErr *domain.NotFoundError
	if !errors.As(err, &nfErr) {
		return nil, fmt.Errorf("load balance: %w", err)
	}

	balance := domain.NewBalance(accountID)
	if err := s.repo.SaveBalance(ctx, balance); err != nil {
		return nil, fmt.Errorf("save balance: %w", err)
	}
	s.logger.Info("initialized balance", "account_id", accountID, "balance_id", balance.ID)
	s.emitBalance(ctx, balance)
	return balance, nil
}

// GetBalance returns the account's balance with asset prices refreshed from
// the price service. Refreshed prices affect only the returned view; they are
// persisted on the next mutation.
func (s *BalanceService) GetBalance(ctx context.Context, accountID string) (*domain.Balance, error) {
	balance, err := s.repo.GetBalanceByAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	s.refreshPrices(ctx, balance)
	return balance, nil
}

// CreditBalance adds funds to the account's holding of asset on chain.
func (s *BalanceService) CreditBalance(ctx context.Context, accountID string, amount decimal.Decimal, asset, chain string) (*domain.Balance, error) {
	return s.mutate(ctx, accountID, "credit", func(balance *domain.Balance) error {
		return balance.Credit(amount, asset, chain)
	})
}

// DebitBalance removes funds from the account's holding of asset on chain.
// The sufficiency check and the debit are one atomic step under the account
// lock.
func (s *BalanceService) DebitBalance(ctx context.Context, accountID string, amount decimal.Decimal, asset, chain string) (*domain.Balance, error) {
	return s.mutate(ctx, accountID, "debit", func(balance *domain.Balance) error {
		return balance.Debit(amount, asset, chain)
	})
}

// UpdateAssetBalance sets the absolute holding of asset on chain.
func (s *BalanceService) UpdateAssetBalance(ctx context.Context, accountID string, asset string, amount decimal.Decimal, chain string) (*domain.Balance, error) {
	return s.mutate(ctx, accountID, "update_asset", func(balance *domain.Balance) error {
		return balance.UpdateAssetBalance(asset, amount, chain)
	})
}

// TransferBetweenAssets converts amount of fromAsset into toAsset at the
// current exchange rate. On any failure no partial mutation is persisted.
func (s *BalanceService) TransferBetweenAssets(ctx context.Context, accountID, fromAsset, toAsset string, amount decimal.Decimal, chain string) (*TransferResult, error) {
	if fromAsset == toAsset {
		return nil, &domain.ValidationError{Field: "to_asset", Reason: "must differ from from_asset"}
	}
	unlock := s.locks.Lock(accountID)
	defer unlock()

	balance, err := s.repo.GetBalanceByAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	s.refreshPrices(ctx, balance)

	rate, err := s.prices.GetExchangeRate(ctx, fromAsset, toAsset)
	if err != nil {
		return nil, err
	}
	toAmount := amount.Mul(rate)

	// Mutations run on the loaded copy; nothing is persisted until both legs
	// succeed.
	if err := balance.Debit(amount, fromAsset, chain); err != nil {
		if isInsufficient(err) {
			s.metrics.RecordInsufficientBalance("transfer")
		}
		return nil, err
	}
	if err := balance.Credit(toAmount, toAsset, chain); err != nil {
		return nil, err
	}
	if err := s.repo.SaveBalance(ctx, balance); err != nil {
		return nil, fmt.Errorf("save balance: %w", err)
	}

	s.metrics.RecordBalanceOperation("transfer", "ok")
	s.emitBalance(ctx, balance)
	s.logger.Info("transferred between assets",
		"account_id", accountID,
		"from_asset", fromAsset,
		"to_asset", toAsset,
		"from_amount", amount.String(),
		"to_amount", toAmount.String(),
	)
	return &TransferResult{
		FromAsset:    fromAsset,
		ToAsset:      toAsset,
		FromAmount:   amount,
		ToAmount:     toAmount,
		ExchangeRate: rate,
	}, nil
}

// LockFundsForStrategy moves spendable funds into a yield strategy.
func (s *BalanceService) LockFundsForStrategy(ctx context.Context, accountID string, amount decimal.Decimal, strategyID string) (*domain.Balance, error) {
	balance, err := s.mutate(ctx, accountID, "lock_strategy", func(balance *domain.Balance) error {
		return balance.LockForStrategy(amount, strategyID)
	})
	if err != nil {
		return nil, err
	}
	s.updateTVL(ctx)
	return balance, nil
}

// ReleaseFundsFromStrategy returns strategy funds to spendable.
func (s *BalanceService) ReleaseFundsFromStrategy(ctx context.Context, accountID string, amount decimal.Decimal, strategyID string) (*domain.Balance, error) {
	balance, err := s.mutate(ctx, accountID, "release_strategy", func(balance *domain.Balance) error {
		return balance.ReleaseFromStrategy(amount, strategyID)
	})
	if err != nil {
		return nil, err
	}
	s.updateTVL(ctx)
	return balance, nil
}

// GetBalanceByChain returns the account's holdings grouped by chain.
func (s *BalanceService) GetBalanceByChain(ctx context.Context, accountID string) (map[string]*domain.ChainBalance, error) {
	balance, err := s.GetBalance(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return balance.Chains, nil
}

// GetBalanceByAsset returns the account's holdings grouped by asset.
func (s *BalanceService) GetBalanceByAsset(ctx context.Context, accountID string) (map[string]*domain.AssetBalance, error) {
	balance, err := s.GetBalance(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return balance.Assets, nil
}

// TotalValueLocked sums strategy balances across all accounts.
func (s *BalanceService) TotalValueLocked(ctx context.Context) (decimal.Decimal, error) {
	return s.repo.TotalValueLocked(ctx)
}

// mutate loads, mutates and persists an account's balance under its lock.
func (s *BalanceService) mutate(ctx context.Context, accountID, operation string, fn func(*domain.Balance) error) (*domain.Balance, error) {
	unlock := s.locks.Lock(accountID)
	defer unlock()

	balance, err := s.repo.GetBalanceByAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	s.refreshPrices(ctx, balance)

	if err := fn(balance); err != nil {
		if isInsufficient(err) {
			s.metrics.RecordInsufficientBalance(operation)
		}
		s.metrics.RecordBalanceOperation(operation, "error")
		return nil, err
	}
	if err := s.repo.SaveBalance(ctx, balance); err != nil {
		return nil, fmt.Errorf("save balance: %w", err)
	}

	s.metrics.RecordBalanceOperation(operation, "ok")
	s.emitBalance(ctx, balance)
	return balance, nil
}

// refreshPrices pulls current prices for non-spendable assets. A price
// lookup failure keeps the last known price rather than failing the
// operation.
func (s *BalanceService) refreshPrices(ctx context.Context, balance *domain.Balance) {
	if s.prices == nil {
		return
	}
	for asset := range balance.Assets {
		if domain.IsSpendableAsset(asset) {
			continue
		}
		price, err := s.prices.GetPrice(ctx, asset)
		if err != nil {
			s.logger.Debug("price refresh failed, keeping last price", "asset", asset, "error", err)
			continue
		}
		balance.SetAssetPrice(asset, price)
	}
}

func (s *BalanceService) emitBalance(ctx context.Context, balance *domain.Balance) {
	if err := s.publisher.PublishBalance(ctx, events.FromBalance(balance)); err != nil {
		s.logger.Error("failed to publish balance event", "account_id", balance.AccountID, "error", err)
		return
	}
	s.metrics.RecordEventPublished("balance")
}

func (s *BalanceService) updateTVL(ctx context.Context) {
	tvl, err := s.repo.TotalValueLocked(ctx)
	if err != nil {
		s.logger.Warn("failed to compute total value locked", "error", err)
		return
	}
	f, _ := tvl.Float64()
	s.metrics.SetTotalValueLocked(f)
}

func isInsufficient(err error) bool {
	var insErr *domain.InsufficientBalanceError
	return errors.As(err, &insErr)
}
