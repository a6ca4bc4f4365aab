// Package store defines the persistence boundary for transaction and balance
// aggregates, with an in-memory reference implementation and a Postgres
// implementation that swap transparently behind the same interfaces.
package store

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/diboas/ledger/service/domain"
)

// TransactionFilters narrow a transaction listing. Zero values mean "no
// filter"; Limit defaults at the service layer.
type TransactionFilters struct {
	Status *domain.Status
	Type   *domain.TransactionType
	Limit  int
	Offset int
}

// TransactionCriteria is a free query across accounts.
type TransactionCriteria struct {
	AccountID string
	Status    *domain.Status
	Type      *domain.TransactionType
	Asset     string
	Limit     int
	Offset    int
}

// TransactionStatistics aggregates an account's transaction history. Volume
// and fee totals cover COMPLETED transactions only.
type TransactionStatistics struct {
	TotalCount      int                            `json:"total_count"`
	ByStatus        map[domain.Status]int          `json:"by_status"`
	ByType          map[domain.TransactionType]int `json:"by_type"`
	CompletedVolume decimal.Decimal                `json:"completed_volume"`
	CompletedFees   decimal.Decimal                `json:"completed_fees"`
}

// TransactionRepository persists Transaction aggregates.
type TransactionRepository interface {
	SaveTransaction(ctx context.Context, txn *domain.Transaction) error
	GetTransaction(ctx context.Context, id string) (*domain.Transaction, error)
	// ListTransactionsByAccount returns transactions in reverse-chronological
	// order of creation.
	ListTransactionsByAccount(ctx context.Context, accountID string, filters TransactionFilters) ([]*domain.Transaction, error)
	ListTransactions(ctx context.Context, criteria TransactionCriteria) ([]*domain.Transaction, error)
	CountTransactions(ctx context.Context, accountID string, filters TransactionFilters) (int, error)
	GetTransactionStatistics(ctx context.Context, accountID string) (*TransactionStatistics, error)
}

// BalanceRepository persists Balance aggregates.
type BalanceRepository interface {
	SaveBalance(ctx context.Context, balance *domain.Balance) error
	GetBalance(ctx context.Context, id string) (*domain.Balance, error)
	GetBalanceByAccount(ctx context.Context, accountID string) (*domain.Balance, error)
	// ListBalancesByAsset returns balances holding a non-zero amount of asset.
	ListBalancesByAsset(ctx context.Context, asset string) ([]*domain.Balance, error)
	// ListBalancesByChain returns balances with holdings on chain.
	ListBalancesByChain(ctx context.Context, chain string) ([]*domain.Balance, error)
	// TotalValueLocked sums StrategyBalance across all accounts.
	TotalValueLocked(ctx context.Context) (decimal.Decimal, error)
}

// Store is the combined persistence surface used by the services.
type Store interface {
	TransactionRepository
	BalanceRepository
}
