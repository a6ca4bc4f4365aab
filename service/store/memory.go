package store

import (
	"context"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/diboas/ledger/service/domain"
)

// MemoryStore is the in-memory reference implementation of Store. Aggregates
// are keyed by generated ID in owned tables; all access is mutex-guarded and
// values are deep-copied on the way in and out so callers can never mutate
// stored state.
type MemoryStore struct {
	mu sync.RWMutex

	transactions map[string]*domain.Transaction
	txnByAccount map[string][]string // account -> transaction IDs, append order

	balances      map[string]*domain.Balance
	balanceByAcct map[string]string // account -> balance ID
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		transactions:  make(map[string]*domain.Transaction),
		txnByAccount:  make(map[string][]string),
		balances:      make(map[string]*domain.Balance),
		balanceByAcct: make(map[string]string),
	}
}

// SaveTransaction inserts or replaces a transaction.
func (s *MemoryStore) SaveTransaction(_ context.Context, txn *domain.Transaction) error {
	if txn.ID == "" {
		return &domain.ValidationError{Field: "id", Reason: "must not be empty"}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.transactions[txn.ID]; !exists {
		s.txnByAccount[txn.AccountID] = append(s.txnByAccount[txn.AccountID], txn.ID)
	}
	s.transactions[txn.ID] = txn.Clone()
	return nil
}

// GetTransaction retrieves a transaction by ID.
func (s *MemoryStore) GetTransaction(_ context.Context, id string) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	txn, ok := s.transactions[id]
	if !ok {
		return nil, &domain.NotFoundError{Kind: "transaction", ID: id}
	}
	return txn.Clone(), nil
}

// ListTransactionsByAccount returns an account's transactions in
// reverse-chronological order of creation.
func (s *MemoryStore) ListTransactionsByAccount(_ context.Context, accountID string, filters TransactionFilters) ([]*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return paginate(s.matchAccount(accountID, filters.Status, filters.Type, ""), filters.Limit, filters.Offset), nil
}

// ListTransactions returns transactions matching free criteria.
func (s *MemoryStore) ListTransactions(_ context.Context, criteria TransactionCriteria) ([]*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*domain.Transaction
	if criteria.AccountID != "" {
		matched = s.matchAccount(criteria.AccountID, criteria.Status, criteria.Type, criteria.Asset)
	} else {
		for _, txn := range s.transactions {
			if matches(txn, criteria.Status, criteria.Type, criteria.Asset) {
				matched = append(matched, txn)
			}
		}
		sortNewestFirst(matched)
	}
	return paginate(matched, criteria.Limit, criteria.Offset), nil
}

// CountTransactions counts an account's transactions matching the filters.
func (s *MemoryStore) CountTransactions(_ context.Context, accountID string, filters TransactionFilters) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.matchAccount(accountID, filters.Status, filters.Type, "")), nil
}

// GetTransactionStatistics aggregates counts by status and type, and volume
// and fees across COMPLETED transactions only.
func (s *MemoryStore) GetTransactionStatistics(_ context.Context, accountID string) (*TransactionStatistics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &TransactionStatistics{
		ByStatus:        make(map[domain.Status]int),
		ByType:          make(map[domain.TransactionType]int),
		CompletedVolume: decimal.Zero,
		CompletedFees:   decimal.Zero,
	}
	for _, id := range s.txnByAccount[accountID] {
		txn := s.transactions[id]
		stats.TotalCount++
		stats.ByStatus[txn.Status]++
		stats.ByType[txn.Type]++
		if txn.Status == domain.StatusCompleted {
			stats.CompletedVolume = stats.CompletedVolume.Add(txn.Amount)
			stats.CompletedFees = stats.CompletedFees.Add(txn.Fees.Total)
		}
	}
	return stats, nil
}

// matchAccount collects an account's transactions matching the filters,
// newest first. Caller must hold the read lock.
func (s *MemoryStore) matchAccount(accountID string, status *domain.Status, typ *domain.TransactionType, asset string) []*domain.Transaction {
	var matched []*domain.Transaction
	for _, id := range s.txnByAccount[accountID] {
		txn := s.transactions[id]
		if matches(txn, status, typ, asset) {
			matched = append(matched, txn)
		}
	}
	sortNewestFirst(matched)
	return matched
}

func matches(txn *domain.Transaction, status *domain.Status, typ *domain.TransactionType, asset string) bool {
	if status != nil && txn.Status != *status {
		return false
	}
	if typ != nil && txn.Type != *typ {
		return false
	}
	if asset != "" && txn.Asset != asset {
		return false
	}
	return true
}

func sortNewestFirst(txns []*domain.Transaction) {
	sort.SliceStable(txns, func(i, j int) bool {
		return txns[i].Timeline.CreatedAt.After(txns[j].Timeline.CreatedAt)
	})
}

func paginate(txns []*domain.Transaction, limit, offset int) []*domain.Transaction {
	if offset >= len(txns) {
		return []*domain.Transaction{}
	}
	txns = txns[offset:]
	if limit > 0 && limit < len(txns) {
		txns = txns[:limit]
	}
	out := make([]*domain.Transaction, len(txns))
	for i, txn := range txns {
		out[i] = txn.Clone()
	}
	return out
}

// SaveBalance inserts or replaces a balance aggregate.
func (s *MemoryStore) SaveBalance(_ context.Context, balance *domain.Balance) error {
	if balance.ID == "" {
		return &domain.ValidationError{Field: "id", Reason: "must not be empty"}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.balances[balance.ID] = balance.Clone()
	s.balanceByAcct[balance.AccountID] = balance.ID
	return nil
}

// GetBalance retrieves a balance by its generated ID.
func (s *MemoryStore) GetBalance(_ context.Context, id string) (*domain.Balance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	balance, ok := s.balances[id]
	if !ok {
		return nil, &domain.NotFoundError{Kind: "balance", ID: id}
	}
	return balance.Clone(), nil
}

// GetBalanceByAccount retrieves the balance owned by an account.
func (s *MemoryStore) GetBalanceByAccount(_ context.Context, accountID string) (*domain.Balance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.balanceByAcct[accountID]
	if !ok {
		return nil, &domain.NotFoundError{Kind: "balance", ID: accountID}
	}
	return s.balances[id].Clone(), nil
}

// ListBalancesByAsset returns balances with a non-zero holding of asset.
func (s *MemoryStore) ListBalancesByAsset(_ context.Context, asset string) ([]*domain.Balance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.Balance
	for _, balance := range s.balances {
		if ab, ok := balance.Assets[asset]; ok && !ab.Balance.IsZero() {
			out = append(out, balance.Clone())
		}
	}
	return out, nil
}

// ListBalancesByChain returns balances with holdings on chain.
func (s *MemoryStore) ListBalancesByChain(_ context.Context, chain string) ([]*domain.Balance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.Balance
	for _, balance := range s.balances {
		if _, ok := balance.Chains[chain]; ok {
			out = append(out, balance.Clone())
		}
	}
	return out, nil
}

// TotalValueLocked sums strategy balances across all accounts.
func (s *MemoryStore) TotalValueLocked(_ context.Context) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := decimal.Zero
	for _, balance := range s.balances {
		total = total.Add(balance.StrategyBalance)
	}
	return total, nil
}
