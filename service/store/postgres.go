package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/diboas/ledger/service/domain"
)

// PostgresStore implements Store on top of a pgx connection pool. Aggregates
// are stored one row each with JSONB for the structured fields, so it swaps
// transparently with MemoryStore behind the same interfaces.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a store backed by the given pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// SaveTransaction inserts or replaces a transaction row.
func (s *PostgresStore) SaveTransaction(ctx context.Context, txn *domain.Transaction) error {
	if txn.ID == "" {
		return &domain.ValidationError{Field: "id", Reason: "must not be empty"}
	}
	fees, err := json.Marshal(txn.Fees)
	if err != nil {
		return fmt.Errorf("marshal fees: %w", err)
	}
	timeline, err := json.Marshal(txn.Timeline)
	if err != nil {
		return fmt.Errorf("marshal timeline: %w", err)
	}
	metadata, err := json.Marshal(txn.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	var result []byte
	if txn.Result != nil {
		result, err = json.Marshal(txn.Result)
		if err != nil {
			return fmt.Errorf("marshal result: %w", err)
		}
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO transactions (
			id, account_id, type, status, amount, asset, chain, payment_method,
			direction, fees, timeline, result, error, metadata, fees_total, created_at
		) VALUES (
			$1, $2, $3, $4, $5::numeric, $6, $7, $8,
			$9, $10, $11, $12, $13, $14, $15::numeric, $16
		)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			fees = EXCLUDED.fees,
			timeline = EXCLUDED.timeline,
			result = EXCLUDED.result,
			error = EXCLUDED.error,
			metadata = EXCLUDED.metadata,
			fees_total = EXCLUDED.fees_total`,
		txn.ID, txn.AccountID, string(txn.Type), string(txn.Status),
		txn.Amount.String(), txn.Asset, txn.Chain, txn.PaymentMethod,
		string(txn.Direction), fees, timeline, result, txn.Error, metadata,
		txn.Fees.Total.String(), txn.Timeline.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save transaction: %w", err)
	}
	return nil
}

const transactionColumns = `
	id, account_id, type, status, amount::text, asset, chain, payment_method,
	direction, fees, timeline, result, error, metadata`

// GetTransaction retrieves a transaction by ID.
func (s *PostgresStore) GetTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id)
	txn, err := scanTransaction(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &domain.NotFoundError{Kind: "transaction", ID: id}
	}
	return txn, err
}

// ListTransactionsByAccount returns an account's transactions newest first.
func (s *PostgresStore) ListTransactionsByAccount(ctx context.Context, accountID string, filters TransactionFilters) ([]*domain.Transaction, error) {
	return s.ListTransactions(ctx, TransactionCriteria{
		AccountID: accountID,
		Status:    filters.Status,
		Type:      filters.Type,
		Limit:     filters.Limit,
		Offset:    filters.Offset,
	})
}

// ListTransactions returns transactions matching free criteria, newest first.
func (s *PostgresStore) ListTransactions(ctx context.Context, criteria TransactionCriteria) ([]*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE 1=1`
	var args []any
	if criteria.AccountID != "" {
		args = append(args, criteria.AccountID)
		query += fmt.Sprintf(" AND account_id = $%d", len(args))
	}
	if criteria.Status != nil {
		args = append(args, string(*criteria.Status))
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if criteria.Type != nil {
		args = append(args, string(*criteria.Type))
		query += fmt.Sprintf(" AND type = $%d", len(args))
	}
	if criteria.Asset != "" {
		args = append(args, criteria.Asset)
		query += fmt.Sprintf(" AND asset = $%d", len(args))
	}
	query += " ORDER BY created_at DESC"
	if criteria.Limit > 0 {
		args = append(args, criteria.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if criteria.Offset > 0 {
		args = append(args, criteria.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []*domain.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, txn)
	}
	return out, rows.Err()
}

// CountTransactions counts an account's transactions matching the filters.
func (s *PostgresStore) CountTransactions(ctx context.Context, accountID string, filters TransactionFilters) (int, error) {
	query := `SELECT COUNT(*) FROM transactions WHERE account_id = $1`
	args := []any{accountID}
	if filters.Status != nil {
		args = append(args, string(*filters.Status))
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filters.Type != nil {
		args = append(args, string(*filters.Type))
		query += fmt.Sprintf(" AND type = $%d", len(args))
	}
	var count int
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count transactions: %w", err)
	}
	return count, nil
}

// GetTransactionStatistics aggregates counts and completed volume/fees for an
// account directly in SQL.
func (s *PostgresStore) GetTransactionStatistics(ctx context.Context, accountID string) (*TransactionStatistics, error) {
	stats := &TransactionStatistics{
		ByStatus:        make(map[domain.Status]int),
		ByType:          make(map[domain.TransactionType]int),
		CompletedVolume: decimal.Zero,
		CompletedFees:   decimal.Zero,
	}

	rows, err := s.pool.Query(ctx, `
		SELECT status, type, COUNT(*),
		       COALESCE(SUM(amount) FILTER (WHERE status = 'COMPLETED'), 0)::text,
		       COALESCE(SUM(fees_total) FILTER (WHERE status = 'COMPLETED'), 0)::text
		FROM transactions
		WHERE account_id = $1
		GROUP BY status, type`, accountID)
	if err != nil {
		return nil, fmt.Errorf("transaction statistics: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status, typ, volume, feeTotal string
		var count int
		if err := rows.Scan(&status, &typ, &count, &volume, &feeTotal); err != nil {
			return nil, fmt.Errorf("scan statistics: %w", err)
		}
		stats.TotalCount += count
		stats.ByStatus[domain.Status(status)] += count
		stats.ByType[domain.TransactionType(typ)] += count

		v, err := decimal.NewFromString(volume)
		if err != nil {
			return nil, fmt.Errorf("parse volume: %w", err)
		}
		f, err := decimal.NewFromString(feeTotal)
		if err != nil {
			return nil, fmt.Errorf("parse fees: %w", err)
		}
		stats.CompletedVolume = stats.CompletedVolume.Add(v)
		stats.CompletedFees = stats.CompletedFees.Add(f)
	}
	return stats, rows.Err()
}

// SaveBalance inserts or replaces a balance row.
func (s *PostgresStore) SaveBalance(ctx context.Context, balance *domain.Balance) error {
	if balance.ID == "" {
		return &domain.ValidationError{Field: "id", Reason: "must not be empty"}
	}
	assets, err := json.Marshal(balance.Assets)
	if err != nil {
		return fmt.Errorf("marshal assets: %w", err)
	}
	chains, err := json.Marshal(balance.Chains)
	if err != nil {
		return fmt.Errorf("marshal chains: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO balances (
			id, account_id, total_usd, available_for_spending, invested_amount,
			strategy_balance, assets, chains, created_at, updated_at
		) VALUES (
			$1, $2, $3::numeric, $4::numeric, $5::numeric,
			$6::numeric, $7, $8, $9, $10
		)
		ON CONFLICT (id) DO UPDATE SET
			total_usd = EXCLUDED.total_usd,
			available_for_spending = EXCLUDED.available_for_spending,
			invested_amount = EXCLUDED.invested_amount,
			strategy_balance = EXCLUDED.strategy_balance,
			assets = EXCLUDED.assets,
			chains = EXCLUDED.chains,
			updated_at = EXCLUDED.updated_at`,
		balance.ID, balance.AccountID, balance.TotalUSD.String(),
		balance.AvailableForSpending.String(), balance.InvestedAmount.String(),
		balance.StrategyBalance.String(), assets, chains,
		balance.CreatedAt, balance.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save balance: %w", err)
	}
	return nil
}

const balanceColumns = `
	id, account_id, total_usd::text, available_for_spending::text,
	invested_amount::text, strategy_balance::text, assets, chains,
	created_at, updated_at`

// GetBalance retrieves a balance by its generated ID.
func (s *PostgresStore) GetBalance(ctx context.Context, id string) (*domain.Balance, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+balanceColumns+` FROM balances WHERE id = $1`, id)
	balance, err := scanBalance(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &domain.NotFoundError{Kind: "balance", ID: id}
	}
	return balance, err
}

// GetBalanceByAccount retrieves the balance owned by an account.
func (s *PostgresStore) GetBalanceByAccount(ctx context.Context, accountID string) (*domain.Balance, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+balanceColumns+` FROM balances WHERE account_id = $1`, accountID)
	balance, err := scanBalance(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &domain.NotFoundError{Kind: "balance", ID: accountID}
	}
	return balance, err
}

// ListBalancesByAsset returns balances with a non-zero holding of asset.
func (s *PostgresStore) ListBalancesByAsset(ctx context.Context, asset string) ([]*domain.Balance, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+balanceColumns+` FROM balances
		WHERE assets ? $1 AND (assets->$1->>'balance')::numeric <> 0`, asset)
	if err != nil {
		return nil, fmt.Errorf("list balances by asset: %w", err)
	}
	defer rows.Close()
	return scanBalances(rows)
}

// ListBalancesByChain returns balances with holdings on chain.
func (s *PostgresStore) ListBalancesByChain(ctx context.Context, chain string) ([]*domain.Balance, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+balanceColumns+` FROM balances WHERE chains ? $1`, chain)
	if err != nil {
		return nil, fmt.Errorf("list balances by chain: %w", err)
	}
	defer rows.Close()
	return scanBalances(rows)
}

// TotalValueLocked sums strategy balances across all accounts.
func (s *PostgresStore) TotalValueLocked(ctx context.Context) (decimal.Decimal, error) {
	var total string
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(strategy_balance), 0)::text FROM balances`).Scan(&total)
	if err != nil {
		return decimal.Zero, fmt.Errorf("total value locked: %w", err)
	}
	return decimal.NewFromString(total)
}

func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	var (
		txn                           domain.Transaction
		typ, status, direction, amount string
		fees, timeline, metadata      []byte
		result                        []byte
	)
	err := row.Scan(
		&txn.ID, &txn.AccountID, &typ, &status, &amount, &txn.Asset, &txn.Chain,
		&txn.PaymentMethod, &direction, &fees, &timeline, &result, &txn.Error, &metadata,
	)
	if err != nil {
		return nil, err
	}
	txn.Type = domain.TransactionType(typ)
	txn.Status = domain.Status(status)
	txn.Direction = domain.Direction(direction)
	if txn.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("parse amount: %w", err)
	}
	if err := json.Unmarshal(fees, &txn.Fees); err != nil {
		return nil, fmt.Errorf("unmarshal fees: %w", err)
	}
	if err := json.Unmarshal(timeline, &txn.Timeline); err != nil {
		return nil, fmt.Errorf("unmarshal timeline: %w", err)
	}
	if err := json.Unmarshal(metadata, &txn.Metadata); err != nil {
		return nil, fmt.Errorf("unmarshal metadata: %w", err)
	}
	if len(result) > 0 {
		txn.Result = &domain.SettlementResult{}
		if err := json.Unmarshal(result, txn.Result); err != nil {
			return nil, fmt.Errorf("unmarshal result: %w", err)
		}
	}
	return &txn, nil
}

func scanBalance(row pgx.Row) (*domain.Balance, error) {
	var (
		balance                              domain.Balance
		totalUSD, available, invested, strat string
		assets, chains                       []byte
	)
	err := row.Scan(
		&balance.ID, &balance.AccountID, &totalUSD, &available,
		&invested, &strat, &assets, &chains,
		&balance.CreatedAt, &balance.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if balance.TotalUSD, err = decimal.NewFromString(totalUSD); err != nil {
		return nil, fmt.Errorf("parse total_usd: %w", err)
	}
	if balance.AvailableForSpending, err = decimal.NewFromString(available); err != nil {
		return nil, fmt.Errorf("parse available_for_spending: %w", err)
	}
	if balance.InvestedAmount, err = decimal.NewFromString(invested); err != nil {
		return nil, fmt.Errorf("parse invested_amount: %w", err)
	}
	if balance.StrategyBalance, err = decimal.NewFromString(strat); err != nil {
		return nil, fmt.Errorf("parse strategy_balance: %w", err)
	}
	if err := json.Unmarshal(assets, &balance.Assets); err != nil {
		return nil, fmt.Errorf("unmarshal assets: %w", err)
	}
	if err := json.Unmarshal(chains, &balance.Chains); err != nil {
		return nil, fmt.Errorf("unmarshal chains: %w", err)
	}
	if balance.Assets == nil {
		balance.Assets = make(map[string]*domain.AssetBalance)
	}
	if balance.Chains == nil {
		balance.Chains = make(map[string]*domain.ChainBalance)
	}
	return &balance, nil
}

func scanBalances(rows pgx.Rows) ([]*domain.Balance, error) {
	var out []*domain.Balance
	for rows.Next() {
		balance, err := scanBalance(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, balance)
	}
	return out, rows.Err()
}
