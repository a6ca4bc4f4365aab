package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// spendableAssets are the stable/fiat-pegged assets that count toward
// AvailableForSpending. Their price is pinned at 1.
var spendableAssets = map[string]bool{
	"USD":  true,
	"USDC": true,
	"USDT": true,
}

// IsSpendableAsset reports whether an asset is classified as directly usable
// for payment.
func IsSpendableAsset(asset string) bool {
	return spendableAssets[asset]
}

// AssetBalance is the holding of a single asset on a single chain.
type AssetBalance struct {
	Asset     string          `json:"asset"`
	Chain     string          `json:"chain"`
	Balance   decimal.Decimal `json:"balance"`
	LastPrice decimal.Decimal `json:"last_price"`
	USDValue  decimal.Decimal `json:"usd_value"`
}

// ChainBalance is the per-chain view of an account's holdings.
type ChainBalance struct {
	Chain      string                     `json:"chain"`
	Assets     map[string]decimal.Decimal `json:"assets"`
	GasBalance decimal.Decimal            `json:"gas_balance"`
	USDValue   decimal.Decimal            `json:"usd_value"`
}

// TotalUSDValue returns the USD value of all assets held on this chain, as of
// the last recalculation of the owning balance.
func (c *ChainBalance) TotalUSDValue() decimal.Decimal {
	return c.USDValue
}

// Balance is the per-account aggregate of all holdings. TotalUSD and
// AvailableForSpending are recomputed from constituent assets on every
// mutation and never drift independently.
type Balance struct {
	ID                   string          `json:"id"`
	AccountID            string          `json:"account_id"`
	TotalUSD             decimal.Decimal `json:"total_usd"`
	AvailableForSpending decimal.Decimal `json:"available_for_spending"`
	InvestedAmount       decimal.Decimal `json:"invested_amount"`
	StrategyBalance      decimal.Decimal `json:"strategy_balance"`

	Assets map[string]*AssetBalance `json:"assets"`
	Chains map[string]*ChainBalance `json:"chains"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewBalance creates an empty balance aggregate for an account.
func NewBalance(accountID string) *Balance {
	now := time.Now().UTC()
	return &Balance{
		ID:        uuid.NewString(),
		AccountID: accountID,
		Assets:    make(map[string]*AssetBalance),
		Chains:    make(map[string]*ChainBalance),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// ensureAsset registers the asset/chain pair in both maps, creating a zero
// holding if absent.
func (b *Balance) ensureAsset(asset, chain string) *AssetBalance {
	ab, ok := b.Assets[asset]
	if !ok {
		price := decimal.Zero
		if IsSpendableAsset(asset) {
			price = decimal.NewFromInt(1)
		}
		ab = &AssetBalance{Asset: asset, Chain: chain, LastPrice: price}
		b.Assets[asset] = ab
	}
	if chain != "" {
		cb, ok := b.Chains[chain]
		if !ok {
			cb = &ChainBalance{Chain: chain, Assets: make(map[string]decimal.Decimal)}
			b.Chains[chain] = cb
		}
		if _, ok := cb.Assets[asset]; !ok {
			cb.Assets[asset] = decimal.Zero
		}
	}
	return ab
}

// Credit adds amount of asset on chain, creating the holding if absent.
func (b *Balance) Credit(amount decimal.Decimal, asset, chain string) error {
	if amount.IsNegative() {
		return &ValidationError{Field: "amount", Reason: "must not be negative"}
	}
	ab := b.ensureAsset(asset, chain)
	ab.Balance = ab.Balance.Add(amount)
	b.syncChainAsset(asset, chain, ab.Balance)
	b.RecalculateTotals()
	return nil
}

// Debit removes amount of asset on chain. A debit beyond the current holding
// fails with InsufficientBalanceError and leaves all state unchanged.
func (b *Balance) Debit(amount decimal.Decimal, asset, chain string) error {
	if amount.IsNegative() {
		return &ValidationError{Field: "amount", Reason: "must not be negative"}
	}
	ab, ok := b.Assets[asset]
	if !ok || ab.Balance.LessThan(amount) {
		available := decimal.Zero
		if ok {
			available = ab.Balance
		}
		return &InsufficientBalanceError{Asset: asset, Requested: amount, Available: available}
	}
	ab.Balance = ab.Balance.Sub(amount)
	b.syncChainAsset(asset, chain, ab.Balance)
	b.RecalculateTotals()
	return nil
}

// UpdateAssetBalance sets the absolute balance of asset on chain, registering
// the pair in both the assets and chains maps if new.
func (b *Balance) UpdateAssetBalance(asset string, amount decimal.Decimal, chain string) error {
	if amount.IsNegative() {
		return &ValidationError{Field: "amount", Reason: "must not be negative"}
	}
	ab := b.ensureAsset(asset, chain)
	ab.Balance = amount
	b.syncChainAsset(asset, chain, amount)
	b.RecalculateTotals()
	return nil
}

// SetAssetPrice records the latest price for an asset and refreshes totals.
// Spendable assets are pinned at 1 and ignore price updates.
func (b *Balance) SetAssetPrice(asset string, price decimal.Decimal) {
	ab, ok := b.Assets[asset]
	if !ok || IsSpendableAsset(asset) {
		return
	}
	ab.LastPrice = price
	b.RecalculateTotals()
}

// LockForStrategy moves amount from spendable funds into a yield strategy.
// Locking then releasing the same amount restores pre-lock values exactly.
func (b *Balance) LockForStrategy(amount decimal.Decimal, strategyID string) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return &ValidationError{Field: "amount", Reason: "must be greater than zero"}
	}
	if b.AvailableForSpending.LessThan(amount) {
		return &InsufficientBalanceError{
			Asset:     "spendable",
			Requested: amount,
			Available: b.AvailableForSpending,
		}
	}
	b.StrategyBalance = b.StrategyBalance.Add(amount)
	b.InvestedAmount = b.InvestedAmount.Add(amount)
	b.RecalculateTotals()
	return nil
}

// ReleaseFromStrategy is the inverse of LockForStrategy.
func (b *Balance) ReleaseFromStrategy(amount decimal.Decimal, strategyID string) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return &ValidationError{Field: "amount", Reason: "must be greater than zero"}
	}
	if b.StrategyBalance.LessThan(amount) {
		return &InsufficientBalanceError{
			Asset:     "strategy",
			Requested: amount,
			Available: b.StrategyBalance,
		}
	}
	b.StrategyBalance = b.StrategyBalance.Sub(amount)
	b.InvestedAmount = b.InvestedAmount.Sub(amount)
	b.RecalculateTotals()
	return nil
}

// HasSufficientBalance reports whether the account holds at least amount of
// asset. Absent assets report false rather than erroring.
func (b *Balance) HasSufficientBalance(amount decimal.Decimal, asset string) bool {
	ab, ok := b.Assets[asset]
	if !ok {
		return false
	}
	return ab.Balance.GreaterThanOrEqual(amount)
}

// RecalculateTotals recomputes TotalUSD and AvailableForSpending from the
// constituent asset holdings. Funds locked into strategies are excluded from
// the spendable total.
func (b *Balance) RecalculateTotals() {
	total := decimal.Zero
	spendable := decimal.Zero
	chainTotals := make(map[string]decimal.Decimal, len(b.Chains))

	for _, ab := range b.Assets {
		if IsSpendableAsset(ab.Asset) {
			ab.LastPrice = decimal.NewFromInt(1)
		}
		ab.USDValue = ab.Balance.Mul(ab.LastPrice)
		total = total.Add(ab.USDValue)
		if IsSpendableAsset(ab.Asset) {
			spendable = spendable.Add(ab.USDValue)
		}
		if ab.Chain != "" {
			chainTotals[ab.Chain] = chainTotals[ab.Chain].Add(ab.USDValue)
		}
	}

	spendable = spendable.Sub(b.StrategyBalance)
	if spendable.IsNegative() {
		spendable = decimal.Zero
	}

	b.TotalUSD = total
	b.AvailableForSpending = spendable
	for chain, cb := range b.Chains {
		cb.USDValue = chainTotals[chain]
	}
	b.UpdatedAt = time.Now().UTC()
}

// syncChainAsset mirrors an asset's balance into its chain view.
func (b *Balance) syncChainAsset(asset, chain string, amount decimal.Decimal) {
	if chain == "" {
		return
	}
	if cb, ok := b.Chains[chain]; ok {
		cb.Assets[asset] = amount
	}
}

// Clone returns a deep copy of the balance aggregate.
func (b *Balance) Clone() *Balance {
	cp := *b
	cp.Assets = make(map[string]*AssetBalance, len(b.Assets))
	for k, v := range b.Assets {
		ab := *v
		cp.Assets[k] = &ab
	}
	cp.Chains = make(map[string]*ChainBalance, len(b.Chains))
	for k, v := range b.Chains {
		cb := *v
		cb.Assets = make(map[string]decimal.Decimal, len(v.Assets))
		for a, amt := range v.Assets {
			cb.Assets[a] = amt
		}
		cp.Chains[k] = &cb
	}
	return &cp
}
