// Package pricing defines the price-service contract consumed by the ledger
// core, plus a static implementation for tests and development.
package pricing

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/diboas/ledger/service/domain"
)

// PriceService provides USD prices and pairwise exchange rates.
type PriceService interface {
	GetPrice(ctx context.Context, asset string) (decimal.Decimal, error)
	GetExchangeRate(ctx context.Context, fromAsset, toAsset string) (decimal.Decimal, error)
}

// StaticPriceService serves prices from a fixed in-memory table. Spendable
// (fiat-pegged) assets are always priced at 1.
type StaticPriceService struct {
	mu     sync.RWMutex
	prices map[string]decimal.Decimal
}

// NewStaticPriceService creates a price service seeded with the given table.
func NewStaticPriceService(prices map[string]decimal.Decimal) *StaticPriceService {
	table := make(map[string]decimal.Decimal, len(prices))
	for asset, price := range prices {
		table[asset] = price
	}
	return &StaticPriceService{prices: table}
}

// SetPrice updates the price of an asset.
func (s *StaticPriceService) SetPrice(asset string, price decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[asset] = price
}

// GetPrice returns the USD price of an asset.
func (s *StaticPriceService) GetPrice(_ context.Context, asset string) (decimal.Decimal, error) {
	if domain.IsSpendableAsset(asset) {
		return decimal.NewFromInt(1), nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	price, ok := s.prices[asset]
	if !ok {
		return decimal.Zero, &domain.ExternalServiceError{
			Service: "pricing",
			Err:     fmt.Errorf("no price for asset %q", asset),
		}
	}
	return price, nil
}

// GetExchangeRate returns how many units of toAsset one unit of fromAsset
// buys, derived from the USD price of each side.
func (s *StaticPriceService) GetExchangeRate(ctx context.Context, fromAsset, toAsset string) (decimal.Decimal, error) {
	from, err := s.GetPrice(ctx, fromAsset)
	if err != nil {
		return decimal.Zero, err
	}
	to, err := s.GetPrice(ctx, toAsset)
	if err != nil {
		return decimal.Zero, err
	}
	if to.IsZero() {
		return decimal.Zero, &domain.ExternalServiceError{
			Service: "pricing",
			Err:     fmt.Errorf("zero price for asset %q", toAsset),
		}
	}
	return from.Div(to), nil
}
