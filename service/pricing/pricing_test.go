package pricing

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diboas/ledger/service/domain"
)

func TestGetPrice(t *testing.T) {
	svc := NewStaticPriceService(map[string]decimal.Decimal{
		"BTC": decimal.NewFromInt(45000),
	})
	ctx := context.Background()

	price, err := svc.GetPrice(ctx, "BTC")
	require.NoError(t, err)
	assert.True(t, price.Equal(decimal.NewFromInt(45000)))

	// Fiat-pegged assets are pinned at 1 even without a table entry.
	price, err = svc.GetPrice(ctx, "USDC")
	require.NoError(t, err)
	assert.True(t, price.Equal(decimal.NewFromInt(1)))

	_, err = svc.GetPrice(ctx, "DOGE")
	var extErr *domain.ExternalServiceError
	require.ErrorAs(t, err, &extErr)
}

func TestGetExchangeRate(t *testing.T) {
	svc := NewStaticPriceService(map[string]decimal.Decimal{
		"BTC": decimal.NewFromInt(45000),
		"SOL": decimal.NewFromInt(150),
	})
	ctx := context.Background()

	rate, err := svc.GetExchangeRate(ctx, "BTC", "SOL")
	require.NoError(t, err)
	assert.True(t, rate.Equal(decimal.NewFromInt(300)))

	rate, err = svc.GetExchangeRate(ctx, "USDC", "SOL")
	require.NoError(t, err)
	assert.True(t, rate.Round(6).Equal(decimal.RequireFromString("0.006667")))
}

func TestSetPrice(t *testing.T) {
	svc := NewStaticPriceService(nil)
	svc.SetPrice("SOL", decimal.NewFromInt(200))

	price, err := svc.GetPrice(context.Background(), "SOL")
	require.NoError(t, err)
	assert.True(t, price.Equal(decimal.NewFromInt(200)))
}
