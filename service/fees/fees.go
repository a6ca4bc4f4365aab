// Package fees computes the multi-component fee breakdown for transactions.
package fees

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/diboas/ledger/service/domain"
)

// Quote describes the transaction being priced.
type Quote struct {
	Type             domain.TransactionType
	Amount           decimal.Decimal
	Asset            string
	Chain            string
	DestinationChain string
	PaymentMethod    string
}

// Calculator produces a comprehensive fee breakdown for a transaction quote.
// All components are non-negative; Total is the sum of all components.
type Calculator interface {
	Calculate(ctx context.Context, q Quote) (domain.Fees, error)
}

// Platform fee rates by transaction type. Withdrawals carry a higher rate;
// everything else uses the default.
var (
	defaultPlatformRate  = decimal.RequireFromString("0.0009") // 0.09%
	withdrawPlatformRate = decimal.RequireFromString("0.009")  // 0.9%

	dexRate  = decimal.RequireFromString("0.008") // cross-chain conversion
	defiRate = decimal.RequireFromString("0.005") // strategy entry/exit
)

// Flat network fees by chain, in USD.
var networkFees = map[string]decimal.Decimal{
	"SOL": decimal.RequireFromString("0.01"),
	"ETH": decimal.RequireFromString("2.50"),
	"BTC": decimal.RequireFromString("5.00"),
}

var defaultNetworkFee = decimal.RequireFromString("0.05")

// Provider fee rates by payment/off-ramp method.
var providerRates = map[string]decimal.Decimal{
	"credit_card":  decimal.RequireFromString("0.029"),
	"debit_card":   decimal.RequireFromString("0.015"),
	"bank_account": decimal.RequireFromString("0.01"),
	"apple_pay":    decimal.RequireFromString("0.025"),
	"google_pay":   decimal.RequireFromString("0.025"),
	"paypal":       decimal.RequireFromString("0.03"),
}

// ScheduleCalculator is the default Calculator: a deterministic function of
// transaction type, amount, chain and payment method.
type ScheduleCalculator struct{}

// NewScheduleCalculator returns the default fee schedule.
func NewScheduleCalculator() *ScheduleCalculator {
	return &ScheduleCalculator{}
}

// Calculate prices a quote against the schedule. The diBoaS platform fee is a
// percentage of the amount, the network fee is a flat per-chain charge, the
// provider fee depends on the payment method, the DEX fee applies only to
// cross-chain conversions, and the DeFi fee applies to strategy operations.
func (c *ScheduleCalculator) Calculate(_ context.Context, q Quote) (domain.Fees, error) {
	if q.Amount.IsNegative() {
		return domain.Fees{}, &domain.ValidationError{Field: "amount", Reason: "must not be negative"}
	}

	f := domain.Fees{
		DiBoaS:  q.Amount.Mul(platformRate(q.Type)),
		Network: networkFee(q.Chain),
	}

	if rate, ok := providerRates[q.PaymentMethod]; ok {
		f.Provider = q.Amount.Mul(rate)
	}
	if q.DestinationChain != "" && q.Chain != "" && q.DestinationChain != q.Chain {
		f.DEX = q.Amount.Mul(dexRate)
	}
	switch q.Type {
	case domain.TypeInvest, domain.TypeStartStrategy, domain.TypeStopStrategy:
		f.DeFi = q.Amount.Mul(defiRate)
	}

	f.Total = f.Sum()
	return f, nil
}

func platformRate(t domain.TransactionType) decimal.Decimal {
	if t == domain.TypeWithdraw {
		return withdrawPlatformRate
	}
	return defaultPlatformRate
}

func networkFee(chain string) decimal.Decimal {
	if fee, ok := networkFees[chain]; ok {
		return fee
	}
	return defaultNetworkFee
}
