package events

import (
	"time"

	"github.com/diboas/ledger/service/domain"
)

// TransactionEvent is emitted when a transaction reaches a terminal state or
// starts processing. Published to "ledger.txn.{account_id}".
type TransactionEvent struct {
	TransactionID string `json:"transaction_id"`
	AccountID     string `json:"account_id"`
	Type          string `json:"type"`
	Status        string `json:"status"`
	Amount        string `json:"amount"`
	Asset         string `json:"asset"`
	Chain         string `json:"chain,omitempty"`
	FeesTotal     string `json:"fees_total"`
	TxHash        string `json:"tx_hash,omitempty"`
	Error         string `json:"error,omitempty"`

	OccurredAt  time.Time `json:"occurred_at"`
	PublishedAt time.Time `json:"published_at"`
}

// BalanceEvent is emitted after a balance mutation. Published to
// "ledger.balance.{account_id}".
type BalanceEvent struct {
	AccountID            string `json:"account_id"`
	TotalUSD             string `json:"total_usd"`
	AvailableForSpending string `json:"available_for_spending"`
	InvestedAmount       string `json:"invested_amount"`
	StrategyBalance      string `json:"strategy_balance"`

	OccurredAt  time.Time `json:"occurred_at"`
	PublishedAt time.Time `json:"published_at"`
}

// FromTransaction builds the event payload for a transaction's current state.
func FromTransaction(txn *domain.Transaction) *TransactionEvent {
	return &TransactionEvent{
		TransactionID: txn.ID,
		AccountID:     txn.AccountID,
		Type:          string(txn.Type),
		Status:        string(txn.Status),
		Amount:        txn.Amount.String(),
		Asset:         txn.Asset,
		Chain:         txn.Chain,
		FeesTotal:     txn.Fees.Total.String(),
		TxHash:        txn.Metadata.TransactionHash,
		Error:         txn.Error,
		OccurredAt:    time.Now().UTC(),
	}
}

// FromBalance builds the event payload for a balance's current state.
func FromBalance(balance *domain.Balance) *BalanceEvent {
	return &BalanceEvent{
		AccountID:            balance.AccountID,
		TotalUSD:             balance.TotalUSD.String(),
		AvailableForSpending: balance.AvailableForSpending.String(),
		InvestedAmount:       balance.InvestedAmount.String(),
		StrategyBalance:      balance.StrategyBalance.String(),
		OccurredAt:           time.Now().UTC(),
	}
}
