// Package temporal runs transaction processing as a durable workflow: each
// lifecycle step is an activity over the ledger services, so a crashed worker
// resumes processing instead of stranding a reserved balance.
package temporal

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/diboas/ledger/service/domain"
	"github.com/diboas/ledger/service/ledger"
)

// Activities holds dependencies for transaction processing activities.
type Activities struct {
	txns   *ledger.TransactionService
	logger *slog.Logger
}

// NewActivities creates a new Activities instance with the given dependencies.
func NewActivities(txns *ledger.TransactionService, logger *slog.Logger) *Activities {
	if logger == nil {
		logger = slog.Default()
	}
	return &Activities{txns: txns, logger: logger}
}

// SettleResult is the activity-level settlement outcome passed between
// workflow steps.
type SettleResult struct {
	TxHash        string `json:"tx_hash"`
	Confirmations int    `json:"confirmations"`
}

// CompleteInput carries the settlement outcome into the completion step.
type CompleteInput struct {
	TransactionID string `json:"transaction_id"`
	TxHash        string `json:"tx_hash"`
	Confirmations int    `json:"confirmations"`
}

// FailInput marks a transaction as failed with a reason.
type FailInput struct {
	TransactionID string `json:"transaction_id"`
	Reason        string `json:"reason"`
}

// BeginProcessing moves the transaction from PENDING to PROCESSING. The state
// machine rejects a duplicate start, which makes a re-delivered workflow task
// harmless.
func (a *Activities) BeginProcessing(ctx context.Context, transactionID string) error {
	a.logger.InfoContext(ctx, "begin processing", "transaction_id", transactionID)
	_, err := a.txns.BeginProcessing(ctx, transactionID)
	return err
}

// ReserveFunds applies the debit side of the transaction.
func (a *Activities) ReserveFunds(ctx context.Context, transactionID string) error {
	txn, err := a.txns.GetTransaction(ctx, transactionID)
	if err != nil {
		return err
	}
	a.logger.InfoContext(ctx, "reserving funds",
		"transaction_id", transactionID,
		"direction", txn.Direction,
		"amount", txn.Amount.String(),
	)
	return a.txns.ReserveFunds(ctx, txn)
}

// Settle performs the external settlement call.
func (a *Activities) Settle(ctx context.Context, transactionID string) (*SettleResult, error) {
	txn, err := a.txns.GetTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	result, err := a.txns.SettleTransaction(ctx, txn)
	if err != nil {
		return nil, err
	}
	a.logger.InfoContext(ctx, "settled transaction",
		"transaction_id", transactionID,
		"tx_hash", result.TxHash,
	)
	return &SettleResult{TxHash: result.TxHash, Confirmations: result.Confirmations}, nil
}

// ReleaseReservation reverses a reservation after settlement failed for good.
func (a *Activities) ReleaseReservation(ctx context.Context, transactionID string) error {
	txn, err := a.txns.GetTransaction(ctx, transactionID)
	if err != nil {
		return err
	}
	a.logger.InfoContext(ctx, "releasing reservation", "transaction_id", transactionID)
	return a.txns.ReleaseReservation(ctx, txn)
}

// Complete credits incoming funds and marks the transaction COMPLETED.
func (a *Activities) Complete(ctx context.Context, input CompleteInput) error {
	txn, err := a.txns.GetTransaction(ctx, input.TransactionID)
	if err != nil {
		return err
	}
	result := &domain.SettlementResult{
		Success:       true,
		TxHash:        input.TxHash,
		Confirmations: input.Confirmations,
	}
	if err := a.txns.CompleteTransaction(ctx, txn, result); err != nil {
		return fmt.Errorf("complete transaction: %w", err)
	}
	return nil
}

// MarkFailed records a terminal failure.
func (a *Activities) MarkFailed(ctx context.Context, input FailInput) error {
	a.logger.WarnContext(ctx, "marking transaction failed",
		"transaction_id", input.TransactionID,
		"reason", input.Reason,
	)
	_, err := a.txns.FailTransaction(ctx, input.TransactionID, input.Reason)
	return err
}
