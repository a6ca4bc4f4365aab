package temporal

import (
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// ProcessTransactionInput identifies the transaction to process.
type ProcessTransactionInput struct {
	TransactionID string `json:"transaction_id"`
}

// ProcessTransactionResult reports the workflow outcome.
type ProcessTransactionResult struct {
	TransactionID string  `json:"transaction_id"`
	Status        string  `json:"status"` // "completed" or "failed"
	TxHash        string  `json:"tx_hash,omitempty"`
	Error         *string `json:"error,omitempty"`
}

// ProcessTransactionWorkflow drives a transaction through processing:
// 1. BeginProcessing guards against double execution
// 2. ReserveFunds debits the account per the transaction's direction
// 3. Settle performs the external settlement, with retries
// 4. Complete credits incoming funds and finalizes the transaction
// A settlement failure releases the reservation before the transaction is
// marked FAILED, so no funds stay stranded.
func ProcessTransactionWorkflow(ctx workflow.Context, input ProcessTransactionInput) (*ProcessTransactionResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("ProcessTransactionWorkflow started", "transaction_id", input.TransactionID)

	result := &ProcessTransactionResult{TransactionID: input.TransactionID}

	// Lifecycle steps mutate balances and are not idempotent, so they run
	// exactly once. Only settlement gets a retry policy.
	stepCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 1,
		},
	})
	settleCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    30 * time.Second,
			MaximumAttempts:    3,
		},
	})

	if err := workflow.ExecuteActivity(stepCtx, "BeginProcessing", input.TransactionID).Get(ctx, nil); err != nil {
		logger.Error("begin processing failed", "error", err)
		return failResult(result, fmt.Errorf("begin processing: %w", err))
	}

	if err := workflow.ExecuteActivity(stepCtx, "ReserveFunds", input.TransactionID).Get(ctx, nil); err != nil {
		logger.Error("funds reservation failed", "error", err)
		markFailed(stepCtx, input.TransactionID, err)
		return failResult(result, fmt.Errorf("reserve funds: %w", err))
	}

	var settle *SettleResult
	if err := workflow.ExecuteActivity(settleCtx, "Settle", input.TransactionID).Get(ctx, &settle); err != nil {
		logger.Error("settlement failed", "error", err)
		if relErr := workflow.ExecuteActivity(stepCtx, "ReleaseReservation", input.TransactionID).Get(ctx, nil); relErr != nil {
			logger.Error("reservation release failed, funds need manual reconciliation",
				"transaction_id", input.TransactionID,
				"error", relErr,
			)
		}
		markFailed(stepCtx, input.TransactionID, err)
		return failResult(result, fmt.Errorf("settle: %w", err))
	}

	completeInput := CompleteInput{
		TransactionID: input.TransactionID,
		TxHash:        settle.TxHash,
		Confirmations: settle.Confirmations,
	}
	if err := workflow.ExecuteActivity(stepCtx, "Complete", completeInput).Get(ctx, nil); err != nil {
		logger.Error("completion failed", "error", err)
		markFailed(stepCtx, input.TransactionID, err)
		return failResult(result, fmt.Errorf("complete: %w", err))
	}

	logger.Info("transaction processed", "transaction_id", input.TransactionID, "tx_hash", settle.TxHash)
	result.Status = "completed"
	result.TxHash = settle.TxHash
	return result, nil
}

// markFailed records the terminal failure best-effort; the workflow error is
// what the caller observes either way.
func markFailed(ctx workflow.Context, transactionID string, cause error) {
	input := FailInput{TransactionID: transactionID, Reason: cause.Error()}
	if err := workflow.ExecuteActivity(ctx, "MarkFailed", input).Get(ctx, nil); err != nil {
		workflow.GetLogger(ctx).Error("could not mark transaction failed",
			"transaction_id", transactionID,
			"error", err,
		)
	}
}

func failResult(result *ProcessTransactionResult, err error) (*ProcessTransactionResult, error) {
	msg := err.Error()
	result.Status = "failed"
	result.Error = &msg
	return result, err
}
