package temporal

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.temporal.io/sdk/testsuite"
)

func newWorkflowTestEnv(t *testing.T) (*testsuite.TestWorkflowEnvironment, *Activities) {
	t.Helper()
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestWorkflowEnvironment()

	activities := &Activities{}
	env.RegisterActivity(activities.BeginProcessing)
	env.RegisterActivity(activities.ReserveFunds)
	env.RegisterActivity(activities.Settle)
	env.RegisterActivity(activities.ReleaseReservation)
	env.RegisterActivity(activities.Complete)
	env.RegisterActivity(activities.MarkFailed)

	return env, activities
}

func TestProcessTransactionWorkflow_Success(t *testing.T) {
	env, activities := newWorkflowTestEnv(t)

	env.OnActivity(activities.BeginProcessing, mock.Anything, "txn-1").Return(nil)
	env.OnActivity(activities.ReserveFunds, mock.Anything, "txn-1").Return(nil)
	env.OnActivity(activities.Settle, mock.Anything, "txn-1").
		Return(&SettleResult{TxHash: "0xabc", Confirmations: 1}, nil)
	env.OnActivity(activities.Complete, mock.Anything, CompleteInput{
		TransactionID: "txn-1",
		TxHash:        "0xabc",
		Confirmations: 1,
	}).Return(nil)

	env.ExecuteWorkflow(ProcessTransactionWorkflow, ProcessTransactionInput{TransactionID: "txn-1"})

	assert.NoError(t, env.GetWorkflowError())
	var result ProcessTransactionResult
	assert.NoError(t, env.GetWorkflowResult(&result))
	assert.Equal(t, "completed", result.Status)
	assert.Equal(t, "0xabc", result.TxHash)
	assert.Nil(t, result.Error)
	env.AssertNotCalled(t, "ReleaseReservation", mock.Anything, mock.Anything)
	env.AssertNotCalled(t, "MarkFailed", mock.Anything, mock.Anything)
}

func TestProcessTransactionWorkflow_ReservationFailure(t *testing.T) {
	env, activities := newWorkflowTestEnv(t)

	env.OnActivity(activities.BeginProcessing, mock.Anything, "txn-1").Return(nil)
	env.OnActivity(activities.ReserveFunds, mock.Anything, "txn-1").
		Return(errors.New("insufficient balance"))
	env.OnActivity(activities.MarkFailed, mock.Anything, mock.Anything).Return(nil)

	env.ExecuteWorkflow(ProcessTransactionWorkflow, ProcessTransactionInput{TransactionID: "txn-1"})

	assert.Error(t, env.GetWorkflowError())
	// Nothing was reserved, so nothing is released or settled.
	env.AssertNotCalled(t, "Settle", mock.Anything, mock.Anything)
	env.AssertNotCalled(t, "ReleaseReservation", mock.Anything, mock.Anything)
	env.AssertCalled(t, "MarkFailed", mock.Anything, mock.Anything)
}

func TestProcessTransactionWorkflow_SettlementFailureReleasesReservation(t *testing.T) {
	env, activities := newWorkflowTestEnv(t)

	env.OnActivity(activities.BeginProcessing, mock.Anything, "txn-1").Return(nil)
	env.OnActivity(activities.ReserveFunds, mock.Anything, "txn-1").Return(nil)
	env.OnActivity(activities.Settle, mock.Anything, "txn-1").
		Return(nil, errors.New("rpc unavailable"))
	env.OnActivity(activities.ReleaseReservation, mock.Anything, "txn-1").Return(nil)
	env.OnActivity(activities.MarkFailed, mock.Anything, mock.Anything).Return(nil)

	env.ExecuteWorkflow(ProcessTransactionWorkflow, ProcessTransactionInput{TransactionID: "txn-1"})

	assert.Error(t, env.GetWorkflowError())
	env.AssertCalled(t, "ReleaseReservation", mock.Anything, "txn-1")
	env.AssertCalled(t, "MarkFailed", mock.Anything, mock.Anything)
	env.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything)
}

func TestProcessTransactionWorkflow_SettlementRetries(t *testing.T) {
	env, activities := newWorkflowTestEnv(t)

	env.OnActivity(activities.BeginProcessing, mock.Anything, "txn-1").Return(nil)
	env.OnActivity(activities.ReserveFunds, mock.Anything, "txn-1").Return(nil)

	// Settlement fails twice then succeeds within its retry policy.
	callCount := 0
	env.OnActivity(activities.Settle, mock.Anything, "txn-1").Run(func(args mock.Arguments) {
		callCount++
		if callCount < 3 {
			panic("transient error") // Temporal retries on panics
		}
	}).Return(&SettleResult{TxHash: "0xretry", Confirmations: 1}, nil)
	env.OnActivity(activities.Complete, mock.Anything, mock.Anything).Return(nil)

	env.ExecuteWorkflow(ProcessTransactionWorkflow, ProcessTransactionInput{TransactionID: "txn-1"})

	assert.NoError(t, env.GetWorkflowError())
	assert.Equal(t, 3, callCount)

	var result ProcessTransactionResult
	assert.NoError(t, env.GetWorkflowResult(&result))
	assert.Equal(t, "completed", result.Status)
	assert.Equal(t, "0xretry", result.TxHash)
}

func TestProcessTransactionWorkflow_BeginProcessingRejected(t *testing.T) {
	env, activities := newWorkflowTestEnv(t)

	env.OnActivity(activities.BeginProcessing, mock.Anything, "txn-1").
		Return(errors.New("cannot start processing: transaction is COMPLETED"))

	env.ExecuteWorkflow(ProcessTransactionWorkflow, ProcessTransactionInput{TransactionID: "txn-1"})

	assert.Error(t, env.GetWorkflowError())
	// A transaction that never entered processing keeps its current state.
	env.AssertNotCalled(t, "ReserveFunds", mock.Anything, mock.Anything)
	env.AssertNotCalled(t, "MarkFailed", mock.Anything, mock.Anything)
}
