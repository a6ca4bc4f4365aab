// Package settlement defines the external settlement contract invoked while
// processing a transaction, with a Solana executor for on-chain settlement
// and a scriptable mock for tests and development.
package settlement

import (
	"context"
	"sync"

	"github.com/diboas/ledger/service/domain"
)

// Result is the outcome of a successful settlement call.
type Result struct {
	TxHash        string
	Confirmations int
}

// Executor performs the external settlement for a transaction. The caller
// bounds the call with a context deadline; Execute must respect cancellation.
type Executor interface {
	Execute(ctx context.Context, txn *domain.Transaction) (*Result, error)
}

// MockExecutor is a scriptable in-memory Executor.
type MockExecutor struct {
	mu       sync.Mutex
	executed []string // transaction IDs, in order
	err      error
	hash     string
	delay    func(ctx context.Context) error // optional hook, e.g. to simulate latency
}

// NewMockExecutor creates a mock that settles every transaction successfully.
func NewMockExecutor() *MockExecutor {
	return &MockExecutor{hash: "0xmock"}
}

// SetError makes subsequent Execute calls fail with err (nil to clear).
func (m *MockExecutor) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// SetHash sets the hash returned on success.
func (m *MockExecutor) SetHash(hash string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hash = hash
}

// SetDelay installs a hook run before each settlement, e.g. a sleep that
// respects ctx to exercise timeouts.
func (m *MockExecutor) SetDelay(delay func(ctx context.Context) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = delay
}

// Executed returns the IDs of transactions settled so far.
func (m *MockExecutor) Executed() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.executed))
	copy(out, m.executed)
	return out
}

// Execute settles the transaction per the script.
func (m *MockExecutor) Execute(ctx context.Context, txn *domain.Transaction) (*Result, error) {
	m.mu.Lock()
	delay := m.delay
	scriptedErr := m.err
	hash := m.hash
	m.mu.Unlock()

	if delay != nil {
		if err := delay(ctx); err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if scriptedErr != nil {
		return nil, scriptedErr
	}

	m.mu.Lock()
	m.executed = append(m.executed, txn.ID)
	m.mu.Unlock()
	return &Result{TxHash: hash, Confirmations: 1}, nil
}
