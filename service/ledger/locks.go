package ledger

import "sync"

// accountLocks serializes balance mutations per account. Two concurrent
// debits for the same account must never both pass a stale sufficiency
// check, and initializeBalance must be an atomic check-or-create.
type accountLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newAccountLocks() *accountLocks {
	return &accountLocks{locks: make(map[string]*sync.Mutex)}
}

// Lock acquires the mutex for accountID, creating it on first use, and
// returns the unlock function.
func (a *accountLocks) Lock(accountID string) func() {
	a.mu.Lock()
	lock, ok := a.locks[accountID]
	if !ok {
		lock = &sync.Mutex{}
		a.locks[accountID] = lock
	}
	a.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}
