package ledger

import "context"

// User is the platform user owning an account.
type User struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name,omitempty"`
}

// Account is the financial account transactions and balances attach to.
type Account struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`
	Status string `json:"status"`
}

// UserAccount pairs a user with their account.
type UserAccount struct {
	User    User    `json:"user"`
	Account Account `json:"account"`
}

// AccountService resolves users and accounts. Implementations live outside
// the core; the services only depend on this contract.
type AccountService interface {
	GetUserWithAccount(ctx context.Context, userID string) (*UserAccount, error)
}
