package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ValidationError indicates malformed input to a create/mutate operation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// InsufficientBalanceError indicates a debit or sufficiency check failed.
// The balance it was raised against is left unchanged.
type InsufficientBalanceError struct {
	Asset     string
	Requested decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient %s balance: requested %s, available %s",
		e.Asset, e.Requested.String(), e.Available.String())
}

// NotFoundError indicates an unknown transaction, balance or account ID.
type NotFoundError struct {
	Kind string // "transaction", "balance", "account"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

// InvalidStateError indicates an illegal lifecycle transition, e.g. completing
// a transaction that never started processing, or cancelling a final one.
type InvalidStateError struct {
	Op     string
	Status Status
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s transaction in status %s", e.Op, e.Status)
}

// ExternalServiceError wraps a failure from a collaborator (fee calculator,
// price service, account service, settlement).
type ExternalServiceError struct {
	Service string
	Err     error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Service, e.Err)
}

func (e *ExternalServiceError) Unwrap() error {
	return e.Err
}
