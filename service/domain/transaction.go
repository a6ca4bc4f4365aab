package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionType identifies the kind of financial operation.
type TransactionType string

const (
	TypeAdd           TransactionType = "ADD"
	TypeSend          TransactionType = "SEND"
	TypeReceive       TransactionType = "RECEIVE"
	TypeWithdraw      TransactionType = "WITHDRAW"
	TypeBuy           TransactionType = "BUY"
	TypeSell          TransactionType = "SELL"
	TypeInvest        TransactionType = "INVEST"
	TypeTransfer      TransactionType = "TRANSFER"
	TypeStartStrategy TransactionType = "START_STRATEGY"
	TypeStopStrategy  TransactionType = "STOP_STRATEGY"
)

// Status is the lifecycle state of a transaction.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
	StatusCancelled  Status = "CANCELLED"
)

// Direction classifies how a transaction moves funds relative to the account.
type Direction string

const (
	DirectionIncoming Direction = "INCOMING"
	DirectionOutgoing Direction = "OUTGOING"
	DirectionInternal Direction = "INTERNAL"
)

// directions maps each transaction type to its direction. Direction is a pure
// function of the type and is never mutated directly.
var directions = map[TransactionType]Direction{
	TypeAdd:           DirectionIncoming,
	TypeReceive:       DirectionIncoming,
	TypeBuy:           DirectionIncoming,
	TypeSend:          DirectionOutgoing,
	TypeWithdraw:      DirectionOutgoing,
	TypeTransfer:      DirectionOutgoing,
	TypeSell:          DirectionOutgoing,
	TypeInvest:        DirectionInternal,
	TypeStartStrategy: DirectionInternal,
	TypeStopStrategy:  DirectionInternal,
}

// Direction returns the direction derived from the transaction type.
func (t TransactionType) Direction() Direction {
	return directions[t]
}

// Valid reports whether t is a known transaction type.
func (t TransactionType) Valid() bool {
	_, ok := directions[t]
	return ok
}

// ParseTransactionType normalizes a string into a TransactionType.
func ParseTransactionType(s string) (TransactionType, bool) {
	t := TransactionType(strings.ToUpper(strings.TrimSpace(s)))
	return t, t.Valid()
}

// Fees is the multi-component fee breakdown for a transaction. All fields are
// always present and zero-initialized, so a missing component and a zero
// component are the same thing.
type Fees struct {
	DiBoaS   decimal.Decimal `json:"diboas"`
	Network  decimal.Decimal `json:"network"`
	Provider decimal.Decimal `json:"provider"`
	DEX      decimal.Decimal `json:"dex"`
	DeFi     decimal.Decimal `json:"defi"`
	Total    decimal.Decimal `json:"total"`
}

// Sum returns the sum of all fee components, ignoring the stored Total.
func (f Fees) Sum() decimal.Decimal {
	return f.DiBoaS.Add(f.Network).Add(f.Provider).Add(f.DEX).Add(f.DeFi)
}

// Timeline records when each lifecycle milestone occurred. Each field is set
// at most once.
type Timeline struct {
	CreatedAt           time.Time  `json:"created_at"`
	ProcessingStartedAt *time.Time `json:"processing_started_at,omitempty"`
	CompletedAt         *time.Time `json:"completed_at,omitempty"`
	FailedAt            *time.Time `json:"failed_at,omitempty"`
	CancelledAt         *time.Time `json:"cancelled_at,omitempty"`
	ConfirmedAt         *time.Time `json:"confirmed_at,omitempty"`
}

// Metadata carries side-channel transaction data that does not participate in
// the state machine.
type Metadata struct {
	CancellationReason string `json:"cancellation_reason,omitempty"`
	TransactionHash    string `json:"transaction_hash,omitempty"`
	Confirmations      int    `json:"confirmations,omitempty"`
	Recipient          string `json:"recipient,omitempty"`
	StrategyID         string `json:"strategy_id,omitempty"`
}

// SettlementResult is the outcome of the external settlement call, recorded on
// the transaction when it completes.
type SettlementResult struct {
	Success       bool   `json:"success"`
	TxHash        string `json:"tx_hash,omitempty"`
	Confirmations int    `json:"confirmations,omitempty"`
}

// Transaction is a single financial operation moving through a bounded
// lifecycle: PENDING -> PROCESSING -> COMPLETED/FAILED, with CANCELLED
// reachable from any non-final state. Once final, no lifecycle method may
// mutate it.
type Transaction struct {
	ID            string          `json:"id"`
	AccountID     string          `json:"account_id"`
	Type          TransactionType `json:"type"`
	Status        Status          `json:"status"`
	Amount        decimal.Decimal `json:"amount"`
	Asset         string          `json:"asset"`
	Chain         string          `json:"chain"`
	PaymentMethod string          `json:"payment_method,omitempty"`
	Direction     Direction       `json:"direction"`
	Fees          Fees            `json:"fees"`
	Timeline      Timeline        `json:"timeline"`

	Result   *SettlementResult `json:"result,omitempty"`
	Error    string            `json:"error,omitempty"`
	Metadata Metadata          `json:"metadata"`
}

// NewTransactionParams are the caller-supplied fields for a new transaction.
type NewTransactionParams struct {
	Type             TransactionType
	Amount           decimal.Decimal
	Asset            string
	Chain            string
	DestinationChain string
	PaymentMethod    string
	Recipient        string
	StrategyID       string
}

// NewTransaction validates params and constructs a PENDING transaction with a
// generated ID and a derived direction.
func NewTransaction(accountID string, params NewTransactionParams) (*Transaction, error) {
	if accountID == "" {
		return nil, &ValidationError{Field: "account_id", Reason: "must not be empty"}
	}
	if !params.Type.Valid() {
		return nil, &ValidationError{Field: "type", Reason: "unknown transaction type"}
	}
	if params.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, &ValidationError{Field: "amount", Reason: "must be greater than zero"}
	}
	if params.Asset == "" {
		return nil, &ValidationError{Field: "asset", Reason: "must not be empty"}
	}

	return &Transaction{
		ID:            uuid.NewString(),
		AccountID:     accountID,
		Type:          params.Type,
		Status:        StatusPending,
		Amount:        params.Amount,
		Asset:         params.Asset,
		Chain:         params.Chain,
		PaymentMethod: params.PaymentMethod,
		Direction:     params.Type.Direction(),
		Timeline:      Timeline{CreatedAt: time.Now().UTC()},
		Metadata: Metadata{
			Recipient:  params.Recipient,
			StrategyID: params.StrategyID,
		},
	}, nil
}

// IsFinal reports whether the transaction has reached a terminal status.
func (t *Transaction) IsFinal() bool {
	switch t.Status {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// StartProcessing moves the transaction from PENDING to PROCESSING.
func (t *Transaction) StartProcessing() error {
	if t.Status != StatusPending {
		return &InvalidStateError{Op: "start processing", Status: t.Status}
	}
	now := time.Now().UTC()
	t.Status = StatusProcessing
	t.Timeline.ProcessingStartedAt = &now
	return nil
}

// Complete moves the transaction from PROCESSING to COMPLETED and records the
// settlement result.
func (t *Transaction) Complete(result *SettlementResult) error {
	if t.Status != StatusProcessing {
		return &InvalidStateError{Op: "complete", Status: t.Status}
	}
	now := time.Now().UTC()
	t.Status = StatusCompleted
	t.Result = result
	t.Timeline.CompletedAt = &now
	return nil
}

// Fail moves the transaction to FAILED with a human-readable error. Legal
// from PENDING or PROCESSING.
func (t *Transaction) Fail(cause error) error {
	if t.Status != StatusPending && t.Status != StatusProcessing {
		return &InvalidStateError{Op: "fail", Status: t.Status}
	}
	now := time.Now().UTC()
	t.Status = StatusFailed
	if cause != nil {
		t.Error = cause.Error()
	}
	t.Timeline.FailedAt = &now
	return nil
}

// Cancel moves any non-final transaction to CANCELLED and records the reason.
func (t *Transaction) Cancel(reason string) error {
	if t.IsFinal() {
		return &InvalidStateError{Op: "cancel", Status: t.Status}
	}
	now := time.Now().UTC()
	t.Status = StatusCancelled
	t.Metadata.CancellationReason = reason
	t.Timeline.CancelledAt = &now
	return nil
}

// AddConfirmation records blockchain confirmation metadata. It does not
// change status; ConfirmedAt is set on the first call only.
func (t *Transaction) AddConfirmation(hash string, count int) {
	t.Metadata.TransactionHash = hash
	t.Metadata.Confirmations = count
	if t.Timeline.ConfirmedAt == nil {
		now := time.Now().UTC()
		t.Timeline.ConfirmedAt = &now
	}
}

// UpdateFees replaces the fee breakdown, recomputing the total from the
// components. Called once by the transaction service before persistence.
func (t *Transaction) UpdateFees(fees Fees) {
	fees.Total = fees.Sum()
	t.Fees = fees
}

// NetAmount is what the account actually receives: for incoming transactions
// fees are withheld from the amount; otherwise the amount moves in full and
// fees are charged on top.
func (t *Transaction) NetAmount() decimal.Decimal {
	if t.Direction == DirectionIncoming {
		return t.Amount.Sub(t.Fees.Total)
	}
	return t.Amount
}

// TotalCost is what the operation costs the account: the amount alone for
// incoming transactions, amount plus fees otherwise.
func (t *Transaction) TotalCost() decimal.Decimal {
	if t.Direction == DirectionIncoming {
		return t.Amount
	}
	return t.Amount.Add(t.Fees.Total)
}

// Clone returns a deep copy of the transaction.
func (t *Transaction) Clone() *Transaction {
	cp := *t
	cp.Timeline = t.Timeline.clone()
	if t.Result != nil {
		r := *t.Result
		cp.Result = &r
	}
	return &cp
}

func (tl Timeline) clone() Timeline {
	cp := tl
	cp.ProcessingStartedAt = cloneTime(tl.ProcessingStartedAt)
	cp.CompletedAt = cloneTime(tl.CompletedAt)
	cp.FailedAt = cloneTime(tl.FailedAt)
	cp.CancelledAt = cloneTime(tl.CancelledAt)
	cp.ConfirmedAt = cloneTime(tl.ConfirmedAt)
	return cp
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	cp := *t
	return &cp
}
