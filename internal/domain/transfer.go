package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	// ErrTransferNotFound indicates that no record exists for the lookup.
	ErrTransferNotFound = errors.New("transfer not found")
	// ErrDuplicateKey indicates that a record with the same idempotency key is already appended.
	ErrDuplicateKey = errors.New("duplicate idempotency key")
)

// MaxIdempotencyKeyLen is the longest accepted idempotency key.
const MaxIdempotencyKeyLen = 128

// MaxAmountScale is the number of decimal places kept for amounts and balances.
const MaxAmountScale = 4

// MaxAmount is the largest amount or balance a NUMERIC(19,4) column holds.
var MaxAmount = decimal.New(1, 15).Sub(decimal.New(1, -MaxAmountScale))

// ValidateAmount checks that amount is positive and fits the stored precision.
func ValidateAmount(amount decimal.Decimal) error {
	switch {
	case !amount.IsPositive():
		return ErrInvalidAmount
	case !amount.Equal(amount.Truncate(MaxAmountScale)):
		return ErrAmountScale
	case amount.GreaterThan(MaxAmount):
		return ErrAmountTooLarge
	}

	return nil
}

// Kind is the type of the balance movement stored in the log.
type Kind string

// Record kinds.
const (
	KindTransfer   Kind = "transfer"
	KindDeposit    Kind = "deposit"
	KindWithdrawal Kind = "withdrawal"
	// KindAdjustment aligns a local balance with its core banking counterpart.
	KindAdjustment Kind = "adjustment"
)

// Status of a record.
type Status string

// Record statuses.
const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// TransferRequest is the input of a transfer between two ledger accounts.
type TransferRequest struct {
	FromAccountID  int64
	ToAccountID    int64
	Amount         decimal.Decimal
	Description    string
	IdempotencyKey string
	Owner          string
}

// DepositRequest is the input of a deposit from outside the ledger.
type DepositRequest struct {
	AccountID      int64
	Owner          string
	Amount         decimal.Decimal
	Description    string
	IdempotencyKey string
}

// WithdrawalRequest is the input of a withdrawal to outside the ledger.
// Bill payments are withdrawals naming the biller in Description.
type WithdrawalRequest struct {
	AccountID      int64
	Owner          string
	Amount         decimal.Decimal
	Description    string
	IdempotencyKey string
}

// TransferRecord is an immutable entry of the transaction log.
//
// Zero FromAccountID or ToAccountID means the money came from or went outside the ledger.
type TransferRecord struct {
	ID             uuid.UUID       `json:"id"`
	Kind           Kind            `json:"kind"`
	FromAccountID  int64           `json:"from_account_id,omitempty"`
	ToAccountID    int64           `json:"to_account_id,omitempty"`
	Amount         decimal.Decimal `json:"amount"`
	Currency       string          `json:"currency"`
	Description    string          `json:"description,omitempty"`
	Status         Status          `json:"status"`
	IdempotencyKey string          `json:"idempotency_key"`
	CreatedAt      time.Time       `json:"created_at"`
}

// SamePayload reports whether the record was produced by an equivalent request.
func (r TransferRecord) SamePayload(kind Kind, from, to int64, amount decimal.Decimal) bool {
	return r.Kind == kind && r.FromAccountID == from && r.ToAccountID == to && r.Amount.Equal(amount)
}

// TransferResult is the outcome of a committed or replayed ledger operation.
type TransferResult struct {
	Record      TransferRecord
	FromBalance decimal.Decimal
	ToBalance   decimal.Decimal
	Replayed    bool
}

// ReconcileResult is the outcome of aligning an account with core banking.
//
// Adjustment is the signed change applied locally; zero means the balances already agreed.
type ReconcileResult struct {
	Account    Account
	Remote     decimal.Decimal
	Adjustment decimal.Decimal
	Record     *TransferRecord
}

// MirrorBalances are the balances reported by the core banking system after a mirrored transfer.
type MirrorBalances struct {
	From decimal.Decimal
	To   decimal.Decimal
}
