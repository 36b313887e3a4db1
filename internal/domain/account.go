// Package domain provides defenitions of all entities.
package domain

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrAccountNotFound indicates that the account is not found.
	ErrAccountNotFound = errors.New("account not found")
	// ErrCurrencyAlreadyExists indicates that the account with the given currency already exists.
	ErrCurrencyAlreadyExists = errors.New("account currency already exists")
	// ErrOwnerNotFound indicates that the owner for the account is not found.
	ErrOwnerNotFound = errors.New("owner not found")
	// ErrVersionConflict indicates that the account changed since it was read.
	ErrVersionConflict = errors.New("account version conflict")
)

// Account holds user balance data for specific currency.
//
// Version starts at 1 and grows by one with every committed balance change.
type Account struct {
	ID         int64           `json:"id"`
	Owner      string          `json:"owner"`
	Balance    decimal.Decimal `json:"balance"`
	Currency   string          `json:"currency"`
	Version    int64           `json:"version"`
	ExternalID string          `json:"external_id,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// CreateAccountParams is the input data to open an account.
type CreateAccountParams struct {
	Owner      string
	Balance    decimal.Decimal
	Currency   string
	ExternalID string
}
