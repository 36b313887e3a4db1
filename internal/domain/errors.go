package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRequest is the parent of every error caused by a malformed ledger request.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrSelfTransfer indicates that source and destination accounts are the same.
	ErrSelfTransfer = fmt.Errorf("%w: cannot transfer to the same account", ErrInvalidRequest)
	// ErrInvalidAmount indicates zero, negative or malformed amount.
	ErrInvalidAmount = fmt.Errorf("%w: amount must be positive", ErrInvalidRequest)
	// ErrAmountScale indicates an amount with more decimal places than balances keep.
	ErrAmountScale = fmt.Errorf("%w: amount must have at most %d decimal places", ErrInvalidRequest, MaxAmountScale)
	// ErrAmountTooLarge indicates an amount or a resulting balance above MaxAmount.
	ErrAmountTooLarge = fmt.Errorf("%w: amount exceeds %s", ErrInvalidRequest, MaxAmount)
	// ErrAccountNotLinked indicates that the account has no core banking counterpart.
	ErrAccountNotLinked = fmt.Errorf("%w: account is not linked to core banking", ErrInvalidRequest)
	// ErrCurrencyMismatch indicates that transfer accounts have different currencies.
	ErrCurrencyMismatch = fmt.Errorf("%w: accounts currency mismatch", ErrInvalidRequest)
	// ErrMissingIdempotencyKey indicates that the request carries no idempotency key.
	ErrMissingIdempotencyKey = fmt.Errorf("%w: idempotency key is required", ErrInvalidRequest)
	// ErrIdempotencyKeyTooLong indicates that the idempotency key exceeds MaxIdempotencyKeyLen.
	ErrIdempotencyKeyTooLong = fmt.Errorf("%w: idempotency key is too long", ErrInvalidRequest)
	// ErrIdempotencyKeyReused indicates that the key was already used with a different payload.
	ErrIdempotencyKeyReused = fmt.Errorf("%w: idempotency key reused with different payload", ErrInvalidRequest)

	// ErrInsufficientFunds indicates that the source balance is lower than the amount.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrInvalidOwner indicates that the user is unauthorized to move money from the account.
	ErrInvalidOwner = errors.New("unauthorized owner")
	// ErrConflict indicates that the operation kept losing races and gave up; retry with the same key.
	ErrConflict = errors.New("conflict, retry with the same idempotency key")
	// ErrMirrorDisabled indicates that no core banking system is configured.
	ErrMirrorDisabled = errors.New("core banking is not configured")
	// ErrUnavailable indicates that a store or an external system could not be reached.
	ErrUnavailable = errors.New("service unavailable")
)
