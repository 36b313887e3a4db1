package domain

import (
	"errors"
	"strings"
	"time"
)

// ErrBillerNotFound indicates that the biller is not found.
var ErrBillerNotFound = errors.New("biller not found")

// Biller is a payee saved by a user for bill payments.
//
// AccountNumber is kept masked, only the last four characters survive.
type Biller struct {
	ID            int64     `json:"id"`
	Owner         string    `json:"owner"`
	Name          string    `json:"biller_name"`
	AccountNumber string    `json:"account_number"`
	CreatedAt     time.Time `json:"created_at"`
}

// CreateBillerParams is the input data to save a biller.
type CreateBillerParams struct {
	Owner         string
	Name          string
	AccountNumber string
}

// MaskAccountNumber hides everything but the last four characters of number.
func MaskAccountNumber(number string) string {
	number = strings.TrimSpace(number)
	if len(number) <= 4 {
		return "****" + number
	}

	return "****" + number[len(number)-4:]
}
