// Package accountrepo manages repository layer of accounts.
package accountrepo

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-petr/mobile-bank/internal/domain"
	"github.com/go-petr/mobile-bank/pkg/dbpkg"
	"github.com/lib/pq"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// RepoPGS facilitates account repository layer logic.
type RepoPGS struct {
	db dbpkg.SQLInterface
}

// NewRepoPGS returns account RepoPGS.
func NewRepoPGS(db dbpkg.SQLInterface) *RepoPGS {
	return &RepoPGS{
		db: db,
	}
}

const accountColumns = `id, owner, balance, currency, version, external_id, created_at`

func scanAccount(row interface{ Scan(...any) error }) (domain.Account, error) {
	var a domain.Account

	err := row.Scan(
		&a.ID,
		&a.Owner,
		&a.Balance,
		&a.Currency,
		&a.Version,
		&a.ExternalID,
		&a.CreatedAt,
	)

	return a, err
}

const createQuery = `
INSERT INTO 
    accounts (owner, balance, currency, external_id)
VALUES
    ($1, $2, $3, $4)
RETURNING ` + accountColumns

// Create creates the account and then returns it.
func (r *RepoPGS) Create(ctx context.Context, arg domain.CreateAccountParams) (domain.Account, error) {
	l := zerolog.Ctx(ctx)

	row := r.db.QueryRowContext(ctx, createQuery, arg.Owner, arg.Balance, arg.Currency, arg.ExternalID)

	a, err := scanAccount(row)
	if err != nil {
		l.Error().Err(err).Send()

		var pqErr *pq.Error
		if errors.As(err, &pqErr) {
			switch pqErr.Constraint {
			case "accounts_owner_fkey":
				return domain.Account{}, domain.ErrOwnerNotFound
			case "accounts_owner_currency_key":
				return domain.Account{}, domain.ErrCurrencyAlreadyExists
			case "accounts_balance_check":
				return domain.Account{}, domain.ErrInsufficientFunds
			}

			if pqErr.Code.Name() == "numeric_value_out_of_range" {
				return domain.Account{}, domain.ErrAmountTooLarge
			}
		}

		return domain.Account{}, domain.ErrUnavailable
	}

	return a, nil
}

const getQuery = `
SELECT ` + accountColumns + `
FROM accounts
WHERE id = $1
`

// Get returns the account with the given id.
func (r *RepoPGS) Get(ctx context.Context, id int64) (domain.Account, error) {
	l := zerolog.Ctx(ctx)

	a, err := scanAccount(r.db.QueryRowContext(ctx, getQuery, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Account{}, domain.ErrAccountNotFound
		}

		l.Error().Err(err).Send()

		return domain.Account{}, domain.ErrUnavailable
	}

	return a, nil
}

const getByOwnerQuery = `
SELECT ` + accountColumns + `
FROM accounts
WHERE owner = $1
ORDER BY id
LIMIT 1
`

// GetByOwner returns the oldest account of the owner.
func (r *RepoPGS) GetByOwner(ctx context.Context, owner string) (domain.Account, error) {
	l := zerolog.Ctx(ctx)

	a, err := scanAccount(r.db.QueryRowContext(ctx, getByOwnerQuery, owner))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Account{}, domain.ErrAccountNotFound
		}

		l.Error().Err(err).Send()

		return domain.Account{}, domain.ErrUnavailable
	}

	return a, nil
}

const compareAndUpdateQuery = `
UPDATE accounts
SET balance = $1, version = version + 1
WHERE id = $2 AND version = $3
RETURNING ` + accountColumns

// CompareAndUpdate sets the balance only if the stored version still equals expectedVersion.
func (r *RepoPGS) CompareAndUpdate(ctx context.Context, id, expectedVersion int64, newBalance decimal.Decimal) (domain.Account, error) {
	l := zerolog.Ctx(ctx)

	if newBalance.IsNegative() {
		return domain.Account{}, domain.ErrInsufficientFunds
	}

	if newBalance.GreaterThan(domain.MaxAmount) {
		return domain.Account{}, domain.ErrAmountTooLarge
	}

	a, err := scanAccount(r.db.QueryRowContext(ctx, compareAndUpdateQuery, newBalance, id, expectedVersion))
	if err == nil {
		return a, nil
	}

	if errors.Is(err, sql.ErrNoRows) {
		// Either the account is gone or somebody committed first.
		if _, err := r.Get(ctx, id); err != nil {
			return domain.Account{}, err
		}

		return domain.Account{}, domain.ErrVersionConflict
	}

	l.Error().Err(err).Send()

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		if pqErr.Constraint == "accounts_balance_check" {
			return domain.Account{}, domain.ErrInsufficientFunds
		}

		if pqErr.Code.Name() == "numeric_value_out_of_range" {
			return domain.Account{}, domain.ErrAmountTooLarge
		}
	}

	return domain.Account{}, domain.ErrUnavailable
}

const listQuery = `
SELECT ` + accountColumns + `
FROM accounts
WHERE owner = $1
ORDER BY id
LIMIT $2 OFFSET $3
`

// List returns the specified number of accounts for the given user.
func (r *RepoPGS) List(ctx context.Context, owner string, limit, offset int32) ([]domain.Account, error) {
	l := zerolog.Ctx(ctx)

	rows, err := r.db.QueryContext(ctx, listQuery, owner, limit, offset)
	if err != nil {
		l.Error().Err(err).Send()
		return nil, domain.ErrUnavailable
	}
	defer rows.Close()

	items := []domain.Account{}

	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			l.Error().Err(err).Send()
			return nil, domain.ErrUnavailable
		}

		items = append(items, a)
	}

	if err := rows.Err(); err != nil {
		l.Error().Err(err).Send()
		return nil, domain.ErrUnavailable
	}

	return items, nil
}
