// Package billerrepo manages repository layer of billers.
package billerrepo

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-petr/mobile-bank/internal/domain"
	"github.com/go-petr/mobile-bank/pkg/dbpkg"
	"github.com/lib/pq"
	"github.com/rs/zerolog"
)

// RepoPGS facilitates biller repository layer logic.
type RepoPGS struct {
	db dbpkg.SQLInterface
}

// NewRepoPGS returns biller RepoPGS.
func NewRepoPGS(db dbpkg.SQLInterface) *RepoPGS {
	return &RepoPGS{db: db}
}

const billerColumns = `id, owner, name, account_number, created_at`

func scanBiller(row interface{ Scan(...any) error }) (domain.Biller, error) {
	var b domain.Biller
	err := row.Scan(&b.ID, &b.Owner, &b.Name, &b.AccountNumber, &b.CreatedAt)

	return b, err
}

const createQuery = `
INSERT INTO
    billers (owner, name, account_number)
VALUES
    ($1, $2, $3)
RETURNING ` + billerColumns

// Create saves the biller and then returns it.
func (r *RepoPGS) Create(ctx context.Context, arg domain.CreateBillerParams) (domain.Biller, error) {
	l := zerolog.Ctx(ctx)

	b, err := scanBiller(r.db.QueryRowContext(ctx, createQuery, arg.Owner, arg.Name, arg.AccountNumber))
	if err != nil {
		l.Error().Err(err).Send()

		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Constraint == "billers_owner_fkey" {
			return domain.Biller{}, domain.ErrOwnerNotFound
		}

		return domain.Biller{}, domain.ErrUnavailable
	}

	return b, nil
}

const getQuery = `
SELECT ` + billerColumns + `
FROM billers
WHERE id = $1
`

// Get returns the biller with the given id.
func (r *RepoPGS) Get(ctx context.Context, id int64) (domain.Biller, error) {
	b, err := scanBiller(r.db.QueryRowContext(ctx, getQuery, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Biller{}, domain.ErrBillerNotFound
		}

		zerolog.Ctx(ctx).Error().Err(err).Send()

		return domain.Biller{}, domain.ErrUnavailable
	}

	return b, nil
}

const listQuery = `
SELECT ` + billerColumns + `
FROM billers
WHERE owner = $1
ORDER BY id
`

// List returns all billers saved by owner.
func (r *RepoPGS) List(ctx context.Context, owner string) ([]domain.Biller, error) {
	l := zerolog.Ctx(ctx)

	rows, err := r.db.QueryContext(ctx, listQuery, owner)
	if err != nil {
		l.Error().Err(err).Send()
		return nil, domain.ErrUnavailable
	}
	defer rows.Close()

	items := []domain.Biller{}

	for rows.Next() {
		b, err := scanBiller(rows)
		if err != nil {
			l.Error().Err(err).Send()
			return nil, domain.ErrUnavailable
		}

		items = append(items, b)
	}

	if err := rows.Err(); err != nil {
		l.Error().Err(err).Send()
		return nil, domain.ErrUnavailable
	}

	return items, nil
}
