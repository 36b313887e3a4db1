// Package transferrepo manages repository layer of transfers.
package transferrepo

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-petr/mobile-bank/internal/domain"
	"github.com/go-petr/mobile-bank/pkg/dbpkg"
	"github.com/lib/pq"
	"github.com/rs/zerolog"
)

// RepoPGS facilitates transfer repository layer logic.
type RepoPGS struct {
	db dbpkg.SQLInterface
}

// NewRepoPGS returns transfer RepoPGS.
func NewRepoPGS(db dbpkg.SQLInterface) *RepoPGS {
	return &RepoPGS{
		db: db,
	}
}

const transferColumns = `id, kind, from_account_id, to_account_id, amount, currency, description, status, idempotency_key, created_at`

func scanTransfer(row interface{ Scan(...any) error }) (domain.TransferRecord, error) {
	var (
		t        domain.TransferRecord
		from, to sql.NullInt64
	)

	err := row.Scan(
		&t.ID,
		&t.Kind,
		&from,
		&to,
		&t.Amount,
		&t.Currency,
		&t.Description,
		&t.Status,
		&t.IdempotencyKey,
		&t.CreatedAt,
	)

	t.FromAccountID = from.Int64
	t.ToAccountID = to.Int64

	return t, err
}

func nullID(id int64) sql.NullInt64 {
	return sql.NullInt64{Int64: id, Valid: id != 0}
}

const appendQuery = `
INSERT INTO
    transfers (id, kind, from_account_id, to_account_id, amount, currency, description, status, idempotency_key, created_at)
VALUES
    ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
RETURNING ` + transferColumns

// Append stores the record. The idempotency key must be unique across the log.
func (r *RepoPGS) Append(ctx context.Context, rec domain.TransferRecord) (domain.TransferRecord, error) {
	l := zerolog.Ctx(ctx)

	row := r.db.QueryRowContext(ctx, appendQuery,
		rec.ID,
		rec.Kind,
		nullID(rec.FromAccountID),
		nullID(rec.ToAccountID),
		rec.Amount,
		rec.Currency,
		rec.Description,
		rec.Status,
		rec.IdempotencyKey,
		rec.CreatedAt,
	)

	t, err := scanTransfer(row)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) {
			switch pqErr.Constraint {
			case "transfers_idempotency_key_key":
				l.Info().Str("idempotency_key", rec.IdempotencyKey).Msg("duplicate idempotency key")
				return domain.TransferRecord{}, domain.ErrDuplicateKey
			case "transfers_from_account_id_fkey", "transfers_to_account_id_fkey":
				return domain.TransferRecord{}, domain.ErrAccountNotFound
			case "transfers_amount_check":
				return domain.TransferRecord{}, domain.ErrInvalidAmount
			}

			if pqErr.Code.Name() == "numeric_value_out_of_range" {
				return domain.TransferRecord{}, domain.ErrAmountTooLarge
			}
		}

		l.Error().Err(err).Msgf("Append(ctx, %+v)", rec)

		return domain.TransferRecord{}, domain.ErrUnavailable
	}

	return t, nil
}

const getByKeyQuery = `
SELECT ` + transferColumns + `
FROM transfers
WHERE idempotency_key = $1
`

// GetByIdempotencyKey returns the record appended with the key.
func (r *RepoPGS) GetByIdempotencyKey(ctx context.Context, key string) (domain.TransferRecord, error) {
	l := zerolog.Ctx(ctx)

	t, err := scanTransfer(r.db.QueryRowContext(ctx, getByKeyQuery, key))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.TransferRecord{}, domain.ErrTransferNotFound
		}

		l.Error().Err(err).Send()

		return domain.TransferRecord{}, domain.ErrUnavailable
	}

	return t, nil
}

const listForAccountQuery = `
SELECT ` + transferColumns + `
FROM transfers
WHERE from_account_id = $1 OR to_account_id = $1
ORDER BY created_at DESC, id DESC
LIMIT $2 OFFSET $3
`

// ListForAccount returns records touching the account, newest first.
func (r *RepoPGS) ListForAccount(ctx context.Context, accountID int64, limit, offset int32) ([]domain.TransferRecord, error) {
	l := zerolog.Ctx(ctx)

	rows, err := r.db.QueryContext(ctx, listForAccountQuery, accountID, limit, offset)
	if err != nil {
		l.Error().Err(err).Send()
		return nil, domain.ErrUnavailable
	}
	defer rows.Close()

	items := []domain.TransferRecord{}

	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			l.Error().Err(err).Send()
			return nil, domain.ErrUnavailable
		}

		items = append(items, t)
	}

	if err := rows.Err(); err != nil {
		l.Error().Err(err).Send()
		return nil, domain.ErrUnavailable
	}

	return items, nil
}
