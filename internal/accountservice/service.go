// Package accountservice manages business logic layer of accounts.
package accountservice

import (
	"context"

	"github.com/go-petr/mobile-bank/internal/domain"
	"github.com/shopspring/decimal"
)

// Repo provides data access layer interface needed by account service layer.
//
//go:generate mockgen -source service.go -destination service_mock.go -package accountservice
type Repo interface {
	Create(ctx context.Context, arg domain.CreateAccountParams) (domain.Account, error)
	Get(ctx context.Context, id int64) (domain.Account, error)
	GetByOwner(ctx context.Context, owner string) (domain.Account, error)
	List(ctx context.Context, owner string, limit, offset int32) ([]domain.Account, error)
}

// Service facilitates account service layer logic.
type Service struct {
	repo Repo
}

// New returns account service struct to manage account bussines logic.
func New(ar Repo) *Service {
	return &Service{repo: ar}
}

// Create opens an empty account for the given owner and currency. A non-empty
// externalID links it to the savings account mirrored in core banking.
func (s *Service) Create(ctx context.Context, owner, currency, externalID string) (domain.Account, error) {
	return s.repo.Create(ctx, domain.CreateAccountParams{
		Owner:      owner,
		Balance:    decimal.Zero,
		Currency:   currency,
		ExternalID: externalID,
	})
}

// Get returns the account with the given id if owner holds it.
func (s *Service) Get(ctx context.Context, owner string, id int64) (domain.Account, error) {
	account, err := s.repo.Get(ctx, id)
	if err != nil {
		return domain.Account{}, err
	}

	if account.Owner != owner {
		return domain.Account{}, domain.ErrInvalidOwner
	}

	return account, nil
}

// GetByOwner returns the primary account of owner.
func (s *Service) GetByOwner(ctx context.Context, owner string) (domain.Account, error) {
	return s.repo.GetByOwner(ctx, owner)
}

// List returns accounts that are owned by the given user.
func (s *Service) List(ctx context.Context, owner string, pageSize, pageID int32) ([]domain.Account, error) {
	if pageSize < 1 || pageID < 1 {
		return nil, domain.ErrInvalidRequest
	}

	return s.repo.List(ctx, owner, pageSize, (pageID-1)*pageSize)
}
