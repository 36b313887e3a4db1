// Package billerservice manages business logic layer of billers.
package billerservice

import (
	"context"
	"strings"

	"github.com/go-petr/mobile-bank/internal/domain"
)

// Repo provides data access layer interface needed by biller service layer.
//
//go:generate mockgen -source service.go -destination service_mock.go -package billerservice
type Repo interface {
	Create(ctx context.Context, arg domain.CreateBillerParams) (domain.Biller, error)
	Get(ctx context.Context, id int64) (domain.Biller, error)
	List(ctx context.Context, owner string) ([]domain.Biller, error)
}

// Service facilitates biller service layer logic.
type Service struct {
	repo Repo
}

// New returns biller service struct to manage biller bussines logic.
func New(br Repo) *Service {
	return &Service{repo: br}
}

// Create saves a biller for owner. Only the masked account number is stored.
func (s *Service) Create(ctx context.Context, owner, name, accountNumber string) (domain.Biller, error) {
	return s.repo.Create(ctx, domain.CreateBillerParams{
		Owner:         owner,
		Name:          strings.TrimSpace(name),
		AccountNumber: domain.MaskAccountNumber(accountNumber),
	})
}

// Get returns the biller with the given id if owner saved it.
func (s *Service) Get(ctx context.Context, owner string, id int64) (domain.Biller, error) {
	b, err := s.repo.Get(ctx, id)
	if err != nil {
		return domain.Biller{}, err
	}

	if b.Owner != owner {
		return domain.Biller{}, domain.ErrInvalidOwner
	}

	return b, nil
}

// List returns billers saved by owner.
func (s *Service) List(ctx context.Context, owner string) ([]domain.Biller, error) {
	return s.repo.List(ctx, owner)
}
