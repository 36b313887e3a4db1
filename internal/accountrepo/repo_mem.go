package accountrepo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/go-petr/mobile-bank/internal/domain"
	"github.com/shopspring/decimal"
)

// RepoMem keeps accounts in process memory.
//
// The mutex is held for a single read or compare-and-set only.
type RepoMem struct {
	mu       sync.Mutex
	nextID   int64
	accounts map[int64]domain.Account
}

// NewRepoMem returns an empty RepoMem.
func NewRepoMem() *RepoMem {
	return &RepoMem{
		accounts: make(map[int64]domain.Account),
	}
}

// Create creates the account and then returns it.
func (r *RepoMem) Create(_ context.Context, arg domain.CreateAccountParams) (domain.Account, error) {
	if arg.Balance.IsNegative() {
		return domain.Account{}, domain.ErrInsufficientFunds
	}

	if arg.Balance.GreaterThan(domain.MaxAmount) {
		return domain.Account{}, domain.ErrAmountTooLarge
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, a := range r.accounts {
		if a.Owner == arg.Owner && a.Currency == arg.Currency {
			return domain.Account{}, domain.ErrCurrencyAlreadyExists
		}
	}

	r.nextID++

	a := domain.Account{
		ID:         r.nextID,
		Owner:      arg.Owner,
		Balance:    arg.Balance,
		Currency:   arg.Currency,
		Version:    1,
		ExternalID: arg.ExternalID,
		CreatedAt:  time.Now().UTC(),
	}
	r.accounts[a.ID] = a

	return a, nil
}

// Get returns the account with the given id.
func (r *RepoMem) Get(_ context.Context, id int64) (domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.accounts[id]
	if !ok {
		return domain.Account{}, domain.ErrAccountNotFound
	}

	return a, nil
}

// GetByOwner returns the oldest account of the owner.
func (r *RepoMem) GetByOwner(ctx context.Context, owner string) (domain.Account, error) {
	accounts, err := r.List(ctx, owner, 1, 0)
	if err != nil {
		return domain.Account{}, err
	}

	if len(accounts) == 0 {
		return domain.Account{}, domain.ErrAccountNotFound
	}

	return accounts[0], nil
}

// CompareAndUpdate sets the balance only if the stored version still equals expectedVersion.
func (r *RepoMem) CompareAndUpdate(_ context.Context, id, expectedVersion int64, newBalance decimal.Decimal) (domain.Account, error) {
	if newBalance.IsNegative() {
		return domain.Account{}, domain.ErrInsufficientFunds
	}

	if newBalance.GreaterThan(domain.MaxAmount) {
		return domain.Account{}, domain.ErrAmountTooLarge
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.accounts[id]
	if !ok {
		return domain.Account{}, domain.ErrAccountNotFound
	}

	if a.Version != expectedVersion {
		return domain.Account{}, domain.ErrVersionConflict
	}

	a.Balance = newBalance
	a.Version++
	r.accounts[id] = a

	return a, nil
}

// List returns the specified number of accounts for the given user.
func (r *RepoMem) List(_ context.Context, owner string, limit, offset int32) ([]domain.Account, error) {
	r.mu.Lock()

	items := []domain.Account{}

	for _, a := range r.accounts {
		if a.Owner == owner {
			items = append(items, a)
		}
	}

	r.mu.Unlock()

	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })

	if int(offset) >= len(items) {
		return []domain.Account{}, nil
	}

	items = items[offset:]
	if int(limit) < len(items) {
		items = items[:limit]
	}

	return items, nil
}
