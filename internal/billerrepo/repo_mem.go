package billerrepo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/go-petr/mobile-bank/internal/domain"
)

// RepoMem keeps billers in process memory.
type RepoMem struct {
	mu      sync.Mutex
	nextID  int64
	billers map[int64]domain.Biller
}

// NewRepoMem returns an empty RepoMem.
func NewRepoMem() *RepoMem {
	return &RepoMem{billers: make(map[int64]domain.Biller)}
}

// Create saves the biller and then returns it.
func (r *RepoMem) Create(_ context.Context, arg domain.CreateBillerParams) (domain.Biller, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++

	b := domain.Biller{
		ID:            r.nextID,
		Owner:         arg.Owner,
		Name:          arg.Name,
		AccountNumber: arg.AccountNumber,
		CreatedAt:     time.Now().UTC(),
	}
	r.billers[b.ID] = b

	return b, nil
}

// Get returns the biller with the given id.
func (r *RepoMem) Get(_ context.Context, id int64) (domain.Biller, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.billers[id]
	if !ok {
		return domain.Biller{}, domain.ErrBillerNotFound
	}

	return b, nil
}

// List returns all billers saved by owner.
func (r *RepoMem) List(_ context.Context, owner string) ([]domain.Biller, error) {
	r.mu.Lock()

	items := []domain.Biller{}

	for _, b := range r.billers {
		if b.Owner == owner {
			items = append(items, b)
		}
	}

	r.mu.Unlock()

	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })

	return items, nil
}
