package transferrepo

import (
	"bytes"
	"context"
	"sort"
	"sync"

	"github.com/go-petr/mobile-bank/internal/domain"
)

// RepoMem keeps the transaction log in process memory.
type RepoMem struct {
	mu      sync.RWMutex
	records []domain.TransferRecord
	byKey   map[string]int
}

// NewRepoMem returns an empty RepoMem.
func NewRepoMem() *RepoMem {
	return &RepoMem{
		byKey: make(map[string]int),
	}
}

// Append stores the record. The idempotency key must be unique across the log.
func (r *RepoMem) Append(_ context.Context, rec domain.TransferRecord) (domain.TransferRecord, error) {
	if err := domain.ValidateAmount(rec.Amount); err != nil {
		return domain.TransferRecord{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byKey[rec.IdempotencyKey]; ok {
		return domain.TransferRecord{}, domain.ErrDuplicateKey
	}

	r.byKey[rec.IdempotencyKey] = len(r.records)
	r.records = append(r.records, rec)

	return rec, nil
}

// GetByIdempotencyKey returns the record appended with the key.
func (r *RepoMem) GetByIdempotencyKey(_ context.Context, key string) (domain.TransferRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	i, ok := r.byKey[key]
	if !ok {
		return domain.TransferRecord{}, domain.ErrTransferNotFound
	}

	return r.records[i], nil
}

// ListForAccount returns records touching the account, newest first.
func (r *RepoMem) ListForAccount(_ context.Context, accountID int64, limit, offset int32) ([]domain.TransferRecord, error) {
	r.mu.RLock()

	items := []domain.TransferRecord{}

	for _, rec := range r.records {
		if rec.FromAccountID == accountID || rec.ToAccountID == accountID {
			items = append(items, rec)
		}
	}

	r.mu.RUnlock()

	sort.SliceStable(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.After(items[j].CreatedAt)
		}

		return bytes.Compare(items[i].ID[:], items[j].ID[:]) > 0
	})

	if int(offset) >= len(items) {
		return []domain.TransferRecord{}, nil
	}

	items = items[offset:]
	if int(limit) < len(items) {
		items = items[:limit]
	}

	return items, nil
}
