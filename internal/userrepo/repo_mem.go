package userrepo

import (
	"context"
	"sync"
	"time"

	"github.com/go-petr/mobile-bank/internal/domain"
)

// RepoMem keeps users in process memory.
type RepoMem struct {
	mu    sync.RWMutex
	users map[string]domain.User
}

// NewRepoMem returns an empty RepoMem.
func NewRepoMem() *RepoMem {
	return &RepoMem{
		users: make(map[string]domain.User),
	}
}

// Create creates the user and then returns it.
func (r *RepoMem) Create(_ context.Context, arg domain.CreateUserParams) (domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[arg.Username]; ok {
		return domain.User{}, domain.ErrUsernameAlreadyExists
	}

	for _, u := range r.users {
		if u.Email == arg.Email {
			return domain.User{}, domain.ErrEmailALreadyExists
		}
	}

	now := time.Now().UTC()

	u := domain.User{
		Username:          arg.Username,
		HashedPassword:    arg.HashedPassword,
		FullName:          arg.FullName,
		Email:             arg.Email,
		PasswordChangedAt: now,
		CreatedAt:         now,
	}
	r.users[u.Username] = u

	return u, nil
}

// Get returns the user with the given username.
func (r *RepoMem) Get(_ context.Context, username string) (domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[username]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}

	return u, nil
}
