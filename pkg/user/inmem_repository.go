package user

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/truledgr/ledger-auth/pkg/errors"
)

// InMemoryUserRepository implements Repository using in-memory storage
type InMemoryUserRepository struct {
	mu         sync.RWMutex
	users      map[uuid.UUID]User
	byUsername map[string]uuid.UUID
}

// NewInMemoryUserRepository creates a new in-memory user repository
func NewInMemoryUserRepository() *InMemoryUserRepository {
	return &InMemoryUserRepository{
		users:      make(map[uuid.UUID]User),
		byUsername: make(map[string]uuid.UUID),
	}
}

// Put stores or replaces a user. Used for seeding demo data and tests.
func (r *InMemoryUserRepository) Put(u User) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.users[u.ID] = u
	r.byUsername[u.Username] = u.ID
}

// GetByID retrieves a user by id
func (r *InMemoryUserRepository) GetByID(ctx context.Context, id uuid.UUID) (User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[id]
	if !ok {
		return User{}, errors.NotFound("user", id.String())
	}
	return u, nil
}

// GetByUsername retrieves a user by username
func (r *InMemoryUserRepository) GetByUsername(ctx context.Context, username string) (User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byUsername[username]
	if !ok {
		return User{}, errors.NotFound("user", username)
	}
	return r.users[id], nil
}
