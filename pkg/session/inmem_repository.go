package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/exp/slices"

	"github.com/truledgr/ledger-auth/pkg/errors"
)

// InMemorySessionRepository implements Repository using in-memory storage
type InMemorySessionRepository struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]Session
	byUser   map[uuid.UUID][]uuid.UUID // userID -> []sessionID
}

// NewInMemorySessionRepository creates a new in-memory session repository
func NewInMemorySessionRepository() *InMemorySessionRepository {
	return &InMemorySessionRepository{
		sessions: make(map[uuid.UUID]Session),
		byUser:   make(map[uuid.UUID][]uuid.UUID),
	}
}

// Create persists a new session record
func (r *InMemorySessionRepository) Create(ctx context.Context, session Session) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	session.CreatedAt = now
	session.UpdatedAt = now

	r.sessions[session.ID] = session
	r.byUser[session.UserID] = append(r.byUser[session.UserID], session.ID)
	return session, nil
}

// GetByID retrieves a session by its id
func (r *InMemorySessionRepository) GetByID(ctx context.Context, id uuid.UUID) (Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	session, ok := r.sessions[id]
	if !ok {
		return Session{}, errors.NotFound("session", id.String())
	}
	return session, nil
}

// FindByUserID lists sessions owned by a user, newest first
func (r *InMemorySessionRepository) FindByUserID(ctx context.Context, userID uuid.UUID) ([]Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.byUser[userID]
	result := make([]Session, 0, len(ids))
	for _, id := range ids {
		if session, ok := r.sessions[id]; ok {
			result = append(result, session)
		}
	}

	slices.SortFunc(result, func(a, b Session) int {
		return b.IssuedAt.Compare(a.IssuedAt)
	})
	return result, nil
}

// Update applies an atomic read-modify-write to one record
func (r *InMemorySessionRepository) Update(ctx context.Context, id uuid.UUID, mutate func(*Session) error) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[id]
	if !ok {
		return Session{}, errors.NotFound("session", id.String())
	}

	if err := mutate(&session); err != nil {
		return Session{}, err
	}

	session.UpdatedAt = time.Now().UTC()
	r.sessions[id] = session
	return session, nil
}
