package impersonate

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/exp/slices"

	"github.com/truledgr/ledger-auth/pkg/errors"
)

// InMemoryImpersonationRepository implements Repository using in-memory storage
type InMemoryImpersonationRepository struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]ImpersonationSession
	byAdmin  map[uuid.UUID][]uuid.UUID // adminID -> []sessionID
}

// NewInMemoryImpersonationRepository creates a new in-memory impersonation repository
func NewInMemoryImpersonationRepository() *InMemoryImpersonationRepository {
	return &InMemoryImpersonationRepository{
		sessions: make(map[uuid.UUID]ImpersonationSession),
		byAdmin:  make(map[uuid.UUID][]uuid.UUID),
	}
}

// Create persists a new impersonation session record
func (r *InMemoryImpersonationRepository) Create(ctx context.Context, session ImpersonationSession) (ImpersonationSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	session.CreatedAt = now
	session.UpdatedAt = now

	r.sessions[session.ID] = session
	r.byAdmin[session.AdminUserID] = append(r.byAdmin[session.AdminUserID], session.ID)
	return session, nil
}

// GetByID retrieves an impersonation session by its id
func (r *InMemoryImpersonationRepository) GetByID(ctx context.Context, id uuid.UUID) (ImpersonationSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	session, ok := r.sessions[id]
	if !ok {
		return ImpersonationSession{}, errors.NotFound("impersonation session", id.String())
	}
	return session, nil
}

// FindByAdminID lists sessions initiated by an admin, newest first
func (r *InMemoryImpersonationRepository) FindByAdminID(ctx context.Context, adminID uuid.UUID) ([]ImpersonationSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.byAdmin[adminID]
	result := make([]ImpersonationSession, 0, len(ids))
	for _, id := range ids {
		if session, ok := r.sessions[id]; ok {
			result = append(result, session)
		}
	}

	slices.SortFunc(result, func(a, b ImpersonationSession) int {
		return b.IssuedAt.Compare(a.IssuedAt)
	})
	return result, nil
}

// Update applies an atomic read-modify-write to one record
func (r *InMemoryImpersonationRepository) Update(ctx context.Context, id uuid.UUID, mutate func(*ImpersonationSession) error) (ImpersonationSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[id]
	if !ok {
		return ImpersonationSession{}, errors.NotFound("impersonation session", id.String())
	}

	if err := mutate(&session); err != nil {
		return ImpersonationSession{}, err
	}

	session.UpdatedAt = time.Now().UTC()
	r.sessions[id] = session
	return session, nil
}
