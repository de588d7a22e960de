package session

import (
	"time"

	"github.com/google/uuid"
)

// Status is the observed state of a session at a point in time
type Status string

const (
	StatusActive  Status = "active"
	StatusExpired Status = "expired"
	StatusRevoked Status = "revoked"
)

// Session is the server-side record backing a regular login session.
// Records are never deleted; revocation marks them terminal so the
// audit trail survives token expiry.
type Session struct {
	ID         uuid.UUID  `json:"id"`
	UserID     uuid.UUID  `json:"user_id"`
	RefreshJTI string     `json:"-"` // token id of the one valid refresh credential
	IssuedAt   time.Time  `json:"issued_at"`
	ExpiresAt  time.Time  `json:"expires_at"`
	RevokedAt  *time.Time `json:"revoked_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Revoked reports whether the session has been explicitly revoked
func (s *Session) Revoked() bool {
	return s.RevokedAt != nil
}

// Expired reports whether the session is past its expiry at the given time
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Status derives the observed status without rewriting the record;
// expiry is evaluated lazily at read time.
func (s *Session) Status(now time.Time) Status {
	if s.Revoked() {
		return StatusRevoked
	}
	if s.Expired(now) {
		return StatusExpired
	}
	return StatusActive
}

// SessionSummary is a simplified session view for listing
type SessionSummary struct {
	ID        uuid.UUID  `json:"id"`
	UserID    uuid.UUID  `json:"user_id"`
	Status    Status     `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt time.Time  `json:"expires_at"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
}
