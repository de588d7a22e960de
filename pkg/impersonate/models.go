package impersonate

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of an impersonation session
type Status string

const (
	StatusActive  Status = "active"
	StatusExpired Status = "expired"
	StatusRevoked Status = "revoked"
)

// DefaultDuration is the fixed time box on an impersonation session
const DefaultDuration = 2 * time.Hour

// ImpersonationSession is the audit record behind an admin acting as
// another user. It is a sibling of, not a subtype of, a regular session:
// the two kinds are kept as separate record types on purpose so audit
// fields and validation rules differ without a type discriminator.
//
// Stored status only ever moves active -> revoked; the active -> expired
// transition is observed lazily from ExpiresAt, never written back.
type ImpersonationSession struct {
	ID           uuid.UUID  `json:"id"`
	AdminUserID  uuid.UUID  `json:"admin_user_id"`
	TargetUserID uuid.UUID  `json:"target_user_id"`
	Reason       string     `json:"reason"`
	IssuedAt     time.Time  `json:"created_at"`
	ExpiresAt    time.Time  `json:"expires_at"`
	EndedAt      *time.Time `json:"ended_at,omitempty"`
	Status       Status     `json:"status"`
	CreatedAt    time.Time  `json:"-"`
	UpdatedAt    time.Time  `json:"-"`
}

// EffectiveStatus derives the observed status at the given time,
// presenting time-expired records as expired without a store write.
func (s *ImpersonationSession) EffectiveStatus(now time.Time) Status {
	if s.Status == StatusActive && !now.Before(s.ExpiresAt) {
		return StatusExpired
	}
	return s.Status
}

// Active reports whether the session is usable at the given time
func (s *ImpersonationSession) Active(now time.Time) bool {
	return s.EffectiveStatus(now) == StatusActive
}

// SessionDetail is an ImpersonationSession enriched with display names
// joined in at read time from the user store
type SessionDetail struct {
	ImpersonationSession
	AdminUsername  string `json:"admin_username"`
	TargetUsername string `json:"target_username"`
}
