// Package identity turns bearer tokens back into acting users. It is
// the read side of the session packages: every protected handler asks
// it "who is calling" and gets either a resolved identity or a uniform
// unauthorized failure.
package identity

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/truledgr/ledger-auth/pkg/errors"
	"github.com/truledgr/ledger-auth/pkg/impersonate"
	"github.com/truledgr/ledger-auth/pkg/session"
	"github.com/truledgr/ledger-auth/pkg/token"
	"github.com/truledgr/ledger-auth/pkg/user"
)

// ImpersonationContext carries the administrator side of an
// impersonated identity for audit display.
type ImpersonationContext struct {
	SessionID     uuid.UUID `json:"session_id"`
	AdminUserID   uuid.UUID `json:"admin_user_id"`
	AdminUsername string    `json:"admin_username"`
	Reason        string    `json:"reason"`
}

// Identity is the effective acting user behind a request. When
// Impersonating is true the User is the target and Impersonation holds
// the administrator context; permissions always come from User, never
// from the administrator.
type Identity struct {
	User          user.User
	SessionID     uuid.UUID
	Impersonating bool
	Impersonation *ImpersonationContext
}

// Resolver cross-checks bearer tokens against the session stores. A
// token is a capability; the store is the revocation list. Both must
// agree before a request is considered authenticated.
type Resolver struct {
	codec    *token.Codec
	sessions *session.Service
	imps     *impersonate.Service
	users    user.Repository
}

// NewResolver creates a new identity resolver
func NewResolver(codec *token.Codec, sessions *session.Service, imps *impersonate.Service, users user.Repository) *Resolver {
	return &Resolver{
		codec:    codec,
		sessions: sessions,
		imps:     imps,
		users:    users,
	}
}

// Resolve determines the acting identity behind a bearer token. Every
// failure collapses to UNAUTHORIZED so an unauthenticated caller cannot
// distinguish a malformed token from a revoked or expired session.
func (r *Resolver) Resolve(ctx context.Context, bearerToken string) (*Identity, error) {
	claims, err := r.codec.ParseToken(bearerToken)
	if err != nil {
		return nil, errors.Unauthorized("invalid or expired token")
	}

	sessionID, err := claims.SessionUUID()
	if err != nil {
		return nil, errors.Unauthorized("invalid or expired token")
	}

	switch claims.Kind {
	case token.KindRegular:
		return r.resolveRegular(ctx, claims, sessionID)
	case token.KindImpersonation:
		return r.resolveImpersonation(ctx, claims, sessionID)
	default:
		return nil, errors.Unauthorized("invalid or expired token")
	}
}

func (r *Resolver) resolveRegular(ctx context.Context, claims *token.Claims, sessionID uuid.UUID) (*Identity, error) {
	record, err := r.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return nil, errors.Unauthorized("invalid or expired token")
	}
	if record.Revoked() || record.Expired(r.sessions.Now()) {
		return nil, errors.Unauthorized("invalid or expired token")
	}

	u, err := r.lookupUser(ctx, claims.Subject)
	if err != nil {
		return nil, err
	}

	return &Identity{
		User:      u,
		SessionID: sessionID,
	}, nil
}

func (r *Resolver) resolveImpersonation(ctx context.Context, claims *token.Claims, sessionID uuid.UUID) (*Identity, error) {
	record, err := r.imps.GetSession(ctx, sessionID)
	if err != nil {
		return nil, errors.Unauthorized("invalid or expired token")
	}
	if !record.Active(r.imps.Now()) {
		return nil, errors.Unauthorized("invalid or expired token")
	}

	target, err := r.lookupUser(ctx, claims.Subject)
	if err != nil {
		return nil, err
	}

	impCtx := &ImpersonationContext{
		SessionID:   sessionID,
		AdminUserID: record.AdminUserID,
		Reason:      record.Reason,
	}
	if admin, err := r.users.GetByID(ctx, record.AdminUserID); err == nil {
		impCtx.AdminUsername = admin.Username
	}

	return &Identity{
		User:          target,
		SessionID:     sessionID,
		Impersonating: true,
		Impersonation: impCtx,
	}, nil
}

func (r *Resolver) lookupUser(ctx context.Context, subject string) (user.User, error) {
	userID, err := uuid.Parse(subject)
	if err != nil {
		return user.User{}, errors.Unauthorized("invalid or expired token")
	}

	u, err := r.users.GetByID(ctx, userID)
	if err != nil {
		slog.Debug("Token subject not found in user store", "user_id", userID)
		return user.User{}, errors.Unauthorized("invalid or expired token")
	}
	if !u.Active {
		return user.User{}, errors.Unauthorized("invalid or expired token")
	}
	return u, nil
}
