package impersonate

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/truledgr/ledger-auth/pkg/errors"
	"github.com/truledgr/ledger-auth/pkg/token"
	"github.com/truledgr/ledger-auth/pkg/user"
)

// Service manages impersonation sessions: an admin acting as another
// user inside a fixed time box, with every grant recorded for audit.
type Service struct {
	repo              Repository
	users             user.Repository
	codec             *token.Codec
	duration          time.Duration
	accessTokenExpiry time.Duration
	now               func() time.Time
}

// Option configures a Service
type Option func(*Service)

// WithDuration sets the fixed impersonation session lifetime
func WithDuration(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.duration = d
		}
	}
}

// WithAccessTokenExpiry sets the impersonation access token expiry
func WithAccessTokenExpiry(expiry time.Duration) Option {
	return func(s *Service) {
		if expiry > 0 {
			s.accessTokenExpiry = expiry
		}
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService creates a new impersonation service
func NewService(repo Repository, users user.Repository, codec *token.Codec, opts ...Option) *Service {
	service := &Service{
		repo:              repo,
		users:             users,
		codec:             codec,
		duration:          DefaultDuration,
		accessTokenExpiry: token.DefaultAccessTokenExpiry,
		now:               time.Now,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service
}

// Now returns the service's current UTC time
func (s *Service) Now() time.Time {
	return s.now().UTC()
}

// AccessTokenExpiry returns the lifetime of issued impersonation
// access tokens, capped at the session duration.
func (s *Service) AccessTokenExpiry() time.Duration {
	if s.accessTokenExpiry > s.duration {
		return s.duration
	}
	return s.accessTokenExpiry
}

// StartResult carries the issued impersonation tokens, the persisted
// record, and the resolved target user.
type StartResult struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
	Session          ImpersonationSession
	Target           user.User
}

// Start begins an impersonation session. Preconditions are checked in
// order and the first failure wins: the caller must be an admin, may
// not impersonate themselves, the target must exist and be active, and
// a non-empty reason is required.
//
// The issued tokens carry the target as subject and the admin in a
// separate claim, so downstream code acts as the target while audit
// trails keep the real operator.
func (s *Service) Start(ctx context.Context, admin user.User, targetUserID uuid.UUID, reason string) (*StartResult, error) {
	if !admin.Admin {
		return nil, errors.New(errors.ErrCodeAdminRequired, "admin privileges required to impersonate")
	}
	if admin.ID == targetUserID {
		return nil, errors.New(errors.ErrCodeSelfImpersonation, "cannot impersonate yourself")
	}

	// An unknown target reports the same kind as an inactive one so
	// callers handle both uniformly.
	target, err := s.users.GetByID(ctx, targetUserID)
	if err != nil {
		if errors.IsCode(err, errors.ErrCodeNotFound) {
			return nil, errors.New(errors.ErrCodeTargetUserInactive, "target user is inactive")
		}
		return nil, err
	}
	if !target.Active {
		return nil, errors.New(errors.ErrCodeTargetUserInactive, "target user is inactive")
	}

	if strings.TrimSpace(reason) == "" {
		return nil, errors.New(errors.ErrCodeReasonRequired, "a reason is required to impersonate")
	}

	sessionID := uuid.New()
	now := s.now().UTC()

	created, err := s.repo.Create(ctx, ImpersonationSession{
		ID:           sessionID,
		AdminUserID:  admin.ID,
		TargetUserID: target.ID,
		Reason:       reason,
		IssuedAt:     now,
		ExpiresAt:    now.Add(s.duration),
		Status:       StatusActive,
	})
	if err != nil {
		slog.Error("Failed to create impersonation session record", "admin_user_id", admin.ID, "target_user_id", target.ID, "err", err)
		return nil, err
	}

	accessToken, accessClaims, err := s.codec.GenerateToken(target.ID.String(), token.KindImpersonation, sessionID, admin.ID.String(), s.AccessTokenExpiry())
	if err != nil {
		return nil, err
	}

	// The refresh credential dies with the session: refreshing past the
	// two hour window would quietly extend the time box.
	refreshToken, refreshClaims, err := s.codec.GenerateToken(target.ID.String(), token.KindImpersonation, sessionID, admin.ID.String(), s.duration)
	if err != nil {
		return nil, err
	}

	slog.Info("Impersonation started",
		"session_id", created.ID,
		"admin_user_id", admin.ID,
		"target_user_id", target.ID,
		"expires_at", created.ExpiresAt)

	return &StartResult{
		AccessToken:      accessToken,
		AccessExpiresAt:  accessClaims.ExpiresAt.Time,
		RefreshToken:     refreshToken,
		RefreshExpiresAt: refreshClaims.ExpiresAt.Time,
		Session:          created,
		Target:           target,
	}, nil
}

// End terminates an impersonation session before its natural expiry.
// Only the admin who started the session may end it. Ending a session
// that already expired or was already ended succeeds without changing
// the recorded ended_at; under concurrent end calls exactly one caller
// writes it.
func (s *Service) End(ctx context.Context, admin user.User, sessionID uuid.UUID) (ImpersonationSession, error) {
	ended, err := s.repo.Update(ctx, sessionID, func(session *ImpersonationSession) error {
		if session.AdminUserID != admin.ID {
			return errors.New(errors.ErrCodeNotAuthorized, "impersonation session belongs to another admin")
		}
		if session.EffectiveStatus(s.now().UTC()) != StatusActive {
			return nil
		}
		endedAt := s.now().UTC()
		session.Status = StatusRevoked
		session.EndedAt = &endedAt
		return nil
	})
	if err != nil {
		return ImpersonationSession{}, err
	}

	slog.Info("Impersonation ended", "session_id", sessionID, "admin_user_id", admin.ID)
	return ended, nil
}

// GetSession retrieves an impersonation session by id
func (s *Service) GetSession(ctx context.Context, id uuid.UUID) (ImpersonationSession, error) {
	return s.repo.GetByID(ctx, id)
}

// ListForAdmin returns the sessions an admin has initiated, newest
// first, with display names joined in and time-expired records
// presented as expired without a store write.
func (s *Service) ListForAdmin(ctx context.Context, admin user.User) ([]SessionDetail, error) {
	if !admin.Admin {
		return nil, errors.New(errors.ErrCodeAdminRequired, "admin privileges required to list impersonations")
	}

	sessions, err := s.repo.FindByAdminID(ctx, admin.ID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	usernames := map[uuid.UUID]string{admin.ID: admin.Username}

	details := make([]SessionDetail, len(sessions))
	for i, session := range sessions {
		session.Status = session.EffectiveStatus(now)

		targetName, ok := usernames[session.TargetUserID]
		if !ok {
			target, err := s.users.GetByID(ctx, session.TargetUserID)
			if err == nil {
				targetName = target.Username
			}
			usernames[session.TargetUserID] = targetName
		}

		details[i] = SessionDetail{
			ImpersonationSession: session,
			AdminUsername:        admin.Username,
			TargetUsername:       targetName,
		}
	}
	return details, nil
}
