package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	"github.com/jinzhu/copier"

	"github.com/truledgr/ledger-auth/pkg/errors"
	"github.com/truledgr/ledger-auth/pkg/identity"
	"github.com/truledgr/ledger-auth/pkg/session"
	"github.com/truledgr/ledger-auth/pkg/token"
	"github.com/truledgr/ledger-auth/pkg/user"
)

// CredentialVerifier authenticates primary credentials. Password
// storage and verification live outside this service; deployments plug
// in their own check and get back the authenticated user.
type CredentialVerifier interface {
	Verify(ctx context.Context, username, password string) (user.User, error)
}

// Handler handles HTTP requests for login and session management
type Handler struct {
	sessions *session.Service
	verifier CredentialVerifier

	cookieHttpOnly bool
	cookieSecure   bool
}

// HandlerOption configures a Handler
type HandlerOption func(*Handler)

// WithCookieSecure controls the Secure flag on issued token cookies
func WithCookieSecure(secure bool) HandlerOption {
	return func(h *Handler) {
		h.cookieSecure = secure
	}
}

// NewHandler creates a new session handler
func NewHandler(sessions *session.Service, verifier CredentialVerifier, opts ...HandlerOption) *Handler {
	handler := &Handler{
		sessions:       sessions,
		verifier:       verifier,
		cookieHttpOnly: true,
		cookieSecure:   true,
	}
	for _, opt := range opts {
		opt(handler)
	}
	return handler
}

// RegisterPublicRoutes registers the routes that do not require a
// resolved identity
func (h *Handler) RegisterPublicRoutes(r chi.Router) {
	r.Post("/login", h.Login)
	r.Post("/refresh", h.Refresh)
}

// RegisterProtectedRoutes registers the routes that require a resolved
// identity. Mount under identity.Middleware.
func (h *Handler) RegisterProtectedRoutes(r chi.Router) {
	r.Post("/logout", h.Logout)
	r.Get("/whoami", h.Whoami)
	r.Get("/sessions", h.ListSessions)
	r.Delete("/sessions/{sessionID}", h.RevokeSession)
}

// LoginRequest is the login request body
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// RefreshRequest is the refresh request body; the token may also come
// from the refresh token cookie.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// TokenResponse is the issued token pair
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	UserID       string `json:"user_id"`
}

// WhoamiResponse describes the acting identity behind the request
type WhoamiResponse struct {
	UserID          string                         `json:"user_id"`
	Username        string                         `json:"username"`
	Email           string                         `json:"email"`
	IsAdmin         bool                           `json:"is_admin"`
	IsImpersonating bool                           `json:"is_impersonating"`
	Impersonation   *identity.ImpersonationContext `json:"impersonation,omitempty"`
}

func (h *Handler) setTokenCookie(w http.ResponseWriter, tokenName, tokenValue string, expire time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     tokenName,
		Path:     "/",
		Value:    tokenValue,
		Expires:  expire,
		HttpOnly: h.cookieHttpOnly,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) clearTokenCookie(w http.ResponseWriter, tokenName string) {
	http.SetCookie(w, &http.Cookie{
		Name:     tokenName,
		Path:     "/",
		Value:    "",
		MaxAge:   -1,
		HttpOnly: h.cookieHttpOnly,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Login handles POST /login - verify credentials and open a session
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		respondError(w, r, errors.New(errors.ErrCodeInvalidInput, "unable to parse request body"))
		return
	}

	u, err := h.verifier.Verify(r.Context(), req.Username, req.Password)
	if err != nil {
		slog.Info("Login failed", "username", req.Username)
		respondError(w, r, errors.Unauthorized("invalid username or password"))
		return
	}

	result, err := h.sessions.CreateSession(r.Context(), u)
	if err != nil {
		slog.Error("Failed to create session", "user_id", u.ID, "err", err)
		respondError(w, r, err)
		return
	}

	h.setTokenCookie(w, token.ACCESS_TOKEN_NAME, result.AccessToken, result.AccessExpiresAt)
	h.setTokenCookie(w, token.REFRESH_TOKEN_NAME, result.RefreshToken, result.RefreshExpiresAt)

	render.JSON(w, r, TokenResponse{
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
		TokenType:    "bearer",
		ExpiresIn:    int64(h.sessions.AccessTokenExpiry().Seconds()),
		UserID:       u.ID.String(),
	})
}

// Refresh handles POST /refresh - exchange a refresh token for a new
// access token. The refresh token is not rotated; the response echoes
// the credential that was presented.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	render.DecodeJSON(r.Body, &req)
	if req.RefreshToken == "" {
		req.RefreshToken = refreshTokenFromCookie(r)
	}
	if req.RefreshToken == "" {
		respondError(w, r, errors.TokenInvalid("missing refresh token"))
		return
	}

	result, err := h.sessions.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		respondError(w, r, err)
		return
	}

	h.setTokenCookie(w, token.ACCESS_TOKEN_NAME, result.AccessToken, result.AccessExpiresAt)

	render.JSON(w, r, TokenResponse{
		AccessToken:  result.AccessToken,
		RefreshToken: req.RefreshToken,
		TokenType:    "bearer",
		ExpiresIn:    int64(h.sessions.AccessTokenExpiry().Seconds()),
		UserID:       result.UserID.String(),
	})
}

// Logout handles POST /logout - revoke the session behind the request
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	caller := identity.FromContext(r.Context())
	if caller == nil {
		respondError(w, r, errors.Unauthorized("missing bearer token"))
		return
	}

	if err := h.sessions.Revoke(r.Context(), caller.SessionID); err != nil {
		slog.Error("Failed to revoke session", "session_id", caller.SessionID, "err", err)
		respondError(w, r, err)
		return
	}

	h.clearTokenCookie(w, token.ACCESS_TOKEN_NAME)
	h.clearTokenCookie(w, token.REFRESH_TOKEN_NAME)

	render.JSON(w, r, map[string]string{
		"message": "Logged out successfully",
	})
}

// Whoami handles GET /whoami - describe the acting identity
func (h *Handler) Whoami(w http.ResponseWriter, r *http.Request) {
	caller := identity.FromContext(r.Context())
	if caller == nil {
		respondError(w, r, errors.Unauthorized("missing bearer token"))
		return
	}

	resp := WhoamiResponse{}
	copier.Copy(&resp, caller.User)
	resp.UserID = caller.User.ID.String()
	resp.IsAdmin = caller.User.Admin
	resp.IsImpersonating = caller.Impersonating
	resp.Impersonation = caller.Impersonation

	render.JSON(w, r, resp)
}

// ListSessions handles GET /sessions - list the caller's sessions,
// newest first
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	caller := identity.FromContext(r.Context())
	if caller == nil {
		respondError(w, r, errors.Unauthorized("missing bearer token"))
		return
	}

	summaries, err := h.sessions.ListSessions(r.Context(), caller.User.ID)
	if err != nil {
		slog.Error("Failed to list sessions", "user_id", caller.User.ID, "err", err)
		respondError(w, r, err)
		return
	}

	render.JSON(w, r, summaries)
}

// RevokeSession handles DELETE /sessions/{sessionID} - revoke one of
// the caller's own sessions
func (h *Handler) RevokeSession(w http.ResponseWriter, r *http.Request) {
	caller := identity.FromContext(r.Context())
	if caller == nil {
		respondError(w, r, errors.Unauthorized("missing bearer token"))
		return
	}

	sessionID, err := uuid.Parse(chi.URLParam(r, "sessionID"))
	if err != nil {
		respondError(w, r, errors.New(errors.ErrCodeInvalidInput, "invalid session id"))
		return
	}

	record, err := h.sessions.GetSession(r.Context(), sessionID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	// A foreign session looks like an unknown one so the response does
	// not confirm the id exists.
	if record.UserID != caller.User.ID {
		slog.Warn("Attempted to revoke session owned by another user",
			"requester_user_id", caller.User.ID,
			"session_user_id", record.UserID)
		respondError(w, r, errors.NotFound("session", sessionID.String()))
		return
	}

	if err := h.sessions.Revoke(r.Context(), sessionID); err != nil {
		respondError(w, r, err)
		return
	}

	render.JSON(w, r, map[string]string{
		"message": "Session revoked successfully",
	})
}

func refreshTokenFromCookie(r *http.Request) string {
	cookie, err := r.Cookie(token.REFRESH_TOKEN_NAME)
	if err != nil {
		return ""
	}
	return cookie.Value
}

func respondError(w http.ResponseWriter, r *http.Request, err error) {
	code := errors.GetCode(err)
	status := errors.MapErrorCodeToHTTPStatus(code)

	message := "internal server error"
	if status < http.StatusInternalServerError {
		message = errors.GetMessage(err)
	}

	render.Status(r, status)
	render.JSON(w, r, map[string]string{
		"code":    string(code),
		"message": message,
	})
}
