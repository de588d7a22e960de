package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	"github.com/jinzhu/copier"

	"github.com/truledgr/ledger-auth/pkg/errors"
	"github.com/truledgr/ledger-auth/pkg/identity"
	"github.com/truledgr/ledger-auth/pkg/impersonate"
)

// Handler handles HTTP requests for impersonation sessions
type Handler struct {
	service *impersonate.Service
}

// NewHandler creates a new impersonation handler
func NewHandler(service *impersonate.Service) *Handler {
	return &Handler{
		service: service,
	}
}

// RegisterRoutes registers the impersonation routes. Mount under
// identity.Middleware; admin checks run in the service so the caller
// gets the precise failure code rather than a generic 403.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/", h.Start)
	r.Post("/end", h.End)
	r.Get("/", h.List)
}

// StartRequest is the start impersonation request body
type StartRequest struct {
	TargetUserID string `json:"target_user_id"`
	Reason       string `json:"reason"`
}

// StartResponse carries the impersonation token pair plus the
// identifiers auditors need to correlate the grant
type StartResponse struct {
	AccessToken            string `json:"access_token"`
	RefreshToken           string `json:"refresh_token"`
	TokenType              string `json:"token_type"`
	ExpiresIn              int64  `json:"expires_in"`
	TargetUserID           string `json:"target_user_id"`
	AdminUserID            string `json:"admin_user_id"`
	ImpersonationSessionID string `json:"impersonation_session_id"`
}

// EndRequest is the end impersonation request body
type EndRequest struct {
	ImpersonationSessionID string `json:"impersonation_session_id"`
}

// SessionResponse is one impersonation session in a list response
type SessionResponse struct {
	ID             string     `json:"id"`
	AdminUserID    string     `json:"admin_user_id"`
	AdminUsername  string     `json:"admin_username"`
	TargetUserID   string     `json:"target_user_id"`
	TargetUsername string     `json:"target_username"`
	Reason         string     `json:"reason"`
	CreatedAt      time.Time  `json:"created_at"`
	ExpiresAt      time.Time  `json:"expires_at"`
	EndedAt        *time.Time `json:"ended_at"`
	Status         string     `json:"status"`
}

// Start handles POST / - begin impersonating another user
func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	caller := identity.FromContext(r.Context())
	if caller == nil {
		respondError(w, r, errors.Unauthorized("missing bearer token"))
		return
	}

	var req StartRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		respondError(w, r, errors.New(errors.ErrCodeInvalidInput, "unable to parse request body"))
		return
	}

	targetUserID, err := uuid.Parse(req.TargetUserID)
	if err != nil {
		respondError(w, r, errors.New(errors.ErrCodeInvalidInput, "invalid target user id"))
		return
	}

	result, err := h.service.Start(r.Context(), caller.User, targetUserID, req.Reason)
	if err != nil {
		respondError(w, r, err)
		return
	}

	render.JSON(w, r, StartResponse{
		AccessToken:            result.AccessToken,
		RefreshToken:           result.RefreshToken,
		TokenType:              "bearer",
		ExpiresIn:              int64(h.service.AccessTokenExpiry().Seconds()),
		TargetUserID:           result.Target.ID.String(),
		AdminUserID:            caller.User.ID.String(),
		ImpersonationSessionID: result.Session.ID.String(),
	})
}

// End handles POST /end - terminate an impersonation session early
func (h *Handler) End(w http.ResponseWriter, r *http.Request) {
	caller := identity.FromContext(r.Context())
	if caller == nil {
		respondError(w, r, errors.Unauthorized("missing bearer token"))
		return
	}

	var req EndRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		respondError(w, r, errors.New(errors.ErrCodeInvalidInput, "unable to parse request body"))
		return
	}

	sessionID, err := uuid.Parse(req.ImpersonationSessionID)
	if err != nil {
		respondError(w, r, errors.New(errors.ErrCodeInvalidInput, "invalid impersonation session id"))
		return
	}

	if _, err := h.service.End(r.Context(), caller.User, sessionID); err != nil {
		respondError(w, r, err)
		return
	}

	render.JSON(w, r, map[string]string{
		"message": "Impersonation session ended successfully",
	})
}

// List handles GET / - list the sessions the calling admin initiated
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	caller := identity.FromContext(r.Context())
	if caller == nil {
		respondError(w, r, errors.Unauthorized("missing bearer token"))
		return
	}

	details, err := h.service.ListForAdmin(r.Context(), caller.User)
	if err != nil {
		slog.Error("Failed to list impersonation sessions", "admin_user_id", caller.User.ID, "err", err)
		respondError(w, r, err)
		return
	}

	responses := make([]SessionResponse, len(details))
	for i, detail := range details {
		item := SessionResponse{}
		copier.Copy(&item, detail.ImpersonationSession)
		item.ID = detail.ID.String()
		item.AdminUserID = detail.AdminUserID.String()
		item.AdminUsername = detail.AdminUsername
		item.TargetUserID = detail.TargetUserID.String()
		item.TargetUsername = detail.TargetUsername
		item.CreatedAt = detail.IssuedAt
		item.Status = string(detail.Status)
		responses[i] = item
	}

	render.JSON(w, r, responses)
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
