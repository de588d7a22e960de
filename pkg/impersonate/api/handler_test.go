package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/truledgr/ledger-auth/pkg/identity"
	"github.com/truledgr/ledger-auth/pkg/impersonate"
	"github.com/truledgr/ledger-auth/pkg/session"
	"github.com/truledgr/ledger-auth/pkg/token"
	"github.com/truledgr/ledger-auth/pkg/user"
)

type fixture struct {
	router   chi.Router
	sessions *session.Service
	admin    user.User
	alice    user.User
}

func setup(t *testing.T) *fixture {
	t.Helper()

	users := user.NewInMemoryUserRepository()
	admin := user.User{
		ID:       uuid.New(),
		Username: "admin",
		Email:    "admin@example.com",
		Active:   true,
		Admin:    true,
	}
	alice := user.User{
		ID:       uuid.New(),
		Username: "alice",
		Email:    "alice@example.com",
		Active:   true,
	}
	users.Put(admin)
	users.Put(alice)

	codec := token.NewCodec("test-secret", "test-issuer", "test-audience")
	sessions := session.NewService(session.NewInMemorySessionRepository(), codec)
	imps := impersonate.NewService(impersonate.NewInMemoryImpersonationRepository(), users, codec)
	resolver := identity.NewResolver(codec, sessions, imps, users)

	handler := NewHandler(imps)
	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(identity.Middleware(resolver))
		r.Route("/auth/impersonations", handler.RegisterRoutes)
	})

	return &fixture{
		router:   r,
		sessions: sessions,
		admin:    admin,
		alice:    alice,
	}
}

func (f *fixture) bearerFor(t *testing.T, u user.User) string {
	t.Helper()
	result, err := f.sessions.CreateSession(context.Background(), u)
	require.NoError(t, err)
	return result.AccessToken
}

func (f *fixture) do(t *testing.T, method, path string, body interface{}, bearer string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+bearer)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestStartImpersonation(t *testing.T) {
	f := setup(t)
	bearer := f.bearerFor(t, f.admin)

	w := f.do(t, http.MethodPost, "/auth/impersonations",
		StartRequest{TargetUserID: f.alice.ID.String(), Reason: "support"}, bearer)
	require.Equal(t, http.StatusOK, w.Code)

	var resp StartResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEmpty(t, resp.RefreshToken)
	assert.Equal(t, "bearer", resp.TokenType)
	assert.Equal(t, int64(900), resp.ExpiresIn)
	assert.Equal(t, f.alice.ID.String(), resp.TargetUserID)
	assert.Equal(t, f.admin.ID.String(), resp.AdminUserID)
	assert.NotEmpty(t, resp.ImpersonationSessionID)
}

func TestStartImpersonationNonAdmin(t *testing.T) {
	f := setup(t)
	bearer := f.bearerFor(t, f.alice)

	w := f.do(t, http.MethodPost, "/auth/impersonations",
		StartRequest{TargetUserID: f.admin.ID.String(), Reason: "support"}, bearer)
	assert.Equal(t, http.StatusForbidden, w.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ADMIN_REQUIRED", body["code"])
}

func TestStartImpersonationSelf(t *testing.T) {
	f := setup(t)
	bearer := f.bearerFor(t, f.admin)

	w := f.do(t, http.MethodPost, "/auth/impersonations",
		StartRequest{TargetUserID: f.admin.ID.String(), Reason: "support"}, bearer)
	assert.Equal(t, http.StatusForbidden, w.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "SELF_IMPERSONATION_FORBIDDEN", body["code"])
}

func TestStartImpersonationMissingReason(t *testing.T) {
	f := setup(t)
	bearer := f.bearerFor(t, f.admin)

	w := f.do(t, http.MethodPost, "/auth/impersonations",
		StartRequest{TargetUserID: f.alice.ID.String()}, bearer)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "REASON_REQUIRED", body["code"])
}

func TestStartImpersonationUnknownTarget(t *testing.T) {
	f := setup(t)
	bearer := f.bearerFor(t, f.admin)

	w := f.do(t, http.MethodPost, "/auth/impersonations",
		StartRequest{TargetUserID: uuid.New().String(), Reason: "support"}, bearer)
	assert.Equal(t, http.StatusNotFound, w.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "TARGET_USER_INACTIVE", body["code"])
}

func TestEndImpersonation(t *testing.T) {
	f := setup(t)
	bearer := f.bearerFor(t, f.admin)

	start := f.do(t, http.MethodPost, "/auth/impersonations",
		StartRequest{TargetUserID: f.alice.ID.String(), Reason: "support"}, bearer)
	require.Equal(t, http.StatusOK, start.Code)

	var started StartResponse
	require.NoError(t, json.Unmarshal(start.Body.Bytes(), &started))

	end := f.do(t, http.MethodPost, "/auth/impersonations/end",
		EndRequest{ImpersonationSessionID: started.ImpersonationSessionID}, bearer)
	require.Equal(t, http.StatusOK, end.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(end.Body.Bytes(), &body))
	assert.Equal(t, "Impersonation session ended successfully", body["message"])

	// Ending again still succeeds.
	again := f.do(t, http.MethodPost, "/auth/impersonations/end",
		EndRequest{ImpersonationSessionID: started.ImpersonationSessionID}, bearer)
	assert.Equal(t, http.StatusOK, again.Code)
}

func TestEndImpersonationUnknownSession(t *testing.T) {
	f := setup(t)
	bearer := f.bearerFor(t, f.admin)

	w := f.do(t, http.MethodPost, "/auth/impersonations/end",
		EndRequest{ImpersonationSessionID: uuid.New().String()}, bearer)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListImpersonations(t *testing.T) {
	f := setup(t)
	bearer := f.bearerFor(t, f.admin)

	start := f.do(t, http.MethodPost, "/auth/impersonations",
		StartRequest{TargetUserID: f.alice.ID.String(), Reason: "billing dispute"}, bearer)
	require.Equal(t, http.StatusOK, start.Code)

	w := f.do(t, http.MethodGet, "/auth/impersonations", nil, bearer)
	require.Equal(t, http.StatusOK, w.Code)

	var items []SessionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &items))
	require.Len(t, items, 1)
	assert.Equal(t, f.admin.ID.String(), items[0].AdminUserID)
	assert.Equal(t, "admin", items[0].AdminUsername)
	assert.Equal(t, f.alice.ID.String(), items[0].TargetUserID)
	assert.Equal(t, "alice", items[0].TargetUsername)
	assert.Equal(t, "billing dispute", items[0].Reason)
	assert.Equal(t, "active", items[0].Status)
	assert.Nil(t, items[0].EndedAt)
}
