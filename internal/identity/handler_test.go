package identity

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bissquit/incident-impact/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(service *Service) http.Handler {
	h := NewHandler(service)
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	r.Group(func(r chi.Router) {
		r.Use(httputil.AuthMiddleware(service))
		h.RegisterProtectedRoutes(r)
	})
	return r
}

func postJSON(t *testing.T, h http.Handler, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(body))
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandler_SignUpAndSignIn(t *testing.T) {
	service, _, _ := newTestService()
	router := newTestRouter(service)

	rec := postJSON(t, router, "/auth/signup", SignUpRequest{Email: "new@example.com", Password: "password123"}, "")
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.NotContains(t, rec.Body.String(), "password")

	rec = postJSON(t, router, "/auth/signup", SignUpRequest{Email: "new@example.com", Password: "password123"}, "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = postJSON(t, router, "/auth/signin", SignInRequest{Email: "new@example.com", Password: "password123"}, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data SignInResponse `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.NotNil(t, resp.Data.Tokens)
	assert.NotEmpty(t, resp.Data.Tokens.AccessToken)
	assert.Equal(t, "new@example.com", resp.Data.User.Email)

	rec = postJSON(t, router, "/auth/signin", SignInRequest{Email: "new@example.com", Password: "wrong"}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandler_SignUpValidation(t *testing.T) {
	service, _, _ := newTestService()
	router := newTestRouter(service)

	tests := []struct {
		name string
		body SignUpRequest
	}{
		{name: "bad email", body: SignUpRequest{Email: "not-an-email", Password: "password123"}},
		{name: "short password", body: SignUpRequest{Email: "a@example.com", Password: "short"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postJSON(t, router, "/auth/signup", tt.body, "")
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), "validation error")
		})
	}
}

func TestHandler_Refresh(t *testing.T) {
	service, _, auth := newTestService()
	router := newTestRouter(service)

	rec := postJSON(t, router, "/auth/refresh", RefreshRequest{}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postJSON(t, router, "/auth/refresh", RefreshRequest{RefreshToken: "refresh"}, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	auth.refreshErr = ErrInvalidToken
	rec = postJSON(t, router, "/auth/refresh", RefreshRequest{RefreshToken: "refresh"}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandler_ProtectedRoutes(t *testing.T) {
	service, repo, _ := newTestService()
	router := newTestRouter(service)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = postJSON(t, router, "/auth/signout", RefreshRequest{}, "good")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []string{"user-1"}, repo.deletedFor)

	// The mock authenticator resolves "good" to user-1, which does not exist yet.
	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer good")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
