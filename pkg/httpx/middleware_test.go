package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeAuthenticator struct {
	token    string
	identity Identity
}

func (f *fakeAuthenticator) Authenticate(_ context.Context, token string) (Identity, error) {
	if token == f.token {
		return f.identity, nil
	}
	return Identity{}, errors.New("authentication failed")
}

func okHandler(t *testing.T, gotIdentity *Identity) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id, ok := IdentityFromContext(r.Context()); ok {
			*gotIdentity = id
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthnMiddlewareMissingToken(t *testing.T) {
	t.Parallel()

	auth := &fakeAuthenticator{token: "good"}
	var got Identity
	h := AuthnMiddleware(auth, AuthnConfig{})(okHandler(t, &got))

	req := httptest.NewRequest(http.MethodGet, "/v1/auth/userinfo", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "unauthorized", body.Error)
}

func TestAuthnMiddlewareInvalidTokenIsGeneric(t *testing.T) {
	t.Parallel()

	auth := &fakeAuthenticator{token: "good"}
	var got Identity
	h := AuthnMiddleware(auth, AuthnConfig{})(okHandler(t, &got))

	req := httptest.NewRequest(http.MethodGet, "/v1/auth/userinfo", nil)
	req.Header.Set("Authorization", "Bearer bad")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.NotContains(t, rec.Body.String(), "signature")
	require.NotContains(t, rec.Body.String(), "expired")
	require.Contains(t, rec.Body.String(), "authentication required")
}

func TestAuthnMiddlewareValidToken(t *testing.T) {
	t.Parallel()

	want := Identity{ID: "u1", Username: "jdoe", Email: "jdoe@example.com", Roles: []string{"user"}}
	auth := &fakeAuthenticator{token: "good", identity: want}
	var got Identity
	h := AuthnMiddleware(auth, AuthnConfig{})(okHandler(t, &got))

	req := httptest.NewRequest(http.MethodGet, "/v1/auth/userinfo", nil)
	req.Header.Set("Authorization", "Bearer good")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, want, got)
}

func TestAuthnMiddlewareQueryParamFallback(t *testing.T) {
	t.Parallel()

	want := Identity{ID: "u1"}
	auth := &fakeAuthenticator{token: "good", identity: want}
	var got Identity
	h := AuthnMiddleware(auth, AuthnConfig{})(okHandler(t, &got))

	req := httptest.NewRequest(http.MethodGet, "/v1/stream?access_token=good", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, want, got)
}

func TestAuthnMiddlewareBypass(t *testing.T) {
	t.Parallel()

	dev := Identity{ID: "dev", Username: "developer", Roles: []string{"admin"}}
	auth := &fakeAuthenticator{token: "good"}
	var got Identity
	h := AuthnMiddleware(auth, AuthnConfig{Bypass: true, BypassIdentity: dev})(okHandler(t, &got))

	// No token at all; the bypass identity is attached regardless.
	req := httptest.NewRequest(http.MethodGet, "/v1/auth/userinfo", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, dev, got)
}

func TestAuthnMiddlewareOnAuthenticated(t *testing.T) {
	t.Parallel()

	auth := &fakeAuthenticator{token: "good", identity: Identity{ID: "u1"}}

	var (
		mu     sync.Mutex
		called bool
		gotIP  string
		gotUA  string
	)
	done := make(chan struct{})

	cfg := AuthnConfig{
		OnAuthenticated: func(_ context.Context, id Identity, ip, ua string) {
			mu.Lock()
			called, gotIP, gotUA = true, ip, ua
			mu.Unlock()
			close(done)
		},
	}

	var got Identity
	h := AuthnMiddleware(auth, cfg)(okHandler(t, &got))

	req := httptest.NewRequest(http.MethodGet, "/v1/auth/userinfo", nil)
	req.Header.Set("Authorization", "Bearer good")
	req.Header.Set("User-Agent", "test-agent/1.0")
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("OnAuthenticated was not invoked")
	}

	mu.Lock()
	defer mu.Unlock()
	require.True(t, called)
	require.Equal(t, "203.0.113.9", gotIP)
	require.Equal(t, "test-agent/1.0", gotUA)
}

func TestRequireAnyRole(t *testing.T) {
	t.Parallel()

	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	h := RequireAnyRole("admin", "pcoadmin")(next)

	t.Run("no identity", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("wrong role lists required roles", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		ctx := ContextWithIdentity(req.Context(), Identity{ID: "u1", Roles: []string{"user"}})
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req.WithContext(ctx))

		require.Equal(t, http.StatusForbidden, rec.Code)

		var body ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		require.Equal(t, []string{"admin", "pcoadmin"}, body.RequiredRoles)
	})

	t.Run("matching role passes", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		ctx := ContextWithIdentity(req.Context(), Identity{ID: "u1", Roles: []string{"user", "admin"}})
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req.WithContext(ctx))
		require.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestRateLimitByIP(t *testing.T) {
	t.Parallel()

	cfg := RateLimitConfig{RequestsPerWindow: 2, Window: time.Minute, Burst: 2}
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	h := RateLimitByIP(cfg)(next)

	req := httptest.NewRequest(http.MethodPost, "/v1/auth/login", nil)
	req.RemoteAddr = "198.51.100.7:12345"

	for i := range 2 {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, "request %d within burst", i)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.NotEmpty(t, rec.Header().Get("Retry-After"))

	// A different address is unaffected.
	other := httptest.NewRequest(http.MethodPost, "/v1/auth/login", nil)
	other.RemoteAddr = "198.51.100.8:12345"
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, other)
	require.Equal(t, http.StatusOK, rec.Code)
}
