package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/transitra/transitra/internal/auth/domain"
	"github.com/transitra/transitra/internal/auth/service"
	"github.com/transitra/transitra/internal/auth/store"
	"github.com/transitra/transitra/internal/auth/store/drivers/sqlite"
	"github.com/transitra/transitra/pkg/cryptox"
	"github.com/transitra/transitra/pkg/httpx"
	"github.com/transitra/transitra/pkg/idx"
	"github.com/transitra/transitra/pkg/jwtx"
)

func TestMain(m *testing.M) {
	pepperPath := filepath.Join(os.TempDir(), "transitra-http-test-pepper")
	cryptox.SetPepperPath(pepperPath)

	os.Remove(pepperPath)
	defer os.Remove(pepperPath)

	os.Exit(m.Run())
}

const testPassword = "Correct-Horse-42"

type testEnv struct {
	router *Router
	store  store.Store
	auth   *service.AuthService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st, err := sqlite.NewStore(filepath.Join(t.TempDir(), "auth.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations())

	issuer, err := jwtx.NewIssuer(jwtx.IssuerConfig{
		AccessSecret:  "test-access-secret-0123456789-abcdefgh",
		RefreshSecret: "test-refresh-secret-0123456789-abcdefg",
	})
	require.NoError(t, err)

	sessions := &service.SessionService{Store: st}
	auth := &service.AuthService{
		Store:    st,
		Issuer:   issuer,
		Sessions: sessions,
		Throttle: service.NewMemoryThrottle(),
	}

	router := NewRouter("test", st, slog.New(slog.NewTextHandler(io.Discard, nil)))
	router.AuthService = auth
	router.SessionService = sessions
	router.MFAService = &service.MFAService{Store: st, Issuer: "Transitra"}
	router.ApplyRoutes()

	return &testEnv{router: router, store: st, auth: auth}
}

func (env *testEnv) createUser(t *testing.T, email string, roles ...string) domain.User {
	t.Helper()

	hash, err := cryptox.HashPassword(testPassword)
	require.NoError(t, err)
	if len(roles) == 0 {
		roles = []string{domain.RoleUser}
	}
	now := time.Now().UTC()
	user := domain.User{
		ID:           idx.New().String(),
		Username:     email,
		Email:        email,
		PasswordHash: &hash,
		Roles:        roles,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, env.store.Users().CreateUser(context.Background(), user))
	return user
}

func (env *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.RemoteAddr = "10.0.0.1:54321"
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	return rec
}

func (env *testEnv) login(t *testing.T, email string) LoginResponse {
	t.Helper()

	rec := env.do(t, http.MethodPost, "/v1/auth/login", "", map[string]string{
		"email":    email,
		"password": testPassword,
	})
	require.Equal(t, http.StatusOK, rec.Code, "body: %s", rec.Body.String())

	var result LoginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	return result
}

func TestLoginEndpoint(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		env := newTestEnv(t)
		user := env.createUser(t, "login@example.com", domain.RolePCO)

		result := env.login(t, "login@example.com")
		require.Equal(t, user.ID, result.User.ID)
		require.Equal(t, "Bearer", result.TokenType)
		require.NotEmpty(t, result.AccessToken)
		require.NotEmpty(t, result.RefreshToken)
	})

	t.Run("wrong password is a generic 401", func(t *testing.T) {
		env := newTestEnv(t)
		env.createUser(t, "login@example.com")

		rec := env.do(t, http.MethodPost, "/v1/auth/login", "", map[string]string{
			"email":    "login@example.com",
			"password": "Wrong-Pass-99",
		})
		require.Equal(t, http.StatusUnauthorized, rec.Code)

		var errResp httpx.ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errResp))
		require.Equal(t, "invalid_credentials", errResp.Error)
		// No hint about whether the account exists.
		require.NotContains(t, rec.Body.String(), "password")
		require.NotContains(t, rec.Body.String(), "account")
	})

	t.Run("malformed body is a 400", func(t *testing.T) {
		env := newTestEnv(t)
		req := httptest.NewRequest(http.MethodPost, "/v1/auth/login", bytes.NewReader([]byte("{not json")))
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, req)
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("neither credential shape is a 400", func(t *testing.T) {
		env := newTestEnv(t)
		rec := env.do(t, http.MethodPost, "/v1/auth/login", "", map[string]string{})
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("lockout surfaces as 429 with retry seconds", func(t *testing.T) {
		env := newTestEnv(t)
		env.createUser(t, "locked@example.com")

		for i := 0; i < 5; i++ {
			rec := env.do(t, http.MethodPost, "/v1/auth/login", "", map[string]string{
				"email":    "locked@example.com",
				"password": "Wrong-Pass-99",
			})
			require.Equal(t, http.StatusUnauthorized, rec.Code)
		}

		rec := env.do(t, http.MethodPost, "/v1/auth/login", "", map[string]string{
			"email":    "locked@example.com",
			"password": testPassword,
		})
		require.Equal(t, http.StatusTooManyRequests, rec.Code)

		var errResp httpx.ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errResp))
		require.Equal(t, "account_locked", errResp.Error)
		require.Greater(t, errResp.RetryAfterSeconds, 0)
	})
}

func TestRefreshEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "refresh@example.com")
	login := env.login(t, "refresh@example.com")

	t.Run("success", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/v1/auth/refresh", "", map[string]string{
			"refresh_token": login.RefreshToken,
		})
		require.Equal(t, http.StatusOK, rec.Code)

		var result RefreshResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
		require.NotEmpty(t, result.AccessToken)
		require.Equal(t, "Bearer", result.TokenType)
	})

	t.Run("rejects garbage", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/v1/auth/refresh", "", map[string]string{
			"refresh_token": "garbage",
		})
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("missing token is a 400", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/v1/auth/refresh", "", map[string]string{})
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestLogoutEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "logout@example.com")
	login := env.login(t, "logout@example.com")

	rec := env.do(t, http.MethodPost, "/v1/auth/logout", "", map[string]string{
		"refresh_token": login.RefreshToken,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	// The refresh token is dead afterwards.
	rec = env.do(t, http.MethodPost, "/v1/auth/refresh", "", map[string]string{
		"refresh_token": login.RefreshToken,
	})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	// Logging out junk still reports success.
	rec = env.do(t, http.MethodPost, "/v1/auth/logout", "", map[string]string{
		"refresh_token": "junk",
	})
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestUserInfoEndpoint(t *testing.T) {
	env := newTestEnv(t)
	user := env.createUser(t, "whoami@example.com", domain.RoleReviewer)
	login := env.login(t, "whoami@example.com")

	t.Run("with bearer token", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/v1/auth/userinfo", login.AccessToken, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var info UserInfoResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
		require.Equal(t, user.ID, info.UserID)
		require.Equal(t, []string{domain.RoleReviewer}, info.Roles)
	})

	t.Run("with access_token query parameter", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/v1/auth/userinfo?access_token="+login.AccessToken, "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("without a token", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/v1/auth/userinfo", "", nil)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("with an invalid token the reason stays server side", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/v1/auth/userinfo", "bogus-token", nil)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		require.NotContains(t, rec.Body.String(), "signature")
		require.NotContains(t, rec.Body.String(), "expired")
	})
}

func TestSessionsEndpoints(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "sessions@example.com")
	login := env.login(t, "sessions@example.com")

	var list SessionListResponse
	rec := env.do(t, http.MethodGet, "/v1/auth/sessions", login.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Sessions, 1)
	// Session listings never leak token material.
	require.NotContains(t, rec.Body.String(), "token_hash")

	t.Run("revoke own session", func(t *testing.T) {
		rec := env.do(t, http.MethodDelete, "/v1/auth/sessions/"+list.Sessions[0].ID, login.AccessToken, nil)
		require.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("revoking an unknown session is a 404", func(t *testing.T) {
		rec := env.do(t, http.MethodDelete, "/v1/auth/sessions/no-such-session", login.AccessToken, nil)
		require.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestMFAEndpoints(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "mfa@example.com")
	login := env.login(t, "mfa@example.com")

	rec := env.do(t, http.MethodPost, "/v1/auth/mfa/enroll", login.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var enrollment service.Enrollment
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &enrollment))
	require.NotEmpty(t, enrollment.Secret)
	require.NotEmpty(t, enrollment.OTPAuthURL)

	t.Run("activation rejects a wrong code", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/v1/auth/mfa/activate", login.AccessToken, map[string]string{
			"code": "000000",
		})
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("endpoints require authentication", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/v1/auth/mfa/enroll", "", nil)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestDevBypass(t *testing.T) {
	env := newTestEnv(t)
	env.router.DevBypass = true
	env.router.DevBypassIdentity = httpx.Identity{
		ID:       "dev-user",
		Username: "dev-user",
		Email:    "dev@localhost",
		Roles:    []string{domain.RoleAdmin},
	}
	// Routes capture the authn middleware at registration time.
	env.router.Mux = http.NewServeMux()
	env.router.ApplyRoutes()

	rec := env.do(t, http.MethodGet, "/v1/auth/userinfo", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var info UserInfoResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	require.Equal(t, "dev-user", info.UserID)
	require.Equal(t, []string{domain.RoleAdmin}, info.Roles)
}
