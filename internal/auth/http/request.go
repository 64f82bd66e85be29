package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/transitra/transitra/internal/auth/service"
	"github.com/transitra/transitra/pkg/httpx"
	"github.com/transitra/transitra/pkg/slogx"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

const maxBodyBytes = 1 << 20

// decodeJSON parses and validates a JSON request body into dst. On failure
// it writes a 400 response and returns false.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return false
	}
	if err := validate.Struct(dst); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "missing or invalid fields")
		return false
	}
	return true
}

// loginContextFrom collects the request metadata the auth service records
// against sessions and throttle keys.
func loginContextFrom(r *http.Request) service.LoginContext {
	return service.LoginContext{
		IPAddress: optional(httpx.ClientIP(r)),
		UserAgent: optional(r.UserAgent()),
	}
}

// writeAuthError maps service errors onto the wire. Anything unexpected is
// logged and reported as a 500 without detail.
func writeAuthError(ctx context.Context, w http.ResponseWriter, err error) {
	var locked *service.AccountLockedError
	switch {
	case errors.As(err, &locked):
		httpx.WriteJSON(w, http.StatusTooManyRequests, httpx.ErrorResponse{
			Error:             "account_locked",
			ErrorDescription:  "too many failed login attempts",
			RetryAfterSeconds: locked.RemainingSeconds,
		})
	case errors.Is(err, service.ErrMFARequired):
		httpx.WriteError(w, http.StatusUnauthorized, "mfa_required", "a one-time code is required")
	case errors.Is(err, service.ErrInvalidMFACode):
		httpx.WriteError(w, http.StatusUnauthorized, "invalid_mfa_code", "the one-time code was not accepted")
	case errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, service.ErrAuthentication),
		errors.Is(err, service.ErrSSONotConfigured):
		// One generic message for every credential failure.
		httpx.WriteError(w, http.StatusUnauthorized, "invalid_credentials", "invalid credentials")
	default:
		slogx.FromContext(ctx).Error("request failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "internal server error")
	}
}

// serviceAuthenticator adapts AuthService token validation to the middleware
// contract.
type serviceAuthenticator struct {
	Auth *service.AuthService
}

func (a serviceAuthenticator) Authenticate(ctx context.Context, token string) (httpx.Identity, error) {
	user, err := a.Auth.ValidateToken(ctx, token)
	if err != nil {
		return httpx.Identity{}, err
	}
	return httpx.Identity{
		ID:       user.ID,
		Username: user.Username,
		Email:    user.Email,
		Roles:    user.Roles,
	}, nil
}
