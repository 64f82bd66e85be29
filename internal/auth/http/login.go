package http

import (
	"net/http"

	"github.com/transitra/transitra/internal/auth/domain"
	"github.com/transitra/transitra/internal/auth/service"
	"github.com/transitra/transitra/pkg/httpx"
)

type LoginHandler struct {
	AuthService *service.AuthService
}

// LoginRequest carries either an email/password pair or an SSO token from
// the external identity provider. OTPCode is required only for accounts
// with TOTP enabled.
type LoginRequest struct {
	Email    string `json:"email" validate:"omitempty,email"`
	Password string `json:"password" validate:"omitempty,max=128"`
	SSOToken string `json:"sso_token" validate:"omitempty"`
	OTPCode  string `json:"otp_code" validate:"omitempty,len=6,numeric"`
}

// LoginResponse is the success payload for logins.
type LoginResponse struct {
	User         domain.Summary `json:"user"`
	AccessToken  string         `json:"access_token"`
	RefreshToken string         `json:"refresh_token"`
	TokenType    string         `json:"token_type"`
	ExpiresIn    int64          `json:"expires_in"`
}

// ServeHTTP handles password and SSO logins.
//
//	@Summary		Log in
//	@Description	Authenticates with an email/password pair, or with an SSO token minted by
//	@Description	the external identity provider. Accounts with TOTP enabled must include
//	@Description	otp_code. Failed attempts are throttled per account and origin address.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		LoginRequest	true	"Credentials"
//	@Success		200		{object}	LoginResponse
//	@Failure		400		{object}	httpx.ErrorResponse	"Malformed request"
//	@Failure		401		{object}	httpx.ErrorResponse	"Invalid credentials or missing one-time code"
//	@Failure		429		{object}	httpx.ErrorResponse	"Account locked, retry_after_seconds set"
//	@Router			/v1/auth/login [post].
func (h *LoginHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	lc := loginContextFrom(r)

	var (
		result domain.LoginResult
		err    error
	)
	switch {
	case req.SSOToken != "":
		result, err = h.AuthService.LoginWithSSOToken(ctx, req.SSOToken, lc)
	case req.Email != "" && req.Password != "":
		result, err = h.AuthService.LoginWithPassword(ctx, req.Email, req.Password, req.OTPCode, lc)
	default:
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "either sso_token or email and password are required")
		return
	}
	if err != nil {
		writeAuthError(ctx, w, err)
		return
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, LoginResponse{
		User:         result.User,
		AccessToken:  result.Tokens.AccessToken,
		RefreshToken: result.Tokens.RefreshToken,
		TokenType:    result.Tokens.TokenType,
		ExpiresIn:    result.Tokens.ExpiresIn,
	})
}
