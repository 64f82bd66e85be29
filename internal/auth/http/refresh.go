package http

import (
	"net/http"

	"github.com/transitra/transitra/internal/auth/service"
	"github.com/transitra/transitra/pkg/httpx"
)

type RefreshHandler struct {
	AuthService *service.AuthService
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type RefreshResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// ServeHTTP exchanges a refresh token for a new access token.
//
//	@Summary		Refresh an access token
//	@Description	Exchanges a valid refresh token for a fresh access token. Roles on the
//	@Description	new token reflect the current database state, not the old token.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		RefreshRequest	true	"Refresh token"
//	@Success		200		{object}	RefreshResponse
//	@Failure		400		{object}	httpx.ErrorResponse	"Malformed request"
//	@Failure		401		{object}	httpx.ErrorResponse	"Invalid, expired or revoked refresh token"
//	@Router			/v1/auth/refresh [post].
func (h *RefreshHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req RefreshRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	access, expiresIn, err := h.AuthService.Refresh(ctx, req.RefreshToken, loginContextFrom(r))
	if err != nil {
		writeAuthError(ctx, w, err)
		return
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, RefreshResponse{
		AccessToken: access,
		TokenType:   "Bearer",
		ExpiresIn:   expiresIn,
	})
}
