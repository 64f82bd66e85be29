package http

import (
	"net/http"

	"github.com/transitra/transitra/internal/auth/service"
	"github.com/transitra/transitra/pkg/httpx"
)

type LogoutHandler struct {
	AuthService *service.AuthService
}

type LogoutRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type LogoutResponse struct {
	Status string `json:"status"`
}

// ServeHTTP ends the session named by the refresh token.
//
//	@Summary		Log out
//	@Description	Deactivates the session for the given refresh token. Always succeeds:
//	@Description	an invalid or already-revoked token still leaves the client logged out.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		LogoutRequest	true	"Refresh token"
//	@Success		200		{object}	LogoutResponse
//	@Failure		400		{object}	httpx.ErrorResponse	"Malformed request"
//	@Router			/v1/auth/logout [post].
func (h *LogoutHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req LogoutRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	h.AuthService.Logout(ctx, req.RefreshToken)

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, LogoutResponse{Status: "logged_out"})
}
