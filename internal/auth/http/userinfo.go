package http

import (
	"net/http"

	"github.com/transitra/transitra/internal/auth/service"
	"github.com/transitra/transitra/pkg/httpx"
)

type UserInfoHandler struct {
	AuthService *service.AuthService
}

// UserInfoResponse describes the authenticated caller.
type UserInfoResponse struct {
	UserID   string   `json:"user_id"`
	Username string   `json:"username"`
	Email    string   `json:"email"`
	Roles    []string `json:"roles"`
}

// ServeHTTP returns the authenticated caller's identity.
//
//	@Summary		Get user information
//	@Description	Returns the identity attached to the presented access token.
//	@Tags			Auth
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	UserInfoResponse
//	@Failure		401	{object}	httpx.ErrorResponse	"Invalid or missing access token"
//	@Router			/v1/auth/userinfo [get].
func (h *UserInfoHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id, ok := httpx.IdentityFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, UserInfoResponse{
		UserID:   id.ID,
		Username: id.Username,
		Email:    id.Email,
		Roles:    id.Roles,
	})
}
