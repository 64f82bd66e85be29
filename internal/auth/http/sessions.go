package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/transitra/transitra/internal/auth/domain"
	"github.com/transitra/transitra/internal/auth/service"
	"github.com/transitra/transitra/internal/auth/store"
	"github.com/transitra/transitra/pkg/httpx"
)

type SessionsHandler struct {
	SessionService *service.SessionService
}

// SessionSummary is the client-facing view of one session. Token material
// is never included.
type SessionSummary struct {
	ID         string    `json:"id"`
	UserAgent  string    `json:"user_agent,omitempty"`
	IPAddress  string    `json:"ip_address,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	LastUsedAt time.Time `json:"last_used_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

type SessionListResponse struct {
	Sessions []SessionSummary          `json:"sessions"`
	Activity domain.SuspiciousActivity `json:"activity"`
}

// HandleList returns the caller's active sessions with the activity report.
//
//	@Summary		List active sessions
//	@Description	Returns the caller's active sessions, oldest first, along with the
//	@Description	suspicious-activity heuristics over the last 24 hours.
//	@Tags			Sessions
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	SessionListResponse
//	@Failure		401	{object}	httpx.ErrorResponse	"Invalid or missing access token"
//	@Router			/v1/auth/sessions [get].
func (h *SessionsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := httpx.IdentityFromContext(ctx)
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	sessions, err := h.SessionService.ListSessions(ctx, id.ID)
	if err != nil {
		writeAuthError(ctx, w, err)
		return
	}
	activity, err := h.SessionService.DetectSuspiciousActivity(ctx, id.ID)
	if err != nil {
		writeAuthError(ctx, w, err)
		return
	}

	summaries := make([]SessionSummary, 0, len(sessions))
	for _, s := range sessions {
		summary := SessionSummary{
			ID:         s.ID,
			CreatedAt:  s.CreatedAt,
			LastUsedAt: s.LastUsedAt,
			ExpiresAt:  s.ExpiresAt,
		}
		if s.UserAgent != nil {
			summary.UserAgent = *s.UserAgent
		}
		if s.IPAddress != nil {
			summary.IPAddress = *s.IPAddress
		}
		summaries = append(summaries, summary)
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, SessionListResponse{Sessions: summaries, Activity: activity})
}

// HandleRevoke deactivates one of the caller's sessions.
//
//	@Summary		Revoke a session
//	@Description	Deactivates the caller's session with the given id. Sessions belonging
//	@Description	to other users are reported as not found.
//	@Tags			Sessions
//	@Security		BearerAuth
//	@Produce		json
//	@Param			id	path		string	true	"Session id"
//	@Success		200	{object}	LogoutResponse
//	@Failure		401	{object}	httpx.ErrorResponse	"Invalid or missing access token"
//	@Failure		404	{object}	httpx.ErrorResponse	"No such session"
//	@Router			/v1/auth/sessions/{id} [delete].
func (h *SessionsHandler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := httpx.IdentityFromContext(ctx)
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	sessionID := r.PathValue("id")
	if err := h.SessionService.RevokeSession(ctx, id.ID, sessionID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			httpx.WriteError(w, http.StatusNotFound, "not_found", "no such session")
			return
		}
		writeAuthError(ctx, w, err)
		return
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, LogoutResponse{Status: "revoked"})
}
