package http

import (
	"errors"
	"net/http"

	"github.com/transitra/transitra/internal/auth/service"
	"github.com/transitra/transitra/pkg/httpx"
)

type MFAHandler struct {
	MFAService *service.MFAService
}

type MFACodeRequest struct {
	Code string `json:"code" validate:"required,len=6,numeric"`
}

type MFAStatusResponse struct {
	Status string `json:"status"`
}

func writeMFAError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrMFAAlreadyEnabled):
		httpx.WriteError(w, http.StatusConflict, "mfa_already_enabled", "one-time codes are already enabled")
	case errors.Is(err, service.ErrMFANotEnrolled):
		httpx.WriteError(w, http.StatusConflict, "mfa_not_enrolled", "no pending or active enrollment")
	case errors.Is(err, service.ErrInvalidMFACode):
		httpx.WriteError(w, http.StatusUnauthorized, "invalid_mfa_code", "the one-time code was not accepted")
	default:
		writeAuthError(r.Context(), w, err)
	}
}

// HandleEnroll starts TOTP enrollment for the caller.
//
//	@Summary		Start TOTP enrollment
//	@Description	Generates a TOTP secret for the caller and returns it with the otpauth
//	@Description	URL for authenticator apps. Enrollment is pending until activated with
//	@Description	a first valid code.
//	@Tags			MFA
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	service.Enrollment
//	@Failure		401	{object}	httpx.ErrorResponse	"Invalid or missing access token"
//	@Failure		409	{object}	httpx.ErrorResponse	"Already enabled"
//	@Router			/v1/auth/mfa/enroll [post].
func (h *MFAHandler) HandleEnroll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := httpx.IdentityFromContext(ctx)
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	enrollment, err := h.MFAService.Enroll(ctx, id.ID)
	if err != nil {
		writeMFAError(w, r, err)
		return
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, enrollment)
}

// HandleActivate confirms a pending enrollment.
//
//	@Summary		Activate TOTP
//	@Description	Confirms a pending enrollment with a code from the authenticator app.
//	@Description	Logins require a code from this point on.
//	@Tags			MFA
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		MFACodeRequest	true	"Current one-time code"
//	@Success		200		{object}	MFAStatusResponse
//	@Failure		401		{object}	httpx.ErrorResponse	"Invalid token or code"
//	@Failure		409		{object}	httpx.ErrorResponse	"Not enrolled or already enabled"
//	@Router			/v1/auth/mfa/activate [post].
func (h *MFAHandler) HandleActivate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := httpx.IdentityFromContext(ctx)
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	var req MFACodeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.MFAService.Activate(ctx, id.ID, req.Code); err != nil {
		writeMFAError(w, r, err)
		return
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, MFAStatusResponse{Status: "enabled"})
}

// HandleDisable turns TOTP off for the caller.
//
//	@Summary		Disable TOTP
//	@Description	Disables one-time codes. A valid current code is required.
//	@Tags			MFA
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		MFACodeRequest	true	"Current one-time code"
//	@Success		200		{object}	MFAStatusResponse
//	@Failure		401		{object}	httpx.ErrorResponse	"Invalid token or code"
//	@Failure		409		{object}	httpx.ErrorResponse	"Not enrolled"
//	@Router			/v1/auth/mfa/disable [post].
func (h *MFAHandler) HandleDisable(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := httpx.IdentityFromContext(ctx)
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
		return
	}

	var req MFACodeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.MFAService.Disable(ctx, id.ID, req.Code); err != nil {
		writeMFAError(w, r, err)
		return
	}

	httpx.NoCache(w)
	httpx.WriteJSON(w, http.StatusOK, MFAStatusResponse{Status: "disabled"})
}
