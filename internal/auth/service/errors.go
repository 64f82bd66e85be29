package service

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidCredentials covers both "no such account" and "wrong
	// password". The two cases must be indistinguishable to the caller so
	// login cannot be used to enumerate accounts.
	ErrInvalidCredentials = errors.New("invalid_credentials")

	// ErrAuthentication is the single error every token validation failure
	// collapses into at the façade boundary. The underlying cause goes to
	// the server log only.
	ErrAuthentication = errors.New("authentication_failed")

	// ErrMFARequired signals that the account has TOTP enabled and the
	// login request carried no code.
	ErrMFARequired = errors.New("mfa_required")

	// ErrInvalidMFACode signals a present but wrong TOTP code.
	ErrInvalidMFACode = errors.New("invalid_mfa_code")

	// ErrSSONotConfigured is returned for SSO-token logins when no
	// verification key was configured.
	ErrSSONotConfigured = errors.New("sso_not_configured")

	// ErrMFAAlreadyEnabled and ErrMFANotEnrolled guard the TOTP
	// management operations.
	ErrMFAAlreadyEnabled = errors.New("mfa_already_enabled")
	ErrMFANotEnrolled    = errors.New("mfa_not_enrolled")
)

// AccountLockedError reports an engaged login throttle. The remaining
// seconds are safe to show to the caller.
type AccountLockedError struct {
	RemainingSeconds int
}

func (e *AccountLockedError) Error() string {
	return fmt.Sprintf("account locked, retry in %d seconds", e.RemainingSeconds)
}
