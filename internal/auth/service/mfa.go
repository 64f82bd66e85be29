package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pquerna/otp/totp"

	"github.com/transitra/transitra/internal/auth/store"
	"github.com/transitra/transitra/pkg/slogx"
)

// MFAService manages TOTP enrollment. Enrollment is two-step: Enroll stores
// a pending secret and returns the otpauth URL for the user's authenticator,
// Activate confirms it with a first valid code. Until Activate succeeds the
// account logs in without a code.
type MFAService struct {
	Store store.Store

	// Issuer is the name shown in authenticator apps.
	Issuer string

	// Now is swappable for tests.
	Now func() time.Time
}

func (s *MFAService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Enrollment is returned by Enroll for the client to render as a QR code.
type Enrollment struct {
	Secret     string `json:"secret"`
	OTPAuthURL string `json:"otpauth_url"`
}

// Enroll generates a fresh TOTP secret for the user and stores it pending
// confirmation. Re-enrolling before activation replaces the pending secret;
// an already-activated account must Disable first.
func (s *MFAService) Enroll(ctx context.Context, userID string) (Enrollment, error) {
	user, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		return Enrollment{}, fmt.Errorf("mfa enroll: %w", err)
	}
	if user.MFAEnabled() {
		return Enrollment{}, ErrMFAAlreadyEnabled
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.Issuer,
		AccountName: user.Email,
	})
	if err != nil {
		return Enrollment{}, fmt.Errorf("mfa enroll: %w", err)
	}
	if err := s.Store.Users().UpdateMFASecret(ctx, userID, key.Secret()); err != nil {
		return Enrollment{}, fmt.Errorf("mfa enroll: %w", err)
	}
	slogx.FromContext(ctx).Info("totp enrollment started", "user_id", userID)
	return Enrollment{Secret: key.Secret(), OTPAuthURL: key.URL()}, nil
}

// Activate confirms a pending enrollment with a code from the user's
// authenticator.
func (s *MFAService) Activate(ctx context.Context, userID, code string) error {
	user, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("mfa activate: %w", err)
	}
	if user.MFAEnabled() {
		return ErrMFAAlreadyEnabled
	}
	if user.MFASecret == nil {
		return ErrMFANotEnrolled
	}
	if !totp.Validate(code, *user.MFASecret) {
		return ErrInvalidMFACode
	}
	if err := s.Store.Users().EnableMFA(ctx, userID, s.now().UTC()); err != nil {
		return fmt.Errorf("mfa activate: %w", err)
	}
	slogx.FromContext(ctx).Info("totp enabled", "user_id", userID)
	return nil
}

// Disable turns TOTP off. A valid current code is required so a hijacked
// session cannot silently weaken the account.
func (s *MFAService) Disable(ctx context.Context, userID, code string) error {
	user, err := s.Store.Users().GetUserByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("mfa disable: %w", err)
	}
	if !user.MFAEnabled() {
		return ErrMFANotEnrolled
	}
	if !totp.Validate(code, *user.MFASecret) {
		return ErrInvalidMFACode
	}
	if err := s.Store.Users().DisableMFA(ctx, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrMFANotEnrolled
		}
		return fmt.Errorf("mfa disable: %w", err)
	}
	slogx.FromContext(ctx).Info("totp disabled", "user_id", userID)
	return nil
}
