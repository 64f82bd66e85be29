package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pquerna/otp/totp"

	"github.com/transitra/transitra/internal/auth/domain"
	"github.com/transitra/transitra/internal/auth/metrics"
	"github.com/transitra/transitra/internal/auth/store"
	"github.com/transitra/transitra/pkg/cryptox"
	"github.com/transitra/transitra/pkg/idx"
	"github.com/transitra/transitra/pkg/jwtx"
	"github.com/transitra/transitra/pkg/slogx"
)

// LoginContext carries the request metadata relevant to a login attempt.
// Pointers are nil when the client did not provide the value.
type LoginContext struct {
	IPAddress *string
	UserAgent *string
}

func (lc LoginContext) origin() string {
	if lc.IPAddress != nil && *lc.IPAddress != "" {
		return *lc.IPAddress
	}
	return "unknown"
}

// AuthService is the authentication façade: password and SSO logins, token
// refresh, logout and bearer-token validation.
type AuthService struct {
	Store    store.Store
	Issuer   *jwtx.Issuer
	External *jwtx.ExternalVerifier // nil when SSO is not configured
	Sessions *SessionService
	Throttle LoginThrottle
	Metrics  *metrics.Metrics

	// Now is swappable for tests.
	Now func() time.Time
}

func (s *AuthService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// LoginWithPassword authenticates an email/password pair and, on success,
// issues a token pair and records a session.
//
// Failure modes are deliberately flattened: a missing account and a wrong
// password both return ErrInvalidCredentials, and the unknown-account path
// burns a dummy hash verification so the two are not distinguishable by
// timing either.
func (s *AuthService) LoginWithPassword(ctx context.Context, email, password, otpCode string, lc LoginContext) (domain.LoginResult, error) {
	log := slogx.FromContext(ctx)
	email = strings.ToLower(strings.TrimSpace(email))
	origin := lc.origin()

	status, err := s.Throttle.Status(ctx, email, origin)
	if err != nil {
		return domain.LoginResult{}, fmt.Errorf("login throttle: %w", err)
	}
	if status.Locked {
		s.Metrics.LoginLocked()
		log.Warn("login rejected by lockout", "origin", origin, "remaining_s", status.RemainingSeconds)
		return domain.LoginResult{}, &AccountLockedError{RemainingSeconds: status.RemainingSeconds}
	}

	user, err := s.Store.Users().GetUserByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		cryptox.DummyVerify(password)
		return domain.LoginResult{}, s.failLogin(ctx, email, origin, "unknown account")
	}
	if err != nil {
		return domain.LoginResult{}, fmt.Errorf("login lookup: %w", err)
	}

	if user.PasswordHash == nil {
		// SSO-only account. Same dummy work and the same generic error; the
		// caller must not learn the account exists but has no password.
		cryptox.DummyVerify(password)
		return domain.LoginResult{}, s.failLogin(ctx, email, origin, "no local credential")
	}

	if err := cryptox.VerifyPassword(password, *user.PasswordHash); err != nil {
		log.Debug("password rejected", "reason", err.Error())
		return domain.LoginResult{}, s.failLogin(ctx, email, origin, "wrong password")
	}

	if user.MFAEnabled() {
		if otpCode == "" {
			return domain.LoginResult{}, ErrMFARequired
		}
		if !totp.Validate(otpCode, *user.MFASecret) {
			return domain.LoginResult{}, s.failLoginAs(ctx, email, origin, "wrong totp code", ErrInvalidMFACode)
		}
	}

	if err := s.Throttle.ClearOnSuccess(ctx, email, origin); err != nil {
		log.Error("failed to clear login throttle", "error", err)
	}

	return s.completeLogin(ctx, user, lc)
}

// LoginWithSSOToken authenticates a token minted by the external identity
// provider. Accounts are matched by provider subject, linked by email when
// the subject is new, and created when neither matches.
func (s *AuthService) LoginWithSSOToken(ctx context.Context, token string, lc LoginContext) (domain.LoginResult, error) {
	log := slogx.FromContext(ctx)
	if s.External == nil {
		return domain.LoginResult{}, ErrSSONotConfigured
	}
	claims, err := s.External.Verify(token)
	if err != nil {
		log.Warn("sso token rejected", "reason", err.Error())
		return domain.LoginResult{}, ErrAuthentication
	}

	user, err := s.Store.Users().GetUserBySSOSubject(ctx, claims.Subject)
	if errors.Is(err, store.ErrNotFound) {
		user, err = s.linkOrProvisionSSOUser(ctx, claims)
	}
	if err != nil {
		return domain.LoginResult{}, fmt.Errorf("sso login: %w", err)
	}

	return s.completeLogin(ctx, user, lc)
}

func (s *AuthService) linkOrProvisionSSOUser(ctx context.Context, claims jwtx.ExternalClaims) (domain.User, error) {
	email := strings.ToLower(claims.Email)

	user, err := s.Store.Users().GetUserByEmail(ctx, email)
	if err == nil {
		if err := s.Store.Users().LinkSSOSubject(ctx, user.ID, claims.Subject); err != nil {
			return domain.User{}, err
		}
		subject := claims.Subject
		user.SSOSubject = &subject
		slogx.FromContext(ctx).Info("linked sso subject to existing account", "user_id", user.ID)
		return user, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return domain.User{}, err
	}

	now := s.now().UTC()
	subject := claims.Subject
	user = domain.User{
		ID:            idx.New().String(),
		Username:      email,
		Email:         email,
		PreferredName: claims.Name,
		FirstName:     claims.GivenName,
		LastName:      claims.Surname,
		Roles:         []string{domain.RoleUser},
		SSOSubject:    &subject,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.Store.Users().CreateUser(ctx, user); err != nil {
		return domain.User{}, err
	}
	slogx.FromContext(ctx).Info("provisioned account from sso login", "user_id", user.ID)
	return user, nil
}

func (s *AuthService) failLogin(ctx context.Context, email, origin, reason string) error {
	return s.failLoginAs(ctx, email, origin, reason, ErrInvalidCredentials)
}

func (s *AuthService) failLoginAs(ctx context.Context, email, origin, reason string, sentinel error) error {
	s.Metrics.LoginFailure()
	slogx.FromContext(ctx).Warn("login failed", "origin", origin, "reason", reason)
	if err := s.Throttle.RecordFailure(ctx, email, origin); err != nil {
		slogx.FromContext(ctx).Error("failed to record login failure", "error", err)
	}
	return sentinel
}

func (s *AuthService) completeLogin(ctx context.Context, user domain.User, lc LoginContext) (domain.LoginResult, error) {
	log := slogx.FromContext(ctx)
	now := s.now()

	access, err := s.Issuer.IssueAccess(user.ID, user.Username, user.Email, user.Roles, now)
	if err != nil {
		return domain.LoginResult{}, fmt.Errorf("issue access token: %w", err)
	}
	refresh, sessionID, err := s.Issuer.IssueRefresh(user.ID, now)
	if err != nil {
		return domain.LoginResult{}, fmt.Errorf("issue refresh token: %w", err)
	}
	s.Metrics.TokenIssued("access")
	s.Metrics.TokenIssued("refresh")

	_, err = s.Sessions.CreateSession(ctx, sessionID, user.ID, refresh, lc.UserAgent, lc.IPAddress, now.Add(s.Issuer.RefreshTTL()))
	if err != nil {
		return domain.LoginResult{}, err
	}

	if err := s.Store.Users().RecordLogin(ctx, user.ID, now.UTC(), lc.IPAddress, lc.UserAgent); err != nil {
		log.Error("failed to record last login", "user_id", user.ID, "error", err)
	}

	if _, err := s.Sessions.DetectSuspiciousActivity(ctx, user.ID); err != nil {
		log.Error("suspicious-activity check failed", "user_id", user.ID, "error", err)
	}

	s.Metrics.LoginSuccess()
	log.Info("login succeeded", "user_id", user.ID)
	return domain.LoginResult{
		User: user.Summarize(),
		Tokens: domain.TokenPair{
			AccessToken:  access,
			RefreshToken: refresh,
			TokenType:    "Bearer",
			ExpiresIn:    int64(s.Issuer.AccessTTL() / time.Second),
		},
	}, nil
}

// Refresh exchanges a valid refresh token for a new access token. The
// refresh token itself is not rotated; the session it names simply keeps
// serving until it expires or is revoked.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string, lc LoginContext) (string, int64, error) {
	log := slogx.FromContext(ctx)

	claims, err := s.Issuer.VerifyRefresh(refreshToken)
	if err != nil {
		log.Warn("refresh token rejected", "reason", err.Error())
		return "", 0, ErrAuthentication
	}

	session, err := s.Store.Sessions().GetSessionByTokenHash(ctx, cryptox.FingerprintToken(refreshToken))
	if errors.Is(err, store.ErrNotFound) {
		log.Warn("refresh for unknown session")
		return "", 0, ErrAuthentication
	}
	if err != nil {
		return "", 0, fmt.Errorf("refresh lookup: %w", err)
	}

	now := s.now()
	switch {
	case !session.IsActive:
		log.Warn("refresh for revoked session", "session_id", session.ID)
		return "", 0, ErrAuthentication
	case session.Expired(now):
		log.Warn("refresh for expired session", "session_id", session.ID)
		return "", 0, ErrAuthentication
	case session.UserID != claims.Subject:
		log.Warn("refresh token subject does not match session", "session_id", session.ID)
		return "", 0, ErrAuthentication
	}

	// A different client IP on refresh is common (mobile networks, VPNs)
	// so it is logged for audit but does not invalidate the session.
	if lc.IPAddress != nil && session.IPAddress != nil && *lc.IPAddress != *session.IPAddress {
		log.Warn("refresh from different ip", "session_id", session.ID)
	}

	// Roles come from the database, not the old token, so revocations and
	// grants take effect on the next refresh.
	user, err := s.Store.Users().GetUserByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			log.Warn("refresh for deleted user", "session_id", session.ID)
			return "", 0, ErrAuthentication
		}
		return "", 0, fmt.Errorf("refresh user lookup: %w", err)
	}

	access, err := s.Issuer.IssueAccess(user.ID, user.Username, user.Email, user.Roles, now)
	if err != nil {
		return "", 0, fmt.Errorf("issue access token: %w", err)
	}
	s.Metrics.TokenIssued("access")

	if err := s.Store.Sessions().TouchSession(ctx, session.TokenHash, now.UTC()); err != nil {
		log.Error("failed to touch session", "session_id", session.ID, "error", err)
	}

	return access, int64(s.Issuer.AccessTTL() / time.Second), nil
}

// Logout deactivates the session named by the refresh token. It never
// fails from the caller's point of view: an invalid or already-revoked
// token still results in a logged-out client.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) {
	log := slogx.FromContext(ctx)

	if _, err := s.Issuer.VerifyRefresh(refreshToken); err != nil {
		log.Debug("logout with invalid refresh token", "reason", err.Error())
		return
	}
	err := s.Store.Sessions().DeactivateSession(ctx, cryptox.FingerprintToken(refreshToken))
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		log.Error("failed to deactivate session on logout", "error", err)
	}
}

// ValidateToken verifies an access token and returns the current user. The
// user is re-fetched so role changes and deletions take effect immediately
// rather than at token expiry. Every failure collapses to ErrAuthentication.
func (s *AuthService) ValidateToken(ctx context.Context, token string) (domain.User, error) {
	log := slogx.FromContext(ctx)

	claims, err := s.Issuer.VerifyAccess(token)
	if err != nil {
		log.Debug("access token rejected", "reason", err.Error())
		return domain.User{}, ErrAuthentication
	}
	user, err := s.Store.Users().GetUserByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			log.Warn("access token for deleted user")
			return domain.User{}, ErrAuthentication
		}
		return domain.User{}, fmt.Errorf("validate token: %w", err)
	}
	return user, nil
}

// RecordLoginMetadata stores last-seen metadata for a user. Called from the
// middleware's async hook; failures are logged and swallowed.
func (s *AuthService) RecordLoginMetadata(ctx context.Context, userID string, ip, userAgent *string) {
	if err := s.Store.Users().RecordLogin(ctx, userID, s.now().UTC(), ip, userAgent); err != nil {
		slogx.FromContext(ctx).Error("failed to record login metadata", "user_id", userID, "error", err)
	}
}
