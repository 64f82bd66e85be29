package jwtx

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// MinSecretLength is the minimum acceptable HMAC secret length. Anything
// shorter is brute-forceable offline once a single token leaks.
const MinSecretLength = 32

// defaultSecrets are placeholder values shipped in example configs. A
// deployment still carrying one of these has not been configured.
var defaultSecrets = []string{
	"your-jwt-secret-key-here-change-in-production",
	"your-refresh-secret-key-here-change-in-production",
	"change-me-change-me-change-me-change-me",
	"secret",
	"changeme",
}

// IssuerConfig configures an Issuer. Secrets are injected, never read from
// the environment here; app-level config owns that.
type IssuerConfig struct {
	Issuer        string
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

// Issuer signs and verifies app-issued tokens. Access and refresh tokens
// use separate HMAC-SHA-256 secrets so a leak of one plane does not
// compromise the other.
type Issuer struct {
	issuer        string
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
}

// NewIssuer validates the configured secrets and returns an Issuer. It
// fails fast on an unset, short or placeholder secret; callers must treat
// that as fatal and refuse to serve traffic.
func NewIssuer(cfg IssuerConfig) (*Issuer, error) {
	if err := ValidateSecret("access token secret", cfg.AccessSecret); err != nil {
		return nil, err
	}
	if err := ValidateSecret("refresh token secret", cfg.RefreshSecret); err != nil {
		return nil, err
	}
	if cfg.AccessSecret == cfg.RefreshSecret {
		return nil, errors.New("jwtx: access and refresh secrets must differ")
	}

	accessTTL := cfg.AccessTTL
	if accessTTL <= 0 {
		accessTTL = DefaultAccessTokenTTL
	}
	refreshTTL := cfg.RefreshTTL
	if refreshTTL <= 0 {
		refreshTTL = DefaultRefreshTokenTTL
	}

	return &Issuer{
		issuer:        cfg.Issuer,
		accessSecret:  []byte(cfg.AccessSecret),
		refreshSecret: []byte(cfg.RefreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
	}, nil
}

// ValidateSecret applies the fail-fast rules for a single HMAC secret.
func ValidateSecret(name, secret string) error {
	if strings.TrimSpace(secret) == "" {
		return fmt.Errorf("%s: %w", name, ErrSecretMissing)
	}
	if len(secret) < MinSecretLength {
		return fmt.Errorf("%s: %w", name, ErrSecretTooShort)
	}
	for _, known := range defaultSecrets {
		if secret == known {
			return fmt.Errorf("%s: %w", name, ErrSecretDefault)
		}
	}
	return nil
}

// AccessTTL returns the configured access token lifetime.
func (i *Issuer) AccessTTL() time.Duration { return i.accessTTL }

// RefreshTTL returns the configured refresh token lifetime.
func (i *Issuer) RefreshTTL() time.Duration { return i.refreshTTL }

// IssueAccess signs a new access token for the given identity.
func (i *Issuer) IssueAccess(userID, username, email string, roles []string, now time.Time) (string, error) {
	claims := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.accessTTL)),
			ID:        uuid.NewString(),
		},
		Username: username,
		Email:    email,
		Roles:    roles,
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.accessSecret)
}

// IssueRefresh signs a new refresh token for the given identity and returns
// the token together with the random session identifier embedded in it.
func (i *Issuer) IssueRefresh(userID string, now time.Time) (token, sessionID string, err error) {
	sessionID = uuid.NewString()

	claims := RefreshClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.refreshTTL)),
		},
		SessionID: sessionID,
	}

	token, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.refreshSecret)
	if err != nil {
		return "", "", err
	}
	return token, sessionID, nil
}

// VerifyAccess validates an app-issued access token: HS256 signature,
// expiry, and presence of a subject. Every failure is returned as an error
// value; nothing panics across this boundary.
func (i *Issuer) VerifyAccess(token string) (AccessClaims, error) {
	var claims AccessClaims
	if err := i.verify(token, i.accessSecret, &claims); err != nil {
		return AccessClaims{}, err
	}
	if claims.Subject == "" {
		return AccessClaims{}, fmt.Errorf("%w: sub", ErrMissingClaim)
	}
	return claims, nil
}

// VerifyRefresh validates an app-issued refresh token signed with the
// refresh secret.
func (i *Issuer) VerifyRefresh(token string) (RefreshClaims, error) {
	var claims RefreshClaims
	if err := i.verify(token, i.refreshSecret, &claims); err != nil {
		return RefreshClaims{}, err
	}
	if claims.Subject == "" || claims.SessionID == "" {
		return RefreshClaims{}, fmt.Errorf("%w: sub/sid", ErrMissingClaim)
	}
	return claims, nil
}

func (i *Issuer) verify(token string, secret []byte, claims jwt.Claims) error {
	if strings.Count(token, ".") != 2 {
		return ErrMalformed
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	)

	_, err := parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return secret, nil
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	case errors.Is(err, jwt.ErrTokenNotValidYet):
		return ErrNotYetValid
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ErrInvalidSig
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ErrMalformed
	default:
		return fmt.Errorf("%w: %w", ErrMalformed, err)
	}
}
