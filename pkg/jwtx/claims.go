package jwtx

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Default token lifetimes. Short access tokens bound the window a stolen
// bearer token is useful for; refresh tokens trade that off for not making
// users log in daily.
const (
	DefaultAccessTokenTTL  = 15 * time.Minute
	DefaultRefreshTokenTTL = 7 * 24 * time.Hour

	// ExternalExpiryLeeway is the clock-skew grace applied to externally
	// issued tokens before treating them as expired.
	ExternalExpiryLeeway = 5 * time.Minute
)

// AccessClaims are the claims embedded in app-issued access tokens. The
// roles claim is advisory only: authorization decisions re-fetch the user
// so role changes apply without waiting for token expiry.
type AccessClaims struct {
	jwt.RegisteredClaims

	Username string   `json:"username,omitempty"`
	Email    string   `json:"email,omitempty"`
	Roles    []string `json:"roles,omitempty"`
}

// RefreshClaims are the claims embedded in app-issued refresh tokens. They
// deliberately carry no identity detail beyond the subject; everything else
// lives in the session row the SID points at.
type RefreshClaims struct {
	jwt.RegisteredClaims

	// SessionID ties the token to one session row.
	SessionID string `json:"sid"`
}

// ExternalClaims are the claims we accept from externally issued SSO tokens.
type ExternalClaims struct {
	jwt.RegisteredClaims

	Email     string `json:"email"`
	Name      string `json:"name,omitempty"`
	GivenName string `json:"given_name,omitempty"`
	Surname   string `json:"family_name,omitempty"`
}
