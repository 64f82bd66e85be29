package jwtx

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ExternalVerifier validates tokens issued by an external SSO provider.
// Only the RSA family is accepted for external tokens; the symmetric app
// secret never verifies anything a third party signed.
type ExternalVerifier struct {
	key    *rsa.PublicKey
	leeway time.Duration
}

// NewExternalVerifier parses the provider's PEM-encoded RSA public key.
// An absent or empty key is a configuration error: SSO login must be
// impossible rather than silently unverified.
func NewExternalVerifier(pemKey []byte) (*ExternalVerifier, error) {
	if len(strings.TrimSpace(string(pemKey))) == 0 {
		return nil, ErrKeyMissing
	}

	block, _ := pem.Decode(pemKey)
	if block == nil {
		return nil, errors.New("jwtx: invalid PEM for SSO verification key")
	}

	var pub *rsa.PublicKey
	switch block.Type {
	case "RSA PUBLIC KEY":
		key, err := x509.ParsePKCS1PublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("jwtx: parse PKCS1 public key: %w", err)
		}
		pub = key
	case "PUBLIC KEY":
		key, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("jwtx: parse PKIX public key: %w", err)
		}
		rsaKey, ok := key.(*rsa.PublicKey)
		if !ok {
			return nil, errors.New("jwtx: SSO verification key is not RSA")
		}
		pub = rsaKey
	default:
		return nil, fmt.Errorf("jwtx: unsupported PEM type %q", block.Type)
	}

	return &ExternalVerifier{key: pub, leeway: ExternalExpiryLeeway}, nil
}

// Verify validates an externally issued token: RS256/RS512 signature,
// well-formed three-part structure, and the claims we require from a
// provider (subject, email, expiry). Expiry is checked with a clock-skew
// grace window.
func (v *ExternalVerifier) Verify(token string) (ExternalClaims, error) {
	if strings.Count(strings.TrimSpace(token), ".") != 2 {
		return ExternalClaims{}, ErrMalformed
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{
			jwt.SigningMethodRS256.Alg(),
			jwt.SigningMethodRS512.Alg(),
		}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
	)

	var claims ExternalClaims
	_, err := parser.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return v.key, nil
	})
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenExpired):
		return ExternalClaims{}, ErrExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ExternalClaims{}, ErrInvalidSig
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ExternalClaims{}, ErrMalformed
	default:
		return ExternalClaims{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	if claims.Subject == "" {
		return ExternalClaims{}, fmt.Errorf("%w: sub", ErrMissingClaim)
	}
	if claims.Email == "" {
		return ExternalClaims{}, fmt.Errorf("%w: email", ErrMissingClaim)
	}
	if claims.ExpiresAt == nil {
		return ExternalClaims{}, fmt.Errorf("%w: exp", ErrMissingClaim)
	}

	return claims, nil
}
