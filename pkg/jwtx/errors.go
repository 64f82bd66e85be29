package jwtx

import "errors"

var (
	ErrMalformed   = errors.New("jwtx: malformed token")
	ErrInvalidSig  = errors.New("jwtx: invalid signature")
	ErrExpired     = errors.New("jwtx: token expired")
	ErrNotYetValid = errors.New("jwtx: token not yet valid")

	// ErrMissingClaim reports a structurally valid token missing a claim we
	// require (subject, email or expiry depending on the verifier).
	ErrMissingClaim = errors.New("jwtx: required claim missing")

	// Configuration errors. These are fatal at bootstrap: the service must
	// not serve traffic with an absent or guessable signing secret.
	ErrSecretMissing  = errors.New("jwtx: signing secret must be configured")
	ErrSecretTooShort = errors.New("jwtx: signing secret must be at least 32 characters")
	ErrSecretDefault  = errors.New("jwtx: signing secret is a known default placeholder; default secrets must be replaced")
	ErrKeyMissing     = errors.New("jwtx: verification public key must be configured")
)
