package cryptox

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters. Sized so that a single hash dominates the verify
// path at roughly 50-200ms on commodity hardware; login latency being
// hash-bound is the intended trade-off.
const (
	memory      = 64 * 1024 // KiB
	iterations  = 3
	parallelism = 2
	keyLength   = 32
	saltLength  = 16
)

// Password length bounds. The upper bound exists so a client cannot feed
// multi-megabyte passwords into the KDF.
const (
	MinPasswordLength = 8
	MaxPasswordLength = 128
)

var (
	// ErrWeakPassword is returned when the password is on the deny-list of
	// common values. Safe to show to the caller.
	ErrWeakPassword = errors.New("cryptox: password is too common")

	// ErrPasswordPolicy is returned when the password fails length or
	// complexity requirements. Safe to show to the caller.
	ErrPasswordPolicy = errors.New("cryptox: password does not meet policy")
)

// deniedPasswords are matched case-insensitively before any hashing work.
// Deliberately short; broad breach-corpus checks belong to an upstream
// identity product, not this service.
var deniedPasswords = map[string]struct{}{
	"password":    {},
	"password1":   {},
	"password123": {},
	"12345678":    {},
	"123456789":   {},
	"1234567890":  {},
	"qwerty123":   {},
	"qwertyuiop":  {},
	"letmein1":    {},
	"iloveyou1":   {},
	"admin123":    {},
	"welcome1":    {},
	"changeme":    {},
	"sunshine1":   {},
	"trustno1":    {},
}

// CheckPolicy validates password strength without hashing. Returns
// ErrWeakPassword for deny-listed values and ErrPasswordPolicy for length
// or complexity failures.
func CheckPolicy(password string) error {
	if _, ok := deniedPasswords[strings.ToLower(password)]; ok {
		return ErrWeakPassword
	}

	if len(password) < MinPasswordLength {
		return fmt.Errorf("%w: must be at least %d characters", ErrPasswordPolicy, MinPasswordLength)
	}
	if len(password) > MaxPasswordLength {
		return fmt.Errorf("%w: must be at most %d characters", ErrPasswordPolicy, MaxPasswordLength)
	}

	var hasLower, hasUpper, hasDigit, hasSymbol bool
	for _, r := range password {
		switch {
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsDigit(r):
			hasDigit = true
		default:
			hasSymbol = true
		}
	}

	classes := 0
	for _, ok := range []bool{hasLower, hasUpper, hasDigit, hasSymbol} {
		if ok {
			classes++
		}
	}
	if classes < 3 {
		return fmt.Errorf(
			"%w: must contain at least 3 of lowercase, uppercase, digit, symbol",
			ErrPasswordPolicy,
		)
	}

	return nil
}

// HashPassword enforces the password policy and returns a PHC-format
// Argon2id hash string including salt and parameters.
func HashPassword(password string) (string, error) {
	if err := CheckPolicy(password); err != nil {
		return "", err
	}

	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}

	hash := argon2.IDKey(
		[]byte(password+GetPepper()),
		salt,
		iterations,
		memory,
		parallelism,
		keyLength,
	)

	return fmt.Sprintf(
		"$argon2id$v=19$m=%d,t=%d,p=%d$%s$%s",
		memory,
		iterations,
		parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	), nil
}

// VerifyPassword compares a plaintext password against a PHC-style Argon2id
// hash. The comparison recomputes the full KDF and uses a constant-time
// compare, so latency does not depend on where a mismatch occurs.
func VerifyPassword(password, encodedHash string) error {
	parts := strings.Split(encodedHash, "$")

	// Expected: ["", "argon2id", "v=19", "m=X,t=Y,p=Z", salt, hash]
	if len(parts) != 6 {
		return errors.New("cryptox: invalid hash format: expected 6 parts")
	}
	if parts[1] != "argon2id" {
		return errors.New("cryptox: invalid hash format: not argon2id")
	}
	if parts[2] != "v=19" {
		return errors.New("cryptox: invalid hash format: wrong version")
	}

	var mem, iters uint32
	var par uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &mem, &iters, &par); err != nil {
		return fmt.Errorf("cryptox: invalid hash format: parse parameters: %w", err)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return fmt.Errorf("cryptox: invalid hash format: decode salt: %w", err)
	}
	expected, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return fmt.Errorf("cryptox: invalid hash format: decode hash: %w", err)
	}

	computed := argon2.IDKey(
		[]byte(password+GetPepper()),
		salt,
		iters,
		mem,
		par,
		uint32(len(expected)), // #nosec G115 - hash lengths are bounded by the PHC format
	)

	if subtle.ConstantTimeCompare(computed, expected) == 1 {
		return nil
	}
	return errors.New("cryptox: password does not match")
}

// DummyVerify burns one full Argon2id computation against a throwaway hash.
// The login path calls this when the account does not exist so that unknown
// and known usernames cost the same wall-clock time.
func DummyVerify(password string) {
	salt := make([]byte, saltLength)
	_ = argon2.IDKey([]byte(password+GetPepper()), salt, iterations, memory, parallelism, keyLength)
}
