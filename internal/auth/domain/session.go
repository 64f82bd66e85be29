package domain

import "time"

// Session ties a refresh token to a user together with its creation
// context. The raw refresh token is never stored; TokenHash is its SHA-256
// fingerprint.
//
// Lifecycle: CREATED -> ACTIVE -> {LOGGED_OUT | EXPIRED | EVICTED}. All
// terminal states stop the session from granting access; they are
// distinguished only in audit logs.
type Session struct {
	ID          string
	UserID      string
	TokenHash   string
	Fingerprint string  // creation-time forensic fingerprint, see ComputeFingerprint
	UserAgent   *string // nil when the client sent none
	IPAddress   *string
	ExpiresAt   time.Time
	IsActive    bool
	CreatedAt   time.Time
	LastUsedAt  time.Time
}

// Expired reports whether the session has passed its expiry at the given
// instant.
func (s Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// SuspiciousActivity is the heuristic risk report over a user's recent
// sessions. It feeds alerting, never a hard block.
type SuspiciousActivity struct {
	MultipleIPs      bool    `json:"multiple_ips"`
	MultipleBrowsers bool    `json:"multiple_browsers"`
	RiskScore        float64 `json:"risk_score"` // in [0, 1]
}
