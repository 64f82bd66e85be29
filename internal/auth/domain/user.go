package domain

import "time"

// Role names used across the platform. Kept as a validated closed set so
// typos in role checks fail loudly instead of silently denying access.
const (
	RoleAdmin    = "admin"
	RolePCO      = "pco"
	RoleVendor   = "vendor"
	RoleReviewer = "reviewer"
	RoleUser     = "user"
)

var knownRoles = map[string]struct{}{
	RoleAdmin:    {},
	RolePCO:      {},
	RoleVendor:   {},
	RoleReviewer: {},
	RoleUser:     {},
}

// IsKnownRole reports whether name is one of the platform's roles.
func IsKnownRole(name string) bool {
	_, ok := knownRoles[name]
	return ok
}

// User is an authenticatable principal. PasswordHash is nil for SSO-only
// accounts. Roles are space-delimited in storage and a slice here.
type User struct {
	ID            string
	Username      string
	Email         string
	PreferredName string
	FirstName     string
	LastName      string
	PasswordHash  *string // argon2id encoded; nil for SSO-only accounts
	Roles         []string
	SSOSubject    *string // external identity provider subject, nil when local-only

	MFASecret    *string    // TOTP secret, base32; nil when not enrolled
	MFAEnabledAt *time.Time // set once the user has confirmed a code

	LastLoginAt        *time.Time
	LastLoginIP        *string
	LastLoginUserAgent *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// MFAEnabled reports whether the user has completed TOTP enrollment.
func (u User) MFAEnabled() bool {
	return u.MFAEnabledAt != nil && u.MFASecret != nil
}

// Summary is the client-facing projection of a user. It never includes
// credential material.
type Summary struct {
	ID            string   `json:"id"`
	Username      string   `json:"username"`
	Email         string   `json:"email"`
	PreferredName string   `json:"preferred_name,omitempty"`
	Roles         []string `json:"roles"`
}

// Summarize returns the client-facing projection of u.
func (u User) Summarize() Summary {
	return Summary{
		ID:            u.ID,
		Username:      u.Username,
		Email:         u.Email,
		PreferredName: u.PreferredName,
		Roles:         u.Roles,
	}
}
