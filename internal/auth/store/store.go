package store

import (
	"context"
	"errors"
	"time"

	"github.com/transitra/transitra/internal/auth/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface. Concrete drivers (sqlite today)
// implement this. Sub-repositories keep concerns tidy and make it obvious
// which operations may participate in a transaction.
type Store interface {
	Users() Users
	Sessions() Sessions

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx executes fn within a transaction, committing when fn returns
	// nil and rolling back otherwise. The recommended way to do multi-step
	// operations that must be atomic, such as session eviction + insert.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases the underlying resources.
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store. Same repos plus Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Users interface {
	// GetUserByID returns a user by id.
	GetUserByID(ctx context.Context, id string) (domain.User, error)

	// GetUserByEmail looks a user up by normalized (lowercased) email.
	// This is the password-login lookup path.
	GetUserByEmail(ctx context.Context, email string) (domain.User, error)

	// GetUserBySSOSubject looks a user up by external provider subject.
	GetUserBySSOSubject(ctx context.Context, subject string) (domain.User, error)

	// CreateUser inserts a new user (id is provided by the app via ULID).
	CreateUser(ctx context.Context, u domain.User) error

	// UpdatePasswordHash sets the password hash and bumps updated_at.
	UpdatePasswordHash(ctx context.Context, userID string, newHash string) error

	// UpdateRoles replaces the user's role set.
	UpdateRoles(ctx context.Context, userID string, roles []string) error

	// LinkSSOSubject attaches an external provider subject to an existing
	// account, matched by email on first SSO login.
	LinkSSOSubject(ctx context.Context, userID string, subject string) error

	// RecordLogin stores last-login metadata. Best-effort: callers treat
	// failures as log-only.
	RecordLogin(ctx context.Context, userID string, at time.Time, ip, userAgent *string) error

	// UpdateMFASecret sets the pending TOTP secret for a user.
	UpdateMFASecret(ctx context.Context, userID string, secret string) error

	// EnableMFA marks TOTP enrollment as confirmed.
	EnableMFA(ctx context.Context, userID string, at time.Time) error

	// DisableMFA clears the TOTP secret and enrollment timestamp.
	DisableMFA(ctx context.Context, userID string) error

	// IsEmpty reports whether there are no users.
	IsEmpty(ctx context.Context) (bool, error)
}

type Sessions interface {
	// CreateSession inserts a new session row.
	CreateSession(ctx context.Context, s domain.Session) error

	// GetSessionByTokenHash returns a session by its refresh-token
	// fingerprint.
	GetSessionByTokenHash(ctx context.Context, hash string) (domain.Session, error)

	// ListActiveSessions returns the user's active, unexpired sessions
	// ordered oldest first.
	ListActiveSessions(ctx context.Context, userID string, now time.Time) ([]domain.Session, error)

	// ListActiveSessionsSince returns active sessions created after the
	// given instant, for the anomaly heuristics.
	ListActiveSessionsSince(ctx context.Context, userID string, since time.Time) ([]domain.Session, error)

	// DeactivateSession flips is_active off. Used by logout.
	DeactivateSession(ctx context.Context, tokenHash string) error

	// DeactivateSessionByID flips is_active off for a session owned by the
	// given user. Used by per-session revocation.
	DeactivateSessionByID(ctx context.Context, userID, sessionID string) error

	// DeleteSessions hard-deletes session rows by id. Used for eviction
	// when the per-user cap is reached.
	DeleteSessions(ctx context.Context, ids []string) error

	// TouchSession bumps last_used_at.
	TouchSession(ctx context.Context, tokenHash string, at time.Time) error

	// DeleteDefunctSessions removes sessions that are expired, inactive,
	// or abandoned (created before createdBefore and unused since
	// unusedSince). Returns the number of rows removed.
	DeleteDefunctSessions(ctx context.Context, now, createdBefore, unusedSince time.Time) (int64, error)
}
