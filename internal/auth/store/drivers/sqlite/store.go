package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/transitra/transitra/internal/auth/domain"
	"github.com/transitra/transitra/internal/auth/store"

	_ "modernc.org/sqlite"
)

// dbtx is the subset of *sql.DB and *sql.Tx the repositories need, so the
// same repo code serves both transactional and plain access.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Store struct {
	db  *sql.DB
	dsn string
}

func NewStore(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	// Enforce FKs so session rows cannot outlive their user.
	if _, err := db.ExecContext(context.Background(), `PRAGMA foreign_keys = ON;`); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db, dsn: dsn}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Ping verifies the database connection is still alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Tx starts a read/write transaction and returns a Tx-scoped Store.
func (s *Store) Tx(ctx context.Context) (store.Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &txStore{tx: tx}, nil
}

// WithTx executes fn within a transaction, automatically handling
// commit/rollback.
func (s *Store) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	tx, err := s.Tx(ctx)
	if err != nil {
		return err
	}

	defer func() {
		_ = tx.Rollback() // safe to call even after commit
	}()

	if err := fn(tx); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *Store) Users() store.Users       { return &usersRepo{db: s.db} }
func (s *Store) Sessions() store.Sessions { return &sessionsRepo{db: s.db} }

func mapNotFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

// oneRowAffected converts a zero-row UPDATE into store.ErrNotFound so
// callers can tell a missing row from a successful write.
func oneRowAffected(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func mapNullStringPtr(ns sql.NullString) *string {
	if ns.Valid {
		v := ns.String
		return &v
	}
	return nil
}

func mapOptionalString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func mapNullTimePtr(nt sql.NullTime) *time.Time {
	if nt.Valid {
		v := nt.Time
		return &v
	}
	return nil
}

func mapOptionalTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// joinRoles and splitRoles convert between the space-delimited storage form
// and the domain slice form.
func joinRoles(roles []string) string {
	return strings.Join(roles, " ")
}

func splitRoles(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	parts := strings.Fields(s)
	out := make([]string, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))
	for _, p := range parts {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

func scanUser(row interface{ Scan(dest ...any) error }) (domain.User, error) {
	var (
		u            domain.User
		passwordHash sql.NullString
		ssoSubject   sql.NullString
		mfaSecret    sql.NullString
		mfaEnabledAt sql.NullTime
		lastLoginAt  sql.NullTime
		lastLoginIP  sql.NullString
		lastLoginUA  sql.NullString
		rolesRaw     string
	)

	err := row.Scan(
		&u.ID,
		&u.Username,
		&u.Email,
		&u.PreferredName,
		&u.FirstName,
		&u.LastName,
		&passwordHash,
		&rolesRaw,
		&ssoSubject,
		&mfaSecret,
		&mfaEnabledAt,
		&lastLoginAt,
		&lastLoginIP,
		&lastLoginUA,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return domain.User{}, err
	}

	u.PasswordHash = mapNullStringPtr(passwordHash)
	u.SSOSubject = mapNullStringPtr(ssoSubject)
	u.MFASecret = mapNullStringPtr(mfaSecret)
	u.MFAEnabledAt = mapNullTimePtr(mfaEnabledAt)
	u.LastLoginAt = mapNullTimePtr(lastLoginAt)
	u.LastLoginIP = mapNullStringPtr(lastLoginIP)
	u.LastLoginUserAgent = mapNullStringPtr(lastLoginUA)
	u.Roles = splitRoles(rolesRaw)

	return u, nil
}

func scanSession(row interface{ Scan(dest ...any) error }) (domain.Session, error) {
	var (
		s         domain.Session
		userAgent sql.NullString
		ipAddress sql.NullString
	)

	err := row.Scan(
		&s.ID,
		&s.UserID,
		&s.TokenHash,
		&s.Fingerprint,
		&userAgent,
		&ipAddress,
		&s.ExpiresAt,
		&s.IsActive,
		&s.CreatedAt,
		&s.LastUsedAt,
	)
	if err != nil {
		return domain.Session{}, err
	}

	s.UserAgent = mapNullStringPtr(userAgent)
	s.IPAddress = mapNullStringPtr(ipAddress)

	return s, nil
}
