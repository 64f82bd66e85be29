package sqlite

import (
	"context"
	"strings"
	"time"

	"github.com/transitra/transitra/internal/auth/domain"
	"github.com/transitra/transitra/internal/auth/store"
)

const userColumns = `id, username, email, preferred_name, first_name, last_name,
	password_hash, roles, sso_subject, mfa_secret, mfa_enabled_at,
	last_login_at, last_login_ip, last_login_user_agent, created_at, updated_at`

type usersRepo struct {
	db dbtx
}

func (r *usersRepo) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}
	return u, nil
}

func (r *usersRepo) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ?`, strings.ToLower(strings.TrimSpace(email)))
	u, err := scanUser(row)
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}
	return u, nil
}

func (r *usersRepo) GetUserBySSOSubject(ctx context.Context, subject string) (domain.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE sso_subject = ?`, subject)
	u, err := scanUser(row)
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}
	return u, nil
}

func (r *usersRepo) CreateUser(ctx context.Context, u domain.User) error {
	now := time.Now().UTC()
	createdAt := u.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (
			id, username, email, preferred_name, first_name, last_name,
			password_hash, roles, sso_subject, mfa_secret, mfa_enabled_at,
			last_login_at, last_login_ip, last_login_user_agent, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID,
		u.Username,
		strings.ToLower(strings.TrimSpace(u.Email)),
		u.PreferredName,
		u.FirstName,
		u.LastName,
		mapOptionalString(u.PasswordHash),
		joinRoles(u.Roles),
		mapOptionalString(u.SSOSubject),
		mapOptionalString(u.MFASecret),
		mapOptionalTime(u.MFAEnabledAt),
		mapOptionalTime(u.LastLoginAt),
		mapOptionalString(u.LastLoginIP),
		mapOptionalString(u.LastLoginUserAgent),
		createdAt,
		createdAt,
	)
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return store.ErrAlreadyExists
	}
	return err
}

func (r *usersRepo) UpdatePasswordHash(ctx context.Context, userID string, newHash string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`,
		newHash, time.Now().UTC(), userID)
	return oneRowAffected(res, err)
}

func (r *usersRepo) UpdateRoles(ctx context.Context, userID string, roles []string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET roles = ?, updated_at = ? WHERE id = ?`,
		joinRoles(roles), time.Now().UTC(), userID)
	return oneRowAffected(res, err)
}

func (r *usersRepo) LinkSSOSubject(ctx context.Context, userID string, subject string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET sso_subject = ?, updated_at = ? WHERE id = ?`,
		subject, time.Now().UTC(), userID)
	return oneRowAffected(res, err)
}

func (r *usersRepo) RecordLogin(ctx context.Context, userID string, at time.Time, ip, userAgent *string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE users SET last_login_at = ?, last_login_ip = ?, last_login_user_agent = ?
		WHERE id = ?`,
		at.UTC(), mapOptionalString(ip), mapOptionalString(userAgent), userID)
	return err
}

func (r *usersRepo) UpdateMFASecret(ctx context.Context, userID string, secret string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET mfa_secret = ?, updated_at = ? WHERE id = ?`,
		secret, time.Now().UTC(), userID)
	return oneRowAffected(res, err)
}

func (r *usersRepo) EnableMFA(ctx context.Context, userID string, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET mfa_enabled_at = ?, updated_at = ? WHERE id = ?`,
		at.UTC(), time.Now().UTC(), userID)
	return oneRowAffected(res, err)
}

func (r *usersRepo) DisableMFA(ctx context.Context, userID string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET mfa_secret = NULL, mfa_enabled_at = NULL, updated_at = ? WHERE id = ?`,
		time.Now().UTC(), userID)
	return oneRowAffected(res, err)
}

func (r *usersRepo) IsEmpty(ctx context.Context) (bool, error) {
	var count int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count); err != nil {
		return false, err
	}
	return count == 0, nil
}
