package sqlite

import (
	"context"
	"strings"
	"time"

	"github.com/transitra/transitra/internal/auth/domain"
)

const sessionColumns = `id, user_id, token_hash, fingerprint, user_agent, ip_address,
	expires_at, is_active, created_at, last_used_at`

type sessionsRepo struct {
	db dbtx
}

func (r *sessionsRepo) CreateSession(ctx context.Context, s domain.Session) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sessions (
			id, user_id, token_hash, fingerprint, user_agent, ip_address,
			expires_at, is_active, created_at, last_used_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID,
		s.UserID,
		s.TokenHash,
		s.Fingerprint,
		mapOptionalString(s.UserAgent),
		mapOptionalString(s.IPAddress),
		s.ExpiresAt.UTC(),
		s.IsActive,
		s.CreatedAt.UTC(),
		s.LastUsedAt.UTC(),
	)
	return err
}

func (r *sessionsRepo) GetSessionByTokenHash(ctx context.Context, hash string) (domain.Session, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE token_hash = ?`, hash)
	s, err := scanSession(row)
	if err != nil {
		return domain.Session{}, mapNotFound(err)
	}
	return s, nil
}

func (r *sessionsRepo) ListActiveSessions(ctx context.Context, userID string, now time.Time) ([]domain.Session, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE user_id = ? AND is_active = 1 AND expires_at > ?
		ORDER BY created_at ASC, id ASC`,
		userID, now.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectSessions(rows)
}

func (r *sessionsRepo) ListActiveSessionsSince(ctx context.Context, userID string, since time.Time) ([]domain.Session, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE user_id = ? AND is_active = 1 AND created_at >= ?
		ORDER BY created_at ASC, id ASC`,
		userID, since.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectSessions(rows)
}

func (r *sessionsRepo) DeactivateSession(ctx context.Context, tokenHash string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET is_active = 0 WHERE token_hash = ?`, tokenHash)
	return oneRowAffected(res, err)
}

func (r *sessionsRepo) DeactivateSessionByID(ctx context.Context, userID, sessionID string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET is_active = 0 WHERE id = ? AND user_id = ?`, sessionID, userID)
	return oneRowAffected(res, err)
}

func (r *sessionsRepo) DeleteSessions(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	_, err := r.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE id IN (`+placeholders+`)`, args...)
	return err
}

func (r *sessionsRepo) TouchSession(ctx context.Context, tokenHash string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE sessions SET last_used_at = ? WHERE token_hash = ?`, at.UTC(), tokenHash)
	return err
}

func (r *sessionsRepo) DeleteDefunctSessions(ctx context.Context, now, createdBefore, unusedSince time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM sessions
		WHERE expires_at <= ?
		   OR is_active = 0
		   OR (created_at <= ? AND last_used_at <= ?)`,
		now.UTC(), createdBefore.UTC(), unusedSince.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func collectSessions(rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}) ([]domain.Session, error) {
	var out []domain.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
