package service

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"time"

	"github.com/transitra/transitra/internal/auth/domain"
	"github.com/transitra/transitra/internal/auth/metrics"
	"github.com/transitra/transitra/internal/auth/store"
	"github.com/transitra/transitra/pkg/cryptox"
	"github.com/transitra/transitra/pkg/idx"
	"github.com/transitra/transitra/pkg/slogx"
)

// DefaultMaxSessions caps concurrent sessions per user. When the cap is
// reached the oldest sessions are evicted to make room, atomically with the
// new session's insert.
const DefaultMaxSessions = 5

const (
	// Session retention bounds for housekeeping: sessions older than
	// sessionMaxAge and unused for sessionIdleAge are abandoned and
	// removed regardless of expiry.
	sessionMaxAge  = 30 * 24 * time.Hour
	sessionIdleAge = 7 * 24 * time.Hour

	// Window over which the suspicious-activity heuristics look at a
	// user's sessions.
	suspicionWindow = 24 * time.Hour
)

// SessionService owns refresh-session lifecycle: creation with cap
// enforcement, revocation, cleanup and the anomaly heuristics.
type SessionService struct {
	Store       store.Store
	MaxSessions int
	Metrics     *metrics.Metrics

	// now is swappable for tests.
	Now func() time.Time
}

func (s *SessionService) maxSessions() int {
	if s.MaxSessions > 0 {
		return s.MaxSessions
	}
	return DefaultMaxSessions
}

func (s *SessionService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// ComputeFingerprint derives the creation-time forensic fingerprint of a
// session from the client's user agent, IP and the creation instant. It is
// stored alongside the session for audit, never compared for access control.
func ComputeFingerprint(userAgent, ip *string, at time.Time) string {
	h := sha256.New()
	if userAgent != nil {
		h.Write([]byte(*userAgent))
	}
	h.Write([]byte{0})
	if ip != nil {
		h.Write([]byte(*ip))
	}
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatInt(at.UnixNano(), 10)))
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}

// CreateSession records a refresh session for the user. If the user already
// holds the maximum number of active sessions, the oldest ones are deleted
// in the same transaction so the cap holds even under concurrent logins.
func (s *SessionService) CreateSession(ctx context.Context, sessionID, userID, refreshToken string, userAgent, ip *string, expiresAt time.Time) (domain.Session, error) {
	now := s.now().UTC()
	if sessionID == "" {
		sessionID = idx.New().String()
	}
	session := domain.Session{
		ID:          sessionID,
		UserID:      userID,
		TokenHash:   cryptox.FingerprintToken(refreshToken),
		Fingerprint: ComputeFingerprint(userAgent, ip, now),
		UserAgent:   userAgent,
		IPAddress:   ip,
		ExpiresAt:   expiresAt.UTC(),
		IsActive:    true,
		CreatedAt:   now,
		LastUsedAt:  now,
	}

	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		active, err := tx.Sessions().ListActiveSessions(ctx, userID, now)
		if err != nil {
			return err
		}
		if excess := len(active) - s.maxSessions() + 1; excess > 0 {
			ids := make([]string, 0, excess)
			for _, old := range active[:excess] {
				ids = append(ids, old.ID)
			}
			if err := tx.Sessions().DeleteSessions(ctx, ids); err != nil {
				return err
			}
			s.Metrics.SessionsEvicted(len(ids))
			slogx.FromContext(ctx).Warn("evicted sessions over per-user cap",
				"user_id", userID, "evicted", len(ids))
		}
		return tx.Sessions().CreateSession(ctx, session)
	})
	if err != nil {
		return domain.Session{}, fmt.Errorf("create session: %w", err)
	}
	return session, nil
}

// ListSessions returns the user's active sessions, oldest first.
func (s *SessionService) ListSessions(ctx context.Context, userID string) ([]domain.Session, error) {
	return s.Store.Sessions().ListActiveSessions(ctx, userID, s.now().UTC())
}

// RevokeSession deactivates one of the user's sessions by id.
func (s *SessionService) RevokeSession(ctx context.Context, userID, sessionID string) error {
	return s.Store.Sessions().DeactivateSessionByID(ctx, userID, sessionID)
}

// DetectSuspiciousActivity scores the user's sessions from the last 24
// hours. Weights accumulate per triggered signal and the score is capped
// at 1.0:
//
//	distinct IPs > 2          +0.4
//	distinct user agents > 2  +0.3
//	sessions > 3              +0.2
//	distinct IPs > 3          +0.3
func (s *SessionService) DetectSuspiciousActivity(ctx context.Context, userID string) (domain.SuspiciousActivity, error) {
	since := s.now().UTC().Add(-suspicionWindow)
	sessions, err := s.Store.Sessions().ListActiveSessionsSince(ctx, userID, since)
	if err != nil {
		return domain.SuspiciousActivity{}, fmt.Errorf("detect suspicious activity: %w", err)
	}

	ips := make(map[string]struct{})
	agents := make(map[string]struct{})
	for _, sess := range sessions {
		if sess.IPAddress != nil {
			ips[*sess.IPAddress] = struct{}{}
		}
		if sess.UserAgent != nil {
			agents[*sess.UserAgent] = struct{}{}
		}
	}

	var report domain.SuspiciousActivity
	if len(ips) > 2 {
		report.MultipleIPs = true
		report.RiskScore += 0.4
	}
	if len(agents) > 2 {
		report.MultipleBrowsers = true
		report.RiskScore += 0.3
	}
	if len(sessions) > 3 {
		report.RiskScore += 0.2
	}
	if len(ips) > 3 {
		report.RiskScore += 0.3
	}
	if report.RiskScore > 1.0 {
		report.RiskScore = 1.0
	}
	if report.RiskScore > 0 {
		slogx.FromContext(ctx).Warn("suspicious session activity",
			"user_id", userID,
			"risk_score", report.RiskScore,
			"distinct_ips", len(ips),
			"distinct_agents", len(agents),
			"sessions", len(sessions))
	}
	return report, nil
}

// CleanupExpiredSessions removes sessions that are expired, deactivated, or
// abandoned. Returns the number of rows removed.
func (s *SessionService) CleanupExpiredSessions(ctx context.Context) (int64, error) {
	now := s.now().UTC()
	removed, err := s.Store.Sessions().DeleteDefunctSessions(ctx, now, now.Add(-sessionMaxAge), now.Add(-sessionIdleAge))
	if err != nil {
		return 0, fmt.Errorf("cleanup sessions: %w", err)
	}
	s.Metrics.SessionsCleaned(removed)
	return removed, nil
}
