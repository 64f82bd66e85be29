package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/transitra/transitra/internal/auth/domain"
	"github.com/transitra/transitra/internal/auth/store"
	"github.com/transitra/transitra/pkg/idx"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	st, err := NewStore(filepath.Join(t.TempDir(), "auth.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	require.NoError(t, st.ApplyMigrations())
	return st
}

func strptr(s string) *string { return &s }

func newUser(email string) domain.User {
	now := time.Now().UTC().Truncate(time.Second)
	return domain.User{
		ID:        idx.New().String(),
		Username:  email,
		Email:     email,
		Roles:     []string{domain.RoleUser},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func newSession(userID string, expiresAt time.Time) domain.Session {
	now := time.Now().UTC().Truncate(time.Second)
	return domain.Session{
		ID:          idx.New().String(),
		UserID:      userID,
		TokenHash:   idx.New().String(),
		Fingerprint: idx.New().String(),
		ExpiresAt:   expiresAt,
		IsActive:    true,
		CreatedAt:   now,
		LastUsedAt:  now,
	}
}

func TestUsersRepo(t *testing.T) {
	ctx := context.Background()

	t.Run("round trip", func(t *testing.T) {
		st := newTestStore(t)

		u := newUser("alice@example.com")
		u.PasswordHash = strptr("argon2-blob")
		u.PreferredName = "Ally"
		require.NoError(t, st.Users().CreateUser(ctx, u))

		got, err := st.Users().GetUserByID(ctx, u.ID)
		require.NoError(t, err)
		require.Equal(t, u.Email, got.Email)
		require.Equal(t, "Ally", got.PreferredName)
		require.NotNil(t, got.PasswordHash)
		require.Equal(t, "argon2-blob", *got.PasswordHash)
		require.Equal(t, []string{domain.RoleUser}, got.Roles)
		require.Nil(t, got.SSOSubject)
		require.Nil(t, got.LastLoginAt)
	})

	t.Run("email is stored and looked up case insensitively", func(t *testing.T) {
		st := newTestStore(t)

		u := newUser("bob@example.com")
		u.Email = "Bob@Example.COM"
		require.NoError(t, st.Users().CreateUser(ctx, u))

		got, err := st.Users().GetUserByEmail(ctx, "  bob@example.com ")
		require.NoError(t, err)
		require.Equal(t, u.ID, got.ID)
		require.Equal(t, "bob@example.com", got.Email)
	})

	t.Run("duplicate email", func(t *testing.T) {
		st := newTestStore(t)

		require.NoError(t, st.Users().CreateUser(ctx, newUser("dup@example.com")))
		err := st.Users().CreateUser(ctx, newUser("dup@example.com"))
		require.ErrorIs(t, err, store.ErrAlreadyExists)
	})

	t.Run("missing user", func(t *testing.T) {
		st := newTestStore(t)

		_, err := st.Users().GetUserByID(ctx, "no-such-user")
		require.ErrorIs(t, err, store.ErrNotFound)

		require.ErrorIs(t, st.Users().UpdateRoles(ctx, "no-such-user", []string{domain.RoleAdmin}), store.ErrNotFound)
	})

	t.Run("sso subject lookup and linking", func(t *testing.T) {
		st := newTestStore(t)

		u := newUser("sso@example.com")
		require.NoError(t, st.Users().CreateUser(ctx, u))

		_, err := st.Users().GetUserBySSOSubject(ctx, "subject-1")
		require.ErrorIs(t, err, store.ErrNotFound)

		require.NoError(t, st.Users().LinkSSOSubject(ctx, u.ID, "subject-1"))

		got, err := st.Users().GetUserBySSOSubject(ctx, "subject-1")
		require.NoError(t, err)
		require.Equal(t, u.ID, got.ID)
	})

	t.Run("roles round trip deduplicated", func(t *testing.T) {
		st := newTestStore(t)

		u := newUser("roles@example.com")
		require.NoError(t, st.Users().CreateUser(ctx, u))
		require.NoError(t, st.Users().UpdateRoles(ctx, u.ID, []string{domain.RolePCO, domain.RoleAdmin, domain.RolePCO}))

		got, err := st.Users().GetUserByID(ctx, u.ID)
		require.NoError(t, err)
		require.Equal(t, []string{domain.RolePCO, domain.RoleAdmin}, got.Roles)
	})

	t.Run("record login", func(t *testing.T) {
		st := newTestStore(t)

		u := newUser("meta@example.com")
		require.NoError(t, st.Users().CreateUser(ctx, u))

		at := time.Now().UTC().Truncate(time.Second)
		require.NoError(t, st.Users().RecordLogin(ctx, u.ID, at, strptr("192.0.2.7"), strptr("curl/8.0")))

		got, err := st.Users().GetUserByID(ctx, u.ID)
		require.NoError(t, err)
		require.NotNil(t, got.LastLoginAt)
		require.True(t, got.LastLoginAt.Equal(at))
		require.Equal(t, "192.0.2.7", *got.LastLoginIP)
		require.Equal(t, "curl/8.0", *got.LastLoginUserAgent)
	})

	t.Run("mfa lifecycle", func(t *testing.T) {
		st := newTestStore(t)

		u := newUser("mfa@example.com")
		require.NoError(t, st.Users().CreateUser(ctx, u))

		require.NoError(t, st.Users().UpdateMFASecret(ctx, u.ID, "BASE32SECRET"))
		got, err := st.Users().GetUserByID(ctx, u.ID)
		require.NoError(t, err)
		require.Equal(t, "BASE32SECRET", *got.MFASecret)
		require.False(t, got.MFAEnabled())

		require.NoError(t, st.Users().EnableMFA(ctx, u.ID, time.Now().UTC()))
		got, err = st.Users().GetUserByID(ctx, u.ID)
		require.NoError(t, err)
		require.True(t, got.MFAEnabled())

		require.NoError(t, st.Users().DisableMFA(ctx, u.ID))
		got, err = st.Users().GetUserByID(ctx, u.ID)
		require.NoError(t, err)
		require.False(t, got.MFAEnabled())
		require.Nil(t, got.MFASecret)
	})

	t.Run("is empty", func(t *testing.T) {
		st := newTestStore(t)

		empty, err := st.Users().IsEmpty(ctx)
		require.NoError(t, err)
		require.True(t, empty)

		require.NoError(t, st.Users().CreateUser(ctx, newUser("first@example.com")))

		empty, err = st.Users().IsEmpty(ctx)
		require.NoError(t, err)
		require.False(t, empty)
	})
}

func TestSessionsRepo(t *testing.T) {
	ctx := context.Background()

	t.Run("round trip by token hash", func(t *testing.T) {
		st := newTestStore(t)
		u := newUser("s1@example.com")
		require.NoError(t, st.Users().CreateUser(ctx, u))

		s := newSession(u.ID, time.Now().Add(time.Hour))
		s.UserAgent = strptr("firefox")
		s.IPAddress = strptr("192.0.2.10")
		require.NoError(t, st.Sessions().CreateSession(ctx, s))

		got, err := st.Sessions().GetSessionByTokenHash(ctx, s.TokenHash)
		require.NoError(t, err)
		require.Equal(t, s.ID, got.ID)
		require.Equal(t, u.ID, got.UserID)
		require.Equal(t, "firefox", *got.UserAgent)
		require.True(t, got.IsActive)

		_, err = st.Sessions().GetSessionByTokenHash(ctx, "no-such-hash")
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("active listing is oldest first and skips dead sessions", func(t *testing.T) {
		st := newTestStore(t)
		u := newUser("s2@example.com")
		require.NoError(t, st.Users().CreateUser(ctx, u))

		now := time.Now().UTC().Truncate(time.Second)

		oldest := newSession(u.ID, now.Add(time.Hour))
		oldest.CreatedAt = now.Add(-3 * time.Hour)
		newest := newSession(u.ID, now.Add(time.Hour))
		newest.CreatedAt = now.Add(-time.Hour)
		expired := newSession(u.ID, now.Add(-time.Minute))
		revoked := newSession(u.ID, now.Add(time.Hour))
		revoked.IsActive = false

		for _, s := range []domain.Session{newest, oldest, expired, revoked} {
			require.NoError(t, st.Sessions().CreateSession(ctx, s))
		}

		active, err := st.Sessions().ListActiveSessions(ctx, u.ID, now)
		require.NoError(t, err)
		require.Len(t, active, 2)
		require.Equal(t, oldest.ID, active[0].ID)
		require.Equal(t, newest.ID, active[1].ID)
	})

	t.Run("deactivate by id is scoped to the owner", func(t *testing.T) {
		st := newTestStore(t)
		owner := newUser("owner@example.com")
		other := newUser("other@example.com")
		require.NoError(t, st.Users().CreateUser(ctx, owner))
		require.NoError(t, st.Users().CreateUser(ctx, other))

		s := newSession(owner.ID, time.Now().Add(time.Hour))
		require.NoError(t, st.Sessions().CreateSession(ctx, s))

		require.ErrorIs(t, st.Sessions().DeactivateSessionByID(ctx, other.ID, s.ID), store.ErrNotFound)
		require.NoError(t, st.Sessions().DeactivateSessionByID(ctx, owner.ID, s.ID))

		got, err := st.Sessions().GetSessionByTokenHash(ctx, s.TokenHash)
		require.NoError(t, err)
		require.False(t, got.IsActive)
	})

	t.Run("touch updates last used", func(t *testing.T) {
		st := newTestStore(t)
		u := newUser("touch@example.com")
		require.NoError(t, st.Users().CreateUser(ctx, u))

		s := newSession(u.ID, time.Now().Add(time.Hour))
		require.NoError(t, st.Sessions().CreateSession(ctx, s))

		at := time.Now().UTC().Add(10 * time.Minute).Truncate(time.Second)
		require.NoError(t, st.Sessions().TouchSession(ctx, s.TokenHash, at))

		got, err := st.Sessions().GetSessionByTokenHash(ctx, s.TokenHash)
		require.NoError(t, err)
		require.True(t, got.LastUsedAt.Equal(at))
	})

	t.Run("delete defunct sessions", func(t *testing.T) {
		st := newTestStore(t)
		u := newUser("gc@example.com")
		require.NoError(t, st.Users().CreateUser(ctx, u))

		now := time.Now().UTC().Truncate(time.Second)

		live := newSession(u.ID, now.Add(2*time.Hour))
		expired := newSession(u.ID, now.Add(-time.Hour))
		revoked := newSession(u.ID, now.Add(time.Hour))
		revoked.IsActive = false
		abandoned := newSession(u.ID, now.Add(time.Hour))
		abandoned.CreatedAt = now.Add(-40 * 24 * time.Hour)
		abandoned.LastUsedAt = now.Add(-10 * 24 * time.Hour)

		for _, s := range []domain.Session{live, expired, revoked, abandoned} {
			require.NoError(t, st.Sessions().CreateSession(ctx, s))
		}

		removed, err := st.Sessions().DeleteDefunctSessions(ctx, now,
			now.Add(-30*24*time.Hour), now.Add(-7*24*time.Hour))
		require.NoError(t, err)
		require.EqualValues(t, 3, removed)

		remaining, err := st.Sessions().ListActiveSessions(ctx, u.ID, now)
		require.NoError(t, err)
		require.Len(t, remaining, 1)
		require.Equal(t, live.ID, remaining[0].ID)
	})

	t.Run("old but recently used sessions survive", func(t *testing.T) {
		st := newTestStore(t)
		u := newUser("gc2@example.com")
		require.NoError(t, st.Users().CreateUser(ctx, u))

		now := time.Now().UTC().Truncate(time.Second)
		s := newSession(u.ID, now.Add(time.Hour))
		s.CreatedAt = now.Add(-40 * 24 * time.Hour)
		s.LastUsedAt = now.Add(-time.Hour)
		require.NoError(t, st.Sessions().CreateSession(ctx, s))

		removed, err := st.Sessions().DeleteDefunctSessions(ctx, now,
			now.Add(-30*24*time.Hour), now.Add(-7*24*time.Hour))
		require.NoError(t, err)
		require.Zero(t, removed)
	})

	t.Run("deleting a user cascades to sessions", func(t *testing.T) {
		st := newTestStore(t)
		u := newUser("cascade@example.com")
		require.NoError(t, st.Users().CreateUser(ctx, u))

		s := newSession(u.ID, time.Now().Add(time.Hour))
		require.NoError(t, st.Sessions().CreateSession(ctx, s))

		_, err := st.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, u.ID)
		require.NoError(t, err)

		_, err = st.Sessions().GetSessionByTokenHash(ctx, s.TokenHash)
		require.ErrorIs(t, err, store.ErrNotFound)
	})
}

func TestWithTx(t *testing.T) {
	ctx := context.Background()

	t.Run("commit on success", func(t *testing.T) {
		st := newTestStore(t)
		u := newUser("tx@example.com")
		require.NoError(t, st.Users().CreateUser(ctx, u))

		s := newSession(u.ID, time.Now().Add(time.Hour))
		err := st.WithTx(ctx, func(tx store.Tx) error {
			return tx.Sessions().CreateSession(ctx, s)
		})
		require.NoError(t, err)

		_, err = st.Sessions().GetSessionByTokenHash(ctx, s.TokenHash)
		require.NoError(t, err)
	})

	t.Run("rollback on error", func(t *testing.T) {
		st := newTestStore(t)
		u := newUser("tx2@example.com")
		require.NoError(t, st.Users().CreateUser(ctx, u))

		s := newSession(u.ID, time.Now().Add(time.Hour))
		boom := errors.New("boom")
		err := st.WithTx(ctx, func(tx store.Tx) error {
			if err := tx.Sessions().CreateSession(ctx, s); err != nil {
				return err
			}
			return boom
		})
		require.ErrorIs(t, err, boom)

		_, err = st.Sessions().GetSessionByTokenHash(ctx, s.TokenHash)
		require.ErrorIs(t, err, store.ErrNotFound)
	})
}
