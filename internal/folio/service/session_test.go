package service

import (
	"context"
	"testing"
	"time"

	"github.com/aussiebroadwan/folio/internal/folio/domain"
	"github.com/aussiebroadwan/folio/pkg/cryptox"
	"github.com/stretchr/testify/require"
)

func TestSessionManager_CreateResolve(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	acct := env.createAccount(t, "editor@example.com", domain.RoleEditor)

	issued, err := env.sessions.Create(ctx, acct.ID, ClientMeta{UserAgent: "test-agent", IPAddress: "203.0.113.5"})
	require.NoError(t, err)
	require.True(t, cryptox.WellFormedToken(issued.Token, cryptox.TokenSize256))
	require.Equal(t, env.clock.Now().Add(DefaultSessionTTL), issued.ExpiresAt)
	require.NotEqual(t, issued.Token, issued.Session.TokenHash, "raw token must never be stored")

	s, a, err := env.sessions.Resolve(ctx, issued.Token)
	require.NoError(t, err)
	require.Equal(t, acct.ID, a.ID)
	require.Equal(t, issued.Session.ID, s.ID)
	require.Equal(t, "test-agent", s.UserAgent)
	require.True(t, IsCurrent(s, issued.Token))
}

func TestSessionManager_ResolveRejects(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	acct := env.createAccount(t, "editor@example.com", domain.RoleEditor)

	t.Run("malformed", func(t *testing.T) {
		for _, token := range []string{"", "short", "not base64 !!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!!"} {
			_, _, err := env.sessions.Resolve(ctx, token)
			require.ErrorIs(t, err, ErrUnauthenticated)
		}
	})

	t.Run("unknown", func(t *testing.T) {
		token, err := cryptox.GenerateToken(cryptox.TokenSize256)
		require.NoError(t, err)
		_, _, err = env.sessions.Resolve(ctx, token)
		require.ErrorIs(t, err, ErrUnauthenticated)
	})

	t.Run("destroyed", func(t *testing.T) {
		issued, err := env.sessions.Create(ctx, acct.ID, ClientMeta{})
		require.NoError(t, err)
		require.NoError(t, env.sessions.Destroy(ctx, issued.Token))

		_, _, err = env.sessions.Resolve(ctx, issued.Token)
		require.ErrorIs(t, err, ErrUnauthenticated)

		// Idempotent.
		require.NoError(t, env.sessions.Destroy(ctx, issued.Token))
		require.NoError(t, env.sessions.Destroy(ctx, "garbage"))
	})

	t.Run("disabled owner", func(t *testing.T) {
		other := env.createAccount(t, "viewer@example.com", domain.RoleViewer)
		issued, err := env.sessions.Create(ctx, other.ID, ClientMeta{})
		require.NoError(t, err)

		other.Active = false
		other.UpdatedAt = env.clock.Now()
		require.NoError(t, env.store.Accounts().Update(ctx, other))

		_, _, err = env.sessions.Resolve(ctx, issued.Token)
		require.ErrorIs(t, err, ErrUnauthenticated)
	})
}

func TestSessionManager_Expiry(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	acct := env.createAccount(t, "editor@example.com", domain.RoleEditor)

	issued, err := env.sessions.Create(ctx, acct.ID, ClientMeta{})
	require.NoError(t, err)

	env.clock.Advance(DefaultSessionTTL - time.Second)
	_, _, err = env.sessions.Resolve(ctx, issued.Token)
	require.NoError(t, err)

	env.clock.Advance(time.Second)
	_, _, err = env.sessions.Resolve(ctx, issued.Token)
	require.ErrorIs(t, err, ErrUnauthenticated)

	n, err := env.sessions.ReapExpired(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
}

func TestSessionManager_DestroyAllForAccount(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	acct := env.createAccount(t, "editor@example.com", domain.RoleEditor)
	other := env.createAccount(t, "viewer@example.com", domain.RoleViewer)

	keep, err := env.sessions.Create(ctx, acct.ID, ClientMeta{})
	require.NoError(t, err)
	var revoke []IssuedSession
	for range 3 {
		s, err := env.sessions.Create(ctx, acct.ID, ClientMeta{})
		require.NoError(t, err)
		revoke = append(revoke, s)
	}
	bystander, err := env.sessions.Create(ctx, other.ID, ClientMeta{})
	require.NoError(t, err)

	n, err := env.sessions.DestroyAllForAccount(ctx, acct.ID, keep.Token)
	require.NoError(t, err)
	require.Equal(t, int64(3), n)

	_, _, err = env.sessions.Resolve(ctx, keep.Token)
	require.NoError(t, err)
	for _, s := range revoke {
		_, _, err = env.sessions.Resolve(ctx, s.Token)
		require.ErrorIs(t, err, ErrUnauthenticated)
	}
	_, _, err = env.sessions.Resolve(ctx, bystander.Token)
	require.NoError(t, err)

	live, err := env.sessions.ListForAccount(ctx, acct.ID)
	require.NoError(t, err)
	require.Len(t, live, 1)

	n, err = env.sessions.DestroyAllForAccount(ctx, acct.ID, "")
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
	_, _, err = env.sessions.Resolve(ctx, keep.Token)
	require.ErrorIs(t, err, ErrUnauthenticated)
}

func TestSessionManager_ResolveTriggersReaper(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	acct := env.createAccount(t, "editor@example.com", domain.RoleEditor)

	var runs []ReapResult
	env.sessions.Reaper = &Reaper{
		Store:  env.store,
		Now:    env.clock.Now,
		Rand:   func() float64 { return 0 },
		OnReap: func(r ReapResult) { runs = append(runs, r) },
	}

	stale, err := env.sessions.Create(ctx, acct.ID, ClientMeta{})
	require.NoError(t, err)
	env.clock.Advance(DefaultSessionTTL + time.Minute)

	live, err := env.sessions.Create(ctx, acct.ID, ClientMeta{})
	require.NoError(t, err)
	_, _, err = env.sessions.Resolve(ctx, live.Token)
	require.NoError(t, err)

	require.Len(t, runs, 1)
	require.Equal(t, int64(1), runs[0].Sessions)

	// A failed resolve never reaps.
	_, _, err = env.sessions.Resolve(ctx, stale.Token)
	require.ErrorIs(t, err, ErrUnauthenticated)
	require.Len(t, runs, 1)
}
