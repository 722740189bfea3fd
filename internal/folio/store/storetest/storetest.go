// Package storetest is a contract suite every store.Store driver must pass.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aussiebroadwan/folio/internal/folio/domain"
	"github.com/aussiebroadwan/folio/internal/folio/store"
	"github.com/aussiebroadwan/folio/pkg/idx"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// Factory returns a fresh, migrated, empty store.
type Factory func(t *testing.T) store.Store

var base = time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)

// Run executes the suite against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("Accounts", func(t *testing.T) { testAccounts(t, newStore(t)) })
	t.Run("Sessions", func(t *testing.T) { testSessions(t, newStore(t)) })
	t.Run("Invitations", func(t *testing.T) { testInvitations(t, newStore(t)) })
	t.Run("Audit", func(t *testing.T) { testAudit(t, newStore(t)) })
	t.Run("WithTx", func(t *testing.T) { testWithTx(t, newStore(t)) })
}

func newAccount(email string, role domain.Role) domain.Account {
	return domain.Account{
		Email:        email,
		PasswordHash: "argon2id:00:00",
		Name:         "Test " + email,
		Role:         role,
		Active:       true,
		CreatedAt:    base,
		UpdatedAt:    base,
	}
}

func mustCreateAccount(t *testing.T, st store.Store, email string) domain.Account {
	t.Helper()
	a := newAccount(email, domain.RoleEditor)
	id, err := st.Accounts().Create(context.Background(), a)
	require.NoError(t, err)
	a.ID = id
	return a
}

func testAccounts(t *testing.T, st store.Store) {
	ctx := context.Background()
	accounts := st.Accounts()

	n, err := accounts.Count(ctx)
	require.NoError(t, err)
	require.Zero(t, n)

	id, err := accounts.Create(ctx, newAccount("alice@example.com", domain.RoleAdmin))
	require.NoError(t, err)
	require.Positive(t, id)

	_, err = accounts.Create(ctx, newAccount("alice@example.com", domain.RoleViewer))
	require.ErrorIs(t, err, store.ErrAlreadyExists)

	got, err := accounts.GetByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	require.Equal(t, id, got.ID)
	require.Equal(t, domain.RoleAdmin, got.Role)
	require.True(t, got.Active)
	require.Equal(t, base, got.CreatedAt)
	require.Nil(t, got.LastLoginAt)

	_, err = accounts.GetByEmail(ctx, "nobody@example.com")
	require.ErrorIs(t, err, store.ErrNotFound)
	_, err = accounts.GetByID(ctx, id+100)
	require.ErrorIs(t, err, store.ErrNotFound)

	got.Name = "Alice"
	got.Role = domain.RoleEditor
	got.Active = false
	got.UpdatedAt = base.Add(time.Hour)
	require.NoError(t, accounts.Update(ctx, got))

	got, err = accounts.GetByID(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "Alice", got.Name)
	require.Equal(t, domain.RoleEditor, got.Role)
	require.False(t, got.Active)
	require.Equal(t, base.Add(time.Hour), got.UpdatedAt)

	require.ErrorIs(t, accounts.Update(ctx, domain.Account{ID: id + 100, Role: domain.RoleViewer}), store.ErrNotFound)

	login := base.Add(2 * time.Hour)
	require.NoError(t, accounts.TouchLastLogin(ctx, id, login))
	require.NoError(t, accounts.UpdatePasswordHash(ctx, id, "argon2id:11:22", login))

	got, err = accounts.GetByID(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, got.LastLoginAt)
	require.Equal(t, login, *got.LastLoginAt)
	require.Equal(t, "argon2id:11:22", got.PasswordHash)

	mustCreateAccount(t, st, "bob@example.com")
	list, err := accounts.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "alice@example.com", list[0].Email)

	require.NoError(t, accounts.Delete(ctx, id))
	require.ErrorIs(t, accounts.Delete(ctx, id), store.ErrNotFound)

	n, err = accounts.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func newSession(accountID int64, hash string, expires time.Time) domain.Session {
	return domain.Session{
		ID:        idx.New().String(),
		TokenHash: hash,
		AccountID: accountID,
		ExpiresAt: expires,
		CreatedAt: base,
		UserAgent: "test-agent",
		IPAddress: "203.0.113.5",
	}
}

func testSessions(t *testing.T, st store.Store) {
	ctx := context.Background()
	sessions := st.Sessions()
	alice := mustCreateAccount(t, st, "alice@example.com")
	bob := mustCreateAccount(t, st, "bob@example.com")

	require.NoError(t, sessions.Create(ctx, newSession(alice.ID, "a1", base.Add(24*time.Hour))))
	require.NoError(t, sessions.Create(ctx, newSession(alice.ID, "a2", base.Add(24*time.Hour))))
	require.NoError(t, sessions.Create(ctx, newSession(alice.ID, "a3", base.Add(time.Hour))))
	require.NoError(t, sessions.Create(ctx, newSession(bob.ID, "b1", base.Add(24*time.Hour))))

	require.ErrorIs(t, sessions.Create(ctx, newSession(bob.ID, "b1", base.Add(time.Hour))), store.ErrAlreadyExists)

	s, acct, err := sessions.GetActiveByTokenHash(ctx, "a1", base)
	require.NoError(t, err)
	require.Equal(t, alice.ID, s.AccountID)
	require.Equal(t, "alice@example.com", acct.Email)
	require.Equal(t, "test-agent", s.UserAgent)
	require.Equal(t, base.Add(24*time.Hour), s.ExpiresAt)

	t.Run("expired is not found", func(t *testing.T) {
		_, _, err := sessions.GetActiveByTokenHash(ctx, "a3", base.Add(time.Hour))
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("unknown is not found", func(t *testing.T) {
		_, _, err := sessions.GetActiveByTokenHash(ctx, "nope", base)
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("inactive account is not found", func(t *testing.T) {
		b := bob
		b.Active = false
		b.UpdatedAt = base
		require.NoError(t, st.Accounts().Update(ctx, b))
		_, _, err := sessions.GetActiveByTokenHash(ctx, "b1", base)
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	list, err := sessions.ListForAccount(ctx, alice.ID, base.Add(2*time.Hour))
	require.NoError(t, err)
	require.Len(t, list, 2, "expired session should not be listed")

	n, err := sessions.DeleteForAccount(ctx, alice.ID, "a1")
	require.NoError(t, err)
	require.Equal(t, int64(2), n)

	_, _, err = sessions.GetActiveByTokenHash(ctx, "a1", base)
	require.NoError(t, err, "excepted session survives")
	_, _, err = sessions.GetActiveByTokenHash(ctx, "a2", base)
	require.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, sessions.DeleteByTokenHash(ctx, "a1"))
	require.NoError(t, sessions.DeleteByTokenHash(ctx, "a1"), "delete is idempotent")

	require.NoError(t, sessions.Create(ctx, newSession(alice.ID, "old", base.Add(-time.Minute))))
	n, err = sessions.DeleteExpired(ctx, base)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	t.Run("account delete cascades", func(t *testing.T) {
		require.NoError(t, st.Accounts().Delete(ctx, bob.ID))
		n, err := sessions.DeleteForAccount(ctx, bob.ID, "")
		require.NoError(t, err)
		require.Zero(t, n)
	})
}

func newInvitation(email, hash string, expires time.Time, invitedBy int64) domain.Invitation {
	return domain.Invitation{
		ID:        idx.New().String(),
		Email:     email,
		Role:      domain.RoleEditor,
		TokenHash: hash,
		ExpiresAt: expires,
		InvitedBy: invitedBy,
		CreatedAt: base,
	}
}

func testInvitations(t *testing.T, st store.Store) {
	ctx := context.Background()
	invs := st.Invitations()
	admin := mustCreateAccount(t, st, "admin@example.com")

	first := newInvitation("alice@example.com", "h1", base.Add(7*24*time.Hour), admin.ID)
	require.NoError(t, invs.Create(ctx, first))

	// A second live invitation for the same email violates the partial index.
	second := newInvitation("alice@example.com", "h2", base.Add(7*24*time.Hour), admin.ID)
	require.ErrorIs(t, invs.Create(ctx, second), store.ErrAlreadyExists)

	n, err := invs.RevokePendingForEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
	require.NoError(t, invs.Create(ctx, second))

	got, err := invs.GetByTokenHash(ctx, "h1")
	require.NoError(t, err)
	require.True(t, got.Revoked)
	require.False(t, got.Consumable(base))

	got, err = invs.GetByID(ctx, second.ID)
	require.NoError(t, err)
	require.Equal(t, admin.ID, got.InvitedBy)
	require.True(t, got.Consumable(base))

	pending, err := invs.ListPending(ctx, base)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, second.ID, pending[0].ID)

	stamped, err := invs.MarkAccepted(ctx, second.ID, base.Add(time.Minute))
	require.NoError(t, err)
	require.True(t, stamped)

	stamped, err = invs.MarkAccepted(ctx, second.ID, base.Add(2*time.Minute))
	require.NoError(t, err)
	require.False(t, stamped, "second acceptance is a no-op")

	got, err = invs.GetByID(ctx, second.ID)
	require.NoError(t, err)
	require.Equal(t, base.Add(time.Minute), *got.AcceptedAt)

	_, err = invs.MarkAccepted(ctx, "missing", base)
	require.ErrorIs(t, err, store.ErrNotFound)
	require.ErrorIs(t, invs.Revoke(ctx, second.ID), store.ErrNotFound, "accepted invitations cannot be revoked")

	expired := newInvitation("carol@example.com", "h3", base.Add(time.Hour), admin.ID)
	require.NoError(t, invs.Create(ctx, expired))
	require.NoError(t, invs.Revoke(ctx, expired.ID))
	require.ErrorIs(t, invs.Revoke(ctx, expired.ID), store.ErrNotFound, "revoked invitations cannot be revoked again")

	dave := newInvitation("dave@example.com", "h4", base.Add(time.Hour), 0)
	require.NoError(t, invs.Create(ctx, dave))

	// h1 and h3 are revoked, h4 expires at base+1h.
	n, err = invs.DeleteStale(ctx, base.Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, int64(3), n)

	_, err = invs.GetByID(ctx, second.ID)
	require.NoError(t, err, "accepted invitations are kept")
	_, err = invs.GetByTokenHash(ctx, "h1")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func testAudit(t *testing.T, st store.Store) {
	ctx := context.Background()
	audit := st.Audit()

	actor := int64(7)
	resource := int64(42)
	withChanges := domain.AuditEntry{
		ID:           uuid.Must(uuid.NewV7()).String(),
		ActorID:      &actor,
		ActorEmail:   "admin@example.com",
		Action:       domain.ActionUpdate,
		ResourceType: domain.ResourceAccount,
		ResourceID:   &resource,
		ResourceName: "alice@example.com",
		Changes: &domain.ChangeSet{
			Before: map[string]domain.Value{"role": {V: "viewer"}, "name": {Absent: true}},
			After:  map[string]domain.Value{"role": {V: "editor"}, "name": {V: nil}},
		},
		IPAddress: "203.0.113.1",
		UserAgent: "curl/8",
		Status:    domain.AuditSuccess,
		CreatedAt: base,
	}
	failed := domain.AuditEntry{
		ID:           uuid.Must(uuid.NewV7()).String(),
		ActorEmail:   domain.AnonymousActor,
		Action:       domain.ActionLogin,
		ResourceType: domain.ResourceSession,
		ResourceName: "alice@example.com",
		Status:       domain.AuditFailed,
		ErrorMessage: "invalid password",
		CreatedAt:    base.Add(time.Second),
	}
	require.NoError(t, audit.Append(ctx, withChanges))
	require.NoError(t, audit.Append(ctx, failed))
	require.ErrorIs(t, audit.Append(ctx, failed), store.ErrAlreadyExists)

	all, err := audit.List(ctx, store.AuditFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, failed.ID, all[0].ID, "newest first")

	require.Nil(t, all[0].ActorID)
	require.Nil(t, all[0].Changes)
	require.Equal(t, "invalid password", all[0].ErrorMessage)

	got := all[1]
	require.Equal(t, actor, *got.ActorID)
	require.Equal(t, resource, *got.ResourceID)
	require.NotNil(t, got.Changes)
	require.Equal(t, domain.Value{V: "viewer"}, got.Changes.Before["role"])
	require.Equal(t, domain.Value{Absent: true}, got.Changes.Before["name"])
	require.Equal(t, domain.Value{V: nil}, got.Changes.After["name"])

	logins, err := audit.List(ctx, store.AuditFilter{Action: domain.ActionLogin})
	require.NoError(t, err)
	require.Len(t, logins, 1)

	byResource, err := audit.List(ctx, store.AuditFilter{ResourceType: domain.ResourceAccount, ResourceID: &resource, ActorID: &actor})
	require.NoError(t, err)
	require.Len(t, byResource, 1)

	limited, err := audit.List(ctx, store.AuditFilter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
}

func testWithTx(t *testing.T, st store.Store) {
	ctx := context.Background()
	boom := errors.New("boom")

	err := st.WithTx(ctx, func(tx store.Tx) error {
		if _, err := tx.Accounts().Create(ctx, newAccount("rollback@example.com", domain.RoleViewer)); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = st.Accounts().GetByEmail(ctx, "rollback@example.com")
	require.ErrorIs(t, err, store.ErrNotFound, "rolled back insert must not persist")

	err = st.WithTx(ctx, func(tx store.Tx) error {
		_, err := tx.Accounts().Create(ctx, newAccount("commit@example.com", domain.RoleViewer))
		return err
	})
	require.NoError(t, err)

	_, err = st.Accounts().GetByEmail(ctx, "commit@example.com")
	require.NoError(t, err)
}
