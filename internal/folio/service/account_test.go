package service

import (
	"context"
	"testing"

	"github.com/aussiebroadwan/folio/internal/folio/domain"
	"github.com/aussiebroadwan/folio/internal/folio/store"
	"github.com/aussiebroadwan/folio/pkg/cryptox"
	"github.com/stretchr/testify/require"
)

func TestAccountService_Login(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	acct := env.createAccount(t, "editor@example.com", domain.RoleEditor)

	t.Run("success", func(t *testing.T) {
		got, issued, err := env.accounts.Login(ctx, " EDITOR@example.com", strongPassword, ClientMeta{IPAddress: "203.0.113.1"})
		require.NoError(t, err)
		require.Equal(t, acct.ID, got.ID)
		require.NotNil(t, got.LastLoginAt)

		_, a, err := env.sessions.Resolve(ctx, issued.Token)
		require.NoError(t, err)
		require.Equal(t, acct.ID, a.ID)
	})

	tests := []struct {
		name     string
		email    string
		password string
		reason   string
	}{
		{"unknown account", "ghost@example.com", strongPassword, ReasonUnknownAccount},
		{"wrong password", "editor@example.com", "nope", ReasonWrongPassword},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := env.accounts.Login(ctx, tt.email, tt.password, ClientMeta{})
			require.ErrorIs(t, err, ErrInvalidCredentials)

			var lerr *LoginError
			require.ErrorAs(t, err, &lerr)
			require.Equal(t, tt.reason, lerr.Reason)
		})
	}

	t.Run("disabled account", func(t *testing.T) {
		disabled := env.createAccount(t, "viewer@example.com", domain.RoleViewer)
		disabled.Active = false
		require.NoError(t, env.store.Accounts().Update(ctx, disabled))

		_, _, err := env.accounts.Login(ctx, "viewer@example.com", strongPassword, ClientMeta{})
		require.ErrorIs(t, err, ErrInvalidCredentials)
		var lerr *LoginError
		require.ErrorAs(t, err, &lerr)
		require.Equal(t, ReasonAccountDisabled, lerr.Reason)
	})
}

func TestAccountService_LoginRehashes(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	acct := env.createAccount(t, "editor@example.com", domain.RoleEditor)

	stronger := &cryptox.Hasher{
		Params: cryptox.Argon2Params{Memory: 128, Iterations: 2, Parallelism: 1, KeyLength: 32, SaltLength: 16},
		Pepper: env.hasher.Pepper,
	}
	env.accounts.Hasher = stronger

	_, _, err := env.accounts.Login(ctx, acct.Email, strongPassword, ClientMeta{})
	require.NoError(t, err)

	stored, err := env.store.Accounts().GetByID(ctx, acct.ID)
	require.NoError(t, err)
	require.NotEqual(t, acct.PasswordHash, stored.PasswordHash)
	require.False(t, stronger.NeedsRehash(stored.PasswordHash))
	require.True(t, stronger.Verify(strongPassword, stored.PasswordHash))
}

func TestAccountService_AcceptInvitation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := env.createAccount(t, "admin@example.com", domain.RoleAdmin)

	issued, err := env.invitations.Create(ctx, "alice@example.com", domain.RoleEditor, admin.ID)
	require.NoError(t, err)

	t.Run("weak password leaves invitation consumable", func(t *testing.T) {
		_, _, err := env.accounts.AcceptInvitation(ctx, issued.Token, "Password123!", "Alice")
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
		require.Contains(t, verr.Fields, "password")

		_, err = env.invitations.Consume(ctx, issued.Token)
		require.NoError(t, err)
	})

	t.Run("success", func(t *testing.T) {
		acct, inv, err := env.accounts.AcceptInvitation(ctx, issued.Token, strongPassword, " Alice ")
		require.NoError(t, err)
		require.Equal(t, "alice@example.com", acct.Email)
		require.Equal(t, "Alice", acct.Name)
		require.Equal(t, domain.RoleEditor, acct.Role)
		require.True(t, acct.Active)
		require.NotNil(t, inv.AcceptedAt)

		_, _, err = env.accounts.Login(ctx, "alice@example.com", strongPassword, ClientMeta{})
		require.NoError(t, err)
	})

	t.Run("double consumption", func(t *testing.T) {
		_, _, err := env.accounts.AcceptInvitation(ctx, issued.Token, strongPassword, "Alice again")
		require.ErrorIs(t, err, ErrInvitationInvalid)

		n, err := env.store.Accounts().Count(ctx)
		require.NoError(t, err)
		require.Equal(t, 2, n)
	})
}

func TestAccountService_AcceptInvitationExistingAccount(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := env.createAccount(t, "admin@example.com", domain.RoleAdmin)

	issued, err := env.invitations.Create(ctx, "bob@example.com", domain.RoleViewer, admin.ID)
	require.NoError(t, err)

	// The address gets registered after the invitation went out.
	env.createAccount(t, "bob@example.com", domain.RoleViewer)

	_, _, err = env.accounts.AcceptInvitation(ctx, issued.Token, strongPassword, "Bob")
	require.ErrorIs(t, err, ErrAccountExists)

	inv, err := env.store.Invitations().GetByID(ctx, issued.Invitation.ID)
	require.NoError(t, err)
	require.Nil(t, inv.AcceptedAt, "acceptance state must not change")
}

func TestAccountService_ChangePassword(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	acct := env.createAccount(t, "editor@example.com", domain.RoleEditor)

	_, current, err := env.accounts.Login(ctx, acct.Email, strongPassword, ClientMeta{})
	require.NoError(t, err)
	_, other, err := env.accounts.Login(ctx, acct.Email, strongPassword, ClientMeta{})
	require.NoError(t, err)

	acct, err = env.accounts.Get(ctx, acct.ID)
	require.NoError(t, err)

	var verr *ValidationError
	_, err = env.accounts.ChangePassword(ctx, acct, current.Token, "wrong", "nR8&wK3^zM6*bJ1%")
	require.ErrorAs(t, err, &verr)
	require.Contains(t, verr.Fields, "current_password")

	_, err = env.accounts.ChangePassword(ctx, acct, current.Token, strongPassword, "Password123!")
	require.ErrorAs(t, err, &verr)
	require.Contains(t, verr.Fields, "new_password")

	revoked, err := env.accounts.ChangePassword(ctx, acct, current.Token, strongPassword, "nR8&wK3^zM6*bJ1%")
	require.NoError(t, err)
	require.Equal(t, int64(1), revoked)

	_, _, err = env.sessions.Resolve(ctx, current.Token)
	require.NoError(t, err)
	_, _, err = env.sessions.Resolve(ctx, other.Token)
	require.ErrorIs(t, err, ErrUnauthenticated)

	_, _, err = env.accounts.Login(ctx, acct.Email, "nR8&wK3^zM6*bJ1%", ClientMeta{})
	require.NoError(t, err)
}

func TestAccountService_Update(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := env.createAccount(t, "admin@example.com", domain.RoleAdmin)
	editor := env.createAccount(t, "editor@example.com", domain.RoleEditor)

	_, issued, err := env.accounts.Login(ctx, editor.Email, strongPassword, ClientMeta{})
	require.NoError(t, err)

	t.Run("non-admin is forbidden", func(t *testing.T) {
		name := "x"
		_, _, err := env.accounts.Update(ctx, editor, admin.ID, AccountPatch{Name: &name})
		require.ErrorIs(t, err, ErrForbidden)
	})

	t.Run("admin cannot demote self", func(t *testing.T) {
		role := domain.RoleViewer
		_, _, err := env.accounts.Update(ctx, admin, admin.ID, AccountPatch{Role: &role})
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)
	})

	t.Run("deactivation revokes sessions", func(t *testing.T) {
		role := domain.RoleViewer
		inactive := false
		before, after, err := env.accounts.Update(ctx, admin, editor.ID, AccountPatch{Role: &role, Active: &inactive})
		require.NoError(t, err)
		require.Equal(t, domain.RoleEditor, before.Role)
		require.Equal(t, domain.RoleViewer, after.Role)
		require.False(t, after.Active)

		live, err := env.sessions.ListForAccount(ctx, editor.ID)
		require.NoError(t, err)
		require.Empty(t, live)
		_, _, err = env.sessions.Resolve(ctx, issued.Token)
		require.ErrorIs(t, err, ErrUnauthenticated)
	})

	t.Run("unknown account", func(t *testing.T) {
		_, _, err := env.accounts.Update(ctx, admin, 9999, AccountPatch{})
		require.ErrorIs(t, err, ErrNotFound)
	})
}

func TestAccountService_Delete(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	admin := env.createAccount(t, "admin@example.com", domain.RoleAdmin)
	editor := env.createAccount(t, "editor@example.com", domain.RoleEditor)

	_, issued, err := env.accounts.Login(ctx, editor.Email, strongPassword, ClientMeta{})
	require.NoError(t, err)

	_, err = env.accounts.Delete(ctx, admin, admin.ID)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)

	deleted, err := env.accounts.Delete(ctx, admin, editor.ID)
	require.NoError(t, err)
	require.Equal(t, editor.Email, deleted.Email)

	_, _, err = env.sessions.Resolve(ctx, issued.Token)
	require.ErrorIs(t, err, ErrUnauthenticated)
	_, err = env.store.Accounts().GetByID(ctx, editor.ID)
	require.ErrorIs(t, err, store.ErrNotFound)

	_, err = env.accounts.Delete(ctx, admin, editor.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestAccountService_Seed(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.accounts.Seed(ctx, "admin@example.com", "short", "Admin")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)

	acct, err := env.accounts.Seed(ctx, "Admin@Example.com", strongPassword, "Admin")
	require.NoError(t, err)
	require.Equal(t, domain.RoleAdmin, acct.Role)
	require.Equal(t, "admin@example.com", acct.Email)

	_, err = env.accounts.Seed(ctx, "other@example.com", strongPassword, "Other")
	require.ErrorIs(t, err, ErrAlreadySeeded)
}

func TestAccountService_ForceLogout(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	editor := env.createAccount(t, "editor@example.com", domain.RoleEditor)

	for range 2 {
		_, _, err := env.accounts.Login(ctx, editor.Email, strongPassword, ClientMeta{})
		require.NoError(t, err)
	}
	_, n, err := env.accounts.ForceLogout(ctx, editor.ID)
	require.NoError(t, err)
	require.Equal(t, int64(2), n)

	_, _, err = env.accounts.ForceLogout(ctx, 4242)
	require.ErrorIs(t, err, ErrNotFound)
}
