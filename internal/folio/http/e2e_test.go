package http_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/folio/internal/folio/domain"
	"github.com/aussiebroadwan/folio/pkg/folioclient"
)

// TestInviteAcceptLoginMutate walks an invitee from invitation to their
// first audited change.
func TestInviteAcceptLoginMutate(t *testing.T) {
	srv := newTestServer(t)
	ctx := t.Context()
	admin := srv.login(t, adminEmail, adminPassword)

	// Invite alice as an editor.
	inv, err := admin.Invite(ctx, "Alice@Example.com", "editor")
	require.NoError(t, err)
	require.Equal(t, "alice@example.com", inv.Invitation.Email)
	require.Equal(t, "editor", inv.Invitation.Role)
	require.Equal(t, "pending", inv.Invitation.Status)
	require.True(t, inv.Delivered)
	require.Equal(t, "alice@example.com", srv.mailer.last().to)
	require.Equal(t, inv.AcceptURL, srv.mailer.last().link)

	// Accept with a strong password.
	alice := srv.client(t)
	lookedUp, err := alice.LookupInvitation(ctx, inv.Token)
	require.NoError(t, err)
	require.Equal(t, "editor", lookedUp.Role)

	acct, err := alice.AcceptInvitation(ctx, folioclient.AcceptInvitationRequest{
		Token:    inv.Token,
		Password: alicePassword,
		Name:     "Alice",
	})
	require.NoError(t, err)
	require.Equal(t, "alice@example.com", acct.Email)
	require.Equal(t, "editor", acct.Role)

	// Log in; the session cookie lands in the jar.
	login, err := alice.Login(ctx, "alice@example.com", alicePassword)
	require.NoError(t, err)
	require.Equal(t, acct.ID, login.Account.ID)
	require.True(t, alice.HasSession())
	require.NotEmpty(t, alice.CSRFToken())

	// A mutation without the CSRF echo is refused before the handler runs.
	alice.SkipCSRF = true
	_, err = alice.UpdateProfile(ctx, "Alice Liddell")
	require.True(t, folioclient.IsInvalidCSRF(err), "got %v", err)

	me, err := alice.Me(ctx)
	require.NoError(t, err)
	require.Equal(t, "Alice", me.Name)

	// With the echo it goes through.
	alice.SkipCSRF = false
	updated, err := alice.UpdateProfile(ctx, "Alice Liddell")
	require.NoError(t, err)
	require.Equal(t, "Alice Liddell", updated.Name)

	// Exactly one entry each for the invite, the creation and the mutation.
	invites := srv.auditEntries(t, domain.ActionInvite)
	require.Len(t, invites, 1)
	require.Equal(t, domain.AuditSuccess, invites[0].Status)
	require.Equal(t, adminEmail, invites[0].ActorEmail)
	require.Equal(t, "alice@example.com", invites[0].ResourceName)
	require.NotNil(t, invites[0].Changes)
	require.Nil(t, invites[0].Changes.Before)
	require.Equal(t, "editor", invites[0].Changes.After["role"].V)

	creates := srv.auditEntries(t, domain.ActionCreate)
	require.Len(t, creates, 1)
	require.Equal(t, domain.ResourceAccount, creates[0].ResourceType)
	require.Equal(t, "alice@example.com", creates[0].ActorEmail)
	require.Equal(t, acct.ID, *creates[0].ResourceID)

	updates := srv.auditEntries(t, domain.ActionUpdate)
	require.Len(t, updates, 1)
	require.Equal(t, "alice@example.com", updates[0].ActorEmail)
	require.Equal(t, domain.AuditSuccess, updates[0].Status)
	require.Equal(t, map[string]domain.Value{"name": {V: "Alice"}}, updates[0].Changes.Before)
	require.Equal(t, map[string]domain.Value{"name": {V: "Alice Liddell"}}, updates[0].Changes.After)

	// The same trail is visible to the admin over the API.
	list, err := admin.ListAudit(ctx, folioclient.AuditQuery{Action: "update"})
	require.NoError(t, err)
	require.Len(t, list.Entries, 1)
	var changes map[string]map[string]any
	require.NoError(t, json.Unmarshal(list.Entries[0].Changes, &changes))
	require.Equal(t, "Alice Liddell", changes["after"]["name"])

	// The invitation cannot be used twice.
	_, err = srv.client(t).AcceptInvitation(ctx, folioclient.AcceptInvitationRequest{
		Token:    inv.Token,
		Password: alicePassword,
	})
	var apiErr *folioclient.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, folioclient.ErrorCodeInvalidInvitation, apiErr.Code)
}
