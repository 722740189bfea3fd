package folioclient

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// ============================================================================
// Invitations
// ============================================================================

func (c *Client) Invite(ctx context.Context, email, role string) (*InvitationResponse, error) {
	var out InvitationResponse
	err := c.do(ctx, http.MethodPost, "/api/invitations", InvitationRequest{Email: email, Role: role}, &out, http.StatusCreated)
	return &out, err
}

func (c *Client) ListInvitations(ctx context.Context) (*InvitationList, error) {
	var out InvitationList
	return &out, c.do(ctx, http.MethodGet, "/api/invitations", nil, &out, http.StatusOK)
}

func (c *Client) RevokeInvitation(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/invitations/"+url.PathEscape(id), nil, nil, http.StatusNoContent)
}

// LookupInvitation shows what an invitation token grants without using it.
func (c *Client) LookupInvitation(ctx context.Context, token string) (*Invitation, error) {
	var out Invitation
	return &out, c.do(ctx, http.MethodGet, "/api/invitations/lookup?token="+url.QueryEscape(token), nil, &out, http.StatusOK)
}

func (c *Client) AcceptInvitation(ctx context.Context, req AcceptInvitationRequest) (*Account, error) {
	var out Account
	return &out, c.do(ctx, http.MethodPost, "/api/invitations/accept", req, &out, http.StatusCreated)
}

// ============================================================================
// Accounts
// ============================================================================

func (c *Client) ListAccounts(ctx context.Context) (*AccountList, error) {
	var out AccountList
	return &out, c.do(ctx, http.MethodGet, "/api/accounts", nil, &out, http.StatusOK)
}

func (c *Client) GetAccount(ctx context.Context, id int64) (*Account, error) {
	var out Account
	return &out, c.do(ctx, http.MethodGet, fmt.Sprintf("/api/accounts/%d", id), nil, &out, http.StatusOK)
}

func (c *Client) UpdateAccount(ctx context.Context, id int64, req UpdateAccountRequest) (*Account, error) {
	var out Account
	return &out, c.do(ctx, http.MethodPatch, fmt.Sprintf("/api/accounts/%d", id), req, &out, http.StatusOK)
}

func (c *Client) DeleteAccount(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/api/accounts/%d", id), nil, nil, http.StatusNoContent)
}

// ForceLogout revokes every session of account id.
func (c *Client) ForceLogout(ctx context.Context, id int64) (*RevokedResponse, error) {
	var out RevokedResponse
	return &out, c.do(ctx, http.MethodPost, fmt.Sprintf("/api/accounts/%d/logout", id), nil, &out, http.StatusOK)
}

// ============================================================================
// Audit
// ============================================================================

func (c *Client) ListAudit(ctx context.Context, q AuditQuery) (*AuditList, error) {
	v := url.Values{}
	if q.Action != "" {
		v.Set("action", q.Action)
	}
	if q.ResourceType != "" {
		v.Set("resource_type", q.ResourceType)
	}
	if q.ActorID != 0 {
		v.Set("actor_id", strconv.FormatInt(q.ActorID, 10))
	}
	if q.ResourceID != 0 {
		v.Set("resource_id", strconv.FormatInt(q.ResourceID, 10))
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	path := "/api/audit"
	if len(v) > 0 {
		path += "?" + v.Encode()
	}

	var out AuditList
	return &out, c.do(ctx, http.MethodGet, path, nil, &out, http.StatusOK)
}
