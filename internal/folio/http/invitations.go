package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/aussiebroadwan/folio/internal/folio/audit"
	"github.com/aussiebroadwan/folio/internal/folio/domain"
	"github.com/aussiebroadwan/folio/internal/folio/obs"
	"github.com/aussiebroadwan/folio/internal/folio/service"
	"github.com/aussiebroadwan/folio/pkg/folioclient"
	"github.com/aussiebroadwan/folio/pkg/httpx"
)

// InvitationHandler serves invitation issuance and acceptance.
type InvitationHandler struct {
	Invitations *service.InvitationManager
	Accounts    *service.AccountService
	Audit       *audit.Writer
	Metrics     *obs.Metrics
	Now         func() time.Time
}

func (h *InvitationHandler) now() time.Time {
	if h.Now != nil {
		return h.Now().UTC()
	}
	return time.Now().UTC()
}

// HandleCreate issues an invitation. The raw token is returned once so an
// admin can pass it on when mail delivery is unavailable.
func (h *InvitationHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	c, _ := CallerFrom(ctx)

	ev := audit.Event{
		Action:       domain.ActionInvite,
		ResourceType: domain.ResourceInvitation,
	}
	// The role check comes first so a garbled body cannot skip it.
	if !c.Account.Role.IsAdmin() {
		h.Audit.Log(ctx, ev.Outcome(service.ErrForbidden))
		writeError(w, r, service.ErrForbidden)
		return
	}

	var req folioclient.InvitationRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		rejectAudited(w, r, h.Audit, ev, err)
		return
	}
	ev.ResourceName = domain.NormalizeEmail(req.Email)

	role := domain.Role(strings.ToLower(strings.TrimSpace(req.Role)))
	issued, err := h.Invitations.Create(ctx, req.Email, role, c.Account.ID)
	if err == nil {
		ev.Changes = audit.ComputeChanges(nil, issued.Invitation.AuditFields())
	}
	h.Audit.Log(ctx, ev.Outcome(err))
	if err != nil {
		writeError(w, r, err)
		return
	}

	if issued.Delivered {
		h.Metrics.Invitation("delivered")
	} else {
		h.Metrics.Invitation("undelivered")
	}
	httpx.WriteJSON(w, http.StatusCreated, folioclient.InvitationResponse{
		Invitation: toInvitation(issued.Invitation, h.now()),
		AcceptURL:  issued.Link,
		Token:      issued.Token,
		Delivered:  issued.Delivered,
	})
}

func (h *InvitationHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	invs, err := h.Invitations.ListPending(ctx)
	if err != nil {
		writeError(w, r, err)
		return
	}

	now := h.now()
	out := folioclient.InvitationList{Invitations: make([]folioclient.Invitation, 0, len(invs))}
	for _, inv := range invs {
		out.Invitations = append(out.Invitations, toInvitation(inv, now))
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

func (h *InvitationHandler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	c, _ := CallerFrom(ctx)
	id := r.PathValue("id")

	ev := audit.Event{
		Action:       domain.ActionDelete,
		ResourceType: domain.ResourceInvitation,
		ResourceName: id,
	}
	if !c.Account.Role.IsAdmin() {
		h.Audit.Log(ctx, ev.Outcome(service.ErrForbidden))
		writeError(w, r, service.ErrForbidden)
		return
	}

	inv, err := h.Invitations.Revoke(ctx, id)
	if inv.Email != "" {
		ev.ResourceName = inv.Email
	}
	h.Audit.Log(ctx, ev.Outcome(err))
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.Metrics.Invitation("revoked")
	w.WriteHeader(http.StatusNoContent)
}

// HandleLookup shows what a token grants so the accept page can greet the
// invitee. It never consumes the invitation.
func (h *InvitationHandler) HandleLookup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	inv, err := h.Invitations.Consume(ctx, r.URL.Query().Get("token"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toInvitation(inv, h.now()))
}

// HandleAccept turns an invitation into an account.
func (h *InvitationHandler) HandleAccept(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	ev := audit.Event{
		Action:       domain.ActionCreate,
		ResourceType: domain.ResourceAccount,
	}
	var req folioclient.AcceptInvitationRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		rejectAudited(w, r, h.Audit, ev, err)
		return
	}

	acct, inv, err := h.Accounts.AcceptInvitation(ctx, req.Token, req.Password, req.Name)
	ev.ResourceName = inv.Email
	if err != nil {
		h.Audit.Log(ctx, ev.Outcome(err))
		writeError(w, r, err)
		return
	}

	// The new account is its own creator.
	ctx = audit.NewContext(ctx, audit.FromContext(ctx).WithActor(acct))
	ev.ResourceID = audit.ID(acct.ID)
	ev.ResourceName = acct.Email
	ev.Changes = audit.ComputeChanges(nil, acct.AuditFields())
	h.Audit.Log(ctx, ev.Outcome(nil))
	h.Metrics.Invitation("accepted")

	httpx.WriteJSON(w, http.StatusCreated, toAccount(acct))
}
