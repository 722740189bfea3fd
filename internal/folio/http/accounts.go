package http

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/aussiebroadwan/folio/internal/folio/audit"
	"github.com/aussiebroadwan/folio/internal/folio/domain"
	"github.com/aussiebroadwan/folio/internal/folio/service"
	"github.com/aussiebroadwan/folio/pkg/folioclient"
	"github.com/aussiebroadwan/folio/pkg/httpx"
)

// AccountHandler serves account administration. Every route requires an
// admin caller.
type AccountHandler struct {
	Accounts *service.AccountService
	Audit    *audit.Writer
}

var errBadID = errors.New("id must be a positive integer")

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, errBadID
	}
	return id, nil
}

func (h *AccountHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	accts, err := h.Accounts.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := folioclient.AccountList{Accounts: make([]folioclient.Account, 0, len(accts))}
	for _, a := range accts {
		out.Accounts = append(out.Accounts, toAccount(a))
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

func (h *AccountHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	acct, err := h.Accounts.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toAccount(acct))
}

// HandleUpdate edits name, role or active flag.
func (h *AccountHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	c, _ := CallerFrom(ctx)

	ev := audit.Event{
		Action:       domain.ActionUpdate,
		ResourceType: domain.ResourceAccount,
		ResourceName: r.PathValue("id"),
	}
	id, err := pathID(r)
	if err != nil {
		rejectAudited(w, r, h.Audit, ev, err)
		return
	}
	ev.ResourceID = audit.ID(id)
	var req folioclient.UpdateAccountRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		rejectAudited(w, r, h.Audit, ev, err)
		return
	}

	patch := service.AccountPatch{Name: req.Name, Active: req.Active}
	if req.Role != nil {
		role := domain.Role(strings.ToLower(strings.TrimSpace(*req.Role)))
		patch.Role = &role
	}

	before, after, err := h.Accounts.Update(ctx, c.Account, id, patch)
	if before.Email != "" {
		ev.ResourceName = before.Email
	}
	ev.Changes = audit.ComputeChanges(before.AuditFields(), after.AuditFields())
	h.Audit.Log(ctx, ev.Outcome(err))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toAccount(after))
}

// HandleDelete revokes the account's sessions and removes it.
func (h *AccountHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	c, _ := CallerFrom(ctx)

	ev := audit.Event{
		Action:       domain.ActionDelete,
		ResourceType: domain.ResourceAccount,
		ResourceName: r.PathValue("id"),
	}
	id, err := pathID(r)
	if err != nil {
		rejectAudited(w, r, h.Audit, ev, err)
		return
	}
	ev.ResourceID = audit.ID(id)

	acct, err := h.Accounts.Delete(ctx, c.Account, id)
	if acct.Email != "" {
		ev.ResourceName = acct.Email
	}
	if err == nil {
		ev.Changes = audit.ComputeChanges(acct.AuditFields(), nil)
	}
	h.Audit.Log(ctx, ev.Outcome(err))
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleForceLogout revokes every session of the account.
func (h *AccountHandler) HandleForceLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	c, _ := CallerFrom(ctx)

	ev := audit.Event{
		Action:       domain.ActionLogout,
		ResourceType: domain.ResourceAccount,
		ResourceName: r.PathValue("id"),
	}
	id, err := pathID(r)
	if err != nil {
		rejectAudited(w, r, h.Audit, ev, err)
		return
	}
	ev.ResourceID = audit.ID(id)
	if !c.Account.Role.IsAdmin() {
		h.Audit.Log(ctx, ev.Outcome(service.ErrForbidden))
		writeError(w, r, service.ErrForbidden)
		return
	}

	acct, n, err := h.Accounts.ForceLogout(ctx, id)
	if acct.Email != "" {
		ev.ResourceName = acct.Email
	}
	h.Audit.Log(ctx, ev.Outcome(err))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, folioclient.RevokedResponse{Revoked: n})
}
