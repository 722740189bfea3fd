package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/aussiebroadwan/folio/internal/folio/domain"
	"github.com/aussiebroadwan/folio/internal/folio/store"
	"github.com/aussiebroadwan/folio/pkg/folioclient"
	"github.com/aussiebroadwan/folio/pkg/httpx"
)

var errBadLimit = errors.New("limit must be a positive integer")

const (
	defaultAuditLimit = 50
	maxAuditLimit     = 500
)

// AuditHandler lists audit entries for admins.
type AuditHandler struct {
	Repo store.Audit
}

func (h *AuditHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := store.AuditFilter{
		Action:       domain.AuditAction(q.Get("action")),
		ResourceType: q.Get("resource_type"),
		Limit:        defaultAuditLimit,
	}

	var err error
	if f.ActorID, err = optionalID(q.Get("actor_id")); err != nil {
		writeBadRequest(w, err)
		return
	}
	if f.ResourceID, err = optionalID(q.Get("resource_id")); err != nil {
		writeBadRequest(w, err)
		return
	}
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			writeBadRequest(w, errBadLimit)
			return
		}
		f.Limit = min(n, maxAuditLimit)
	}

	entries, err := h.Repo.List(r.Context(), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := folioclient.AuditList{Entries: make([]folioclient.AuditEntry, 0, len(entries))}
	for _, e := range entries {
		out.Entries = append(out.Entries, toAuditEntry(e))
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

func optionalID(s string) (*int64, error) {
	if s == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return nil, errBadID
	}
	return &id, nil
}
