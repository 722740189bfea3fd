package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/folio/internal/folio/domain"
	"github.com/aussiebroadwan/folio/internal/folio/store"
	"github.com/aussiebroadwan/folio/pkg/slogx"
	"github.com/google/uuid"
)

// Event is what a handler reports about one privileged attempt.
type Event struct {
	Action       domain.AuditAction
	ResourceType string
	ResourceID   *int64
	ResourceName string
	Changes      *domain.ChangeSet
	Status       domain.AuditStatus
	ErrorMessage string
}

// Outcome sets Status from err. A failed event never carries changes.
func (e Event) Outcome(err error) Event {
	if err == nil {
		e.Status = domain.AuditSuccess
		return e
	}
	e.Status = domain.AuditFailed
	e.ErrorMessage = err.Error()
	e.Changes = nil
	return e
}

// Writer appends audit entries. It is best effort: Log never fails the
// caller, errors are only logged.
type Writer struct {
	Repo store.Audit
	Now  func() time.Time

	// OnWrite, when set, observes every attempt and its result.
	OnWrite func(e domain.AuditEntry, err error)
}

// Log records ev attributed to the RequestContext carried by ctx.
func (w *Writer) Log(ctx context.Context, ev Event) {
	log := slogx.FromContext(ctx)
	rc := FromContext(ctx)

	entry := domain.AuditEntry{
		ActorID:      rc.ActorID,
		ActorEmail:   rc.ActorEmail,
		Action:       ev.Action,
		ResourceType: ev.ResourceType,
		ResourceID:   ev.ResourceID,
		ResourceName: ev.ResourceName,
		Changes:      ev.Changes,
		IPAddress:    rc.IPAddress,
		UserAgent:    rc.UserAgent,
		Status:       ev.Status,
		ErrorMessage: ev.ErrorMessage,
		CreatedAt:    w.now(),
	}
	if entry.ActorEmail == "" {
		entry.ActorEmail = domain.AnonymousActor
	}
	if entry.Status == "" {
		entry.Status = domain.AuditSuccess
	}
	if entry.Status == domain.AuditFailed {
		entry.Changes = nil
	}

	id, err := uuid.NewV7()
	if err == nil {
		entry.ID = id.String()
		// The request may already be cancelled; the entry should still land.
		err = w.Repo.Append(context.WithoutCancel(ctx), entry)
	}
	if err != nil {
		log.Error("failed to write audit entry",
			slog.String("action", string(entry.Action)),
			slog.String("resource_type", entry.ResourceType),
			slog.String("status", string(entry.Status)),
			slog.Any("error", err),
		)
	}
	if w.OnWrite != nil {
		w.OnWrite(entry, err)
	}
}

func (w *Writer) now() time.Time {
	if w.Now != nil {
		return w.Now().UTC()
	}
	return time.Now().UTC()
}

// ID is a helper for the optional numeric resource id.
func ID(id int64) *int64 { return &id }
