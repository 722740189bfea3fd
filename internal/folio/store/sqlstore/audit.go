package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aussiebroadwan/folio/internal/folio/domain"
	"github.com/aussiebroadwan/folio/internal/folio/store"
)

type auditRepo struct{ q *Queries }

const auditCols = `id, actor_id, actor_email, action, resource_type, resource_id, resource_name, changes, ip_address, user_agent, status, error_message, created_at`

// DefaultAuditLimit caps List when the filter sets no limit.
const DefaultAuditLimit = 100

func (r *auditRepo) Append(ctx context.Context, e domain.AuditEntry) error {
	var changes sql.NullString
	if e.Changes != nil {
		b, err := json.Marshal(e.Changes)
		if err != nil {
			return fmt.Errorf("encode changes: %w", err)
		}
		changes = sql.NullString{String: string(b), Valid: true}
	}

	_, err := r.q.exec(ctx, `
		INSERT INTO audit_log (`+auditCols+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, mapOptionalInt64(e.ActorID), e.ActorEmail, string(e.Action), e.ResourceType,
		mapOptionalInt64(e.ResourceID), e.ResourceName, changes, e.IPAddress, e.UserAgent,
		string(e.Status), mapStringNull(e.ErrorMessage), toMillis(e.CreatedAt),
	)
	return r.q.mapWriteErr(err)
}

func (r *auditRepo) List(ctx context.Context, f store.AuditFilter) ([]domain.AuditEntry, error) {
	var (
		where []string
		args  []any
	)
	if f.ActorID != nil {
		where = append(where, "actor_id = ?")
		args = append(args, *f.ActorID)
	}
	if f.Action != "" {
		where = append(where, "action = ?")
		args = append(args, string(f.Action))
	}
	if f.ResourceType != "" {
		where = append(where, "resource_type = ?")
		args = append(args, f.ResourceType)
	}
	if f.ResourceID != nil {
		where = append(where, "resource_id = ?")
		args = append(args, *f.ResourceID)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = DefaultAuditLimit
	}

	query := `SELECT ` + auditCols + ` FROM audit_log`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.q.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.AuditEntry
	for rows.Next() {
		var (
			e                   domain.AuditEntry
			actorID, resourceID sql.NullInt64
			changes, errMsg     sql.NullString
			action, status      string
			created             int64
		)
		if err := rows.Scan(&e.ID, &actorID, &e.ActorEmail, &action, &e.ResourceType, &resourceID,
			&e.ResourceName, &changes, &e.IPAddress, &e.UserAgent, &status, &errMsg, &created); err != nil {
			return nil, err
		}
		e.ActorID = mapNullInt64Ptr(actorID)
		e.ResourceID = mapNullInt64Ptr(resourceID)
		e.Action = domain.AuditAction(action)
		e.Status = domain.AuditStatus(status)
		e.ErrorMessage = mapNullString(errMsg)
		e.CreatedAt = fromMillis(created)
		if changes.Valid && changes.String != "" {
			var cs domain.ChangeSet
			if err := json.Unmarshal([]byte(changes.String), &cs); err != nil {
				return nil, fmt.Errorf("decode changes for %s: %w", e.ID, err)
			}
			e.Changes = &cs
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
