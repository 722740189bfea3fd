package sqlstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/aussiebroadwan/folio/internal/folio/domain"
)

type invitationsRepo struct{ q *Queries }

const invitationCols = `id, email, role, token_hash, expires_at, invited_by, accepted_at, revoked, created_at`

func scanInvitation(row scanner) (domain.Invitation, error) {
	var (
		inv              domain.Invitation
		role             string
		expires, created int64
		invitedBy        sql.NullInt64
		accepted         sql.NullInt64
	)
	if err := row.Scan(&inv.ID, &inv.Email, &role, &inv.TokenHash, &expires, &invitedBy, &accepted, &inv.Revoked, &created); err != nil {
		return domain.Invitation{}, err
	}
	inv.Role = domain.Role(role)
	inv.ExpiresAt = fromMillis(expires)
	inv.InvitedBy = invitedBy.Int64
	inv.AcceptedAt = mapNullMillis(accepted)
	inv.CreatedAt = fromMillis(created)
	return inv, nil
}

func (r *invitationsRepo) Create(ctx context.Context, inv domain.Invitation) error {
	var invitedBy sql.NullInt64
	if inv.InvitedBy != 0 {
		invitedBy = sql.NullInt64{Int64: inv.InvitedBy, Valid: true}
	}
	_, err := r.q.exec(ctx, `
		INSERT INTO invitations (id, email, role, token_hash, expires_at, invited_by, accepted_at, revoked, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inv.ID, inv.Email, string(inv.Role), inv.TokenHash, toMillis(inv.ExpiresAt), invitedBy,
		mapOptionalMillis(inv.AcceptedAt), inv.Revoked, toMillis(inv.CreatedAt),
	)
	return r.q.mapWriteErr(err)
}

func (r *invitationsRepo) RevokePendingForEmail(ctx context.Context, email string) (int64, error) {
	return affected(r.q.exec(ctx, `
		UPDATE invitations SET revoked = TRUE
		WHERE email = ? AND accepted_at IS NULL AND revoked = FALSE`,
		email,
	))
}

func (r *invitationsRepo) GetByTokenHash(ctx context.Context, hash string) (domain.Invitation, error) {
	inv, err := scanInvitation(r.q.queryRow(ctx, `SELECT `+invitationCols+` FROM invitations WHERE token_hash = ?`, hash))
	return inv, mapNotFound(err)
}

func (r *invitationsRepo) GetByID(ctx context.Context, id string) (domain.Invitation, error) {
	inv, err := scanInvitation(r.q.queryRow(ctx, `SELECT `+invitationCols+` FROM invitations WHERE id = ?`, id))
	return inv, mapNotFound(err)
}

func (r *invitationsRepo) MarkAccepted(ctx context.Context, id string, at time.Time) (bool, error) {
	n, err := affected(r.q.exec(ctx, `UPDATE invitations SET accepted_at = ? WHERE id = ? AND accepted_at IS NULL`, toMillis(at), id))
	if err != nil {
		return false, err
	}
	if n == 1 {
		return true, nil
	}

	// Zero rows: either already accepted (idempotent) or missing.
	if _, err := r.GetByID(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

func (r *invitationsRepo) Revoke(ctx context.Context, id string) error {
	return expectOne(r.q.exec(ctx, `UPDATE invitations SET revoked = TRUE WHERE id = ? AND accepted_at IS NULL AND revoked = FALSE`, id))
}

func (r *invitationsRepo) ListPending(ctx context.Context, now time.Time) ([]domain.Invitation, error) {
	rows, err := r.q.query(ctx, `
		SELECT `+invitationCols+` FROM invitations
		WHERE accepted_at IS NULL AND revoked = FALSE AND expires_at > ?
		ORDER BY created_at DESC, id DESC`,
		toMillis(now),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Invitation
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

func (r *invitationsRepo) DeleteStale(ctx context.Context, now time.Time) (int64, error) {
	return affected(r.q.exec(ctx, `
		DELETE FROM invitations
		WHERE accepted_at IS NULL AND (revoked = TRUE OR expires_at <= ?)`,
		toMillis(now),
	))
}
