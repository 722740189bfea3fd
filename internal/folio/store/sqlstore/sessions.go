package sqlstore

import (
	"context"
	"time"

	"github.com/aussiebroadwan/folio/internal/folio/domain"
)

type sessionsRepo struct{ q *Queries }

const sessionCols = `s.id, s.token_hash, s.account_id, s.expires_at, s.created_at, s.user_agent, s.ip_address`

func scanSession(row scanner, extra ...any) (domain.Session, error) {
	var (
		s                domain.Session
		expires, created int64
	)
	dest := append([]any{&s.ID, &s.TokenHash, &s.AccountID, &expires, &created, &s.UserAgent, &s.IPAddress}, extra...)
	if err := row.Scan(dest...); err != nil {
		return domain.Session{}, err
	}
	s.ExpiresAt = fromMillis(expires)
	s.CreatedAt = fromMillis(created)
	return s, nil
}

func (r *sessionsRepo) Create(ctx context.Context, s domain.Session) error {
	_, err := r.q.exec(ctx, `
		INSERT INTO sessions (id, token_hash, account_id, expires_at, created_at, user_agent, ip_address)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.TokenHash, s.AccountID, toMillis(s.ExpiresAt), toMillis(s.CreatedAt), s.UserAgent, s.IPAddress,
	)
	return r.q.mapWriteErr(err)
}

func (r *sessionsRepo) GetActiveByTokenHash(ctx context.Context, hash string, now time.Time) (domain.Session, domain.Account, error) {
	row := r.q.queryRow(ctx, `
		SELECT `+sessionCols+`,
			a.id, a.email, a.password_hash, a.name, a.role, a.active, a.created_at, a.updated_at, a.last_login_at
		FROM sessions s
		JOIN accounts a ON a.id = s.account_id
		WHERE s.token_hash = ? AND s.expires_at > ? AND a.active = TRUE`,
		hash, toMillis(now),
	)

	var acct accountRow
	s, err := scanSession(row, acct.dest()...)
	if err != nil {
		return domain.Session{}, domain.Account{}, mapNotFound(err)
	}
	return s, acct.account(), nil
}

func (r *sessionsRepo) DeleteByTokenHash(ctx context.Context, hash string) error {
	_, err := r.q.exec(ctx, `DELETE FROM sessions WHERE token_hash = ?`, hash)
	return err
}

func (r *sessionsRepo) DeleteForAccount(ctx context.Context, accountID int64, exceptHash string) (int64, error) {
	return affected(r.q.exec(ctx, `DELETE FROM sessions WHERE account_id = ? AND token_hash <> ?`, accountID, exceptHash))
}

func (r *sessionsRepo) ListForAccount(ctx context.Context, accountID int64, now time.Time) ([]domain.Session, error) {
	rows, err := r.q.query(ctx, `
		SELECT `+sessionCols+` FROM sessions s
		WHERE s.account_id = ? AND s.expires_at > ?
		ORDER BY s.created_at DESC, s.id DESC`,
		accountID, toMillis(now),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *sessionsRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return affected(r.q.exec(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, toMillis(now)))
}
