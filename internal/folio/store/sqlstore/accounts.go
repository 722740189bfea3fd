package sqlstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/aussiebroadwan/folio/internal/folio/domain"
)

type accountsRepo struct{ q *Queries }

const accountCols = `id, email, password_hash, name, role, active, created_at, updated_at, last_login_at`

type scanner interface {
	Scan(dest ...any) error
}

// accountRow holds the raw columns of an accounts row.
type accountRow struct {
	a                domain.Account
	role             string
	created, updated int64
	lastLogin        sql.NullInt64
}

func (r *accountRow) dest() []any {
	return []any{&r.a.ID, &r.a.Email, &r.a.PasswordHash, &r.a.Name, &r.role, &r.a.Active, &r.created, &r.updated, &r.lastLogin}
}

func (r *accountRow) account() domain.Account {
	a := r.a
	a.Role = domain.Role(r.role)
	a.CreatedAt = fromMillis(r.created)
	a.UpdatedAt = fromMillis(r.updated)
	a.LastLoginAt = mapNullMillis(r.lastLogin)
	return a
}

func scanAccount(row scanner) (domain.Account, error) {
	var r accountRow
	if err := row.Scan(r.dest()...); err != nil {
		return domain.Account{}, err
	}
	return r.account(), nil
}

func (r *accountsRepo) GetByID(ctx context.Context, id int64) (domain.Account, error) {
	a, err := scanAccount(r.q.queryRow(ctx, `SELECT `+accountCols+` FROM accounts WHERE id = ?`, id))
	return a, mapNotFound(err)
}

func (r *accountsRepo) GetByEmail(ctx context.Context, email string) (domain.Account, error) {
	a, err := scanAccount(r.q.queryRow(ctx, `SELECT `+accountCols+` FROM accounts WHERE email = ?`, email))
	return a, mapNotFound(err)
}

func (r *accountsRepo) List(ctx context.Context) ([]domain.Account, error) {
	rows, err := r.q.query(ctx, `SELECT `+accountCols+` FROM accounts ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *accountsRepo) Create(ctx context.Context, a domain.Account) (int64, error) {
	var id int64
	err := r.q.queryRow(ctx, `
		INSERT INTO accounts (email, password_hash, name, role, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING id`,
		a.Email, a.PasswordHash, a.Name, string(a.Role), a.Active, toMillis(a.CreatedAt), toMillis(a.UpdatedAt),
	).Scan(&id)
	if err != nil {
		return 0, r.q.mapWriteErr(err)
	}
	return id, nil
}

func (r *accountsRepo) Update(ctx context.Context, a domain.Account) error {
	return expectOne(r.q.exec(ctx, `
		UPDATE accounts SET name = ?, role = ?, active = ?, updated_at = ?
		WHERE id = ?`,
		a.Name, string(a.Role), a.Active, toMillis(a.UpdatedAt), a.ID,
	))
}

func (r *accountsRepo) UpdatePasswordHash(ctx context.Context, id int64, hash string, at time.Time) error {
	return expectOne(r.q.exec(ctx, `UPDATE accounts SET password_hash = ?, updated_at = ? WHERE id = ?`, hash, toMillis(at), id))
}

func (r *accountsRepo) TouchLastLogin(ctx context.Context, id int64, at time.Time) error {
	return expectOne(r.q.exec(ctx, `UPDATE accounts SET last_login_at = ? WHERE id = ?`, toMillis(at), id))
}

func (r *accountsRepo) Delete(ctx context.Context, id int64) error {
	return expectOne(r.q.exec(ctx, `DELETE FROM accounts WHERE id = ?`, id))
}

func (r *accountsRepo) Count(ctx context.Context) (int, error) {
	var n int
	err := r.q.queryRow(ctx, `SELECT COUNT(*) FROM accounts`).Scan(&n)
	return n, err
}
