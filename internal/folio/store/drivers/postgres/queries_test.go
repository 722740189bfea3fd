package postgres_test

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/aussiebroadwan/folio/internal/folio/domain"
	"github.com/aussiebroadwan/folio/internal/folio/store"
	"github.com/aussiebroadwan/folio/internal/folio/store/drivers/postgres"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*postgres.Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return postgres.FromDB(db), mock
}

func TestQueries_UseDollarPlaceholders(t *testing.T) {
	st, mock := newMockStore(t)
	now := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM sessions WHERE account_id = $1 AND token_hash <> $2`)).
		WithArgs(int64(7), "keep").
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := st.Sessions().DeleteForAccount(context.Background(), 7, "keep")
	require.NoError(t, err)
	require.Equal(t, int64(3), n)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE invitations SET accepted_at = $1 WHERE id = $2 AND accepted_at IS NULL`)).
		WithArgs(now.UnixMilli(), "inv1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	stamped, err := st.Invitations().MarkAccepted(context.Background(), "inv1", now)
	require.NoError(t, err)
	require.True(t, stamped)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE invitations SET revoked = TRUE WHERE id = $1 AND accepted_at IS NULL AND revoked = FALSE`)).
		WithArgs("inv2").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.ErrorIs(t, st.Invitations().Revoke(context.Background(), "inv2"), store.ErrNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountsCreate_MapsUniqueViolation(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO accounts`)).
		WithArgs("alice@example.com", sqlmock.AnyArg(), sqlmock.AnyArg(), "editor", true, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "accounts_email_key"})

	_, err := st.Accounts().Create(context.Background(), domain.Account{
		Email:  "alice@example.com",
		Role:   domain.RoleEditor,
		Active: true,
	})
	require.ErrorIs(t, err, store.ErrAlreadyExists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountsCreate_ReturnsID(t *testing.T) {
	st, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(`RETURNING id`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(12)))

	id, err := st.Accounts().Create(context.Background(), domain.Account{Email: "bob@example.com", Role: domain.RoleViewer})
	require.NoError(t, err)
	require.Equal(t, int64(12), id)
}

func TestAuditList_BuildsFilter(t *testing.T) {
	st, mock := newMockStore(t)
	actor := int64(3)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM audit_log WHERE actor_id = $1 AND action = $2 ORDER BY created_at DESC, id DESC LIMIT $3`)).
		WithArgs(actor, "login", 10).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "actor_id", "actor_email", "action", "resource_type", "resource_id", "resource_name",
			"changes", "ip_address", "user_agent", "status", "error_message", "created_at",
		}).AddRow("e1", actor, "a@example.com", "login", "session", nil, "a@example.com",
			nil, "203.0.113.1", "ua", "success", nil, int64(1746057600000)))

	entries, err := st.Audit().List(context.Background(), store.AuditFilter{ActorID: &actor, Action: domain.ActionLogin, Limit: 10})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, domain.AuditSuccess, entries[0].Status)
	require.Nil(t, entries[0].Changes)
	require.Nil(t, entries[0].ResourceID)
	require.NoError(t, mock.ExpectationsWereMet())
}
