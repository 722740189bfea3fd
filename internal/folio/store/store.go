package store

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/folio/internal/folio/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Repos exposes the sub-repositories. Both Store and Tx implement it, so
// service code reads the same inside and outside a transaction.
type Repos interface {
	Accounts() Accounts
	Sessions() Sessions
	Invitations() Invitations
	Audit() Audit
}

// Store is the root data access interface. Concrete drivers (sqlite, postgres)
// implement this.
type Store interface {
	Repos

	ApplyMigrations() error

	// WithTx executes a function within a transaction.
	// If fn returns an error, the transaction is rolled back.
	// If fn returns nil, the transaction is committed.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transaction-scoped set of repos. Nested transactions are not
// supported, so Tx deliberately has no WithTx.
type Tx interface {
	Repos
}

type Accounts interface {
	// GetByID returns an account by id.
	GetByID(ctx context.Context, id int64) (domain.Account, error)

	// GetByEmail looks up by normalized email.
	GetByEmail(ctx context.Context, email string) (domain.Account, error)

	// List returns all accounts ordered by id.
	List(ctx context.Context) ([]domain.Account, error)

	// Create inserts a and returns the assigned id. ErrAlreadyExists when
	// the email is taken.
	Create(ctx context.Context, a domain.Account) (int64, error)

	// Update writes name, role and active and bumps updated_at.
	Update(ctx context.Context, a domain.Account) error

	// UpdatePasswordHash sets password_hash and bumps updated_at.
	UpdatePasswordHash(ctx context.Context, id int64, hash string, at time.Time) error

	// TouchLastLogin stamps last_login_at.
	TouchLastLogin(ctx context.Context, id int64, at time.Time) error

	// Delete removes the account. Callers revoke sessions first.
	Delete(ctx context.Context, id int64) error

	// Count returns the number of accounts.
	Count(ctx context.Context) (int, error)
}

type Sessions interface {
	// Create stores a session row. Only the token hash is persisted.
	Create(ctx context.Context, s domain.Session) error

	// GetActiveByTokenHash returns the session and its account when the
	// session is unexpired at now and the account is active. Every other
	// case is ErrNotFound.
	GetActiveByTokenHash(ctx context.Context, hash string, now time.Time) (domain.Session, domain.Account, error)

	// DeleteByTokenHash is idempotent.
	DeleteByTokenHash(ctx context.Context, hash string) error

	// DeleteForAccount removes every session of accountID except the one
	// whose hash is exceptHash (pass "" to remove all). Returns the count.
	DeleteForAccount(ctx context.Context, accountID int64, exceptHash string) (int64, error)

	// ListForAccount returns unexpired sessions, newest first.
	ListForAccount(ctx context.Context, accountID int64, now time.Time) ([]domain.Session, error)

	// DeleteExpired removes sessions expired at now. Returns the count.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type Invitations interface {
	// Create writes a new invitation. ErrAlreadyExists if a pending
	// invitation for the email still exists.
	Create(ctx context.Context, inv domain.Invitation) error

	// RevokePendingForEmail revokes every unaccepted, unrevoked invitation
	// for email. Returns the count.
	RevokePendingForEmail(ctx context.Context, email string) (int64, error)

	// GetByTokenHash returns the invitation regardless of its state.
	GetByTokenHash(ctx context.Context, hash string) (domain.Invitation, error)

	// GetByID returns the invitation regardless of its state.
	GetByID(ctx context.Context, id string) (domain.Invitation, error)

	// MarkAccepted stamps accepted_at if it is still null and reports
	// whether this call was the one that stamped it.
	MarkAccepted(ctx context.Context, id string, at time.Time) (bool, error)

	// Revoke flips revoked on an unaccepted invitation. ErrNotFound when
	// there is no such pending row.
	Revoke(ctx context.Context, id string) error

	// ListPending returns consumable invitations at now, newest first.
	ListPending(ctx context.Context, now time.Time) ([]domain.Invitation, error)

	// DeleteStale removes invitations that are revoked, or expired and
	// unaccepted, at now. Returns the count.
	DeleteStale(ctx context.Context, now time.Time) (int64, error)
}

// AuditFilter narrows Audit.List. Zero values mean "any".
type AuditFilter struct {
	ActorID      *int64
	Action       domain.AuditAction
	ResourceType string
	ResourceID   *int64
	Limit        int
}

type Audit interface {
	// Append writes an entry. Entries are never updated or deleted.
	Append(ctx context.Context, e domain.AuditEntry) error

	// List returns entries newest first.
	List(ctx context.Context, f AuditFilter) ([]domain.AuditEntry, error)
}
