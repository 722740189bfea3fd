package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/folio/internal/folio/domain"
	"github.com/aussiebroadwan/folio/internal/folio/store"
	"github.com/aussiebroadwan/folio/internal/folio/store/drivers/sqlite"
	"github.com/aussiebroadwan/folio/pkg/cryptox"
	"github.com/aussiebroadwan/folio/pkg/idx"
	"github.com/stretchr/testify/require"
)

const strongPassword = "tG7!pQ2#vL9@xR4$"

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEnv struct {
	store       store.Store
	clock       *fakeClock
	hasher      *cryptox.Hasher
	sessions    *SessionManager
	invitations *InvitationManager
	accounts    *AccountService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	require.NoError(t, st.ApplyMigrations())
	t.Cleanup(func() { _ = st.Close() })

	clock := newFakeClock()
	ids := idx.NewGenerator(clock.Now)
	hasher := &cryptox.Hasher{
		Params: cryptox.Argon2Params{Memory: 64, Iterations: 1, Parallelism: 1, KeyLength: 32, SaltLength: 16},
		Pepper: "test-pepper",
	}

	env := &testEnv{store: st, clock: clock, hasher: hasher}
	env.sessions = &SessionManager{Store: st, Now: clock.Now, IDs: ids}
	env.invitations = &InvitationManager{Store: st, Now: clock.Now, IDs: ids, AcceptURL: "https://cms.example.com/accept"}
	env.accounts = &AccountService{
		Store:       st,
		Hasher:      hasher,
		Policy:      DefaultPasswordPolicy(),
		Sessions:    env.sessions,
		Invitations: env.invitations,
		Now:         clock.Now,
	}
	return env
}

// createAccount inserts an active account directly through the store.
func (e *testEnv) createAccount(t *testing.T, email string, role domain.Role) domain.Account {
	t.Helper()

	hash, err := e.hasher.Hash(strongPassword)
	require.NoError(t, err)

	now := e.clock.Now()
	a := domain.Account{
		Email:        email,
		PasswordHash: hash,
		Name:         "Test " + string(role),
		Role:         role,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	a.ID, err = e.store.Accounts().Create(context.Background(), a)
	require.NoError(t, err)
	return a
}
