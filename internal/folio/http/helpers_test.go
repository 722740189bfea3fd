package http_test

import (
	"context"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/folio/internal/folio/audit"
	"github.com/aussiebroadwan/folio/internal/folio/domain"
	httpapi "github.com/aussiebroadwan/folio/internal/folio/http"
	"github.com/aussiebroadwan/folio/internal/folio/obs"
	"github.com/aussiebroadwan/folio/internal/folio/service"
	"github.com/aussiebroadwan/folio/internal/folio/store"
	"github.com/aussiebroadwan/folio/internal/folio/store/drivers/sqlite"
	"github.com/aussiebroadwan/folio/pkg/cryptox"
	"github.com/aussiebroadwan/folio/pkg/folioclient"
	"github.com/aussiebroadwan/folio/pkg/ratelimit"
	"github.com/aussiebroadwan/folio/pkg/slogx"
)

const (
	adminEmail    = "admin@example.com"
	adminPassword = "tG7!pQ2#vL9@xR4$"
	alicePassword = "mK4$wZ8!nB3%yH6&"
)

type sentMail struct {
	to, link string
}

type recordingMailer struct {
	mu   sync.Mutex
	sent []sentMail
}

func (m *recordingMailer) SendInvitation(_ context.Context, to, link string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMail{to: to, link: link})
	return nil
}

func (m *recordingMailer) last() sentMail {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return sentMail{}
	}
	return m.sent[len(m.sent)-1]
}

type testServer struct {
	*httptest.Server

	store    store.Store
	accounts *service.AccountService
	mailer   *recordingMailer
	registry *prometheus.Registry
	admin    domain.Account
}

type serverOption func(*httpapi.Router)

func withLoginLimit(cfg ratelimit.Config) serverOption {
	return func(r *httpapi.Router) { r.LoginLimiter = ratelimit.NewMemory(cfg) }
}

func withUploads(dir string) serverOption {
	return func(r *httpapi.Router) { r.UploadsDir = dir }
}

// newTestServer wires the full stack over an in-memory sqlite store and
// seeds one admin account.
func newTestServer(t *testing.T, opts ...serverOption) *testServer {
	t.Helper()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	require.NoError(t, st.ApplyMigrations())
	t.Cleanup(func() { _ = st.Close() })

	reg := prometheus.NewRegistry()
	metrics := obs.New(reg)
	mailer := &recordingMailer{}
	hasher := &cryptox.Hasher{
		Params: cryptox.Argon2Params{Memory: 64, Iterations: 1, Parallelism: 1, KeyLength: 32, SaltLength: 16},
		Pepper: "test-pepper",
	}

	sessions := &service.SessionManager{Store: st}
	invitations := &service.InvitationManager{Store: st, Mailer: mailer, AcceptURL: "https://cms.example.com/accept"}
	accounts := &service.AccountService{
		Store:       st,
		Hasher:      hasher,
		Policy:      service.DefaultPasswordPolicy(),
		Sessions:    sessions,
		Invitations: invitations,
	}

	r := httpapi.NewRouter("test", st, slogx.Discard())
	r.Accounts = accounts
	r.Sessions = sessions
	r.Invitations = invitations
	r.Audit = &audit.Writer{Repo: st.Audit(), OnWrite: func(_ domain.AuditEntry, err error) { metrics.AuditWrite(err) }}
	r.Metrics = metrics
	r.Gatherer = reg
	for _, opt := range opts {
		opt(r)
	}
	r.ApplyRoutes()

	admin, err := accounts.Seed(context.Background(), adminEmail, adminPassword, "Admin")
	require.NoError(t, err)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	return &testServer{
		Server:   srv,
		store:    st,
		accounts: accounts,
		mailer:   mailer,
		registry: reg,
		admin:    admin,
	}
}

func (s *testServer) client(t *testing.T) *folioclient.Client {
	t.Helper()
	c, err := folioclient.New(s.URL)
	require.NoError(t, err)
	return c
}

// login returns a client holding both the CSRF and session cookies.
func (s *testServer) login(t *testing.T, email, password string) *folioclient.Client {
	t.Helper()
	c := s.client(t)
	_, err := c.CSRF(t.Context())
	require.NoError(t, err)
	_, err = c.Login(t.Context(), email, password)
	require.NoError(t, err)
	require.True(t, c.HasSession())
	return c
}

// invite provisions an account through the invitation flow.
func (s *testServer) invite(t *testing.T, admin *folioclient.Client, email, role, password string) folioclient.Account {
	t.Helper()
	inv, err := admin.Invite(t.Context(), email, role)
	require.NoError(t, err)

	acct, err := s.client(t).AcceptInvitation(t.Context(), folioclient.AcceptInvitationRequest{
		Token:    inv.Token,
		Password: password,
	})
	require.NoError(t, err)
	return *acct
}

func (s *testServer) auditEntries(t *testing.T, action domain.AuditAction) []domain.AuditEntry {
	t.Helper()
	entries, err := s.store.Audit().List(context.Background(), store.AuditFilter{Action: action, Limit: 100})
	require.NoError(t, err)
	return entries
}
