package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/folio/internal/folio/domain"
	"github.com/aussiebroadwan/folio/internal/folio/store"
	"github.com/aussiebroadwan/folio/pkg/cryptox"
	"github.com/aussiebroadwan/folio/pkg/idx"
	"github.com/aussiebroadwan/folio/pkg/slogx"
)

// DefaultSessionTTL is how long a freshly issued session lives.
const DefaultSessionTTL = 24 * time.Hour

// ClientMeta is optional forensic metadata stored with a session.
type ClientMeta struct {
	UserAgent string
	IPAddress string
}

// IssuedSession is returned once by Create. Token is the only copy of the
// raw bearer credential.
type IssuedSession struct {
	Token     string
	ExpiresAt time.Time
	Session   domain.Session
}

// SessionManager is the only authority on who the caller is.
type SessionManager struct {
	Store store.Store
	TTL   time.Duration
	Now   func() time.Time
	IDs   *idx.Generator

	// Reaper, when set, gets a chance to run after each successful Resolve.
	Reaper *Reaper
}

func (m *SessionManager) now() time.Time {
	if m.Now != nil {
		return m.Now().UTC()
	}
	return time.Now().UTC()
}

func (m *SessionManager) ttl() time.Duration {
	if m.TTL > 0 {
		return m.TTL
	}
	return DefaultSessionTTL
}

func (m *SessionManager) newID(at time.Time) string {
	if m.IDs != nil {
		return m.IDs.NewAt(at).String()
	}
	return idx.New().String()
}

// Create mints a session for accountID and stores only the token hash.
func (m *SessionManager) Create(ctx context.Context, accountID int64, meta ClientMeta) (IssuedSession, error) {
	token, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return IssuedSession{}, fmt.Errorf("generate session token: %w", err)
	}

	now := m.now()
	s := domain.Session{
		ID:        m.newID(now),
		TokenHash: cryptox.FingerprintToken(token),
		AccountID: accountID,
		ExpiresAt: now.Add(m.ttl()),
		CreatedAt: now,
		UserAgent: truncate(meta.UserAgent, 512),
		IPAddress: truncate(meta.IPAddress, 64),
	}
	if err := m.Store.Sessions().Create(ctx, s); err != nil {
		return IssuedSession{}, fmt.Errorf("store session: %w", err)
	}

	slogx.FromContext(ctx).Debug("session created",
		slog.String("session_id", s.ID),
		slog.Int64("account_id", accountID),
	)
	return IssuedSession{Token: token, ExpiresAt: s.ExpiresAt, Session: s}, nil
}

// Resolve returns the session and its owner. Malformed, unknown, expired
// and disabled-owner tokens all return ErrUnauthenticated.
func (m *SessionManager) Resolve(ctx context.Context, token string) (domain.Session, domain.Account, error) {
	if !cryptox.WellFormedToken(token, cryptox.TokenSize256) {
		return domain.Session{}, domain.Account{}, ErrUnauthenticated
	}

	s, a, err := m.Store.Sessions().GetActiveByTokenHash(ctx, cryptox.FingerprintToken(token), m.now())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Session{}, domain.Account{}, ErrUnauthenticated
		}
		return domain.Session{}, domain.Account{}, fmt.Errorf("resolve session: %w", err)
	}

	if m.Reaper != nil {
		m.Reaper.MaybeRun(ctx)
	}
	return s, a, nil
}

// Destroy deletes the session behind token. Unknown tokens are not an error.
func (m *SessionManager) Destroy(ctx context.Context, token string) error {
	if !cryptox.WellFormedToken(token, cryptox.TokenSize256) {
		return nil
	}
	if err := m.Store.Sessions().DeleteByTokenHash(ctx, cryptox.FingerprintToken(token)); err != nil {
		return fmt.Errorf("destroy session: %w", err)
	}
	return nil
}

// DestroyAllForAccount revokes every session of accountID. When exceptToken
// is non-empty the session it names survives.
func (m *SessionManager) DestroyAllForAccount(ctx context.Context, accountID int64, exceptToken string) (int64, error) {
	return destroyAllForAccount(ctx, m.Store, accountID, exceptToken)
}

func destroyAllForAccount(ctx context.Context, r store.Repos, accountID int64, exceptToken string) (int64, error) {
	except := ""
	if exceptToken != "" {
		except = cryptox.FingerprintToken(exceptToken)
	}
	n, err := r.Sessions().DeleteForAccount(ctx, accountID, except)
	if err != nil {
		return 0, fmt.Errorf("revoke sessions: %w", err)
	}
	if n > 0 {
		slogx.FromContext(ctx).Info("sessions revoked",
			slog.Int64("account_id", accountID),
			slog.Int64("count", n),
			slog.Bool("kept_current", except != ""),
		)
	}
	return n, nil
}

// ReapExpired deletes sessions past their expiry.
func (m *SessionManager) ReapExpired(ctx context.Context) (int64, error) {
	n, err := m.Store.Sessions().DeleteExpired(ctx, m.now())
	if err != nil {
		return 0, fmt.Errorf("reap sessions: %w", err)
	}
	return n, nil
}

// ListForAccount returns the live sessions of accountID, newest first.
func (m *SessionManager) ListForAccount(ctx context.Context, accountID int64) ([]domain.Session, error) {
	return m.Store.Sessions().ListForAccount(ctx, accountID, m.now())
}

// IsCurrent reports whether s is the session behind token.
func IsCurrent(s domain.Session, token string) bool {
	return token != "" && cryptox.ConstantTimeEqual(s.TokenHash, cryptox.FingerprintToken(token))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
