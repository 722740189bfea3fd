package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/aussiebroadwan/folio/internal/folio/domain"
	"github.com/aussiebroadwan/folio/internal/folio/store"
	"github.com/aussiebroadwan/folio/pkg/cryptox"
	"github.com/aussiebroadwan/folio/pkg/idx"
	"github.com/aussiebroadwan/folio/pkg/slogx"
)

// DefaultInvitationTTL is how long an invitation stays consumable.
const DefaultInvitationTTL = 7 * 24 * time.Hour

// Mailer delivers a single activation link to a recipient.
type Mailer interface {
	SendInvitation(ctx context.Context, to, link string) error
}

// IssuedInvitation is returned once by Create. Token is the only copy of
// the raw invitation credential, Link embeds it.
type IssuedInvitation struct {
	Invitation domain.Invitation
	Token      string
	Link       string
	// Delivered is false when no Mailer is configured or sending failed.
	// The link then has to be handed over out of band.
	Delivered bool
}

type InvitationManager struct {
	Store store.Store
	TTL   time.Duration
	Now   func() time.Time
	IDs   *idx.Generator

	Mailer Mailer
	// AcceptURL is the page that accepts invitations. The token is added
	// as the "token" query parameter.
	AcceptURL string
}

func (m *InvitationManager) now() time.Time {
	if m.Now != nil {
		return m.Now().UTC()
	}
	return time.Now().UTC()
}

func (m *InvitationManager) ttl() time.Duration {
	if m.TTL > 0 {
		return m.TTL
	}
	return DefaultInvitationTTL
}

// Create issues an invitation for email with role, revoking any pending one
// for the same address first.
func (m *InvitationManager) Create(ctx context.Context, email string, role domain.Role, issuerID int64) (IssuedInvitation, error) {
	log := slogx.FromContext(ctx)

	// 1. Validate input.
	email = domain.NormalizeEmail(email)
	if !domain.ValidEmail(email) {
		return IssuedInvitation{}, InvalidField("email", "must be a valid email address")
	}
	if !role.Valid() {
		return IssuedInvitation{}, InvalidField("role", "must be one of admin, editor, viewer")
	}

	// 2. Refuse to invite an address that already has an account.
	if _, err := m.Store.Accounts().GetByEmail(ctx, email); err == nil {
		log.Warn("attempted to invite existing account", slog.String("email", email))
		return IssuedInvitation{}, ErrAccountExists
	} else if !errors.Is(err, store.ErrNotFound) {
		return IssuedInvitation{}, fmt.Errorf("lookup account: %w", err)
	}

	// 3. Mint the token.
	token, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return IssuedInvitation{}, fmt.Errorf("generate invitation token: %w", err)
	}
	now := m.now()
	id := idx.New()
	if m.IDs != nil {
		id = m.IDs.NewAt(now)
	}
	inv := domain.Invitation{
		ID:        id.String(),
		Email:     email,
		Role:      role,
		TokenHash: cryptox.FingerprintToken(token),
		ExpiresAt: now.Add(m.ttl()),
		InvitedBy: issuerID,
		CreatedAt: now,
	}

	// 4. Revoke the previous pending invitation and store the new one
	// atomically so there is never more than one live token per address.
	var revoked int64
	err = m.Store.WithTx(ctx, func(tx store.Tx) error {
		n, err := tx.Invitations().RevokePendingForEmail(ctx, email)
		if err != nil {
			return err
		}
		revoked = n
		return tx.Invitations().Create(ctx, inv)
	})
	if err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return IssuedInvitation{}, fmt.Errorf("%w: another invitation for this email was issued concurrently", ErrConflict)
		}
		return IssuedInvitation{}, fmt.Errorf("store invitation: %w", err)
	}

	log.Info("invitation created",
		slog.String("invitation_id", inv.ID),
		slog.String("email", email),
		slog.String("role", string(role)),
		slog.Int64("revoked_previous", revoked),
	)

	// 5. Hand the link to the mailer. Failure leaves the invitation intact.
	issued := IssuedInvitation{Invitation: inv, Token: token, Link: m.link(token)}
	if m.Mailer != nil {
		if err := m.Mailer.SendInvitation(ctx, email, issued.Link); err != nil {
			log.Error("failed to deliver invitation",
				slog.String("invitation_id", inv.ID),
				slog.Any("error", err),
			)
		} else {
			issued.Delivered = true
		}
	}
	return issued, nil
}

func (m *InvitationManager) link(token string) string {
	base := m.AcceptURL
	if base == "" {
		base = "/invitations/accept"
	}
	u, err := url.Parse(base)
	if err != nil {
		return base + "?token=" + url.QueryEscape(token)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String()
}

// Consume returns the invitation behind token if it is still consumable.
// It does not mark acceptance; callers do that after provisioning succeeds.
func (m *InvitationManager) Consume(ctx context.Context, token string) (domain.Invitation, error) {
	return m.consume(ctx, m.Store, token)
}

func (m *InvitationManager) consume(ctx context.Context, r store.Repos, token string) (domain.Invitation, error) {
	if !cryptox.WellFormedToken(token, cryptox.TokenSize256) {
		return domain.Invitation{}, ErrInvitationInvalid
	}
	inv, err := r.Invitations().GetByTokenHash(ctx, cryptox.FingerprintToken(token))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Invitation{}, ErrInvitationInvalid
		}
		return domain.Invitation{}, fmt.Errorf("lookup invitation: %w", err)
	}
	if !inv.Consumable(m.now()) {
		slogx.FromContext(ctx).Warn("invitation not consumable",
			slog.String("invitation_id", inv.ID),
			slog.String("status", string(inv.Status(m.now()))),
		)
		return domain.Invitation{}, ErrInvitationInvalid
	}
	return inv, nil
}

// MarkAccepted stamps the acceptance instant. Repeated calls are no-ops.
func (m *InvitationManager) MarkAccepted(ctx context.Context, id string) error {
	_, err := m.markAccepted(ctx, m.Store, id)
	return err
}

func (m *InvitationManager) markAccepted(ctx context.Context, r store.Repos, id string) (bool, error) {
	stamped, err := r.Invitations().MarkAccepted(ctx, id, m.now())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, ErrNotFound
		}
		return false, fmt.Errorf("mark invitation accepted: %w", err)
	}
	return stamped, nil
}

// Revoke cancels a pending invitation.
func (m *InvitationManager) Revoke(ctx context.Context, id string) (domain.Invitation, error) {
	inv, err := m.Store.Invitations().GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Invitation{}, ErrNotFound
		}
		return domain.Invitation{}, err
	}
	if err := m.Store.Invitations().Revoke(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return inv, fmt.Errorf("%w: invitation is no longer pending", ErrConflict)
		}
		return inv, err
	}
	inv.Revoked = true
	return inv, nil
}

// ListPending returns consumable invitations, newest first.
func (m *InvitationManager) ListPending(ctx context.Context) ([]domain.Invitation, error) {
	return m.Store.Invitations().ListPending(ctx, m.now())
}
