package domain

import "time"

type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "pending"
	InvitationAccepted InvitationStatus = "accepted"
	InvitationExpired  InvitationStatus = "expired"
	InvitationRevoked  InvitationStatus = "revoked"
)

type Invitation struct {
	ID         string // ULID
	Email      string // normalized
	Role       Role
	TokenHash  string
	ExpiresAt  time.Time
	InvitedBy  int64
	AcceptedAt *time.Time
	Revoked    bool
	CreatedAt  time.Time
}

// Consumable reports whether the invitation can still be turned into an
// account: not revoked, not expired, not yet accepted.
func (i Invitation) Consumable(now time.Time) bool {
	return i.Status(now) == InvitationPending
}

func (i Invitation) Status(now time.Time) InvitationStatus {
	switch {
	case i.AcceptedAt != nil:
		return InvitationAccepted
	case i.Revoked:
		return InvitationRevoked
	case !now.Before(i.ExpiresAt):
		return InvitationExpired
	default:
		return InvitationPending
	}
}

func (i Invitation) AuditFields() Fields {
	return Fields{
		"email":      i.Email,
		"role":       string(i.Role),
		"expires_at": i.ExpiresAt.UTC().Format(time.RFC3339),
	}
}
