package http

import (
	"encoding/json"
	"time"

	"github.com/aussiebroadwan/folio/internal/folio/domain"
	"github.com/aussiebroadwan/folio/pkg/folioclient"
)

func toAccount(a domain.Account) folioclient.Account {
	return folioclient.Account{
		ID:          a.ID,
		Email:       a.Email,
		Name:        a.Name,
		Role:        string(a.Role),
		Active:      a.Active,
		CreatedAt:   a.CreatedAt,
		UpdatedAt:   a.UpdatedAt,
		LastLoginAt: a.LastLoginAt,
	}
}

func toSession(s domain.Session, current bool) folioclient.Session {
	return folioclient.Session{
		ID:        s.ID,
		CreatedAt: s.CreatedAt,
		ExpiresAt: s.ExpiresAt,
		UserAgent: s.UserAgent,
		IPAddress: s.IPAddress,
		Current:   current,
	}
}

func toInvitation(i domain.Invitation, now time.Time) folioclient.Invitation {
	return folioclient.Invitation{
		ID:        i.ID,
		Email:     i.Email,
		Role:      string(i.Role),
		ExpiresAt: i.ExpiresAt,
		CreatedAt: i.CreatedAt,
		InvitedBy: i.InvitedBy,
		Status:    string(i.Status(now)),
	}
}

func toAuditEntry(e domain.AuditEntry) folioclient.AuditEntry {
	out := folioclient.AuditEntry{
		ID:           e.ID,
		ActorID:      e.ActorID,
		ActorEmail:   e.ActorEmail,
		Action:       string(e.Action),
		ResourceType: e.ResourceType,
		ResourceID:   e.ResourceID,
		ResourceName: e.ResourceName,
		IPAddress:    e.IPAddress,
		UserAgent:    e.UserAgent,
		Status:       string(e.Status),
		ErrorMessage: e.ErrorMessage,
		CreatedAt:    e.CreatedAt,
	}
	if e.Changes != nil {
		if raw, err := json.Marshal(e.Changes); err == nil {
			out.Changes = raw
		}
	}
	return out
}
