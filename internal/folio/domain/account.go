package domain

import (
	"fmt"
	"net/mail"
	"strings"
	"time"
)

type Role string

const (
	RoleAdmin  Role = "admin" // elevated administrator
	RoleEditor Role = "editor"
	RoleViewer Role = "viewer"
)

// Roles lists every assignable role, most privileged first.
var Roles = []Role{RoleAdmin, RoleEditor, RoleViewer}

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleEditor, RoleViewer:
		return true
	}
	return false
}

func (r Role) IsAdmin() bool { return r == RoleAdmin }

func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

type Account struct {
	ID           int64
	Email        string // normalized, unique
	PasswordHash string // self-describing, see cryptox.Hasher
	Name         string
	Role         Role
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
	LastLoginAt  *time.Time
}

// NormalizeEmail trims and lower-cases an identifier so lookups and
// uniqueness are case-insensitive.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ValidEmail reports whether s (already normalized) is a bare address.
func ValidEmail(s string) bool {
	if s == "" || len(s) > 254 {
		return false
	}
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s && addr.Name == ""
}

// AuditFields is the view of a that audit diffs are computed over. The password hash
// is never part of it.
func (a Account) AuditFields() Fields {
	return Fields{
		"email":  a.Email,
		"name":   a.Name,
		"role":   string(a.Role),
		"active": a.Active,
	}
}
