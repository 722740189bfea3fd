package folioclient

import (
	"encoding/json"
	"time"
)

// ============================================================================
// Accounts
// ============================================================================

// Account is the public view of an account. The password hash is never sent.
type Account struct {
	ID          int64      `json:"id"`
	Email       string     `json:"email"`
	Name        string     `json:"name"`
	Role        string     `json:"role"`
	Active      bool       `json:"active"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}

type AccountList struct {
	Accounts []Account `json:"accounts"`
}

// UpdateAccountRequest is an administrative edit. Omitted fields are kept.
type UpdateAccountRequest struct {
	Name   *string `json:"name,omitempty"`
	Role   *string `json:"role,omitempty"`
	Active *bool   `json:"active,omitempty"`
}

type UpdateProfileRequest struct {
	Name string `json:"name"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// RevokedResponse reports how many sessions an operation revoked.
type RevokedResponse struct {
	Revoked int64 `json:"revoked"`
}

// ============================================================================
// Authentication
// ============================================================================

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Account   Account   `json:"account"`
	ExpiresAt time.Time `json:"expires_at"`
}

type CSRFResponse struct {
	Token  string `json:"csrf_token"`
	Header string `json:"header"`
}

type Session struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	UserAgent string    `json:"user_agent,omitempty"`
	IPAddress string    `json:"ip_address,omitempty"`
	Current   bool      `json:"current"`
}

type SessionList struct {
	Sessions []Session `json:"sessions"`
}

type PasswordCheckRequest struct {
	Password string `json:"password"`
	Email    string `json:"email,omitempty"`
	Name     string `json:"name,omitempty"`
}

type PasswordCheckResponse struct {
	Valid       bool     `json:"valid"`
	Score       int      `json:"score"`
	Errors      []string `json:"errors"`
	Suggestions []string `json:"suggestions"`
}

// ============================================================================
// Invitations
// ============================================================================

type InvitationRequest struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

type Invitation struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
	InvitedBy int64     `json:"invited_by,omitempty"`
	Status    string    `json:"status"`
}

// InvitationResponse is returned once when an invitation is issued. AcceptURL
// carries the raw token; hand it over manually when Delivered is false.
type InvitationResponse struct {
	Invitation Invitation `json:"invitation"`
	AcceptURL  string     `json:"accept_url"`
	Token      string     `json:"token"`
	Delivered  bool       `json:"delivered"`
}

type InvitationList struct {
	Invitations []Invitation `json:"invitations"`
}

type AcceptInvitationRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
	Name     string `json:"name,omitempty"`
}

// ============================================================================
// Audit
// ============================================================================

type AuditEntry struct {
	ID           string          `json:"id"`
	ActorID      *int64          `json:"actor_id"`
	ActorEmail   string          `json:"actor_email"`
	Action       string          `json:"action"`
	ResourceType string          `json:"resource_type"`
	ResourceID   *int64          `json:"resource_id,omitempty"`
	ResourceName string          `json:"resource_name,omitempty"`
	Changes      json.RawMessage `json:"changes,omitempty"`
	IPAddress    string          `json:"ip_address,omitempty"`
	UserAgent    string          `json:"user_agent,omitempty"`
	Status       string          `json:"status"`
	ErrorMessage string          `json:"error_message,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

type AuditList struct {
	Entries []AuditEntry `json:"entries"`
}

// AuditQuery filters ListAudit. Zero values mean "any".
type AuditQuery struct {
	Action       string
	ResourceType string
	ActorID      int64
	ResourceID   int64
	Limit        int
}

// ============================================================================
// Health
// ============================================================================

type HealthChecks struct {
	Database string `json:"database"`
}

type HealthResponse struct {
	Status  string        `json:"status"`
	Uptime  string        `json:"uptime"`
	Version string        `json:"version"`
	Checks  *HealthChecks `json:"checks,omitempty"`
}
