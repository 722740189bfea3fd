package domain

import "time"

type AuditAction string

const (
	ActionCreate  AuditAction = "create"
	ActionUpdate  AuditAction = "update"
	ActionDelete  AuditAction = "delete"
	ActionPublish AuditAction = "publish"
	ActionLogin   AuditAction = "login"
	ActionLogout  AuditAction = "logout"
	ActionInvite  AuditAction = "invite"
)

type AuditStatus string

const (
	AuditSuccess AuditStatus = "success"
	AuditFailed  AuditStatus = "failed"
)

// Resource types recorded by the perimeter.
const (
	ResourceAccount    = "account"
	ResourceSession    = "session"
	ResourceInvitation = "invitation"
)

// AnonymousActor is recorded as the actor identifier when nobody is logged in.
const AnonymousActor = "anonymous"

type AuditEntry struct {
	ID           string // UUID
	ActorID      *int64 // nil for anonymous actions
	ActorEmail   string // kept even if the account is later deleted
	Action       AuditAction
	ResourceType string
	ResourceID   *int64
	ResourceName string
	Changes      *ChangeSet // nil when nothing changed
	IPAddress    string
	UserAgent    string
	Status       AuditStatus
	ErrorMessage string
	CreatedAt    time.Time
}
