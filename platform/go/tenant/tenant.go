package tenant

import (
	"github.com/google/uuid"
)

// Status is the lifecycle state of a tenant in the master registry.
type Status string

const (
	StatusActive    Status = "active"
	StatusPending   Status = "pending"
	StatusSuspended Status = "suspended"
	StatusDeleted   Status = "deleted"
)

// StatusFromString converts a stored string to Status; defaults to pending on unknown.
func StatusFromString(s string) Status {
	switch Status(s) {
	case StatusActive, StatusPending, StatusSuspended, StatusDeleted:
		return Status(s)
	default:
		return StatusPending
	}
}

// Record is one tenant (a store chain) in the master registry. Each tenant
// owns an isolated database identified by DatabaseName on DatabaseServer.
type Record struct {
	ID               uuid.UUID
	Slug             string
	Status           Status
	DatabaseName     string
	DatabaseServer   string
	SubscriptionPlan string
}

// Active reports whether requests may be routed to this tenant.
func (r Record) Active() bool {
	return r.Status == StatusActive
}
