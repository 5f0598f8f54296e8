package service

import (
	"github.com/google/uuid"
)

// ConnectionInvalidator is the slice of the connection router a status
// transition needs: dropping cached registry metadata and closing a live
// per-tenant pool.
type ConnectionInvalidator interface {
	InvalidateTenantCache(tenantID uuid.UUID)
	CloseTenant(tenantID uuid.UUID)
}

// PermissionInvalidator purges cached permission contexts for a tenant.
type PermissionInvalidator interface {
	InvalidateTenant(tenantID uuid.UUID)
}

// NoopConnectionInvalidator is used where no router is running (CLI, tests).
type NoopConnectionInvalidator struct{}

func (NoopConnectionInvalidator) InvalidateTenantCache(uuid.UUID) {}
func (NoopConnectionInvalidator) CloseTenant(uuid.UUID)           {}

// NoopPermissionInvalidator is used where no resolver is running.
type NoopPermissionInvalidator struct{}

func (NoopPermissionInvalidator) InvalidateTenant(uuid.UUID) {}
