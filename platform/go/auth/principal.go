package auth

import (
	"context"

	"github.com/google/uuid"
)

type ctxKey string

const principalKey ctxKey = "STORELINE_PRINCIPAL"

// Principal is the authenticated user/tenant identity attached to a request
// once the gateway has validated its bearer token and session.
type Principal struct {
	UserID         uuid.UUID
	SessionID      uuid.UUID
	TenantID       *uuid.UUID // nil on the legacy path
	Role           string
	Email          string
	AssignedStores []uuid.UUID
}

// Legacy reports whether the principal was validated on the legacy path.
func (p *Principal) Legacy() bool {
	return p.TenantID == nil
}

// WithPrincipal returns a derived context carrying the principal.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFromContext extracts the principal and a boolean indicating
// presence.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	v := ctx.Value(principalKey)
	if v == nil {
		return nil, false
	}
	p, ok := v.(*Principal)
	return p, ok
}
