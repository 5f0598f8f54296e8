package requesttrace

import (
	"context"
	"errors"

	platformauth "github.com/storeline-hq/storeline-core/platform/go/auth"
)

type contextKey string

const (
	ctxAuditInfo contextKey = "STORELINE_REQUEST_TRACE"
)

// ActorKind represents who initiated a request.
type ActorKind string

const (
	ActorKindUser      ActorKind = "user"
	ActorKindAnonymous ActorKind = "anonymous"
	ActorKindSystem    ActorKind = "system"
)

// AuditInfo captures request-scoped metadata needed for traceability and
// auditing. UserID is set only when ActorKind is user; TenantID is nil on the
// legacy path.
type AuditInfo struct {
	ActorKind ActorKind
	UserID    *string
	TenantID  *string
	RequestID string
}

// IntoContext stores the AuditInfo in the provided context.
func IntoContext(ctx context.Context, audit AuditInfo) context.Context {
	return context.WithValue(ctx, ctxAuditInfo, audit)
}

// FromContext extracts the AuditInfo from context, returning false when not present.
func FromContext(ctx context.Context) (AuditInfo, bool) {
	if ctx == nil {
		return AuditInfo{}, false
	}
	v := ctx.Value(ctxAuditInfo)
	if v == nil {
		return AuditInfo{}, false
	}

	audit, ok := v.(AuditInfo)
	return audit, ok
}

// FromContextOrAnonymous returns the AuditInfo stored on the context, or an
// anonymous record when absent.
func FromContextOrAnonymous(ctx context.Context) AuditInfo {
	if audit, ok := FromContext(ctx); ok {
		return audit
	}
	return Anonymous("")
}

// FromPrincipal builds an AuditInfo from the authenticated principal and a
// request ID.
func FromPrincipal(principal *platformauth.Principal, requestID string) (AuditInfo, error) {
	if principal == nil {
		return AuditInfo{}, errors.New("principal is required to build audit info")
	}

	userID := principal.UserID.String()
	audit := AuditInfo{
		ActorKind: ActorKindUser,
		UserID:    &userID,
		RequestID: requestID,
	}
	if principal.TenantID != nil {
		tenantID := principal.TenantID.String()
		audit.TenantID = &tenantID
	}
	return audit, nil
}

// Anonymous builds an AuditInfo for unauthenticated requests (e.g., login)
// where no user ID exists yet.
func Anonymous(requestID string) AuditInfo {
	return AuditInfo{ActorKind: ActorKindAnonymous, RequestID: requestID}
}

// System builds an AuditInfo for background/system operations.
func System(requestID string) AuditInfo {
	return AuditInfo{ActorKind: ActorKindSystem, RequestID: requestID}
}
