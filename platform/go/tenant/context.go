package tenant

import (
	"context"

	"github.com/google/uuid"
)

type ctxKey string

const recordKey ctxKey = "STORELINE_TENANT_RECORD"

// WithRecord returns a derived context carrying the resolved tenant Record.
// It is attached by the authentication gateway once the tenant claim has been
// resolved against the master registry.
func WithRecord(ctx context.Context, rec Record) context.Context {
	return context.WithValue(ctx, recordKey, rec)
}

// FromContext extracts the tenant Record and a boolean indicating presence.
func FromContext(ctx context.Context) (Record, bool) {
	v := ctx.Value(recordKey)
	if v == nil {
		return Record{}, false
	}

	rec, ok := v.(Record)
	return rec, ok
}

// IDFromContext returns the tenant id on the context, or uuid.Nil.
func IDFromContext(ctx context.Context) uuid.UUID {
	rec, ok := FromContext(ctx)
	if !ok {
		return uuid.Nil
	}
	return rec.ID
}
