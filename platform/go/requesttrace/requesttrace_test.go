package requesttrace

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	platformauth "github.com/storeline-hq/storeline-core/platform/go/auth"
)

func TestIntoContextAndFromContext(t *testing.T) {
	audit := AuditInfo{ActorKind: ActorKindUser, UserID: ptr("user-123"), RequestID: "req-abc"}

	ctx := IntoContext(context.Background(), audit)

	got, ok := FromContext(ctx)
	require.True(t, ok)
	require.Equal(t, audit, got)
}

func TestFromContextMissing(t *testing.T) {
	_, ok := FromContext(context.Background())
	require.False(t, ok)
}

func TestFromPrincipal(t *testing.T) {
	userID := uuid.New()
	tenantID := uuid.New()
	principal := &platformauth.Principal{UserID: userID, TenantID: &tenantID}

	audit, err := FromPrincipal(principal, "req-xyz")
	require.NoError(t, err)
	require.Equal(t, ActorKindUser, audit.ActorKind)
	require.NotNil(t, audit.UserID)
	require.Equal(t, userID.String(), *audit.UserID)
	require.NotNil(t, audit.TenantID)
	require.Equal(t, tenantID.String(), *audit.TenantID)
	require.Equal(t, "req-xyz", audit.RequestID)
}

func TestFromPrincipalLegacy(t *testing.T) {
	principal := &platformauth.Principal{UserID: uuid.New()}

	audit, err := FromPrincipal(principal, "req-1")
	require.NoError(t, err)
	require.Nil(t, audit.TenantID)
}

func TestFromPrincipalNil(t *testing.T) {
	_, err := FromPrincipal(nil, "req-1")
	require.Error(t, err)
}

func TestAnonymous(t *testing.T) {
	audit := Anonymous("req-anon")
	require.Equal(t, ActorKindAnonymous, audit.ActorKind)
	require.Nil(t, audit.UserID)
	require.Equal(t, "req-anon", audit.RequestID)
}

func TestSystem(t *testing.T) {
	audit := System("req-sys")
	require.Equal(t, ActorKindSystem, audit.ActorKind)
	require.Nil(t, audit.UserID)
}

func ptr[T any](v T) *T { return &v }
