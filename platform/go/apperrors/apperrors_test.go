package apperrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPermissionDenied(t *testing.T) {
	err := PermissionDenied("delete", "sales")

	require.ErrorIs(t, err, ErrForbidden)
	require.Equal(t, `PERM001: permission denied: action "delete" is not allowed on module "sales"`, err.Error())

	code, ok := DeniedCode(err)
	require.True(t, ok)
	require.Equal(t, CodePermissionDenied, code)
}

func TestStoreAccessDenied(t *testing.T) {
	err := StoreAccessDenied("f4b7")

	require.ErrorIs(t, err, ErrForbidden)
	code, ok := DeniedCode(err)
	require.True(t, ok)
	require.Equal(t, CodeStoreAccessDenied, code)
}

func TestDeniedCodeThroughWrapping(t *testing.T) {
	wrapped := fmt.Errorf("check sale update: %w", PermissionDenied("edit", "sales"))

	require.ErrorIs(t, wrapped, ErrForbidden)
	code, ok := DeniedCode(wrapped)
	require.True(t, ok)
	require.Equal(t, CodePermissionDenied, code)
}

func TestDeniedCodeOnOtherErrors(t *testing.T) {
	_, ok := DeniedCode(errors.New("boom"))
	require.False(t, ok)

	_, ok = DeniedCode(ErrForbidden)
	require.False(t, ok)
}
