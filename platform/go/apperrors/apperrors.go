// Package apperrors defines the error taxonomy shared by the access-control
// core. Callers branch with errors.Is against the sentinels; transport layers
// map them onto their own status vocabulary.
package apperrors

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration indicates a component was used before initialization.
	ErrConfiguration = errors.New("configuration error")
	// ErrNotFound indicates a missing tenant, user or session.
	ErrNotFound = errors.New("not found")
	// ErrForbidden indicates a suspended tenant, inactive user, locked account
	// or a permission/store denial.
	ErrForbidden = errors.New("forbidden")
	// ErrAuthentication indicates bad credentials or an invalid token.
	ErrAuthentication = errors.New("authentication failed")
	// ErrTransientInfra indicates a database connectivity failure that may
	// succeed on retry at a controlled boundary.
	ErrTransientInfra = errors.New("transient infrastructure error")
)

// Stable denial codes surfaced to clients.
const (
	CodePermissionDenied  = "PERM001"
	CodeStoreAccessDenied = "PERM002"
)

// DeniedError carries a stable code plus a human-readable reason for a
// permission or store-access denial.
type DeniedError struct {
	Code   string
	Reason string
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Reason)
}

// Unwrap lets errors.Is(err, ErrForbidden) match every denial.
func (e *DeniedError) Unwrap() error {
	return ErrForbidden
}

// PermissionDenied builds the PERM001 denial naming the action and module.
func PermissionDenied(action, module string) *DeniedError {
	return &DeniedError{
		Code:   CodePermissionDenied,
		Reason: fmt.Sprintf("permission denied: action %q is not allowed on module %q", action, module),
	}
}

// StoreAccessDenied builds the PERM002 denial for a store the user is not
// assigned to.
func StoreAccessDenied(storeID string) *DeniedError {
	return &DeniedError{
		Code:   CodeStoreAccessDenied,
		Reason: fmt.Sprintf("access to store %q is not allowed", storeID),
	}
}

// DeniedCode extracts the denial code when err is (or wraps) a DeniedError.
func DeniedCode(err error) (string, bool) {
	var denied *DeniedError
	if errors.As(err, &denied) {
		return denied.Code, true
	}
	return "", false
}
