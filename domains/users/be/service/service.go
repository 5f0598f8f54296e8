// Package service implements tenant-scoped staff administration. Every
// mutation that can change a permission verdict invalidates the matching
// cached permission contexts immediately, so a role change or store
// reassignment takes effect on the next request instead of after the cache
// TTL.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/storeline-hq/storeline-core/domains/users/be/repo"
	"github.com/storeline-hq/storeline-core/platform/go/apperrors"
	"github.com/storeline-hq/storeline-core/platform/go/authz"
	"github.com/storeline-hq/storeline-core/platform/go/persistence"
)

// PermissionInvalidator purges cached permission contexts after staff
// mutations. Implemented by authz.Resolver.
type PermissionInvalidator interface {
	InvalidateUser(userID uuid.UUID, tenantID *uuid.UUID)
	InvalidateStore(storeID uuid.UUID, tenantID *uuid.UUID)
}

// User is the administrative view of a staff account. Password material is
// deliberately absent.
type User struct {
	ID             uuid.UUID
	Email          string
	Role           string
	Status         string
	Permissions    authz.PermissionSet
	FailedAttempts int
	LockedUntil    *time.Time
	LastLoginAt    *time.Time
}

// ListResult wraps a page of users.
type ListResult struct {
	Users      []User
	Page       int
	PageSize   int
	TotalItems int
	TotalPages int
}

// ListOptions controls pagination.
type ListOptions struct {
	Page     int
	PageSize int
}

// AssignStoreInput links a user to a store with optional per-store override.
type AssignStoreInput struct {
	UserID       uuid.UUID
	StoreID      uuid.UUID
	RoleOverride *string
	Permissions  authz.PermissionSet
}

// Service provides staff administration for one tenant at a time; the tenant
// id accompanies every call and uuid.Nil addresses legacy master accounts.
type Service struct {
	repo   repo.Repository
	perms  PermissionInvalidator
	logger *zap.Logger
}

// New constructs a staff administration Service.
func New(r repo.Repository, perms PermissionInvalidator, logger *zap.Logger) *Service {
	if r == nil {
		panic("users repository is required")
	}
	if perms == nil {
		panic("permission invalidator is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Service{repo: r, perms: perms, logger: logger}
}

// List returns a page of staff accounts.
func (s *Service) List(ctx context.Context, tenantID uuid.UUID, opts ListOptions) (ListResult, error) {
	page := opts.Page
	if page < 1 {
		page = 1
	}
	size := opts.PageSize
	if size <= 0 {
		size = 20
	}
	if size > 100 {
		size = 100
	}

	accounts, total, err := s.repo.ListAccounts(ctx, tenantID, size, (page-1)*size)
	if err != nil {
		return ListResult{}, err
	}

	users := make([]User, 0, len(accounts))
	for _, acc := range accounts {
		user, err := mapAccount(acc)
		if err != nil {
			return ListResult{}, err
		}
		users = append(users, user)
	}

	totalPages := 0
	if total > 0 {
		totalPages = (total + size - 1) / size
	}
	return ListResult{Users: users, Page: page, PageSize: size, TotalItems: total, TotalPages: totalPages}, nil
}

// Get returns one staff account.
func (s *Service) Get(ctx context.Context, tenantID, userID uuid.UUID) (User, error) {
	acc, err := s.repo.GetAccount(ctx, tenantID, userID)
	if err != nil {
		return User{}, err
	}
	return mapAccount(acc)
}

// ChangeRole replaces the user's role and drops their cached permission
// context.
func (s *Service) ChangeRole(ctx context.Context, tenantID, userID uuid.UUID, role string) error {
	role = strings.TrimSpace(role)
	if !validRole(role) {
		return fmt.Errorf("%w: unknown role %q", apperrors.ErrConfiguration, role)
	}

	if err := s.repo.UpdateRole(ctx, tenantID, userID, role); err != nil {
		return err
	}

	s.perms.InvalidateUser(userID, tenantPtr(tenantID))
	s.logger.Info("user role changed",
		zap.String("user_id", userID.String()),
		zap.String("role", role))
	return nil
}

// SetPermissions replaces the user's custom permission layer. A nil set
// clears the layer back to role defaults. The payload is validated before it
// is stored so the resolver never sees a malformed blob.
func (s *Service) SetPermissions(ctx context.Context, tenantID, userID uuid.UUID, set authz.PermissionSet) error {
	var raw []byte
	if set != nil {
		encoded, err := json.Marshal(set)
		if err != nil {
			return fmt.Errorf("encode permissions: %w", err)
		}
		if _, err := authz.DecodePermissionSet(encoded); err != nil {
			return fmt.Errorf("%w: %v", apperrors.ErrConfiguration, err)
		}
		raw = encoded
	}

	if err := s.repo.UpdatePermissions(ctx, tenantID, userID, raw); err != nil {
		return err
	}

	s.perms.InvalidateUser(userID, tenantPtr(tenantID))
	return nil
}

// SetStatus moves the account between active and inactive. Deactivation
// invalidates the cached context so in-flight sessions lose access checks on
// the next request; the gateway rejects the inactive account outright.
func (s *Service) SetStatus(ctx context.Context, tenantID, userID uuid.UUID, status string) error {
	status = strings.TrimSpace(status)
	if status != persistence.AccountStatusActive && status != persistence.AccountStatusInactive {
		return fmt.Errorf("%w: status must be active or inactive", apperrors.ErrConfiguration)
	}

	if err := s.repo.UpdateStatus(ctx, tenantID, userID, status); err != nil {
		return err
	}

	s.perms.InvalidateUser(userID, tenantPtr(tenantID))
	return nil
}

// Unlock clears a lockout before its window expires.
func (s *Service) Unlock(ctx context.Context, tenantID, userID uuid.UUID) error {
	acc, err := s.repo.GetAccount(ctx, tenantID, userID)
	if err != nil {
		return err
	}
	if acc.Status != persistence.AccountStatusLocked && acc.LockedUntil == nil {
		return nil
	}

	if err := s.repo.ResetLock(ctx, tenantID, userID); err != nil {
		return err
	}
	s.logger.Info("user unlocked", zap.String("user_id", userID.String()))
	return nil
}

// ListStoreAssignments returns the user's store assignments.
func (s *Service) ListStoreAssignments(ctx context.Context, tenantID, userID uuid.UUID) ([]persistence.StoreAssignment, error) {
	return s.repo.ListAssignments(ctx, tenantID, userID)
}

// AssignStore links a user to a store, optionally overriding role or
// permissions inside it. Both the user's context and the store's other
// cached contexts are dropped.
func (s *Service) AssignStore(ctx context.Context, tenantID uuid.UUID, input AssignStoreInput) error {
	if input.UserID == uuid.Nil || input.StoreID == uuid.Nil {
		return fmt.Errorf("%w: user and store ids are required", apperrors.ErrConfiguration)
	}
	if input.RoleOverride != nil && !validRole(*input.RoleOverride) {
		return fmt.Errorf("%w: unknown role %q", apperrors.ErrConfiguration, *input.RoleOverride)
	}

	assignment := persistence.StoreAssignment{
		UserID:       input.UserID,
		StoreID:      input.StoreID,
		RoleOverride: input.RoleOverride,
	}
	if input.Permissions != nil {
		raw, err := json.Marshal(input.Permissions)
		if err != nil {
			return fmt.Errorf("encode store permissions: %w", err)
		}
		if _, err := authz.DecodePermissionSet(raw); err != nil {
			return fmt.Errorf("%w: %v", apperrors.ErrConfiguration, err)
		}
		assignment.RawPermissions = raw
	}

	if err := s.repo.UpsertAssignment(ctx, tenantID, assignment); err != nil {
		return err
	}

	s.perms.InvalidateUser(input.UserID, tenantPtr(tenantID))
	s.perms.InvalidateStore(input.StoreID, tenantPtr(tenantID))
	return nil
}

// RemoveStoreAssignment unlinks a user from a store.
func (s *Service) RemoveStoreAssignment(ctx context.Context, tenantID, userID, storeID uuid.UUID) error {
	if err := s.repo.DeleteAssignment(ctx, tenantID, userID, storeID); err != nil {
		return err
	}

	s.perms.InvalidateUser(userID, tenantPtr(tenantID))
	s.perms.InvalidateStore(storeID, tenantPtr(tenantID))
	return nil
}

func mapAccount(acc persistence.Account) (User, error) {
	user := User{
		ID:             acc.UserID,
		Email:          acc.Email,
		Role:           acc.Role,
		Status:         acc.Status,
		FailedAttempts: acc.FailedLoginAttempts,
		LockedUntil:    acc.LockedUntil,
		LastLoginAt:    acc.LastLoginAt,
	}
	if len(acc.RawPermissions) > 0 {
		set, err := authz.DecodePermissionSet(acc.RawPermissions)
		if err != nil {
			return User{}, fmt.Errorf("user %s: %w", acc.UserID, err)
		}
		user.Permissions = set
	}
	return user, nil
}

func validRole(role string) bool {
	switch role {
	case authz.RoleOwner, authz.RoleCompanyManager, authz.RoleStoreManager, authz.RoleSalesperson:
		return true
	}
	return false
}

func tenantPtr(tenantID uuid.UUID) *uuid.UUID {
	if tenantID == uuid.Nil {
		return nil
	}
	return &tenantID
}
