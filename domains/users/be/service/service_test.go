package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/storeline-hq/storeline-core/platform/go/apperrors"
	"github.com/storeline-hq/storeline-core/platform/go/authz"
	"github.com/storeline-hq/storeline-core/platform/go/persistence"
)

type accountKey struct {
	tenantID uuid.UUID
	userID   uuid.UUID
}

type fakeRepo struct {
	accounts    map[accountKey]persistence.Account
	assignments map[accountKey][]persistence.StoreAssignment
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		accounts:    map[accountKey]persistence.Account{},
		assignments: map[accountKey][]persistence.StoreAssignment{},
	}
}

func (r *fakeRepo) ListAccounts(_ context.Context, tenantID uuid.UUID, limit, offset int) ([]persistence.Account, int, error) {
	var out []persistence.Account
	for key, acc := range r.accounts {
		if key.tenantID == tenantID {
			out = append(out, acc)
		}
	}
	total := len(out)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return out[offset:end], total, nil
}

func (r *fakeRepo) GetAccount(_ context.Context, tenantID, userID uuid.UUID) (persistence.Account, error) {
	acc, ok := r.accounts[accountKey{tenantID, userID}]
	if !ok {
		return persistence.Account{}, apperrors.ErrNotFound
	}
	return acc, nil
}

func (r *fakeRepo) UpdateRole(_ context.Context, tenantID, userID uuid.UUID, role string) error {
	key := accountKey{tenantID, userID}
	acc, ok := r.accounts[key]
	if !ok {
		return apperrors.ErrNotFound
	}
	acc.Role = role
	r.accounts[key] = acc
	return nil
}

func (r *fakeRepo) UpdatePermissions(_ context.Context, tenantID, userID uuid.UUID, raw []byte) error {
	key := accountKey{tenantID, userID}
	acc, ok := r.accounts[key]
	if !ok {
		return apperrors.ErrNotFound
	}
	acc.RawPermissions = raw
	r.accounts[key] = acc
	return nil
}

func (r *fakeRepo) UpdateStatus(_ context.Context, tenantID, userID uuid.UUID, status string) error {
	key := accountKey{tenantID, userID}
	acc, ok := r.accounts[key]
	if !ok {
		return apperrors.ErrNotFound
	}
	acc.Status = status
	r.accounts[key] = acc
	return nil
}

func (r *fakeRepo) ResetLock(_ context.Context, tenantID, userID uuid.UUID) error {
	key := accountKey{tenantID, userID}
	acc, ok := r.accounts[key]
	if !ok {
		return apperrors.ErrNotFound
	}
	acc.Status = persistence.AccountStatusActive
	acc.FailedLoginAttempts = 0
	acc.LockedUntil = nil
	r.accounts[key] = acc
	return nil
}

func (r *fakeRepo) ListAssignments(_ context.Context, tenantID, userID uuid.UUID) ([]persistence.StoreAssignment, error) {
	return r.assignments[accountKey{tenantID, userID}], nil
}

func (r *fakeRepo) UpsertAssignment(_ context.Context, tenantID uuid.UUID, assignment persistence.StoreAssignment) error {
	key := accountKey{tenantID, assignment.UserID}
	for i, existing := range r.assignments[key] {
		if existing.StoreID == assignment.StoreID {
			r.assignments[key][i] = assignment
			return nil
		}
	}
	r.assignments[key] = append(r.assignments[key], assignment)
	return nil
}

func (r *fakeRepo) DeleteAssignment(_ context.Context, tenantID, userID, storeID uuid.UUID) error {
	key := accountKey{tenantID, userID}
	for i, existing := range r.assignments[key] {
		if existing.StoreID == storeID {
			r.assignments[key] = append(r.assignments[key][:i], r.assignments[key][i+1:]...)
			return nil
		}
	}
	return apperrors.ErrNotFound
}

type invalidation struct {
	kind     string
	id       uuid.UUID
	tenantID *uuid.UUID
}

type recordingInvalidator struct {
	calls []invalidation
}

func (r *recordingInvalidator) InvalidateUser(userID uuid.UUID, tenantID *uuid.UUID) {
	r.calls = append(r.calls, invalidation{kind: "user", id: userID, tenantID: tenantID})
}

func (r *recordingInvalidator) InvalidateStore(storeID uuid.UUID, tenantID *uuid.UUID) {
	r.calls = append(r.calls, invalidation{kind: "store", id: storeID, tenantID: tenantID})
}

type fixture struct {
	repo     *fakeRepo
	perms    *recordingInvalidator
	svc      *Service
	tenantID uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := newFakeRepo()
	perms := &recordingInvalidator{}
	return &fixture{
		repo:     repo,
		perms:    perms,
		svc:      New(repo, perms, zap.NewNop()),
		tenantID: uuid.New(),
	}
}

func (f *fixture) seed(t *testing.T, role, status string) persistence.Account {
	t.Helper()
	acc := persistence.Account{
		UserID: uuid.New(),
		Email:  "staff@acme.test",
		Role:   role,
		Status: status,
	}
	tid := f.tenantID
	acc.TenantID = &tid
	f.repo.accounts[accountKey{f.tenantID, acc.UserID}] = acc
	return acc
}

func TestChangeRoleInvalidatesUser(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	acc := f.seed(t, authz.RoleSalesperson, persistence.AccountStatusActive)

	err := f.svc.ChangeRole(context.Background(), f.tenantID, acc.UserID, authz.RoleStoreManager)
	require.NoError(t, err)

	updated, err := f.svc.Get(context.Background(), f.tenantID, acc.UserID)
	require.NoError(t, err)
	require.Equal(t, authz.RoleStoreManager, updated.Role)

	require.Len(t, f.perms.calls, 1)
	require.Equal(t, "user", f.perms.calls[0].kind)
	require.Equal(t, acc.UserID, f.perms.calls[0].id)
	require.NotNil(t, f.perms.calls[0].tenantID)
	require.Equal(t, f.tenantID, *f.perms.calls[0].tenantID)
}

func TestChangeRoleRejectsUnknownRole(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	acc := f.seed(t, authz.RoleSalesperson, persistence.AccountStatusActive)

	err := f.svc.ChangeRole(context.Background(), f.tenantID, acc.UserID, "superadmin")
	require.ErrorIs(t, err, apperrors.ErrConfiguration)
	require.Empty(t, f.perms.calls)
}

func TestSetPermissionsRoundTrip(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	acc := f.seed(t, authz.RoleSalesperson, persistence.AccountStatusActive)

	set := authz.PermissionSet{"sales": {"view", "create"}}
	require.NoError(t, f.svc.SetPermissions(context.Background(), f.tenantID, acc.UserID, set))

	updated, err := f.svc.Get(context.Background(), f.tenantID, acc.UserID)
	require.NoError(t, err)
	require.True(t, updated.Permissions.Allows("sales", "create"))

	// Clearing restores role defaults.
	require.NoError(t, f.svc.SetPermissions(context.Background(), f.tenantID, acc.UserID, nil))
	updated, err = f.svc.Get(context.Background(), f.tenantID, acc.UserID)
	require.NoError(t, err)
	require.Nil(t, updated.Permissions)

	require.Len(t, f.perms.calls, 2)
}

func TestSetStatusValidation(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	acc := f.seed(t, authz.RoleSalesperson, persistence.AccountStatusActive)

	require.NoError(t, f.svc.SetStatus(context.Background(), f.tenantID, acc.UserID, persistence.AccountStatusInactive))

	err := f.svc.SetStatus(context.Background(), f.tenantID, acc.UserID, "locked")
	require.ErrorIs(t, err, apperrors.ErrConfiguration)
}

func TestUnlockClearsLockout(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	acc := f.seed(t, authz.RoleSalesperson, persistence.AccountStatusLocked)
	key := accountKey{f.tenantID, acc.UserID}
	locked := f.repo.accounts[key]
	until := time.Now().Add(10 * time.Minute)
	locked.FailedLoginAttempts = 5
	locked.LockedUntil = &until
	f.repo.accounts[key] = locked

	require.NoError(t, f.svc.Unlock(context.Background(), f.tenantID, acc.UserID))

	updated, err := f.svc.Get(context.Background(), f.tenantID, acc.UserID)
	require.NoError(t, err)
	require.Equal(t, persistence.AccountStatusActive, updated.Status)
	require.Zero(t, updated.FailedAttempts)
	require.Nil(t, updated.LockedUntil)
}

func TestUnlockIsNoopWhenNotLocked(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	acc := f.seed(t, authz.RoleSalesperson, persistence.AccountStatusActive)

	require.NoError(t, f.svc.Unlock(context.Background(), f.tenantID, acc.UserID))
}

func TestAssignStoreInvalidatesUserAndStore(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	acc := f.seed(t, authz.RoleSalesperson, persistence.AccountStatusActive)
	storeID := uuid.New()

	override := authz.RoleStoreManager
	err := f.svc.AssignStore(context.Background(), f.tenantID, AssignStoreInput{
		UserID:       acc.UserID,
		StoreID:      storeID,
		RoleOverride: &override,
		Permissions:  authz.PermissionSet{"inventory": {"view", "adjust"}},
	})
	require.NoError(t, err)

	assignments, err := f.svc.ListStoreAssignments(context.Background(), f.tenantID, acc.UserID)
	require.NoError(t, err)
	require.Len(t, assignments, 1)
	require.Equal(t, storeID, assignments[0].StoreID)
	require.NotNil(t, assignments[0].RoleOverride)

	require.Len(t, f.perms.calls, 2)
	require.Equal(t, "user", f.perms.calls[0].kind)
	require.Equal(t, "store", f.perms.calls[1].kind)
	require.Equal(t, storeID, f.perms.calls[1].id)
}

func TestAssignStoreValidation(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	acc := f.seed(t, authz.RoleSalesperson, persistence.AccountStatusActive)

	err := f.svc.AssignStore(context.Background(), f.tenantID, AssignStoreInput{UserID: acc.UserID})
	require.ErrorIs(t, err, apperrors.ErrConfiguration)

	bad := "superadmin"
	err = f.svc.AssignStore(context.Background(), f.tenantID, AssignStoreInput{
		UserID:       acc.UserID,
		StoreID:      uuid.New(),
		RoleOverride: &bad,
	})
	require.ErrorIs(t, err, apperrors.ErrConfiguration)
}

func TestRemoveStoreAssignment(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	acc := f.seed(t, authz.RoleSalesperson, persistence.AccountStatusActive)
	storeID := uuid.New()

	require.NoError(t, f.svc.AssignStore(context.Background(), f.tenantID, AssignStoreInput{
		UserID:  acc.UserID,
		StoreID: storeID,
	}))
	require.NoError(t, f.svc.RemoveStoreAssignment(context.Background(), f.tenantID, acc.UserID, storeID))

	assignments, err := f.svc.ListStoreAssignments(context.Background(), f.tenantID, acc.UserID)
	require.NoError(t, err)
	require.Empty(t, assignments)

	err = f.svc.RemoveStoreAssignment(context.Background(), f.tenantID, acc.UserID, storeID)
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestLegacyTenantInvalidatesWithoutScope(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	acc := persistence.Account{
		UserID: uuid.New(),
		Email:  "legacy@storeline.dev",
		Role:   authz.RoleSalesperson,
		Status: persistence.AccountStatusActive,
	}
	f.repo.accounts[accountKey{uuid.Nil, acc.UserID}] = acc

	require.NoError(t, f.svc.ChangeRole(context.Background(), uuid.Nil, acc.UserID, authz.RoleOwner))
	require.Len(t, f.perms.calls, 1)
	require.Nil(t, f.perms.calls[0].tenantID)
}

func TestListPaginates(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	for i := 0; i < 3; i++ {
		f.seed(t, authz.RoleSalesperson, persistence.AccountStatusActive)
	}

	result, err := f.svc.List(context.Background(), f.tenantID, ListOptions{Page: 1, PageSize: 2})
	require.NoError(t, err)
	require.Len(t, result.Users, 2)
	require.Equal(t, 3, result.TotalItems)
	require.Equal(t, 2, result.TotalPages)
}
