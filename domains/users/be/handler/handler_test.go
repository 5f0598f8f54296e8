package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/storeline-hq/storeline-core/domains/users/be/service"
	"github.com/storeline-hq/storeline-core/platform/go/apperrors"
	platformauth "github.com/storeline-hq/storeline-core/platform/go/auth"
	"github.com/storeline-hq/storeline-core/platform/go/authz"
	"github.com/storeline-hq/storeline-core/platform/go/persistence"
)

type fakeRepo struct {
	accounts    map[uuid.UUID]persistence.Account
	assignments map[uuid.UUID][]persistence.StoreAssignment
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		accounts:    map[uuid.UUID]persistence.Account{},
		assignments: map[uuid.UUID][]persistence.StoreAssignment{},
	}
}

func (r *fakeRepo) ListAccounts(context.Context, uuid.UUID, int, int) ([]persistence.Account, int, error) {
	var out []persistence.Account
	for _, acc := range r.accounts {
		out = append(out, acc)
	}
	return out, len(out), nil
}

func (r *fakeRepo) GetAccount(_ context.Context, _ uuid.UUID, userID uuid.UUID) (persistence.Account, error) {
	acc, ok := r.accounts[userID]
	if !ok {
		return persistence.Account{}, apperrors.ErrNotFound
	}
	return acc, nil
}

func (r *fakeRepo) UpdateRole(_ context.Context, _ uuid.UUID, userID uuid.UUID, role string) error {
	acc, ok := r.accounts[userID]
	if !ok {
		return apperrors.ErrNotFound
	}
	acc.Role = role
	r.accounts[userID] = acc
	return nil
}

func (r *fakeRepo) UpdatePermissions(_ context.Context, _ uuid.UUID, userID uuid.UUID, raw []byte) error {
	acc, ok := r.accounts[userID]
	if !ok {
		return apperrors.ErrNotFound
	}
	acc.RawPermissions = raw
	r.accounts[userID] = acc
	return nil
}

func (r *fakeRepo) UpdateStatus(_ context.Context, _ uuid.UUID, userID uuid.UUID, status string) error {
	acc, ok := r.accounts[userID]
	if !ok {
		return apperrors.ErrNotFound
	}
	acc.Status = status
	r.accounts[userID] = acc
	return nil
}

func (r *fakeRepo) ResetLock(_ context.Context, _ uuid.UUID, userID uuid.UUID) error {
	acc, ok := r.accounts[userID]
	if !ok {
		return apperrors.ErrNotFound
	}
	acc.Status = persistence.AccountStatusActive
	acc.FailedLoginAttempts = 0
	acc.LockedUntil = nil
	r.accounts[userID] = acc
	return nil
}

func (r *fakeRepo) ListAssignments(_ context.Context, _ uuid.UUID, userID uuid.UUID) ([]persistence.StoreAssignment, error) {
	return r.assignments[userID], nil
}

func (r *fakeRepo) UpsertAssignment(_ context.Context, _ uuid.UUID, assignment persistence.StoreAssignment) error {
	r.assignments[assignment.UserID] = append(r.assignments[assignment.UserID], assignment)
	return nil
}

func (r *fakeRepo) DeleteAssignment(_ context.Context, _ uuid.UUID, userID, storeID uuid.UUID) error {
	for i, existing := range r.assignments[userID] {
		if existing.StoreID == storeID {
			r.assignments[userID] = append(r.assignments[userID][:i], r.assignments[userID][i+1:]...)
			return nil
		}
	}
	return apperrors.ErrNotFound
}

type noopInvalidator struct{}

func (noopInvalidator) InvalidateUser(uuid.UUID, *uuid.UUID)  {}
func (noopInvalidator) InvalidateStore(uuid.UUID, *uuid.UUID) {}

type handlerFixture struct {
	repo   *fakeRepo
	router chi.Router
}

func newHandlerFixture(t *testing.T, principal *platformauth.Principal) *handlerFixture {
	t.Helper()

	repo := newFakeRepo()
	svc := service.New(repo, noopInvalidator{}, zap.NewNop())
	h := New(svc, zap.NewNop())

	router := chi.NewRouter()
	if principal != nil {
		router.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				next.ServeHTTP(w, r.WithContext(platformauth.WithPrincipal(r.Context(), principal)))
			})
		})
	}
	h.Mount(router)

	return &handlerFixture{repo: repo, router: router}
}

func ownerPrincipal(tenantID uuid.UUID) *platformauth.Principal {
	return &platformauth.Principal{
		UserID:    uuid.New(),
		SessionID: uuid.New(),
		TenantID:  &tenantID,
		Role:      authz.RoleOwner,
		Email:     "owner@acme.test",
	}
}

func (f *handlerFixture) seed(role string) persistence.Account {
	acc := persistence.Account{
		UserID: uuid.New(),
		Email:  "staff@acme.test",
		Role:   role,
		Status: persistence.AccountStatusActive,
	}
	f.repo.accounts[acc.UserID] = acc
	return acc
}

func (f *handlerFixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	return rr
}

func TestListAndGetUsers(t *testing.T) {
	t.Parallel()
	f := newHandlerFixture(t, ownerPrincipal(uuid.New()))
	acc := f.seed(authz.RoleSalesperson)

	rr := f.do(t, http.MethodGet, "/admin/users", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), acc.UserID.String())

	rr = f.do(t, http.MethodGet, "/admin/users/"+acc.UserID.String(), nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, "salesperson", resp["role"])
	require.Equal(t, "active", resp["status"])
	require.NotContains(t, rr.Body.String(), "passwordHash")
}

func TestChangeRoleEndpoint(t *testing.T) {
	t.Parallel()
	f := newHandlerFixture(t, ownerPrincipal(uuid.New()))
	acc := f.seed(authz.RoleSalesperson)

	rr := f.do(t, http.MethodPut, "/admin/users/"+acc.UserID.String()+"/role", map[string]string{"role": "store_manager"})
	require.Equal(t, http.StatusNoContent, rr.Code)
	require.Equal(t, authz.RoleStoreManager, f.repo.accounts[acc.UserID].Role)

	rr = f.do(t, http.MethodPut, "/admin/users/"+acc.UserID.String()+"/role", map[string]string{"role": "superadmin"})
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestSetPermissionsEndpoint(t *testing.T) {
	t.Parallel()
	f := newHandlerFixture(t, ownerPrincipal(uuid.New()))
	acc := f.seed(authz.RoleSalesperson)

	rr := f.do(t, http.MethodPut, "/admin/users/"+acc.UserID.String()+"/permissions", map[string]any{
		"permissions": map[string][]string{"sales": {"view"}},
	})
	require.Equal(t, http.StatusNoContent, rr.Code)
	require.JSONEq(t, `{"sales":["view"]}`, string(f.repo.accounts[acc.UserID].RawPermissions))
}

func TestStoreAssignmentEndpoints(t *testing.T) {
	t.Parallel()
	f := newHandlerFixture(t, ownerPrincipal(uuid.New()))
	acc := f.seed(authz.RoleSalesperson)
	storeID := uuid.New()

	rr := f.do(t, http.MethodPut, "/admin/users/"+acc.UserID.String()+"/stores/"+storeID.String(), map[string]any{
		"roleOverride": "store_manager",
	})
	require.Equal(t, http.StatusNoContent, rr.Code)

	rr = f.do(t, http.MethodGet, "/admin/users/"+acc.UserID.String()+"/stores", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), storeID.String())

	rr = f.do(t, http.MethodDelete, "/admin/users/"+acc.UserID.String()+"/stores/"+storeID.String(), nil)
	require.Equal(t, http.StatusNoContent, rr.Code)

	rr = f.do(t, http.MethodDelete, "/admin/users/"+acc.UserID.String()+"/stores/"+storeID.String(), nil)
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestUnknownUserReturns404(t *testing.T) {
	t.Parallel()
	f := newHandlerFixture(t, ownerPrincipal(uuid.New()))

	rr := f.do(t, http.MethodGet, "/admin/users/"+uuid.NewString(), nil)
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestRoleGating(t *testing.T) {
	t.Parallel()
	tenantID := uuid.New()

	// No principal.
	f := newHandlerFixture(t, nil)
	rr := f.do(t, http.MethodGet, "/admin/users", nil)
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	// Salesperson cannot list staff.
	staff := ownerPrincipal(tenantID)
	staff.Role = authz.RoleSalesperson
	f = newHandlerFixture(t, staff)
	rr = f.do(t, http.MethodGet, "/admin/users", nil)
	require.Equal(t, http.StatusForbidden, rr.Code)

	// Company manager may list but not change roles.
	manager := ownerPrincipal(tenantID)
	manager.Role = authz.RoleCompanyManager
	f = newHandlerFixture(t, manager)
	acc := f.seed(authz.RoleSalesperson)
	rr = f.do(t, http.MethodGet, "/admin/users", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	rr = f.do(t, http.MethodPut, "/admin/users/"+acc.UserID.String()+"/role", map[string]string{"role": "owner"})
	require.Equal(t, http.StatusForbidden, rr.Code)
}
