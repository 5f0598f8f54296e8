// Package repo resolves the tenant's database through the connection router
// and delegates staff rows to the shared persistence stores.
package repo

import (
	"context"

	"github.com/google/uuid"

	"github.com/storeline-hq/storeline-core/platform/go/persistence"
)

// ConnectionSource yields the database backing a tenant; uuid.Nil selects the
// master database for legacy accounts. Implemented by persistence.Router.
type ConnectionSource interface {
	Get(ctx context.Context, tenantID uuid.UUID) (persistence.DB, error)
	Master() (persistence.DB, error)
}

// Repository defines the persistence operations required by the staff
// administration service. Every call is scoped to one tenant database.
type Repository interface {
	ListAccounts(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]persistence.Account, int, error)
	GetAccount(ctx context.Context, tenantID, userID uuid.UUID) (persistence.Account, error)
	UpdateRole(ctx context.Context, tenantID, userID uuid.UUID, role string) error
	UpdatePermissions(ctx context.Context, tenantID, userID uuid.UUID, raw []byte) error
	UpdateStatus(ctx context.Context, tenantID, userID uuid.UUID, status string) error
	ResetLock(ctx context.Context, tenantID, userID uuid.UUID) error
	ListAssignments(ctx context.Context, tenantID, userID uuid.UUID) ([]persistence.StoreAssignment, error)
	UpsertAssignment(ctx context.Context, tenantID uuid.UUID, assignment persistence.StoreAssignment) error
	DeleteAssignment(ctx context.Context, tenantID, userID, storeID uuid.UUID) error
}

type postgresRepository struct {
	conns ConnectionSource
}

// NewPostgresRepository constructs a repository routing through the
// connection source.
func NewPostgresRepository(conns ConnectionSource) Repository {
	if conns == nil {
		panic("connection source is required")
	}
	return &postgresRepository{conns: conns}
}

func (r *postgresRepository) accounts(ctx context.Context, tenantID uuid.UUID) (*persistence.AccountStore, error) {
	db, err := r.connFor(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return persistence.NewAccountStore(db)
}

func (r *postgresRepository) storeAccess(ctx context.Context, tenantID uuid.UUID) (*persistence.StoreAccessStore, error) {
	db, err := r.connFor(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return persistence.NewStoreAccessStore(db)
}

func (r *postgresRepository) connFor(ctx context.Context, tenantID uuid.UUID) (persistence.DB, error) {
	if tenantID == uuid.Nil {
		return r.conns.Master()
	}
	return r.conns.Get(ctx, tenantID)
}

func (r *postgresRepository) ListAccounts(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]persistence.Account, int, error) {
	store, err := r.accounts(ctx, tenantID)
	if err != nil {
		return nil, 0, err
	}
	return store.ListAccounts(ctx, limit, offset)
}

func (r *postgresRepository) GetAccount(ctx context.Context, tenantID, userID uuid.UUID) (persistence.Account, error) {
	store, err := r.accounts(ctx, tenantID)
	if err != nil {
		return persistence.Account{}, err
	}
	return store.GetAccount(ctx, userID)
}

func (r *postgresRepository) UpdateRole(ctx context.Context, tenantID, userID uuid.UUID, role string) error {
	store, err := r.accounts(ctx, tenantID)
	if err != nil {
		return err
	}
	return store.UpdateRole(ctx, userID, role)
}

func (r *postgresRepository) UpdatePermissions(ctx context.Context, tenantID, userID uuid.UUID, raw []byte) error {
	store, err := r.accounts(ctx, tenantID)
	if err != nil {
		return err
	}
	return store.UpdatePermissions(ctx, userID, raw)
}

func (r *postgresRepository) UpdateStatus(ctx context.Context, tenantID, userID uuid.UUID, status string) error {
	store, err := r.accounts(ctx, tenantID)
	if err != nil {
		return err
	}
	return store.UpdateAccountStatus(ctx, userID, status)
}

func (r *postgresRepository) ResetLock(ctx context.Context, tenantID, userID uuid.UUID) error {
	store, err := r.accounts(ctx, tenantID)
	if err != nil {
		return err
	}
	return store.ResetLock(ctx, userID)
}

func (r *postgresRepository) ListAssignments(ctx context.Context, tenantID, userID uuid.UUID) ([]persistence.StoreAssignment, error) {
	store, err := r.storeAccess(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return store.ListAssignments(ctx, userID)
}

func (r *postgresRepository) UpsertAssignment(ctx context.Context, tenantID uuid.UUID, assignment persistence.StoreAssignment) error {
	store, err := r.storeAccess(ctx, tenantID)
	if err != nil {
		return err
	}
	return store.UpsertAssignment(ctx, assignment)
}

func (r *postgresRepository) DeleteAssignment(ctx context.Context, tenantID, userID, storeID uuid.UUID) error {
	store, err := r.storeAccess(ctx, tenantID)
	if err != nil {
		return err
	}
	return store.DeleteAssignment(ctx, userID, storeID)
}
