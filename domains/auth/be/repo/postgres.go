// Package repo provides the persistence adapters for the auth domain.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/storeline-hq/storeline-core/platform/go/persistence"
	"github.com/storeline-hq/storeline-core/platform/go/tenant"
)

// PostgresRepository routes account rows to the master database and session
// rows to the owning tenant's database (master for legacy sessions).
type PostgresRepository struct {
	router *persistence.Router
}

// NewPostgresRepository constructs the repository over the connection router.
func NewPostgresRepository(router *persistence.Router) *PostgresRepository {
	if router == nil {
		panic("auth repo: router is required")
	}
	return &PostgresRepository{router: router}
}

func (r *PostgresRepository) accounts() (*persistence.AccountStore, error) {
	master, err := r.router.Master()
	if err != nil {
		return nil, err
	}
	return persistence.NewAccountStore(master)
}

// conn returns the tenant's pool, or the master pool for legacy accounts.
func (r *PostgresRepository) conn(ctx context.Context, tenantID *uuid.UUID) (persistence.DB, error) {
	if tenantID != nil {
		return r.router.Get(ctx, *tenantID)
	}
	return r.router.Master()
}

func (r *PostgresRepository) sessions(ctx context.Context, tenantID *uuid.UUID) (*persistence.SessionStore, error) {
	db, err := r.conn(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return persistence.NewSessionStore(db)
}

func (r *PostgresRepository) FindLoginAccount(ctx context.Context, email string) (persistence.Account, *tenant.Record, error) {
	store, err := r.accounts()
	if err != nil {
		return persistence.Account{}, nil, err
	}
	return store.FindLoginAccount(ctx, email)
}

func (r *PostgresRepository) IncrementFailedAttempts(ctx context.Context, userID uuid.UUID, maxAttempts int, lockUntil time.Time) (int, *time.Time, error) {
	store, err := r.accounts()
	if err != nil {
		return 0, nil, err
	}
	return store.IncrementFailedAttempts(ctx, userID, maxAttempts, lockUntil)
}

func (r *PostgresRepository) RecordSuccessfulLogin(ctx context.Context, userID uuid.UUID, at time.Time) error {
	store, err := r.accounts()
	if err != nil {
		return err
	}
	return store.RecordSuccessfulLogin(ctx, userID, at)
}

func (r *PostgresRepository) ResetLock(ctx context.Context, userID uuid.UUID) error {
	store, err := r.accounts()
	if err != nil {
		return err
	}
	return store.ResetLock(ctx, userID)
}

func (r *PostgresRepository) ListStoreAssignments(ctx context.Context, tenantID *uuid.UUID, userID uuid.UUID) ([]persistence.StoreAssignment, error) {
	db, err := r.conn(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	store, err := persistence.NewStoreAccessStore(db)
	if err != nil {
		return nil, err
	}
	return store.ListAssignments(ctx, userID)
}

func (r *PostgresRepository) CreateSession(ctx context.Context, tenantID *uuid.UUID, sess persistence.Session) error {
	store, err := r.sessions(ctx, tenantID)
	if err != nil {
		return err
	}
	return store.CreateSession(ctx, sess)
}

func (r *PostgresRepository) RevokeSession(ctx context.Context, tenantID *uuid.UUID, sessionID uuid.UUID) error {
	store, err := r.sessions(ctx, tenantID)
	if err != nil {
		return err
	}
	return store.RevokeSession(ctx, sessionID)
}
