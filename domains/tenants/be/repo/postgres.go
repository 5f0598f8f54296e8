package repo

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/storeline-hq/storeline-core/domains/tenants/be/service"
	"github.com/storeline-hq/storeline-core/platform/go/persistence"
	"github.com/storeline-hq/storeline-core/platform/go/tenant"
)

// PostgresRepository implements the registry repository over the shared
// master-database TenantStore.
type PostgresRepository struct {
	store *persistence.TenantStore
}

// NewPostgresRepository constructs a repository backed by TenantStore.
func NewPostgresRepository(store *persistence.TenantStore) *PostgresRepository {
	if store == nil {
		panic("tenant store is required")
	}
	return &PostgresRepository{store: store}
}

func (r *PostgresRepository) Create(ctx context.Context, rec tenant.Record) error {
	if err := r.store.CreateTenant(ctx, rec); err != nil {
		return mapConflict(err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, id uuid.UUID) (tenant.Record, error) {
	return r.store.GetTenant(ctx, id)
}

func (r *PostgresRepository) GetBySlug(ctx context.Context, slug string) (tenant.Record, error) {
	return r.store.GetTenantBySlug(ctx, slug)
}

func (r *PostgresRepository) List(ctx context.Context, status *tenant.Status, limit, offset int) ([]tenant.Record, int, error) {
	return r.store.ListTenants(ctx, status, limit, offset)
}

func (r *PostgresRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status tenant.Status) error {
	return r.store.UpdateStatus(ctx, id, status)
}

func mapConflict(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return service.ErrSlugTaken
	}
	return err
}

var _ service.Repository = (*PostgresRepository)(nil)
