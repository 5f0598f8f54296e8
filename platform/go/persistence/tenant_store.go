package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/storeline-hq/storeline-core/platform/go/apperrors"
	"github.com/storeline-hq/storeline-core/platform/go/tenant"
)

// TenantsTable is the tenant registry in the master database.
const TenantsTable = "admin.tenants"

// TenantStore provides access to the tenant registry. It implements
// tenant.Store for the directory.
type TenantStore struct {
	db DB
}

// NewTenantStore creates a store; assumes migrations already created the table.
func NewTenantStore(db DB) (*TenantStore, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	return &TenantStore{db: db}, nil
}

const tenantColumns = "tenant_id, slug, status, database_name, database_server, subscription_plan"

// CreateTenant registers a tenant. The slug must be unique; the row starts in
// whatever status the caller sets (normally pending until provisioning ends).
func (s *TenantStore) CreateTenant(ctx context.Context, rec tenant.Record) error {
	if rec.ID == uuid.Nil {
		return errors.New("tenant id is required")
	}

	_, err := s.db.Exec(ctx, fmt.Sprintf(`
        INSERT INTO %s (%s)
        VALUES ($1, $2, $3, $4, $5, $6)
    `, TenantsTable, tenantColumns),
		rec.ID, rec.Slug, string(rec.Status), rec.DatabaseName, rec.DatabaseServer, rec.SubscriptionPlan)
	if err != nil {
		return fmt.Errorf("create tenant: %w", err)
	}
	return nil
}

// GetTenant fetches one tenant by id. Soft-deleted tenants are returned with
// their deleted status; the caller decides whether that is terminal.
func (s *TenantStore) GetTenant(ctx context.Context, id uuid.UUID) (tenant.Record, error) {
	row := s.db.QueryRow(ctx, fmt.Sprintf(`
        SELECT %s
        FROM %s
        WHERE tenant_id = $1
    `, tenantColumns, TenantsTable), id)

	return scanTenant(row)
}

// GetTenantBySlug fetches one tenant by its unique slug.
func (s *TenantStore) GetTenantBySlug(ctx context.Context, slug string) (tenant.Record, error) {
	row := s.db.QueryRow(ctx, fmt.Sprintf(`
        SELECT %s
        FROM %s
        WHERE slug = $1
    `, tenantColumns, TenantsTable), strings.TrimSpace(slug))

	return scanTenant(row)
}

// ListTenants returns a page of the registry ordered by slug, optionally
// filtered by status, together with the total row count for that filter.
func (s *TenantStore) ListTenants(ctx context.Context, status *tenant.Status, limit, offset int) ([]tenant.Record, int, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	var statusArg *string
	if status != nil {
		v := string(*status)
		statusArg = &v
	}

	var total int
	err := s.db.QueryRow(ctx, fmt.Sprintf(`
        SELECT COUNT(*)
        FROM %s
        WHERE ($1::text IS NULL OR status = $1)
    `, TenantsTable), statusArg).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count tenants: %w", err)
	}

	rows, err := s.db.Query(ctx, fmt.Sprintf(`
        SELECT %s
        FROM %s
        WHERE ($1::text IS NULL OR status = $1)
        ORDER BY slug
        LIMIT $2 OFFSET $3
    `, tenantColumns, TenantsTable), statusArg, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list tenants: %w", err)
	}
	defer rows.Close()

	var out []tenant.Record
	for rows.Next() {
		rec, err := scanTenant(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list tenants: %w", err)
	}
	return out, total, nil
}

// UpdateStatus transitions a tenant's lifecycle status.
func (s *TenantStore) UpdateStatus(ctx context.Context, id uuid.UUID, status tenant.Status) error {
	tag, err := s.db.Exec(ctx, fmt.Sprintf(`
        UPDATE %s
        SET status = $2, updated_at = now()
        WHERE tenant_id = $1
    `, TenantsTable), id, string(status))
	if err != nil {
		return fmt.Errorf("update tenant status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: tenant %s", apperrors.ErrNotFound, id)
	}
	return nil
}

func scanTenant(row pgx.Row) (tenant.Record, error) {
	var rec tenant.Record
	var status string

	err := row.Scan(&rec.ID, &rec.Slug, &status, &rec.DatabaseName, &rec.DatabaseServer, &rec.SubscriptionPlan)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return tenant.Record{}, fmt.Errorf("%w: tenant", apperrors.ErrNotFound)
		}
		return tenant.Record{}, fmt.Errorf("scan tenant: %w", err)
	}

	rec.Status = tenant.StatusFromString(status)
	return rec, nil
}
