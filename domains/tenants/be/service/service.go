// Package service implements the tenant registry lifecycle: registering a
// store chain, paging through the registry, and moving tenants between
// lifecycle statuses while keeping the connection and permission caches
// consistent with the new state.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/storeline-hq/storeline-core/platform/go/apperrors"
	"github.com/storeline-hq/storeline-core/platform/go/persistence"
	"github.com/storeline-hq/storeline-core/platform/go/tenant"
)

// Errors returned by the service layer.
var (
	ErrSlugTaken     = errors.New("tenant slug already exists")
	ErrInvalidStatus = errors.New("invalid tenant status transition")
)

// CreateInput registers an existing tenant database in the registry. The
// database itself is provisioned out of band; this service only records its
// coordinates.
type CreateInput struct {
	Slug             string
	DatabaseName     string
	DatabaseServer   string
	SubscriptionPlan string
}

// ListOptions captures filters and pagination.
type ListOptions struct {
	Page     int
	PageSize int
	Status   *tenant.Status
}

// ListResult wraps a page of tenants.
type ListResult struct {
	Tenants    []tenant.Record
	Page       int
	PageSize   int
	TotalItems int
	TotalPages int
}

// Repository abstracts registry persistence.
type Repository interface {
	Create(ctx context.Context, rec tenant.Record) error
	Get(ctx context.Context, id uuid.UUID) (tenant.Record, error)
	GetBySlug(ctx context.Context, slug string) (tenant.Record, error)
	List(ctx context.Context, status *tenant.Status, limit, offset int) ([]tenant.Record, int, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status tenant.Status) error
}

// Service provides tenant registry operations.
type Service struct {
	repo   Repository
	conns  ConnectionInvalidator
	perms  PermissionInvalidator
	logger *zap.Logger
}

// New constructs a Service with required dependencies.
func New(repo Repository, conns ConnectionInvalidator, perms PermissionInvalidator, logger *zap.Logger) *Service {
	if repo == nil {
		panic("tenants repository is required")
	}
	if conns == nil {
		conns = NoopConnectionInvalidator{}
	}
	if perms == nil {
		perms = NoopPermissionInvalidator{}
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Service{repo: repo, conns: conns, perms: perms, logger: logger}
}

// List returns a registry page with optional status filter.
func (s *Service) List(ctx context.Context, opts ListOptions) (ListResult, error) {
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

	records, total, err := s.repo.List(ctx, opts.Status, size, (page-1)*size)
	if err != nil {
		return ListResult{}, err
	}

	totalPages := 0
	if total > 0 {
		totalPages = (total + size - 1) / size
	}
	return ListResult{
		Tenants:    records,
		Page:       page,
		PageSize:   size,
		TotalItems: total,
		TotalPages: totalPages,
	}, nil
}

// Get returns a tenant by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (tenant.Record, error) {
	return s.repo.Get(ctx, id)
}

// GetBySlug returns a tenant by its unique slug.
func (s *Service) GetBySlug(ctx context.Context, slug string) (tenant.Record, error) {
	return s.repo.GetBySlug(ctx, slug)
}

// Create registers a tenant. New rows start in pending; Activate flips them
// live once the operator confirms the database is reachable.
func (s *Service) Create(ctx context.Context, input CreateInput) (tenant.Record, error) {
	slug, err := persistence.NormalizeSlug(input.Slug)
	if err != nil {
		return tenant.Record{}, fmt.Errorf("%w: %v", apperrors.ErrConfiguration, err)
	}

	dbName := strings.TrimSpace(input.DatabaseName)
	if dbName == "" {
		dbName = "tenant_" + strings.ReplaceAll(slug, "-", "_")
	}
	server := strings.TrimSpace(input.DatabaseServer)
	if server == "" {
		return tenant.Record{}, fmt.Errorf("%w: database server is required", apperrors.ErrConfiguration)
	}

	rec := tenant.Record{
		ID:               uuid.New(),
		Slug:             slug,
		Status:           tenant.StatusPending,
		DatabaseName:     dbName,
		DatabaseServer:   server,
		SubscriptionPlan: strings.TrimSpace(input.SubscriptionPlan),
	}

	if err := s.repo.Create(ctx, rec); err != nil {
		return tenant.Record{}, err
	}

	s.logger.Info("tenant registered",
		zap.String("tenant_id", rec.ID.String()),
		zap.String("slug", rec.Slug),
		zap.String("database", rec.DatabaseName))
	return rec, nil
}

// Activate transitions a tenant to active. The stale directory entry is
// dropped so the next request resolves the fresh status.
func (s *Service) Activate(ctx context.Context, id uuid.UUID) (tenant.Record, error) {
	return s.transition(ctx, id, tenant.StatusActive)
}

// Suspend transitions a tenant to suspended and tears down everything that
// could still serve it: the live connection pool, the cached directory entry
// and every cached permission context for its users.
func (s *Service) Suspend(ctx context.Context, id uuid.UUID) (tenant.Record, error) {
	return s.transition(ctx, id, tenant.StatusSuspended)
}

// Delete soft-deletes a tenant. The row stays for audit; routing treats the
// status as terminal, so the same teardown as suspension applies.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := s.transition(ctx, id, tenant.StatusDeleted)
	return err
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, next tenant.Status) (tenant.Record, error) {
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return tenant.Record{}, err
	}

	if current.Status == tenant.StatusDeleted {
		return tenant.Record{}, fmt.Errorf("%w: tenant %s is deleted", ErrInvalidStatus, id)
	}
	if current.Status == next {
		return current, nil
	}

	if err := s.repo.UpdateStatus(ctx, id, next); err != nil {
		return tenant.Record{}, err
	}

	// Any status change invalidates the cached registry row. Only exits from
	// active additionally require dropping the live pool and cached
	// permission contexts.
	s.conns.InvalidateTenantCache(id)
	if next != tenant.StatusActive {
		s.conns.CloseTenant(id)
		s.perms.InvalidateTenant(id)
	}

	current.Status = next
	s.logger.Info("tenant status changed",
		zap.String("tenant_id", id.String()),
		zap.String("status", string(next)))
	return current, nil
}
