package repo

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/storeline-hq/storeline-core/domains/tenants/be/service"
	"github.com/storeline-hq/storeline-core/platform/go/apperrors"
	"github.com/storeline-hq/storeline-core/platform/go/tenant"
)

// MemoryRepository is an in-memory registry for tests and local development.
type MemoryRepository struct {
	mu     sync.RWMutex
	byID   map[uuid.UUID]tenant.Record
	bySlug map[string]uuid.UUID
}

// NewMemoryRepository constructs a MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:   make(map[uuid.UUID]tenant.Record),
		bySlug: make(map[string]uuid.UUID),
	}
}

func (r *MemoryRepository) Create(ctx context.Context, rec tenant.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.bySlug[rec.Slug]; exists {
		return service.ErrSlugTaken
	}
	r.byID[rec.ID] = rec
	r.bySlug[rec.Slug] = rec.ID
	return nil
}

func (r *MemoryRepository) Get(ctx context.Context, id uuid.UUID) (tenant.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.byID[id]
	if !ok {
		return tenant.Record{}, fmt.Errorf("%w: tenant", apperrors.ErrNotFound)
	}
	return rec, nil
}

func (r *MemoryRepository) GetBySlug(ctx context.Context, slug string) (tenant.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.bySlug[slug]
	if !ok {
		return tenant.Record{}, fmt.Errorf("%w: tenant", apperrors.ErrNotFound)
	}
	return r.byID[id], nil
}

func (r *MemoryRepository) List(ctx context.Context, status *tenant.Status, limit, offset int) ([]tenant.Record, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var all []tenant.Record
	for _, rec := range r.byID {
		if status != nil && rec.Status != *status {
			continue
		}
		all = append(all, rec)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Slug < all[j].Slug })

	total := len(all)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if limit <= 0 || end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (r *MemoryRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status tenant.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.byID[id]
	if !ok {
		return fmt.Errorf("%w: tenant", apperrors.ErrNotFound)
	}
	rec.Status = status
	r.byID[id] = rec
	return nil
}

var _ service.Repository = (*MemoryRepository)(nil)
