package tenant

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// Store is the master-registry lookup the directory reads through to.
// Implemented by persistence.TenantStore.
type Store interface {
	GetTenant(ctx context.Context, id uuid.UUID) (Record, error)
}

// Directory is a read-through cache over tenant metadata. Entries are aged
// out after maxAge so registry changes (rename, database move) become visible
// without a restart; concurrent fills for the same tenant are collapsed.
type Directory struct {
	store  Store
	maxAge time.Duration

	mu      sync.RWMutex
	entries map[uuid.UUID]directoryEntry

	sf singleflight.Group

	now func() time.Time
}

type directoryEntry struct {
	record    Record
	fetchedAt time.Time
}

// NewDirectory constructs a Directory; maxAge <= 0 disables caching.
func NewDirectory(store Store, maxAge time.Duration) *Directory {
	if store == nil {
		panic("tenant directory: store is required")
	}
	return &Directory{
		store:   store,
		maxAge:  maxAge,
		entries: make(map[uuid.UUID]directoryEntry),
		now:     time.Now,
	}
}

// Resolve returns the tenant metadata, consulting the master store only when
// the cached entry is absent or older than maxAge.
func (d *Directory) Resolve(ctx context.Context, id uuid.UUID) (Record, error) {
	if d.maxAge > 0 {
		d.mu.RLock()
		entry, ok := d.entries[id]
		d.mu.RUnlock()
		if ok && d.now().Sub(entry.fetchedAt) < d.maxAge {
			return entry.record, nil
		}
	}

	v, err, _ := d.sf.Do(id.String(), func() (interface{}, error) {
		rec, err := d.store.GetTenant(ctx, id)
		if err != nil {
			return Record{}, fmt.Errorf("resolve tenant %s: %w", id, err)
		}

		if d.maxAge > 0 {
			d.mu.Lock()
			d.entries[id] = directoryEntry{record: rec, fetchedAt: d.now()}
			d.mu.Unlock()
		}
		return rec, nil
	})
	if err != nil {
		return Record{}, err
	}

	return v.(Record), nil
}

// Invalidate drops the cached metadata for one tenant. Unknown ids are a no-op.
func (d *Directory) Invalidate(id uuid.UUID) {
	d.mu.Lock()
	delete(d.entries, id)
	d.mu.Unlock()
}

// InvalidateAll empties the directory.
func (d *Directory) InvalidateAll() {
	d.mu.Lock()
	d.entries = make(map[uuid.UUID]directoryEntry)
	d.mu.Unlock()
}
