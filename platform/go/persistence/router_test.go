package persistence

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/storeline-hq/storeline-core/platform/go/apperrors"
	"github.com/storeline-hq/storeline-core/platform/go/tenant"
)

// fakeDB is a no-op DB that only tracks Close.
type fakeDB struct {
	connString string
	mu         sync.Mutex
	closed     bool
}

func (f *fakeDB) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}

func (f *fakeDB) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeDB) QueryRow(context.Context, string, ...any) pgx.Row { return nil }

func (f *fakeDB) Ping(context.Context) error { return nil }

func (f *fakeDB) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

func (f *fakeDB) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// fakeFactory records every pool it builds, keyed by conn string.
type fakeFactory struct {
	mu    sync.Mutex
	pools []*fakeDB
	fail  map[string]error
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{fail: make(map[string]error)}
}

func (f *fakeFactory) build(_ context.Context, cfg PoolConfig) (DB, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.fail[cfg.ConnString]; ok {
		return nil, err
	}
	db := &fakeDB{connString: cfg.ConnString}
	f.pools = append(f.pools, db)
	return db, nil
}

func (f *fakeFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pools)
}

type routerFixture struct {
	router    *Router
	factory   *fakeFactory
	store     *memoryTenantStore
	clock     *fakeClock
	directory *tenant.Directory
}

type memoryTenantStore struct {
	mu      sync.Mutex
	records map[uuid.UUID]tenant.Record
}

func (s *memoryTenantStore) put(rec tenant.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.ID] = rec
}

func (s *memoryTenantStore) GetTenant(_ context.Context, id uuid.UUID) (tenant.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return tenant.Record{}, apperrors.ErrNotFound
	}
	return rec, nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newRouterFixture(t *testing.T, cfg RouterConfig) *routerFixture {
	t.Helper()

	if cfg.MasterURL == "" {
		cfg.MasterURL = "postgres://master"
	}
	if cfg.TenantURLTemplate == "" {
		cfg.TenantURLTemplate = "postgres://{server}/{database}"
	}

	store := &memoryTenantStore{records: make(map[uuid.UUID]tenant.Record)}
	directory := tenant.NewDirectory(store, time.Minute)
	factory := newFakeFactory()
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}

	router := NewRouter(cfg, directory, nil,
		WithPoolFactory(factory.build),
		WithClock(clock.Now),
	)
	t.Cleanup(router.Close)

	return &routerFixture{
		router:    router,
		factory:   factory,
		store:     store,
		clock:     clock,
		directory: directory,
	}
}

func activeTenant(fx *routerFixture) tenant.Record {
	rec := tenant.Record{
		ID:             uuid.New(),
		Slug:           "acme",
		Status:         tenant.StatusActive,
		DatabaseName:   "tenant_acme",
		DatabaseServer: "db-1",
	}
	fx.store.put(rec)
	return rec
}

func TestRouterBeforeInitialize(t *testing.T) {
	fx := newRouterFixture(t, RouterConfig{})

	_, err := fx.router.Master()
	require.ErrorIs(t, err, apperrors.ErrConfiguration)

	_, err = fx.router.Get(context.Background(), uuid.New())
	require.ErrorIs(t, err, apperrors.ErrConfiguration)
}

func TestRouterInitializeIdempotent(t *testing.T) {
	fx := newRouterFixture(t, RouterConfig{})

	require.NoError(t, fx.router.Initialize(context.Background()))
	require.NoError(t, fx.router.Initialize(context.Background()))
	require.Equal(t, 1, fx.factory.count())

	master, err := fx.router.Master()
	require.NoError(t, err)
	require.NotNil(t, master)
}

func TestRouterInitializeAdoptsProvidedMasterPool(t *testing.T) {
	store := &memoryTenantStore{records: make(map[uuid.UUID]tenant.Record)}
	directory := tenant.NewDirectory(store, time.Minute)
	factory := newFakeFactory()
	seed := &fakeDB{connString: "postgres://master"}

	router := NewRouter(RouterConfig{
		MasterURL:         "postgres://master",
		TenantURLTemplate: "postgres://{server}/{database}",
	}, directory, nil,
		WithPoolFactory(factory.build),
		WithMasterPool(seed),
	)

	require.NoError(t, router.Initialize(context.Background()))
	// No second master connection is dialed.
	require.Equal(t, 0, factory.count())

	master, err := router.Master()
	require.NoError(t, err)
	require.Same(t, seed, master)

	// Close tears down the adopted pool with the rest.
	router.Close()
	require.True(t, seed.isClosed())
}

func TestRouterInitializeRetriesThenFails(t *testing.T) {
	fx := newRouterFixture(t, RouterConfig{InitRetryAttempts: 3, InitRetryDelay: time.Millisecond})
	fx.factory.fail["postgres://master"] = errors.New("connection refused")

	err := fx.router.Initialize(context.Background())
	require.ErrorIs(t, err, apperrors.ErrTransientInfra)
}

func TestRouterGetReusesPool(t *testing.T) {
	fx := newRouterFixture(t, RouterConfig{})
	rec := activeTenant(fx)
	require.NoError(t, fx.router.Initialize(context.Background()))

	first, err := fx.router.Get(context.Background(), rec.ID)
	require.NoError(t, err)
	second, err := fx.router.Get(context.Background(), rec.ID)
	require.NoError(t, err)

	require.Same(t, first, second)
	require.Equal(t, 2, fx.factory.count()) // master + one tenant pool
	require.True(t, fx.router.Has(rec.ID))

	// DSN template expanded with the tenant's database location.
	require.Equal(t, "postgres://db-1/tenant_acme", fx.factory.pools[1].connString)
}

func TestRouterGetUnknownTenant(t *testing.T) {
	fx := newRouterFixture(t, RouterConfig{})
	require.NoError(t, fx.router.Initialize(context.Background()))

	_, err := fx.router.Get(context.Background(), uuid.New())
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestRouterGetSuspendedTenant(t *testing.T) {
	fx := newRouterFixture(t, RouterConfig{})
	rec := tenant.Record{ID: uuid.New(), Slug: "acme", Status: tenant.StatusSuspended}
	fx.store.put(rec)
	require.NoError(t, fx.router.Initialize(context.Background()))

	_, err := fx.router.Get(context.Background(), rec.ID)
	require.ErrorIs(t, err, apperrors.ErrForbidden)
	require.False(t, fx.router.Has(rec.ID))
}

func TestRouterGetEstablishFailureIsTransient(t *testing.T) {
	fx := newRouterFixture(t, RouterConfig{})
	rec := activeTenant(fx)
	fx.factory.fail["postgres://db-1/tenant_acme"] = errors.New("no route to host")
	require.NoError(t, fx.router.Initialize(context.Background()))

	_, err := fx.router.Get(context.Background(), rec.ID)
	require.ErrorIs(t, err, apperrors.ErrTransientInfra)
}

func TestRouterGetSingleFlight(t *testing.T) {
	fx := newRouterFixture(t, RouterConfig{})
	rec := activeTenant(fx)
	require.NoError(t, fx.router.Initialize(context.Background()))

	var wg sync.WaitGroup
	pools := make([]DB, 16)
	errs := make([]error, 16)
	for i := range pools {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			pools[i], errs[i] = fx.router.Get(context.Background(), rec.ID)
		}(i)
	}
	wg.Wait()

	for i, pool := range pools {
		require.NoError(t, errs[i])
		require.Same(t, pools[0], pool)
	}
	require.Equal(t, 2, fx.factory.count())
}

func TestRouterIdleSweep(t *testing.T) {
	fx := newRouterFixture(t, RouterConfig{IdleTimeout: time.Hour})
	rec := activeTenant(fx)
	busy := tenant.Record{
		ID:             uuid.New(),
		Slug:           "busy",
		Status:         tenant.StatusActive,
		DatabaseName:   "tenant_busy",
		DatabaseServer: "db-1",
	}
	fx.store.put(busy)
	require.NoError(t, fx.router.Initialize(context.Background()))

	_, err := fx.router.Get(context.Background(), rec.ID)
	require.NoError(t, err)
	_, err = fx.router.Get(context.Background(), busy.ID)
	require.NoError(t, err)

	// One tenant stays hot across the idle window, the other goes quiet.
	fx.clock.Advance(2 * time.Hour)
	_, err = fx.router.Get(context.Background(), busy.ID)
	require.NoError(t, err)

	fx.router.sweepIdle()

	require.False(t, fx.router.Has(rec.ID))
	require.True(t, fx.router.Has(busy.ID))
	require.True(t, fx.factory.pools[1].isClosed())

	// The evicted tenant is rebuilt on demand.
	_, err = fx.router.Get(context.Background(), rec.ID)
	require.NoError(t, err)
	require.Equal(t, 4, fx.factory.count())
}

func TestRouterCloseTenant(t *testing.T) {
	fx := newRouterFixture(t, RouterConfig{})
	rec := activeTenant(fx)
	require.NoError(t, fx.router.Initialize(context.Background()))

	_, err := fx.router.Get(context.Background(), rec.ID)
	require.NoError(t, err)

	fx.router.CloseTenant(rec.ID)
	require.False(t, fx.router.Has(rec.ID))
	require.True(t, fx.factory.pools[1].isClosed())

	// A second close is a no-op.
	fx.router.CloseTenant(rec.ID)
}

func TestRouterInvalidateTenantCacheKeepsPool(t *testing.T) {
	fx := newRouterFixture(t, RouterConfig{})
	rec := activeTenant(fx)
	require.NoError(t, fx.router.Initialize(context.Background()))

	_, err := fx.router.Get(context.Background(), rec.ID)
	require.NoError(t, err)

	fx.router.InvalidateTenantCache(rec.ID)
	require.True(t, fx.router.Has(rec.ID))
}

func TestRouterClose(t *testing.T) {
	fx := newRouterFixture(t, RouterConfig{IdleTimeout: time.Hour, CleanupInterval: 10 * time.Millisecond})
	rec := activeTenant(fx)
	require.NoError(t, fx.router.Initialize(context.Background()))

	_, err := fx.router.Get(context.Background(), rec.ID)
	require.NoError(t, err)

	fx.router.Close()

	require.True(t, fx.factory.pools[0].isClosed())
	require.True(t, fx.factory.pools[1].isClosed())

	_, err = fx.router.Master()
	require.ErrorIs(t, err, apperrors.ErrConfiguration)

	// Closing twice is safe.
	fx.router.Close()
}

func TestRouterActiveTenants(t *testing.T) {
	fx := newRouterFixture(t, RouterConfig{})
	rec := activeTenant(fx)
	require.NoError(t, fx.router.Initialize(context.Background()))

	require.Empty(t, fx.router.ActiveTenants())

	_, err := fx.router.Get(context.Background(), rec.ID)
	require.NoError(t, err)

	require.Equal(t, []uuid.UUID{rec.ID}, fx.router.ActiveTenants())
}
