package persistence

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/storeline-hq/storeline-core/platform/go/apperrors"
	"github.com/storeline-hq/storeline-core/platform/go/tenant"
)

// RouterConfig bounds the per-tenant pools and the router's housekeeping.
type RouterConfig struct {
	// MasterURL is the DSN of the master registry database.
	MasterURL string
	// TenantURLTemplate is expanded per tenant with {server} and {database}.
	TenantURLTemplate string

	MaxPoolSize    int32
	MinPoolSize    int32
	ConnectTimeout time.Duration
	RequestTimeout time.Duration

	// IdleTimeout makes a tenant pool eligible for eviction after this much
	// inactivity; CleanupInterval is the sweep period.
	IdleTimeout     time.Duration
	CleanupInterval time.Duration

	// Master-pool establishment retries at startup. Terminal tenant failures
	// (unknown, suspended) are never retried.
	InitRetryAttempts int
	InitRetryDelay    time.Duration
}

// PoolFactory builds a pool; swapped out in tests.
type PoolFactory func(ctx context.Context, cfg PoolConfig) (DB, error)

func defaultPoolFactory(ctx context.Context, cfg PoolConfig) (DB, error) {
	return NewPool(ctx, cfg)
}

// Router owns one connection pool per tenant, created lazily on first access
// and evicted after IdleTimeout of inactivity. Creation is single-flighted
// per tenant id so a thundering herd of first requests builds exactly one
// pool; unrelated tenants are unaffected.
type Router struct {
	cfg       RouterConfig
	directory *tenant.Directory
	logger    *zap.Logger
	newPool   PoolFactory

	mu          sync.RWMutex
	master      DB
	masterSeed  DB
	tenants     map[uuid.UUID]*tenantConn
	initialized bool

	sf singleflight.Group

	sweepStop chan struct{}
	sweepDone chan struct{}

	now func() time.Time
}

type tenantConn struct {
	pool DB
	// lastAccess holds a unix-nano stamp so hits refresh it without taking
	// the router lock exclusively.
	lastAccess atomic.Int64
}

func (c *tenantConn) touch(t time.Time) {
	c.lastAccess.Store(t.UnixNano())
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithPoolFactory overrides pool construction (used by tests).
func WithPoolFactory(f PoolFactory) RouterOption {
	return func(r *Router) { r.newPool = f }
}

// WithMasterPool hands the router an already-established master pool instead
// of having Initialize dial its own; callers that built a pool for the tenant
// registry reuse it rather than connecting to the master database twice. The
// router takes ownership and closes it on Close.
func WithMasterPool(db DB) RouterOption {
	return func(r *Router) { r.masterSeed = db }
}

// WithClock overrides the router's time source (used by tests).
func WithClock(now func() time.Time) RouterOption {
	return func(r *Router) { r.now = now }
}

// NewRouter constructs a Router. Initialize must be called before use.
func NewRouter(cfg RouterConfig, directory *tenant.Directory, logger *zap.Logger, opts ...RouterOption) *Router {
	if directory == nil {
		panic("router: tenant directory is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	r := &Router{
		cfg:       cfg,
		directory: directory,
		logger:    logger,
		newPool:   defaultPoolFactory,
		tenants:   make(map[uuid.UUID]*tenantConn),
		now:       time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Initialize establishes the master pool and starts the idle sweep. It is
// idempotent; only the first call performs work. Master connectivity failures
// are retried a fixed number of times with a fixed delay, then surfaced as
// transient infrastructure errors.
func (r *Router) Initialize(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.initialized {
		return nil
	}

	if r.masterSeed != nil {
		r.master = r.masterSeed
		r.finishInitialize()
		return nil
	}

	attempts := r.cfg.InitRetryAttempts
	if attempts < 1 {
		attempts = 1
	}

	var pool DB
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		pool, err = r.newPool(ctx, PoolConfig{
			ConnString:     r.cfg.MasterURL,
			MaxConns:       r.cfg.MaxPoolSize,
			MinConns:       r.cfg.MinPoolSize,
			ConnectTimeout: r.cfg.ConnectTimeout,
		})
		if err == nil {
			break
		}

		r.logger.Warn("master pool connect failed",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", attempts),
			zap.Error(err),
		)
		if attempt < attempts && r.cfg.InitRetryDelay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(r.cfg.InitRetryDelay):
			}
		}
	}
	if err != nil {
		return fmt.Errorf("%w: connect master database: %v", apperrors.ErrTransientInfra, err)
	}

	r.master = pool
	r.finishInitialize()
	return nil
}

// finishInitialize starts the idle sweep; callers hold the write lock.
func (r *Router) finishInitialize() {
	r.initialized = true

	if r.cfg.CleanupInterval > 0 && r.cfg.IdleTimeout > 0 {
		r.sweepStop = make(chan struct{})
		r.sweepDone = make(chan struct{})
		go r.sweepLoop(r.sweepStop, r.sweepDone)
	}

	r.logger.Info("connection router initialized")
}

// Master returns the master-registry pool.
func (r *Router) Master() (DB, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.initialized {
		return nil, fmt.Errorf("%w: router used before Initialize", apperrors.ErrConfiguration)
	}
	return r.master, nil
}

// Get returns the pool for the tenant, creating it on first access. Unknown
// tenants fail with a not-found error and non-active tenants with a forbidden
// error; neither is retried. Establishment failures are transient.
func (r *Router) Get(ctx context.Context, tenantID uuid.UUID) (DB, error) {
	r.mu.RLock()
	initialized := r.initialized
	conn, ok := r.tenants[tenantID]
	r.mu.RUnlock()

	if !initialized {
		return nil, fmt.Errorf("%w: router used before Initialize", apperrors.ErrConfiguration)
	}
	if ok {
		conn.touch(r.now())
		return conn.pool, nil
	}

	v, err, _ := r.sf.Do(tenantID.String(), func() (interface{}, error) {
		// Re-check under the flight: a concurrent caller may have stored the
		// pool between our miss and the flight starting.
		r.mu.RLock()
		existing, ok := r.tenants[tenantID]
		r.mu.RUnlock()
		if ok {
			return existing, nil
		}

		rec, err := r.directory.Resolve(ctx, tenantID)
		if err != nil {
			return nil, err
		}
		if !rec.Active() {
			return nil, fmt.Errorf("%w: tenant %q is %s", apperrors.ErrForbidden, rec.Slug, rec.Status)
		}

		pool, err := r.newPool(ctx, PoolConfig{
			ConnString:     tenant.BuildDatabaseURL(r.cfg.TenantURLTemplate, rec),
			MaxConns:       r.cfg.MaxPoolSize,
			MinConns:       r.cfg.MinPoolSize,
			ConnectTimeout: r.cfg.ConnectTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: connect tenant %s: %v", apperrors.ErrTransientInfra, tenantID, err)
		}

		created := &tenantConn{pool: pool}
		created.touch(r.now())

		r.mu.Lock()
		r.tenants[tenantID] = created
		r.mu.Unlock()

		r.logger.Info("tenant pool created",
			zap.String("tenant_id", tenantID.String()),
			zap.String("slug", rec.Slug),
		)
		return created, nil
	})
	if err != nil {
		return nil, err
	}

	conn = v.(*tenantConn)
	conn.touch(r.now())
	return conn.pool, nil
}

// Has reports whether a live pool exists for the tenant.
func (r *Router) Has(tenantID uuid.UUID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tenants[tenantID]
	return ok
}

// ActiveTenants lists tenants with a live pool, for observability.
func (r *Router) ActiveTenants() []uuid.UUID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]uuid.UUID, 0, len(r.tenants))
	for id := range r.tenants {
		ids = append(ids, id)
	}
	return ids
}

// CloseTenant closes and removes the tenant's pool if present.
func (r *Router) CloseTenant(tenantID uuid.UUID) {
	r.mu.Lock()
	conn, ok := r.tenants[tenantID]
	if ok {
		delete(r.tenants, tenantID)
	}
	r.mu.Unlock()

	if ok {
		conn.pool.Close()
		r.logger.Info("tenant pool closed", zap.String("tenant_id", tenantID.String()))
	}
}

// InvalidateTenantCache drops cached tenant metadata only. An open pool is
// left untouched; metadata changes take effect on the next resolution.
func (r *Router) InvalidateTenantCache(tenantID uuid.UUID) {
	r.directory.Invalidate(tenantID)
}

// RequestTimeout returns the configured per-query upper bound, for callers
// deriving query contexts.
func (r *Router) RequestTimeout() time.Duration {
	return r.cfg.RequestTimeout
}

// Close stops the idle sweep and tears down every pool, master included.
func (r *Router) Close() {
	r.mu.Lock()
	if !r.initialized {
		r.mu.Unlock()
		return
	}
	r.initialized = false
	stop := r.sweepStop
	done := r.sweepDone
	r.sweepStop = nil
	r.sweepDone = nil

	conns := r.tenants
	r.tenants = make(map[uuid.UUID]*tenantConn)
	master := r.master
	r.master = nil
	r.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}
	for _, conn := range conns {
		conn.pool.Close()
	}
	if master != nil {
		master.Close()
	}
	r.logger.Info("connection router closed")
}

func (r *Router) sweepLoop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(r.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			r.sweepIdle()
		}
	}
}

// sweepIdle closes pools whose last access is older than IdleTimeout.
func (r *Router) sweepIdle() {
	cutoff := r.now().Add(-r.cfg.IdleTimeout).UnixNano()

	var evicted []*tenantConn
	r.mu.Lock()
	for id, conn := range r.tenants {
		if conn.lastAccess.Load() < cutoff {
			delete(r.tenants, id)
			evicted = append(evicted, conn)
			r.logger.Info("tenant pool evicted after idle timeout", zap.String("tenant_id", id.String()))
		}
	}
	r.mu.Unlock()

	for _, conn := range evicted {
		conn.pool.Close()
	}
}
