package authz

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/storeline-hq/storeline-core/platform/go/apperrors"
	"github.com/storeline-hq/storeline-core/platform/go/persistence"
)

// ConnectionSource yields the database backing a tenant. Implemented by
// persistence.Router.
type ConnectionSource interface {
	Get(ctx context.Context, tenantID uuid.UUID) (persistence.DB, error)
	Master() (persistence.DB, error)
}

// Context is the resolved access profile for a user in a tenant: role plus
// the custom and store-scoped permission layers it was computed from.
type Context struct {
	UserID           uuid.UUID
	TenantID         uuid.UUID
	Role             string
	Custom           PermissionSet
	StorePermissions map[uuid.UUID]PermissionSet
	AssignedStores   []uuid.UUID
}

// Check is one permission question.
type Check struct {
	Module  string
	Action  string
	StoreID uuid.UUID // uuid.Nil when the check is not store-scoped
}

// Key is the map key CheckMany answers under: "module:action:storeId".
func (c Check) Key() string {
	store := ""
	if c.StoreID != uuid.Nil {
		store = c.StoreID.String()
	}
	return fmt.Sprintf("%s:%s:%s", c.Module, c.Action, store)
}

// Resolver loads, merges and caches per-user permission layers.
//
// Cache invalidation is the caller's responsibility: any mutation to a user's
// role, custom permissions or store assignments must invoke the matching
// Invalidate* immediately after commit. Absent that, the cache is eventually
// consistent bounded by the configured TTL.
type Resolver struct {
	conns  ConnectionSource
	cache  *Cache
	logger *zap.Logger
}

// NewResolver constructs a Resolver.
func NewResolver(conns ConnectionSource, cache *Cache, logger *zap.Logger) *Resolver {
	if conns == nil {
		panic("resolver: connection source is required")
	}
	if cache == nil {
		cache = NewCache(CacheConfig{})
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{conns: conns, cache: cache, logger: logger}
}

// GetContext returns the user's permission context, cache-first. tenantID is
// uuid.Nil for legacy users resolved against the master database.
func (r *Resolver) GetContext(ctx context.Context, userID, tenantID uuid.UUID) (*Context, error) {
	key := CacheKey{UserID: userID, TenantID: tenantID}
	if cached, ok := r.cache.Get(key); ok {
		return cached, nil
	}

	db, err := r.connFor(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	pctx, err := r.load(ctx, db, userID, tenantID)
	if err != nil {
		return nil, err
	}

	r.cache.Set(key, pctx)
	return pctx, nil
}

func (r *Resolver) connFor(ctx context.Context, tenantID uuid.UUID) (persistence.DB, error) {
	if tenantID == uuid.Nil {
		return r.conns.Master()
	}
	return r.conns.Get(ctx, tenantID)
}

func (r *Resolver) load(ctx context.Context, db persistence.DB, userID, tenantID uuid.UUID) (*Context, error) {
	accounts, err := persistence.NewAccountStore(db)
	if err != nil {
		return nil, err
	}
	account, err := accounts.GetAccount(ctx, userID)
	if err != nil {
		return nil, err
	}

	custom, err := DecodePermissionSet(account.RawPermissions)
	if err != nil {
		return nil, fmt.Errorf("user %s: %w", userID, err)
	}

	storeAccess, err := persistence.NewStoreAccessStore(db)
	if err != nil {
		return nil, err
	}
	assignments, err := storeAccess.ListAssignments(ctx, userID)
	if err != nil {
		return nil, err
	}

	assignedStores := make([]uuid.UUID, 0, len(assignments))
	overrides := make(map[uuid.UUID]PermissionSet, len(assignments))
	for _, a := range assignments {
		assignedStores = append(assignedStores, a.StoreID)
		if len(a.RawPermissions) > 0 {
			set, err := DecodePermissionSet(a.RawPermissions)
			if err != nil {
				return nil, fmt.Errorf("store assignment %s/%s: %w", userID, a.StoreID, err)
			}
			overrides[a.StoreID] = set
		}
	}

	storeRows, err := storeAccess.ListStorePermissions(ctx, assignedStores)
	if err != nil {
		return nil, err
	}

	storePerms := make(map[uuid.UUID]PermissionSet)
	for _, row := range storeRows {
		actions, err := DecodeActionList(row.RawActions)
		if err != nil {
			return nil, fmt.Errorf("store %s module %s: %w", row.StoreID, row.Module, err)
		}
		set, ok := storePerms[row.StoreID]
		if !ok {
			set = make(PermissionSet)
			storePerms[row.StoreID] = set
		}
		set[row.Module] = actions
	}

	// Assignment-level overrides replace the store rows per module.
	for storeID, override := range overrides {
		set, ok := storePerms[storeID]
		if !ok {
			set = make(PermissionSet)
			storePerms[storeID] = set
		}
		for module, actions := range override {
			set[module] = append([]string(nil), actions...)
		}
	}

	sort.Slice(assignedStores, func(i, j int) bool {
		return assignedStores[i].String() < assignedStores[j].String()
	})

	return &Context{
		UserID:           userID,
		TenantID:         tenantID,
		Role:             account.Role,
		Custom:           custom,
		StorePermissions: storePerms,
		AssignedStores:   assignedStores,
	}, nil
}

// CheckPermission evaluates one module/action question. Layering, lowest to
// highest precedence: role defaults → custom → store-specific; a later
// layer's module entry fully replaces the earlier one's. Owner is always
// allowed. pctx may carry a pre-loaded context to skip the cache.
func (r *Resolver) CheckPermission(ctx context.Context, userID, tenantID uuid.UUID, check Check, pctx *Context) error {
	var err error
	if pctx == nil {
		pctx, err = r.GetContext(ctx, userID, tenantID)
		if err != nil {
			return err
		}
	}

	if pctx.Role == RoleOwner {
		return nil
	}

	layers := []Layer{
		{Kind: LayerRoleDefault, Permissions: RoleDefaults(pctx.Role)},
		{Kind: LayerCustom, Permissions: pctx.Custom},
	}
	if check.StoreID != uuid.Nil {
		if storeSet, ok := pctx.StorePermissions[check.StoreID]; ok {
			layers = append(layers, Layer{Kind: LayerStore, StoreID: check.StoreID, Permissions: storeSet})
		}
	}

	if !Effective(layers).Allows(check.Module, check.Action) {
		return apperrors.PermissionDenied(check.Action, check.Module)
	}
	return nil
}

// CheckStoreAccess verifies the user may operate on the store. Owner and
// company managers always pass; every other role needs an explicit
// store-assignment row.
func (r *Resolver) CheckStoreAccess(ctx context.Context, userID, storeID, tenantID uuid.UUID) error {
	pctx, err := r.GetContext(ctx, userID, tenantID)
	if err != nil {
		return err
	}

	if pctx.Role == RoleOwner || pctx.Role == RoleCompanyManager {
		return nil
	}

	for _, assigned := range pctx.AssignedStores {
		if assigned == storeID {
			return nil
		}
	}
	return apperrors.StoreAccessDenied(storeID.String())
}

// CheckMany loads the context once and answers every check, keyed
// "module:action:storeId".
func (r *Resolver) CheckMany(ctx context.Context, userID, tenantID uuid.UUID, checks []Check) (map[string]bool, error) {
	pctx, err := r.GetContext(ctx, userID, tenantID)
	if err != nil {
		return nil, err
	}

	results := make(map[string]bool, len(checks))
	for _, check := range checks {
		results[check.Key()] = r.CheckPermission(ctx, userID, tenantID, check, pctx) == nil
	}
	return results, nil
}

// InvalidateUser drops the cached context for one user.
func (r *Resolver) InvalidateUser(userID uuid.UUID, tenantID *uuid.UUID) {
	r.cache.InvalidateUser(userID, tenantID)
}

// InvalidateTenant drops every cached context for the tenant.
func (r *Resolver) InvalidateTenant(tenantID uuid.UUID) {
	r.cache.InvalidateTenant(tenantID)
}

// InvalidateRole drops cached contexts resolved for the role.
func (r *Resolver) InvalidateRole(role string, tenantID *uuid.UUID) {
	r.cache.InvalidateByRole(role, tenantID)
}

// InvalidateStore drops cached contexts computed against the store.
func (r *Resolver) InvalidateStore(storeID uuid.UUID, tenantID *uuid.UUID) {
	r.cache.InvalidateByStore(storeID, tenantID)
}

// CacheStats exposes the cache's hit/miss counters.
func (r *Resolver) CacheStats() CacheStats {
	return r.cache.Stats()
}
