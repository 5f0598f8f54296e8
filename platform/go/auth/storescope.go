package auth

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/storeline-hq/storeline-core/platform/go/authz"
)

// StoreIDHeader and StoreIDQueryParam are where requests carry the store they
// operate on; the header wins when both are present.
const (
	StoreIDHeader     = "X-Store-Id"
	StoreIDQueryParam = "store_id"
)

// StoreIDFromRequest extracts the store identifier from the request.
func StoreIDFromRequest(r *http.Request) (uuid.UUID, bool) {
	raw := r.Header.Get(StoreIDHeader)
	if raw == "" {
		raw = r.URL.Query().Get(StoreIDQueryParam)
	}
	if raw == "" {
		return uuid.UUID{}, false
	}

	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.UUID{}, false
	}
	return id, true
}

// RequireStoreScope gates requests on the principal's store assignments.
// Owner and company managers bypass store checks. Other roles are restricted
// to their explicit assignment list only when that list is non-empty: an
// empty assignment list grants unrestricted access (legacy single-store
// behavior, kept as-is pending product-owner confirmation).
func RequireStoreScope() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := PrincipalFromContext(r.Context())
			if !ok || principal == nil {
				unauthorized(w, "missing principal")
				return
			}

			storeID, ok := StoreIDFromRequest(r)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			if !principal.CanAccessStore(storeID) {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// CanAccessStore applies the role bypass and the non-empty-list restriction.
func (p *Principal) CanAccessStore(storeID uuid.UUID) bool {
	if p.Role == authz.RoleOwner || p.Role == authz.RoleCompanyManager {
		return true
	}
	if len(p.AssignedStores) == 0 {
		return true
	}
	for _, assigned := range p.AssignedStores {
		if assigned == storeID {
			return true
		}
	}
	return false
}
