package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/storeline-hq/storeline-core/platform/go/apperrors"
	"github.com/storeline-hq/storeline-core/platform/go/persistence"
	"github.com/storeline-hq/storeline-core/platform/go/tenant"
)

// ConnectionSource yields the database backing a tenant. Implemented by
// persistence.Router.
type ConnectionSource interface {
	Get(ctx context.Context, tenantID uuid.UUID) (persistence.DB, error)
	Master() (persistence.DB, error)
}

// TenantResolver resolves tenant metadata for the security context.
// Implemented by tenant.Directory.
type TenantResolver interface {
	Resolve(ctx context.Context, id uuid.UUID) (tenant.Record, error)
}

// Gateway verifies bearer tokens and dispatches to the legacy or the
// multi-tenant validation path, attaching the principal (and, on the
// multi-tenant path, the tenant record) to the request context.
type Gateway struct {
	verifier *TokenVerifier
	conns    ConnectionSource
	tenants  TenantResolver
	logger   *zap.Logger
}

// NewGateway constructs a Gateway.
func NewGateway(verifier *TokenVerifier, conns ConnectionSource, tenants TenantResolver, logger *zap.Logger) *Gateway {
	if verifier == nil {
		panic("gateway: token verifier is required")
	}
	if conns == nil {
		panic("gateway: connection source is required")
	}
	if tenants == nil {
		panic("gateway: tenant resolver is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{verifier: verifier, conns: conns, tenants: tenants, logger: logger}
}

// ExtractBearerToken pulls the bearer token from the Authorization header.
func ExtractBearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", false
	}

	const prefix = "Bearer "
	// Case-insensitive prefix match.
	if len(authHeader) < len(prefix) || !strings.EqualFold(authHeader[:len(prefix)], prefix) {
		return "", false
	}

	return strings.TrimSpace(authHeader[len(prefix):]), true
}

// Middleware authenticates every request passing through it.
func (g *Gateway) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			token, found := ExtractBearerToken(r)
			if !found {
				unauthorized(w, "missing bearer token")
				return
			}

			ctx, err := g.Authenticate(r.Context(), token)
			if err != nil {
				g.deny(w, r, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Authenticate validates the token and its session and returns a context
// carrying the principal (plus the tenant record on the multi-tenant path).
func (g *Gateway) Authenticate(ctx context.Context, token string) (context.Context, error) {
	claims, err := g.verifier.Verify(token)
	if err != nil {
		return nil, err
	}

	if claims.TenantID != nil {
		return g.authenticateTenant(ctx, claims)
	}
	return g.authenticateLegacy(ctx, claims)
}

func (g *Gateway) authenticateTenant(ctx context.Context, claims *Claims) (context.Context, error) {
	rec, err := g.tenants.Resolve(ctx, *claims.TenantID)
	if err != nil {
		return nil, err
	}

	db, err := g.conns.Get(ctx, *claims.TenantID)
	if err != nil {
		return nil, err
	}

	principal, err := g.validateSession(ctx, db, claims)
	if err != nil {
		return nil, err
	}
	principal.TenantID = claims.TenantID

	ctx = tenant.WithRecord(ctx, rec)
	return WithPrincipal(ctx, principal), nil
}

func (g *Gateway) authenticateLegacy(ctx context.Context, claims *Claims) (context.Context, error) {
	db, err := g.conns.Master()
	if err != nil {
		return nil, err
	}

	principal, err := g.validateSession(ctx, db, claims)
	if err != nil {
		return nil, err
	}

	return WithPrincipal(ctx, principal), nil
}

// validateSession requires a live, non-expired session row for
// (sessionId, userId) and an active user row.
func (g *Gateway) validateSession(ctx context.Context, db persistence.DB, claims *Claims) (*Principal, error) {
	userID := claims.SubjectUserID()

	sessions, err := persistence.NewSessionStore(db)
	if err != nil {
		return nil, err
	}
	if _, err := sessions.GetLiveSession(ctx, claims.SessionID, userID); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, fmt.Errorf("%w: session is expired or revoked", apperrors.ErrAuthentication)
		}
		return nil, err
	}

	accounts, err := persistence.NewAccountStore(db)
	if err != nil {
		return nil, err
	}
	account, err := accounts.GetAccount(ctx, userID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, fmt.Errorf("%w: unknown user", apperrors.ErrAuthentication)
		}
		return nil, err
	}
	if account.Status != persistence.AccountStatusActive {
		return nil, fmt.Errorf("%w: user is not active", apperrors.ErrForbidden)
	}

	role := account.Role
	if role == "" {
		role = claims.Role
	}

	return &Principal{
		UserID:         userID,
		SessionID:      claims.SessionID,
		Role:           role,
		Email:          account.Email,
		AssignedStores: claims.AssignedStores,
	}, nil
}

// EnsureTenantContext re-derives the tenant context from the bearer token
// when a downstream step needs it but the gateway has not set it (e.g. called
// out of order). A context that already carries a tenant is returned as-is.
func (g *Gateway) EnsureTenantContext(ctx context.Context, r *http.Request) (context.Context, error) {
	if _, ok := tenant.FromContext(ctx); ok {
		return ctx, nil
	}

	token, found := ExtractBearerToken(r)
	if !found {
		return nil, fmt.Errorf("%w: missing bearer token", apperrors.ErrAuthentication)
	}

	claims, err := g.verifier.Verify(token)
	if err != nil {
		return nil, err
	}
	if claims.TenantID == nil {
		return nil, fmt.Errorf("%w: token carries no tenant", apperrors.ErrAuthentication)
	}

	rec, err := g.tenants.Resolve(ctx, *claims.TenantID)
	if err != nil {
		return nil, err
	}
	return tenant.WithRecord(ctx, rec), nil
}

func (g *Gateway) deny(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, apperrors.ErrAuthentication), errors.Is(err, apperrors.ErrNotFound):
		unauthorized(w, "invalid token")
	case errors.Is(err, apperrors.ErrForbidden):
		http.Error(w, "forbidden", http.StatusForbidden)
	default:
		// Internals (SQL text, connection errors) stay in the log.
		g.logger.Error("authentication gateway failure",
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func unauthorized(w http.ResponseWriter, description string) {
	w.Header().Set("WWW-Authenticate", fmt.Sprintf(`Bearer realm="api", error="invalid_token", error_description="%s"`, description))
	http.Error(w, "unauthorized", http.StatusUnauthorized)
}
