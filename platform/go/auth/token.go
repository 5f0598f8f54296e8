// Package auth verifies bearer tokens and populates the per-request security
// principal, dispatching between the legacy single-tenant and the
// multi-tenant validation paths.
package auth

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/storeline-hq/storeline-core/platform/go/apperrors"
)

// Claims is the normalized token payload. Legacy tokens carry
// userId/sessionId, current tokens sub/session_id/tenant_id; both shapes are
// accepted and normalized here.
type Claims struct {
	UserID         uuid.UUID
	SessionID      uuid.UUID
	TenantID       *uuid.UUID
	TenantUserID   *uuid.UUID
	Role           string
	Email          string
	AssignedStores []uuid.UUID
	ExpiresAt      time.Time
}

// SubjectUserID is the id the tenant database knows the user by: the
// tenant-scoped id when present, the global id otherwise.
func (c *Claims) SubjectUserID() uuid.UUID {
	if c.TenantUserID != nil {
		return *c.TenantUserID
	}
	return c.UserID
}

// TokenVerifier validates shared-secret HMAC bearer tokens.
type TokenVerifier struct {
	secret []byte
	parser *jwt.Parser
}

// NewTokenVerifier builds a verifier for the shared secret.
func NewTokenVerifier(secret string) (*TokenVerifier, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, fmt.Errorf("%w: token secret is required", apperrors.ErrConfiguration)
	}
	return &TokenVerifier{
		secret: []byte(secret),
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
		),
	}, nil
}

// Verify checks signature and expiry and returns the normalized claims. A
// token that does not yield a user id and a session id is rejected outright.
func (v *TokenVerifier) Verify(tokenString string) (*Claims, error) {
	token, err := v.parser.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrAuthentication, err)
	}

	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("%w: invalid token claims", apperrors.ErrAuthentication)
	}

	return normalizeClaims(mapClaims)
}

func normalizeClaims(claims jwt.MapClaims) (*Claims, error) {
	userID, ok := uuidClaim(claims, "sub", "userId", "user_id")
	if !ok {
		return nil, fmt.Errorf("%w: token is missing a user id", apperrors.ErrAuthentication)
	}
	sessionID, ok := uuidClaim(claims, "session_id", "sessionId")
	if !ok {
		return nil, fmt.Errorf("%w: token is missing a session id", apperrors.ErrAuthentication)
	}

	normalized := &Claims{
		UserID:    userID,
		SessionID: sessionID,
		Role:      stringClaim(claims, "role"),
		Email:     stringClaim(claims, "email"),
	}

	if tenantID, ok := uuidClaim(claims, "tenant_id", "tenantId"); ok {
		normalized.TenantID = &tenantID
	}
	if tenantUserID, ok := uuidClaim(claims, "tenant_user_id", "tenantUserId"); ok {
		normalized.TenantUserID = &tenantUserID
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		normalized.ExpiresAt = exp.Time
	}

	if stores, ok := claims["stores"].([]interface{}); ok {
		for _, raw := range stores {
			s, ok := raw.(string)
			if !ok {
				continue
			}
			if id, err := uuid.Parse(s); err == nil {
				normalized.AssignedStores = append(normalized.AssignedStores, id)
			}
		}
	}

	return normalized, nil
}

func stringClaim(claims jwt.MapClaims, keys ...string) string {
	for _, key := range keys {
		if v, ok := claims[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

func uuidClaim(claims jwt.MapClaims, keys ...string) (uuid.UUID, bool) {
	for _, key := range keys {
		v, ok := claims[key].(string)
		if !ok || v == "" {
			continue
		}
		if id, err := uuid.Parse(v); err == nil {
			return id, true
		}
	}
	return uuid.UUID{}, false
}

// TokenIssuer mints HS256 bearer tokens for the login paths.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenIssuer builds an issuer; ttl bounds every minted token.
func NewTokenIssuer(secret string, ttl time.Duration) (*TokenIssuer, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, fmt.Errorf("%w: token secret is required", apperrors.ErrConfiguration)
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("%w: token ttl must be positive", apperrors.ErrConfiguration)
	}
	return &TokenIssuer{secret: []byte(secret), ttl: ttl}, nil
}

// TTL returns the configured token lifetime, which callers reuse as the
// session lifetime.
func (i *TokenIssuer) TTL() time.Duration {
	return i.ttl
}

// Mint signs a token for the claims; tenant fields are included only when set.
func (i *TokenIssuer) Mint(claims Claims, now time.Time) (string, error) {
	mapClaims := jwt.MapClaims{
		"sub":        claims.UserID.String(),
		"session_id": claims.SessionID.String(),
		"iat":        now.Unix(),
		"exp":        now.Add(i.ttl).Unix(),
	}
	if claims.TenantID != nil {
		mapClaims["tenant_id"] = claims.TenantID.String()
	}
	if claims.TenantUserID != nil {
		mapClaims["tenant_user_id"] = claims.TenantUserID.String()
	}
	if claims.Role != "" {
		mapClaims["role"] = claims.Role
	}
	if claims.Email != "" {
		mapClaims["email"] = claims.Email
	}
	if len(claims.AssignedStores) > 0 {
		stores := make([]string, 0, len(claims.AssignedStores))
		for _, id := range claims.AssignedStores {
			stores = append(stores, id.String())
		}
		mapClaims["stores"] = stores
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, mapClaims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
