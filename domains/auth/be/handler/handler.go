// Package handler exposes the login workflow over HTTP.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/storeline-hq/storeline-core/domains/auth/be/service"
	"github.com/storeline-hq/storeline-core/platform/go/apperrors"
	platformauth "github.com/storeline-hq/storeline-core/platform/go/auth"
	"github.com/storeline-hq/storeline-core/platform/go/authz"
	platformlogging "github.com/storeline-hq/storeline-core/platform/go/logging"
)

// Handler wires the auth service and the permission resolver to HTTP.
type Handler struct {
	svc      *service.Service
	resolver *authz.Resolver
	logger   *zap.Logger
}

// New constructs a Handler instance.
func New(svc *service.Service, resolver *authz.Resolver, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("auth service is required")
	}
	if resolver == nil {
		panic("permission resolver is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Handler{svc: svc, resolver: resolver, logger: logger}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	UserID    string    `json:"userId"`
	Role      string    `json:"role"`
	Email     string    `json:"email"`
	TenantID  *string   `json:"tenantId,omitempty"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// Login handles POST /auth/login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "email and password are required"})
		return
	}

	result, err := h.svc.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := loginResponse{
		Token:     result.Token,
		UserID:    result.UserID.String(),
		Role:      result.Role,
		Email:     result.Email,
		ExpiresAt: result.ExpiresAt,
	}
	if result.Tenant != nil {
		id := result.Tenant.ID.String()
		resp.TenantID = &id
	}
	writeJSON(w, http.StatusOK, resp)
}

// Logout handles POST /auth/logout; requires an authenticated principal.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	principal, ok := platformauth.PrincipalFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
		return
	}

	if err := h.svc.Logout(r.Context(), principal); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Me handles GET /auth/me and echoes the resolved principal.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	principal, ok := platformauth.PrincipalFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
		return
	}

	resp := map[string]any{
		"userId": principal.UserID.String(),
		"role":   principal.Role,
		"email":  principal.Email,
	}
	if principal.TenantID != nil {
		resp["tenantId"] = principal.TenantID.String()
	}
	writeJSON(w, http.StatusOK, resp)
}

type permissionCheckRequest struct {
	Checks []permissionCheck `json:"checks"`
}

type permissionCheck struct {
	Module  string `json:"module"`
	Action  string `json:"action"`
	StoreID string `json:"storeId,omitempty"`
}

// Permissions handles POST /auth/permissions. The frontend batches the checks
// it needs to gate a screen and gets back one verdict per check key.
func (h *Handler) Permissions(w http.ResponseWriter, r *http.Request) {
	principal, ok := platformauth.PrincipalFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
		return
	}

	var req permissionCheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if len(req.Checks) == 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "at least one check is required"})
		return
	}

	checks := make([]authz.Check, 0, len(req.Checks))
	for _, c := range req.Checks {
		if strings.TrimSpace(c.Module) == "" || strings.TrimSpace(c.Action) == "" {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "module and action are required on every check"})
			return
		}
		check := authz.Check{Module: c.Module, Action: c.Action}
		if c.StoreID != "" {
			storeID, err := uuid.Parse(c.StoreID)
			if err != nil {
				writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid store id"})
				return
			}
			check.StoreID = storeID
		}
		checks = append(checks, check)
	}

	tenantID := uuid.Nil
	if principal.TenantID != nil {
		tenantID = *principal.TenantID
	}
	results, err := h.resolver.CheckMany(r.Context(), principal.UserID, tenantID, checks)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

// writeError maps the error taxonomy onto HTTP statuses. Lockout and status
// failures keep their user-facing message; anything unexpected is logged in
// full and surfaced as a generic failure.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	logger := platformlogging.FromRequest(r, h.logger)

	code, _ := apperrors.DeniedCode(err)
	switch {
	case errors.Is(err, apperrors.ErrAuthentication):
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: err.Error()})
	case errors.Is(err, apperrors.ErrForbidden):
		writeJSON(w, http.StatusForbidden, errorResponse{Error: err.Error(), Code: code})
	case errors.Is(err, apperrors.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not found"})
	default:
		logger.Error("auth handler failure", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
