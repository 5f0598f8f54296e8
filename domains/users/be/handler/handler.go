// Package handler exposes staff administration over HTTP. All routes operate
// on the caller's own tenant: a chain owner or company manager manages their
// staff, a master-database owner manages legacy accounts.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/storeline-hq/storeline-core/domains/users/be/service"
	"github.com/storeline-hq/storeline-core/platform/go/apperrors"
	platformauth "github.com/storeline-hq/storeline-core/platform/go/auth"
	"github.com/storeline-hq/storeline-core/platform/go/authz"
	platformlogging "github.com/storeline-hq/storeline-core/platform/go/logging"
)

// Handler wires the users service to HTTP.
type Handler struct {
	svc    *service.Service
	logger *zap.Logger
}

// New constructs a Handler instance.
func New(svc *service.Service, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("users service is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Handler{svc: svc, logger: logger}
}

// Mount registers the admin routes on the given router.
func (h *Handler) Mount(r chi.Router) {
	r.Get("/admin/users", h.List)
	r.Get("/admin/users/{userID}", h.Get)
	r.Put("/admin/users/{userID}/role", h.ChangeRole)
	r.Put("/admin/users/{userID}/permissions", h.SetPermissions)
	r.Put("/admin/users/{userID}/status", h.SetStatus)
	r.Post("/admin/users/{userID}/unlock", h.Unlock)
	r.Get("/admin/users/{userID}/stores", h.ListStores)
	r.Put("/admin/users/{userID}/stores/{storeID}", h.AssignStore)
	r.Delete("/admin/users/{userID}/stores/{storeID}", h.RemoveStore)
}

type userResponse struct {
	UserID         string              `json:"userId"`
	Email          string              `json:"email"`
	Role           string              `json:"role"`
	Status         string              `json:"status"`
	Permissions    authz.PermissionSet `json:"permissions,omitempty"`
	FailedAttempts int                 `json:"failedAttempts"`
	LockedUntil    *time.Time          `json:"lockedUntil,omitempty"`
	LastLoginAt    *time.Time          `json:"lastLoginAt,omitempty"`
}

type listResponse struct {
	Items      []userResponse `json:"items"`
	Page       int            `json:"page"`
	PageSize   int            `json:"pageSize"`
	TotalItems int            `json:"totalItems"`
	TotalPages int            `json:"totalPages"`
}

type assignmentResponse struct {
	StoreID      string              `json:"storeId"`
	RoleOverride *string             `json:"roleOverride,omitempty"`
	Permissions  authz.PermissionSet `json:"permissions,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// List handles GET /admin/users.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.requireManager(w, r)
	if !ok {
		return
	}

	opts := service.ListOptions{Page: 1, PageSize: 20}
	if v := r.URL.Query().Get("page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			opts.Page = n
		}
	}
	if v := r.URL.Query().Get("pageSize"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			opts.PageSize = n
		}
	}

	result, err := h.svc.List(r.Context(), tenantOf(principal), opts)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	items := make([]userResponse, 0, len(result.Users))
	for _, user := range result.Users {
		items = append(items, toResponse(user))
	}
	writeJSON(w, http.StatusOK, listResponse{
		Items:      items,
		Page:       result.Page,
		PageSize:   result.PageSize,
		TotalItems: result.TotalItems,
		TotalPages: result.TotalPages,
	})
}

// Get handles GET /admin/users/{userID}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.requireManager(w, r)
	if !ok {
		return
	}
	userID, ok := h.pathID(w, r, "userID")
	if !ok {
		return
	}

	user, err := h.svc.Get(r.Context(), tenantOf(principal), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(user))
}

// ChangeRole handles PUT /admin/users/{userID}/role.
func (h *Handler) ChangeRole(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.requireOwner(w, r)
	if !ok {
		return
	}
	userID, ok := h.pathID(w, r, "userID")
	if !ok {
		return
	}

	var req struct {
		Role string `json:"role"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	if err := h.svc.ChangeRole(r.Context(), tenantOf(principal), userID, req.Role); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetPermissions handles PUT /admin/users/{userID}/permissions. A null
// permissions value clears the custom layer.
func (h *Handler) SetPermissions(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.requireOwner(w, r)
	if !ok {
		return
	}
	userID, ok := h.pathID(w, r, "userID")
	if !ok {
		return
	}

	var req struct {
		Permissions authz.PermissionSet `json:"permissions"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	if err := h.svc.SetPermissions(r.Context(), tenantOf(principal), userID, req.Permissions); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetStatus handles PUT /admin/users/{userID}/status.
func (h *Handler) SetStatus(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.requireManager(w, r)
	if !ok {
		return
	}
	userID, ok := h.pathID(w, r, "userID")
	if !ok {
		return
	}

	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	if err := h.svc.SetStatus(r.Context(), tenantOf(principal), userID, req.Status); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Unlock handles POST /admin/users/{userID}/unlock.
func (h *Handler) Unlock(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.requireManager(w, r)
	if !ok {
		return
	}
	userID, ok := h.pathID(w, r, "userID")
	if !ok {
		return
	}

	if err := h.svc.Unlock(r.Context(), tenantOf(principal), userID); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListStores handles GET /admin/users/{userID}/stores.
func (h *Handler) ListStores(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.requireManager(w, r)
	if !ok {
		return
	}
	userID, ok := h.pathID(w, r, "userID")
	if !ok {
		return
	}

	assignments, err := h.svc.ListStoreAssignments(r.Context(), tenantOf(principal), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	items := make([]assignmentResponse, 0, len(assignments))
	for _, a := range assignments {
		item := assignmentResponse{StoreID: a.StoreID.String(), RoleOverride: a.RoleOverride}
		if len(a.RawPermissions) > 0 {
			if set, err := authz.DecodePermissionSet(a.RawPermissions); err == nil {
				item.Permissions = set
			}
		}
		items = append(items, item)
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// AssignStore handles PUT /admin/users/{userID}/stores/{storeID}.
func (h *Handler) AssignStore(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.requireManager(w, r)
	if !ok {
		return
	}
	userID, ok := h.pathID(w, r, "userID")
	if !ok {
		return
	}
	storeID, ok := h.pathID(w, r, "storeID")
	if !ok {
		return
	}

	var req struct {
		RoleOverride *string             `json:"roleOverride"`
		Permissions  authz.PermissionSet `json:"permissions"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	err := h.svc.AssignStore(r.Context(), tenantOf(principal), service.AssignStoreInput{
		UserID:       userID,
		StoreID:      storeID,
		RoleOverride: req.RoleOverride,
		Permissions:  req.Permissions,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RemoveStore handles DELETE /admin/users/{userID}/stores/{storeID}.
func (h *Handler) RemoveStore(w http.ResponseWriter, r *http.Request) {
	principal, ok := h.requireManager(w, r)
	if !ok {
		return
	}
	userID, ok := h.pathID(w, r, "userID")
	if !ok {
		return
	}
	storeID, ok := h.pathID(w, r, "storeID")
	if !ok {
		return
	}

	if err := h.svc.RemoveStoreAssignment(r.Context(), tenantOf(principal), userID, storeID); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// requireManager admits owners and company managers.
func (h *Handler) requireManager(w http.ResponseWriter, r *http.Request) (*platformauth.Principal, bool) {
	principal, ok := platformauth.PrincipalFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
		return nil, false
	}
	if principal.Role != authz.RoleOwner && principal.Role != authz.RoleCompanyManager {
		writeJSON(w, http.StatusForbidden, errorResponse{Error: "manager role required"})
		return nil, false
	}
	return principal, true
}

// requireOwner admits only chain owners; role and permission edits are too
// sensitive for company managers.
func (h *Handler) requireOwner(w http.ResponseWriter, r *http.Request) (*platformauth.Principal, bool) {
	principal, ok := platformauth.PrincipalFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
		return nil, false
	}
	if principal.Role != authz.RoleOwner {
		writeJSON(w, http.StatusForbidden, errorResponse{Error: "owner role required"})
		return nil, false
	}
	return principal, true
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid " + name})
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	logger := platformlogging.FromRequest(r, h.logger)

	switch {
	case errors.Is(err, apperrors.ErrConfiguration):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, apperrors.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not found"})
	case errors.Is(err, apperrors.ErrForbidden):
		writeJSON(w, http.StatusForbidden, errorResponse{Error: err.Error()})
	default:
		logger.Error("user operation failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func tenantOf(principal *platformauth.Principal) uuid.UUID {
	if principal.TenantID == nil {
		return uuid.Nil
	}
	return *principal.TenantID
}

func toResponse(user service.User) userResponse {
	return userResponse{
		UserID:         user.ID.String(),
		Email:          user.Email,
		Role:           user.Role,
		Status:         user.Status,
		Permissions:    user.Permissions,
		FailedAttempts: user.FailedAttempts,
		LockedUntil:    user.LockedUntil,
		LastLoginAt:    user.LastLoginAt,
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
