// Package handler exposes tenant registry administration over HTTP. Routes
// are mounted behind the authentication gateway; every operation additionally
// requires a platform operator (an owner account on the master database).
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/storeline-hq/storeline-core/domains/tenants/be/service"
	"github.com/storeline-hq/storeline-core/platform/go/apperrors"
	platformauth "github.com/storeline-hq/storeline-core/platform/go/auth"
	"github.com/storeline-hq/storeline-core/platform/go/authz"
	platformlogging "github.com/storeline-hq/storeline-core/platform/go/logging"
	"github.com/storeline-hq/storeline-core/platform/go/tenant"
)

// Handler wires the tenants service to HTTP.
type Handler struct {
	svc    *service.Service
	logger *zap.Logger
}

// New constructs a Handler instance.
func New(svc *service.Service, logger *zap.Logger) *Handler {
	if svc == nil {
		panic("tenants service is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	return &Handler{svc: svc, logger: logger}
}

// Mount registers the admin routes on the given router.
func (h *Handler) Mount(r chi.Router) {
	r.Get("/admin/tenants", h.List)
	r.Post("/admin/tenants", h.Create)
	r.Get("/admin/tenants/{tenantID}", h.Get)
	r.Post("/admin/tenants/{tenantID}/activate", h.Activate)
	r.Post("/admin/tenants/{tenantID}/suspend", h.Suspend)
	r.Delete("/admin/tenants/{tenantID}", h.Delete)
}

type tenantResponse struct {
	TenantID         string `json:"tenantId"`
	Slug             string `json:"slug"`
	Status           string `json:"status"`
	DatabaseName     string `json:"databaseName"`
	DatabaseServer   string `json:"databaseServer"`
	SubscriptionPlan string `json:"subscriptionPlan,omitempty"`
}

type listResponse struct {
	Items      []tenantResponse `json:"items"`
	Page       int              `json:"page"`
	PageSize   int              `json:"pageSize"`
	TotalItems int              `json:"totalItems"`
	TotalPages int              `json:"totalPages"`
}

type createRequest struct {
	Slug             string `json:"slug"`
	DatabaseName     string `json:"databaseName,omitempty"`
	DatabaseServer   string `json:"databaseServer"`
	SubscriptionPlan string `json:"subscriptionPlan,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// List handles GET /admin/tenants.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	if !h.requireOperator(w, r) {
		return
	}

	opts := service.ListOptions{Page: 1, PageSize: 20}
	if v := r.URL.Query().Get("page"); v != "" {
		if page, err := parsePositiveInt(v); err == nil {
			opts.Page = page
		}
	}
	if v := r.URL.Query().Get("pageSize"); v != "" {
		if size, err := parsePositiveInt(v); err == nil {
			opts.PageSize = size
		}
	}
	if v := strings.TrimSpace(r.URL.Query().Get("status")); v != "" {
		status := tenant.StatusFromString(v)
		opts.Status = &status
	}

	result, err := h.svc.List(r.Context(), opts)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	items := make([]tenantResponse, 0, len(result.Tenants))
	for _, rec := range result.Tenants {
		items = append(items, toResponse(rec))
	}
	writeJSON(w, http.StatusOK, listResponse{
		Items:      items,
		Page:       result.Page,
		PageSize:   result.PageSize,
		TotalItems: result.TotalItems,
		TotalPages: result.TotalPages,
	})
}

// Create handles POST /admin/tenants.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	if !h.requireOperator(w, r) {
		return
	}

	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if strings.TrimSpace(req.Slug) == "" || strings.TrimSpace(req.DatabaseServer) == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "slug and databaseServer are required"})
		return
	}

	rec, err := h.svc.Create(r.Context(), service.CreateInput{
		Slug:             req.Slug,
		DatabaseName:     req.DatabaseName,
		DatabaseServer:   req.DatabaseServer,
		SubscriptionPlan: req.SubscriptionPlan,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	w.Header().Set("Location", "/api/v1/admin/tenants/"+rec.ID.String())
	writeJSON(w, http.StatusCreated, toResponse(rec))
}

// Get handles GET /admin/tenants/{tenantID}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if !h.requireOperator(w, r) {
		return
	}

	id, ok := h.tenantID(w, r)
	if !ok {
		return
	}
	rec, err := h.svc.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(rec))
}

// Activate handles POST /admin/tenants/{tenantID}/activate.
func (h *Handler) Activate(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.svc.Activate)
}

// Suspend handles POST /admin/tenants/{tenantID}/suspend.
func (h *Handler) Suspend(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.svc.Suspend)
}

// Delete handles DELETE /admin/tenants/{tenantID}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	if !h.requireOperator(w, r) {
		return
	}

	id, ok := h.tenantID(w, r)
	if !ok {
		return
	}
	if err := h.svc.Delete(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, id uuid.UUID) (tenant.Record, error)) {
	if !h.requireOperator(w, r) {
		return
	}

	id, ok := h.tenantID(w, r)
	if !ok {
		return
	}
	rec, err := op(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(rec))
}

// requireOperator admits only owner accounts living on the master database;
// tenant-scoped owners administer their own staff, not the registry.
func (h *Handler) requireOperator(w http.ResponseWriter, r *http.Request) bool {
	principal, ok := platformauth.PrincipalFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
		return false
	}
	if principal.Role != authz.RoleOwner || !principal.Legacy() {
		writeJSON(w, http.StatusForbidden, errorResponse{Error: "platform operator role required"})
		return false
	}
	return true
}

func (h *Handler) tenantID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "tenantID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid tenant id"})
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	logger := platformlogging.FromRequest(r, h.logger)

	switch {
	case errors.Is(err, service.ErrSlugTaken):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.Is(err, service.ErrInvalidStatus):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.Is(err, apperrors.ErrConfiguration):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, apperrors.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not found"})
	default:
		logger.Error("tenant operation failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func toResponse(rec tenant.Record) tenantResponse {
	return tenantResponse{
		TenantID:         rec.ID.String(),
		Slug:             rec.Slug,
		Status:           string(rec.Status),
		DatabaseName:     rec.DatabaseName,
		DatabaseServer:   rec.DatabaseServer,
		SubscriptionPlan: rec.SubscriptionPlan,
	}
}

func parsePositiveInt(v string) (int, error) {
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, err
	}
	if n < 1 {
		return 0, errors.New("must be positive")
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
