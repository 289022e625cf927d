package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/yourorg/licensegate/internal/service"
)

// TenantHandler handles tenant administration endpoints
type TenantHandler struct {
	tenantService *service.TenantService
	logger        *slog.Logger
}

// NewTenantHandler creates a new tenant handler
func NewTenantHandler(tenantService *service.TenantService, logger *slog.Logger) *TenantHandler {
	if logger == nil {
		logger = slog.Default()
	}

	return &TenantHandler{
		tenantService: tenantService,
		logger:        logger,
	}
}

// RegisterTenantRequest represents a tenant registration request
type RegisterTenantRequest struct {
	Name   string `json:"name"`
	Domain string `json:"domain"`
}

// RegisterTenantResponse represents a created tenant
type RegisterTenantResponse struct {
	TenantID string `json:"tenant_id"`
	Name     string `json:"name"`
	Domain   string `json:"domain"`
}

// Register handles POST /register_tenant (super_admin only)
func (h *TenantHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterTenantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request"})
		return
	}

	principal := principalFromRequest(r)
	tenant, err := h.tenantService.Register(r.Context(), principal, req.Name, req.Domain)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, RegisterTenantResponse{
		TenantID: tenant.ID,
		Name:     tenant.Name,
		Domain:   tenant.Domain,
	})
}
