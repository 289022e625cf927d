package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/yourorg/licensegate/internal/domain"
	"github.com/yourorg/licensegate/internal/featureflags"
	"github.com/yourorg/licensegate/internal/service"
)

// LicenseHandler handles license lifecycle endpoints
type LicenseHandler struct {
	licenseService *service.LicenseService
	logger         *slog.Logger
}

// NewLicenseHandler creates a new license handler
func NewLicenseHandler(licenseService *service.LicenseService, logger *slog.Logger) *LicenseHandler {
	if logger == nil {
		logger = slog.Default()
	}

	return &LicenseHandler{
		licenseService: licenseService,
		logger:         logger,
	}
}

// LicenseEntry is the wire representation of a license
type LicenseEntry struct {
	LicenseKey string `json:"license_key"`
	Status     string `json:"status"`
}

func toEntries(licenses []*domain.License) []LicenseEntry {
	out := make([]LicenseEntry, 0, len(licenses))
	for _, lic := range licenses {
		out = append(out, LicenseEntry{LicenseKey: lic.Key, Status: string(lic.Status)})
	}
	return out
}

// ActivateRequest represents an activation request
type ActivateRequest struct {
	LicenseKey string `json:"license_key"`
}

// Activate handles POST /activate
func (h *LicenseHandler) Activate(w http.ResponseWriter, r *http.Request) {
	var req ActivateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request"})
		return
	}

	principal := principalFromRequest(r)
	if _, err := h.licenseService.Activate(r.Context(), principal, req.LicenseKey); err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"message": "license activated successfully"})
}

// List handles GET /licenses. With the legacy public-listing flag on this is
// the unauthenticated unscoped listing the first deployment shipped with;
// otherwise it behaves exactly like the v1 tenant-scoped listing.
func (h *LicenseHandler) List(w http.ResponseWriter, r *http.Request) {
	if featureflags.Enabled(featureflags.PublicListing) {
		licenses, err := h.licenseService.ListPublic(r.Context())
		if err != nil {
			writeError(w, h.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, toEntries(licenses))
		return
	}

	h.ListScoped(w, r)
}

// ListScoped handles GET /api/v1/licenses: authenticated, tenant-scoped
func (h *LicenseHandler) ListScoped(w http.ResponseWriter, r *http.Request) {
	principal := principalFromRequest(r)
	licenses, err := h.licenseService.List(r.Context(), principal)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toEntries(licenses))
}

// RevokeRequest represents a revocation request
type RevokeRequest struct {
	LicenseKey string `json:"license_key"`
}

// Revoke handles POST /revoke (role >= admin)
func (h *LicenseHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	var req RevokeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request"})
		return
	}

	principal := principalFromRequest(r)
	if err := h.licenseService.Revoke(r.Context(), principal, req.LicenseKey); err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "license revoked successfully"})
}

// ClearRequest represents a bulk clear request. The operator secret is an
// operational credential, not any user's login password.
type ClearRequest struct {
	OperatorSecret string `json:"operator_secret"`
	All            bool   `json:"all,omitempty"`
}

// Clear handles POST /clear_licenses (role >= admin plus operator secret)
func (h *LicenseHandler) Clear(w http.ResponseWriter, r *http.Request) {
	var req ClearRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request"})
		return
	}

	principal := principalFromRequest(r)
	deleted, err := h.licenseService.Clear(r.Context(), principal, req.OperatorSecret, req.All)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("cleared %d licenses", deleted),
	})
}
