package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/yourorg/licensegate/internal/domain"
	"github.com/yourorg/licensegate/internal/security"
	"github.com/yourorg/licensegate/internal/security/middleware"
	"github.com/yourorg/licensegate/internal/service"
)

// AuthHandler handles authentication endpoints
type AuthHandler struct {
	authService *service.AuthService
	logger      *slog.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(authService *service.AuthService, logger *slog.Logger) *AuthHandler {
	if logger == nil {
		logger = slog.Default()
	}

	return &AuthHandler{
		authService: authService,
		logger:      logger,
	}
}

// principalFromRequest builds the policy-facing identity from the validated
// session claims the middleware stored in context.
func principalFromRequest(r *http.Request) *security.Principal {
	claims := middleware.GetClaimsFromContext(r.Context())
	if claims == nil {
		return nil
	}
	return &security.Principal{
		UserID:   claims.UserID,
		Username: claims.Username,
		TenantID: claims.TenantID,
		Role:     claims.Role,
	}
}

// CredentialsRequest represents a login or signup request
type CredentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Signup handles POST /signup
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("failed to decode signup request", slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request"})
		return
	}

	result, err := h.authService.Signup(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	h.logger.Info("user registered successfully", slog.String("user_id", result.UserID))
	writeJSON(w, http.StatusCreated, result)
}

// Login handles POST /login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req CredentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("failed to decode login request", slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request"})
		return
	}

	result, err := h.authService.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// Logout handles POST /logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaimsFromContext(r.Context())
	if err := h.authService.Logout(r.Context(), claims); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "session terminated"})
}

// AssignRequest represents a privilege/tenant assignment request
type AssignRequest struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	TenantID string `json:"tenant_id"`
}

// AssignResponse represents the updated user
type AssignResponse struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
	TenantID string `json:"tenant_id"`
}

// Assign handles POST /api/v1/users/assign (super_admin only)
func (h *AuthHandler) Assign(w http.ResponseWriter, r *http.Request) {
	var req AssignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request"})
		return
	}
	if req.Username == "" || req.Role == "" || req.TenantID == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "username, role, and tenant_id are required"})
		return
	}

	principal := principalFromRequest(r)
	user, err := h.authService.Assign(r.Context(), principal, req.Username, domain.Role(req.Role), req.TenantID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, AssignResponse{
		UserID:   user.ID,
		Username: user.Username,
		Role:     string(user.Role),
		TenantID: user.TenantID,
	})
}
