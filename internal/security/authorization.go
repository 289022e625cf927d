package security

import (
	"fmt"
	"log/slog"

	"github.com/yourorg/licensegate/internal/domain"
	"github.com/yourorg/licensegate/internal/observability/metrics"
)

// Action identifies an operation gated by the authorization policy
type Action string

const (
	ActionActivateLicense  Action = "activate_license"
	ActionListLicenses     Action = "list_licenses"
	ActionRevokeLicense    Action = "revoke_license"
	ActionClearLicenses    Action = "clear_licenses"
	ActionClearAllLicenses Action = "clear_all_licenses"
	ActionRegisterTenant   Action = "register_tenant"
	ActionAssignUser       Action = "assign_user"
)

// minRole maps each action to the lowest role allowed to perform it.
var minRole = map[Action]domain.Role{
	ActionActivateLicense:  domain.RoleUser,
	ActionListLicenses:     domain.RoleUser,
	ActionRevokeLicense:    domain.RoleAdmin,
	ActionClearLicenses:    domain.RoleAdmin,
	ActionClearAllLicenses: domain.RoleSuperAdmin,
	ActionRegisterTenant:   domain.RoleSuperAdmin,
	ActionAssignUser:       domain.RoleSuperAdmin,
}

// tenantScoped actions additionally require the principal's tenant to match
// the resource's tenant. Super-admin-only actions operate above tenant scope.
var tenantScoped = map[Action]bool{
	ActionActivateLicense: true,
	ActionListLicenses:    true,
	ActionRevokeLicense:   true,
	ActionClearLicenses:   true,
}

// Principal is the authenticated identity derived from a validated session.
// It deliberately carries no stored-entity state: the auth manager produces
// it from token claims, and it is the only identity handlers and services see.
type Principal struct {
	UserID   string
	Username string
	TenantID string
	Role     domain.Role
}

// Policy decides whether a principal may perform an action on a resource.
// It is pure decision code: no storage access, no mutation.
type Policy struct {
	logger *slog.Logger
}

// NewPolicy creates a new authorization policy
func NewPolicy(logger *slog.Logger) *Policy {
	if logger == nil {
		logger = slog.Default()
	}
	return &Policy{logger: logger}
}

// Authorize evaluates (principal, action, resource tenant) and returns nil
// on allow. Denials wrap domain.ErrUnauthenticated for anonymous callers and
// domain.ErrUnauthorized otherwise, with the reason logged but never leaked
// beyond the error kind.
func (p *Policy) Authorize(principal *Principal, action Action, resourceTenantID string) error {
	if principal == nil || principal.UserID == "" {
		p.deny(principal, action, "no authenticated principal")
		return fmt.Errorf("%s: %w", action, domain.ErrUnauthenticated)
	}

	required, known := minRole[action]
	if !known {
		p.deny(principal, action, "unknown action")
		return fmt.Errorf("%s: %w", action, domain.ErrUnauthorized)
	}

	if tenantScoped[action] {
		if resourceTenantID == "" || principal.TenantID != resourceTenantID {
			p.deny(principal, action, "tenant mismatch")
			return fmt.Errorf("%s: tenant mismatch: %w", action, domain.ErrUnauthorized)
		}
	}

	if principal.Role.Level() < required.Level() {
		p.deny(principal, action, "insufficient role")
		return fmt.Errorf("%s: insufficient role: %w", action, domain.ErrUnauthorized)
	}

	return nil
}

func (p *Policy) deny(principal *Principal, action Action, reason string) {
	userID := ""
	role := ""
	if principal != nil {
		userID = principal.UserID
		role = string(principal.Role)
	}
	p.logger.Warn("authorization denied",
		slog.String("action", string(action)),
		slog.String("user_id", userID),
		slog.String("role", role),
		slog.String("reason", reason),
	)
	metrics.ObserveAuthzDenial(string(action), reason)
}
