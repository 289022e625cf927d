package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/yourorg/licensegate/internal/domain"
	"github.com/yourorg/licensegate/internal/security"
	"github.com/yourorg/licensegate/pkg/cache"
)

// tenantCacheTTL bounds staleness of cached tenant lookups. Tenants are
// immutable after creation in the current scope, so a short TTL is plenty.
const tenantCacheTTL = 5 * time.Minute

// TenantService handles tenant registration and lookup
type TenantService struct {
	tenantRepo domain.TenantRepository
	policy     *security.Policy
	byName     *cache.Cache[*domain.Tenant]
	byID       *cache.Cache[*domain.Tenant]
	logger     *slog.Logger
}

// NewTenantService creates a new tenant service
func NewTenantService(tenantRepo domain.TenantRepository, policy *security.Policy, logger *slog.Logger) *TenantService {
	if logger == nil {
		logger = slog.Default()
	}
	return &TenantService{
		tenantRepo: tenantRepo,
		policy:     policy,
		byName:     cache.New[*domain.Tenant](),
		byID:       cache.New[*domain.Tenant](),
		logger:     logger,
	}
}

// Register creates a new tenant. Only a super_admin passes the policy gate;
// tenants are never created implicitly.
func (s *TenantService) Register(ctx context.Context, principal *security.Principal, name, tenantDomain string) (*domain.Tenant, error) {
	if err := s.policy.Authorize(principal, security.ActionRegisterTenant, ""); err != nil {
		return nil, err
	}
	if name == "" || tenantDomain == "" {
		return nil, fmt.Errorf("tenant name and domain are required: %w", domain.ErrInvalidInput)
	}

	tenant := &domain.Tenant{
		ID:     uuid.NewString(),
		Name:   name,
		Domain: tenantDomain,
	}

	if err := s.tenantRepo.Create(ctx, tenant); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return nil, fmt.Errorf("tenant name or domain already exists: %w", domain.ErrConflict)
		}
		return nil, err
	}

	s.logger.Info("tenant registered",
		slog.String("tenant_id", tenant.ID),
		slog.String("name", tenant.Name),
		slog.String("registered_by", principal.UserID),
	)
	return tenant, nil
}

// GetByName retrieves a tenant by name, cached
func (s *TenantService) GetByName(ctx context.Context, name string) (*domain.Tenant, error) {
	if t, ok := s.byName.Get(name); ok {
		return t, nil
	}
	t, err := s.tenantRepo.GetByName(ctx, name)
	if err != nil {
		return nil, err
	}
	s.byName.Set(name, t, tenantCacheTTL)
	s.byID.Set(t.ID, t, tenantCacheTTL)
	return t, nil
}

// GetByID retrieves a tenant by id, cached
func (s *TenantService) GetByID(ctx context.Context, id string) (*domain.Tenant, error) {
	if t, ok := s.byID.Get(id); ok {
		return t, nil
	}
	t, err := s.tenantRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.byID.Set(id, t, tenantCacheTTL)
	s.byName.Set(t.Name, t, tenantCacheTTL)
	return t, nil
}
