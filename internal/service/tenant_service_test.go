package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/yourorg/licensegate/internal/domain"
	"github.com/yourorg/licensegate/internal/security"
)

// countingTenantRepo wraps the in-memory repo to count storage hits.
type countingTenantRepo struct {
	*memTenantRepo
	mu       sync.Mutex
	getCalls int
}

func (c *countingTenantRepo) GetByName(ctx context.Context, name string) (*domain.Tenant, error) {
	c.mu.Lock()
	c.getCalls++
	c.mu.Unlock()
	return c.memTenantRepo.GetByName(ctx, name)
}

func TestRegisterTenantRequiresSuperAdmin(t *testing.T) {
	svc := NewTenantService(newMemTenantRepo(), security.NewPolicy(nil), nil)
	ctx := context.Background()

	admin := &security.Principal{UserID: "u-1", TenantID: "t-1", Role: domain.RoleAdmin}
	if _, err := svc.Register(ctx, admin, "acme", "acme.io"); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected unauthorized for admin, got %v", err)
	}

	super := &security.Principal{UserID: "u-2", TenantID: "t-1", Role: domain.RoleSuperAdmin}
	tenant, err := svc.Register(ctx, super, "acme", "acme.io")
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if tenant.ID == "" || tenant.Name != "acme" {
		t.Fatalf("unexpected tenant %+v", tenant)
	}
}

func TestRegisterDuplicateTenant(t *testing.T) {
	svc := NewTenantService(newMemTenantRepo(), security.NewPolicy(nil), nil)
	ctx := context.Background()
	super := &security.Principal{UserID: "u-1", TenantID: "t-1", Role: domain.RoleSuperAdmin}

	if _, err := svc.Register(ctx, super, "acme", "acme.io"); err != nil {
		t.Fatalf("first register failed: %v", err)
	}
	if _, err := svc.Register(ctx, super, "acme", "other.io"); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict for duplicate name, got %v", err)
	}
	if _, err := svc.Register(ctx, super, "other", "acme.io"); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict for duplicate domain, got %v", err)
	}
}

func TestTenantLookupIsCached(t *testing.T) {
	repo := &countingTenantRepo{memTenantRepo: newMemTenantRepo(
		&domain.Tenant{ID: "t-1", Name: "default", Domain: "default.local"},
	)}
	svc := NewTenantService(repo, security.NewPolicy(nil), nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := svc.GetByName(ctx, "default"); err != nil {
			t.Fatalf("get failed: %v", err)
		}
	}
	if repo.getCalls != 1 {
		t.Fatalf("expected one storage hit, got %d", repo.getCalls)
	}

	// The name lookup primes the id cache too.
	if _, err := svc.GetByID(ctx, "t-1"); err != nil {
		t.Fatalf("get by id failed: %v", err)
	}
}
