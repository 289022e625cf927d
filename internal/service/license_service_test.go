package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/yourorg/licensegate/internal/domain"
	"github.com/yourorg/licensegate/internal/security"
)

type memLicenseRepo struct {
	mu       sync.Mutex
	licenses []*domain.License
}

func newMemLicenseRepo() *memLicenseRepo {
	return &memLicenseRepo{}
}

func (m *memLicenseRepo) Create(_ context.Context, l *domain.License) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.licenses {
		if existing.Key == l.Key {
			return domain.ErrConflict
		}
	}
	l.CreatedAt = time.Now()
	l.UpdatedAt = l.CreatedAt
	m.licenses = append(m.licenses, l)
	return nil
}

func (m *memLicenseRepo) GetByKey(_ context.Context, key string) (*domain.License, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range m.licenses {
		if l.Key == key {
			return l, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memLicenseRepo) ListByTenant(_ context.Context, tenantID string) ([]*domain.License, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*domain.License{}
	for _, l := range m.licenses {
		if l.TenantID == tenantID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (m *memLicenseRepo) ListAll(_ context.Context) ([]*domain.License, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*domain.License{}, m.licenses...), nil
}

func (m *memLicenseRepo) Revoke(_ context.Context, tenantID, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range m.licenses {
		if l.Key == key && l.TenantID == tenantID {
			l.Status = domain.StatusRevoked
			l.UpdatedAt = time.Now()
			return 1, nil
		}
	}
	return 0, nil
}

func (m *memLicenseRepo) DeleteByTenant(_ context.Context, tenantID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var kept []*domain.License
	var deleted int64
	for _, l := range m.licenses {
		if l.TenantID == tenantID {
			deleted++
			continue
		}
		kept = append(kept, l)
	}
	m.licenses = kept
	return deleted, nil
}

func (m *memLicenseRepo) DeleteAll(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	deleted := int64(len(m.licenses))
	m.licenses = nil
	return deleted, nil
}

func (m *memLicenseRepo) CountByStatus(_ context.Context) (map[domain.LicenseStatus]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[domain.LicenseStatus]int64{}
	for _, l := range m.licenses {
		out[l.Status]++
	}
	return out, nil
}

const testOpsSecret = "clear-me-if-you-can"

func newTestLicenseService(t *testing.T) (*LicenseService, *memLicenseRepo) {
	t.Helper()
	repo := newMemLicenseRepo()
	hash, err := bcrypt.GenerateFromPassword([]byte(testOpsSecret), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash ops secret: %v", err)
	}
	svc := NewLicenseService(repo, security.NewPolicy(nil), string(hash), nil)
	return svc, repo
}

func userPrincipal(tenantID string) *security.Principal {
	return &security.Principal{UserID: "u-1", Username: "alice", TenantID: tenantID, Role: domain.RoleUser}
}

func adminPrincipal(tenantID string) *security.Principal {
	return &security.Principal{UserID: "u-2", Username: "root", TenantID: tenantID, Role: domain.RoleAdmin}
}

func TestActivateAndList(t *testing.T) {
	svc, _ := newTestLicenseService(t)
	ctx := context.Background()

	lic, err := svc.Activate(ctx, userPrincipal("t-1"), "ABC123")
	if err != nil {
		t.Fatalf("activate failed: %v", err)
	}
	if lic.Status != domain.StatusActive || lic.TenantID != "t-1" {
		t.Fatalf("expected active license in t-1, got %+v", lic)
	}

	got, err := svc.List(ctx, userPrincipal("t-1"))
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(got) != 1 || got[0].Key != "ABC123" {
		t.Fatalf("expected one license ABC123, got %+v", got)
	}
}

func TestActivateValidatesKey(t *testing.T) {
	svc, _ := newTestLicenseService(t)
	ctx := context.Background()

	for _, key := range []string{"", "has space", "semi;colon", "dash-ed"} {
		if _, err := svc.Activate(ctx, userPrincipal("t-1"), key); !errors.Is(err, domain.ErrInvalidInput) {
			t.Fatalf("expected invalid input for %q, got %v", key, err)
		}
	}
}

func TestActivateDuplicateConflicts(t *testing.T) {
	svc, _ := newTestLicenseService(t)
	ctx := context.Background()

	if _, err := svc.Activate(ctx, userPrincipal("t-1"), "ABC123"); err != nil {
		t.Fatalf("activate failed: %v", err)
	}
	if _, err := svc.Activate(ctx, userPrincipal("t-1"), "ABC123"); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	// Key uniqueness is system wide: another tenant cannot take the key either.
	if _, err := svc.Activate(ctx, userPrincipal("t-2"), "ABC123"); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected cross-tenant conflict, got %v", err)
	}
}

// Concurrent activations of one key must resolve to exactly one winner and
// one row; every loser sees a conflict, never a duplicate.
func TestConcurrentActivationSingleWinner(t *testing.T) {
	svc, repo := newTestLicenseService(t)
	ctx := context.Background()

	const workers = 32
	var successes, conflicts int64
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := svc.Activate(ctx, userPrincipal("t-1"), "RACEKEY1")
			switch {
			case err == nil:
				atomic.AddInt64(&successes, 1)
			case errors.Is(err, domain.ErrConflict):
				atomic.AddInt64(&conflicts, 1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	if successes != 1 || conflicts != workers-1 {
		t.Fatalf("expected 1 success and %d conflicts, got %d/%d", workers-1, successes, conflicts)
	}
	all, err := repo.ListAll(ctx)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected a single row, got %d", len(all))
	}
}

func TestListIsTenantScoped(t *testing.T) {
	svc, _ := newTestLicenseService(t)
	ctx := context.Background()

	svc.Activate(ctx, userPrincipal("t-1"), "AAA111")
	svc.Activate(ctx, userPrincipal("t-2"), "BBB222")

	got, err := svc.List(ctx, userPrincipal("t-1"))
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(got) != 1 || got[0].Key != "AAA111" {
		t.Fatalf("expected only t-1's license, got %+v", got)
	}
}

func TestRevokeRequiresAdmin(t *testing.T) {
	svc, _ := newTestLicenseService(t)
	ctx := context.Background()

	svc.Activate(ctx, userPrincipal("t-1"), "ABC123")
	if err := svc.Revoke(ctx, userPrincipal("t-1"), "ABC123"); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected unauthorized for plain user, got %v", err)
	}
	if err := svc.Revoke(ctx, adminPrincipal("t-1"), "ABC123"); err != nil {
		t.Fatalf("admin revoke failed: %v", err)
	}
}

func TestRevokeIsIdempotent(t *testing.T) {
	svc, repo := newTestLicenseService(t)
	ctx := context.Background()

	svc.Activate(ctx, userPrincipal("t-1"), "ABC123")
	if err := svc.Revoke(ctx, adminPrincipal("t-1"), "ABC123"); err != nil {
		t.Fatalf("first revoke failed: %v", err)
	}
	// Revoked is terminal; revoking again succeeds without changing state.
	if err := svc.Revoke(ctx, adminPrincipal("t-1"), "ABC123"); err != nil {
		t.Fatalf("second revoke failed: %v", err)
	}

	lic, _ := repo.GetByKey(ctx, "ABC123")
	if lic.Status != domain.StatusRevoked {
		t.Fatalf("expected revoked, got %s", lic.Status)
	}
}

func TestRevokeForeignKeyReportsNotFound(t *testing.T) {
	svc, _ := newTestLicenseService(t)
	ctx := context.Background()

	svc.Activate(ctx, userPrincipal("t-1"), "ABC123")
	// Tenant t-2's admin probing t-1's key must see not-found, never a
	// forbidden that confirms the key exists.
	err := svc.Revoke(ctx, adminPrincipal("t-2"), "ABC123")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRevokeMissingKey(t *testing.T) {
	svc, _ := newTestLicenseService(t)
	err := svc.Revoke(context.Background(), adminPrincipal("t-1"), "NOPE404")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestClearScopedToTenant(t *testing.T) {
	svc, repo := newTestLicenseService(t)
	ctx := context.Background()

	svc.Activate(ctx, userPrincipal("t-1"), "AAA111")
	svc.Activate(ctx, userPrincipal("t-1"), "AAA222")
	svc.Activate(ctx, userPrincipal("t-2"), "BBB111")

	deleted, err := svc.Clear(ctx, adminPrincipal("t-1"), testOpsSecret, false)
	if err != nil {
		t.Fatalf("clear failed: %v", err)
	}
	if deleted != 2 {
		t.Fatalf("expected 2 deleted, got %d", deleted)
	}
	remaining, _ := repo.ListAll(ctx)
	if len(remaining) != 1 || remaining[0].TenantID != "t-2" {
		t.Fatalf("expected t-2's license untouched, got %+v", remaining)
	}
}

func TestClearRejectsWrongSecret(t *testing.T) {
	svc, _ := newTestLicenseService(t)
	ctx := context.Background()

	svc.Activate(ctx, userPrincipal("t-1"), "AAA111")
	if _, err := svc.Clear(ctx, adminPrincipal("t-1"), "not-the-secret", false); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

// A rejected operator secret leaves an access_denied audit record naming the
// caller; successful lifecycle operations leave records with their outcome.
func TestLicenseOutcomesAudited(t *testing.T) {
	capture := &logCapture{}
	log := slog.New(capture)

	repo := newMemLicenseRepo()
	hash, err := bcrypt.GenerateFromPassword([]byte(testOpsSecret), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash ops secret: %v", err)
	}
	svc := NewLicenseService(repo, security.NewPolicy(log), string(hash), log)
	ctx := context.Background()

	if _, err := svc.Activate(ctx, userPrincipal("t-1"), "ABC123"); err != nil {
		t.Fatalf("activate failed: %v", err)
	}
	if _, err := svc.Clear(ctx, adminPrincipal("t-1"), "not-the-secret", false); err == nil {
		t.Fatalf("expected clear denial")
	}

	records := capture.auditRecords()
	if len(records) != 2 {
		t.Fatalf("expected 2 audit records, got %v", records)
	}
	if records[0]["action"] != "activate" || records[0]["status"] != "success" || records[0]["resource_id"] != "ABC123" {
		t.Fatalf("unexpected activate audit record: %v", records[0])
	}
	if records[1]["action"] != "access_denied" || records[1]["user_id"] != adminPrincipal("t-1").UserID {
		t.Fatalf("unexpected denial audit record: %v", records[1])
	}
}

func TestClearUnavailableWithoutConfiguredSecret(t *testing.T) {
	repo := newMemLicenseRepo()
	svc := NewLicenseService(repo, security.NewPolicy(nil), "", nil)

	if _, err := svc.Clear(context.Background(), adminPrincipal("t-1"), "anything", false); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected unauthorized when no hash configured, got %v", err)
	}
}

func TestClearAllRequiresSuperAdmin(t *testing.T) {
	svc, repo := newTestLicenseService(t)
	ctx := context.Background()

	svc.Activate(ctx, userPrincipal("t-1"), "AAA111")
	svc.Activate(ctx, userPrincipal("t-2"), "BBB111")

	if _, err := svc.Clear(ctx, adminPrincipal("t-1"), testOpsSecret, true); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected unauthorized for admin clearing all, got %v", err)
	}

	super := &security.Principal{UserID: "u-3", Username: "ops", TenantID: "t-1", Role: domain.RoleSuperAdmin}
	deleted, err := svc.Clear(ctx, super, testOpsSecret, true)
	if err != nil {
		t.Fatalf("clear all failed: %v", err)
	}
	if deleted != 2 {
		t.Fatalf("expected 2 deleted, got %d", deleted)
	}
	remaining, _ := repo.ListAll(ctx)
	if len(remaining) != 0 {
		t.Fatalf("expected empty ledger, got %+v", remaining)
	}
}

func TestAnonymousCallsRejected(t *testing.T) {
	svc, _ := newTestLicenseService(t)
	ctx := context.Background()

	if _, err := svc.Activate(ctx, nil, "ABC123"); !errors.Is(err, domain.ErrUnauthenticated) {
		t.Fatalf("expected unauthenticated, got %v", err)
	}
	if _, err := svc.List(ctx, nil); !errors.Is(err, domain.ErrUnauthenticated) {
		t.Fatalf("expected unauthenticated, got %v", err)
	}
	if err := svc.Revoke(ctx, nil, "ABC123"); !errors.Is(err, domain.ErrUnauthenticated) {
		t.Fatalf("expected unauthenticated, got %v", err)
	}
	if _, err := svc.Clear(ctx, nil, testOpsSecret, false); !errors.Is(err, domain.ErrUnauthenticated) {
		t.Fatalf("expected unauthenticated, got %v", err)
	}

	// Identity is checked before input: a malformed key from an anonymous
	// caller still reads as unauthenticated, not invalid input.
	if _, err := svc.Activate(ctx, nil, "bad key!"); !errors.Is(err, domain.ErrUnauthenticated) {
		t.Fatalf("expected unauthenticated for anonymous malformed key, got %v", err)
	}
	if err := svc.Revoke(ctx, nil, "bad key!"); !errors.Is(err, domain.ErrUnauthenticated) {
		t.Fatalf("expected unauthenticated for anonymous malformed key, got %v", err)
	}
}
