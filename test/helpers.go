package test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/yourorg/licensegate/internal/domain"
	"github.com/yourorg/licensegate/internal/handler"
	"github.com/yourorg/licensegate/internal/infrastructure/logger"
	"github.com/yourorg/licensegate/internal/security"
	"github.com/yourorg/licensegate/internal/security/auth"
	"github.com/yourorg/licensegate/internal/security/middleware"
	"github.com/yourorg/licensegate/internal/service"
)

// OpsSecret is the plaintext operator secret the test stack is configured with
const OpsSecret = "test-operator-secret"

// In-memory stores backing the test stack. Same interfaces the Postgres and
// Redis implementations satisfy, same uniqueness semantics.

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[string]*domain.User
}

func (f *fakeUserRepo) Create(_ context.Context, u *domain.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.users {
		if strings.EqualFold(existing.Username, u.Username) {
			return domain.ErrConflict
		}
	}
	f.users[u.ID] = u
	return nil
}

func (f *fakeUserRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.users[id]; ok && u.IsActive {
		return u, nil
	}
	return nil, domain.ErrNotFound
}

func (f *fakeUserRepo) GetByUsername(_ context.Context, username string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if strings.EqualFold(u.Username, username) && u.IsActive {
			return u, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (f *fakeUserRepo) Update(_ context.Context, u *domain.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[u.ID] = u
	return nil
}

func (f *fakeUserRepo) ListByTenant(_ context.Context, tenantID string) ([]*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []*domain.User{}
	for _, u := range f.users {
		if u.TenantID == tenantID {
			out = append(out, u)
		}
	}
	return out, nil
}

type fakeTenantRepo struct {
	mu      sync.Mutex
	tenants map[string]*domain.Tenant
}

func (f *fakeTenantRepo) Create(_ context.Context, t *domain.Tenant) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.tenants {
		if existing.Name == t.Name || existing.Domain == t.Domain {
			return domain.ErrConflict
		}
	}
	f.tenants[t.ID] = t
	return nil
}

func (f *fakeTenantRepo) GetByID(_ context.Context, id string) (*domain.Tenant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t, ok := f.tenants[id]; ok {
		return t, nil
	}
	return nil, domain.ErrNotFound
}

func (f *fakeTenantRepo) GetByName(_ context.Context, name string) (*domain.Tenant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.tenants {
		if t.Name == name {
			return t, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (f *fakeTenantRepo) List(_ context.Context) ([]*domain.Tenant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []*domain.Tenant{}
	for _, t := range f.tenants {
		out = append(out, t)
	}
	return out, nil
}

type fakeLicenseRepo struct {
	mu       sync.Mutex
	licenses []*domain.License
}

func (f *fakeLicenseRepo) Create(_ context.Context, l *domain.License) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.licenses {
		if existing.Key == l.Key {
			return domain.ErrConflict
		}
	}
	f.licenses = append(f.licenses, l)
	return nil
}

func (f *fakeLicenseRepo) GetByKey(_ context.Context, key string) (*domain.License, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, l := range f.licenses {
		if l.Key == key {
			return l, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (f *fakeLicenseRepo) ListByTenant(_ context.Context, tenantID string) ([]*domain.License, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []*domain.License{}
	for _, l := range f.licenses {
		if l.TenantID == tenantID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (f *fakeLicenseRepo) ListAll(_ context.Context) ([]*domain.License, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*domain.License{}, f.licenses...), nil
}

func (f *fakeLicenseRepo) Revoke(_ context.Context, tenantID, key string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, l := range f.licenses {
		if l.Key == key && l.TenantID == tenantID {
			l.Status = domain.StatusRevoked
			return 1, nil
		}
	}
	return 0, nil
}

func (f *fakeLicenseRepo) DeleteByTenant(_ context.Context, tenantID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var kept []*domain.License
	var deleted int64
	for _, l := range f.licenses {
		if l.TenantID == tenantID {
			deleted++
			continue
		}
		kept = append(kept, l)
	}
	f.licenses = kept
	return deleted, nil
}

func (f *fakeLicenseRepo) DeleteAll(_ context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	deleted := int64(len(f.licenses))
	f.licenses = nil
	return deleted, nil
}

func (f *fakeLicenseRepo) CountByStatus(_ context.Context) (map[domain.LicenseStatus]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[domain.LicenseStatus]int64{}
	for _, l := range f.licenses {
		out[l.Status]++
	}
	return out, nil
}

type fakeSessionStore struct {
	mu      sync.Mutex
	revoked map[string]bool
}

func (f *fakeSessionStore) Revoke(_ context.Context, jti string, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revoked[jti] = true
	return nil
}

func (f *fakeSessionStore) IsRevoked(_ context.Context, jti string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.revoked[jti], nil
}

// TestServerHelper is the full HTTP stack over in-memory storage: real
// handlers, real services, real JWT middleware.
type TestServerHelper struct {
	Server   *httptest.Server
	Logger   *slog.Logger
	Users    *fakeUserRepo
	Tenants  *fakeTenantRepo
	Licenses *fakeLicenseRepo
	Tokens   *auth.TokenManager
}

func NewTestServer(t *testing.T) *TestServerHelper {
	t.Helper()
	log := logger.NewLogger("error")

	users := &fakeUserRepo{users: map[string]*domain.User{}}
	tenants := &fakeTenantRepo{tenants: map[string]*domain.Tenant{
		"t-default": {ID: "t-default", Name: "default", Domain: "default.local"},
	}}
	licenses := &fakeLicenseRepo{}
	sessions := &fakeSessionStore{revoked: map[string]bool{}}

	tokens, err := auth.NewTokenManager("integration-test-secret", "licensegate", time.Hour)
	if err != nil {
		t.Fatalf("token manager: %v", err)
	}
	policy := security.NewPolicy(log)

	opsHash, err := bcrypt.GenerateFromPassword([]byte(OpsSecret), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash ops secret: %v", err)
	}

	authService := service.NewAuthService(users, tenants, tokens, sessions, policy, "default", log)
	licenseService := service.NewLicenseService(licenses, policy, string(opsHash), log)
	tenantService := service.NewTenantService(tenants, policy, log)

	authHandler := handler.NewAuthHandler(authService, log)
	licenseHandler := handler.NewLicenseHandler(licenseService, log)
	tenantHandler := handler.NewTenantHandler(tenantService, log)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /login", authHandler.Login)
	mux.HandleFunc("POST /signup", authHandler.Signup)
	mux.HandleFunc("POST /logout", authHandler.Logout)
	mux.HandleFunc("GET /licenses", licenseHandler.List)
	mux.HandleFunc("POST /activate", licenseHandler.Activate)
	mux.HandleFunc("POST /revoke", licenseHandler.Revoke)
	mux.HandleFunc("POST /clear_licenses", licenseHandler.Clear)
	mux.HandleFunc("POST /register_tenant", tenantHandler.Register)
	mux.HandleFunc("GET /api/v1/licenses", licenseHandler.ListScoped)
	mux.HandleFunc("POST /api/v1/users/assign", authHandler.Assign)

	root := middleware.JWTMiddleware(tokens, sessions, log)(mux)
	server := httptest.NewServer(root)

	return &TestServerHelper{
		Server:   server,
		Logger:   log,
		Users:    users,
		Tenants:  tenants,
		Licenses: licenses,
		Tokens:   tokens,
	}
}

func (h *TestServerHelper) Close() {
	h.Server.Close()
}

func (h *TestServerHelper) URL() string {
	return h.Server.URL
}

// SeedUser inserts a user with a known password directly into storage,
// bypassing signup's role restrictions. Returns a valid session token.
func (h *TestServerHelper) SeedUser(t *testing.T, username, password string, role domain.Role, tenantID string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	user := &domain.User{
		ID:           "u-" + username,
		Username:     username,
		PasswordHash: string(hash),
		Role:         role,
		TenantID:     tenantID,
		IsActive:     true,
	}
	if err := h.Users.Create(context.Background(), user); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	token, _, err := h.Tokens.GenerateToken(user)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

// PostJSON sends an optionally authenticated POST and decodes the JSON body
func (h *TestServerHelper) PostJSON(t *testing.T, path, token string, payload interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, h.URL()+path, bytes.NewReader(data))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	var body map[string]interface{}
	json.NewDecoder(resp.Body).Decode(&body)
	return resp, body
}

// GetJSON sends an optionally authenticated GET and decodes a JSON array body
func (h *TestServerHelper) GetJSON(t *testing.T, path, token string) (*http.Response, []map[string]interface{}) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, h.URL()+path, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	var body []map[string]interface{}
	json.NewDecoder(resp.Body).Decode(&body)
	return resp, body
}

// AssertStatusCode helper function
func AssertStatusCode(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("Expected status %d, got %d", expected, resp.StatusCode)
	}
}
