package test

import (
	"context"
	"net/http"
	"testing"

	"github.com/yourorg/licensegate/internal/domain"
)

// TestSignupLoginActivateFlow walks the primary user journey end to end
func TestSignupLoginActivateFlow(t *testing.T) {
	server := NewTestServer(t)
	defer server.Close()

	resp, body := server.PostJSON(t, "/signup", "", map[string]string{
		"username": "alice",
		"password": "password123",
	})
	AssertStatusCode(t, resp, http.StatusCreated)
	if body["tenant_id"] != "t-default" {
		t.Fatalf("expected signup into default tenant, got %v", body)
	}

	resp, body = server.PostJSON(t, "/login", "", map[string]string{
		"username": "alice",
		"password": "password123",
	})
	AssertStatusCode(t, resp, http.StatusOK)
	token, _ := body["token"].(string)
	if token == "" {
		t.Fatalf("expected token, got %v", body)
	}

	resp, _ = server.PostJSON(t, "/activate", token, map[string]string{"license_key": "ABC123"})
	AssertStatusCode(t, resp, http.StatusCreated)

	resp, licenses := server.GetJSON(t, "/licenses", token)
	AssertStatusCode(t, resp, http.StatusOK)
	if len(licenses) != 1 || licenses[0]["license_key"] != "ABC123" || licenses[0]["status"] != "active" {
		t.Fatalf("expected one active license ABC123, got %v", licenses)
	}
}

func TestDuplicateSignupRejected(t *testing.T) {
	server := NewTestServer(t)
	defer server.Close()

	resp, _ := server.PostJSON(t, "/signup", "", map[string]string{"username": "alice", "password": "password123"})
	AssertStatusCode(t, resp, http.StatusCreated)

	resp, body := server.PostJSON(t, "/signup", "", map[string]string{"username": "ALICE", "password": "password123"})
	AssertStatusCode(t, resp, http.StatusBadRequest)
	if body["error"] == nil {
		t.Fatalf("expected error body, got %v", body)
	}
}

func TestLoginWithBadCredentials(t *testing.T) {
	server := NewTestServer(t)
	defer server.Close()

	server.PostJSON(t, "/signup", "", map[string]string{"username": "alice", "password": "password123"})

	resp, _ := server.PostJSON(t, "/login", "", map[string]string{"username": "alice", "password": "wrongwrong"})
	AssertStatusCode(t, resp, http.StatusUnauthorized)

	resp, _ = server.PostJSON(t, "/login", "", map[string]string{"username": "nobody", "password": "password123"})
	AssertStatusCode(t, resp, http.StatusUnauthorized)
}

func TestUnauthenticatedRequestsRejected(t *testing.T) {
	server := NewTestServer(t)
	defer server.Close()

	resp, _ := server.PostJSON(t, "/activate", "", map[string]string{"license_key": "ABC123"})
	AssertStatusCode(t, resp, http.StatusUnauthorized)

	resp, _ = server.GetJSON(t, "/licenses", "")
	AssertStatusCode(t, resp, http.StatusUnauthorized)

	resp, _ = server.PostJSON(t, "/activate", "not-a-token", map[string]string{"license_key": "ABC123"})
	AssertStatusCode(t, resp, http.StatusUnauthorized)
}

// TestLogoutKillsSession verifies the token stops working immediately after
// logout, well before its expiry.
func TestLogoutKillsSession(t *testing.T) {
	server := NewTestServer(t)
	defer server.Close()

	token := server.SeedUser(t, "alice", "password123", domain.RoleUser, "t-default")

	resp, _ := server.PostJSON(t, "/activate", token, map[string]string{"license_key": "AAA111"})
	AssertStatusCode(t, resp, http.StatusCreated)

	resp, _ = server.PostJSON(t, "/logout", token, map[string]string{})
	AssertStatusCode(t, resp, http.StatusOK)

	resp, _ = server.PostJSON(t, "/activate", token, map[string]string{"license_key": "BBB222"})
	AssertStatusCode(t, resp, http.StatusUnauthorized)
}

func TestTenantIsolation(t *testing.T) {
	server := NewTestServer(t)
	defer server.Close()

	server.Tenants.Create(context.Background(), &domain.Tenant{ID: "t-other", Name: "other", Domain: "other.local"})
	aliceToken := server.SeedUser(t, "alice", "password123", domain.RoleUser, "t-default")
	bobToken := server.SeedUser(t, "bob", "password123", domain.RoleAdmin, "t-other")

	resp, _ := server.PostJSON(t, "/activate", aliceToken, map[string]string{"license_key": "AAA111"})
	AssertStatusCode(t, resp, http.StatusCreated)

	// Bob sees none of Alice's licenses.
	resp, licenses := server.GetJSON(t, "/licenses", bobToken)
	AssertStatusCode(t, resp, http.StatusOK)
	if len(licenses) != 0 {
		t.Fatalf("expected empty listing for other tenant, got %v", licenses)
	}

	// Bob cannot revoke Alice's key and learns nothing from trying.
	resp, _ = server.PostJSON(t, "/revoke", bobToken, map[string]string{"license_key": "AAA111"})
	AssertStatusCode(t, resp, http.StatusNotFound)

	// Bob cannot re-activate the key either: uniqueness is system wide.
	resp, _ = server.PostJSON(t, "/activate", bobToken, map[string]string{"license_key": "AAA111"})
	AssertStatusCode(t, resp, http.StatusBadRequest)
}

func TestRevokeLifecycle(t *testing.T) {
	server := NewTestServer(t)
	defer server.Close()

	userToken := server.SeedUser(t, "alice", "password123", domain.RoleUser, "t-default")
	adminToken := server.SeedUser(t, "root", "password123", domain.RoleAdmin, "t-default")

	resp, _ := server.PostJSON(t, "/activate", userToken, map[string]string{"license_key": "ABC123"})
	AssertStatusCode(t, resp, http.StatusCreated)

	// Plain user may not revoke.
	resp, _ = server.PostJSON(t, "/revoke", userToken, map[string]string{"license_key": "ABC123"})
	AssertStatusCode(t, resp, http.StatusForbidden)

	resp, _ = server.PostJSON(t, "/revoke", adminToken, map[string]string{"license_key": "ABC123"})
	AssertStatusCode(t, resp, http.StatusOK)

	// Terminal state: a second revoke still reports success.
	resp, _ = server.PostJSON(t, "/revoke", adminToken, map[string]string{"license_key": "ABC123"})
	AssertStatusCode(t, resp, http.StatusOK)

	resp, licenses := server.GetJSON(t, "/licenses", adminToken)
	AssertStatusCode(t, resp, http.StatusOK)
	if len(licenses) != 1 || licenses[0]["status"] != "revoked" {
		t.Fatalf("expected revoked license, got %v", licenses)
	}
}

func TestClearLicensesEndpoint(t *testing.T) {
	server := NewTestServer(t)
	defer server.Close()

	adminToken := server.SeedUser(t, "root", "password123", domain.RoleAdmin, "t-default")

	server.PostJSON(t, "/activate", adminToken, map[string]string{"license_key": "AAA111"})
	server.PostJSON(t, "/activate", adminToken, map[string]string{"license_key": "BBB222"})

	// Wrong operator secret is rejected even for a valid admin session.
	resp, _ := server.PostJSON(t, "/clear_licenses", adminToken, map[string]interface{}{
		"operator_secret": "wrong",
	})
	AssertStatusCode(t, resp, http.StatusForbidden)

	resp, body := server.PostJSON(t, "/clear_licenses", adminToken, map[string]interface{}{
		"operator_secret": OpsSecret,
	})
	AssertStatusCode(t, resp, http.StatusOK)
	if body["message"] != "cleared 2 licenses" {
		t.Fatalf("unexpected message %v", body)
	}

	resp, licenses := server.GetJSON(t, "/licenses", adminToken)
	AssertStatusCode(t, resp, http.StatusOK)
	if len(licenses) != 0 {
		t.Fatalf("expected empty ledger, got %v", licenses)
	}
}

func TestRegisterTenantEndpoint(t *testing.T) {
	server := NewTestServer(t)
	defer server.Close()

	adminToken := server.SeedUser(t, "root", "password123", domain.RoleAdmin, "t-default")
	superToken := server.SeedUser(t, "ops", "password123", domain.RoleSuperAdmin, "t-default")

	resp, _ := server.PostJSON(t, "/register_tenant", adminToken, map[string]string{"name": "acme", "domain": "acme.io"})
	AssertStatusCode(t, resp, http.StatusForbidden)

	resp, body := server.PostJSON(t, "/register_tenant", superToken, map[string]string{"name": "acme", "domain": "acme.io"})
	AssertStatusCode(t, resp, http.StatusCreated)
	if body["tenant_id"] == nil {
		t.Fatalf("expected tenant_id, got %v", body)
	}

	resp, _ = server.PostJSON(t, "/register_tenant", superToken, map[string]string{"name": "acme", "domain": "elsewhere.io"})
	AssertStatusCode(t, resp, http.StatusBadRequest)
}

func TestAssignEndpoint(t *testing.T) {
	server := NewTestServer(t)
	defer server.Close()

	superToken := server.SeedUser(t, "ops", "password123", domain.RoleSuperAdmin, "t-default")

	resp, _ := server.PostJSON(t, "/signup", "", map[string]string{"username": "bob", "password": "password123"})
	AssertStatusCode(t, resp, http.StatusCreated)

	resp, body := server.PostJSON(t, "/api/v1/users/assign", superToken, map[string]string{
		"username":  "bob",
		"role":      "admin",
		"tenant_id": "t-default",
	})
	AssertStatusCode(t, resp, http.StatusOK)
	if body["role"] != "admin" {
		t.Fatalf("expected bob promoted to admin, got %v", body)
	}

	// A freshly promoted user's old token does not carry the new role; bob
	// logs in again and can now revoke.
	resp, loginBody := server.PostJSON(t, "/login", "", map[string]string{"username": "bob", "password": "password123"})
	AssertStatusCode(t, resp, http.StatusOK)
	if loginBody["role"] != "admin" {
		t.Fatalf("expected admin role at login, got %v", loginBody)
	}
}
