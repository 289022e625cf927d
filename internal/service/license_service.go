package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/yourorg/licensegate/internal/domain"
	"github.com/yourorg/licensegate/internal/observability/metrics"
	"github.com/yourorg/licensegate/internal/security"
	"github.com/yourorg/licensegate/internal/security/audit"
)

// LicenseService orchestrates the license lifecycle: every operation goes
// through the authorization policy before it touches the ledger, and the
// tenant scope always comes from the authenticated principal, never from
// request input.
type LicenseService struct {
	licenseRepo domain.LicenseRepository
	policy      *security.Policy
	// opsSecretHash is the bcrypt hash of the operator secret required for
	// bulk clears, verified with the same hashing discipline as passwords.
	opsSecretHash string
	audit         *audit.Logger
	logger        *slog.Logger
}

// NewLicenseService creates a new license lifecycle service
func NewLicenseService(
	licenseRepo domain.LicenseRepository,
	policy *security.Policy,
	opsSecretHash string,
	logger *slog.Logger,
) *LicenseService {
	if logger == nil {
		logger = slog.Default()
	}

	return &LicenseService{
		licenseRepo:   licenseRepo,
		policy:        policy,
		opsSecretHash: opsSecretHash,
		audit:         audit.NewLogger(logger),
		logger:        logger,
	}
}

// validKey reports whether a license key is non-empty and purely
// alphanumeric. Anything else is rejected before it reaches storage.
func validKey(key string) bool {
	if key == "" {
		return false
	}
	for _, c := range key {
		switch {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		default:
			return false
		}
	}
	return true
}

// Activate creates a license in state active owned by the principal's
// tenant. Key collisions anywhere in the system are a conflict; tenant B can
// neither discover nor activate over tenant A's key.
func (s *LicenseService) Activate(ctx context.Context, principal *security.Principal, key string) (*domain.License, error) {
	// Identity before input: an anonymous caller learns nothing about key
	// syntax, it just gets Unauthenticated.
	if principal == nil {
		return nil, fmt.Errorf("activate: %w", domain.ErrUnauthenticated)
	}
	if !validKey(key) {
		metrics.ObserveLicenseOperation("activate", "invalid")
		return nil, fmt.Errorf("license key must be non-empty and alphanumeric: %w", domain.ErrInvalidInput)
	}
	if err := s.policy.Authorize(principal, security.ActionActivateLicense, principal.TenantID); err != nil {
		return nil, err
	}

	license := &domain.License{
		ID:       uuid.NewString(),
		Key:      key,
		Status:   domain.StatusActive,
		TenantID: principal.TenantID,
	}

	// Single INSERT: atomicity under concurrent activation comes from the
	// unique constraint on the key column.
	if err := s.licenseRepo.Create(ctx, license); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			metrics.ObserveLicenseOperation("activate", "conflict")
			s.audit.LogLicense(ctx, principal.TenantID, principal.UserID, "activate", key, "conflict")
			return nil, fmt.Errorf("license already activated: %w", domain.ErrConflict)
		}
		metrics.ObserveLicenseOperation("activate", "error")
		return nil, err
	}

	metrics.ObserveLicenseOperation("activate", "success")
	s.audit.LogLicense(ctx, principal.TenantID, principal.UserID, "activate", key, "success")
	s.logger.Info("license activated",
		slog.String("license_id", license.ID),
		slog.String("tenant_id", license.TenantID),
	)
	return license, nil
}

// List returns the principal's tenant's licenses in stable creation order
func (s *LicenseService) List(ctx context.Context, principal *security.Principal) ([]*domain.License, error) {
	if principal == nil {
		return nil, fmt.Errorf("list licenses: %w", domain.ErrUnauthenticated)
	}
	if err := s.policy.Authorize(principal, security.ActionListLicenses, principal.TenantID); err != nil {
		return nil, err
	}
	return s.licenseRepo.ListByTenant(ctx, principal.TenantID)
}

// ListPublic returns every license regardless of tenant. Legacy behavior for
// the flag-gated unauthenticated listing; never mounted unless the operator
// turned the flag on deliberately.
func (s *LicenseService) ListPublic(ctx context.Context) ([]*domain.License, error) {
	return s.licenseRepo.ListAll(ctx)
}

// Revoke transitions a license owned by the principal's tenant to revoked.
// Revoking an already-revoked license succeeds without side effect. A key
// owned by another tenant reports not-found, not forbidden, so revoke
// probing cannot confirm a key exists elsewhere.
func (s *LicenseService) Revoke(ctx context.Context, principal *security.Principal, key string) error {
	if principal == nil {
		return fmt.Errorf("revoke: %w", domain.ErrUnauthenticated)
	}
	if !validKey(key) {
		metrics.ObserveLicenseOperation("revoke", "invalid")
		return fmt.Errorf("license key must be non-empty and alphanumeric: %w", domain.ErrInvalidInput)
	}
	if err := s.policy.Authorize(principal, security.ActionRevokeLicense, principal.TenantID); err != nil {
		return err
	}

	matched, err := s.licenseRepo.Revoke(ctx, principal.TenantID, key)
	if err != nil {
		metrics.ObserveLicenseOperation("revoke", "error")
		return err
	}
	if matched == 0 {
		metrics.ObserveLicenseOperation("revoke", "not_found")
		s.audit.LogLicense(ctx, principal.TenantID, principal.UserID, "revoke", key, "not_found")
		return fmt.Errorf("license: %w", domain.ErrNotFound)
	}

	metrics.ObserveLicenseOperation("revoke", "success")
	s.audit.LogLicense(ctx, principal.TenantID, principal.UserID, "revoke", key, "success")
	s.logger.Info("license revoked", slog.String("tenant_id", principal.TenantID))
	return nil
}

// Clear bulk-deletes licenses. The caller must present the operator secret
// in addition to an authenticated admin session; the secret is verified
// against a configured bcrypt hash, never compared to a literal. Scope is
// the caller's tenant unless all is set, which only a super_admin may do.
func (s *LicenseService) Clear(ctx context.Context, principal *security.Principal, operatorSecret string, all bool) (int64, error) {
	if principal == nil {
		return 0, fmt.Errorf("clear: %w", domain.ErrUnauthenticated)
	}

	action := security.ActionClearLicenses
	if all {
		action = security.ActionClearAllLicenses
	}
	if err := s.policy.Authorize(principal, action, principal.TenantID); err != nil {
		return 0, err
	}

	if s.opsSecretHash == "" {
		s.logger.Error("clear requested but no operator secret configured")
		return 0, fmt.Errorf("clear unavailable: %w", domain.ErrUnauthorized)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(s.opsSecretHash), []byte(operatorSecret)); err != nil {
		metrics.ObserveLicenseOperation("clear", "denied")
		s.audit.LogDenied(ctx, principal.TenantID, principal.UserID, "operator secret mismatch")
		s.logger.Warn("clear denied: operator secret mismatch", slog.String("user_id", principal.UserID))
		return 0, fmt.Errorf("invalid operator secret: %w", domain.ErrUnauthorized)
	}

	var deleted int64
	var err error
	if all {
		deleted, err = s.licenseRepo.DeleteAll(ctx)
	} else {
		deleted, err = s.licenseRepo.DeleteByTenant(ctx, principal.TenantID)
	}
	if err != nil {
		metrics.ObserveLicenseOperation("clear", "error")
		return 0, err
	}

	metrics.ObserveLicenseOperation("clear", "success")
	s.audit.LogLicense(ctx, principal.TenantID, principal.UserID, "clear", "", "success")
	s.logger.Info("licenses cleared",
		slog.String("user_id", principal.UserID),
		slog.String("tenant_id", principal.TenantID),
		slog.Bool("all", all),
		slog.Int64("deleted", deleted),
	)
	return deleted, nil
}
