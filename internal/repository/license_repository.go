package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/yourorg/licensegate/internal/domain"
)

// PostgresLicenseRepository implements domain.LicenseRepository using PostgreSQL
type PostgresLicenseRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresLicenseRepository creates a new license repository
func NewPostgresLicenseRepository(db *sql.DB, logger *slog.Logger) *PostgresLicenseRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresLicenseRepository{db: db, logger: logger}
}

// Create inserts a license. The unique constraint on license_key makes
// concurrent activations of the same key resolve to exactly one success;
// every loser gets domain.ErrConflict, whichever tenant it came from.
func (r *PostgresLicenseRepository) Create(ctx context.Context, license *domain.License) error {
	query := `
		INSERT INTO licenses (id, license_key, status, tenant_id)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRowContext(ctx, query,
		license.ID,
		license.Key,
		license.Status,
		license.TenantID,
	).Scan(&license.CreatedAt, &license.UpdatedAt)

	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("license key: %w", domain.ErrConflict)
		}
		r.logger.Error("failed to create license",
			slog.String("tenant_id", license.TenantID),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to create license: %w", domain.ErrInternal)
	}

	return nil
}

// GetByKey retrieves a license by key regardless of owner
func (r *PostgresLicenseRepository) GetByKey(ctx context.Context, key string) (*domain.License, error) {
	lic := &domain.License{}
	query := `
		SELECT id, license_key, status, tenant_id, created_at, updated_at
		FROM licenses
		WHERE license_key = $1
	`
	err := r.db.QueryRowContext(ctx, query, key).Scan(
		&lic.ID, &lic.Key, &lic.Status, &lic.TenantID, &lic.CreatedAt, &lic.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("license: %w", domain.ErrNotFound)
		}
		r.logger.Error("failed to get license", slog.String("error", err.Error()))
		return nil, fmt.Errorf("failed to get license: %w", domain.ErrInternal)
	}
	return lic, nil
}

// ListByTenant returns a tenant's licenses in stable creation order
func (r *PostgresLicenseRepository) ListByTenant(ctx context.Context, tenantID string) ([]*domain.License, error) {
	return r.list(ctx, `
		SELECT id, license_key, status, tenant_id, created_at, updated_at
		FROM licenses
		WHERE tenant_id = $1
		ORDER BY created_at ASC, id ASC
	`, tenantID)
}

// ListAll returns every license in the ledger in stable creation order
func (r *PostgresLicenseRepository) ListAll(ctx context.Context) ([]*domain.License, error) {
	return r.list(ctx, `
		SELECT id, license_key, status, tenant_id, created_at, updated_at
		FROM licenses
		ORDER BY created_at ASC, id ASC
	`)
}

func (r *PostgresLicenseRepository) list(ctx context.Context, query string, args ...interface{}) ([]*domain.License, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("failed to list licenses", slog.String("error", err.Error()))
		return nil, fmt.Errorf("failed to list licenses: %w", domain.ErrInternal)
	}
	defer rows.Close()

	var out []*domain.License
	for rows.Next() {
		lic := &domain.License{}
		if err := rows.Scan(&lic.ID, &lic.Key, &lic.Status, &lic.TenantID, &lic.CreatedAt, &lic.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan license: %w", domain.ErrInternal)
		}
		out = append(out, lic)
	}
	return out, rows.Err()
}

// Revoke marks the tenant's license as revoked. The WHERE clause matches
// already-revoked rows too, so re-revoking is an idempotent success for the
// owner while other tenants still see zero rows.
func (r *PostgresLicenseRepository) Revoke(ctx context.Context, tenantID, key string) (int64, error) {
	query := `
		UPDATE licenses
		SET status = $1, updated_at = now()
		WHERE license_key = $2 AND tenant_id = $3
	`
	result, err := r.db.ExecContext(ctx, query, domain.StatusRevoked, key, tenantID)
	if err != nil {
		r.logger.Error("failed to revoke license",
			slog.String("tenant_id", tenantID),
			slog.String("error", err.Error()),
		)
		return 0, fmt.Errorf("failed to revoke license: %w", domain.ErrInternal)
	}
	return result.RowsAffected()
}

// DeleteByTenant removes every license owned by tenantID
func (r *PostgresLicenseRepository) DeleteByTenant(ctx context.Context, tenantID string) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM licenses WHERE tenant_id = $1`, tenantID)
	if err != nil {
		r.logger.Error("failed to clear tenant licenses",
			slog.String("tenant_id", tenantID),
			slog.String("error", err.Error()),
		)
		return 0, fmt.Errorf("failed to clear licenses: %w", domain.ErrInternal)
	}
	return result.RowsAffected()
}

// DeleteAll removes every license in the ledger
func (r *PostgresLicenseRepository) DeleteAll(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM licenses`)
	if err != nil {
		r.logger.Error("failed to clear all licenses", slog.String("error", err.Error()))
		return 0, fmt.Errorf("failed to clear licenses: %w", domain.ErrInternal)
	}
	return result.RowsAffected()
}

// CountByStatus returns the number of licenses per lifecycle status
func (r *PostgresLicenseRepository) CountByStatus(ctx context.Context) (map[domain.LicenseStatus]int64, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM licenses GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count licenses: %w", domain.ErrInternal)
	}
	defer rows.Close()

	counts := map[domain.LicenseStatus]int64{}
	for rows.Next() {
		var status domain.LicenseStatus
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan license count: %w", domain.ErrInternal)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}
