package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/yourorg/licensegate/internal/domain"
)

// PostgresTenantRepository implements domain.TenantRepository using PostgreSQL
type PostgresTenantRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresTenantRepository creates a new tenant repository
func NewPostgresTenantRepository(db *sql.DB, logger *slog.Logger) *PostgresTenantRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresTenantRepository{db: db, logger: logger}
}

// Create creates a new tenant. Duplicate name or domain surfaces as
// domain.ErrConflict via the unique constraints.
func (r *PostgresTenantRepository) Create(ctx context.Context, tenant *domain.Tenant) error {
	query := `
		INSERT INTO tenants (id, name, domain)
		VALUES ($1, $2, $3)
		RETURNING created_at, updated_at
	`
	err := r.db.QueryRowContext(ctx, query, tenant.ID, tenant.Name, tenant.Domain).Scan(
		&tenant.CreatedAt,
		&tenant.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("tenant %q: %w", tenant.Name, domain.ErrConflict)
		}
		r.logger.Error("failed to create tenant",
			slog.String("name", tenant.Name),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to create tenant: %w", domain.ErrInternal)
	}
	return nil
}

// GetByID retrieves a tenant by ID
func (r *PostgresTenantRepository) GetByID(ctx context.Context, id string) (*domain.Tenant, error) {
	return r.getOne(ctx, `
		SELECT id, name, domain, created_at, updated_at
		FROM tenants
		WHERE id = $1
	`, id)
}

// GetByName retrieves a tenant by name
func (r *PostgresTenantRepository) GetByName(ctx context.Context, name string) (*domain.Tenant, error) {
	return r.getOne(ctx, `
		SELECT id, name, domain, created_at, updated_at
		FROM tenants
		WHERE name = $1
	`, name)
}

func (r *PostgresTenantRepository) getOne(ctx context.Context, query, arg string) (*domain.Tenant, error) {
	t := &domain.Tenant{}
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&t.ID, &t.Name, &t.Domain, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("tenant: %w", domain.ErrNotFound)
		}
		r.logger.Error("failed to get tenant", slog.String("error", err.Error()))
		return nil, fmt.Errorf("failed to get tenant: %w", domain.ErrInternal)
	}
	return t, nil
}

// List returns all tenants
func (r *PostgresTenantRepository) List(ctx context.Context) ([]*domain.Tenant, error) {
	query := `
		SELECT id, name, domain, created_at, updated_at
		FROM tenants
		ORDER BY created_at ASC
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		r.logger.Error("failed to list tenants", slog.String("error", err.Error()))
		return nil, fmt.Errorf("failed to list tenants: %w", domain.ErrInternal)
	}
	defer rows.Close()

	var out []*domain.Tenant
	for rows.Next() {
		t := &domain.Tenant{}
		if err := rows.Scan(&t.ID, &t.Name, &t.Domain, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan tenant: %w", domain.ErrInternal)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
