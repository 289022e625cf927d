package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// Uniqueness lives in the schema, not in application checks: concurrent
// inserts race, constraints do not.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS tenants (
		id UUID PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		domain TEXT NOT NULL UNIQUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS users (
		id UUID PRIMARY KEY,
		username TEXT NOT NULL,
		password_hash TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'user',
		tenant_id UUID NOT NULL REFERENCES tenants(id),
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		is_active BOOLEAN NOT NULL DEFAULT true
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS users_username_lower_idx ON users (LOWER(username))`,
	`CREATE TABLE IF NOT EXISTS licenses (
		id UUID PRIMARY KEY,
		license_key TEXT NOT NULL UNIQUE,
		status TEXT NOT NULL,
		tenant_id UUID NOT NULL REFERENCES tenants(id),
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS licenses_tenant_idx ON licenses (tenant_id, created_at)`,
}

// EnsureSchema creates the tables and constraints if they do not exist.
func (cp *ConnectionPool) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := cp.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	cp.logger.Info("database schema ensured")
	return nil
}

// SeedDefaultTenant guarantees the tenant new signups join exists. Returns
// its id whether it was just created or already present.
func (cp *ConnectionPool) SeedDefaultTenant(ctx context.Context, name string) (string, error) {
	var id string
	err := cp.db.QueryRowContext(ctx, `SELECT id FROM tenants WHERE name = $1`, name).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("failed to look up default tenant: %w", err)
	}

	id = uuid.NewString()
	_, err = cp.db.ExecContext(ctx,
		`INSERT INTO tenants (id, name, domain) VALUES ($1, $2, $3)
		 ON CONFLICT (name) DO NOTHING`,
		id, name, name+".local",
	)
	if err != nil {
		return "", fmt.Errorf("failed to seed default tenant: %w", err)
	}

	// Another instance may have won the insert race; read back the winner.
	if err := cp.db.QueryRowContext(ctx, `SELECT id FROM tenants WHERE name = $1`, name).Scan(&id); err != nil {
		return "", fmt.Errorf("failed to read default tenant: %w", err)
	}

	cp.logger.Info("default tenant ready", slog.String("tenant_id", id), slog.String("name", name))
	return id, nil
}
