package domain

import (
	"context"
	"time"
)

// LicenseStatus is the lifecycle state of a license. Revocation is terminal:
// there is no transition out of StatusRevoked.
type LicenseStatus string

const (
	StatusActive  LicenseStatus = "active"
	StatusRevoked LicenseStatus = "revoked"
)

// License represents one license grant. Keys are unique across the whole
// system, not per tenant, so a key collision is rejected regardless of owner.
type License struct {
	ID        string // UUID
	Key       string
	Status    LicenseStatus
	TenantID  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// LicenseRepository defines data access for licenses. Create relies on the
// storage-level unique constraint on the key column: concurrent activations
// of the same key yield exactly one success and ErrConflict for the rest.
type LicenseRepository interface {
	Create(ctx context.Context, license *License) error
	GetByKey(ctx context.Context, key string) (*License, error)
	ListByTenant(ctx context.Context, tenantID string) ([]*License, error)
	ListAll(ctx context.Context) ([]*License, error)
	// Revoke marks the license owned by tenantID with the given key as
	// revoked. Returns the number of rows matched; zero means the key does
	// not exist under that tenant.
	Revoke(ctx context.Context, tenantID, key string) (int64, error)
	// DeleteByTenant removes every license owned by tenantID.
	DeleteByTenant(ctx context.Context, tenantID string) (int64, error)
	// DeleteAll removes every license in the ledger.
	DeleteAll(ctx context.Context) (int64, error)
	CountByStatus(ctx context.Context) (map[LicenseStatus]int64, error)
}
