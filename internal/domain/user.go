package domain

import (
	"context"
	"time"
)

// Role is the privilege level of a user: user < admin < super_admin.
type Role string

const (
	RoleUser       Role = "user"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super_admin"
)

// Level returns the ordering of a role for >= comparisons. Unknown roles
// rank below user so a corrupted record can never gain privilege.
func (r Role) Level() int {
	switch r {
	case RoleUser:
		return 1
	case RoleAdmin:
		return 2
	case RoleSuperAdmin:
		return 3
	default:
		return 0
	}
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r.Level() > 0
}

// User represents a system user
type User struct {
	ID           string // UUID
	Username     string // Unique (case-insensitive)
	PasswordHash string // Bcrypt hashed password (not returned in API)
	Role         Role
	TenantID     string // UUID of tenant this user belongs to
	CreatedAt    time.Time
	UpdatedAt    time.Time
	IsActive     bool
}

// UserRepository defines data access for users
type UserRepository interface {
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	Update(ctx context.Context, user *User) error
	ListByTenant(ctx context.Context, tenantID string) ([]*User, error)
}

// Tenant represents an isolated organizational scope owning users and licenses
type Tenant struct {
	ID        string // UUID
	Name      string // Unique tenant name
	Domain    string // Unique tenant domain
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TenantRepository defines data access for tenants
type TenantRepository interface {
	Create(ctx context.Context, tenant *Tenant) error
	GetByID(ctx context.Context, id string) (*Tenant, error)
	GetByName(ctx context.Context, name string) (*Tenant, error)
	List(ctx context.Context) ([]*Tenant, error)
}
