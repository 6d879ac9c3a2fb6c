package domain

import (
	"context"
	"time"
)

// Role is the coarse permission tier a user holds within their tenant.
type Role string

const (
	RoleAdmin       Role = "admin"
	RoleTenantAdmin Role = "tenant_admin"
	RoleMember      Role = "member"
)

// User represents a system user.
type User struct {
	ID           string // UUID
	Email        string // Unique email address
	Username     string // Unique username
	PasswordHash string // Bcrypt hashed password (not returned in API)
	TenantID     string // UUID of tenant this user belongs to
	Role         Role
	CreatedAt    time.Time
	UpdatedAt    time.Time
	IsActive     bool
}

// UserRepository defines data access for users.
type UserRepository interface {
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	Update(ctx context.Context, user *User) error
	ListByTenant(ctx context.Context, tenantID string) ([]*User, error)
}

// Tenant represents an isolated customer organization; every entry, project
// and user belongs to exactly one.
type Tenant struct {
	ID        string // UUID
	Name      string // Unique tenant name
	CreatedAt time.Time
	UpdatedAt time.Time
	IsActive  bool
}

// TenantRepository defines data access for tenants.
type TenantRepository interface {
	Create(ctx context.Context, tenant *Tenant) error
	GetByID(ctx context.Context, id string) (*Tenant, error)
	GetByName(ctx context.Context, name string) (*Tenant, error)
}
