package security

import (
	"github.com/yourorg/timetrack/internal/domain"
)

// Capability decides whether a role may see and aggregate the whole tenant's
// entries rather than only the caller's own. Which roles count as "elevated"
// is authorization policy, not core tracking logic, so callers receive the
// predicate instead of comparing role names themselves.
type Capability func(role domain.Role) bool

// DefaultElevated treats admin and tenant_admin as elevated.
func DefaultElevated(role domain.Role) bool {
	return role == domain.RoleAdmin || role == domain.RoleTenantAdmin
}

// Identity is the explicit caller passed into every core operation; core
// code never digs credentials out of ambient request context.
type Identity struct {
	UserID   string
	TenantID string
	Role     domain.Role
}

// CanActOn reports whether the identity may mutate entries owned by userID.
// Users always control their own entries; elevated roles control any entry
// in their tenant.
func (id Identity) CanActOn(userID string, elevated Capability) bool {
	if id.UserID == userID {
		return true
	}
	return elevated(id.Role)
}
