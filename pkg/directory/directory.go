package directory

import (
	"context"

	"github.com/google/uuid"
)

// Role is the coarse entitlement tier kept eventually consistent with the
// canonical subscription state.
type Role string

const (
	RoleFree  Role = "free"
	RolePaid  Role = "paid"
	RoleAdmin Role = "admin"
)

// Directory is the external Principal Directory collaborator: it resolves
// provider-side payer references to user IDs and owns the coarse entitlement
// role. Implementations must never let SetEntitlementRole overwrite an
// administrator-tier role; callers additionally re-check before downgrading.
type Directory interface {
	// ResolveUser maps a provider payer reference to the owning user.
	// Returns ErrUserNotFound for unknown references.
	ResolveUser(ctx context.Context, payerRef string) (uuid.UUID, error)

	// GetEntitlementRole returns the user's current role.
	GetEntitlementRole(ctx context.Context, userID uuid.UUID) (Role, error)

	// SetEntitlementRole sets the user's role. A no-op when the user holds
	// RoleAdmin.
	SetEntitlementRole(ctx context.Context, userID uuid.UUID, role Role) error
}
