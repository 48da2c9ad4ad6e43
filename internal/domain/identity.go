package domain

import "github.com/google/uuid"

type Role string

const (
	RoleClient   Role = "client"
	RoleProvider Role = "provider"
	RoleAdmin    Role = "admin"
)

// Identity is the authenticated caller, resolved by the HTTP layer from the
// bearer token. The core trusts it for ownership checks.
type Identity struct {
	UserID uuid.UUID
	Role   Role
}

func (i Identity) IsAdmin() bool { return i.Role == RoleAdmin }

// CanManageEvent reports whether the identity may operate on events owned by
// the given provider: the owning provider itself, or an admin.
func (i Identity) CanManageEvent(providerID uuid.UUID) bool {
	return i.IsAdmin() || (i.Role == RoleProvider && i.UserID == providerID)
}
