// Package principal models the authenticated identity: a seeded, immutable
// user record plus the two roles the rest of the system authorizes against.
package principal

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role is one of the two roles recognized by the authorization policy (C11).
type Role string

const (
	RoleUser  Role = "ROLE_USER"
	RoleAdmin Role = "ROLE_ADMIN"
)

// Principal is a seeded, immutable user record (§3).
type Principal struct {
	ID           uuid.UUID `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	Enabled      bool      `json:"enabled"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Roles returns the single-element role list the access token claims carry,
// normalized to the external representation (no "ROLE_" prefix) per §9
// "Mixed role representation": store with prefix, expose without.
func (p Principal) Roles() []string {
	return []string{externalRole(p.Role)}
}

func externalRole(r Role) string {
	return strings.TrimPrefix(string(r), "ROLE_")
}

// RoleFromExternal parses an external role string ("USER"/"ADMIN", with or
// without the storage "ROLE_" prefix) back into a Role.
func RoleFromExternal(s string) Role {
	if !strings.HasPrefix(s, "ROLE_") {
		s = "ROLE_" + s
	}
	if s == string(RoleAdmin) {
		return RoleAdmin
	}
	return RoleUser
}

// IsAdmin reports whether the principal holds the admin role.
func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// Anonymous is the zero-value principal attached to unauthenticated requests
// (§4.8): no username, no roles, access limited to public endpoints.
var Anonymous = Principal{}

// IsAnonymous reports whether p represents an unauthenticated request.
func (p Principal) IsAnonymous() bool {
	return p.Username == ""
}
