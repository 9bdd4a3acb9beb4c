// Package authz implements the authorization policy (C11): a pure function
// applied uniformly across deck mutation endpoints, plus the unconditional
// admin-only rule for catalog mutations.
package authz

import "github.com/cardforge/cardforge/pkg/principal"

// CanModify reports whether p may mutate a resource owned by resourceOwner:
// true iff p is an admin or p is the owner.
func CanModify(resourceOwner string, p principal.Principal) bool {
	return p.IsAdmin() || p.Username == resourceOwner
}

// RequiresAdmin reports whether p holds the admin role, as required
// unconditionally for catalog and archetype mutations.
func RequiresAdmin(p principal.Principal) bool {
	return p.IsAdmin()
}
