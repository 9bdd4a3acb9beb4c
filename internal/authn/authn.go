// Package authn implements the auth filter (C8): extracts and verifies the
// bearer access token on every request, attaching a principal to the
// request context. Endpoint-level access control is enforced downstream
// by handlers consulting pkg/authz; an unauthenticated or invalid token
// simply yields the anonymous principal rather than rejecting the request.
package authn

import (
	"context"
	"net/http"
	"strings"

	"github.com/cardforge/cardforge/internal/token"
	"github.com/cardforge/cardforge/pkg/principal"
)

type ctxKey string

const principalKey ctxKey = "principal"

// WithPrincipal stores p in the context.
func WithPrincipal(ctx context.Context, p principal.Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// FromContext extracts the principal attached by Filter. Returns
// principal.Anonymous if none was attached.
func FromContext(ctx context.Context) principal.Principal {
	if p, ok := ctx.Value(principalKey).(principal.Principal); ok {
		return p
	}
	return principal.Anonymous
}

// Filter builds the auth filter middleware (§4.8). On each request it
// extracts Authorization: Bearer <jwt>; if present and valid, it attaches
// the resolved principal. Otherwise the request proceeds anonymously.
func Filter(signer *token.Signer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := principal.Anonymous

			header := r.Header.Get("Authorization")
			if raw, ok := strings.CutPrefix(header, "Bearer "); ok {
				if claims, err := signer.Verify(raw); err == nil {
					role := principal.RoleUser
					for _, rl := range claims.Roles {
						if principal.RoleFromExternal(rl) == principal.RoleAdmin {
							role = principal.RoleAdmin
						}
					}
					p = principal.Principal{Username: claims.Subject, Role: role, Enabled: true}
				}
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}
