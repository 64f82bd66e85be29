package httpx

import (
	"context"
	"slices"
)

// Identity is the authenticated principal attached to a request after the
// authn middleware has validated its token. Roles come from a live user
// fetch, not from token claims.
type Identity struct {
	ID       string
	Username string
	Email    string
	Roles    []string
}

// HasRole reports whether the identity carries the given role.
func (id Identity) HasRole(role string) bool {
	return slices.Contains(id.Roles, role)
}

type ctxKey string

const ctxKeyIdentity ctxKey = "identity"

// ContextWithIdentity returns a context carrying the authenticated identity.
func ContextWithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKeyIdentity, id)
}

// IdentityFromContext returns the authenticated identity, if any.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKeyIdentity).(Identity)
	return id, ok
}
