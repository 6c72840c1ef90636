package auth

import "context"

// Principal is the verified identity attached to a request by the identity gate.
type Principal struct {
	ActorID string
	Role    Role
}

type principalKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the principal carried by ctx, if any.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	if !ok || p.ActorID == "" || !p.Role.Valid() {
		return Principal{}, false
	}
	return p, true
}

// Authenticator resolves a session credential into a verified principal.
type Authenticator interface {
	VerifyIdentity(ctx context.Context, token string) (Principal, error)
}
