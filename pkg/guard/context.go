package guard

import "context"

type identityContextKey struct{}

// WithIdentity returns a copy of ctx carrying the resolved identity. The
// middleware stores the identity after a successful check so wrapped handlers
// can read it without resolving again.
func WithIdentity(ctx context.Context, identity any) context.Context {
	return context.WithValue(ctx, identityContextKey{}, identity)
}

// IdentityFromContext returns the identity stored by the middleware, if any.
func IdentityFromContext(ctx context.Context) (any, bool) {
	identity := ctx.Value(identityContextKey{})
	if identity == nil {
		return nil, false
	}
	return identity, true
}
