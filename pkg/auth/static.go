package auth

import "net/http"

// StaticResolver resolves every request to a fixed identity. Use it for
// anonymous mode or in tests.
type StaticResolver struct {
	Identity any
}

// ResolveIdentity implements guard.IdentityResolver.
func (s StaticResolver) ResolveIdentity(_ *http.Request) (any, error) {
	return s.Identity, nil
}
