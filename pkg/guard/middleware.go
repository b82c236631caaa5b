package guard

import (
	"log/slog"
	"net/http"
)

// RequireAuthentication returns a middleware that forces identity resolution
// before the wrapped handler runs. A resolution failure is rendered through
// the error writer with the resolver's own error; no enforcement happens. On
// success the identity is stored in the request context and the handler runs
// with the request otherwise untouched.
func (g *Guard) RequireAuthentication() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, err := g.identity.ResolveIdentity(r)
			if err != nil {
				slog.Warn("Identity resolution failed",
					"error", err,
					"path", r.URL.Path,
					"method", r.Method,
				)
				g.writeErr(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

// RequirePermission returns a middleware that runs the decision pipeline
// before the wrapped handler. Each argument is either a literal passed to the
// enforcer unchanged or a Subject resolved fresh per request, in declaration
// order. The enforcer is called with the identity in position zero followed
// by the resolved arguments; resolved values exist only for the decision and
// are never handed to the wrapped handler.
func (g *Guard) RequirePermission(args ...any) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, err := g.authorize(r, args)
			if err != nil {
				g.writeErr(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}
