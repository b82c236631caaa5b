// Package guard implements a permission-enforcement gate for HTTP handlers.
//
// A Guard orchestrates three caller-supplied capabilities: an
// IdentityResolver producing the current caller, an Enforcer answering
// allow/deny for a positional argument list, and an ErrorFactory shaping the
// denial error. The gate owns none of these; it only guarantees the order in
// which they run, fail-fast short-circuiting, and that a denial surfaces as
// exactly the error the factory produced.
package guard

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gatewarden/gatewarden/pkg/httperr"
)

// IdentityResolver produces the opaque identity of the requester, typically
// by reading a credential from the request. A failure is propagated to the
// client untouched; the gate never substitutes its own error.
type IdentityResolver interface {
	ResolveIdentity(r *http.Request) (any, error)
}

// IdentityResolverFunc adapts a function to the IdentityResolver interface.
type IdentityResolverFunc func(r *http.Request) (any, error)

// ResolveIdentity implements IdentityResolver.
func (f IdentityResolverFunc) ResolveIdentity(r *http.Request) (any, error) {
	return f(r)
}

// ValueResolver produces a request-scoped value used as an enforcement
// argument, e.g. a URL parameter or a record loaded from storage.
type ValueResolver interface {
	ResolveValue(r *http.Request) (any, error)
}

// ValueResolverFunc adapts a function to the ValueResolver interface.
type ValueResolverFunc func(r *http.Request) (any, error)

// ResolveValue implements ValueResolver.
func (f ValueResolverFunc) ResolveValue(r *http.Request) (any, error) {
	return f(r)
}

// Enforcer is the external policy-decision procedure the gate orchestrates.
// The identity always occupies the first position. Implementations may decide
// in-process or call out to a remote policy service; the context carries
// request cancellation either way. An error is a failure to decide and is
// never interpreted as a deny.
type Enforcer interface {
	Enforce(ctx context.Context, identity any, args ...any) (bool, error)
}

// EnforcerFunc adapts a function to the Enforcer interface.
type EnforcerFunc func(ctx context.Context, identity any, args ...any) (bool, error)

// Enforce implements Enforcer.
func (f EnforcerFunc) Enforce(ctx context.Context, identity any, args ...any) (bool, error) {
	return f(ctx, identity, args...)
}

// ErrorFactory converts a deny decision into the caller's error value. It
// receives the resolved identity and the resolved enforcement arguments in
// declaration order. The gate raises the returned error verbatim.
type ErrorFactory func(identity any, args ...any) error

// ErrorWriter renders an error propagated by the gate to the response. The
// error value itself is never altered before it reaches the writer.
type ErrorWriter func(w http.ResponseWriter, r *http.Request, err error)

// Subject pairs a request-scoped value resolver with an optional selector
// applied to the resolved value before it participates in enforcement.
//
// Subjects are declared once per route and are immutable; the resolver runs
// fresh on every request. Selectors must be pure, synchronous projections
// such as a field extraction. A projection that can fail or needs I/O belongs
// in the resolver, which has an error return and sees the request. A Subject
// resolving to another Subject is not resolved further.
type Subject struct {
	Resolver ValueResolver

	// Selector transforms the resolved value. Nil means use it as-is.
	Selector func(any) any
}

func (s Subject) resolve(r *http.Request) (any, error) {
	v, err := s.Resolver.ResolveValue(r)
	if err != nil {
		return nil, err
	}
	if s.Selector != nil {
		v = s.Selector(v)
	}
	return v, nil
}

// Guard evaluates authorization decisions for incoming requests. It holds no
// mutable state; concurrent requests evaluate independently.
type Guard struct {
	identity IdentityResolver
	enforcer Enforcer
	deny     ErrorFactory
	writeErr ErrorWriter
}

// Option configures a Guard.
type Option func(*Guard)

// WithErrorWriter replaces the default error renderer. The default writes
// httperr values with their own status and anything else as a generic 500.
func WithErrorWriter(w ErrorWriter) Option {
	return func(g *Guard) {
		g.writeErr = w
	}
}

// New creates a Guard from the three capabilities it orchestrates. The deny
// factory is invoked only when the enforcer returns a negative decision,
// never on resolution or enforcement failures.
func New(identity IdentityResolver, enforcer Enforcer, deny ErrorFactory, opts ...Option) *Guard {
	g := &Guard{
		identity: identity,
		enforcer: enforcer,
		deny:     deny,
		writeErr: defaultErrorWriter,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Check runs the full decision pipeline for r: resolve identity, resolve the
// declared arguments in order, enforce, and convert a deny into the factory
// error. It returns nil when the request is allowed. Resolution and
// enforcement failures are returned untouched; a denial is returned as
// exactly the factory-produced error.
func (g *Guard) Check(r *http.Request, args ...any) error {
	_, err := g.authorize(r, args)
	return err
}

// authorize is the stateless per-request pipeline. Steps run in a fixed
// order: identity first (the enforcer needs it and a missing credential must
// not trigger argument resolution), then each declared argument, then the
// enforcement call. The first failure aborts the remaining steps.
func (g *Guard) authorize(r *http.Request, args []any) (any, error) {
	identity, err := g.identity.ResolveIdentity(r)
	if err != nil {
		slog.Warn("Identity resolution failed",
			"error", err,
			"path", r.URL.Path,
			"method", r.Method,
		)
		return nil, err
	}

	rvals := make([]any, len(args))
	for i, arg := range args {
		subject, ok := arg.(Subject)
		if !ok {
			rvals[i] = arg
			continue
		}
		v, err := subject.resolve(r)
		if err != nil {
			slog.Warn("Enforcement argument resolution failed",
				"error", err,
				"position", i,
				"path", r.URL.Path,
				"method", r.Method,
			)
			return nil, err
		}
		rvals[i] = v
	}

	allowed, err := g.enforcer.Enforce(r.Context(), identity, rvals...)
	if err != nil {
		slog.Error("Policy enforcement failed",
			"error", err,
			"path", r.URL.Path,
			"method", r.Method,
		)
		return nil, err
	}

	if !allowed {
		slog.Warn("Authorization denied",
			"path", r.URL.Path,
			"method", r.Method,
			"args", rvals,
		)
		return nil, g.deny(identity, rvals...)
	}

	slog.Debug("Authorization permitted",
		"path", r.URL.Path,
		"method", r.Method,
	)
	return identity, nil
}

func defaultErrorWriter(w http.ResponseWriter, _ *http.Request, err error) {
	httperr.Write(w, err)
}
