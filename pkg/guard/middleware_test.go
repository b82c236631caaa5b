package guard

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatewarden/gatewarden/pkg/httperr"
)

func TestRequireAuthentication(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		resolver   IdentityResolver
		wantStatus int
		wantCalled bool
	}{
		{
			name:       "identity resolved",
			resolver:   staticIdentity("alice"),
			wantStatus: http.StatusOK,
			wantCalled: true,
		},
		{
			name:       "resolution failure propagates the resolver error",
			resolver:   failingIdentity(httperr.Unauthorized("not authenticated")),
			wantStatus: http.StatusUnauthorized,
			wantCalled: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			g := New(tt.resolver, &recordingEnforcer{allowed: true}, func(any, ...any) error { return nil })

			called := false
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
				identity, ok := IdentityFromContext(r.Context())
				assert.True(t, ok)
				assert.Equal(t, "alice", identity)
				w.WriteHeader(http.StatusOK)
			})

			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			g.RequireAuthentication()(handler).ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantCalled, called)
		})
	}
}

func TestRequireAuthentication_NeverEnforces(t *testing.T) {
	t.Parallel()

	enforcer := &recordingEnforcer{allowed: false}
	g := New(staticIdentity("alice"), enforcer, func(any, ...any) error {
		t.Fatal("error factory must not be called")
		return nil
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	g.RequireAuthentication()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, enforcer.calls)
}

func TestRequirePermission_AllowRunsHandlerWithOriginalRequest(t *testing.T) {
	t.Parallel()

	enforcer := &recordingEnforcer{allowed: true}
	g := New(staticIdentity("alice"), enforcer, func(any, ...any) error { return nil })

	var seen *http.Request
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r
		w.WriteHeader(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/articles?page=2", nil)
	req.Header.Set("X-Request-Id", "req-1")

	subject := Subject{Resolver: staticValue("resolved-only-for-enforcement")}
	g.RequirePermission("articles", subject)(handler).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, seen)
	assert.Equal(t, "/articles", seen.URL.Path)
	assert.Equal(t, "page=2", seen.URL.RawQuery)
	assert.Equal(t, "req-1", seen.Header.Get("X-Request-Id"))

	// Only the identity is stored for downstream handlers; resolved
	// enforcement values never leak into the request.
	identity, ok := IdentityFromContext(seen.Context())
	require.True(t, ok)
	assert.Equal(t, "alice", identity)
}

func TestRequirePermission_DenyRendersFactoryError(t *testing.T) {
	t.Parallel()

	enforcer := &recordingEnforcer{allowed: false}
	g := New(staticIdentity(map[string]string{"role": "viewer"}), enforcer, func(_ any, args ...any) error {
		return httperr.Forbidden("write access denied").WithDetails(map[string]any{"args": args})
	})

	called := false
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/articles", nil)
	g.RequirePermission("articles", "write")(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		called = true
	})).ServeHTTP(rec, req)

	assert.False(t, called)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "forbidden", body.Error)
	assert.Equal(t, "write access denied", body.Message)
}

func TestRequirePermission_EnforcerFailureRendersAs500(t *testing.T) {
	t.Parallel()

	enforcer := &recordingEnforcer{err: errors.New("policy store unreachable")}
	g := New(staticIdentity("alice"), enforcer, func(any, ...any) error {
		t.Fatal("error factory must not be called on enforcement failure")
		return nil
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/articles", nil)
	g.RequirePermission("articles", "read")(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		t.Fatal("handler must not run")
	})).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	// Internal failure details must not leak to clients.
	assert.NotContains(t, rec.Body.String(), "unreachable")
}

func TestWithErrorWriter(t *testing.T) {
	t.Parallel()

	denialErr := errors.New("denied")
	var written error

	g := New(
		staticIdentity("alice"),
		&recordingEnforcer{allowed: false},
		func(any, ...any) error { return denialErr },
		WithErrorWriter(func(w http.ResponseWriter, _ *http.Request, err error) {
			written = err
			w.WriteHeader(http.StatusTeapot)
		}),
	)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/articles", nil)
	g.RequirePermission()(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {})).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTeapot, rec.Code)
	require.Same(t, denialErr, written)
}
