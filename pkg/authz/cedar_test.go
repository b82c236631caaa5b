package authz

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const cedarPolicies = `
permit (
    principal == Gatewarden::User::"alice",
    action == Gatewarden::Action::"read",
    resource == Gatewarden::Resource::"articles"
);

permit (
    principal,
    action == Gatewarden::Action::"read",
    resource == Gatewarden::Resource::"public"
);
`

func TestNewCedarEnforcer_InvalidPolicy(t *testing.T) {
	t.Parallel()

	_, err := NewCedarEnforcer(CedarConfig{PolicyBytes: []byte("permit (")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse Cedar policies")
}

func TestCedarEnforcer_Enforce(t *testing.T) {
	t.Parallel()

	enforcer, err := NewCedarEnforcer(CedarConfig{PolicyBytes: []byte(cedarPolicies)})
	require.NoError(t, err)

	tests := []struct {
		name     string
		identity any
		resource string
		action   string
		want     bool
	}{
		{
			name:     "permitted principal and resource",
			identity: "alice",
			resource: "articles",
			action:   "read",
			want:     true,
		},
		{
			name:     "action not permitted",
			identity: "alice",
			resource: "articles",
			action:   "write",
			want:     false,
		},
		{
			name:     "principal not permitted",
			identity: "mallory",
			resource: "articles",
			action:   "read",
			want:     false,
		},
		{
			name:     "any principal on public resource",
			identity: "mallory",
			resource: "public",
			action:   "read",
			want:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			allowed, err := enforcer.Enforce(context.Background(), tt.identity, tt.resource, tt.action)
			require.NoError(t, err)
			assert.Equal(t, tt.want, allowed)
		})
	}
}

func TestCedarEnforcer_WrongArgumentCount(t *testing.T) {
	t.Parallel()

	enforcer, err := NewCedarEnforcer(CedarConfig{PolicyBytes: []byte(cedarPolicies)})
	require.NoError(t, err)

	_, err = enforcer.Enforce(context.Background(), "alice", "articles")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expects (resource, action)")

	_, err = enforcer.Enforce(context.Background(), "alice", "articles", "read", "extra")
	require.Error(t, err)
}

func TestCedarEnforcer_PrincipalMapper(t *testing.T) {
	t.Parallel()

	type user struct {
		ID string
	}

	enforcer, err := NewCedarEnforcer(CedarConfig{
		PolicyBytes: []byte(cedarPolicies),
		PrincipalMapper: func(identity any) string {
			return fmt.Sprint(identity.(user).ID)
		},
	})
	require.NoError(t, err)

	allowed, err := enforcer.Enforce(context.Background(), user{ID: "alice"}, "articles", "read")
	require.NoError(t, err)
	assert.True(t, allowed)
}
