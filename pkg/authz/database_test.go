package authz

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePolicyStore serves in-memory policy rows and records load calls.
type fakePolicyStore struct {
	policies [][]string
	err      error
	loads    int
}

func (f *fakePolicyStore) LoadPolicies(_ context.Context) ([][]string, error) {
	f.loads++
	return f.policies, f.err
}

func TestNewDatabaseEnforcer_InvalidModel(t *testing.T) {
	t.Parallel()

	modelPath := writeTempFile(t, "model.conf", "not a casbin model")
	_, err := NewDatabaseEnforcer(modelPath, &fakePolicyStore{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid casbin model")
}

func TestNewDatabaseEnforcer_MissingModelFile(t *testing.T) {
	t.Parallel()

	_, err := NewDatabaseEnforcer("/nonexistent/model.conf", &fakePolicyStore{}, nil)
	require.Error(t, err)
}

func TestDatabaseEnforcer_Enforce(t *testing.T) {
	t.Parallel()

	modelPath := writeTempFile(t, "model.conf", aclModel)
	store := &fakePolicyStore{policies: [][]string{
		{"alice", "articles", "read"},
	}}

	enforcer, err := NewDatabaseEnforcer(modelPath, store, nil)
	require.NoError(t, err)

	allowed, err := enforcer.Enforce(context.Background(), "alice", "articles", "read")
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, err = enforcer.Enforce(context.Background(), "alice", "articles", "write")
	require.NoError(t, err)
	assert.False(t, allowed)

	// Policies are loaded fresh on every enforcement.
	assert.Equal(t, 2, store.loads)
}

func TestDatabaseEnforcer_PicksUpPolicyChanges(t *testing.T) {
	t.Parallel()

	modelPath := writeTempFile(t, "model.conf", aclModel)
	store := &fakePolicyStore{}

	enforcer, err := NewDatabaseEnforcer(modelPath, store, nil)
	require.NoError(t, err)

	allowed, err := enforcer.Enforce(context.Background(), "bob", "articles", "read")
	require.NoError(t, err)
	assert.False(t, allowed)

	store.policies = [][]string{{"bob", "articles", "read"}}

	allowed, err = enforcer.Enforce(context.Background(), "bob", "articles", "read")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestDatabaseEnforcer_DefaultPolicies(t *testing.T) {
	t.Parallel()

	modelPath := writeTempFile(t, "model.conf", aclModel)
	store := &fakePolicyStore{policies: [][]string{
		{"alice", "articles", "read"},
	}}

	enforcer, err := NewDatabaseEnforcer(modelPath, store, [][]string{
		{"admin", "articles", "write"},
	})
	require.NoError(t, err)

	allowed, err := enforcer.Enforce(context.Background(), "admin", "articles", "write")
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, err = enforcer.Enforce(context.Background(), "alice", "articles", "read")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestDatabaseEnforcer_StoreFailurePropagates(t *testing.T) {
	t.Parallel()

	modelPath := writeTempFile(t, "model.conf", aclModel)
	store := &fakePolicyStore{err: errors.New("connection refused")}

	enforcer, err := NewDatabaseEnforcer(modelPath, store, nil)
	require.NoError(t, err)

	_, err = enforcer.Enforce(context.Background(), "alice", "articles", "read")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load policies")
}
