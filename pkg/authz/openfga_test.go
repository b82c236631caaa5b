package authz

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenFGAEnforcer_Enforce(t *testing.T) {
	t.Parallel()

	var gotBody struct {
		TupleKey struct {
			User     string `json:"user"`
			Relation string `json:"relation"`
			Object   string `json:"object"`
		} `json:"tuple_key"`
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/stores/store-1/check", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		w.Header().Set("Content-Type", "application/json")
		allowed := gotBody.TupleKey.User == "user:alice"
		require.NoError(t, json.NewEncoder(w).Encode(map[string]any{"allowed": allowed}))
	}))
	t.Cleanup(srv.Close)

	enforcer, err := NewOpenFGAEnforcer(OpenFGAConfig{
		APIURL:  srv.URL,
		StoreID: "store-1",
		SubjectMapper: func(identity any) string {
			return "user:" + identity.(string)
		},
	})
	require.NoError(t, err)

	allowed, err := enforcer.Enforce(context.Background(), "alice", "article:drafts", "write")
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Equal(t, "user:alice", gotBody.TupleKey.User)
	assert.Equal(t, "write", gotBody.TupleKey.Relation)
	assert.Equal(t, "article:drafts", gotBody.TupleKey.Object)

	allowed, err = enforcer.Enforce(context.Background(), "mallory", "article:drafts", "write")
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestOpenFGAEnforcer_WrongArgumentCount(t *testing.T) {
	t.Parallel()

	enforcer, err := NewOpenFGAEnforcer(OpenFGAConfig{
		APIURL:  "http://localhost:8080",
		StoreID: "store-1",
	})
	require.NoError(t, err)

	_, err = enforcer.Enforce(context.Background(), "alice", "article:drafts")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expects (object, relation)")
}
