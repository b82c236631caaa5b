package authz

import (
	"context"
	"fmt"
	"os"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PolicyStore loads casbin policy rows from a backing store.
type PolicyStore interface {
	LoadPolicies(ctx context.Context) ([][]string, error)
}

// PostgresPolicyStore loads policy rows from PostgreSQL. The query must
// return only text columns, one policy rule per row, in the column order of
// the casbin policy definition (e.g. sub, obj, act).
type PostgresPolicyStore struct {
	pool  *pgxpool.Pool
	query string
}

// NewPostgresPolicyStore creates a store reading policies with the given
// query, e.g. "SELECT subject, object, action FROM policies".
func NewPostgresPolicyStore(pool *pgxpool.Pool, query string) *PostgresPolicyStore {
	return &PostgresPolicyStore{pool: pool, query: query}
}

// LoadPolicies implements PolicyStore.
func (s *PostgresPolicyStore) LoadPolicies(ctx context.Context) ([][]string, error) {
	rows, err := s.pool.Query(ctx, s.query)
	if err != nil {
		return nil, fmt.Errorf("failed to query policies: %w", err)
	}
	defer rows.Close()

	var policies [][]string
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("failed to read policy row: %w", err)
		}

		policy := make([]string, len(values))
		for i, v := range values {
			text, ok := v.(string)
			if !ok {
				return nil, fmt.Errorf("policy column %d is not text (got %T)", i, v)
			}
			policy[i] = text
		}
		policies = append(policies, policy)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate policy rows: %w", err)
	}

	return policies, nil
}

// DatabaseEnforcer builds a fresh casbin enforcer for every enforcement call
// from the policy rows currently in the store, so policy changes take effect
// on the next request without a reload step. Default policies are prepended
// before the stored ones.
type DatabaseEnforcer struct {
	modelText string
	store     PolicyStore
	defaults  [][]string
}

// NewDatabaseEnforcer creates a DatabaseEnforcer from a casbin model file,
// a policy store and optional default policies. The model is parsed once at
// construction to fail early on invalid input.
func NewDatabaseEnforcer(modelPath string, store PolicyStore, defaultPolicies [][]string) (*DatabaseEnforcer, error) {
	data, err := os.ReadFile(modelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read casbin model: %w", err)
	}

	if _, err := model.NewModelFromString(string(data)); err != nil {
		return nil, fmt.Errorf("invalid casbin model: %w", err)
	}

	return &DatabaseEnforcer{
		modelText: string(data),
		store:     store,
		defaults:  defaultPolicies,
	}, nil
}

// Enforce implements guard.Enforcer.
func (d *DatabaseEnforcer) Enforce(ctx context.Context, identity any, args ...any) (bool, error) {
	policies, err := d.store.LoadPolicies(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to load policies: %w", err)
	}

	m, err := model.NewModelFromString(d.modelText)
	if err != nil {
		return false, fmt.Errorf("invalid casbin model: %w", err)
	}

	e, err := casbin.NewEnforcer(m)
	if err != nil {
		return false, fmt.Errorf("failed to create casbin enforcer: %w", err)
	}

	all := make([][]string, 0, len(d.defaults)+len(policies))
	all = append(all, d.defaults...)
	all = append(all, policies...)
	if len(all) > 0 {
		if _, err := e.AddPolicies(all); err != nil {
			return false, fmt.Errorf("failed to add policies: %w", err)
		}
	}

	rvals := make([]any, 0, len(args)+1)
	rvals = append(rvals, identity)
	rvals = append(rvals, args...)

	allowed, err := e.Enforce(rvals...)
	if err != nil {
		return false, fmt.Errorf("casbin enforce: %w", err)
	}
	return allowed, nil
}
