// Package authz provides policy-enforcement backends for the permission
// gate. Each backend adapts an external policy engine to the gate's Enforcer
// contract: the identity in position zero followed by the caller-declared
// arguments, a boolean decision out.
package authz

import (
	"context"
	"fmt"

	"github.com/casbin/casbin/v2"
)

// CasbinEnforcer adapts a casbin enforcer. Arguments are passed to casbin
// positionally, so the declared argument order must match the request
// definition of the casbin model (e.g. sub, obj, act).
type CasbinEnforcer struct {
	enforcer casbin.IEnforcer
}

// NewCasbinEnforcer wraps an existing casbin enforcer.
func NewCasbinEnforcer(e casbin.IEnforcer) *CasbinEnforcer {
	return &CasbinEnforcer{enforcer: e}
}

// NewCasbinEnforcerFromFiles creates an enforcer from a casbin model file and
// a CSV policy file.
func NewCasbinEnforcerFromFiles(modelPath, policyPath string) (*CasbinEnforcer, error) {
	e, err := casbin.NewEnforcer(modelPath, policyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create casbin enforcer: %w", err)
	}
	return &CasbinEnforcer{enforcer: e}, nil
}

// Enforce implements guard.Enforcer.
func (c *CasbinEnforcer) Enforce(ctx context.Context, identity any, args ...any) (bool, error) {
	_ = ctx // casbin evaluates in-process

	rvals := make([]any, 0, len(args)+1)
	rvals = append(rvals, identity)
	rvals = append(rvals, args...)

	allowed, err := c.enforcer.Enforce(rvals...)
	if err != nil {
		return false, fmt.Errorf("casbin enforce: %w", err)
	}
	return allowed, nil
}
