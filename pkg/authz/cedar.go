package authz

import (
	"context"
	"fmt"
	"log/slog"

	cedar "github.com/cedar-policy/cedar-go"
)

const defaultCedarNamespace = "Gatewarden"

// CedarConfig configures a CedarEnforcer.
type CedarConfig struct {
	// PolicyBytes is the Cedar policy source.
	PolicyBytes []byte

	// Namespace is the Cedar entity namespace. Defaults to "Gatewarden".
	Namespace string

	// PrincipalMapper converts the resolved identity into the principal
	// entity ID. Defaults to fmt.Sprint.
	PrincipalMapper func(identity any) string
}

// CedarEnforcer evaluates decisions against a Cedar policy set. It expects
// exactly two enforcement arguments: the resource identifier and the action
// name, in that order.
type CedarEnforcer struct {
	policySet *cedar.PolicySet
	namespace string
	principal func(identity any) string
}

// NewCedarEnforcer parses the Cedar policies and creates an enforcer.
func NewCedarEnforcer(cfg CedarConfig) (*CedarEnforcer, error) {
	ps, err := cedar.NewPolicySetFromBytes("policies.cedar", cfg.PolicyBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Cedar policies: %w", err)
	}

	namespace := cfg.Namespace
	if namespace == "" {
		namespace = defaultCedarNamespace
	}

	principal := cfg.PrincipalMapper
	if principal == nil {
		principal = func(identity any) string {
			return fmt.Sprint(identity)
		}
	}

	return &CedarEnforcer{
		policySet: ps,
		namespace: namespace,
		principal: principal,
	}, nil
}

// Enforce implements guard.Enforcer.
func (c *CedarEnforcer) Enforce(ctx context.Context, identity any, args ...any) (bool, error) {
	_ = ctx // cedar evaluates in-process

	if len(args) != 2 {
		return false, fmt.Errorf("cedar enforcement expects (resource, action) arguments, got %d", len(args))
	}
	resource := fmt.Sprint(args[0])
	action := fmt.Sprint(args[1])

	principalUID := cedar.NewEntityUID(cedar.EntityType(c.namespace+"::User"), cedar.String(c.principal(identity)))
	actionUID := cedar.NewEntityUID(cedar.EntityType(c.namespace+"::Action"), cedar.String(action))
	resourceUID := cedar.NewEntityUID(cedar.EntityType(c.namespace+"::Resource"), cedar.String(resource))

	entities := cedar.EntityMap{
		principalUID: cedar.Entity{UID: principalUID},
	}

	req := cedar.Request{
		Principal: principalUID,
		Action:    actionUID,
		Resource:  resourceUID,
		Context:   cedar.NewRecord(cedar.RecordMap{}),
	}

	decision, diagnostic := cedar.Authorize(c.policySet, entities, req)

	slog.Debug("Cedar decision",
		"decision", decision,
		"action", action,
		"resource", resource,
		"reasons", diagnostic.Reasons,
	)

	return decision == cedar.Allow, nil
}
