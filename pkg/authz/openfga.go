package authz

import (
	"context"
	"fmt"

	fga "github.com/openfga/go-sdk/client"
)

// OpenFGAConfig configures an OpenFGAEnforcer.
type OpenFGAConfig struct {
	// APIURL is the OpenFGA server URL.
	APIURL string

	// StoreID selects the authorization store.
	StoreID string

	// ModelID pins a specific authorization model. Optional but
	// recommended in production.
	ModelID string

	// SubjectMapper converts the resolved identity into the FGA user
	// string (e.g. "user:alice"). Defaults to fmt.Sprint.
	SubjectMapper func(identity any) string
}

// OpenFGAEnforcer delegates decisions to a remote OpenFGA server. It expects
// exactly two enforcement arguments: the object (e.g. "article:drafts") and
// the relation (e.g. "write"), in that order.
type OpenFGAEnforcer struct {
	client  *fga.OpenFgaClient
	subject func(identity any) string
}

// NewOpenFGAEnforcer creates an enforcer backed by a remote OpenFGA server.
func NewOpenFGAEnforcer(cfg OpenFGAConfig) (*OpenFGAEnforcer, error) {
	conf := &fga.ClientConfiguration{
		ApiUrl:  cfg.APIURL,
		StoreId: cfg.StoreID,
	}
	if cfg.ModelID != "" {
		conf.AuthorizationModelId = cfg.ModelID
	}

	client, err := fga.NewSdkClient(conf)
	if err != nil {
		return nil, fmt.Errorf("failed to create OpenFGA client: %w", err)
	}

	subject := cfg.SubjectMapper
	if subject == nil {
		subject = func(identity any) string {
			return fmt.Sprint(identity)
		}
	}

	return &OpenFGAEnforcer{client: client, subject: subject}, nil
}

// Enforce implements guard.Enforcer. The request context carries
// cancellation through to the remote check call.
func (o *OpenFGAEnforcer) Enforce(ctx context.Context, identity any, args ...any) (bool, error) {
	if len(args) != 2 {
		return false, fmt.Errorf("openfga enforcement expects (object, relation) arguments, got %d", len(args))
	}

	body := fga.ClientCheckRequest{
		User:     o.subject(identity),
		Relation: fmt.Sprint(args[1]),
		Object:   fmt.Sprint(args[0]),
	}

	resp, err := o.client.Check(ctx).Body(body).Execute()
	if err != nil {
		return false, fmt.Errorf("openfga check: %w", err)
	}

	return resp.Allowed != nil && *resp.Allowed, nil
}
