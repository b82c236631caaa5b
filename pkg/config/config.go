// Package config provides configuration loading for the gatewarden reference
// server.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Auth modes.
const (
	AuthModeAnonymous = "anonymous"
	AuthModeJWT       = "jwt"
)

// Authorization backends.
const (
	BackendCasbinFile     = "casbin-file"
	BackendCasbinPostgres = "casbin-postgres"
	BackendCedar          = "cedar"
	BackendOpenFGA        = "openfga"
)

// Option defines the interface for configuration options.
type Option func(*loaderConfig) error

type loaderConfig struct {
	path string
}

// WithConfigPath loads configuration from a YAML file.
func WithConfigPath(path string) Option {
	return func(cfg *loaderConfig) error {
		if path == "" {
			return fmt.Errorf("path is required")
		}

		// Resolve symlinks to prevent symlink attacks.
		// Note that this calls filepath.Clean internally.
		realPath, err := filepath.EvalSymlinks(path)
		if err != nil {
			return fmt.Errorf("failed to evaluate symlinks: %w", err)
		}

		if !filepath.IsAbs(realPath) {
			if !filepath.IsLocal(realPath) {
				return fmt.Errorf("path is not local or contains invalid traversal: %s", path)
			}
		}

		cfg.path = realPath
		return nil
	}
}

// Config represents the root configuration structure.
type Config struct {
	Server ServerConfig `yaml:"server"`
	Auth   AuthConfig   `yaml:"auth"`
	Authz  AuthzConfig  `yaml:"authz"`
}

// ServerConfig defines HTTP listener settings.
type ServerConfig struct {
	// Address is the listen address, e.g. ":8080".
	Address string `yaml:"address"`
}

// AuthConfig selects how the caller identity is resolved.
type AuthConfig struct {
	// Mode is "anonymous" or "jwt". Empty defaults to anonymous.
	Mode string `yaml:"mode,omitempty"`

	JWT *JWTConfig `yaml:"jwt,omitempty"`

	// OAuth enables the optional login/callback/logout endpoints. Tokens
	// obtained through them are validated by the JWT resolver on each
	// request, so this usually pairs with jwt mode and a cookieName.
	OAuth *OAuthConfig `yaml:"oauth,omitempty"`
}

// JWTConfig defines JWT validation settings.
type JWTConfig struct {
	// SecretFile is the path to a file containing the HMAC shared secret.
	// This is the recommended approach for production deployments.
	SecretFile string `yaml:"secretFile,omitempty"`

	// Algorithms is the allowlist of accepted signing methods.
	Algorithms []string `yaml:"algorithms,omitempty"`

	// CookieName enables cookie-based token extraction in addition to
	// the Authorization header.
	CookieName string `yaml:"cookieName,omitempty"`

	Issuer   string `yaml:"issuer,omitempty"`
	Audience string `yaml:"audience,omitempty"`
}

// GetSecret returns the JWT shared secret using the following priority:
// 1. Read from SecretFile if specified
// 2. Read from the GATEWARDEN_JWT_SECRET environment variable
//
// The secret from file has leading/trailing whitespace trimmed.
func (j *JWTConfig) GetSecret() (string, error) {
	if j.SecretFile != "" {
		cleanPath := filepath.Clean(j.SecretFile)

		data, err := os.ReadFile(cleanPath)
		if err != nil {
			return "", fmt.Errorf("failed to read secret from file %s: %w", j.SecretFile, err)
		}
		return strings.TrimSpace(string(data)), nil
	}

	if envSecret := os.Getenv("GATEWARDEN_JWT_SECRET"); envSecret != "" {
		return envSecret, nil
	}

	return "", fmt.Errorf(
		"no JWT secret configured: set secretFile or GATEWARDEN_JWT_SECRET environment variable",
	)
}

// OAuthConfig defines the OAuth2 provider used by the login endpoints.
type OAuthConfig struct {
	ClientID string `yaml:"clientId"`

	// ClientSecretFile is the path to a file containing the client secret.
	ClientSecretFile string `yaml:"clientSecretFile,omitempty"`

	AuthURL  string `yaml:"authUrl"`
	TokenURL string `yaml:"tokenUrl"`

	// RedirectURL is this server's callback URL registered with the
	// provider, e.g. "https://example.com/auth/callback".
	RedirectURL string `yaml:"redirectUrl"`

	Scopes []string `yaml:"scopes,omitempty"`

	// RedirectAfterLogin is where the callback sends the browser once the
	// token cookies are set. Defaults to "/".
	RedirectAfterLogin string `yaml:"redirectAfterLogin,omitempty"`

	CookieSecure bool `yaml:"cookieSecure,omitempty"`
}

// GetClientSecret returns the OAuth2 client secret using the following priority:
// 1. Read from ClientSecretFile if specified
// 2. Read from the GATEWARDEN_OAUTH_CLIENT_SECRET environment variable
func (o *OAuthConfig) GetClientSecret() (string, error) {
	if o.ClientSecretFile != "" {
		cleanPath := filepath.Clean(o.ClientSecretFile)

		data, err := os.ReadFile(cleanPath)
		if err != nil {
			return "", fmt.Errorf("failed to read client secret from file %s: %w", o.ClientSecretFile, err)
		}
		return strings.TrimSpace(string(data)), nil
	}

	if envSecret := os.Getenv("GATEWARDEN_OAUTH_CLIENT_SECRET"); envSecret != "" {
		return envSecret, nil
	}

	return "", fmt.Errorf(
		"no OAuth client secret configured: set clientSecretFile or GATEWARDEN_OAUTH_CLIENT_SECRET environment variable",
	)
}

// AuthzConfig selects the policy-enforcement backend.
type AuthzConfig struct {
	// Backend is one of casbin-file, casbin-postgres, cedar, openfga.
	Backend string `yaml:"backend"`

	Casbin   *CasbinConfig   `yaml:"casbin,omitempty"`
	Postgres *PostgresConfig `yaml:"postgres,omitempty"`
	Cedar    *CedarConfig    `yaml:"cedar,omitempty"`
	OpenFGA  *OpenFGAConfig  `yaml:"openfga,omitempty"`
}

// CasbinConfig defines file-backed casbin settings.
type CasbinConfig struct {
	ModelPath  string `yaml:"modelPath"`
	PolicyPath string `yaml:"policyPath"`
}

// PostgresConfig defines settings for the postgres-backed casbin enforcer.
type PostgresConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	User string `yaml:"user"`

	// PasswordFile is the path to a file containing the database password.
	// The file should contain only the password with optional trailing
	// whitespace.
	PasswordFile string `yaml:"passwordFile,omitempty"`

	Database string `yaml:"database"`

	// SSLMode is the SSL mode for the connection (disable, require,
	// verify-ca, verify-full). Defaults to require.
	SSLMode string `yaml:"sslMode,omitempty"`

	// ModelPath is the casbin model file used with the stored policies.
	ModelPath string `yaml:"modelPath"`

	// PolicyQuery selects the policy rows, one rule per row with only
	// text columns, e.g. "SELECT subject, object, action FROM policies".
	PolicyQuery string `yaml:"policyQuery"`
}

// GetPassword returns the database password using the following priority:
// 1. Read from PasswordFile if specified
// 2. Read from the GATEWARDEN_DATABASE_PASSWORD environment variable
//
// The password from file has leading/trailing whitespace trimmed.
func (p *PostgresConfig) GetPassword() (string, error) {
	if p.PasswordFile != "" {
		cleanPath := filepath.Clean(p.PasswordFile)

		data, err := os.ReadFile(cleanPath)
		if err != nil {
			return "", fmt.Errorf("failed to read password from file %s: %w", p.PasswordFile, err)
		}
		return strings.TrimSpace(string(data)), nil
	}

	if envPassword := os.Getenv("GATEWARDEN_DATABASE_PASSWORD"); envPassword != "" {
		return envPassword, nil
	}

	return "", fmt.Errorf(
		"no database password configured: set passwordFile or GATEWARDEN_DATABASE_PASSWORD environment variable",
	)
}

// GetConnectionString builds a PostgreSQL connection string. The password is
// URL-escaped to handle special characters safely.
func (p *PostgresConfig) GetConnectionString() (string, error) {
	password, err := p.GetPassword()
	if err != nil {
		return "", err
	}

	sslMode := p.SSLMode
	if sslMode == "" {
		sslMode = "require"
	}

	connString := fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User,
		url.QueryEscape(password),
		p.Host,
		p.Port,
		p.Database,
		sslMode,
	)

	return connString, nil
}

// CedarConfig defines Cedar policy settings.
type CedarConfig struct {
	PolicyPath string `yaml:"policyPath"`
	Namespace  string `yaml:"namespace,omitempty"`
}

// OpenFGAConfig defines remote OpenFGA settings.
type OpenFGAConfig struct {
	APIURL  string `yaml:"apiUrl"`
	StoreID string `yaml:"storeId"`
	ModelID string `yaml:"modelId,omitempty"`
}

// LoadConfig loads and parses configuration from a YAML file.
func LoadConfig(opts ...Option) (*Config, error) {
	loaderCfg := &loaderConfig{}
	for _, opt := range opts {
		if err := opt(loaderCfg); err != nil {
			return nil, err
		}
	}

	if loaderCfg.path == "" {
		return nil, fmt.Errorf("path is required")
	}

	data, err := os.ReadFile(loaderCfg.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// GetAddress returns the listen address, using ":8080" if not specified.
func (c *Config) GetAddress() string {
	if c.Server.Address == "" {
		return ":8080"
	}
	return c.Server.Address
}

// Validate checks the configuration for missing or contradictory settings.
func (c *Config) Validate() error {
	if err := c.validateAuth(); err != nil {
		return err
	}
	return c.validateAuthz()
}

func (c *Config) validateAuth() error {
	switch c.Auth.Mode {
	case "", AuthModeAnonymous:
	case AuthModeJWT:
		if c.Auth.JWT == nil {
			return fmt.Errorf("auth: jwt configuration is required for jwt mode")
		}
	default:
		return fmt.Errorf("auth: unsupported mode %q", c.Auth.Mode)
	}

	if oauth := c.Auth.OAuth; oauth != nil {
		if oauth.ClientID == "" || oauth.AuthURL == "" || oauth.TokenURL == "" || oauth.RedirectURL == "" {
			return fmt.Errorf("auth: oauth.clientId, oauth.authUrl, oauth.tokenUrl and oauth.redirectUrl are required")
		}
	}
	return nil
}

func (c *Config) validateAuthz() error {
	switch c.Authz.Backend {
	case BackendCasbinFile:
		if c.Authz.Casbin == nil {
			return fmt.Errorf("authz: casbin configuration is required for %s", BackendCasbinFile)
		}
		if c.Authz.Casbin.ModelPath == "" || c.Authz.Casbin.PolicyPath == "" {
			return fmt.Errorf("authz: casbin.modelPath and casbin.policyPath are required")
		}
	case BackendCasbinPostgres:
		if c.Authz.Postgres == nil {
			return fmt.Errorf("authz: postgres configuration is required for %s", BackendCasbinPostgres)
		}
		if c.Authz.Postgres.Host == "" || c.Authz.Postgres.Database == "" {
			return fmt.Errorf("authz: postgres.host and postgres.database are required")
		}
		if c.Authz.Postgres.ModelPath == "" || c.Authz.Postgres.PolicyQuery == "" {
			return fmt.Errorf("authz: postgres.modelPath and postgres.policyQuery are required")
		}
	case BackendCedar:
		if c.Authz.Cedar == nil || c.Authz.Cedar.PolicyPath == "" {
			return fmt.Errorf("authz: cedar.policyPath is required for %s", BackendCedar)
		}
	case BackendOpenFGA:
		if c.Authz.OpenFGA == nil {
			return fmt.Errorf("authz: openfga configuration is required for %s", BackendOpenFGA)
		}
		if c.Authz.OpenFGA.APIURL == "" || c.Authz.OpenFGA.StoreID == "" {
			return fmt.Errorf("authz: openfga.apiUrl and openfga.storeId are required")
		}
	case "":
		return fmt.Errorf("authz: backend is required")
	default:
		return fmt.Errorf("authz: unsupported backend %q", c.Authz.Backend)
	}
	return nil
}
