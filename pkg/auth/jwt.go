package auth

import (
	"errors"
	"net/http"

	"github.com/golang-jwt/jwt/v5"

	"github.com/gatewarden/gatewarden/pkg/httperr"
)

// JWTResolverConfig configures a JWTResolver.
type JWTResolverConfig struct {
	// Key is the verification key handed to the JWT parser. For HMAC
	// algorithms this is a []byte shared secret; for RSA/ECDSA it is the
	// public key.
	Key any

	// Algorithms is the allowlist of accepted signing methods.
	// Defaults to HS256.
	Algorithms []string

	// CookieName enables cookie-based token extraction. When set, the
	// cookie takes priority over the Authorization header.
	CookieName string

	// Issuer, when set, is verified against the iss claim.
	Issuer string

	// Audience, when set, is verified against the aud claim.
	Audience string

	// Map converts validated claims into the identity handed to the
	// enforcer. Nil means the raw jwt.MapClaims are the identity.
	Map func(claims jwt.MapClaims) (any, error)

	// UnauthorizedError produces the error for a missing credential.
	// Defaults to an httperr 401.
	UnauthorizedError func() error

	// InvalidTokenError produces the error for a credential that fails
	// validation. Defaults to an httperr 401 carrying the reason.
	InvalidTokenError func(reason string) error
}

// JWTResolver resolves the caller identity from a JWT carried in a cookie or
// in the Authorization header.
type JWTResolver struct {
	key          any
	algorithms   []string
	cookieName   string
	parserOpts   []jwt.ParserOption
	mapClaims    func(claims jwt.MapClaims) (any, error)
	unauthorized func() error
	invalidToken func(reason string) error
}

// NewJWTResolver creates a JWTResolver from cfg.
func NewJWTResolver(cfg JWTResolverConfig) (*JWTResolver, error) {
	if cfg.Key == nil {
		return nil, errors.New("verification key is required")
	}

	algorithms := cfg.Algorithms
	if len(algorithms) == 0 {
		algorithms = []string{"HS256"}
	}

	parserOpts := []jwt.ParserOption{jwt.WithValidMethods(algorithms)}
	if cfg.Issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		parserOpts = append(parserOpts, jwt.WithAudience(cfg.Audience))
	}

	unauthorized := cfg.UnauthorizedError
	if unauthorized == nil {
		unauthorized = func() error {
			return httperr.Unauthorized("not authenticated")
		}
	}

	invalidToken := cfg.InvalidTokenError
	if invalidToken == nil {
		invalidToken = func(reason string) error {
			return httperr.Unauthorized("invalid token: " + reason)
		}
	}

	return &JWTResolver{
		key:          cfg.Key,
		algorithms:   algorithms,
		cookieName:   cfg.CookieName,
		parserOpts:   parserOpts,
		mapClaims:    cfg.Map,
		unauthorized: unauthorized,
		invalidToken: invalidToken,
	}, nil
}

// ResolveIdentity extracts and validates the JWT, returning the mapped claims
// as the caller identity.
func (j *JWTResolver) ResolveIdentity(r *http.Request) (any, error) {
	token := j.token(r)
	if token == "" {
		return nil, j.unauthorized()
	}

	parsed, err := jwt.Parse(token, func(_ *jwt.Token) (any, error) {
		return j.key, nil
	}, j.parserOpts...)
	if err != nil {
		return nil, j.invalidToken(err.Error())
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, j.invalidToken("unexpected claims type")
	}

	if j.mapClaims != nil {
		return j.mapClaims(claims)
	}
	return claims, nil
}

// token returns the raw token from the configured cookie or, failing that,
// the Authorization header. Empty means no credential was presented.
func (j *JWTResolver) token(r *http.Request) string {
	if j.cookieName != "" {
		if cookie, err := r.Cookie(j.cookieName); err == nil && cookie.Value != "" {
			return cookie.Value
		}
	}

	token, err := ExtractBearerToken(r)
	if err != nil {
		return ""
	}
	return token
}
