// Package auth provides identity resolvers for the permission gate.
package auth

import (
	"errors"
	"net/http"
	"strings"
)

const bearerPrefix = "Bearer "

// ExtractBearerToken extracts the bearer token from the Authorization header
// per RFC 6750. It does not validate the token.
func ExtractBearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", errors.New("authorization header missing")
	}

	if !strings.HasPrefix(header, bearerPrefix) {
		return "", errors.New("authorization header is not a bearer token")
	}

	token := strings.TrimSpace(strings.TrimPrefix(header, bearerPrefix))
	if token == "" {
		return "", errors.New("bearer token is empty")
	}

	return token, nil
}
