// Package oauthflow provides the OAuth2 login glue around the permission
// gate: a login redirect, the authorization-code callback that stores tokens
// in cookies, and logout. Token validation itself belongs to the identity
// resolver guarding the routes.
package oauthflow

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"golang.org/x/oauth2"

	"github.com/gatewarden/gatewarden/pkg/httperr"
)

const stateCookie = "oauth_state"

// Config configures the OAuth2 router.
type Config struct {
	// OAuth is the provider configuration used for the code exchange.
	OAuth *oauth2.Config

	// AccessTokenCookie is the cookie the access token is stored in.
	// Defaults to "access_token".
	AccessTokenCookie string

	// RefreshTokenCookie is the cookie the refresh token is stored in.
	// Defaults to "refresh_token".
	RefreshTokenCookie string

	// RedirectAfterLogin is where the callback redirects on success.
	// Defaults to "/".
	RedirectAfterLogin string

	CookieSecure   bool
	CookieSameSite http.SameSite
	CookieDomain   string

	// CookiePath defaults to "/".
	CookiePath string

	// CookieMaxAge in seconds; zero means a session cookie.
	CookieMaxAge int
}

func (c *Config) applyDefaults() {
	if c.AccessTokenCookie == "" {
		c.AccessTokenCookie = "access_token"
	}
	if c.RefreshTokenCookie == "" {
		c.RefreshTokenCookie = "refresh_token"
	}
	if c.RedirectAfterLogin == "" {
		c.RedirectAfterLogin = "/"
	}
	if c.CookiePath == "" {
		c.CookiePath = "/"
	}
	if c.CookieSameSite == 0 {
		c.CookieSameSite = http.SameSiteLaxMode
	}
}

// Router builds a chi router with the OAuth2 endpoints:
//
//   - GET /login: redirect to the provider's authorization URL
//   - GET /callback: exchange the code for tokens and set cookies
//   - POST /logout: clear the token cookies
func Router(cfg Config) (chi.Router, error) {
	if cfg.OAuth == nil {
		return nil, errors.New("oauth2 configuration is required")
	}
	cfg.applyDefaults()

	r := chi.NewRouter()
	r.Get("/login", loginHandler(cfg))
	r.Get("/callback", callbackHandler(cfg))
	r.Post("/logout", logoutHandler(cfg))
	return r, nil
}

func loginHandler(cfg Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state, err := newState()
		if err != nil {
			slog.Error("Failed to generate OAuth state", "error", err)
			httperr.Write(w, httperr.New(http.StatusInternalServerError, "internal", "failed to start login"))
			return
		}

		http.SetCookie(w, &http.Cookie{
			Name:     stateCookie,
			Value:    state,
			Path:     cfg.CookiePath,
			MaxAge:   300,
			HttpOnly: true,
			Secure:   cfg.CookieSecure,
			SameSite: cfg.CookieSameSite,
		})
		http.Redirect(w, r, cfg.OAuth.AuthCodeURL(state), http.StatusFound)
	}
}

func callbackHandler(cfg Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := r.URL.Query().Get("code")
		if code == "" {
			httperr.Write(w, httperr.New(http.StatusBadRequest, "invalid_request", "missing code parameter"))
			return
		}

		// Verify state when a login from this service started the flow.
		if cookie, err := r.Cookie(stateCookie); err == nil {
			if cookie.Value != r.URL.Query().Get("state") {
				httperr.Write(w, httperr.New(http.StatusBadRequest, "invalid_request", "state mismatch"))
				return
			}
			clearCookie(w, cfg, stateCookie)
		}

		token, err := cfg.OAuth.Exchange(r.Context(), code)
		if err != nil {
			slog.Warn("OAuth token exchange failed", "error", err)
			httperr.Write(w, httperr.Unauthorized("token exchange failed"))
			return
		}
		if token.AccessToken == "" || token.RefreshToken == "" {
			httperr.Write(w, httperr.Unauthorized("provider returned incomplete tokens"))
			return
		}

		setCookie(w, cfg, cfg.AccessTokenCookie, token.AccessToken)
		setCookie(w, cfg, cfg.RefreshTokenCookie, token.RefreshToken)
		http.Redirect(w, r, cfg.RedirectAfterLogin, http.StatusFound)
	}
}

func logoutHandler(cfg Config) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		clearCookie(w, cfg, cfg.AccessTokenCookie)
		clearCookie(w, cfg, cfg.RefreshTokenCookie)
		w.WriteHeader(http.StatusNoContent)
	}
}

func setCookie(w http.ResponseWriter, cfg Config, name, value string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     cfg.CookiePath,
		Domain:   cfg.CookieDomain,
		MaxAge:   cfg.CookieMaxAge,
		HttpOnly: true,
		Secure:   cfg.CookieSecure,
		SameSite: cfg.CookieSameSite,
	})
}

func clearCookie(w http.ResponseWriter, cfg Config, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     cfg.CookiePath,
		Domain:   cfg.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   cfg.CookieSecure,
		SameSite: cfg.CookieSameSite,
	})
}

func newState() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
