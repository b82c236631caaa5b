package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/oauth2"

	"github.com/gatewarden/gatewarden/pkg/auth"
	"github.com/gatewarden/gatewarden/pkg/authz"
	"github.com/gatewarden/gatewarden/pkg/config"
	"github.com/gatewarden/gatewarden/pkg/guard"
	"github.com/gatewarden/gatewarden/pkg/httperr"
	"github.com/gatewarden/gatewarden/pkg/oauthflow"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the reference server",
	Long: `Start the reference server demonstrating the permission gate.

The server requires a configuration file (--config) that specifies:
- How the caller identity is resolved (anonymous or JWT)
- Which policy backend enforces decisions (casbin file, casbin with
  PostgreSQL-stored policies, Cedar, or OpenFGA)
- Listener settings

See examples/ directory for sample configurations.`,
	RunE: runServe,
}

const (
	defaultGracefulTimeout = 30 * time.Second
	serverReadTimeout      = 10 * time.Second
	serverWriteTimeout     = 15 * time.Second
	serverIdleTimeout      = 60 * time.Second
)

func init() {
	serveCmd.Flags().String("config", "", "Path to configuration file (YAML format, required)")

	if err := viper.BindPFlag("config", serveCmd.Flags().Lookup("config")); err != nil {
		slog.Error("Failed to bind config flag", "error", err)
	}

	if err := serveCmd.MarkFlagRequired("config"); err != nil {
		slog.Error("Failed to mark config flag as required", "error", err)
	}
}

func runServe(_ *cobra.Command, _ []string) error {
	ctx := context.Background()

	if viper.GetBool("debug") {
		slog.SetLogLoggerLevel(slog.LevelDebug)
	}

	cfg, err := config.LoadConfig(config.WithConfigPath(viper.GetString("config")))
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	slog.Info("Loaded configuration",
		"auth_mode", cfg.Auth.Mode,
		"authz_backend", cfg.Authz.Backend,
	)

	resolver, err := buildIdentityResolver(cfg)
	if err != nil {
		return fmt.Errorf("failed to build identity resolver: %w", err)
	}

	enforcer, cleanup, err := buildEnforcer(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to build enforcer: %w", err)
	}
	if cleanup != nil {
		defer cleanup()
	}

	g := guard.New(resolver, enforcer, forbiddenError)

	authRoutes, err := buildAuthRoutes(cfg)
	if err != nil {
		return fmt.Errorf("failed to build auth routes: %w", err)
	}

	server := &http.Server{
		Addr:         cfg.GetAddress(),
		Handler:      newRouter(g, authRoutes),
		ReadTimeout:  serverReadTimeout,
		WriteTimeout: serverWriteTimeout,
		IdleTimeout:  serverIdleTimeout,
	}

	go func() {
		slog.Info("Server listening", "address", cfg.GetAddress())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Failed to start server", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultGracefulTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		return err
	}

	slog.Info("Server shutdown complete")
	return nil
}

// buildIdentityResolver creates the identity resolver from config. In JWT
// mode the identity handed to enforcement is the sub claim so that string
// matching in policy backends works out of the box.
func buildIdentityResolver(cfg *config.Config) (guard.IdentityResolver, error) {
	switch cfg.Auth.Mode {
	case "", config.AuthModeAnonymous:
		return auth.StaticResolver{Identity: "anonymous"}, nil
	case config.AuthModeJWT:
		secret, err := cfg.Auth.JWT.GetSecret()
		if err != nil {
			return nil, err
		}
		return auth.NewJWTResolver(auth.JWTResolverConfig{
			Key:        []byte(secret),
			Algorithms: cfg.Auth.JWT.Algorithms,
			CookieName: cfg.Auth.JWT.CookieName,
			Issuer:     cfg.Auth.JWT.Issuer,
			Audience:   cfg.Auth.JWT.Audience,
			Map: func(claims jwt.MapClaims) (any, error) {
				sub, err := claims.GetSubject()
				if err != nil || sub == "" {
					return nil, httperr.Unauthorized("token has no subject")
				}
				return sub, nil
			},
		})
	default:
		return nil, fmt.Errorf("unsupported auth mode: %s", cfg.Auth.Mode)
	}
}

// buildAuthRoutes creates the OAuth2 login router when the oauth section is
// configured. Returns nil when the server runs without login endpoints.
func buildAuthRoutes(cfg *config.Config) (chi.Router, error) {
	oauthCfg := cfg.Auth.OAuth
	if oauthCfg == nil {
		return nil, nil
	}

	clientSecret, err := oauthCfg.GetClientSecret()
	if err != nil {
		return nil, err
	}

	cookieName := ""
	if cfg.Auth.JWT != nil {
		cookieName = cfg.Auth.JWT.CookieName
	}

	return oauthflow.Router(oauthflow.Config{
		OAuth: &oauth2.Config{
			ClientID:     oauthCfg.ClientID,
			ClientSecret: clientSecret,
			Endpoint: oauth2.Endpoint{
				AuthURL:  oauthCfg.AuthURL,
				TokenURL: oauthCfg.TokenURL,
			},
			RedirectURL: oauthCfg.RedirectURL,
			Scopes:      oauthCfg.Scopes,
		},
		AccessTokenCookie:  cookieName,
		RedirectAfterLogin: oauthCfg.RedirectAfterLogin,
		CookieSecure:       oauthCfg.CookieSecure,
	})
}

// buildEnforcer creates the policy backend from config. The returned cleanup
// releases backend resources (e.g. the database pool) and may be nil.
func buildEnforcer(ctx context.Context, cfg *config.Config) (guard.Enforcer, func(), error) {
	switch cfg.Authz.Backend {
	case config.BackendCasbinFile:
		e, err := authz.NewCasbinEnforcerFromFiles(cfg.Authz.Casbin.ModelPath, cfg.Authz.Casbin.PolicyPath)
		return e, nil, err

	case config.BackendCasbinPostgres:
		connString, err := cfg.Authz.Postgres.GetConnectionString()
		if err != nil {
			return nil, nil, err
		}
		pool, err := pgxpool.New(ctx, connString)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create database pool: %w", err)
		}
		store := authz.NewPostgresPolicyStore(pool, cfg.Authz.Postgres.PolicyQuery)
		e, err := authz.NewDatabaseEnforcer(cfg.Authz.Postgres.ModelPath, store, nil)
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		return e, pool.Close, nil

	case config.BackendCedar:
		policyBytes, err := os.ReadFile(cfg.Authz.Cedar.PolicyPath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read Cedar policies: %w", err)
		}
		e, err := authz.NewCedarEnforcer(authz.CedarConfig{
			PolicyBytes: policyBytes,
			Namespace:   cfg.Authz.Cedar.Namespace,
		})
		return e, nil, err

	case config.BackendOpenFGA:
		e, err := authz.NewOpenFGAEnforcer(authz.OpenFGAConfig{
			APIURL:  cfg.Authz.OpenFGA.APIURL,
			StoreID: cfg.Authz.OpenFGA.StoreID,
			ModelID: cfg.Authz.OpenFGA.ModelID,
		})
		return e, nil, err

	default:
		return nil, nil, fmt.Errorf("unsupported authz backend: %s", cfg.Authz.Backend)
	}
}

// forbiddenError shapes the denial error for the reference server. The gate
// hands it the resolved identity and enforcement arguments.
func forbiddenError(identity any, args ...any) error {
	return httperr.Forbidden("You do not have permission to perform this action.").
		WithDetails(map[string]any{
			"subject": fmt.Sprint(identity),
			"args":    args,
		})
}
