package app

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/gatewarden/gatewarden/pkg/guard"
)

// newRouter builds the demo API. Routes exercise the three gate shapes:
// authentication only, static enforcement arguments, and a dynamic Subject
// resolved from the URL.
func newRouter(g *guard.Guard, authRoutes chi.Router) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if authRoutes != nil {
		r.Mount("/auth", authRoutes)
	}

	r.Group(func(r chi.Router) {
		r.Use(g.RequireAuthentication())
		r.Get("/me", handleMe)
	})

	r.Group(func(r chi.Router) {
		r.Use(g.RequirePermission("articles", "read"))
		r.Get("/articles", handleListArticles)
	})

	r.Group(func(r chi.Router) {
		r.Use(g.RequirePermission("articles", "write"))
		r.Post("/articles", handleCreateArticle)
	})

	// Dynamic subject: the board name comes from the URL per request.
	r.Route("/boards/{board}", func(r chi.Router) {
		board := guard.Subject{
			Resolver: guard.ValueResolverFunc(func(req *http.Request) (any, error) {
				return chi.URLParam(req, "board"), nil
			}),
		}
		r.With(g.RequirePermission(board, "read")).Get("/", handleGetBoard)
	})

	return r
}

func handleMe(w http.ResponseWriter, r *http.Request) {
	identity, _ := guard.IdentityFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{"identity": identity})
}

func handleListArticles(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"articles": []string{"welcome"}})
}

func handleCreateArticle(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusCreated, map[string]string{"status": "created"})
}

func handleGetBoard(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"board": chi.URLParam(r, "board")})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}
