package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/voxdesk/voxdesk/console-plane/internal/api/handlers"
	"github.com/voxdesk/voxdesk/console-plane/internal/api/middleware"
	"github.com/voxdesk/voxdesk/console-plane/internal/config"
	"github.com/voxdesk/voxdesk/console-plane/internal/identity"
)

// NewRouter creates the HTTP router with all API routes.
func NewRouter(cfg *config.Config, h *handlers.Handlers, ident *identity.Service) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Compress(5))
	r.Use(middleware.Logger)
	r.Use(middleware.Metrics)
	r.Use(middleware.Telemetry)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id", "X-Trace-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(middleware.NewSessionAuth(ident).Handler)

	// Health & info
	r.Get("/health", healthHandler)
	r.Get("/version", versionHandler(cfg))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/signup", h.SignUp)
			r.Post("/signin", h.SignIn)
			r.Post("/signout", h.SignOut)
			r.Post("/password-reset", h.PasswordReset)
		})

		r.Get("/me", h.Me)
		r.Get("/users", h.ListUsers)

		r.Post("/impersonate/{userId}", h.Impersonate)
		r.Delete("/impersonate", h.StopImpersonation)

		r.Route("/agents", func(r chi.Router) {
			r.Get("/", h.ListAgents)
			r.Post("/", h.CreateAgent)
			r.Route("/{agentId}", func(r chi.Router) {
				r.Get("/", h.GetAgent)
				r.Patch("/", h.PatchAgent)
				r.Delete("/", h.DeleteAgent)
				r.Get("/detail", h.GetAgentDetail)
				r.Get("/tool-variants", h.ListToolVariants)
			})
		})

		r.Post("/tools/build", h.BuildTool)

		r.Route("/voices", func(r chi.Router) {
			r.Get("/", h.ListVoices)
			r.Get("/{voiceId}", h.GetVoice)
		})

		r.Get("/knowledge-base", h.ListKnowledgeBase)

		r.Route("/secrets", func(r chi.Router) {
			r.Post("/", h.CreateSecret)
			r.Patch("/{secretId}", h.UpdateSecret)
			r.Delete("/{secretId}", h.DeleteSecret)
		})
	})

	return r
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "healthy",
		"service": "voxdesk-console-plane",
	})
}

func versionHandler(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{
			"version": cfg.Version,
			"service": "voxdesk-console-plane",
		})
	}
}
