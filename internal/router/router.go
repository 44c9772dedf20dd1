package router

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"scribex-api/internal/config"
	"scribex-api/internal/handler"
	"scribex-api/internal/metrics"
	"scribex-api/internal/middleware"
	"scribex-api/internal/model"
)

type Handlers struct {
	Auth    *handler.AuthHandler
	Account *handler.AccountHandler
	Audit   *handler.AuditHandler
}

// HealthChecker reports whether a dependency is reachable.
type HealthChecker interface {
	Health(ctx context.Context) error
}

func New(cfg *config.Config, authMiddleware *middleware.AuthMiddleware, h Handlers, health HealthChecker) http.Handler {
	r := chi.NewRouter()
	rateLimitMiddleware := middleware.NewRateLimitMiddleware(cfg.RateLimitRPM, cfg.AuthRateLimitRPM)

	r.Use(middleware.Recovery)
	r.Use(middleware.Logging)
	r.Use(middleware.Metrics)
	r.Use(middleware.CORS(cfg.CORSOrigins))
	r.Use(middleware.SecurityHeaders)
	r.Use(rateLimitMiddleware.Handler)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if health != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := health.Health(ctx); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte("database unavailable"))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	requireAdmin := authMiddleware.RequireRoles(model.RoleAdmin)

	r.Route("/api/v1", func(api chi.Router) {
		api.Group(func(api chi.Router) {
			api.Use(middleware.Timeout(cfg.RequestTimeout))

			api.Route("/auth", func(auth chi.Router) {
				auth.Post("/login", h.Auth.Login)
				auth.Post("/refresh", h.Auth.Refresh)
				auth.With(authMiddleware.RequireAuth).Post("/logout", h.Auth.Logout)
				auth.With(authMiddleware.RequireAuth).Get("/me", h.Auth.Me)
				auth.Post("/register/{role}", h.Auth.Register)
				auth.Post("/password-reset", h.Auth.RequestPasswordReset)
				auth.Post("/password-reset/confirm", h.Auth.ConfirmPasswordReset)
			})

			api.Route("/users", func(users chi.Router) {
				users.Use(authMiddleware.RequireAuth)

				users.With(requireAdmin).Get("/", h.Account.List)
				users.Post("/{id}", h.Account.Post)
				users.Get("/{id}", h.Account.Get)
				users.Put("/{id}", h.Account.Update)
				users.Patch("/{id}", h.Account.Update)
				users.With(requireAdmin).Delete("/{id}", h.Account.Delete)
				users.Get("/{id}/students", h.Account.Students)
				users.Get("/{id}/guardians", h.Account.Guardians)
				users.With(requireAdmin).Put("/{id}/students/{studentID}", h.Account.LinkStudent)
				users.With(requireAdmin).Delete("/{id}/students/{studentID}", h.Account.UnlinkStudent)
			})

			api.With(authMiddleware.RequireAuth, requireAdmin).Get("/audit", h.Audit.List)
		})

		// Long lived, so it sits outside the request timeout.
		api.With(authMiddleware.RequireAuth, requireAdmin).Get("/audit/stream", h.Audit.Stream)
	})

	return r
}
