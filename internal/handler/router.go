package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/launchlog/launchlog-go/internal/metrics"
	"github.com/launchlog/launchlog-go/internal/middleware"
	"github.com/launchlog/launchlog-go/internal/model"
	"github.com/launchlog/launchlog-go/internal/repository"
	"github.com/launchlog/launchlog-go/internal/service"
)

// RouterConfig carries everything NewRouter wires together.
type RouterConfig struct {
	Auth     *service.AuthService
	UserData *service.UserDataService
	Admin    *service.AdminService
	Tokens   middleware.TokenVerifier
	Health   *repository.Health
	Metrics  *metrics.Metrics
	Logger   *slog.Logger

	CORSOrigins   []string
	AuthRateLimit float64
	AuthBurst     int
}

// NewRouter builds the API router. ctx bounds the background work of the
// middleware stack.
func NewRouter(ctx context.Context, cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	authHandler := NewAuthHandler(cfg.Auth, logger)
	dataHandler := NewUserDataHandler(cfg.UserData, logger)
	adminHandler := NewAdminHandler(cfg.Admin, logger)
	healthHandler := NewHealthHandler(cfg.Health)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.StructuredLogger(logger, cfg.Metrics))
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", healthHandler.HandleHealth)
	r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			if cfg.AuthRateLimit > 0 {
				r.Use(middleware.RateLimit(ctx, cfg.AuthRateLimit, cfg.AuthBurst))
			}
			r.Post("/auth/register", authHandler.HandleRegister)
			r.Post("/auth/login", authHandler.HandleLogin)
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.Authenticate(cfg.Tokens))
			r.Get("/auth/me", authHandler.HandleMe)
			r.Get("/user-data", dataHandler.HandleGet)

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireRole(model.RoleAdmin))
				r.Get("/admin/users", adminHandler.HandleListUsers)
				r.Get("/admin/stats", adminHandler.HandleStats)
				r.Delete("/admin/users/{userId}", adminHandler.HandleDeleteUser)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.OptionalAuth(cfg.Tokens))
			r.Post("/timer-sessions", dataHandler.HandleSaveTimerSession)
			r.Put("/tasks", dataHandler.HandleUpdateTasks)
			r.Post("/jobs", dataHandler.HandleSaveJob)
			r.Put("/jobs/{jobId}", dataHandler.HandleUpdateJob)
			r.Delete("/jobs/{jobId}", dataHandler.HandleDeleteJob)
			r.Put("/dashboard", dataHandler.HandleUpdateDashboard)
			r.Delete("/reset", dataHandler.HandleReset)
		})
	})

	return r
}
