// Package api wires the Molly HTTP surface: routes, middleware, handlers.
package api

import (
	"time"

	"github.com/5kyf4ll/molly-project/internal/api/handlers"
	"github.com/5kyf4ll/molly-project/internal/api/middleware"
	"github.com/5kyf4ll/molly-project/internal/auth"
	"github.com/5kyf4ll/molly-project/internal/config"
	"github.com/5kyf4ll/molly-project/internal/orchestrator"
	"github.com/5kyf4ll/molly-project/internal/store"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// Deps bundles everything the router needs
type Deps struct {
	Config       *config.Config
	Store        *store.Store
	Orchestrator *orchestrator.Orchestrator
	Sessions     *auth.SessionManager
	Logger       *zap.Logger
}

// SetupRoutes configures all routes and middleware for the API server
func SetupRoutes(deps Deps) *chi.Mux {
	r := chi.NewRouter()

	// Middleware chain - order matters: request ids first so every log line
	// carries one, then logging, then panic recovery
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(deps.Logger))
	r.Use(chimiddleware.Recoverer)

	// Chat turns can spawn multi-minute scans; bound abuse per client
	chatRateLimiter := middleware.NewRateLimiter(deps.Config.Server.ChatRateLimit, deps.Logger)
	chatRateLimiter.StartCleanupRoutine(10*time.Minute, 1*time.Hour)

	r.Get("/", handlers.StatusHandler(deps.Logger))

	r.Post("/api/login", handlers.LoginHandler(
		deps.Sessions,
		deps.Config.Auth.Username,
		deps.Config.Auth.Password,
		deps.Config.Auth.SessionTTL,
		deps.Logger))

	// Authenticated API surface
	r.Group(func(r chi.Router) {
		r.Use(middleware.SessionAuth(deps.Sessions, deps.Logger))

		r.Post("/api/logout", handlers.LogoutHandler(deps.Sessions, deps.Logger))

		r.With(middleware.RateLimit(chatRateLimiter)).
			Post("/api/chat", handlers.ChatHandler(deps.Orchestrator, deps.Logger))

		r.Get("/api/check_scan_status/{id}", handlers.CheckScanStatusHandler(deps.Store, deps.Logger))
		r.Get("/api/session_status", handlers.SessionStatusHandler(deps.Orchestrator))
		r.Get("/api/scans", handlers.ListScansHandler(deps.Store, deps.Logger))

		r.Get("/view_report/{id}", handlers.ViewReportHandler(deps.Store, deps.Config.Reports.Root, deps.Logger))
	})

	return r
}
