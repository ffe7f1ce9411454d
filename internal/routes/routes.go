package routes

import (
	"log/slog"

	"github.com/BradenHooton/garage/internal/auth"
	"github.com/BradenHooton/garage/internal/handlers"
	"github.com/BradenHooton/garage/internal/middleware"
	"github.com/BradenHooton/garage/internal/models"
	pkghttp "github.com/BradenHooton/garage/pkg/http"
	"github.com/go-chi/chi/v5"
)

// Handlers groups everything the router serves
type Handlers struct {
	Auth   *handlers.AuthHandler
	Users  *handlers.UserHandler
	Audit  *handlers.AuditHandler
	Health *handlers.HealthHandler
}

// RegisterRoutes registers all application routes
func RegisterRoutes(
	router chi.Router,
	h Handlers,
	authn auth.Authenticator,
	ipConfig *pkghttp.IPConfig,
	logger *slog.Logger,
) {
	// Rate limiting config for public auth endpoints
	rateLimit := middleware.RateLimitByIP(middleware.DefaultAuthRateLimit(ipConfig))

	router.Get("/health", h.Health.Health)

	// Public routes - no authentication required
	router.Group(func(r chi.Router) {
		r.Use(rateLimit)
		r.Post("/auth/register", h.Auth.Register)
		r.Post("/auth/login", h.Auth.StaffLogin)
		r.Post("/auth/customer/login", h.Auth.CustomerLogin)
		r.Post("/auth/forgot-password", h.Auth.ForgotPassword)
		r.Post("/auth/reset-password", h.Auth.ResetPassword)
	})

	// Logout works with or without a valid session
	router.With(auth.OptionalAuth(authn, logger)).Post("/auth/logout", h.Auth.Logout)

	// Protected routes - authentication required
	router.Group(func(r chi.Router) {
		r.Use(auth.AuthMiddleware(authn, logger))

		r.Get("/auth/me", h.Auth.Me)
		r.Post("/auth/change-password", h.Auth.ChangePassword)
		r.Post("/auth/logout-all", h.Auth.LogoutAll)

		// Admin-only routes
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireRole(models.RoleAdmin))
			h.Users.RegisterRoutes(r)
			r.Get("/audit-logs", h.Audit.ListAuditLogs)
		})
	})
}
