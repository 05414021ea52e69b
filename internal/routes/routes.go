package routes

import (
	"github.com/go-chi/chi/v5"
	"github.com/mpslytherin/accounts/internal/auth"
	"github.com/mpslytherin/accounts/internal/handlers"
	"github.com/mpslytherin/accounts/internal/middleware"
	pkghttp "github.com/mpslytherin/accounts/pkg/http"
)

// Handlers groups the HTTP handlers mounted by RegisterRoutes
type Handlers struct {
	Auth        *handlers.AuthHandler
	Profile     *handlers.ProfileHandler
	Diagnostics *handlers.DiagnosticsHandler
}

// Options carries the per-route limits and session settings
type Options struct {
	Sessions          auth.SessionValidator
	Cookies           auth.CookieConfig
	IPConfig          *pkghttp.IPConfig
	RegisterPerMinute int
	UploadPerMinute   int
}

// RegisterRoutes registers all application routes
func RegisterRoutes(router chi.Router, h Handlers, opts Options) {
	registerLimit := middleware.RateLimitByIP(middleware.RateLimitConfig{
		RequestsPerMinute: opts.RegisterPerMinute,
		IPConfig:          opts.IPConfig,
	})
	uploadLimit := middleware.RateLimitByIP(middleware.RateLimitConfig{
		RequestsPerMinute: opts.UploadPerMinute,
		IPConfig:          opts.IPConfig,
	})

	// Public routes. /login is throttled by the service's sliding window.
	router.Post("/login", h.Auth.Login)
	router.With(registerLimit).Post("/register", h.Auth.Register)
	router.Post("/logout", h.Auth.Logout)
	router.Get("/check-connection", h.Diagnostics.CheckConnection)
	router.Get("/health", h.Diagnostics.Health)
	router.Get("/avatars/{key}", h.Profile.ServeAvatar)

	// Protected routes - session cookie required
	router.Group(func(r chi.Router) {
		r.Use(auth.RequireSession(opts.Sessions, opts.Cookies))

		r.Get("/profile", h.Profile.GetProfile)
		r.Get("/api/login-history", h.Profile.LoginHistory)
		r.Put("/api/profile", h.Profile.UpdateProfile)
		r.Post("/api/change-password", h.Profile.ChangePassword)
		r.With(uploadLimit).Post("/api/upload-avatar", h.Profile.UploadAvatar)
	})
}
