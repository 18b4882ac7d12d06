package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gradpath-api/internal/application/session"
	"github.com/gradpath-api/internal/application/user"
	"github.com/gradpath-api/internal/application/verification"
	"github.com/gradpath-api/internal/config"
	"github.com/gradpath-api/internal/domain"
	"github.com/gradpath-api/internal/transport/http/handler"
	appmiddleware "github.com/gradpath-api/internal/transport/http/middleware"
	"golang.org/x/time/rate"
)

// NewRouter builds and returns the application router.
func NewRouter(cfg *config.Config, deps *Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		// Credentials are required: the refresh token rides in a cookie.
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Coarse per-IP throttle over the whole API.
	globalRL := appmiddleware.NewRateLimiter(rate.Limit(20), 40)
	r.Use(globalRL.Limit)

	// Hard per-window cap on credential endpoints.
	credRL := appmiddleware.NewFixedWindowLimiter(cfg.AuthRateLimit, cfg.AuthRateWindow, deps.Metrics)

	verificationSvc := verification.NewService(verification.ServiceDeps{
		UserRepo:        deps.UserRepo,
		Notifier:        deps.Notifier,
		JWTProvider:     deps.JWTProvider,
		Metrics:         deps.Metrics,
		VerificationDur: cfg.VerificationTTL,
		RefreshTokenDur: cfg.RefreshTokenTTL,
		NotifyTimeout:   cfg.NotifyTimeout,
	})
	userSvc := user.NewService(user.ServiceDeps{
		UserRepo:     deps.UserRepo,
		Verification: verificationSvc,
		Cache:        deps.AuthCache,
		ImageStore:   deps.ImageStore,
		BcryptCost:   cfg.BcryptCost,
	})
	sessionSvc := session.NewService(session.ServiceDeps{
		UserRepo:        deps.UserRepo,
		JWTProvider:     deps.JWTProvider,
		GoogleVerifier:  deps.GoogleVerifier,
		RefreshTokenDur: cfg.RefreshTokenTTL,
	})

	authMw := appmiddleware.Auth(deps.JWTProvider, deps.AuthCache, deps.UserRepo)

	healthH := handler.NewHealthHandler()
	authH := handler.NewAuthHandler(userSvc, sessionSvc, verificationSvc, cfg.IsProduction(), cfg.RefreshTokenTTL)
	userH := handler.NewUserHandler(userSvc)

	r.Handle("/metrics", deps.Metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/health-check/{action}", healthH.Ping)
		r.Post("/health-check/{action}", healthH.Ping)

		r.Route("/auth", func(r chi.Router) {
			// ── Public routes (no auth) ──────────────────────────────
			r.With(credRL.Limit("signup")).Post("/signup", authH.Signup)
			r.With(credRL.Limit("login")).Post("/login", authH.Login)
			r.With(credRL.Limit("google")).Post("/google", authH.GoogleLogin)
			r.With(credRL.Limit("resend-verification")).Post("/resend-verification", authH.ResendVerification)
			r.Get("/verify-email/{token}", authH.VerifyEmail)
			r.Post("/refresh", authH.Refresh)
			r.Post("/logout", authH.Logout)

			// ── Authenticated routes ─────────────────────────────────
			r.Group(func(r chi.Router) {
				r.Use(authMw)

				r.Get("/me", userH.Me)
				r.Put("/update-profile", userH.UpdateProfile)
				r.Put("/change-password", userH.ChangePassword)
				r.Post("/profile-image", userH.UploadProfileImage)
				r.Delete("/profile-image", userH.DeleteProfileImage)
			})
		})

		// Admin-only routes
		r.Group(func(r chi.Router) {
			r.Use(authMw)
			r.Use(appmiddleware.RequireRole(domain.RoleAdmin))

			r.Delete("/users/{id}", userH.Deactivate)
		})
	})

	return r
}
