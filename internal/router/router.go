package router

import (
	"net/http"
	"time"

	"github.com/nexusoptimizer/nexus/internal/auth"
	"github.com/nexusoptimizer/nexus/internal/config"
	"github.com/nexusoptimizer/nexus/internal/handler"
	"github.com/nexusoptimizer/nexus/internal/middleware"
	"github.com/nexusoptimizer/nexus/internal/ratelimit"
)

// New creates and configures the HTTP router
func New(h *handler.Handler, mw *middleware.Middleware, cfg *config.Config, tokenSvc *auth.TokenService, store ratelimit.Store) http.Handler {
	mux := http.NewServeMux()

	// Health check endpoints (no auth required)
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /ready", h.Ready)

	mux.HandleFunc("GET /api/v1/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"message":"Nexus Optimizer API v1","version":"0.1.0"}`))
	})

	// Credential endpoints share one ceiling per client and route
	credentialRateLimit := mw.RateLimit(ratelimit.New(store,
		cfg.Security.RateLimiting.Limit,
		cfg.Security.RateLimiting.Window,
	))
	refreshRateLimit := mw.RateLimit(ratelimit.New(store, 10, 1*time.Minute))

	// Public authentication routes (rate limited)
	mux.Handle("POST /api/v1/auth/signup", credentialRateLimit(http.HandlerFunc(h.Signup)))
	mux.Handle("POST /api/v1/auth/login", credentialRateLimit(http.HandlerFunc(h.Login)))
	mux.Handle("POST /api/v1/auth/refresh", refreshRateLimit(http.HandlerFunc(h.Refresh)))

	// Password reset routes (public, rate limited)
	mux.Handle("POST /api/v1/auth/password/reset-request", credentialRateLimit(http.HandlerFunc(h.PasswordResetRequest)))
	mux.Handle("POST /api/v1/auth/password/reset-complete", credentialRateLimit(http.HandlerFunc(h.PasswordResetComplete)))

	// Protected routes (require auth)
	authMw := mw.Auth(tokenSvc)

	mux.Handle("POST /api/v1/auth/logout", authMw(http.HandlerFunc(h.Logout)))
	mux.Handle("POST /api/v1/auth/password/change", authMw(http.HandlerFunc(h.ChangePassword)))

	// Profile and settings
	mux.Handle("GET /api/v1/profile", authMw(http.HandlerFunc(h.GetProfile)))
	mux.Handle("PATCH /api/v1/profile", authMw(http.HandlerFunc(h.UpdateProfile)))
	mux.Handle("GET /api/v1/settings", authMw(http.HandlerFunc(h.GetSettings)))
	mux.Handle("PUT /api/v1/settings", authMw(http.HandlerFunc(h.UpdateSettings)))

	// Security log
	mux.Handle("GET /api/v1/security/log", authMw(http.HandlerFunc(h.GetSecurityLog)))
	mux.Handle("DELETE /api/v1/security/log", authMw(http.HandlerFunc(h.ClearSecurityLog)))

	// Two-factor enrollment (authenticated, rate limited)
	twoFactorRateLimit := mw.RateLimit(ratelimit.New(store, 10, 1*time.Minute))
	mux.Handle("POST /api/v1/twofactor/setup", authMw(twoFactorRateLimit(http.HandlerFunc(h.TwoFactorSetup))))
	mux.Handle("POST /api/v1/twofactor/verify", authMw(twoFactorRateLimit(http.HandlerFunc(h.TwoFactorVerify))))
	mux.Handle("DELETE /api/v1/twofactor", authMw(http.HandlerFunc(h.TwoFactorDisable)))

	// Apply middleware stack
	var root http.Handler = mux

	root = mw.CORS(root)
	root = mw.SecurityHeaders(root)
	root = mw.Logger(root)
	root = mw.RequestID(root)
	root = mw.Recover(root)

	return root
}
