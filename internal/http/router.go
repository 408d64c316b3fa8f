package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/mfagate/server/internal/http/handlers"
	"github.com/mfagate/server/internal/middleware"
)

// RouterDeps are the collaborators the HTTP layer needs
type RouterDeps struct {
	Tokens  middleware.TokenReader
	Otp     *handlers.OtpHandler
	Auth    *handlers.AuthHandler
	Health  *handlers.HealthHandler
	Limiter *middleware.RateLimiter
	Log     *zap.Logger
}

// NewRouter creates a new HTTP router with all routes configured
func NewRouter(d RouterDeps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.RequestLogger(middleware.NewZapLogFormatter(d.Log)))
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(15 * time.Second))

	r.Get("/health", d.Health.ServeHTTP)
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/auth/refresh", d.Auth.HandleRefresh)

	// Any live access token, MFA approved or not.
	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware(d.Tokens, false, d.Log))

		r.Route("/otp", func(r chi.Router) {
			if d.Limiter != nil {
				r.Use(middleware.RateLimitMiddleware(d.Limiter, middleware.GetUserKey))
			}
			r.Post("/send_token", d.Otp.HandleSendToken)
			r.Post("/validate_token", d.Otp.HandleValidateToken)
		})
		r.Post("/auth/logout", d.Auth.HandleLogout)
	})

	// Fully approved tokens only.
	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware(d.Tokens, true, d.Log))
		r.Get("/me", d.Auth.HandleMe)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"not found"}`))
	})

	return r
}
