package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-signup-api/internal/config"
	"github.com/go-signup-api/internal/metrics"
	"github.com/go-signup-api/internal/transport/http/handler"
	appmiddleware "github.com/go-signup-api/internal/transport/http/middleware"
)

// NewRouter builds and returns the application router.
func NewRouter(cfg *config.Config, deps *Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", appmiddleware.MachineIDHeader},
		ExposedHeaders:   []string{appmiddleware.MachineIDHeader, "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	registerRL := appmiddleware.RateLimit(deps.Limiter, "register", cfg.Rates.Register)
	verifyRL := appmiddleware.RateLimit(deps.Limiter, "verify-otp", cfg.Rates.Verify)
	resendRL := appmiddleware.RateLimit(deps.Limiter, "resend-otp", cfg.Rates.Resend)
	machineRL := appmiddleware.RateLimit(deps.Limiter, "machine-id", cfg.Rates.MachineID)

	healthH := handler.NewHealthHandler(deps.Store)
	authH := handler.NewAuthHandler(deps.Registration, deps.Machines)
	monitoringH := handler.NewMonitoringHandler(deps.Queue)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/health-check/{action}", healthH.Ping)
		r.Post("/health-check/{action}", healthH.Ping)

		r.With(machineRL).Get("/auth/machine-id", authH.MachineID)
		r.With(registerRL).Post("/auth/register", authH.Register)
		r.With(verifyRL).Post("/auth/verify-otp", authH.VerifyOTP)
		r.With(resendRL).Post("/auth/resend-otp", authH.ResendOTP)

		r.Route("/monitoring/queue", func(r chi.Router) {
			r.Get("/metrics", monitoringH.Metrics)
			r.Get("/health", monitoringH.Health)
		})
	})

	r.Handle("/metrics", metrics.Handler())

	return r
}
