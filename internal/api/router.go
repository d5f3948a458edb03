// Package api provides the HTTP API for gatewise.
package api

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/gatewise/gatewise/internal/api/handler"
	"github.com/gatewise/gatewise/internal/api/middleware"
	"github.com/gatewise/gatewise/internal/auth"
	"github.com/gatewise/gatewise/internal/entry"
	"github.com/gatewise/gatewise/internal/events"
	"github.com/gatewise/gatewise/internal/flow"
)

// ReadinessChecker reports whether a dependency is ready to serve.
type ReadinessChecker = handler.ReadinessChecker

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version     string
	BuildTime   string
	Logger      zerolog.Logger
	ServiceName string
	Metrics     *middleware.Metrics
	JWTService  *auth.JWTService
	Flows       *flow.Manager
	Entries     entry.Repository
	Events      events.Publisher

	// ReadinessChecks are probed by GET /v1/ops/ready.
	ReadinessChecks map[string]handler.ReadinessChecker
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "gatewise-api"
	}

	// Global middleware - order matters
	r.Use(middleware.RequestID)            // Generate/propagate request ID first
	r.Use(middleware.Tracing(serviceName)) // Distributed tracing
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware()) // HTTP metrics
	}
	r.Use(middleware.Logger(cfg.Logger))   // Structured logging
	r.Use(middleware.Recovery(cfg.Logger)) // Panic recovery
	r.Use(chimiddleware.RealIP)            // Real IP extraction
	r.Use(middleware.SecurityHeaders)      // Security headers (HSTS, CSP, etc.)
	r.Use(middleware.RequireTLS)           // TLS enforcement (enabled via REQUIRE_TLS=true)
	r.Use(middleware.ContentTypeJSON)      // JSON content type

	opsHandler := handler.NewOpsHandler(cfg.Version, cfg.BuildTime, cfg.ReadinessChecks)
	flowHandler := handler.NewFlowHandler(cfg.Flows, cfg.Logger)
	entryHandler := handler.NewEntryHandler(cfg.Entries, cfg.Events, cfg.Logger)

	authMiddleware := middleware.Auth(cfg.JWTService)

	// Flow submissions contact physical devices, so they get the tight limit.
	flowRateLimit := middleware.RateLimitBySubject(middleware.FlowRateLimit)
	standardRateLimit := middleware.RateLimitBySubject(middleware.StandardRateLimit)

	r.Route("/v1", func(r chi.Router) {
		// Ops endpoints (public)
		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
		})

		// Setup flows (authenticated) - strict rate limiting
		r.Route("/flows", func(r chi.Router) {
			r.Use(authMiddleware)
			r.Use(flowRateLimit)
			r.Post("/", flowHandler.StartFlow)
			r.Post("/{flowId}", flowHandler.SubmitStep)
		})

		// Registered entries (authenticated) - standard rate limiting
		r.Route("/entries", func(r chi.Router) {
			r.Use(authMiddleware)
			r.Use(standardRateLimit)
			r.Get("/", entryHandler.ListEntries)
			r.Route("/{serialNumber}", func(r chi.Router) {
				r.Get("/", entryHandler.GetEntry)
				r.Delete("/", entryHandler.DeleteEntry)
			})
		})
	})

	return r
}
