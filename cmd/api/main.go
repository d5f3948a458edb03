// Package main provides the entrypoint for the gatewise API server.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"

	"github.com/gatewise/gatewise/internal/api"
	"github.com/gatewise/gatewise/internal/api/handler"
	"github.com/gatewise/gatewise/internal/api/middleware"
	"github.com/gatewise/gatewise/internal/auth"
	"github.com/gatewise/gatewise/internal/capability"
	"github.com/gatewise/gatewise/internal/controller"
	"github.com/gatewise/gatewise/internal/database"
	"github.com/gatewise/gatewise/internal/entry"
	"github.com/gatewise/gatewise/internal/events"
	"github.com/gatewise/gatewise/internal/flow"
	"github.com/gatewise/gatewise/internal/registration"
	"github.com/gatewise/gatewise/internal/telemetry"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "gatewise-api"

	// Setup structured logging
	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	log.Info().
		Str("build_time", BuildTime).
		Msg("starting gatewise API")

	// Get configuration from environment
	port := os.Getenv("APP_PORT")
	if port == "" {
		port = "8080"
	}

	otlpEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if otlpEndpoint == "" {
		otlpEndpoint = "localhost:4317"
	}

	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}

	// Initialize OpenTelemetry
	ctx := context.Background()
	telemetryEnabled := os.Getenv("OTEL_ENABLED") == "true"

	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    env,
		OTLPEndpoint:   otlpEndpoint,
		Enabled:        telemetryEnabled,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	if telemetryEnabled {
		log.Info().
			Str("otlp_endpoint", otlpEndpoint).
			Msg("OpenTelemetry initialized")
	}

	// Initialize metrics
	metrics, err := middleware.NewMetrics()
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize metrics")
		os.Exit(1) //nolint:gocritic // intentional exit, telemetry cleanup is best-effort
	}

	// Connect to database
	dbConfig := database.ConfigFromEnv()
	pool, err := database.Connect(ctx, dbConfig)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	log.Info().
		Str("host", dbConfig.Host).
		Int("port", dbConfig.Port).
		Str("database", dbConfig.Database).
		Msg("database connected")

	// Initialize JWT service (get signing key from environment)
	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		jwtSigningKey = "local-dev-signing-key-change-in-production"
		log.Warn().Msg("using default JWT signing key - not secure for production")
	}

	jwtService := auth.NewJWTService(auth.JWTConfig{
		SigningKey: jwtSigningKey,
		Issuer:     os.Getenv("JWT_ISSUER"),
		Audience:   serviceName,
	})

	// Entry repository
	entries := entry.NewPostgresRepository(pool)
	log.Info().Msg("entry repository initialized")

	// Entry lifecycle events (optional, needs a Pub/Sub project)
	var publisher events.Publisher = events.NopPublisher{}
	if projectID := os.Getenv("PUBSUB_PROJECT_ID"); projectID != "" {
		pubsubClient, err := pubsub.NewClient(ctx, projectID)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create pubsub client")
		}
		defer pubsubClient.Close()

		topic := os.Getenv("PUBSUB_ENTRY_TOPIC")
		if topic == "" {
			topic = "gatewise-entry-events"
		}
		pubsubPublisher := events.NewPubSubPublisher(pubsubClient, topic, log)
		defer pubsubPublisher.Stop()
		publisher = pubsubPublisher

		log.Info().Str("topic", topic).Msg("entry event publisher initialized")
	} else {
		log.Warn().Msg("PUBSUB_PROJECT_ID not set - entry events disabled")
	}

	// Device client
	deviceClient := controller.NewClient(controller.ClientConfig{
		Logger: log,
	})

	// Capability policy, with the optional product catalog behind it
	policyConfig := capability.DefaultPolicyConfig()
	policyConfig.Logger = log
	if catalogURL := os.Getenv("CATALOG_BASE_URL"); catalogURL != "" {
		policyConfig.Catalog = capability.NewCatalogClient(capability.CatalogConfig{
			BaseURL: catalogURL,
			Logger:  log,
		})
		log.Info().Str("base_url", catalogURL).Msg("product catalog client initialized")
	}
	policy := capability.NewPolicy(policyConfig)

	// Setup-flow engine with the registration flow
	flows := flow.NewManager(flow.ManagerConfig{Logger: log})
	flows.Register("registration", func() flow.Handler {
		return registration.NewHandler(registration.Config{
			Dialer:     registration.ClientDialer{Client: deviceClient},
			Capability: policy,
			Entries:    entries,
			Events:     publisher,
			Logger:     log,
		})
	})
	log.Info().Msg("registration flow initialized")

	// Create router with configuration
	router := api.NewRouter(api.RouterConfig{
		Version:     Version,
		BuildTime:   BuildTime,
		Logger:      log,
		ServiceName: serviceName,
		Metrics:     metrics,
		JWTService:  jwtService,
		Flows:       flows,
		Entries:     entries,
		Events:      publisher,
		ReadinessChecks: map[string]handler.ReadinessChecker{
			"database": pool.Ping,
		},
	})

	// Create HTTP server. The write timeout must outlast the device
	// handshake: a flow submission can spend up to a minute contacting a
	// slow controller.
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 75 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().
			Str("addr", server.Addr).
			Msg("server listening")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
		os.Exit(1)
	}

	log.Info().Msg("server stopped")
}
