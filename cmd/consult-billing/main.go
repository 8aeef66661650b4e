// Package main is the entry point for the consult-billing server.
// Identities are issued elsewhere; this service verifies bearer tokens,
// meters consultations and streams billing events to connected clients.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/jmylchreest/consult-billing/internal/auth"
	"github.com/jmylchreest/consult-billing/internal/billing"
	"github.com/jmylchreest/consult-billing/internal/config"
	"github.com/jmylchreest/consult-billing/internal/database"
	"github.com/jmylchreest/consult-billing/internal/events"
	"github.com/jmylchreest/consult-billing/internal/http/handlers"
	"github.com/jmylchreest/consult-billing/internal/http/mw"
	"github.com/jmylchreest/consult-billing/internal/http/routes"
	"github.com/jmylchreest/consult-billing/internal/logging"
	"github.com/jmylchreest/consult-billing/internal/observability"
	"github.com/jmylchreest/consult-billing/internal/repository"
	"github.com/jmylchreest/consult-billing/internal/service"
	"github.com/jmylchreest/consult-billing/internal/shutdown"
	"github.com/jmylchreest/consult-billing/internal/version"
)

// eventBufferSize is the per-stream queue depth before events are dropped.
const eventBufferSize = 64

func main() {
	// Initialize logger with TTY detection, source paths, and format control
	v := version.Get()
	logger := logging.SetDefault(v.LogAttrs()...)

	logger.Info("starting consult-billing",
		"commit", v.Commit,
		"built", v.Date,
		"go_version", v.GoVersion,
	)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database
	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	// Run migrations (with logging for each migration applied)
	if err := database.MigrateWithLogger(db, logger); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	if applied, err := database.GetAppliedMigrations(db); err == nil && len(applied) > 0 {
		logger.Info("database ready",
			"migrations", len(applied),
			"schema_version", applied[len(applied)-1].Timestamp,
		)
	}

	repos := repository.NewRepositories(db)

	// Metrics
	obs, err := observability.New(ctx, observability.Config{
		ServiceName:    version.ServiceName,
		ServiceVersion: v.Short(),
		OTLPEndpoint:   cfg.OTLPEndpoint,
		Insecure:       cfg.OTLPInsecure,
	}, logger)
	if err != nil {
		logger.Error("failed to initialize metrics", "error", err)
		os.Exit(1)
	}
	metrics, err := billing.NewMetrics(obs.Meter())
	if err != nil {
		logger.Error("failed to register billing metrics", "error", err)
		os.Exit(1)
	}

	// Event fan-out: in-process SSE broker, optional Redis relay, receipts
	broker := events.NewBroker(cfg.SSEMaxStreamsPerUser, eventBufferSize, logger)
	publishers := []events.Publisher{broker}

	if cfg.RedisURL != "" {
		rdb, err := events.NewRedisClient(cfg.RedisURL)
		if err != nil {
			logger.Error("failed to configure redis", "error", err)
			os.Exit(1)
		}
		defer func() { _ = rdb.Close() }()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unreachable, relay will retry per event", "error", err)
		}
		publishers = append(publishers, events.NewRedisPublisher(rdb))
		logger.Info("redis event relay enabled")
	}

	receipts, storage, err := service.NewReceipts(cfg, repos, logger)
	if err != nil {
		logger.Error("failed to initialize receipts", "error", err)
		os.Exit(1)
	}
	publishers = append(publishers, receipts)

	// Billing engine
	engine := billing.New(repos, events.Multi(publishers...), billing.Config{
		TickInterval: cfg.Billing.TickInterval,
		GracePeriod:  cfg.Billing.GracePeriod,
		MaxRetries:   cfg.Billing.MaxRetries,
		BackoffBase:  cfg.Billing.BackoffBase,
		StaleAfter:   cfg.Billing.StaleAfter,
	},
		billing.WithLogger(logger),
		billing.WithMetrics(metrics),
	)

	// Pick up sessions a previous process left live
	if _, _, err := engine.Resume(ctx); err != nil {
		logger.Error("failed to resume billing sessions", "error", err)
		os.Exit(1)
	}

	services := service.NewServices(repos, engine, receipts, storage, logger)

	// Authentication
	var verifier *auth.Verifier
	if cfg.JWTSecret != "" {
		verifier = auth.NewVerifier(cfg.JWTSecret, cfg.JWTIssuer)
	}
	if cfg.AuthDisabled {
		logger.Warn("AUTH_DISABLED is set - identities are taken from request headers")
	}
	authn := mw.NewAuthenticator(verifier, cfg.AuthDisabled)

	// Scale-to-zero: never while a session is being metered
	idle := shutdown.NewIdleMonitor(shutdown.IdleMonitorConfig{
		Timeout:      cfg.IdleTimeout,
		ExcludePaths: []string{"/healthz", "/readyz"},
		Busy:         func() bool { return engine.LiveSessions() > 0 },
		Logger:       logger,
	})
	go idle.Run(ctx)

	// Create router
	router := chi.NewRouter()

	// Global middleware
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(idle.Middleware)
	router.Use(mw.Timeout(mw.DefaultTimeoutConfig()))

	// CORS configuration
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "Last-Event-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After", mw.HeaderAPIVersion, mw.HeaderTickSeconds},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Request size limit (64KB) - every request body here is a small JSON object
	router.Use(middleware.RequestSize(64 * 1024))

	rateCfg := mw.DefaultRateLimitConfig()
	rateCfg.UserRequestsPerMinute = cfg.RateLimitPerMinute
	router.Use(mw.RateLimitByIP(rateCfg.IPRequestsPerMinute))
	router.Use(mw.APIVersion())
	router.Use(mw.BillingTick(engine.Config().TickInterval))
	router.Use(mw.Cache(mw.DefaultCacheConfig()))

	// Per-user limits need the caller's identity before huma authenticates
	router.Use(mw.OptionalAuth(authn))
	router.Use(mw.RateLimitByUser(rateCfg))

	// Huma API with OpenAPI docs
	api := humachi.New(router, routes.NewHumaConfig(cfg.BaseURL))
	api.UseMiddleware(mw.HumaAuth(api, authn))

	readyz := handlers.NewReadyzHandler(db)
	eventsHandler := handlers.NewEventsHandler(broker, engine, cfg.SSEHeartbeatInterval, logger)

	routes.Register(api, routes.Handlers{
		HealthCheck:  handlers.HealthCheck,
		Livez:        handlers.Livez,
		Readyz:       readyz.Readyz,
		Consultation: handlers.NewConsultationHandler(engine, repos.Party, logger),
		Wallet:       handlers.NewWalletHandler(services.Wallet, logger),
		Gate:         handlers.NewGateHandler(services.Gate),
		Admin:        handlers.NewAdminHandler(repos.Party, logger),
		Events:       eventsHandler,
	})

	// Raw SSE endpoint (documented via huma, served by chi)
	router.With(mw.Auth(authn)).Get("/api/v1/events", eventsHandler.Stream)

	// Create server. WriteTimeout is left unset: the event stream clears its
	// own deadline and API calls are bounded by the timeout middleware.
	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Graceful shutdown
	done := make(chan struct{})
	go func() {
		defer close(done)
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
		select {
		case sig := <-sigChan:
			logger.Info("shutting down server", "signal", sig.String())
		case <-idle.Done():
			logger.Info("shutting down idle server")
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer shutdownCancel()

		// Close event streams first so Shutdown is not held open by them.
		// Sessions stay live and are picked up by Resume on the next start.
		if n := broker.Close(); n > 0 {
			logger.Info("closed event streams", "count", n)
		}
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", "error", err)
		}

		engine.Close()
		receipts.Wait()

		if err := obs.Shutdown(shutdownCtx); err != nil {
			logger.Warn("metrics flush failed", "error", err)
		}
		cancel()
	}()

	logger.Info("starting server",
		"port", cfg.Port,
		"base_url", cfg.BaseURL,
		"tick_interval", cfg.Billing.TickInterval.String(),
		"grace_period", cfg.Billing.GracePeriod.String(),
	)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}

	<-done
	logger.Info("server stopped")
}
