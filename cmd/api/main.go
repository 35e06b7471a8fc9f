// Package main is the entrypoint for the capserve API server.
package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/url"
	"os"
	"regexp"
	"strings"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/capserve/capserve/internal/audit"
	"github.com/capserve/capserve/internal/cache"
	"github.com/capserve/capserve/internal/config"
	"github.com/capserve/capserve/internal/handler"
	"github.com/capserve/capserve/internal/metrics"
	"github.com/capserve/capserve/internal/middleware"
	"github.com/capserve/capserve/internal/registry"
	"github.com/capserve/capserve/internal/repository"
	"github.com/capserve/capserve/internal/server"
	"github.com/capserve/capserve/internal/service"
	"github.com/capserve/capserve/internal/webhook"
)

func main() {
	// Initialize context
	ctx := context.Background()

	// Load .env in development; ignored when absent
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Initialize logger
	logger := initLogger(cfg)

	// Initialize database
	repo, err := repository.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error(
			"failed to connect to database",
			slog.String("error", sanitizeError(err, cfg.DatabaseURL)),
			slog.String("database_url", redactURL(cfg.DatabaseURL)),
		)
		os.Exit(1)
	}
	defer repo.Close()
	logger.Info("connected to database")

	// The webhook repository runs on database/sql; open a second handle.
	sqlDB, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to open webhook database handle",
			slog.String("error", sanitizeError(err, cfg.DatabaseURL)),
		)
		os.Exit(1)
	}
	defer sqlDB.Close()

	// Initialize cache
	cacheClient, err := cache.New(ctx, cfg.RedisURL)
	if err != nil {
		logger.Error(
			"failed to connect to Redis",
			slog.String("error", sanitizeError(err, cfg.RedisURL)),
			slog.String("redis_url", redactURL(cfg.RedisURL)),
		)
		os.Exit(1)
	}
	defer cacheClient.Close()
	logger.Info("connected to Redis")

	// Initialize metrics
	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	recorder := metrics.NewPrometheus(promRegistry)

	// Model registry client
	registryClient := registry.NewClient(cfg.MLflowTrackingURI, cfg.MLflowTimeout)

	// Webhook subsystem
	var webhookPublisher *webhook.Publisher
	webhookRepo := webhook.NewRepository(sqlDB)
	if cfg.WebhooksEnabled {
		webhookPublisher = webhook.NewPublisher(webhookRepo, logger)
	}

	// Audit pipeline
	predictionRepo := repository.NewPredictionRepository(repo)
	var auditPublisher *audit.Publisher
	if cfg.AuditEnabled {
		auditPublisher = audit.NewPublisher(cacheClient.Client(), logger, recorder)
	}

	// Prediction service
	predictionService := service.NewPredictionService(
		registryClient,
		cacheClient,
		auditPublisher,
		webhookPublisher,
		cfg.ModelName,
		cfg.ModelStage,
		cfg.PredictionCacheTTL,
		logger,
		recorder,
	)
	predictionService.SetMaxBatchSize(cfg.MaxBatchSize)

	// Initial model load. With LOAD_MODEL_ON_START the registry must be
	// reachable at boot; otherwise the service starts degraded and serves
	// 503 until the first successful reload.
	if info, _, err := predictionService.ReloadModel(ctx); err != nil {
		if cfg.LoadModelOnStart {
			logger.Error("initial model load failed", "error", err)
			os.Exit(1)
		}
		logger.Warn("starting without a loaded model", "error", err)
	} else {
		logger.Info("model loaded",
			"model_name", info.Name,
			"model_version", info.Version,
			"flavor", info.Flavor,
		)
	}

	// Initialize handlers
	h := handler.New(cfg.AppVersion)
	healthHandler := handler.NewHealthHandler(repo, cacheClient, registryClient, predictionService)
	predictHandler := handler.NewPredictHandler(predictionService, logger)
	modelHandler := handler.NewModelHandler(predictionService, logger)
	predictionsHandler := handler.NewPredictionsHandler(predictionRepo, logger)
	webhookHandler := handler.NewWebhookHandler(webhookRepo, logger)
	metricsHandler := handler.NewMetricsHandler(promRegistry)

	// Setup router
	r := setupRouter(routerDeps{
		base:        h,
		health:      healthHandler,
		predict:     predictHandler,
		model:       modelHandler,
		predictions: predictionsHandler,
		webhooks:    webhookHandler,
		metrics:     metricsHandler,
		cache:       cacheClient,
		cfg:         cfg,
		logger:      logger,
	})

	// Create server
	srv := server.New(
		r,
		cfg.AppPort,
		cfg.ReadTimeout,
		cfg.WriteTimeout,
		cfg.ShutdownTimeout,
		logger,
	)

	// Background workers. Shutdown hooks run LIFO after the HTTP server
	// stops accepting requests.
	workerCtx, stopWorkers := context.WithCancel(ctx)
	defer stopWorkers()

	if cfg.AuditEnabled {
		auditWorker := audit.NewWorker(cacheClient.Client(), predictionRepo, logger, audit.NewConsumerID(), recorder)
		auditWorker.SetBatchSize(cfg.AuditBatchSize)
		go func() {
			if err := auditWorker.Run(workerCtx); err != nil && workerCtx.Err() == nil {
				logger.Error("audit worker exited", "error", err)
			}
		}()
		srv.OnShutdown("audit-worker", func(shutdownCtx context.Context) error {
			stopWorkers()
			return auditWorker.Shutdown(shutdownCtx)
		})
	}

	if cfg.WebhooksEnabled {
		webhookWorker := webhook.NewWorker(webhookRepo, logger, recorder)
		webhookWorker.SetPollInterval(cfg.WebhookPollInterval)
		webhookDone := make(chan struct{})
		go func() {
			defer close(webhookDone)
			if err := webhookWorker.Run(workerCtx); err != nil && workerCtx.Err() == nil {
				logger.Error("webhook worker exited", "error", err)
			}
		}()
		srv.OnShutdown("webhook-worker", func(shutdownCtx context.Context) error {
			stopWorkers()
			select {
			case <-webhookDone:
				return nil
			case <-shutdownCtx.Done():
				return shutdownCtx.Err()
			}
		})
	}

	logger.Info("starting server",
		"port", cfg.AppPort,
		"model_name", cfg.ModelName,
		"model_stage", cfg.ModelStage,
		"env", cfg.AppEnv,
	)

	if err := srv.Run(); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

// initLogger initializes the slog logger based on configuration.
func initLogger(cfg *config.Config) *slog.Logger {
	var h slog.Handler

	level := parseLogLevel(cfg.LogLevel)

	opts := &slog.HandlerOptions{
		Level: level,
	}

	if cfg.LogFormat == "json" {
		h = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		h = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(h)
	slog.SetDefault(logger)

	return logger
}

// parseLogLevel converts string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// routerDeps bundles everything the router needs.
type routerDeps struct {
	base        *handler.Handler
	health      *handler.HealthHandler
	predict     *handler.PredictHandler
	model       *handler.ModelHandler
	predictions *handler.PredictionsHandler
	webhooks    *handler.WebhookHandler
	metrics     *handler.MetricsHandler
	cache       *cache.Cache
	cfg         *config.Config
	logger      *slog.Logger
}

// setupRouter configures the chi router with all routes and middleware.
func setupRouter(deps routerDeps) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(deps.logger))
	r.Use(middleware.Recoverer(deps.logger))
	r.Use(middleware.Security(middleware.SecurityConfig{
		IsDevelopment: deps.cfg.IsDevelopment(),
	}))
	r.Use(middleware.MaxBodySize(deps.cfg.MaxRequestBodySize))

	if origins := deps.cfg.GetCORSAllowedOrigins(); len(origins) > 0 {
		corsCfg := middleware.DefaultCORSConfig()
		corsCfg.AllowedOrigins = origins
		r.Use(middleware.CORS(corsCfg))
	}

	// Health endpoints (no auth required)
	r.Get("/healthz", deps.health.Healthz)
	r.Get("/readyz", deps.health.Readyz)
	r.Get("/health", deps.health.Healthz)
	r.Get("/health/ready", deps.health.Readyz)

	// Prometheus exposition
	r.Get("/metrics", deps.metrics.Metrics)

	// Root info endpoint
	r.Get("/", deps.base.Info)

	// Admin auth middleware configuration
	adminCfg := middleware.AdminAuthConfig{
		Logger:  deps.logger,
		KeyHash: deps.cfg.AdminKeyHash,
	}

	// Rate limit middleware configuration
	rateLimitCfg := middleware.RateLimitConfig{
		Logger:  deps.logger,
		Cache:   deps.cache,
		Enabled: deps.cfg.RateLimitEnabled,
		RPS:     deps.cfg.RateLimitRPS,
		Burst:   deps.cfg.RateLimitBurst,
	}

	r.Route("/api/v1", func(r chi.Router) {
		// Scoring endpoints: open, IP rate limited
		r.With(middleware.RateLimitIP(rateLimitCfg)).Post("/predict", deps.predict.Predict)
		r.With(middleware.RateLimitIP(rateLimitCfg)).Post("/predict/batch", deps.predict.PredictBatch)

		// Model metadata is public
		r.Get("/model-info", deps.model.Info)

		// Mutating and audit endpoints require the admin key
		r.Group(func(r chi.Router) {
			r.Use(middleware.AdminAuth(adminCfg))

			r.Post("/reload-model", deps.model.Reload)

			r.Route("/predictions", func(r chi.Router) {
				r.Get("/", deps.predictions.List)
				r.Get("/stats", deps.predictions.Stats)
			})

			r.Route("/webhooks", func(r chi.Router) {
				r.Get("/", deps.webhooks.List)
				r.Post("/", deps.webhooks.Create)
				r.Get("/{id}", deps.webhooks.Get)
				r.Patch("/{id}", deps.webhooks.Update)
				r.Delete("/{id}", deps.webhooks.Delete)
				r.Post("/{id}/rotate-secret", deps.webhooks.RotateSecret)
				r.Get("/{id}/deliveries", deps.webhooks.ListDeliveries)
				r.Post("/{id}/deliveries/{deliveryId}/retry", deps.webhooks.RetryDelivery)
			})
		})
	})

	// 404 and 405 handlers
	r.NotFound(deps.base.NotFound)
	r.MethodNotAllowed(deps.base.MethodNotAllowed)

	return r
}

var passwordPattern = regexp.MustCompile(`(?i)password=[^\s]+`)

func redactURL(raw string) string {
	if raw == "" {
		return ""
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "[redacted]"
	}

	if parsed.User != nil {
		username := parsed.User.Username()
		if username == "" {
			parsed.User = url.User("redacted")
		} else {
			parsed.User = url.User(username)
		}
	}

	return parsed.String()
}

func sanitizeError(err error, secrets ...string) string {
	if err == nil {
		return ""
	}

	msg := err.Error()
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		redacted := redactURL(secret)
		if redacted == "" {
			redacted = "[redacted]"
		}
		msg = strings.ReplaceAll(msg, secret, redacted)
	}

	return passwordPattern.ReplaceAllString(msg, "password=redacted")
}
