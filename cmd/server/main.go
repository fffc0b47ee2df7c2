package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benvon/workitem-fieldmap/internal/catalog"
	"github.com/benvon/workitem-fieldmap/internal/config"
	"github.com/benvon/workitem-fieldmap/internal/events"
	"github.com/benvon/workitem-fieldmap/internal/handlers"
	"github.com/benvon/workitem-fieldmap/internal/kv"
	"github.com/benvon/workitem-fieldmap/internal/logger"
	"github.com/benvon/workitem-fieldmap/internal/mapping"
	"github.com/benvon/workitem-fieldmap/internal/middleware"
	"github.com/benvon/workitem-fieldmap/internal/presets"
	"github.com/benvon/workitem-fieldmap/internal/telemetry"
	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	debugFlag := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	debugMode := cfg.ServerDebugMode || *debugFlag

	zapLogger, err := logger.NewProductionLogger(debugMode)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync(zapLogger) }()

	zapLogger.Info("starting_server",
		zap.Bool("debug_mode", debugMode),
		zap.String("server_port", cfg.ServerPort),
		zap.String("frontend_url", cfg.FrontendURL),
		zap.String("preset_backend", cfg.PresetBackend),
		zap.Bool("catalog_configured", cfg.CatalogConfigured()),
		zap.Bool("otel_enabled", cfg.OTELEnabled),
	)

	tracingEnabled := false
	if cfg.OTELEnabled {
		tp, err := telemetry.InitTracer(context.Background(), telemetry.ServiceName, cfg.OTELEndpoint)
		if err != nil {
			zapLogger.Warn("failed_to_initialize_otel_tracer", zap.Error(err))
		} else {
			tracingEnabled = true
			zapLogger.Info("otel_tracer_initialized", zap.String("endpoint", cfg.OTELEndpoint))
			defer func() {
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer shutdownCancel()
				if err := telemetry.Shutdown(shutdownCtx, tp); err != nil {
					zapLogger.Error("failed_to_shutdown_otel_tracer", zap.Error(err))
				}
			}()
		}
	}

	kvStore, err := kv.Open(cfg.PresetBackend, cfg.RedisURL, cfg.DatabaseURL)
	if err != nil {
		zapLogger.Fatal("failed_to_connect_to_preset_store",
			zap.String("backend", cfg.PresetBackend),
			zap.Error(err),
		)
	}
	defer func() {
		if err := kvStore.Close(); err != nil {
			zapLogger.Warn("failed_to_close_preset_store", zap.Error(err))
		}
	}()
	zapLogger.Info("connected_to_preset_store", zap.String("backend", cfg.PresetBackend))

	healthDeps := map[string]handlers.Pinger{"preset_store": kvStore}

	var publisher events.Publisher = events.NoopPublisher{}
	if cfg.RabbitMQURL != "" {
		rabbit, err := connectRabbitMQ(cfg.RabbitMQURL, zapLogger)
		if err != nil {
			zapLogger.Warn("preset_events_disabled", zap.Error(err))
		} else {
			publisher = rabbit
			healthDeps["events"] = handlers.PingerFunc(rabbit.HealthCheck)
		}
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			zapLogger.Warn("failed_to_close_event_publisher", zap.Error(err))
		}
	}()

	presetStore := events.NewNotifyingStore(
		presets.NewKVStore(kvStore,
			presets.WithKey(cfg.PresetStoreKey),
			presets.WithLogger(zapLogger),
		),
		publisher,
		zapLogger,
	)

	catalogCache := newCatalogCache(cfg, zapLogger)

	engine := mapping.NewEngine(presetStore, catalogCache, mapping.WithLogger(zapLogger))
	loadCtx, loadCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := engine.LoadPresets(loadCtx); err != nil {
		// preset writes retry the load and fail until it succeeds
		zapLogger.Warn("failed_to_load_presets_using_defaults", zap.Error(err))
	}
	loadCancel()

	var redisClient *redis.Client
	if rs, ok := kvStore.(*kv.RedisStore); ok {
		redisClient = rs.Client()
	}
	limiterStore, err := middleware.NewLimiterStore(redisClient)
	if err != nil {
		zapLogger.Fatal("failed_to_create_rate_limiter_store", zap.Error(err))
	}
	rateLimitMW, err := middleware.RateLimit(limiterStore, cfg.RateLimit)
	if err != nil {
		zapLogger.Fatal("failed_to_create_rate_limiter", zap.Error(err))
	}

	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()

	mappingHandler := handlers.NewMappingHandler(engine, zapLogger)
	catalogHandler := handlers.NewCatalogHandler(bgCtx, catalogCache)
	healthChecker := handlers.NewHealthChecker(healthDeps)

	r := mux.NewRouter()

	// gorilla/mux runs middleware in registration order, first registered is outermost
	if tracingEnabled {
		r.Use(telemetry.Middleware())
	}
	r.Use(middleware.RequestID)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.CORS(cfg.FrontendURL, zapLogger))
	r.Use(middleware.MaxRequestSize(middleware.DefaultMaxRequestSize))
	r.Use(middleware.ContentType)
	r.Use(middleware.Recover(zapLogger))
	r.Use(middleware.Logging(zapLogger))

	r.HandleFunc("/healthz", healthChecker.HealthCheck).Methods("GET")

	apiRouter := r.PathPrefix("/api/v1").Subrouter()
	apiRouter.Use(rateLimitMW)
	mappingHandler.RegisterRoutes(apiRouter)
	catalogHandler.RegisterRoutes(apiRouter)

	// Preflight requests need a matching route for the CORS middleware to run
	r.Methods("OPTIONS").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	if cfg.CatalogConfigured() {
		go catalogCache.Start(bgCtx, cfg.CatalogRefreshInterval)
	}

	srv := &http.Server{
		Addr:           ":" + cfg.ServerPort,
		Handler:        r,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   15 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		zapLogger.Info("server_starting", zap.String("port", cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLogger.Fatal("server_failed_to_start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("server_shutting_down")
	bgCancel()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		zapLogger.Error("server_forced_to_shutdown", zap.Error(err))
	}

	zapLogger.Info("server_exited")
}

// newCatalogCache builds the catalog snapshot. Without tracker credentials the
// cache stays empty and every reference falls back to its own name.
func newCatalogCache(cfg *config.Config, zapLogger *zap.Logger) *catalog.Cache {
	if !cfg.CatalogConfigured() {
		zapLogger.Warn("catalog_not_configured")
		return catalog.NewCache(nil, cfg.AzureDevOpsProject, zapLogger)
	}

	client, err := catalog.NewAzureDevOpsClient(catalog.AzureDevOpsConfig{
		BaseURL:             cfg.AzureDevOpsBaseURL,
		Organization:        cfg.AzureDevOpsOrg,
		PersonalAccessToken: cfg.AzureDevOpsPAT,
		BearerToken:         cfg.AzureDevOpsBearerToken,
	})
	if err != nil {
		zapLogger.Warn("failed_to_create_catalog_client", zap.Error(err))
		return catalog.NewCache(nil, cfg.AzureDevOpsProject, zapLogger)
	}
	return catalog.NewCache(client, cfg.AzureDevOpsProject, zapLogger)
}

const (
	rabbitMQMaxRetries   = 5
	rabbitMQInitialDelay = 2 * time.Second
	rabbitMQMaxDelay     = 30 * time.Second
)

// connectRabbitMQ retries with exponential backoff to ride out broker startup
func connectRabbitMQ(url string, zapLogger *zap.Logger) (*events.RabbitMQPublisher, error) {
	return retryConnect(func() (*events.RabbitMQPublisher, error) {
		return events.NewRabbitMQPublisher(url)
	}, time.Sleep, zapLogger)
}

// retryConnect calls dial up to rabbitMQMaxRetries times, sleeping between
// attempts but not after the last one
func retryConnect(dial func() (*events.RabbitMQPublisher, error), sleep func(time.Duration), zapLogger *zap.Logger) (*events.RabbitMQPublisher, error) {
	var lastErr error
	for attempt := 0; attempt < rabbitMQMaxRetries; attempt++ {
		publisher, err := dial()
		if err == nil {
			zapLogger.Info("connected_to_rabbitmq")
			return publisher, nil
		}
		lastErr = err
		if attempt == rabbitMQMaxRetries-1 {
			break
		}

		delay := rabbitMQInitialDelay * time.Duration(1<<uint(attempt))
		if delay > rabbitMQMaxDelay {
			delay = rabbitMQMaxDelay
		}
		zapLogger.Warn("failed_to_connect_to_rabbitmq_retrying",
			zap.Int("attempt", attempt+1),
			zap.Int("max_retries", rabbitMQMaxRetries),
			zap.Duration("retry_delay", delay),
			zap.Error(err),
		)
		sleep(delay)
	}
	return nil, lastErr
}
