package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/benvon/smart-meds/internal/config"
	"github.com/benvon/smart-meds/internal/database"
	"github.com/benvon/smart-meds/internal/handlers"
	"github.com/benvon/smart-meds/internal/logger"
	"github.com/benvon/smart-meds/internal/middleware"
	"github.com/benvon/smart-meds/internal/queue"
	"github.com/benvon/smart-meds/internal/services/adherence"
	"github.com/benvon/smart-meds/internal/services/ai"
	"github.com/benvon/smart-meds/internal/services/assistant"
	"github.com/benvon/smart-meds/internal/services/catalog"
	"github.com/benvon/smart-meds/internal/services/interactions"
	"github.com/benvon/smart-meds/internal/services/oidc"
	"github.com/benvon/smart-meds/internal/services/reorganize"
	"github.com/benvon/smart-meds/internal/telemetry"
	"github.com/gorilla/mux"
	"github.com/ulule/limiter/v3"
	redisstore "github.com/ulule/limiter/v3/drivers/store/redis"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
	"go.uber.org/zap"
)

const (
	serviceName          = "smart-meds-api"
	settingsReload       = 1 * time.Minute
	jwksCacheTTL         = 15 * time.Minute
	dlqGCInterval        = 1 * time.Hour
	dlqRetention         = 24 * time.Hour
	streamWriteTimeout   = 2 * middleware.DefaultRequestTimeout
	shutdownGracePeriod  = 30 * time.Second
	tracerShutdownPeriod = 5 * time.Second
)

func main() {
	debugFlag := flag.Bool("debug", false, "Enable debug mode for LLM API logging")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	debugMode := cfg.ServerDebugMode || *debugFlag

	zapLogger, err := logger.NewProductionLogger("server", debugMode)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync(zapLogger)

	zapLogger.Info("starting_server",
		zap.Bool("debug_mode", debugMode),
		zap.String("server_port", cfg.ServerPort),
		zap.String("frontend_url", cfg.FrontendURL),
		zap.String("ai_provider", cfg.AIProvider),
		zap.String("ai_model", cfg.AIModel),
		zap.String("timezone", cfg.Location.String()),
		zap.Bool("otel_enabled", cfg.OTELEnabled),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tracingEnabled := false
	if cfg.OTELEnabled {
		if cfg.OTELEndpoint == "" {
			zapLogger.Warn("otel_enabled_but_endpoint_not_configured")
		} else {
			tp, err := telemetry.InitTracer(ctx, telemetry.Config{
				ServiceName: serviceName,
				Endpoint:    cfg.OTELEndpoint,
				Insecure:    cfg.OTELInsecure,
				SampleRatio: cfg.OTELSampleRatio,
			})
			if err != nil {
				zapLogger.Warn("failed_to_initialize_otel_tracer", zap.Error(err))
			} else {
				tracingEnabled = true
				zapLogger.Info("otel_tracer_initialized", zap.String("endpoint", cfg.OTELEndpoint))
				defer func() {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), tracerShutdownPeriod)
					defer cancel()
					if err := telemetry.Shutdown(shutdownCtx, tp); err != nil {
						zapLogger.Error("failed_to_shutdown_otel_tracer", zap.Error(err))
					}
				}()
			}
		}
	}

	if err := database.RunMigrations(cfg.DatabaseURL, zapLogger); err != nil {
		zapLogger.Fatal("failed_to_run_migrations", zap.Error(err))
	}

	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		zapLogger.Fatal("failed_to_connect_to_database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			zapLogger.Warn("failed_to_close_database_connection", zap.Error(err))
		}
	}()
	zapLogger.Info("connected_to_database")

	redisClient, err := middleware.NewRedisClient(cfg.RedisURL)
	if err != nil {
		zapLogger.Fatal("failed_to_connect_to_redis", zap.Error(err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			zapLogger.Warn("failed_to_close_redis_connection", zap.Error(err))
		}
	}()
	limiterStore, err := redisstore.NewStoreWithOptions(redisClient.Client(), limiter.StoreOptions{
		Prefix: "smart_meds_ratelimit",
	})
	if err != nil {
		zapLogger.Fatal("failed_to_create_rate_limit_store", zap.Error(err))
	}
	zapLogger.Info("connected_to_redis")

	jobQueue, err := queue.ConnectRabbitMQ(ctx, cfg.RabbitMQURL, queue.DefaultConnectAttempts, zapLogger)
	if err != nil {
		zapLogger.Fatal("failed_to_connect_to_rabbitmq", zap.Error(err))
	}
	defer func() {
		if err := jobQueue.Close(); err != nil {
			zapLogger.Warn("failed_to_close_rabbitmq_connection", zap.Error(err))
		}
	}()
	zapLogger.Info("connected_to_rabbitmq")

	aiProvider, err := createAIProvider(cfg, zapLogger, debugMode)
	if err != nil {
		zapLogger.Fatal("failed_to_create_ai_provider", zap.Error(err))
	}

	if cfg.OIDCIssuer == "" {
		zapLogger.Fatal("oidc_issuer_not_configured")
	}
	verifier := oidc.NewVerifier(
		oidc.NewJWKSManager(&http.Client{Timeout: 10 * time.Second}, jwksCacheTTL),
		cfg.OIDCIssuer,
		cfg.JWKSURL(),
	)

	// Repositories
	userRepo := database.NewUserRepository(db)
	medicationRepo := database.NewMedicationRepository(db)
	userMedRepo := database.NewUserMedicationRepository(db)
	logRepo := database.NewMedicationLogRepository(db)
	factRepo := database.NewInteractionFactRepository(db)
	alertRepo := database.NewInteractionAlertRepository(db)
	chatRepo := database.NewChatRepository(db)
	settingsRepo := database.NewSettingsRepository(db)

	// Services
	reminders := queue.NewScheduler(jobQueue)
	interactionEngine := interactions.NewEngine(userMedRepo, medicationRepo, factRepo, alertRepo, db, aiProvider, zapLogger, cfg.Now)
	reorganizer := reorganize.NewEngine(userMedRepo, db, reminders, zapLogger, cfg.Now)
	reports := adherence.NewService(userMedRepo, logRepo, alertRepo, cfg.Location, zapLogger)
	assistantService := assistant.NewService(assistant.Deps{
		Chat:         chatRepo,
		UserMeds:     userMedRepo,
		Alerts:       alertRepo,
		Provider:     aiProvider,
		Interactions: interactionEngine,
		Reorganizer:  reorganizer,
		Catalog:      catalog.NewService(medicationRepo, cfg.CatalogSearchLimit),
		Reminders:    reminders,
	}, assistant.Config{
		Model:         cfg.AIModel,
		Temperature:   cfg.AITemperature,
		HistoryWindow: cfg.ChatHistoryWindow,
	}, zapLogger, cfg.Now)

	healthChecker := handlers.NewHealthChecker(zapLogger).
		Register("database", db.PingContext).
		Register("redis", redisClient.Ping).
		Register("rabbitmq", jobQueue.HealthCheck)

	corsReloader := middleware.NewCORSReloader(settingsRepo, cfg.FrontendURL, zapLogger, settingsReload)
	rateLimitReloader := middleware.NewRateLimitReloader(limiterStore, settingsRepo, middleware.DefaultRate, zapLogger, settingsReload)

	r := mux.NewRouter()
	// gorilla/mux runs middleware in registration order: the first registered is outermost.
	if tracingEnabled {
		r.Use(otelmux.Middleware(serviceName))
	}
	r.Use(middleware.RequestID)
	r.Use(middleware.Logging(zapLogger))
	r.Use(middleware.ErrorHandler(zapLogger))
	r.Use(middleware.Audit(zapLogger))
	r.Use(middleware.SecurityHeaders(cfg.EnableHSTS))
	r.Use(middleware.MaxRequestSize(middleware.DefaultMaxRequestSize, zapLogger))
	r.Use(middleware.ContentType(zapLogger))
	r.Use(middleware.Timeout(middleware.DefaultRequestTimeout))

	r.HandleFunc("/healthz", healthChecker.HealthCheck).Methods(http.MethodGet)
	r.HandleFunc("/version", versionInfo).Methods(http.MethodGet)
	handlers.NewOpenAPIHandler(nil).RegisterRoutes(r)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(middleware.Auth(verifier, userRepo, zapLogger))
	api.Use(middleware.TagUser)
	api.Use(rateLimitReloader.Middleware())
	handlers.NewChatHandler(assistantService, zapLogger).RegisterRoutes(api)
	handlers.NewMedicationHandler(interactionEngine, alertRepo, reorganizer, reports, zapLogger, cfg.Now).RegisterRoutes(api)

	srv := &http.Server{
		Addr: ":" + cfg.ServerPort,
		// CORS wraps the router so preflight requests are answered before route matching.
		Handler:           corsReloader.Middleware()(r),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      streamWriteTimeout,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go corsReloader.Start(ctx)
	go rateLimitReloader.Start(ctx)

	dlqGC := queue.NewGarbageCollector(jobQueue, dlqGCInterval, dlqRetention, zapLogger)
	go func() {
		if err := dlqGC.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			zapLogger.Error("dlq_garbage_collector_stopped_with_error", zap.Error(err))
		}
	}()
	zapLogger.Info("started_dlq_garbage_collector",
		zap.Duration("interval", dlqGCInterval),
		zap.Duration("retention", dlqRetention),
	)

	go func() {
		zapLogger.Info("server_starting", zap.String("port", cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLogger.Fatal("server_failed_to_start", zap.Error(err))
		}
	}()

	<-ctx.Done()
	zapLogger.Info("server_shutting_down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("server_forced_to_shutdown", zap.Error(err))
	}
	zapLogger.Info("server_exited")
}

// createAIProvider creates an AI provider based on configuration
func createAIProvider(cfg *config.Config, logger *zap.Logger, debugMode bool) (ai.AIProvider, error) {
	if cfg.OpenAIKey == "" {
		return nil, fmt.Errorf("OpenAI API key not configured")
	}
	providerType := cfg.AIProvider
	if providerType == "" {
		providerType = "openai"
	}
	return ai.NewDefaultRegistry(logger, debugMode).GetProvider(providerType, map[string]string{
		"api_key":  cfg.OpenAIKey,
		"model":    cfg.AIModel,
		"base_url": cfg.AIBaseURL,
	})
}

func versionInfo(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, `{"version":"1.0.0","timestamp":"%s"}`, time.Now().UTC().Format(time.RFC3339))
}
