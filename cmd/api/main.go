package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/wms-platform/qrbatch-service/internal/api/handlers"
	"github.com/wms-platform/qrbatch-service/internal/application"
	"github.com/wms-platform/qrbatch-service/internal/infrastructure/dispatch"
	"github.com/wms-platform/qrbatch-service/internal/infrastructure/export"
	mongoRepo "github.com/wms-platform/qrbatch-service/internal/infrastructure/mongodb"
	"github.com/wms-platform/qrbatch-service/internal/infrastructure/storage"
	"github.com/wms-platform/qrbatch-service/pkg/cloudevents"
	"github.com/wms-platform/qrbatch-service/pkg/idempotency"
	"github.com/wms-platform/qrbatch-service/pkg/kafka"
	"github.com/wms-platform/qrbatch-service/pkg/logging"
	"github.com/wms-platform/qrbatch-service/pkg/metrics"
	"github.com/wms-platform/qrbatch-service/pkg/middleware"
	"github.com/wms-platform/qrbatch-service/pkg/mongodb"
	"github.com/wms-platform/qrbatch-service/pkg/outbox"
	outboxMongo "github.com/wms-platform/qrbatch-service/pkg/outbox/mongodb"
	"github.com/wms-platform/qrbatch-service/pkg/resilience"
	"github.com/wms-platform/qrbatch-service/pkg/temporal"
	"github.com/wms-platform/qrbatch-service/pkg/tracing"
)

const serviceName = "qrbatch-service"

func main() {
	// A missing .env is fine; the environment wins either way
	_ = godotenv.Load()

	logConfig := logging.DefaultConfig(serviceName)
	logConfig.Level = logging.ParseLevel(os.Getenv("LOG_LEVEL"))
	logger := logging.New(logConfig)
	logger.SetDefault()

	logger.Info("Starting qrbatch-service API")

	config := loadConfig()
	ctx := context.Background()

	tracingConfig := tracing.DefaultConfig(serviceName)
	tracingConfig.OTLPEndpoint = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317")
	tracingConfig.Environment = getEnv("ENVIRONMENT", "development")
	tracingConfig.Enabled = getEnv("TRACING_ENABLED", "true") == "true"

	tracerProvider, err := tracing.Initialize(ctx, tracingConfig)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize tracing")
	} else if tracerProvider != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
				logger.WithError(err).Error("Failed to shutdown tracer")
			}
		}()
		logger.Info("Tracing initialized", "endpoint", tracingConfig.OTLPEndpoint)
	}

	m := metrics.New(metrics.DefaultConfig(serviceName))
	breakers := resilience.NewCircuitBreakerRegistry(logger.Logger, m)

	config.MongoDB.Monitor = mongodb.NewCommandMonitor(m, logger)
	mongoClient, err := mongodb.NewClient(ctx, config.MongoDB)
	if err != nil {
		logger.WithError(err).Error("Failed to connect to MongoDB")
		os.Exit(1)
	}
	defer mongoClient.Close(ctx)
	db := mongoClient.Database()
	logger.Info("Connected to MongoDB", "database", config.MongoDB.Database)

	eventFactory := cloudevents.NewEventFactory(cloudevents.SourceQRBatch)
	repos := mongoRepo.NewRepositories(db, eventFactory)
	outboxRepo := outboxMongo.NewOutboxRepository(db)
	idempotencyRepo := idempotency.NewMongoRepository(db)

	for name, ensure := range map[string]func(context.Context) error{
		"service":     repos.EnsureIndexes,
		"outbox":      outboxRepo.EnsureIndexes,
		"idempotency": idempotencyRepo.EnsureIndexes,
	} {
		if err := ensure(ctx); err != nil {
			logger.WithError(err).Warn("Failed to create indexes", "set", name)
		}
	}

	producer := kafka.NewProducer(config.Kafka, breakers.Get("kafka"), m, logger)
	defer producer.Close()
	logger.Info("Kafka producer initialized", "brokers", config.Kafka.Brokers)

	outboxPublisher := outbox.NewPublisher(outboxRepo, producer, logger, m, outbox.DefaultPublisherConfig())
	if err := outboxPublisher.Start(ctx); err != nil {
		logger.WithError(err).Error("Failed to start outbox publisher")
		os.Exit(1)
	}
	defer outboxPublisher.Stop()
	logger.Info("Outbox publisher started")

	temporalClient, err := temporal.NewClient(ctx, config.Temporal)
	if err != nil {
		logger.WithError(err).Error("Failed to create Temporal client")
		os.Exit(1)
	}
	defer temporalClient.Close()
	logger.Info("Connected to Temporal", "hostPort", config.Temporal.HostPort)

	files, err := storage.NewLocalFileStore(config.Storage)
	if err != nil {
		logger.WithError(err).Error("Failed to open export store")
		os.Exit(1)
	}

	dispatcher := dispatch.NewTemporalDispatcher(temporalClient, logger, m)
	appRepos := application.Repositories{
		Batches:       repos.Batches,
		Codes:         repos.Codes,
		Movements:     repos.Movements,
		Reports:       repos.Reports,
		Payments:      repos.Payments,
		ReverseJobs:   repos.ReverseJobs,
		PreparedCodes: repos.PreparedCodes,
		JobLogs:       repos.JobLogs,
	}

	batchService := application.NewBatchService(
		appRepos,
		dispatcher,
		export.NewManifestExporter(export.DefaultManifestConfig()),
		export.NewLabelSheetExporter(export.DefaultSheetConfig()),
		storage.NewBreakerFileStore(files, breakers.Get("file-store")),
		m,
		logger,
		config.Options,
	)
	packingService := application.NewPackingService(appRepos, dispatcher, m, logger, config.Options)
	reverseJobService := application.NewReverseJobService(appRepos, dispatcher, m, logger, config.Options)

	router := gin.New()
	middleware.Setup(router, middleware.DefaultConfig(serviceName, logger.Logger))
	router.Use(middleware.MetricsMiddleware(m))
	router.Use(middleware.TracingMiddleware(serviceName))

	router.NoRoute(middleware.NoRoute())
	router.NoMethod(middleware.NoMethod())

	router.GET("/health", middleware.HealthCheck(serviceName))
	router.GET("/ready", middleware.ReadinessCheck(serviceName, func() error {
		if err := mongoClient.HealthCheck(ctx); err != nil {
			return err
		}
		return temporalClient.HealthCheck(ctx)
	}))
	router.GET("/metrics", middleware.MetricsEndpoint(m))
	router.GET("/openapi.yaml", handlers.OpenAPIHandler())

	// Signed download links carry their own credential
	handlers.RegisterFileRoutes(router.Group(""), files, logger)

	api := router.Group("/api/v1")
	api.Use(middleware.RequireTenantAuth())
	api.Use(middleware.ContentType())
	handlers.RegisterRoutes(api, handlers.Services{
		Batches:     batchService,
		Packing:     packingService,
		ReverseJobs: reverseJobService,
		Logger:      logger,
		Idempotency: idempotency.Middleware(idempotency.DefaultConfig(idempotencyRepo, logger.Logger)),
	})

	srv := &http.Server{
		Addr:         config.ServerAddr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server error", "error", err)
		}
	}()
	logger.Info("Server started", "addr", config.ServerAddr)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	logger.Info("Server stopped")
}

// Config holds application configuration
type Config struct {
	ServerAddr string
	MongoDB    *mongodb.Config
	Kafka      *kafka.Config
	Temporal   *temporal.Config
	Storage    storage.Config
	Options    application.Options
}

func loadConfig() *Config {
	kafkaConfig := kafka.DefaultConfig()
	kafkaConfig.Brokers = []string{getEnv("KAFKA_BROKERS", "localhost:9092")}
	kafkaConfig.ClientID = serviceName

	opts := application.DefaultOptions()
	opts.ChunkSize = getEnvInt("PACKING_CHUNK_SIZE", application.DefaultChunkSize)
	opts.LeaseTTL = getEnvDuration("LEASE_TTL", application.DefaultLeaseTTL)
	opts.ExportURLTTL = getEnvDuration("EXPORT_URL_TTL", application.DefaultExportURLTTL)
	opts.ExportPageSize = getEnvInt("EXPORT_PAGE_SIZE", application.DefaultExportPageSize)
	opts.MaxLabelsPerSheet = getEnvInt("MAX_LABELS_PER_SHEET", application.DefaultMaxLabelsPerSheet)

	return &Config{
		ServerAddr: getEnv("SERVER_ADDR", ":8020"),
		MongoDB: &mongodb.Config{
			URI:            getEnv("MONGODB_URI", "mongodb://localhost:27017"),
			Database:       getEnv("MONGODB_DATABASE", "qrbatch_db"),
			ConnectTimeout: 10 * time.Second,
			MaxPoolSize:    100,
			MinPoolSize:    10,
		},
		Kafka: kafkaConfig,
		Temporal: &temporal.Config{
			HostPort:  getEnv("TEMPORAL_HOST", "localhost:7233"),
			Namespace: getEnv("TEMPORAL_NAMESPACE", "default"),
			Identity:  "qrbatch-api",
		},
		Storage: storage.Config{
			RootDir:       getEnv("EXPORT_DIR", "./exports"),
			BaseURL:       getEnv("EXPORT_BASE_URL", "http://localhost:8020"),
			SigningSecret: getEnv("EXPORT_SIGNING_SECRET", ""),
		},
		Options: opts,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil && n > 0 {
		return n
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil && d > 0 {
		return d
	}
	return defaultValue
}
