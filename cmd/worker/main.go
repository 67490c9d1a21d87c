package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/workflow"

	"github.com/wms-platform/qrbatch-service/internal/activities"
	"github.com/wms-platform/qrbatch-service/internal/application"
	"github.com/wms-platform/qrbatch-service/internal/infrastructure/dispatch"
	"github.com/wms-platform/qrbatch-service/internal/infrastructure/export"
	mongoRepo "github.com/wms-platform/qrbatch-service/internal/infrastructure/mongodb"
	"github.com/wms-platform/qrbatch-service/internal/infrastructure/storage"
	"github.com/wms-platform/qrbatch-service/internal/scheduler"
	"github.com/wms-platform/qrbatch-service/internal/workflows"
	"github.com/wms-platform/qrbatch-service/pkg/cloudevents"
	"github.com/wms-platform/qrbatch-service/pkg/kafka"
	"github.com/wms-platform/qrbatch-service/pkg/logging"
	"github.com/wms-platform/qrbatch-service/pkg/metrics"
	"github.com/wms-platform/qrbatch-service/pkg/mongodb"
	"github.com/wms-platform/qrbatch-service/pkg/outbox"
	outboxMongo "github.com/wms-platform/qrbatch-service/pkg/outbox/mongodb"
	"github.com/wms-platform/qrbatch-service/pkg/resilience"
	"github.com/wms-platform/qrbatch-service/pkg/temporal"
)

const serviceName = "qrbatch-worker"

func main() {
	_ = godotenv.Load()

	logConfig := logging.DefaultConfig(serviceName)
	logConfig.Level = logging.ParseLevel(os.Getenv("LOG_LEVEL"))
	logger := logging.New(logConfig)
	logger.SetDefault()

	logger.Info("Starting qrbatch worker")

	config := loadConfig()
	ctx := context.Background()

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

	repos := mongoRepo.NewRepositories(db, cloudevents.NewEventFactory(cloudevents.SourceQRBatch))

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

	chunkActivities := activities.NewChunkActivities(batchService, packingService, reverseJobService, m)

	w := temporalClient.NewWorker(temporal.DefaultWorkerOptions(temporal.TaskQueues.QRBatch))

	w.RegisterWorkflowWithOptions(workflows.QRGenerationWorkflow, workflow.RegisterOptions{Name: temporal.WorkflowNames.QRGeneration})
	w.RegisterWorkflowWithOptions(workflows.QRPackingWorkflow, workflow.RegisterOptions{Name: temporal.WorkflowNames.QRPacking})
	w.RegisterWorkflowWithOptions(workflows.ReverseJobWorkflow, workflow.RegisterOptions{Name: temporal.WorkflowNames.ReverseJob})
	logger.Info("Registered workflows")

	w.RegisterActivityWithOptions(chunkActivities.GenerateChunk, activity.RegisterOptions{Name: workflows.ActivityNames.GenerateChunk})
	w.RegisterActivityWithOptions(chunkActivities.PackingChunk, activity.RegisterOptions{Name: workflows.ActivityNames.PackingChunk})
	w.RegisterActivityWithOptions(chunkActivities.ReverseJobChunk, activity.RegisterOptions{Name: workflows.ActivityNames.ReverseJobChunk})
	logger.Info("Registered activities")

	producer := kafka.NewProducer(config.Kafka, breakers.Get("kafka"), m, logger)
	defer producer.Close()

	outboxPublisher := outbox.NewPublisher(outboxMongo.NewOutboxRepository(db), producer, logger, m, outbox.DefaultPublisherConfig())
	if err := outboxPublisher.Start(ctx); err != nil {
		logger.WithError(err).Error("Failed to start outbox publisher")
		os.Exit(1)
	}
	defer outboxPublisher.Stop()

	monitorConfig := scheduler.DefaultLeaseMonitorConfig()
	monitorConfig.ScanInterval = getEnvDuration("LEASE_SCAN_INTERVAL", monitorConfig.ScanInterval)
	leaseMonitor := scheduler.NewLeaseMonitor(repos.Batches, repos.ReverseJobs, dispatcher, logger, m, monitorConfig)
	if err := leaseMonitor.Start(ctx); err != nil {
		logger.WithError(err).Error("Failed to start lease monitor")
		os.Exit(1)
	}
	defer leaseMonitor.Stop()
	logger.Info("Lease monitor started", "interval", monitorConfig.ScanInterval)

	go func() {
		if err := w.Run(nil); err != nil {
			logger.WithError(err).Error("Worker failed")
			os.Exit(1)
		}
	}()
	logger.Info("Worker started", "taskQueue", temporal.TaskQueues.QRBatch)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down worker...")

	w.Stop()
	logger.Info("Worker stopped")
}

// Config holds worker configuration
type Config struct {
	MongoDB  *mongodb.Config
	Kafka    *kafka.Config
	Temporal *temporal.Config
	Storage  storage.Config
	Options  application.Options
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

	hostname, _ := os.Hostname()
	return &Config{
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
			Identity:  "qrbatch-worker@" + hostname,
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
