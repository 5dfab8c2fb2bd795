package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"github.com/pharmacy-platform/pharmacy-service/pkg/idempotency"
	"github.com/pharmacy-platform/pharmacy-service/pkg/kafka"
	"github.com/pharmacy-platform/pharmacy-service/pkg/logging"
	"github.com/pharmacy-platform/pharmacy-service/pkg/metrics"
	"github.com/pharmacy-platform/pharmacy-service/pkg/middleware"
	"github.com/pharmacy-platform/pharmacy-service/pkg/mongodb"
	"github.com/pharmacy-platform/pharmacy-service/pkg/outbox"
	outboxMongo "github.com/pharmacy-platform/pharmacy-service/pkg/outbox/mongodb"
	"github.com/pharmacy-platform/pharmacy-service/pkg/resilience"
	"github.com/pharmacy-platform/pharmacy-service/pkg/tracing"

	"github.com/pharmacy-platform/pharmacy-service/internal/api"
	"github.com/pharmacy-platform/pharmacy-service/internal/application"
	"github.com/pharmacy-platform/pharmacy-service/internal/infrastructure/export"
	mongoRepo "github.com/pharmacy-platform/pharmacy-service/internal/infrastructure/mongodb"
	redisLock "github.com/pharmacy-platform/pharmacy-service/internal/infrastructure/redis"
)

const serviceName = "pharmacy-service"

func main() {
	// A missing .env file is fine; the environment may already be set
	_ = godotenv.Load()

	logConfig := logging.DefaultConfig(serviceName)
	logConfig.Level = logging.ParseLevel(getEnv("LOG_LEVEL", "info"))
	logger := logging.New(logConfig)
	logger.SetDefault()

	logger.Info("Starting pharmacy-service API")

	config := loadConfig()
	ctx := context.Background()

	// Initialize OpenTelemetry tracing
	tracingConfig := tracing.DefaultConfig(serviceName)
	tracingConfig.OTLPEndpoint = config.OTLPEndpoint
	tracingConfig.Environment = config.Environment
	tracingConfig.Enabled = config.TracingEnabled

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
		logger.Info("Tracing initialized", "enabled", config.TracingEnabled, "endpoint", config.OTLPEndpoint)
	}

	m := metrics.New(metrics.DefaultConfig(serviceName))
	logger.Info("Metrics initialized")

	// Connect to MongoDB, retrying while the server comes up
	var mongoClient *mongodb.Client
	err = resilience.Retry(ctx, resilience.DefaultRetryConfig(), func() error {
		var connectErr error
		mongoClient, connectErr = mongodb.NewClient(ctx, config.MongoDB)
		if connectErr != nil {
			logger.WithError(connectErr).Warn("MongoDB not reachable yet")
		}
		return connectErr
	})
	if err != nil {
		logger.WithError(err).Error("Failed to connect to MongoDB")
		os.Exit(1)
	}
	instrumentedMongo := mongodb.NewInstrumentedClient(mongoClient, m, logger)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := instrumentedMongo.Close(closeCtx); err != nil {
			logger.WithError(err).Error("Failed to close MongoDB client")
		}
	}()
	logger.Info("Connected to MongoDB", "database", config.MongoDB.Database)

	medicineRepo := mongoRepo.NewMedicineRepository(instrumentedMongo)
	orderRepo := mongoRepo.NewOrderRepository(instrumentedMongo)
	outboxRepo := outboxMongo.NewOutboxRepository(instrumentedMongo)
	idempotencyRepo := idempotency.NewMongoKeyRepository(instrumentedMongo)

	indexed := map[string]interface{ EnsureIndexes(context.Context) error }{
		"medicines":   medicineRepo,
		"orders":      orderRepo,
		"outbox":      outboxRepo,
		"idempotency": idempotencyRepo,
	}
	for name, repo := range indexed {
		if err := repo.EnsureIndexes(ctx); err != nil {
			logger.WithError(err).Warn("Failed to ensure indexes", "collection", name)
		}
	}
	logger.Info("Repositories initialized")

	// Events are always written to the outbox; relaying them needs Kafka
	if config.OutboxEnabled && len(config.Kafka.Brokers) > 0 {
		kafkaProducer := kafka.NewProducer(config.Kafka)
		instrumentedProducer := kafka.NewInstrumentedProducer(kafkaProducer, m, logger)
		defer instrumentedProducer.Close()

		outboxPublisher := outbox.NewPublisher(outboxRepo, instrumentedProducer, logger, m, outbox.DefaultPublisherConfig())
		if err := outboxPublisher.Start(ctx); err != nil {
			logger.WithError(err).Error("Failed to start outbox publisher")
			os.Exit(1)
		}
		defer outboxPublisher.Stop()
		logger.Info("Outbox publisher started", "brokers", config.Kafka.Brokers)
	} else {
		logger.Info("Outbox publisher disabled, events stay in the outbox collection")
	}

	var locker application.OrderLocker = application.NopLocker{}
	if config.RedisAddr != "" {
		lockConfig := redisLock.DefaultConfig(config.RedisAddr)
		redisClient, err := redisLock.NewClient(ctx, lockConfig)
		if err != nil {
			logger.WithError(err).Error("Failed to connect to Redis")
			os.Exit(1)
		}
		defer redisClient.Close()
		locker = redisLock.NewOrderLocker(redisClient, lockConfig, logger)
		logger.Info("Order lock enabled", "addr", config.RedisAddr)
	} else {
		logger.Info("REDIS_ADDR not set, order status changes are not serialised across instances")
	}

	recorder := outbox.NewWriter(outboxRepo)

	medicineService := application.NewMedicineApplicationService(
		medicineRepo,
		recorder,
		export.NewInventoryWorkbook(config.LowStockThreshold),
		logger,
		m,
		config.LowStockThreshold,
	)
	orderService := application.NewOrderApplicationService(
		orderRepo,
		medicineRepo,
		recorder,
		locker,
		logger,
		m,
	)
	reportService := application.NewReportApplicationService(
		medicineRepo,
		orderRepo,
		logger,
		m,
		config.LowStockThreshold,
	)

	idempotencyConfig := idempotency.DefaultConfig(serviceName, idempotencyRepo, logger)
	idempotencyConfig.Metrics = m
	idempotencyConfig.UserIDExtractor = func(c *gin.Context) string {
		return middleware.GetIdentity(c).UserID
	}

	gin.SetMode(config.GinMode)
	router := api.NewRouter(api.RouterConfig{
		ServiceName:    serviceName,
		Logger:         logger,
		Metrics:        m,
		EnableTracing:  config.TracingEnabled,
		AllowedOrigins: config.AllowedOrigins,
		Idempotency:    idempotency.Middleware(idempotencyConfig),
		ReadinessChecks: map[string]func(context.Context) error{
			"mongodb": instrumentedMongo.HealthCheck,
		},
	}, api.Services{
		Medicines: medicineService,
		Orders:    orderService,
		Reports:   reportService,
	})

	srv := &http.Server{
		Addr:         config.ServerAddr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
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
	ServerAddr        string
	GinMode           string
	Environment       string
	MongoDB           *mongodb.Config
	Kafka             *kafka.Config
	OutboxEnabled     bool
	RedisAddr         string
	OTLPEndpoint      string
	TracingEnabled    bool
	LowStockThreshold int
	AllowedOrigins    []string
}

func loadConfig() *Config {
	mongoConfig := mongodb.DefaultConfig()
	mongoConfig.URI = getEnv("MONGODB_URI", mongoConfig.URI)
	mongoConfig.Database = getEnv("MONGODB_DATABASE", mongoConfig.Database)

	kafkaConfig := kafka.DefaultConfig()
	kafkaConfig.ClientID = serviceName
	kafkaConfig.Brokers = splitList(getEnv("KAFKA_BROKERS", ""))

	return &Config{
		ServerAddr:        getEnv("SERVER_ADDR", ":8080"),
		GinMode:           getEnv("GIN_MODE", gin.ReleaseMode),
		Environment:       getEnv("ENVIRONMENT", "development"),
		MongoDB:           mongoConfig,
		Kafka:             kafkaConfig,
		OutboxEnabled:     getEnv("OUTBOX_ENABLED", "true") == "true",
		RedisAddr:         getEnv("REDIS_ADDR", ""),
		OTLPEndpoint:      getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		TracingEnabled:    getEnv("TRACING_ENABLED", "false") == "true",
		LowStockThreshold: getEnvInt("LOW_STOCK_THRESHOLD", 5),
		AllowedOrigins:    splitList(getEnv("CORS_ALLOWED_ORIGINS", "*")),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value, err := strconv.Atoi(getEnv(key, ""))
	if err != nil || value < 0 {
		return defaultValue
	}
	return value
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
