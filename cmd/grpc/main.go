package main

import (
	"context"
	"log"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fekuna/omnipos-inventory-service/config"
	"github.com/fekuna/omnipos-inventory-service/internal/inventory"
	invCache "github.com/fekuna/omnipos-inventory-service/internal/inventory/cache"
	invH "github.com/fekuna/omnipos-inventory-service/internal/inventory/handler"
	invListenerPkg "github.com/fekuna/omnipos-inventory-service/internal/inventory/listener"
	invPublisher "github.com/fekuna/omnipos-inventory-service/internal/inventory/publisher"
	invRepoPkg "github.com/fekuna/omnipos-inventory-service/internal/inventory/repository"
	invUCPkg "github.com/fekuna/omnipos-inventory-service/internal/inventory/usecase"
	"github.com/fekuna/omnipos-inventory-service/internal/platform/broker"
	"github.com/fekuna/omnipos-inventory-service/internal/platform/cache"
	"github.com/fekuna/omnipos-inventory-service/internal/platform/database"
	"github.com/fekuna/omnipos-inventory-service/internal/platform/logger"
	"github.com/fekuna/omnipos-inventory-service/internal/platform/middleware"
	"github.com/fekuna/omnipos-inventory-service/internal/platform/observability"

	"github.com/joho/godotenv"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

const serviceName = "omnipos-inventory-service"

func main() {
	// 1. Load Configuration
	_ = godotenv.Load() // Load .env file if it exists
	cfg := config.LoadEnv()

	// 2. Initialize Logger
	logConfig := &logger.ZapLoggerConfig{
		IsDevelopment:     false,
		Encoding:          "json",
		Level:             cfg.Logger.Level,
		DisableCaller:     cfg.Logger.DisableCaller,
		DisableStacktrace: cfg.Logger.DisableStacktrace,
	}

	if cfg.Server.AppEnv == "development" {
		logConfig.IsDevelopment = true
		logConfig.Encoding = "console"
		logConfig.Level = "debug"
	}

	appLogger := logger.NewZapLogger(logConfig)
	defer appLogger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. Tracing
	if cfg.Otel.Enabled {
		shutdownTracing, err := observability.SetupTracingSDK(ctx, &observability.Config{
			ServiceName: serviceName,
			Endpoint:    cfg.Otel.Endpoint,
			Insecure:    cfg.Otel.Insecure,
		})
		if err != nil {
			appLogger.Fatal("Could not set up tracing", zap.Error(err))
		}
		defer func() {
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			if err := shutdownTracing(shutdownCtx); err != nil {
				appLogger.Warn("Tracing shutdown failed", zap.Error(err))
			}
		}()
		appLogger.Info("Tracing enabled", zap.String("endpoint", cfg.Otel.Endpoint))
	}

	// 4. Initialize Repository
	var invRepo inventory.Repository
	switch cfg.Ledger.StorageDriver {
	case "memory":
		invRepo = invRepoPkg.NewMemoryRepository()
		appLogger.Warn("Using in-memory ledger; state is lost on restart")
	default:
		db, err := database.NewPostgres(&database.Config{
			Host:            cfg.Postgres.Host,
			Port:            cfg.Postgres.Port,
			User:            cfg.Postgres.User,
			Password:        cfg.Postgres.Password,
			DBName:          cfg.Postgres.DBName,
			SSLMode:         cfg.Postgres.SSLMode,
			MaxOpenConns:    cfg.Postgres.MaxOpenConns,
			MaxIdleConns:    cfg.Postgres.MaxIdleConns,
			ConnMaxLifetime: time.Duration(cfg.Postgres.ConnMaxLifetime) * time.Second,
			ConnMaxIdleTime: time.Duration(cfg.Postgres.ConnMaxIdleTime) * time.Second,
		})
		if err != nil {
			appLogger.Fatal("Could not connect to database", zap.Error(err))
		}
		defer db.Close()
		if err := invRepoPkg.Migrate(ctx, db); err != nil {
			appLogger.Fatal("Could not migrate database", zap.Error(err))
		}
		appLogger.Info("Connected to PostgreSQL database", zap.String("db_name", cfg.Postgres.DBName))
		invRepo = invRepoPkg.NewPGRepository(db)
	}

	// 5. Initialize Redis
	var (
		recordCache inventory.RecordCache
		syncLocker  inventory.Locker
	)
	if cfg.Redis.Enabled {
		redisClient, err := cache.NewRedisClient(&cache.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			appLogger.Fatal("Could not connect to Redis", zap.Error(err))
		}
		defer redisClient.Close()
		recordCache = invCache.NewRedisRecordCache(redisClient, cfg.Ledger.CacheTTL)
		syncLocker = redisClient
		appLogger.Info("Connected to Redis", zap.String("addr", cfg.Redis.Addr))
	}

	// 6. Initialize Kafka
	var eventPublisher inventory.EventPublisher
	var consumers []*broker.KafkaConsumer
	if cfg.Kafka.Enabled {
		producer := broker.NewProducer(&broker.Config{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.MovementsTopic,
		})
		defer producer.Close()
		eventPublisher = invPublisher.NewKafkaPublisher(producer)

		for _, topic := range []string{cfg.Kafka.CatalogTopic, cfg.Kafka.OrdersTopic} {
			consumer := broker.NewConsumer(&broker.Config{
				Brokers: cfg.Kafka.Brokers,
				Topic:   topic,
				GroupID: cfg.Kafka.GroupID,
			})
			defer consumer.Close()
			consumers = append(consumers, consumer)
		}
		appLogger.Info("Connected to Kafka",
			zap.Strings("brokers", cfg.Kafka.Brokers),
			zap.Strings("topics", []string{cfg.Kafka.CatalogTopic, cfg.Kafka.OrdersTopic, cfg.Kafka.MovementsTopic}),
		)
	}

	// 7. Initialize UseCase
	invUC := invUCPkg.NewInventoryUseCase(invRepo, recordCache, syncLocker, eventPublisher, appLogger, invUCPkg.Options{
		MaxRetries:      cfg.Ledger.MaxRetries,
		ReservationTTL:  cfg.Ledger.ReservationTTL,
		BulkConcurrency: cfg.Ledger.BulkConcurrency,
		SyncLockTTL:     cfg.Ledger.SyncLockTTL,
	})

	// 8. Start Listeners
	for _, consumer := range consumers {
		go invListenerPkg.NewInventoryListener(consumer, invUC, appLogger).Start(ctx)
	}

	// 9. Start gRPC Server
	grpcPort := cfg.Server.GRPCPort
	if !strings.HasPrefix(grpcPort, ":") {
		grpcPort = ":" + grpcPort
	}

	lis, err := net.Listen("tcp", grpcPort)
	if err != nil {
		log.Fatalf("failed to listen: %v", err)
	}

	grpcServer := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			middleware.ContextInterceptor(),
			middleware.LoggingInterceptor(appLogger),
		),
	)
	invH.RegisterInventoryServiceServer(grpcServer, invH.NewInventoryHandler(invUC, appLogger))

	appLogger.Info("Starting gRPC server", zap.String("port", grpcPort))
	go func() {
		if err := grpcServer.Serve(lis); err != nil {
			appLogger.Fatal("failed to serve", zap.Error(err))
		}
	}()

	// 10. Start HTTP Server
	httpPort := cfg.Server.HTTPPort
	if !strings.HasPrefix(httpPort, ":") {
		httpPort = ":" + httpPort
	}

	app := invH.NewHTTPApp(invH.NewHTTPHandler(invUC, appLogger))
	appLogger.Info("Starting HTTP server", zap.String("port", httpPort))
	go func() {
		if err := app.Listen(httpPort); err != nil {
			appLogger.Error("HTTP server stopped", zap.Error(err))
		}
	}()

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")
	cancel()
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		appLogger.Warn("HTTP shutdown error", zap.Error(err))
	}
	grpcServer.GracefulStop()
	appLogger.Info("Server stopped")
}
