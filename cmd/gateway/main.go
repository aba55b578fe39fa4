package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"warehouse-system/config"
	"warehouse-system/internal/database"
	"warehouse-system/internal/events"
	"warehouse-system/internal/gateway"
	"warehouse-system/internal/gateway/handlers"
	inventory "warehouse-system/internal/services/inventory/handler"
	"warehouse-system/internal/services/notification"
	users "warehouse-system/internal/services/user/handler"
	"warehouse-system/internal/telemetry"
	"warehouse-system/internal/utils"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := config.NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, cfg.Telemetry)
	if err != nil {
		logger.Fatal("Failed to initialise telemetry", zap.Error(err))
	}

	utils.JwtSecret = []byte(cfg.Auth.JWTSecret)

	db, err := database.NewConnection(cfg.DB.DSN())
	if err != nil {
		logger.Fatal("Failed to connect to db", zap.Error(err))
	}
	if err := database.Migrate(db); err != nil {
		logger.Fatal("Failed to migrate database", zap.Error(err))
	}

	// The caches are optional; every handler falls back to the database.
	var redisClient *redis.Client
	if rdb, err := config.NewRedisClient(ctx, cfg.Redis, logger); err != nil {
		logger.Warn("Redis unavailable, caching disabled", zap.Error(err))
	} else {
		redisClient = rdb
		defer redisClient.Close()
	}

	var emailPublisher, stockPublisher events.Publisher
	if cfg.Kafka.Enabled {
		emailProducer := events.NewKafkaProducer(cfg.Kafka.Brokers, cfg.Kafka.EmailTopic, cfg.Kafka.WriteTimeout, logger)
		defer emailProducer.Close()
		stockProducer := events.NewKafkaProducer(cfg.Kafka.Brokers, cfg.Kafka.StockTopic, cfg.Kafka.WriteTimeout, logger)
		defer stockProducer.Close()
		emailPublisher, stockPublisher = emailProducer, stockProducer
	} else {
		logger.Warn("Kafka disabled, emails and stock events are dropped")
	}

	emailService := notification.NewEmailService(db, emailPublisher, logger.Named("email"))

	inventoryOpts := []inventory.Option{inventory.WithLogger(logger.Named("inventory"))}
	if stockPublisher != nil {
		inventoryOpts = append(inventoryOpts, inventory.WithPublisher(stockPublisher))
	}
	inventoryHandler := inventory.NewInventoryHandler(db, redisClient, inventoryOpts...)

	codes := users.NewVerificationStore()
	userHandler := users.NewUserHandler(db, redisClient,
		users.WithSender(emailService),
		users.WithVerificationStore(codes),
		users.WithLogger(logger.Named("user")),
		users.WithTokenTTL(cfg.Auth.TokenTTL),
		users.WithCodeTTL(cfg.Watch.CodeTTL),
	)

	healthServer := health.NewServer()
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(handlers.ServiceInventory, healthpb.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(handlers.ServiceWatcher, healthpb.HealthCheckResponse_NOT_SERVING)

	watcher := notification.NewWatcher(db, emailService, cfg.Watch.Interval, cfg.Watch.Window, logger.Named("watcher"),
		notification.WithScanHook(func(_ notification.ScanReport, err error) {
			status := healthpb.HealthCheckResponse_SERVING
			if err != nil {
				status = healthpb.HealthCheckResponse_NOT_SERVING
			}
			healthServer.SetServingStatus(handlers.ServiceWatcher, status)
		}),
	)

	loops, cancelLoops := context.WithCancel(ctx)
	loopsDone := make(chan struct{}, 2)
	go func() {
		watcher.Run(loops)
		loopsDone <- struct{}{}
	}()
	go func() {
		users.RunCleanup(loops, codes, cfg.Watch.CleanupInterval, logger.Named("verification"))
		loopsDone <- struct{}{}
	}()

	grpcServer := grpc.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	reflection.Register(grpcServer)

	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		logger.Fatal("Failed to listen", zap.String("port", cfg.GRPCPort), zap.Error(err))
	}
	go func() {
		logger.Info("gRPC health server listening", zap.String("port", cfg.GRPCPort))
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("gRPC server stopped", zap.Error(err))
		}
	}()

	gin.SetMode(gin.ReleaseMode)
	router, err := gateway.NewRouter(gateway.Deps{
		Inventory:   inventoryHandler,
		Users:       userHandler,
		Health:      healthServer,
		DB:          db,
		Logger:      logger.Named("http"),
		RateLimit:   cfg.Auth.RateLimit,
		ServiceName: cfg.Telemetry.ServiceName,
	})
	if err != nil {
		logger.Fatal("Failed to build router", zap.Error(err))
	}

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("Starting server", zap.String("port", cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down server...")
	healthServer.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}
	grpcServer.GracefulStop()

	cancelLoops()
	waitLoops(shutdownCtx, loopsDone, logger)

	if err := shutdownTelemetry(shutdownCtx); err != nil {
		logger.Error("Failed to flush telemetry", zap.Error(err))
	}
	logger.Info("Server exited")
}

// waitLoops blocks until both background loops report back or ctx expires.
func waitLoops(ctx context.Context, done <-chan struct{}, logger *zap.Logger) {
	for i := 0; i < cap(done); i++ {
		select {
		case <-done:
		case <-ctx.Done():
			logger.Warn("Background loops did not stop in time")
			return
		}
	}
}
