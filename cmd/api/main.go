package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/sakashimaa/go-shop-backend/internal/effects"
	"github.com/sakashimaa/go-shop-backend/internal/push"
	"github.com/sakashimaa/go-shop-backend/internal/repository"
	"github.com/sakashimaa/go-shop-backend/internal/service"
	"github.com/sakashimaa/go-shop-backend/internal/transport/http"
	"github.com/sakashimaa/go-shop-backend/internal/transport/http/handler"
	"github.com/sakashimaa/go-shop-backend/internal/transport/kafka"
	"github.com/sakashimaa/go-shop-backend/internal/worker"
	"github.com/sakashimaa/go-shop-backend/pkg/config"
	"github.com/sakashimaa/go-shop-backend/pkg/db"
	kafka2 "github.com/sakashimaa/go-shop-backend/pkg/kafka"
	"github.com/sakashimaa/go-shop-backend/pkg/mylogger"
	"github.com/sakashimaa/go-shop-backend/pkg/outbox"
	"github.com/sakashimaa/go-shop-backend/pkg/utils"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const effectsTimeout = 30 * time.Second

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf(".env not found: %v\n", err)
	}

	cfg := config.MustLoad()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger, err := config.NewLogger(cfg.LoggerConfig())
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	tp, err := utils.InitTracer(ctx, utils.TracerParams{
		ServiceName: cfg.Tracing.ServiceName,
		Endpoint:    cfg.Tracing.Endpoint,
		Environment: cfg.Env,
	})
	if err != nil {
		logger.Fatal("failed to init tracer", zap.Error(err))
	}

	if cfg.Postgres.AutoMigrate {
		if err := db.Migrate(cfg.Postgres.URL, cfg.Postgres.MigrationsPath, logger); err != nil {
			logger.Fatal("failed to migrate database", zap.Error(err))
		}
	}

	pool, err := db.NewPostgresDB(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to create pool", zap.Error(err))
	}
	defer pool.Close()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("failed to close redis client", zap.Error(err))
		}
	}()

	producer, err := kafka2.NewProducer(cfg.Kafka.Brokers, logger)
	if err != nil {
		logger.Fatal("error creating kafka producer", zap.Error(err))
	}
	defer func() {
		if err := producer.Close(); err != nil {
			logger.Warn("failed to close kafka producer", zap.Error(err))
		}
	}()

	var transport push.Transport = push.NewLogTransport(logger)
	if cfg.Push.Enabled {
		fcm, err := push.NewFCMTransport(ctx, cfg.Push.CredentialsFile)
		if err != nil {
			logger.Fatal("failed to init firebase messaging", zap.Error(err))
		}
		transport = fcm
	}

	productRepo := repository.NewProductRepository(pool, logger)
	orderRepo := repository.NewOrderRepository(pool, logger)
	userRepo := repository.NewUserRepository(logger)
	deviceRepo := repository.NewDeviceRepository(pool, logger)
	notificationRepo := repository.NewNotificationRepository(pool, logger)
	outboxRepo := outbox.NewRepository()

	runner := effects.NewRunner(logger, effectsTimeout)
	dispatcher := push.NewDispatcher(transport, deviceRepo, logger)

	notificationService := service.NewNotificationService(notificationRepo, productRepo, logger)
	deviceService := service.NewDeviceService(pool, deviceRepo, logger)
	orderService := service.NewCachedOrderService(
		service.NewOrderService(service.OrderServiceDeps{
			DB:            pool,
			Products:      productRepo,
			Orders:        orderRepo,
			Users:         userRepo,
			Outbox:        outboxRepo,
			Tokens:        deviceRepo,
			Notifications: notificationService,
			Notifier:      dispatcher,
			Effects:       runner,
			OrderTopic:    cfg.Kafka.OrderTopic,
		}, logger),
		redisClient,
		cfg.Redis.CacheTTL,
		logger,
	)

	app := http.NewApp(http.AppConfig{
		ReadTimeout:     cfg.HTTP.ReadTimeout,
		LimiterMax:      cfg.Limiter.Max,
		LimiterInterval: cfg.Limiter.Expiration,
	})
	http.RegisterRoutes(app, &http.Handlers{
		Order:        handler.NewOrderHandler(orderService, logger),
		Notification: handler.NewNotificationHandler(notificationService, logger),
		Device:       handler.NewDeviceHandler(deviceService, logger),
		Health:       handler.NewHealthHandler(pool),
	}, cfg.Auth.JWTSecret)

	outboxProcessor := outbox.NewProcessor(
		pool,
		outboxRepo,
		producer,
		logger,
		outbox.WithBatchSize(cfg.Outbox.BatchSize),
		outbox.WithInterval(cfg.Outbox.Interval),
	)
	consumer := kafka.NewConsumer(orderService, deviceService, logger)
	lowStockWorker := worker.NewLowStockWorker(notificationService, cfg.LowStock.SweepInterval, logger)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		outboxProcessor.Start(gctx)
		return nil
	})

	g.Go(func() error {
		return consumer.Start(gctx, cfg.Kafka.Brokers, cfg.Kafka.GroupID, cfg.Kafka.ConsumeTopics)
	})

	g.Go(func() error {
		lowStockWorker.Start(gctx)
		return nil
	})

	g.Go(func() error {
		mylogger.Info(gctx, logger, "HTTP server listening", zap.String("port", cfg.HTTP.Port))
		return app.Listen(cfg.HTTP.Port)
	})

	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		return app.ShutdownWithContext(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("service stopped with error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), effectsTimeout)
	defer cancel()

	if err := runner.Wait(shutdownCtx); err != nil {
		logger.Warn("post-commit effects did not finish", zap.Error(err))
	}

	if err := tp.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Failed to shut down telemetry", zap.Error(err))
	} else {
		logger.Info("Successfully down telemetry")
	}

	logger.Info("Shop backend stopped")
}
