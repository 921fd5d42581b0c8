package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"storefront/internal/config"
	"storefront/internal/handler"
	"storefront/internal/infra/cache"
	"storefront/internal/infra/db"
	"storefront/internal/infra/messaging"
	infraRepo "storefront/internal/infra/repository"
	"storefront/internal/metrics"
	"storefront/internal/outbox"
	"storefront/internal/server"
	"storefront/internal/usecase"
	"storefront/internal/usecase/checkout"
	"storefront/internal/validator"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	//.envは無くてもよい（本番は環境変数）
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := setupLogger(cfg.LogLevel)
	slog.SetDefault(logger)
	logger.Info("starting storefront api", slog.String("env", cfg.GoEnv), slog.String("port", cfg.Port))

	//DB接続 + migration
	gormDB, err := db.Connect(cfg)
	if err != nil {
		return err
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	if err := db.Migrate(gormDB); err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	//カートキャッシュ（REDIS_ADDR が空なら使わない）
	var (
		cartCache  usecase.CartCache
		reconCache checkout.CartCache
	)
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unavailable, cart cache disabled", slog.String("error", err.Error()))
		} else {
			c := cache.NewCartCache(redisClient, cfg.CartCacheTTL)
			cartCache, reconCache = c, c
			logger.Info("redis connected", slog.String("addr", cfg.RedisAddr))
		}
	}

	//Repository（GORM実装）生成
	txm := infraRepo.NewTxManagerGorm(gormDB)
	userRepo := infraRepo.NewUserGormRepository(gormDB)
	productRepo := infraRepo.NewProductGormRepository(gormDB)
	categoryRepo := infraRepo.NewCategoryGormRepository(gormDB)
	cartItemRepo := infraRepo.NewCartItemGormRepository(gormDB)

	//注文確定
	reconciler := checkout.NewCartReconciler(txm, reconCache, logger)
	workflow := checkout.NewWorkflow(txm, reconciler, checkout.Config{
		Timeout:     cfg.CheckoutTimeout,
		EventsTopic: eventsTopic(cfg),
	}, logger, m)

	//Usecase生成
	authUC := usecase.NewAuthUsecase(cfg.JWTSecret, userRepo, validator.NewAuthValidator())
	productUC := usecase.NewProductUsecase(productRepo)
	categoryUC := usecase.NewCategoryUsecase(categoryRepo)
	cartUC := usecase.NewCartUsecase(cartItemRepo, productRepo, reconciler, cartCache, logger)
	orderUC := usecase.NewOrderUsecase(txm, workflow)

	srv := server.New(cfg, logger, m, server.Handlers{
		Auth:     handler.NewAuthHandler(authUC),
		Product:  handler.NewProductHandler(productUC),
		Category: handler.NewCategoryHandler(categoryUC),
		Cart:     handler.NewCartHandler(cartUC),
		Order:    handler.NewOrderHandler(orderUC),
		Health:   handler.NewHealthHandler(sqlDB),
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()
		return srv.Shutdown(shutdownTimeout)
	})

	//outbox relay（KAFKA_BROKERS が空なら起動しない）
	if len(cfg.KafkaBrokers) > 0 {
		publisher := messaging.NewKafkaPublisher(cfg.KafkaBrokers)
		defer publisher.Close()

		relay := outbox.NewRelay(txm, publisher, outbox.Config{
			PollInterval: cfg.OutboxPollInterval,
			BatchSize:    cfg.OutboxBatchSize,
		}, logger, m)
		g.Go(func() error { return relay.Run(gctx) })
	}

	err = g.Wait()
	logger.Info("server exited")
	return err
}

// Kafka が無い環境では outbox に書かない
func eventsTopic(cfg config.Config) string {
	if len(cfg.KafkaBrokers) == 0 {
		return ""
	}
	return cfg.OrderEventsTopic
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
}
