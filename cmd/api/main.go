package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/joho/godotenv"
	"github.com/kursadbilgin/sms-dispatch/internal/config"
	"github.com/kursadbilgin/sms-dispatch/internal/handler"
	"github.com/kursadbilgin/sms-dispatch/internal/infra/postgresql"
	"github.com/kursadbilgin/sms-dispatch/internal/infra/postgresql/migrations"
	infraredis "github.com/kursadbilgin/sms-dispatch/internal/infra/redis"
	"github.com/kursadbilgin/sms-dispatch/internal/observability"
	"github.com/kursadbilgin/sms-dispatch/internal/provider"
	"github.com/kursadbilgin/sms-dispatch/internal/ratelimit"
	"github.com/kursadbilgin/sms-dispatch/internal/recipient"
	"github.com/kursadbilgin/sms-dispatch/internal/repository"
	"github.com/kursadbilgin/sms-dispatch/internal/service"
	"github.com/kursadbilgin/sms-dispatch/internal/transport"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config: ", err)
	}

	logger, err := observability.NewLogger("sms-dispatch-api", cfg.LogLevel)
	if err != nil {
		log.Fatal("failed to initialize logger: ", err)
	}
	defer logger.Sync() //nolint:errcheck

	if err := run(cfg, logger); err != nil {
		logger.Fatal("sms dispatch api stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgresql.NewPostgres(ctx, cfg.DatabaseDSN, postgresql.PoolOptions{})
	if err != nil {
		return fmt.Errorf("postgres initialization failed: %w", err)
	}
	if err := migrations.Migrate(db); err != nil {
		return fmt.Errorf("database migrations failed: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("postgres underlying db init failed: %w", err)
	}
	defer sqlDB.Close()

	var rdb *goredis.Client
	var limiter ratelimit.RateLimiter
	if strings.TrimSpace(cfg.RedisURL) != "" {
		rdb, err = infraredis.NewRedis(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("redis initialization failed: %w", err)
		}
		defer rdb.Close()

		limiter, err = infraredis.NewRedisRateLimiter(rdb, cfg.RateLimitPerSec)
		if err != nil {
			return fmt.Errorf("redis rate limiter init failed: %w", err)
		}
	} else {
		logger.Info("REDIS_URL not set, using in-process gateway limiter")
		limiter = ratelimit.NewLocalRateLimiter(cfg.RateLimitPerSec)
	}

	gateway, err := newProvider(cfg, logger)
	if err != nil {
		return err
	}

	extractor, err := recipient.NewExtractor(cfg.Numbers.FieldMapping(), cfg.Numbers.Normalizer())
	if err != nil {
		return fmt.Errorf("recipient extractor init failed: %w", err)
	}

	dispatchService, err := service.NewDispatchService(
		repository.NewGormFailedMessageRepo(db),
		repository.NewGormBatchRepo(db),
		repository.NewGormAttemptRepo(db),
		gateway,
		limiter,
		extractor,
		cfg.SendConcurrency,
		logger.Named("dispatch"),
	)
	if err != nil {
		return fmt.Errorf("dispatch service init failed: %w", err)
	}

	metrics := observability.NewMetrics()
	dispatchService.SetMetrics(metrics)

	app := fiber.New(fiber.Config{
		AppName:      "sms-dispatch",
		ErrorHandler: transport.ErrorHandler(logger),
		BodyLimit:    16 * 1024 * 1024,
	})
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.AllowedOrigins(),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID",
	}))
	app.Use(metrics.HTTPMiddleware())

	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))
	handler.RegisterHealthRoutes(app, sqlDB, rdb)

	api := app.Group("", transport.BearerAuth(cfg.Tokens(), logger))
	if err := handler.RegisterDispatchRoutes(api, dispatchService); err != nil {
		return fmt.Errorf("dispatch routes: %w", err)
	}
	formatter := service.NewResultFormatter(cfg.Numbers.MessageField)
	if err := handler.RegisterArtifactRoutes(api, service.NewExportService(logger), formatter, gateway); err != nil {
		return fmt.Errorf("artifact routes: %w", err)
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("sms dispatch api started",
			zap.Int("port", cfg.APIPort),
			zap.Bool("dryRun", cfg.UseDryRun()),
			zap.Bool("redisLimiter", rdb != nil),
		)
		serveErr <- app.Listen(fmt.Sprintf(":%d", cfg.APIPort))
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

func newProvider(cfg *config.Config, logger *zap.Logger) (provider.Provider, error) {
	if cfg.UseDryRun() {
		logger.Warn("dry run enabled, messages are logged and never sent")
		return provider.NewDryRunProvider(logger.Named("dryrun")), nil
	}

	gateway, err := provider.NewGatewayProvider(provider.GatewayConfig{
		SendURL:    cfg.SMSAPIURL,
		BalanceURL: cfg.SMSBalanceURL,
		APIKey:     cfg.SMSAPIKey,
		SenderID:   cfg.SMSSenderID,
	})
	if err != nil {
		return nil, fmt.Errorf("sms gateway init failed: %w", err)
	}
	return gateway, nil
}
