// Package main is the entry point of the wallet API. It wires configuration,
// storage, cache, gateway and notification dependencies, then serves HTTP
// alongside the deposit reconciler and the cache invalidation subscriber.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bundlepay/internal/config"
	"bundlepay/internal/handlers"
	"bundlepay/internal/logger"
	"bundlepay/internal/metrics"
	"bundlepay/internal/middleware"
	"bundlepay/internal/repositories"
	"bundlepay/internal/repositories/cache"
	"bundlepay/internal/routes"
	"bundlepay/internal/services/deduction"
	"bundlepay/internal/services/deposit"
	"bundlepay/internal/services/deposit/gateway"
	"bundlepay/internal/services/notification"
	"bundlepay/internal/services/order"
	"bundlepay/internal/services/promo"
	"bundlepay/internal/services/refund"
	"bundlepay/internal/services/wallet"
	"bundlepay/internal/validation"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	config.LoadEnv()
	cfg := config.Load()

	log, err := logger.New(cfg.Server.LogLevel, cfg.Server.Production)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync() //nolint:errcheck

	if err := run(cfg, log); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg config.AppConfig, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := repositories.InitDB(cfg.Database)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	}()

	rdb := connectRedis(ctx, cfg, log)
	if cfg.Cache.Backend == "redis" && rdb == nil {
		return errors.New("CACHE_BACKEND=redis but Redis is unavailable")
	}
	var (
		redisSvc    *cache.CacheService
		redisHealth handlers.HealthChecker
	)
	if rdb != nil {
		redisSvc = cache.NewCacheService(rdb, cfg.Cache.TTL)
		redisHealth = redisSvc
		defer redisSvc.Close()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewPrometheusCollector(reg)

	var (
		balanceCache cache.BalanceCache
		memCache     *cache.MemoryCache
		bus          *cache.InvalidationBus
	)
	switch {
	case cfg.Cache.Backend == "redis":
		balanceCache = cache.NewRedisBalanceCache(redisSvc)
	case rdb != nil:
		memCache = cache.NewMemoryCache(cfg.Cache.TTL)
		bus = cache.NewInvalidationBus(memCache, rdb, cfg.Cache.InvalidationChannel)
		balanceCache = bus
	default:
		log.Warn("running with a process-local balance cache; other instances may serve balances up to the TTL old",
			zap.Duration("ttl", cfg.Cache.TTL))
		memCache = cache.NewMemoryCache(cfg.Cache.TTL)
		balanceCache = memCache
	}

	notifier, closeNotifier := buildNotifier(cfg, log)
	defer closeNotifier()

	gw, err := buildGateway(cfg.Gateway)
	if err != nil {
		return err
	}

	users := repositories.NewUserRepository(db)
	wallets := wallet.NewService(
		repositories.NewWalletRepository(db),
		balanceCache,
		wallet.WalletConfig{
			DefaultCurrency:    cfg.Wallet.Currency,
			DailyLimit:         cfg.Wallet.DailyLimit,
			MonthlyLimit:       cfg.Wallet.MonthlyLimit,
			MaxBalance:         cfg.Wallet.MaxBalance,
			DailySpendingLimit: cfg.Wallet.DailySpendingLimit,
			RecentTransactions: cfg.Wallet.RecentTransactions,
		},
		collector,
	)
	deposits := deposit.NewService(wallets, users, gw, notifier, deposit.Config{
		Currency:       cfg.Wallet.Currency,
		MinAmount:      cfg.Wallet.MinDeposit,
		MaxAmount:      cfg.Wallet.MaxDeposit,
		CallbackURL:    cfg.Gateway.CallbackURL,
		GatewayTimeout: cfg.Gateway.Timeout,
		PendingExpiry:  cfg.Reconciler.PendingExpiry,
	})
	promos := promo.NewService(repositories.NewPromoRepository(db))
	orders := order.NewService(wallets, refund.NewCoordinator(notifier))
	v := validation.New()

	app := fiber.New(fiber.Config{
		AppName:      "bundlepay",
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	})
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Server.CORSOrigins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowMethods:     "GET,POST,HEAD,PUT,DELETE,PATCH",
		AllowCredentials: true,
	}))
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use("/api/wallet/deposit", limiter.New(limiter.Config{
		Max:        10,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many requests. Please try again later.",
			})
		},
	}))

	routes.SetupRoutes(app, routes.Deps{
		Auth:     middleware.NewAuthMiddleware(cfg.JWTSecret, users),
		Wallet:   handlers.NewWalletHandler(wallets, deposits, deduction.NewService(wallets), promos, v),
		Admin:    handlers.NewAdminHandler(wallets, orders, promos, v),
		Health:   handlers.NewHealthHandler(db, redisHealth),
		Gatherer: reg,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("HTTP server listening", zap.String("port", cfg.Server.Port))
		return app.Listen(":" + cfg.Server.Port)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down HTTP server")
		return app.ShutdownWithTimeout(10 * time.Second)
	})
	if cfg.Reconciler.Enabled {
		r := deposit.NewReconciler(deposits, cfg.Reconciler.Interval, cfg.Reconciler.MinAge, cfg.Reconciler.Batch)
		g.Go(func() error { return r.Run(gctx) })
	}
	if bus != nil {
		g.Go(func() error { return bus.Run(gctx) })
	}
	if memCache != nil {
		g.Go(func() error { return memCache.RunJanitor(gctx, cfg.Cache.JanitorInterval) })
	}

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// connectRedis returns nil when Redis is not configured or not reachable.
func connectRedis(ctx context.Context, cfg config.AppConfig, log *zap.Logger) *redis.Client {
	if cfg.Redis.Host == "" {
		return nil
	}
	rdb := cache.NewRedisClient(&cache.RedisConfig{
		Host:     cfg.Redis.Host,
		Port:     cfg.Redis.Port,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		log.Warn("Redis unavailable", zap.String("host", cfg.Redis.Host), zap.Error(err))
		rdb.Close()
		return nil
	}
	log.Info("connected to Redis", zap.String("host", cfg.Redis.Host))
	return rdb
}

func buildNotifier(cfg config.AppConfig, log *zap.Logger) (notification.Notifier, func()) {
	if cfg.NATSURL == "" {
		return notification.NewLogNotifier(), func() {}
	}
	nc, err := notification.ConnectNATS(cfg.NATSURL, "bundlepay")
	if err != nil {
		log.Warn("NATS unavailable, events will only be logged", zap.Error(err))
		return notification.NewLogNotifier(), func() {}
	}
	return notification.NewNATSNotifier(nc), func() { nc.Drain() } //nolint:errcheck
}

func buildGateway(cfg config.GatewayConfig) (gateway.Gateway, error) {
	switch cfg.Provider {
	case "paystack":
		return gateway.NewPaystackGateway(gateway.PaystackConfig{
			SecretKey: cfg.PaystackSecretKey,
			BaseURL:   cfg.PaystackBaseURL,
			Timeout:   cfg.Timeout,
		}), nil
	case "stripe":
		return gateway.NewStripeGateway(gateway.StripeConfig{
			SecretKey:     cfg.StripeSecretKey,
			WebhookSecret: cfg.StripeWebhookKey,
			CancelURL:     cfg.CancelURL,
		}), nil
	default:
		return nil, fmt.Errorf("unsupported payment gateway %q", cfg.Provider)
	}
}
