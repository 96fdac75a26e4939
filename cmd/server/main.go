// Package main is the entry point for the wallet API.
// It loads configuration, wires the ledger, limit engine and settlement
// adapters, starts the background workers and serves HTTP until signalled.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"kudi/internal/config"
	"kudi/internal/handlers"
	"kudi/internal/logger"
	"kudi/internal/metrics"
	"kudi/internal/middleware"
	"kudi/internal/repositories"
	"kudi/internal/repositories/cache"
	"kudi/internal/routes"
	"kudi/internal/services/kyc"
	"kudi/internal/services/ledger"
	"kudi/internal/services/notification"
	"kudi/internal/services/payment"
	"kudi/internal/services/pricing"
	"kudi/internal/services/settlement"
	"kudi/internal/services/spend"
	"kudi/internal/services/transaction"
	"kudi/internal/utils"
	"kudi/internal/worker"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const version = "1.0.0"

func main() {
	config.LoadEnv()
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log := logger.Must(cfg.Env)
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := repositories.InitDB(cfg.Database)
	if err != nil {
		return err
	}
	defer func() {
		if err := repositories.CloseDB(db); err != nil {
			log.Warn("failed to close database connection", zap.Error(err))
		}
	}()
	log.Info("connected to database", zap.String("host", cfg.Database.Host), zap.String("name", cfg.Database.Name))
	store := repositories.NewStore(db)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewPrometheus(registry)

	rdb, spendCache, cachePinger := openCache(ctx, cfg, log)
	if rdb != nil {
		defer func() {
			if err := rdb.Close(); err != nil {
				log.Warn("failed to close redis connection", zap.Error(err))
			}
		}()
	}

	// Pricing: market feed for ASSET/USD, configured offramp rate for USD/NGN.
	offramp := pricing.NewStaticRates("offramp")
	if cfg.Pricing.OfframpRate.IsPositive() {
		offramp.Set("USD", "NGN", cfg.Pricing.OfframpRate)
	} else {
		log.Warn("no offramp rate configured; non-NGNZ limit checks will fail closed")
	}
	market := pricing.NewMarketFeed(cfg.Pricing.MarketURL, cfg.Pricing.MarketAPIKey, cfg.Pricing.MarketRPS,
		&http.Client{Timeout: cfg.Pricing.FetchTimeout})
	prices := pricing.NewCache(&pricing.Router{Market: market, Offramp: offramp}, pricing.CacheConfig{
		TTL:          cfg.Pricing.TTL,
		StaleGrace:   cfg.Pricing.StaleGrace,
		FetchTimeout: cfg.Pricing.FetchTimeout,
	}, log.Named("pricing"), collector)
	converter := pricing.NewConverter(prices)

	loc, err := time.LoadLocation(cfg.Limits.Timezone)
	if err != nil {
		return err
	}
	aggregator := spend.NewAggregator(store.Transactions, converter, spendCache, spend.Config{
		TTL:      cfg.Limits.SpendCacheTTL,
		Location: loc,
	}, log.Named("spend"), collector)

	table := kyc.DefaultTable()
	if cfg.Limits.File != "" {
		if table, err = kyc.LoadTable(cfg.Limits.File); err != nil {
			return err
		}
		log.Info("loaded tier table", zap.String("file", cfg.Limits.File))
	}
	engine := kyc.NewEngine(table, store.KYC, aggregator, converter, log.Named("kyc"), collector)
	verifier := kyc.NewVerifier(store, kyc.DefaultClassification(), table, log.Named("kyc"))
	identity := kyc.NewStripeIdentity(cfg.Providers.StripeWebhookSecret)

	providerClient := &http.Client{Timeout: cfg.Settlement.SubmitTimeout}
	billpay := settlement.NewBillPay(settlement.BillPayConfig{
		BaseURL: cfg.Providers.BillPayURL,
		APIKey:  cfg.Providers.BillPayAPIKey,
		Secret:  cfg.Providers.BillPaySecret,
	}, providerClient, log)
	custodian := settlement.NewCustodian(settlement.CustodianConfig{
		BaseURL: cfg.Providers.CustodianURL,
		APIKey:  cfg.Providers.CustodianAPIKey,
		Secret:  cfg.Providers.CustodianSecret,
	}, providerClient, log)
	adapters := settlement.NewRegistry(billpay, custodian, settlement.NewPeer(store.Users))

	l := ledger.New(store.Balances, collector)
	processor := transaction.NewProcessor(transaction.ProcessorConfig{
		Store:   store,
		Ledger:  l,
		Spend:   aggregator,
		Logger:  log.Named("transaction"),
		Metrics: collector,
	})
	sweeper := transaction.NewSweeper(processor, adapters, transaction.SweeperConfig{
		MaxAge:    cfg.Settlement.SweepMaxAge,
		BatchSize: cfg.Settlement.SweepBatchSize,
	})
	payments := payment.NewService(payment.Dependencies{
		Users:        store.Users,
		Transactions: store.Transactions,
		Balances:     l,
		Limits:       engine,
		Machine:      processor,
		Adapters:     adapters,
		Logger:       log.Named("payment"),
		Metrics:      collector,
	}, payment.Config{
		SubmitTimeout:   cfg.Settlement.SubmitTimeout,
		DuplicateWindow: cfg.Settlement.DuplicateWindow,
	})

	var publisher notification.Publisher = notification.NewLogPublisher(log.Named("events"))
	if rdb != nil {
		publisher = notification.NewRedisPublisher(rdb, cfg.Outbox.Channel)
	}
	dispatcher := worker.NewOutboxDispatcher(store.Outbox, publisher, worker.DispatcherConfig{
		PollInterval: cfg.Outbox.PollInterval,
		BatchSize:    cfg.Outbox.BatchSize,
		MaxAttempts:  cfg.Outbox.MaxAttempts,
	}, log.Named("outbox"), collector)
	sweepWorker := worker.NewSweeper(sweeper, cfg.Settlement.SweepInterval, log.Named("sweeper"))
	go dispatcher.Start(ctx)
	go sweepWorker.Start(ctx)
	defer dispatcher.Stop()
	defer sweepWorker.Stop()

	app := newApp(cfg, log)
	routes.SetupRoutes(app, &routes.Handlers{
		Auth: middleware.NewAuthMiddleware(cfg.JWTSecret, store.Users, log.Named("auth")),
		Health: handlers.NewHealthHandler(version, map[string]handlers.Pinger{
			"database": handlers.PingFunc(func(ctx context.Context) error {
				sqlDB, err := db.DB()
				if err != nil {
					return err
				}
				return sqlDB.PingContext(ctx)
			}),
			"redis": cachePinger,
		}),
		Wallet:       handlers.NewWalletHandler(l, log),
		Payment:      handlers.NewPaymentHandler(payments, log),
		KYC:          handlers.NewKYCHandler(engine, store.KYC, log),
		Transactions: handlers.NewTransactionHandler(processor, log),
		Webhooks:     handlers.NewWebhookHandler(processor, identity, verifier, log.Named("webhook"), billpay, custodian),
		Admin:        handlers.NewAdminHandler(l, processor, verifier, sweeper, log.Named("admin")),
		Metrics:      adaptor.HTTPHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})),
	})

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("port", cfg.Port), zap.Strings("providers", adapters.Names()))
		errCh <- app.Listen(":" + cfg.Port)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// openCache connects to Redis for the spend cache and the event channel.
// Without Redis the service still runs on an in-process cache and logs its
// events instead of publishing them.
func openCache(ctx context.Context, cfg *config.Config, log *zap.Logger) (*redis.Client, cache.Cache, handlers.Pinger) {
	rdb := cache.NewRedisClient(&cache.RedisConfig{
		Host:     cfg.Redis.Host,
		Port:     cfg.Redis.Port,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	svc := cache.NewCacheService(rdb, cfg.Limits.SpendCacheTTL)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := svc.HealthCheck(pingCtx); err != nil {
		log.Warn("redis unavailable, using in-memory cache", zap.Error(err))
		_ = rdb.Close()
		return nil, cache.NewMemoryCache(cfg.Limits.SpendCacheTTL), nil
	}
	log.Info("connected to redis", zap.String("host", cfg.Redis.Host))
	return rdb, svc, handlers.PingFunc(svc.HealthCheck)
}

func newApp(cfg *config.Config, log *zap.Logger) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName: "kudi " + version,
		// handlers answer with their own bodies; this covers routing errors
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			var fe *fiber.Error
			if errors.As(err, &fe) {
				return c.Status(fe.Code).JSON(utils.ErrorBody{Error: fe.Message, Code: "HTTP_ERROR"})
			}
			return utils.Error(c, log, err)
		},
	})

	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowMethods:     "GET,POST,HEAD,PUT,DELETE,PATCH",
		AllowCredentials: true,
	}))
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	// Spend endpoints move money; keep retries from hammering them.
	app.Use("/api/payments", limiter.New(limiter.Config{
		Max:        20,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(utils.ErrorBody{
				Error: "too many requests, please try again later",
				Code:  "RATE_LIMITED",
			})
		},
	}))
	return app
}
