package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"
	"github.com/shopspring/decimal"

	"github.com/veildex/swap-engine/internal/api"
	"github.com/veildex/swap-engine/internal/commands"
	"github.com/veildex/swap-engine/internal/httpclient"
	"github.com/veildex/swap-engine/internal/projection"
	"github.com/veildex/swap-engine/internal/publisher"
	"github.com/veildex/swap-engine/internal/quote"
	"github.com/veildex/swap-engine/internal/rate"
	"github.com/veildex/swap-engine/internal/settlement"
	"github.com/veildex/swap-engine/internal/store"
	"github.com/veildex/swap-engine/internal/swap"
	"github.com/veildex/swap-engine/internal/sweeper"
	"github.com/veildex/swap-engine/pkg/config"
	"github.com/veildex/swap-engine/pkg/logger"
	"github.com/veildex/swap-engine/pkg/secrets"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Load configuration ---
	cfg := config.Load()

	logger.Init(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	defer logger.Sync()
	logg := logger.S()
	logg.Info("starting [swap-engine]...")

	// --- Projection store (Redis) ---
	proj, err := projection.New(cfg.RedisAddr, cfg.RedisDB, cfg.RedisPass, "", logger.L())
	if err != nil {
		logg.Fatalw("failed to init projection store", "error", err)
	}

	// --- Durable store (Postgres) ---
	st, err := store.NewPG(ctx, cfg.DatabaseURL, store.PGPoolConfig{
		MaxConns:          int32(cfg.PGMaxConns),
		MinConns:          int32(cfg.PGMinConns),
		MaxConnLifetime:   cfg.PGMaxConnLifetime,
		MaxConnIdleTime:   cfg.PGMaxConnIdleTime,
		HealthCheckPeriod: cfg.PGHealthCheckPeriod,
	}, logger.L())
	if err != nil {
		logg.Fatalw("failed to init durable store", "error", err)
	}

	// --- Connect to NATS ---
	nc, err := nats.Connect(cfg.NATSURL)
	if err != nil {
		logg.Fatalw("failed to connect to NATS", "error", err)
	}

	// --- Publisher ---
	pub, err := publisher.New(nc, cfg.ServiceName, logger.L())
	if err != nil {
		logg.Fatalw("failed to init publisher", "error", err)
	}

	// --- Route provider selection ---
	var provider quote.RouteProvider
	switch cfg.RouteProvider {
	case "aggregator":
		var secretsProvider secrets.Provider
		secretName := cfg.AggregatorSecret
		if secretName != "" {
			secretsProvider, err = secrets.NewAWSProvider(cfg.AWSRegion)
			if err != nil {
				logg.Fatalw("failed to create AWS Secrets Manager provider", "error", err)
			}
		} else if os.Getenv("AGGREGATOR_API_KEY") != "" {
			secretsProvider = secrets.NewEnvProvider()
			secretName = "AGGREGATOR_API_KEY"
		}

		keyCache := secrets.NewCache[string](cfg.SecretCacheTTL)
		stopCleaner := make(chan struct{})
		go keyCache.StartCleaner(cfg.CleanupInterval, stopCleaner)
		defer close(stopCleaner)

		rateMgr := rate.NewManager(rate.Config{
			RequestsPerSecond: 10,
			Burst:             20,
		})
		exec := httpclient.New(logger.L(), rateMgr, nil, 3, "aggregator", nil)

		provider = quote.NewAggregatorProvider(
			logger.L(), exec, cfg.AggregatorURL, secretName, secretsProvider, keyCache)
	default:
		provider = quote.NewFixedRateProvider(nil)
	}
	logg.Infow("route provider selected", "provider", provider.Name())

	// --- Quote service ---
	quoteSvc := quote.NewService(provider, proj, st, logger.L(), cfg.QuoteTTL)

	// --- Swap engine ---
	engine := swap.NewEngine(st, proj, quoteSvc, pub, logger.L(), swap.Config{
		MinSwapAmount: decimal.NewFromInt(cfg.MinSwapAmount),
		MaxSwapAmount: decimal.NewFromInt(cfg.MaxSwapAmount),
		SessionTTL:    cfg.SessionTTL,
		ProjectionTTL: cfg.ProjectionTTL,
	})

	// --- Recovery sweeper ---
	backend := settlement.NewSimulatedBackend(logger.L(), 100*time.Millisecond)
	sw := sweeper.New(st, engine, backend, logger.L(),
		cfg.SweepInterval, cfg.CleanupInterval, cfg.SweepWorkers, cfg.StageTimeout)
	go sw.Start(ctx)

	// --- Liquidity feed (optional) ---
	if cfg.LiquidityFeedURL != "" {
		feed := quote.NewLiquidityFeed(cfg.LiquidityFeedURL, quoteSvc, logger.L())
		go feed.Start(ctx)
		defer feed.Stop()
	} else {
		logg.Warn("LIQUIDITY_FEED_URL not configured; quote invalidation feed disabled")
	}

	// --- Command consumer (optional) ---
	if cfg.RabbitURL != "" {
		consumer, err := commands.NewConsumer(cfg.RabbitURL, engine, logger.L())
		if err != nil {
			logg.Fatalw("failed to init command consumer", "error", err)
		}
		if err := consumer.Start(ctx); err != nil {
			logg.Fatalw("failed to start command consumer", "error", err)
		}
		defer consumer.Close()
	} else {
		logg.Warn("RABBIT_URL not configured; command consumer disabled")
	}

	// --- Fiber HTTP Server ---
	app := fiber.New(fiber.Config{
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
		BodyLimit:    cfg.HTTPBodyLimit,
	})

	handler := api.NewSwapHandler(logger.L(), engine, quoteSvc)
	api.RegisterRoutes(app, nc, st, proj, handler)

	go func() {
		logg.Infof("HTTP API listening on :%d", cfg.Port)
		if err := app.Listen(fmt.Sprintf(":%d", cfg.Port)); err != nil {
			logg.Fatalw("fiber.listen_failed", "error", err)
		}
	}()

	logg.Infow("[swap-engine] running",
		"nats", cfg.NATSURL,
		"env", cfg.Env,
		"sweep_interval", cfg.SweepInterval,
		"route_provider", provider.Name())

	<-ctx.Done()
	logg.Info("shutting down [swap-engine]...")

	sw.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logg.Warnw("fiber.shutdown_failed", "error", err)
	}
	if err := nc.Drain(); err != nil {
		logg.Warnw("nats.drain_failed", "error", err)
	}
	if err := st.Close(); err != nil {
		logg.Warnw("store.close_failed", "error", err)
	}
	if err := proj.Close(); err != nil {
		logg.Warnw("projection.close_failed", "error", err)
	}
}
