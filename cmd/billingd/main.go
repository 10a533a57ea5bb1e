package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/voxley/billingkit/modules/billing"
	"github.com/voxley/billingkit/pkg/config"
	"github.com/voxley/billingkit/pkg/directory"
	"github.com/voxley/billingkit/pkg/httpserver"
	"github.com/voxley/billingkit/pkg/lifecycle"
	"github.com/voxley/billingkit/pkg/logger"
	"github.com/voxley/billingkit/pkg/metering"
	"github.com/voxley/billingkit/pkg/payment"
	"github.com/voxley/billingkit/pkg/pg"
	"github.com/voxley/billingkit/pkg/plans"
	"github.com/voxley/billingkit/pkg/reconcile"
	"github.com/voxley/billingkit/pkg/redis"
	"github.com/voxley/billingkit/pkg/revenue"
	"github.com/voxley/billingkit/pkg/subscription"
)

type appConfig struct {
	PlansPath         string        `env:"PLANS_PATH" envDefault:"configs/plans.yml"`
	FreePlanID        string        `env:"FREE_PLAN_ID" envDefault:"free"`
	ReconcileInterval time.Duration `env:"RECONCILE_INTERVAL" envDefault:"1h"`
	DedupeTTL         time.Duration `env:"WEBHOOK_DEDUPE_TTL" envDefault:"24h"`

	CardWebhookSecret   string `env:"CARD_WEBHOOK_SECRET,required"`
	WalletWebhookSecret string `env:"WALLET_WEBHOOK_SECRET"`
	LegacyWebhookSecret string `env:"LEGACY_WEBHOOK_SECRET"`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var logCfg logger.Config
	config.MustLoad(&logCfg)
	log := logger.NewFromConfig(logCfg)
	slog.SetDefault(log)

	if err := run(ctx, log); err != nil && !errors.Is(err, context.Canceled) {
		log.ErrorContext(ctx, "billingd exited with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, log *slog.Logger) error {
	var (
		appCfg    appConfig
		pgCfg     pg.Config
		redisCfg  redis.Config
		httpCfg   httpserver.Config
		paddleCfg payment.PaddleConfig
	)
	config.MustLoad(&appCfg)
	config.MustLoad(&pgCfg)
	config.MustLoad(&redisCfg)
	config.MustLoad(&httpCfg)
	config.MustLoad(&paddleCfg)

	pool, err := pg.Connect(ctx, pgCfg)
	if err != nil {
		return err
	}
	defer pool.Close()
	if err := pg.Migrate(ctx, pool, pgCfg, log); err != nil {
		return err
	}

	redisClient, err := redis.Connect(ctx, redisCfg)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	catalog, err := plans.NewCatalog(ctx, plans.NewYAMLSource(appCfg.PlansPath))
	if err != nil {
		return err
	}

	store := subscription.NewPGStore(pool)
	dir := directory.NewPGDirectory(pool)
	checker := subscription.NewChecker(store, subscription.WithCheckerLogger(log))

	paddle, err := payment.NewPaddleGateway(paddleCfg)
	if err != nil {
		return err
	}
	gateway := payment.NewResilientGateway(payment.NewMuxGateway(map[subscription.Provider]payment.Gateway{
		subscription.ProviderCard: paddle,
	}))

	applier := lifecycle.NewApplier(store, dir, lifecycle.WithApplierLogger(log))
	processor := lifecycle.NewProcessor(applier, store, gateway, dir.ResolveUser,
		lifecycle.WithProcessorLogger(log),
		lifecycle.WithDeduper(lifecycle.NewRedisDeduper(redisClient, appCfg.DedupeTTL)),
	)

	meter, err := metering.NewMeter(metering.NewPGStore(pool), checker, catalog, appCfg.FreePlanID,
		metering.WithMeterLogger(log))
	if err != nil {
		return err
	}

	aggregator := revenue.NewAggregator(store,
		revenue.WithAggregatorLogger(log),
		revenue.WithDefaultPrices(catalog.DefaultPrices()),
	)

	engine := reconcile.NewEngine(store, gateway, applier, reconcile.WithEngineLogger(log))
	runner := reconcile.NewRunner(engine, appCfg.ReconcileInterval, reconcile.WithRunnerLogger(log))

	opts := billing.RouterOptions{
		Processor:    processor,
		Checker:      checker,
		Aggregator:   aggregator,
		Meter:        meter,
		CardVerifier: billing.NewHMACVerifier(appCfg.CardWebhookSecret, "X-Card-Signature"),
		Logger:       log,
	}
	if appCfg.WalletWebhookSecret != "" {
		opts.WalletVerifier = billing.NewHMACVerifier(appCfg.WalletWebhookSecret, "X-Wallet-Signature")
	}
	if appCfg.LegacyWebhookSecret != "" {
		opts.LegacyWalletVerifier = billing.NewHMACVerifier(appCfg.LegacyWebhookSecret, "X-Legacy-Signature")
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Get("/healthz", httpserver.HealthCheckHandler(log))
	r.Get("/readyz", httpserver.HealthCheckHandler(log, pg.Healthcheck(pool), redis.Healthcheck(redisClient)))
	r.Mount("/billing", billing.Router(opts))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return runner.Start(ctx) })
	g.Go(func() error { return httpserver.New(httpCfg, log).Run(ctx, r) })
	return g.Wait()
}
