package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mbouombouo/studiostay-backend/api/routes"
	"github.com/mbouombouo/studiostay-backend/internal/gateway"
	"github.com/mbouombouo/studiostay-backend/internal/ledger"
	"github.com/mbouombouo/studiostay-backend/internal/notifications"
	"github.com/mbouombouo/studiostay-backend/internal/poller"
	"github.com/mbouombouo/studiostay-backend/internal/reconciler"
	"github.com/mbouombouo/studiostay-backend/internal/statuscache"
	"github.com/mbouombouo/studiostay-backend/internal/studios"
	providerwebhook "github.com/mbouombouo/studiostay-backend/internal/webhooks/provider"
	"github.com/mbouombouo/studiostay-backend/pkg/config"
	"github.com/mbouombouo/studiostay-backend/pkg/db"
	"github.com/mbouombouo/studiostay-backend/pkg/enums"
	"github.com/mbouombouo/studiostay-backend/pkg/logger"
	"github.com/mbouombouo/studiostay-backend/pkg/metrics"
	"github.com/mbouombouo/studiostay-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	studioService, err := studios.NewService(studios.NewRepository(dbClient.DB()))
	if err != nil {
		logg.Error(context.Background(), "failed to create studio service", err)
		os.Exit(1)
	}

	ledgerService, err := ledger.NewService(ledger.ServiceParams{
		Repo:        ledger.NewRepository(dbClient.DB()),
		Studios:     studioService,
		BookingCfg:  cfg.Booking,
		PasswordCfg: cfg.Password,
		Logger:      logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create ledger service", err)
		os.Exit(1)
	}

	adapters, err := buildGatewayRegistry(cfg, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to build gateway registry", err)
		os.Exit(1)
	}

	statusCache, err := statuscache.New(redisClient, cfg.StatusCache.TTL, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create status cache", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	flowMetrics := metrics.NewPaymentFlowMetrics(registry)

	statusPoller, err := poller.New(poller.Params{
		Cfg:      cfg.Poller,
		Cache:    statusCache,
		Adapters: adapters,
		Metrics:  flowMetrics,
		Logger:   logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create status poller", err)
		os.Exit(1)
	}

	sender, err := notifications.NewLogSender(cfg.Notifier, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create notification sender", err)
		os.Exit(1)
	}

	var strategy reconciler.SimulationStrategy = reconciler.NoSimulation{}
	if cfg.Poller.SimulateSuccessAfter > 0 {
		strategy = reconciler.AgeBasedStrategy{SuccessAfter: cfg.Poller.SimulateSuccessAfter}
	}

	reconcilerService, err := reconciler.NewService(reconciler.ServiceParams{
		Ledger:     ledgerService,
		Cache:      statusCache,
		Adapters:   adapters,
		Studios:    studioService,
		Scheduler:  statusPoller,
		Sender:     sender,
		Strategy:   strategy,
		Metrics:    flowMetrics,
		Logger:     logg,
		BookingCfg: cfg.Booking,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create reconciler service", err)
		os.Exit(1)
	}
	statusPoller.Bind(reconcilerService)

	idempotency, err := providerwebhook.NewIdempotencyGuard(redisClient, cfg.Webhook.IdempotencyTTL, "payments")
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook idempotency guard", err)
		os.Exit(1)
	}
	webhookService, err := providerwebhook.NewService(providerwebhook.ServiceParams{
		Handler:     reconcilerService,
		Idempotency: idempotency,
		Metrics:     flowMetrics,
		Logger:      logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook service", err)
		os.Exit(1)
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := statusPoller.Start(rootCtx); err != nil {
		logg.Error(rootCtx, "failed to start status poller", err)
		os.Exit(1)
	}
	defer statusPoller.Shutdown()

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(rootCtx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Deps{
			Cfg:            cfg,
			Logger:         logg,
			DBPinger:       dbClient,
			RedisPinger:    redisClient,
			Reconciler:     reconcilerService,
			WebhookService: webhookService,
			Registry:       registry,
		}),
	}

	go func() {
		<-rootCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(shutdownCtx, "error shutting down server", err)
		}
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "api server stopped")
}

func buildGatewayRegistry(cfg *config.Config, logg *logger.Logger) (*gateway.Registry, error) {
	monetbil, err := gateway.NewMonetbilAdapter(cfg.Monetbil, logg)
	if err != nil {
		return nil, err
	}
	pawapay, err := gateway.NewPawaPayAdapter(cfg.PawaPay, logg)
	if err != nil {
		return nil, err
	}
	card, err := gateway.NewCardAdapter(enums.PaymentMethodCard)
	if err != nil {
		return nil, err
	}
	paypal, err := gateway.NewCardAdapter(enums.PaymentMethodPayPal)
	if err != nil {
		return nil, err
	}
	return gateway.NewRegistry(monetbil, pawapay, card, paypal), nil
}
