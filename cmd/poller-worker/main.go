package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mbouombouo/studiostay-backend/internal/gateway"
	"github.com/mbouombouo/studiostay-backend/internal/ledger"
	"github.com/mbouombouo/studiostay-backend/internal/notifications"
	"github.com/mbouombouo/studiostay-backend/internal/poller"
	"github.com/mbouombouo/studiostay-backend/internal/reconciler"
	"github.com/mbouombouo/studiostay-backend/internal/statuscache"
	"github.com/mbouombouo/studiostay-backend/internal/studios"
	"github.com/mbouombouo/studiostay-backend/pkg/config"
	"github.com/mbouombouo/studiostay-backend/pkg/db"
	"github.com/mbouombouo/studiostay-backend/pkg/enums"
	"github.com/mbouombouo/studiostay-backend/pkg/logger"
	"github.com/mbouombouo/studiostay-backend/pkg/metrics"
	"github.com/mbouombouo/studiostay-backend/pkg/redis"
)

// The poller worker owns the polling horizon when the api binary is scaled
// to zero or restarted. It resumes pending references from the status cache
// and drives them to a terminal state.
func main() {
	logg := logger.New(logger.Options{ServiceName: "poller-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "poller-worker",
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

	monetbil, err := gateway.NewMonetbilAdapter(cfg.Monetbil, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create monetbil adapter", err)
		os.Exit(1)
	}
	pawapay, err := gateway.NewPawaPayAdapter(cfg.PawaPay, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create pawapay adapter", err)
		os.Exit(1)
	}
	card, err := gateway.NewCardAdapter(enums.PaymentMethodCard)
	if err != nil {
		logg.Error(context.Background(), "failed to create card adapter", err)
		os.Exit(1)
	}
	paypal, err := gateway.NewCardAdapter(enums.PaymentMethodPayPal)
	if err != nil {
		logg.Error(context.Background(), "failed to create paypal adapter", err)
		os.Exit(1)
	}
	adapters := gateway.NewRegistry(monetbil, pawapay, card, paypal)

	statusCache, err := statuscache.New(redisClient, cfg.StatusCache.TTL, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create status cache", err)
		os.Exit(1)
	}

	flowMetrics := metrics.NewPaymentFlowMetrics(prometheus.NewRegistry())

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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := statusPoller.Start(ctx); err != nil {
		logg.Error(ctx, "failed to start status poller", err)
		os.Exit(1)
	}

	logg.Info(ctx, "poller worker running")
	<-ctx.Done()

	logg.Info(context.Background(), "shutting down poller worker")
	statusPoller.Shutdown()
}
