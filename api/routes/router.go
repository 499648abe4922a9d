package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mbouombouo/studiostay-backend/api/controllers"
	"github.com/mbouombouo/studiostay-backend/api/middleware"
	"github.com/mbouombouo/studiostay-backend/internal/reconciler"
	providerwebhook "github.com/mbouombouo/studiostay-backend/internal/webhooks/provider"
	"github.com/mbouombouo/studiostay-backend/pkg/config"
	"github.com/mbouombouo/studiostay-backend/pkg/logger"
)

// Deps carries everything the HTTP surface needs.
type Deps struct {
	Cfg            *config.Config
	Logger         *logger.Logger
	DBPinger       controllers.Pinger
	RedisPinger    controllers.Pinger
	Reconciler     reconciler.Service
	WebhookService *providerwebhook.Service
	Registry       *prometheus.Registry
}

// NewRouter builds the API routing tree.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(deps.Logger),
		middleware.RequestID(deps.Logger),
		middleware.Logging(deps.Logger),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(deps.Cfg))
		r.Get("/ready", controllers.HealthReady(deps.Cfg, deps.Logger, map[string]controllers.Pinger{
			"postgres": deps.DBPinger,
			"redis":    deps.RedisPinger,
		}))
	})

	if deps.Registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/bookings", controllers.SubmitBooking(deps.Reconciler, deps.Logger))
		r.Get("/payments/{reference}/status", controllers.PaymentStatus(deps.Reconciler, deps.Logger))
		r.Post("/webhooks/payments", controllers.PaymentWebhook(deps.WebhookService, deps.Logger))
	})

	return r
}
