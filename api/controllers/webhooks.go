package controllers

import (
	"encoding/json"
	"net/http"

	"github.com/mbouombouo/studiostay-backend/api/responses"
	providerwebhook "github.com/mbouombouo/studiostay-backend/internal/webhooks/provider"
	"github.com/mbouombouo/studiostay-backend/pkg/logger"
)

// PaymentWebhook receives provider callbacks. Providers retry on non-2xx, so
// the response is always an ack; failures are logged and, if transient, land
// again on the next retry because the idempotency mark is released.
func PaymentWebhook(svc *providerwebhook.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var event providerwebhook.Event
		if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
			if logg != nil {
				logg.Error(ctx, "decode payment webhook", err)
			}
			responses.WriteSuccess(w, map[string]string{"status": "acknowledged"})
			return
		}

		if svc != nil {
			if err := svc.HandleEvent(ctx, &event); err != nil {
				if logg != nil {
					logg.Error(ctx, "handle payment webhook", err)
				}
			}
		}

		responses.WriteSuccess(w, map[string]string{"status": "acknowledged"})
	}
}
