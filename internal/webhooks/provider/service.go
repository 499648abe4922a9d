package providerwebhook

import (
	"context"
	"fmt"
	"strings"

	"github.com/mbouombouo/studiostay-backend/internal/reconciler"
	"github.com/mbouombouo/studiostay-backend/pkg/enums"
	pkgerrors "github.com/mbouombouo/studiostay-backend/pkg/errors"
	"github.com/mbouombouo/studiostay-backend/pkg/logger"
	"github.com/mbouombouo/studiostay-backend/pkg/metrics"
)

// Event is the normalized provider callback payload.
type Event struct {
	Reference     string `json:"reference"`
	Status        string `json:"status"`
	Amount        int    `json:"amount"`
	Channel       string `json:"channel"`
	Message       string `json:"message"`
	TransactionID string `json:"transaction_id"`
}

type eventHandler interface {
	HandlePaymentEvent(ctx context.Context, evt reconciler.PaymentEvent) error
}

type idempotencyManager interface {
	CheckAndMark(ctx context.Context, eventID string) (bool, error)
	Delete(ctx context.Context, eventID string) error
}

// Service consumes payment provider callbacks. Every callback is answered
// with an ack regardless of outcome; duplicates and failures differ only in
// whether the idempotency mark survives.
type Service struct {
	handler     eventHandler
	idempotency idempotencyManager
	metrics     *metrics.PaymentFlowMetrics
	logger      *logger.Logger
}

// ServiceParams bundles the webhook service dependencies.
type ServiceParams struct {
	Handler     eventHandler
	Idempotency idempotencyManager
	Metrics     *metrics.PaymentFlowMetrics
	Logger      *logger.Logger
}

// NewService validates the params and builds the webhook service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Handler == nil {
		return nil, fmt.Errorf("event handler required")
	}
	if params.Idempotency == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Service{
		handler:     params.Handler,
		idempotency: params.Idempotency,
		metrics:     params.Metrics,
		logger:      params.Logger,
	}, nil
}

// HandleEvent processes one provider callback. The returned error is for
// logging only; the HTTP layer acks regardless.
func (s *Service) HandleEvent(ctx context.Context, event *Event) error {
	if event == nil || event.Reference == "" {
		s.metrics.IncWebhookEvent("invalid")
		return pkgerrors.New(pkgerrors.CodeValidation, "webhook event requires a reference")
	}
	ctx = s.logger.WithReference(ctx, event.Reference)

	status, err := parseProviderStatus(event.Status)
	if err != nil {
		s.metrics.IncWebhookEvent("invalid")
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "parse webhook status")
	}

	// progress callbacks are acked without marking: providers reuse the
	// transaction id across deliveries, and the terminal callback for the
	// same transaction must still reach the reconciler
	if !status.IsTerminal() {
		s.metrics.IncWebhookEvent("pending")
		s.logger.Info(ctx, "non-terminal webhook acknowledged")
		return nil
	}

	eventID := event.TransactionID
	if eventID == "" {
		// providers without a distinct event id dedupe on reference+status
		eventID = event.Reference + ":" + status.String()
	}

	seen, err := s.idempotency.CheckAndMark(ctx, eventID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check webhook idempotency")
	}
	if seen {
		s.metrics.IncWebhookEvent("duplicate")
		s.logger.Info(ctx, "duplicate webhook acknowledged")
		return nil
	}

	evt := reconciler.PaymentEvent{
		Reference:   event.Reference,
		Status:      status,
		Message:     event.Message,
		AmountCents: event.Amount,
		Channel:     event.Channel,
	}
	if err := s.handler.HandlePaymentEvent(ctx, evt); err != nil {
		// forget the mark so the provider retry gets another attempt
		if delErr := s.idempotency.Delete(ctx, eventID); delErr != nil {
			s.logger.Error(ctx, "release webhook idempotency mark", delErr)
		}
		s.metrics.IncWebhookEvent("error")
		return err
	}

	s.metrics.IncWebhookEvent("processed")
	return nil
}

// parseProviderStatus maps the loose status vocabulary providers send onto
// the internal enum.
func parseProviderStatus(value string) (enums.GatewayStatus, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "success", "successful", "successfull", "completed", "paid":
		return enums.GatewayStatusSuccess, nil
	case "failed", "failure", "rejected", "cancelled", "canceled":
		return enums.GatewayStatusFailed, nil
	case "timeout", "expired":
		return enums.GatewayStatusTimeout, nil
	case "pending", "processing", "accepted", "submitted":
		return enums.GatewayStatusPending, nil
	default:
		return "", fmt.Errorf("unknown provider status %q", value)
	}
}
