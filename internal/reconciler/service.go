package reconciler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/mbouombouo/studiostay-backend/internal/booking"
	"github.com/mbouombouo/studiostay-backend/internal/gateway"
	"github.com/mbouombouo/studiostay-backend/internal/ledger"
	"github.com/mbouombouo/studiostay-backend/internal/notifications"
	"github.com/mbouombouo/studiostay-backend/internal/statuscache"
	"github.com/mbouombouo/studiostay-backend/internal/studios"
	"github.com/mbouombouo/studiostay-backend/pkg/config"
	"github.com/mbouombouo/studiostay-backend/pkg/db/models"
	"github.com/mbouombouo/studiostay-backend/pkg/enums"
	pkgerrors "github.com/mbouombouo/studiostay-backend/pkg/errors"
	"github.com/mbouombouo/studiostay-backend/pkg/logger"
	"github.com/mbouombouo/studiostay-backend/pkg/metrics"
)

const notifyTimeout = 10 * time.Second

// PaymentEvent is a terminal (or ignored non-terminal) status report for a
// provider reference, regardless of whether it arrived by webhook, poll tick
// or an immediately-terminal initiation response.
type PaymentEvent struct {
	Reference   string
	Status      enums.GatewayStatus
	Message     string
	AmountCents int
	Channel     string
}

// BookingResult is what the booking endpoint returns while the payment is
// still settling.
type BookingResult struct {
	ReservationID uuid.UUID           `json:"reservation_id"`
	Reference     string              `json:"payment_reference"`
	Status        enums.GatewayStatus `json:"status"`
	Message       string              `json:"message,omitempty"`
	AmountCents   int                 `json:"amount_cents"`
	Currency      string              `json:"currency"`
}

// StatusResult is the client-facing answer of a status check.
type StatusResult struct {
	Reference   string              `json:"reference"`
	Status      enums.GatewayStatus `json:"status"`
	Message     string              `json:"message,omitempty"`
	AmountCents int                 `json:"amount_cents"`
	Channel     string              `json:"channel,omitempty"`
	Simulated   bool                `json:"simulated,omitempty"`
}

type statusCache interface {
	Put(ctx context.Context, entry *statuscache.Entry) error
	Get(ctx context.Context, reference string) (*statuscache.Entry, error)
	Claim(ctx context.Context, reference string) (bool, error)
	ReleaseClaim(ctx context.Context, reference string) error
}

type ledgerService interface {
	FindOrCreateUser(ctx context.Context, guest booking.GuestInfo) (*models.User, bool, error)
	CreatePendingReservation(ctx context.Context, intent *booking.Intent, guestUserID uuid.UUID) (*models.Reservation, error)
	ConfirmReservation(ctx context.Context, id uuid.UUID) error
	CancelReservation(ctx context.Context, id uuid.UUID) error
	RecordPayment(ctx context.Context, input ledger.RecordPaymentInput) (*models.Payment, error)
	GetReservation(ctx context.Context, id uuid.UUID) (*models.Reservation, error)
}

type adapterResolver interface {
	For(method enums.PaymentMethod) (gateway.Adapter, error)
}

type studioDirectory interface {
	GetStudio(ctx context.Context, id uuid.UUID) (*studios.StudioDTO, error)
}

// PollScheduler starts and stops the poll timers the reconciler depends on.
type PollScheduler interface {
	Schedule(reference string)
	Cancel(reference string)
}

// Service drives a booking intent and its asynchronous payment to a
// consistent {user, reservation, payment} outcome. Exactly one terminal event
// per reference reaches the ledger; everything else acknowledges and stops.
type Service interface {
	SubmitBooking(ctx context.Context, intent *booking.Intent) (*BookingResult, error)
	HandlePaymentEvent(ctx context.Context, evt PaymentEvent) error
	GetPaymentStatus(ctx context.Context, reference string) (*StatusResult, error)
}

// ServiceParams bundles the reconciler dependencies.
type ServiceParams struct {
	Ledger     ledgerService
	Cache      statusCache
	Adapters   adapterResolver
	Studios    studioDirectory
	Scheduler  PollScheduler
	Sender     notifications.Sender
	Strategy   SimulationStrategy
	Metrics    *metrics.PaymentFlowMetrics
	Logger     *logger.Logger
	BookingCfg config.BookingConfig
}

type service struct {
	ledger     ledgerService
	cache      statusCache
	adapters   adapterResolver
	studios    studioDirectory
	scheduler  PollScheduler
	sender     notifications.Sender
	strategy   SimulationStrategy
	metrics    *metrics.PaymentFlowMetrics
	logger     *logger.Logger
	bookingCfg config.BookingConfig
}

// NewService validates the params and builds the reconciler.
func NewService(params ServiceParams) (Service, error) {
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	if params.Cache == nil {
		return nil, fmt.Errorf("status cache required")
	}
	if params.Adapters == nil {
		return nil, fmt.Errorf("adapter registry required")
	}
	if params.Scheduler == nil {
		return nil, fmt.Errorf("poll scheduler required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Strategy == nil {
		params.Strategy = NoSimulation{}
	}
	return &service{
		ledger:     params.Ledger,
		cache:      params.Cache,
		adapters:   params.Adapters,
		studios:    params.Studios,
		scheduler:  params.Scheduler,
		sender:     params.Sender,
		strategy:   params.Strategy,
		metrics:    params.Metrics,
		logger:     params.Logger,
		bookingCfg: params.BookingCfg,
	}, nil
}

// SubmitBooking resolves the guest, creates a pending reservation, initiates
// the payment and snapshots everything into the status cache. No provider
// call happens until the reservation is persisted; a failed initiation
// resolves the reservation to CANCELLED before surfacing the error.
func (s *service) SubmitBooking(ctx context.Context, intent *booking.Intent) (*BookingResult, error) {
	if intent == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "booking intent is required")
	}

	adapter, err := s.adapters.For(intent.Method)
	if err != nil {
		return nil, err
	}

	user, _, err := s.ledger.FindOrCreateUser(ctx, intent.Guest)
	if err != nil {
		return nil, err
	}

	reservation, err := s.ledger.CreatePendingReservation(ctx, intent, user.ID)
	if err != nil {
		return nil, err
	}
	ctx = s.logger.WithReservationID(ctx, reservation.ID.String())

	result, err := adapter.Initiate(ctx, gateway.InitiateRequest{
		AmountCents: intent.Quote.TotalCents,
		Currency:    intent.Quote.Currency,
		Phone:       intent.Payment.Phone,
		Operator:    intent.Payment.Operator,
		Email:       intent.Guest.Email,
		Description: fmt.Sprintf("studio stay %s", reservation.ID),
	})
	if err != nil {
		if cancelErr := s.ledger.CancelReservation(ctx, reservation.ID); cancelErr != nil {
			s.logger.Error(ctx, "cancel reservation after failed initiation", cancelErr)
		}
		return nil, err
	}
	ctx = s.logger.WithReference(ctx, result.Reference)

	entry := &statuscache.Entry{
		Reference:     result.Reference,
		Status:        enums.GatewayStatusPending,
		Message:       result.Message,
		AmountCents:   intent.Quote.TotalCents,
		Channel:       result.Channel,
		Phone:         intent.Payment.Phone,
		ReservationID: reservation.ID,
		UserID:        user.ID,
		Intent:        *intent,
	}
	if err := s.cache.Put(ctx, entry); err != nil {
		return nil, err
	}

	if result.Status.IsTerminal() {
		evt := PaymentEvent{
			Reference:   result.Reference,
			Status:      result.Status,
			Message:     result.Message,
			AmountCents: intent.Quote.TotalCents,
			Channel:     result.Channel,
		}
		if err := s.HandlePaymentEvent(ctx, evt); err != nil {
			return nil, err
		}
	} else {
		s.scheduler.Schedule(result.Reference)
	}

	return &BookingResult{
		ReservationID: reservation.ID,
		Reference:     result.Reference,
		Status:        result.Status,
		Message:       result.Message,
		AmountCents:   intent.Quote.TotalCents,
		Currency:      intent.Quote.Currency,
	}, nil
}

// HandlePaymentEvent consumes one terminal status report. Non-terminal events
// and duplicates are acknowledged without side effects; the single-flight
// claim guarantees at most one ledger mutation per reference.
func (s *service) HandlePaymentEvent(ctx context.Context, evt PaymentEvent) error {
	if !evt.Status.IsTerminal() {
		return nil
	}
	ctx = s.logger.WithReference(ctx, evt.Reference)

	entry, err := s.cache.Get(ctx, evt.Reference)
	if err != nil {
		return err
	}
	if entry.Status.IsTerminal() {
		s.metrics.IncReconciliation("duplicate")
		return nil
	}

	claimed, err := s.cache.Claim(ctx, evt.Reference)
	if err != nil {
		return err
	}
	if !claimed {
		s.metrics.IncReconciliation("claim_lost")
		return nil
	}

	s.scheduler.Cancel(evt.Reference)

	if evt.Status == enums.GatewayStatusSuccess {
		return s.reconcileSuccess(ctx, entry, evt)
	}
	return s.reconcileFailure(ctx, entry, evt)
}

func (s *service) reconcileSuccess(ctx context.Context, entry *statuscache.Entry, evt PaymentEvent) error {
	amount := evt.AmountCents
	if amount == 0 {
		amount = entry.AmountCents
	}

	_, err := s.ledger.RecordPayment(ctx, ledger.RecordPaymentInput{
		ReservationID: entry.ReservationID,
		UserID:        entry.UserID,
		AmountCents:   amount,
		Currency:      entry.Intent.Quote.Currency,
		Method:        entry.Intent.Method,
		Status:        enums.PaymentStatusCompleted,
		ExternalID:    evt.Reference,
		Channel:       firstNonEmpty(evt.Channel, entry.Channel),
	})
	if err != nil {
		return s.releaseAfter(ctx, evt.Reference, err)
	}

	if err := s.ledger.ConfirmReservation(ctx, entry.ReservationID); err != nil {
		return s.releaseAfter(ctx, evt.Reference, err)
	}

	if err := s.putTerminal(ctx, entry, evt); err != nil {
		s.logger.Error(ctx, "record terminal status in cache", err)
	}
	s.metrics.IncReconciliation("confirmed")
	s.logger.Info(ctx, "booking confirmed")

	go s.notifyConfirmation(entry)
	return nil
}

func (s *service) reconcileFailure(ctx context.Context, entry *statuscache.Entry, evt PaymentEvent) error {
	if err := s.ledger.CancelReservation(ctx, entry.ReservationID); err != nil {
		if !pkgerrors.HasCode(err, pkgerrors.CodeStateConflict) {
			return s.releaseAfter(ctx, evt.Reference, err)
		}
		s.logger.Warn(ctx, "reservation already settled during failure reconciliation")
	}

	// a provider-reported failure keeps an audit row; a synthesized timeout
	// never produced money movement, so no payment row is written
	if evt.Status == enums.GatewayStatusFailed {
		_, err := s.ledger.RecordPayment(ctx, ledger.RecordPaymentInput{
			ReservationID: entry.ReservationID,
			UserID:        entry.UserID,
			AmountCents:   entry.AmountCents,
			Currency:      entry.Intent.Quote.Currency,
			Method:        entry.Intent.Method,
			Status:        enums.PaymentStatusFailed,
			ExternalID:    evt.Reference,
			Channel:       firstNonEmpty(evt.Channel, entry.Channel),
			FailureReason: evt.Message,
		})
		if err != nil {
			return s.releaseAfter(ctx, evt.Reference, err)
		}
	}

	if err := s.putTerminal(ctx, entry, evt); err != nil {
		s.logger.Error(ctx, "record terminal status in cache", err)
	}
	s.metrics.IncReconciliation(evt.Status.String())
	s.logger.Info(ctx, "booking cancelled after payment failure")
	return nil
}

// GetPaymentStatus answers a client status check. Settled payments come from
// the cache; pending ones are refreshed against the provider, falling back to
// the simulation strategy when the provider cannot answer. A terminal answer
// observed here is reconciled through the normal event path.
func (s *service) GetPaymentStatus(ctx context.Context, reference string) (*StatusResult, error) {
	entry, err := s.cache.Get(ctx, reference)
	if err != nil {
		return nil, err
	}
	if entry.Status.IsTerminal() {
		return resultFromEntry(entry, false), nil
	}

	status, message, simulated := s.refreshStatus(ctx, entry)
	if status.IsTerminal() {
		evt := PaymentEvent{
			Reference:   reference,
			Status:      status,
			Message:     message,
			AmountCents: entry.AmountCents,
			Channel:     entry.Channel,
		}
		if err := s.HandlePaymentEvent(ctx, evt); err != nil {
			s.logger.Error(ctx, "reconcile status observed during client check", err)
		}
	}

	return &StatusResult{
		Reference:   entry.Reference,
		Status:      status,
		Message:     message,
		AmountCents: entry.AmountCents,
		Channel:     entry.Channel,
		Simulated:   simulated,
	}, nil
}

func (s *service) refreshStatus(ctx context.Context, entry *statuscache.Entry) (enums.GatewayStatus, string, bool) {
	adapter, err := s.adapters.For(entry.Intent.Method)
	if err == nil {
		status, message, queryErr := adapter.QueryStatus(ctx, entry.Reference)
		if queryErr == nil {
			return status, message, false
		}
		s.logger.Warn(s.logger.WithField(ctx, "query_error", queryErr.Error()), "provider status query failed")
	}

	if status, message, ok := s.strategy.Simulate(entry, time.Now().UTC()); ok {
		return status, message, true
	}
	return entry.Status, entry.Message, false
}

func (s *service) putTerminal(ctx context.Context, entry *statuscache.Entry, evt PaymentEvent) error {
	updated := *entry
	updated.Status = evt.Status
	updated.Message = evt.Message
	if evt.Channel != "" {
		updated.Channel = evt.Channel
	}
	return s.cache.Put(ctx, &updated)
}

// releaseAfter gives the claim back so a later event can retry, folding a
// release failure into the original error.
func (s *service) releaseAfter(ctx context.Context, reference string, cause error) error {
	s.metrics.IncReconciliation("error")
	if releaseErr := s.cache.ReleaseClaim(ctx, reference); releaseErr != nil {
		return multierr.Append(cause, releaseErr)
	}
	return cause
}

// notifyConfirmation sends the booking confirmation outside the request path.
// Panics and errors are logged and never reach the reconciliation caller.
func (s *service) notifyConfirmation(entry *statuscache.Entry) {
	if s.sender == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()
	ctx = s.logger.WithReference(ctx, entry.Reference)

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error(ctx, "confirmation notification panicked", fmt.Errorf("%v", r))
		}
	}()

	reservation, err := s.ledger.GetReservation(ctx, entry.ReservationID)
	if err != nil {
		s.logger.Error(ctx, "load reservation for confirmation", err)
		return
	}

	studioName := ""
	if s.studios != nil {
		if studio, err := s.studios.GetStudio(ctx, entry.Intent.StudioID); err == nil {
			studioName = studio.Name
		}
	}

	user := &models.User{
		Email:     entry.Intent.Guest.Email,
		FirstName: entry.Intent.Guest.FirstName,
		LastName:  entry.Intent.Guest.LastName,
	}
	confirmation := notifications.ConfirmationFromReservation(user, reservation, studioName, entry.Intent.Quote.Currency)
	if err := s.sender.SendBookingConfirmation(ctx, confirmation); err != nil {
		s.logger.Error(ctx, "send booking confirmation", err)
	}
}

func resultFromEntry(entry *statuscache.Entry, simulated bool) *StatusResult {
	return &StatusResult{
		Reference:   entry.Reference,
		Status:      entry.Status,
		Message:     entry.Message,
		AmountCents: entry.AmountCents,
		Channel:     entry.Channel,
		Simulated:   simulated,
	}
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
