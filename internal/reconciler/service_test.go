package reconciler

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

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
	"github.com/mbouombouo/studiostay-backend/pkg/redis"
)

type stubLedger struct {
	mu           sync.Mutex
	user         *models.User
	createResErr error
	reservation  *models.Reservation
	recordErr    error
	confirmErr   error
	payments     []ledger.RecordPaymentInput
	confirmed    []uuid.UUID
	cancelled    []uuid.UUID
}

func (l *stubLedger) FindOrCreateUser(ctx context.Context, guest booking.GuestInfo) (*models.User, bool, error) {
	return l.user, false, nil
}

func (l *stubLedger) CreatePendingReservation(ctx context.Context, intent *booking.Intent, guestUserID uuid.UUID) (*models.Reservation, error) {
	if l.createResErr != nil {
		return nil, l.createResErr
	}
	intent.Quote = booking.Quote{Nights: 3, SubtotalCents: 30000, ServiceFeeCents: 3600, TaxCents: 1500, TotalCents: 35100, Currency: "XAF"}
	return l.reservation, nil
}

func (l *stubLedger) ConfirmReservation(ctx context.Context, id uuid.UUID) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.confirmErr != nil {
		return l.confirmErr
	}
	l.confirmed = append(l.confirmed, id)
	return nil
}

func (l *stubLedger) CancelReservation(ctx context.Context, id uuid.UUID) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cancelled = append(l.cancelled, id)
	return nil
}

func (l *stubLedger) RecordPayment(ctx context.Context, input ledger.RecordPaymentInput) (*models.Payment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.recordErr != nil {
		return nil, l.recordErr
	}
	l.payments = append(l.payments, input)
	return &models.Payment{ID: uuid.New(), ExternalID: input.ExternalID, Status: input.Status}, nil
}

func (l *stubLedger) GetReservation(ctx context.Context, id uuid.UUID) (*models.Reservation, error) {
	return l.reservation, nil
}

func (l *stubLedger) paymentCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.payments)
}

func (l *stubLedger) confirmCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.confirmed)
}

func (l *stubLedger) cancelCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.cancelled)
}

type stubAdapter struct {
	mu            sync.Mutex
	initResult    *gateway.InitiationResult
	initErr       error
	queryStatus   enums.GatewayStatus
	queryErr      error
	initiateCalls int
}

func (a *stubAdapter) Method() enums.PaymentMethod { return enums.PaymentMethodMonetbil }

func (a *stubAdapter) Initiate(ctx context.Context, req gateway.InitiateRequest) (*gateway.InitiationResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.initiateCalls++
	if a.initErr != nil {
		return nil, a.initErr
	}
	return a.initResult, nil
}

func (a *stubAdapter) QueryStatus(ctx context.Context, reference string) (enums.GatewayStatus, string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.queryErr != nil {
		return "", "", a.queryErr
	}
	return a.queryStatus, "", nil
}

type stubScheduler struct {
	mu        sync.Mutex
	scheduled []string
	cancelled []string
}

func (s *stubScheduler) Schedule(reference string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scheduled = append(s.scheduled, reference)
}

func (s *stubScheduler) Cancel(reference string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelled = append(s.cancelled, reference)
}

type stubStudios struct{}

func (stubStudios) GetStudio(ctx context.Context, id uuid.UUID) (*studios.StudioDTO, error) {
	return &studios.StudioDTO{ID: id, Name: "Bonapriso Loft"}, nil
}

type notifyingSender struct {
	sent  chan notifications.Confirmation
	panic bool
	err   error
}

func (s *notifyingSender) SendBookingConfirmation(ctx context.Context, confirmation notifications.Confirmation) error {
	if s.panic {
		panic("smtp exploded")
	}
	if s.err != nil {
		return s.err
	}
	if s.sent != nil {
		s.sent <- confirmation
	}
	return nil
}

type fixture struct {
	svc       Service
	ledger    *stubLedger
	adapter   *stubAdapter
	cache     *statuscache.Cache
	scheduler *stubScheduler
	sender    *notifyingSender
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logg := logger.New(logger.Options{ServiceName: "test", Level: zerolog.ErrorLevel, Output: io.Discard})
	cache, err := statuscache.New(redis.NewMemoryKV(), time.Hour, logg)
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}

	led := &stubLedger{
		user:        &models.User{ID: uuid.New(), Email: "amina@example.com", FirstName: "Amina", LastName: "N"},
		reservation: &models.Reservation{ID: uuid.New(), Status: enums.ReservationStatusPending, TotalCents: 35100, CheckIn: time.Now(), CheckOut: time.Now().Add(72 * time.Hour)},
	}
	adapter := &stubAdapter{
		initResult: &gateway.InitiationResult{Reference: "mb-123", Status: enums.GatewayStatusPending, Message: "push sent"},
	}
	scheduler := &stubScheduler{}
	sender := &notifyingSender{sent: make(chan notifications.Confirmation, 1)}

	svc, err := NewService(ServiceParams{
		Ledger:     led,
		Cache:      cache,
		Adapters:   gateway.NewRegistry(adapter),
		Studios:    stubStudios{},
		Scheduler:  scheduler,
		Sender:     sender,
		Strategy:   NoSimulation{},
		Logger:     logg,
		BookingCfg: config.BookingConfig{Currency: "XAF"},
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return &fixture{svc: svc, ledger: led, adapter: adapter, cache: cache, scheduler: scheduler, sender: sender}
}

func testIntent() *booking.Intent {
	return &booking.Intent{
		StudioID:   uuid.New(),
		CheckIn:    time.Now(),
		CheckOut:   time.Now().Add(72 * time.Hour),
		GuestCount: 2,
		Guest:      booking.GuestInfo{Email: "amina@example.com", FirstName: "Amina", LastName: "N"},
		Method:     enums.PaymentMethodMonetbil,
		Payment:    booking.PaymentDetails{Phone: "237670000001", Operator: "MTN"},
	}
}

func TestSubmitBookingPendingSchedulesPoll(t *testing.T) {
	f := newFixture(t)

	result, err := f.svc.SubmitBooking(context.Background(), testIntent())
	if err != nil {
		t.Fatalf("submit booking: %v", err)
	}
	if result.Status != enums.GatewayStatusPending {
		t.Fatalf("expected pending, got %s", result.Status)
	}
	if result.Reference != "mb-123" {
		t.Fatalf("unexpected reference %q", result.Reference)
	}
	if result.AmountCents != 35100 {
		t.Fatalf("expected server-priced amount 35100, got %d", result.AmountCents)
	}

	entry, err := f.cache.Get(context.Background(), "mb-123")
	if err != nil {
		t.Fatalf("expected cache entry: %v", err)
	}
	if entry.ReservationID != f.ledger.reservation.ID {
		t.Fatal("expected reservation id in the cache snapshot")
	}

	if len(f.scheduler.scheduled) != 1 || f.scheduler.scheduled[0] != "mb-123" {
		t.Fatalf("expected a scheduled poll for mb-123, got %v", f.scheduler.scheduled)
	}
	if f.ledger.paymentCount() != 0 {
		t.Fatal("expected no payment row while pending")
	}
}

func TestSubmitBookingImmediateTerminalReconcilesInline(t *testing.T) {
	f := newFixture(t)
	f.adapter.initResult = &gateway.InitiationResult{Reference: "card-1", Status: enums.GatewayStatusSuccess, Message: "approved"}

	result, err := f.svc.SubmitBooking(context.Background(), testIntent())
	if err != nil {
		t.Fatalf("submit booking: %v", err)
	}
	if result.Status != enums.GatewayStatusSuccess {
		t.Fatalf("expected success, got %s", result.Status)
	}

	if f.ledger.paymentCount() != 1 {
		t.Fatalf("expected 1 payment row, got %d", f.ledger.paymentCount())
	}
	if f.ledger.confirmCount() != 1 {
		t.Fatalf("expected 1 confirmation, got %d", f.ledger.confirmCount())
	}
	if len(f.scheduler.scheduled) != 0 {
		t.Fatal("expected no poll for an immediately settled payment")
	}
}

func TestSubmitBookingNoPrematurePayment(t *testing.T) {
	f := newFixture(t)
	f.ledger.createResErr = pkgerrors.New(pkgerrors.CodeValidation, "check-out must be after check-in")

	_, err := f.svc.SubmitBooking(context.Background(), testIntent())
	if !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if f.adapter.initiateCalls != 0 {
		t.Fatal("expected no gateway call after reservation validation failure")
	}
	if f.ledger.paymentCount() != 0 {
		t.Fatal("expected no payment row")
	}
}

func TestSubmitBookingCancelsReservationOnInitiationFailure(t *testing.T) {
	f := newFixture(t)
	f.adapter.initErr = pkgerrors.New(pkgerrors.CodeGateway, "monetbil unreachable")

	_, err := f.svc.SubmitBooking(context.Background(), testIntent())
	if !pkgerrors.HasCode(err, pkgerrors.CodeGateway) {
		t.Fatalf("expected gateway error, got %v", err)
	}
	if f.ledger.cancelCount() != 1 {
		t.Fatal("expected reservation cancelled after failed initiation")
	}
}

func submitPending(t *testing.T, f *fixture) {
	t.Helper()
	if _, err := f.svc.SubmitBooking(context.Background(), testIntent()); err != nil {
		t.Fatalf("submit booking: %v", err)
	}
}

func TestHandlePaymentEventIdempotent(t *testing.T) {
	f := newFixture(t)
	submitPending(t, f)

	evt := PaymentEvent{Reference: "mb-123", Status: enums.GatewayStatusSuccess, AmountCents: 35100}
	if err := f.svc.HandlePaymentEvent(context.Background(), evt); err != nil {
		t.Fatalf("first event: %v", err)
	}
	if err := f.svc.HandlePaymentEvent(context.Background(), evt); err != nil {
		t.Fatalf("duplicate event should ack cleanly: %v", err)
	}

	if f.ledger.paymentCount() != 1 {
		t.Fatalf("expected exactly 1 payment row, got %d", f.ledger.paymentCount())
	}
	if f.ledger.confirmCount() != 1 {
		t.Fatalf("expected exactly 1 reservation transition, got %d", f.ledger.confirmCount())
	}
}

func TestHandlePaymentEventIgnoresNonTerminal(t *testing.T) {
	f := newFixture(t)
	submitPending(t, f)

	evt := PaymentEvent{Reference: "mb-123", Status: enums.GatewayStatusPending}
	if err := f.svc.HandlePaymentEvent(context.Background(), evt); err != nil {
		t.Fatalf("pending event should be a no-op: %v", err)
	}
	if f.ledger.paymentCount() != 0 {
		t.Fatal("expected no writes for a non-terminal event")
	}
}

func TestHandlePaymentEventLosesClaimRace(t *testing.T) {
	f := newFixture(t)
	submitPending(t, f)

	// another worker already holds the claim
	claimed, err := f.cache.Claim(context.Background(), "mb-123")
	if err != nil || !claimed {
		t.Fatalf("pre-claim failed: %v", err)
	}

	evt := PaymentEvent{Reference: "mb-123", Status: enums.GatewayStatusSuccess}
	if err := f.svc.HandlePaymentEvent(context.Background(), evt); err != nil {
		t.Fatalf("losing the claim should ack cleanly: %v", err)
	}
	if f.ledger.paymentCount() != 0 {
		t.Fatal("expected no ledger writes without the claim")
	}
}

func TestHandlePaymentEventConcurrentDeliveries(t *testing.T) {
	f := newFixture(t)
	submitPending(t, f)

	// webhook and poll tick observe the settlement at the same time
	evt := PaymentEvent{Reference: "mb-123", Status: enums.GatewayStatusSuccess, AmountCents: 35100}
	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- f.svc.HandlePaymentEvent(context.Background(), evt)
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent delivery should ack cleanly: %v", err)
		}
	}
	if f.ledger.paymentCount() != 1 {
		t.Fatalf("expected exactly 1 payment row, got %d", f.ledger.paymentCount())
	}
	if f.ledger.confirmCount() != 1 {
		t.Fatalf("expected exactly 1 reservation transition, got %d", f.ledger.confirmCount())
	}
}

func TestHandlePaymentEventTimeoutCancelsWithoutPaymentRow(t *testing.T) {
	f := newFixture(t)
	submitPending(t, f)

	evt := PaymentEvent{Reference: "mb-123", Status: enums.GatewayStatusTimeout, Message: "polling horizon exceeded"}
	if err := f.svc.HandlePaymentEvent(context.Background(), evt); err != nil {
		t.Fatalf("timeout event: %v", err)
	}

	if f.ledger.cancelCount() != 1 {
		t.Fatal("expected reservation cancelled on timeout")
	}
	if f.ledger.paymentCount() != 0 {
		t.Fatal("expected no payment row for a synthesized timeout")
	}

	entry, err := f.cache.Get(context.Background(), "mb-123")
	if err != nil {
		t.Fatalf("cache entry: %v", err)
	}
	if entry.Status != enums.GatewayStatusTimeout {
		t.Fatalf("expected timeout cached, got %s", entry.Status)
	}
}

func TestHandlePaymentEventFailureKeepsAuditRow(t *testing.T) {
	f := newFixture(t)
	submitPending(t, f)

	evt := PaymentEvent{Reference: "mb-123", Status: enums.GatewayStatusFailed, Message: "insufficient funds"}
	if err := f.svc.HandlePaymentEvent(context.Background(), evt); err != nil {
		t.Fatalf("failure event: %v", err)
	}

	if f.ledger.cancelCount() != 1 {
		t.Fatal("expected reservation cancelled on failure")
	}
	if f.ledger.paymentCount() != 1 {
		t.Fatalf("expected a FAILED audit row, got %d rows", f.ledger.paymentCount())
	}
	payment := f.ledger.payments[0]
	if payment.Status != enums.PaymentStatusFailed {
		t.Fatalf("expected failed status, got %s", payment.Status)
	}
	if payment.FailureReason != "insufficient funds" {
		t.Fatalf("expected failure reason preserved, got %q", payment.FailureReason)
	}
}

func TestHandlePaymentEventReleasesClaimOnLedgerError(t *testing.T) {
	f := newFixture(t)
	submitPending(t, f)

	f.ledger.recordErr = errors.New("db down")
	evt := PaymentEvent{Reference: "mb-123", Status: enums.GatewayStatusSuccess}
	if err := f.svc.HandlePaymentEvent(context.Background(), evt); err == nil {
		t.Fatal("expected ledger error to surface")
	}

	// the claim must be free again so the retry can land
	f.ledger.recordErr = nil
	if err := f.svc.HandlePaymentEvent(context.Background(), evt); err != nil {
		t.Fatalf("retry after claim release: %v", err)
	}
	if f.ledger.confirmCount() != 1 {
		t.Fatalf("expected retry to confirm, got %d", f.ledger.confirmCount())
	}
}

func TestNotificationFailureDoesNotFailReconciliation(t *testing.T) {
	f := newFixture(t)
	f.sender.err = errors.New("smtp down")
	f.sender.sent = nil
	submitPending(t, f)

	evt := PaymentEvent{Reference: "mb-123", Status: enums.GatewayStatusSuccess}
	if err := f.svc.HandlePaymentEvent(context.Background(), evt); err != nil {
		t.Fatalf("notification failure must not fail reconciliation: %v", err)
	}
	if f.ledger.confirmCount() != 1 {
		t.Fatal("expected reservation confirmed despite notification failure")
	}
	time.Sleep(50 * time.Millisecond)
}

func TestNotificationPanicIsContained(t *testing.T) {
	f := newFixture(t)
	f.sender.panic = true
	f.sender.sent = nil
	submitPending(t, f)

	evt := PaymentEvent{Reference: "mb-123", Status: enums.GatewayStatusSuccess}
	if err := f.svc.HandlePaymentEvent(context.Background(), evt); err != nil {
		t.Fatalf("notification panic must not fail reconciliation: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
}

func TestNotificationCarriesBookingDetails(t *testing.T) {
	f := newFixture(t)
	submitPending(t, f)

	evt := PaymentEvent{Reference: "mb-123", Status: enums.GatewayStatusSuccess}
	if err := f.svc.HandlePaymentEvent(context.Background(), evt); err != nil {
		t.Fatalf("event: %v", err)
	}

	select {
	case confirmation := <-f.sender.sent:
		if confirmation.ToEmail != "amina@example.com" {
			t.Fatalf("unexpected recipient %q", confirmation.ToEmail)
		}
		if confirmation.StudioName != "Bonapriso Loft" {
			t.Fatalf("unexpected studio %q", confirmation.StudioName)
		}
		if confirmation.TotalCents != 35100 {
			t.Fatalf("unexpected total %d", confirmation.TotalCents)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("expected a confirmation notification")
	}
}

func TestGetPaymentStatusTerminalFromCache(t *testing.T) {
	f := newFixture(t)
	submitPending(t, f)

	evt := PaymentEvent{Reference: "mb-123", Status: enums.GatewayStatusSuccess}
	if err := f.svc.HandlePaymentEvent(context.Background(), evt); err != nil {
		t.Fatalf("event: %v", err)
	}

	f.adapter.queryErr = errors.New("should not be called")
	result, err := f.svc.GetPaymentStatus(context.Background(), "mb-123")
	if err != nil {
		t.Fatalf("get status: %v", err)
	}
	if result.Status != enums.GatewayStatusSuccess {
		t.Fatalf("expected success from cache, got %s", result.Status)
	}
	if result.Simulated {
		t.Fatal("cached answer must not be marked simulated")
	}
}

func TestGetPaymentStatusQueriesProviderAndReconciles(t *testing.T) {
	f := newFixture(t)
	submitPending(t, f)

	f.adapter.queryStatus = enums.GatewayStatusSuccess
	result, err := f.svc.GetPaymentStatus(context.Background(), "mb-123")
	if err != nil {
		t.Fatalf("get status: %v", err)
	}
	if result.Status != enums.GatewayStatusSuccess {
		t.Fatalf("expected success, got %s", result.Status)
	}
	if f.ledger.confirmCount() != 1 {
		t.Fatal("expected the observed terminal status to reconcile")
	}
}

func TestGetPaymentStatusSimulatedFallback(t *testing.T) {
	f := newFixture(t)
	submitPending(t, f)

	f.adapter.queryErr = errors.New("provider down")

	svcWithStrategy := f.svc.(*service)
	svcWithStrategy.strategy = AgeBasedStrategy{SuccessAfter: time.Hour}

	result, err := f.svc.GetPaymentStatus(context.Background(), "mb-123")
	if err != nil {
		t.Fatalf("get status: %v", err)
	}
	if result.Status != enums.GatewayStatusPending {
		t.Fatalf("expected simulated pending for a young payment, got %s", result.Status)
	}
	if !result.Simulated {
		t.Fatal("expected the answer to be marked simulated")
	}

	svcWithStrategy.strategy = AgeBasedStrategy{SuccessAfter: 0}
	result, err = f.svc.GetPaymentStatus(context.Background(), "mb-123")
	if err != nil {
		t.Fatalf("get status: %v", err)
	}
	if result.Status != enums.GatewayStatusSuccess {
		t.Fatalf("expected simulated success past the threshold, got %s", result.Status)
	}
	if f.ledger.confirmCount() != 1 {
		t.Fatal("expected simulated terminal status to reconcile")
	}
}

func TestGetPaymentStatusUnknownReference(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.GetPaymentStatus(context.Background(), "nope")
	if !pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
