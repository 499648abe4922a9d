package ledger

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/mbouombouo/studiostay-backend/internal/booking"
	"github.com/mbouombouo/studiostay-backend/internal/studios"
	"github.com/mbouombouo/studiostay-backend/pkg/config"
	"github.com/mbouombouo/studiostay-backend/pkg/db/models"
	"github.com/mbouombouo/studiostay-backend/pkg/enums"
	pkgerrors "github.com/mbouombouo/studiostay-backend/pkg/errors"
	"github.com/mbouombouo/studiostay-backend/pkg/logger"
)

type stubRepo struct {
	userByEmail      *models.User
	userLookupErr    error
	createdUser      *models.User
	createUserErr    error
	secondLookup     *models.User
	secondLookupErr  error
	lookupCalls      int
	reservation      *models.Reservation
	reservationErr   error
	createdRes       *models.Reservation
	updatedStatus    enums.ReservationStatus
	updateCalled     bool
	createPaymentErr error
	paymentByExtID   *models.Payment
	paymentLookupErr error
	createdPayment   *models.Payment
	raceToStatus     *enums.ReservationStatus
}

func (s *stubRepo) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	s.lookupCalls++
	if s.lookupCalls > 1 {
		return s.secondLookup, s.secondLookupErr
	}
	if s.userLookupErr != nil {
		return nil, s.userLookupErr
	}
	return s.userByEmail, nil
}

func (s *stubRepo) CreateUser(ctx context.Context, user *models.User) (*models.User, error) {
	if s.createUserErr != nil {
		return nil, s.createUserErr
	}
	user.ID = uuid.New()
	s.createdUser = user
	return user, nil
}

func (s *stubRepo) FindReservationByID(ctx context.Context, id uuid.UUID) (*models.Reservation, error) {
	if s.reservationErr != nil {
		return nil, s.reservationErr
	}
	return s.reservation, nil
}

func (s *stubRepo) CreateReservation(ctx context.Context, reservation *models.Reservation) (*models.Reservation, error) {
	reservation.ID = uuid.New()
	s.createdRes = reservation
	return reservation, nil
}

func (s *stubRepo) UpdateReservationStatus(ctx context.Context, id uuid.UUID, from, to enums.ReservationStatus) (bool, error) {
	if s.raceToStatus != nil {
		// another transition won the guarded write between read and update
		s.reservation.Status = *s.raceToStatus
		s.raceToStatus = nil
		return false, nil
	}
	if s.reservation != nil && s.reservation.Status != from {
		return false, nil
	}
	s.updateCalled = true
	s.updatedStatus = to
	if s.reservation != nil {
		s.reservation.Status = to
	}
	return true, nil
}

func (s *stubRepo) CreatePayment(ctx context.Context, payment *models.Payment) (*models.Payment, error) {
	if s.createPaymentErr != nil {
		return nil, s.createPaymentErr
	}
	payment.ID = uuid.New()
	s.createdPayment = payment
	return payment, nil
}

func (s *stubRepo) FindPaymentByExternalID(ctx context.Context, externalID string) (*models.Payment, error) {
	if s.paymentLookupErr != nil {
		return nil, s.paymentLookupErr
	}
	return s.paymentByExtID, nil
}

type stubStudios struct {
	studio *studios.StudioDTO
	err    error
}

func (s stubStudios) GetStudio(ctx context.Context, id uuid.UUID) (*studios.StudioDTO, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.studio, nil
}

func newTestService(t *testing.T, repo *stubRepo, dir stubStudios) Service {
	t.Helper()
	logg := logger.New(logger.Options{ServiceName: "test", Level: zerolog.ErrorLevel, Output: io.Discard})
	svc, err := NewService(ServiceParams{
		Repo:        repo,
		Studios:     dir,
		BookingCfg:  config.BookingConfig{ServiceFeePercent: 12, TaxPercent: 5, Currency: "XAF"},
		PasswordCfg: config.PasswordConfig{TempPasswordChars: 12},
		Logger:      logg,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func availableStudio() *studios.StudioDTO {
	return &studios.StudioDTO{
		ID:                 uuid.New(),
		Name:               "Bonapriso Loft",
		City:               "Douala",
		PricePerNightCents: 10000,
		MaxGuests:          2,
		IsAvailable:        true,
	}
}

func day(value string) time.Time {
	parsed, err := time.Parse("2006-01-02", value)
	if err != nil {
		panic(err)
	}
	return parsed
}

func TestNewServiceRequiresRepo(t *testing.T) {
	_, err := NewService(ServiceParams{Studios: stubStudios{}})
	if err == nil {
		t.Fatal("expected error creating service without repo")
	}
}

func TestFindOrCreateUserExisting(t *testing.T) {
	existing := &models.User{ID: uuid.New(), Email: "amina@example.com"}
	repo := &stubRepo{userByEmail: existing}
	svc := newTestService(t, repo, stubStudios{studio: availableStudio()})

	user, created, err := svc.FindOrCreateUser(context.Background(), booking.GuestInfo{Email: "Amina@Example.com"})
	if err != nil {
		t.Fatalf("find or create: %v", err)
	}
	if created {
		t.Fatal("expected existing user, not a new account")
	}
	if user.ID != existing.ID {
		t.Fatalf("expected id %s got %s", existing.ID, user.ID)
	}
}

func TestFindOrCreateUserCreatesGuest(t *testing.T) {
	repo := &stubRepo{userLookupErr: gorm.ErrRecordNotFound}
	svc := newTestService(t, repo, stubStudios{studio: availableStudio()})

	user, created, err := svc.FindOrCreateUser(context.Background(), booking.GuestInfo{
		Email:     "new@example.com",
		FirstName: "New",
		LastName:  "Guest",
	})
	if err != nil {
		t.Fatalf("find or create: %v", err)
	}
	if !created {
		t.Fatal("expected a new account")
	}
	if user.Role != enums.UserRoleGuest {
		t.Fatalf("expected guest role, got %s", user.Role)
	}
	if user.PasswordHash == "" {
		t.Fatal("expected password hash to be set")
	}
}

func TestFindOrCreateUserFallsBackOnRace(t *testing.T) {
	winner := &models.User{ID: uuid.New(), Email: "race@example.com"}
	repo := &stubRepo{
		userLookupErr: gorm.ErrRecordNotFound,
		createUserErr: errors.New(`duplicate key value violates unique constraint "idx_users_email"`),
		secondLookup:  winner,
	}
	svc := newTestService(t, repo, stubStudios{studio: availableStudio()})

	user, created, err := svc.FindOrCreateUser(context.Background(), booking.GuestInfo{Email: "race@example.com"})
	if err != nil {
		t.Fatalf("find or create: %v", err)
	}
	if created {
		t.Fatal("expected falling back to the winner's row")
	}
	if user.ID != winner.ID {
		t.Fatalf("expected winner id %s got %s", winner.ID, user.ID)
	}
}

func TestFindOrCreateUserConflictWhenBothFail(t *testing.T) {
	repo := &stubRepo{
		userLookupErr:   gorm.ErrRecordNotFound,
		createUserErr:   errors.New(`duplicate key value violates unique constraint "idx_users_email"`),
		secondLookupErr: gorm.ErrRecordNotFound,
	}
	svc := newTestService(t, repo, stubStudios{studio: availableStudio()})

	_, _, err := svc.FindOrCreateUser(context.Background(), booking.GuestInfo{Email: "race@example.com"})
	if !pkgerrors.HasCode(err, pkgerrors.CodeConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestCreatePendingReservationPricesServerSide(t *testing.T) {
	studio := availableStudio()
	repo := &stubRepo{}
	svc := newTestService(t, repo, stubStudios{studio: studio})

	intent := &booking.Intent{
		StudioID:   studio.ID,
		CheckIn:    day("2024-06-01"),
		CheckOut:   day("2024-06-04"),
		GuestCount: 2,
		// client-sent totals are ignored
		Quote: booking.Quote{TotalCents: 1},
	}

	reservation, err := svc.CreatePendingReservation(context.Background(), intent, uuid.New())
	if err != nil {
		t.Fatalf("create reservation: %v", err)
	}
	if reservation.Status != enums.ReservationStatusPending {
		t.Fatalf("expected pending, got %s", reservation.Status)
	}
	if reservation.TotalCents != 35100 {
		t.Fatalf("expected total 35100, got %d", reservation.TotalCents)
	}
	if intent.Quote.TotalCents != 35100 {
		t.Fatalf("expected intent quote replaced, got %d", intent.Quote.TotalCents)
	}
}

func TestCreatePendingReservationRejectsUnavailableStudio(t *testing.T) {
	studio := availableStudio()
	studio.IsAvailable = false
	svc := newTestService(t, &stubRepo{}, stubStudios{studio: studio})

	intent := &booking.Intent{StudioID: studio.ID, CheckIn: day("2024-06-01"), CheckOut: day("2024-06-04"), GuestCount: 1}
	_, err := svc.CreatePendingReservation(context.Background(), intent, uuid.New())
	if !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCreatePendingReservationRejectsOvercapacity(t *testing.T) {
	studio := availableStudio()
	svc := newTestService(t, &stubRepo{}, stubStudios{studio: studio})

	intent := &booking.Intent{StudioID: studio.ID, CheckIn: day("2024-06-01"), CheckOut: day("2024-06-04"), GuestCount: 5}
	_, err := svc.CreatePendingReservation(context.Background(), intent, uuid.New())
	if !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestConfirmReservationFromPending(t *testing.T) {
	id := uuid.New()
	repo := &stubRepo{reservation: &models.Reservation{ID: id, Status: enums.ReservationStatusPending}}
	svc := newTestService(t, repo, stubStudios{studio: availableStudio()})

	if err := svc.ConfirmReservation(context.Background(), id); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if !repo.updateCalled || repo.updatedStatus != enums.ReservationStatusConfirmed {
		t.Fatalf("expected status update to confirmed, got %s", repo.updatedStatus)
	}
}

func TestConfirmReservationIdempotent(t *testing.T) {
	id := uuid.New()
	repo := &stubRepo{reservation: &models.Reservation{ID: id, Status: enums.ReservationStatusConfirmed}}
	svc := newTestService(t, repo, stubStudios{studio: availableStudio()})

	if err := svc.ConfirmReservation(context.Background(), id); err != nil {
		t.Fatalf("expected no-op, got %v", err)
	}
	if repo.updateCalled {
		t.Fatal("expected no status write on repeat confirm")
	}
}

func TestConfirmReservationRejectsCancelled(t *testing.T) {
	id := uuid.New()
	repo := &stubRepo{reservation: &models.Reservation{ID: id, Status: enums.ReservationStatusCancelled}}
	svc := newTestService(t, repo, stubStudios{studio: availableStudio()})

	err := svc.ConfirmReservation(context.Background(), id)
	if !pkgerrors.HasCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

func TestConfirmReservationGuardedWriteLostToSameTarget(t *testing.T) {
	id := uuid.New()
	winner := enums.ReservationStatusConfirmed
	repo := &stubRepo{
		reservation:  &models.Reservation{ID: id, Status: enums.ReservationStatusPending},
		raceToStatus: &winner,
	}
	svc := newTestService(t, repo, stubStudios{studio: availableStudio()})

	if err := svc.ConfirmReservation(context.Background(), id); err != nil {
		t.Fatalf("losing a guarded write to the same target must be a no-op, got %v", err)
	}
	if repo.updateCalled {
		t.Fatal("expected no second status write after the lost race")
	}
}

func TestConfirmReservationGuardedWriteLostToCancellation(t *testing.T) {
	id := uuid.New()
	winner := enums.ReservationStatusCancelled
	repo := &stubRepo{
		reservation:  &models.Reservation{ID: id, Status: enums.ReservationStatusPending},
		raceToStatus: &winner,
	}
	svc := newTestService(t, repo, stubStudios{studio: availableStudio()})

	err := svc.ConfirmReservation(context.Background(), id)
	if !pkgerrors.HasCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected state conflict after losing to a cancellation, got %v", err)
	}
}

func TestCancelReservationIdempotent(t *testing.T) {
	id := uuid.New()
	repo := &stubRepo{reservation: &models.Reservation{ID: id, Status: enums.ReservationStatusCancelled}}
	svc := newTestService(t, repo, stubStudios{studio: availableStudio()})

	if err := svc.CancelReservation(context.Background(), id); err != nil {
		t.Fatalf("expected no-op, got %v", err)
	}
}

func TestRecordPaymentSuccess(t *testing.T) {
	repo := &stubRepo{}
	svc := newTestService(t, repo, stubStudios{studio: availableStudio()})

	payment, err := svc.RecordPayment(context.Background(), RecordPaymentInput{
		ReservationID: uuid.New(),
		UserID:        uuid.New(),
		AmountCents:   35100,
		Currency:      "XAF",
		Method:        enums.PaymentMethodMonetbil,
		Status:        enums.PaymentStatusCompleted,
		ExternalID:    "mb-123",
		Channel:       "MTN Mobile Money",
	})
	if err != nil {
		t.Fatalf("record payment: %v", err)
	}
	if payment.ProcessedAt == nil {
		t.Fatal("expected processed_at on completed payment")
	}
	if payment.Channel == nil || *payment.Channel != "MTN Mobile Money" {
		t.Fatalf("expected channel recorded, got %v", payment.Channel)
	}
}

func TestRecordPaymentIdempotentOnDuplicate(t *testing.T) {
	existing := &models.Payment{ID: uuid.New(), ExternalID: "mb-123", Status: enums.PaymentStatusCompleted}
	repo := &stubRepo{
		createPaymentErr: errors.New(`duplicate key value violates unique constraint "idx_payments_external_id"`),
		paymentByExtID:   existing,
	}
	svc := newTestService(t, repo, stubStudios{studio: availableStudio()})

	payment, err := svc.RecordPayment(context.Background(), RecordPaymentInput{
		ReservationID: uuid.New(),
		UserID:        uuid.New(),
		AmountCents:   35100,
		Method:        enums.PaymentMethodMonetbil,
		Status:        enums.PaymentStatusCompleted,
		ExternalID:    "mb-123",
	})
	if err != nil {
		t.Fatalf("record payment: %v", err)
	}
	if payment.ID != existing.ID {
		t.Fatalf("expected existing row %s, got %s", existing.ID, payment.ID)
	}
}
