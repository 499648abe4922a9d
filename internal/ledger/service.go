package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mbouombouo/studiostay-backend/internal/booking"
	"github.com/mbouombouo/studiostay-backend/internal/studios"
	"github.com/mbouombouo/studiostay-backend/pkg/config"
	"github.com/mbouombouo/studiostay-backend/pkg/db"
	"github.com/mbouombouo/studiostay-backend/pkg/db/models"
	"github.com/mbouombouo/studiostay-backend/pkg/enums"
	pkgerrors "github.com/mbouombouo/studiostay-backend/pkg/errors"
	"github.com/mbouombouo/studiostay-backend/pkg/logger"
	"github.com/mbouombouo/studiostay-backend/pkg/security"
)

type ledgerRepository interface {
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
	CreateUser(ctx context.Context, user *models.User) (*models.User, error)
	FindReservationByID(ctx context.Context, id uuid.UUID) (*models.Reservation, error)
	CreateReservation(ctx context.Context, reservation *models.Reservation) (*models.Reservation, error)
	UpdateReservationStatus(ctx context.Context, id uuid.UUID, from, to enums.ReservationStatus) (bool, error)
	CreatePayment(ctx context.Context, payment *models.Payment) (*models.Payment, error)
	FindPaymentByExternalID(ctx context.Context, externalID string) (*models.Payment, error)
}

type studioDirectory interface {
	GetStudio(ctx context.Context, id uuid.UUID) (*studios.StudioDTO, error)
}

// RecordPaymentInput carries the fields a reconciled payment row needs.
type RecordPaymentInput struct {
	ReservationID uuid.UUID
	UserID        uuid.UUID
	AmountCents   int
	Currency      string
	Method        enums.PaymentMethod
	Status        enums.PaymentStatus
	ExternalID    string
	Channel       string
	FailureReason string
}

// Service is the write surface over users, reservations and payments. Every
// mutation keeps the three tables a consistent triple.
type Service interface {
	FindOrCreateUser(ctx context.Context, guest booking.GuestInfo) (*models.User, bool, error)
	CreatePendingReservation(ctx context.Context, intent *booking.Intent, guestUserID uuid.UUID) (*models.Reservation, error)
	ConfirmReservation(ctx context.Context, id uuid.UUID) error
	CancelReservation(ctx context.Context, id uuid.UUID) error
	RecordPayment(ctx context.Context, input RecordPaymentInput) (*models.Payment, error)
	GetReservation(ctx context.Context, id uuid.UUID) (*models.Reservation, error)
}

// ServiceParams bundles the service dependencies.
type ServiceParams struct {
	Repo        ledgerRepository
	Studios     studioDirectory
	BookingCfg  config.BookingConfig
	PasswordCfg config.PasswordConfig
	Logger      *logger.Logger
}

type service struct {
	repo        ledgerRepository
	studios     studioDirectory
	bookingCfg  config.BookingConfig
	passwordCfg config.PasswordConfig
	logger      *logger.Logger
}

// NewService validates the params and builds the ledger service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if params.Studios == nil {
		return nil, fmt.Errorf("studio directory required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:        params.Repo,
		studios:     params.Studios,
		bookingCfg:  params.BookingCfg,
		passwordCfg: params.PasswordCfg,
		logger:      params.Logger,
	}, nil
}

// FindOrCreateUser returns the user owning the guest email, creating a guest
// account with a temporary password when none exists. The bool reports whether
// a new account was created. A create that loses the uniqueness race falls
// back to the lookup; only when both fail does the caller see a conflict.
func (s *service) FindOrCreateUser(ctx context.Context, guest booking.GuestInfo) (*models.User, bool, error) {
	email := strings.ToLower(strings.TrimSpace(guest.Email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "a valid guest email is required")
	}

	user, err := s.repo.FindUserByEmail(ctx, email)
	if err == nil {
		return user, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup user")
	}

	tempPassword, err := security.GenerateTempPassword(s.passwordCfg.TempPasswordChars)
	if err != nil {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate temp password")
	}
	hash, err := security.HashPassword(tempPassword, s.passwordCfg)
	if err != nil {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash password")
	}

	created, err := s.repo.CreateUser(ctx, &models.User{
		Email:        email,
		PasswordHash: hash,
		FirstName:    guest.FirstName,
		LastName:     guest.LastName,
		Phone:        guest.Phone,
		Role:         enums.UserRoleGuest,
		IsActive:     true,
	})
	if err == nil {
		return created, true, nil
	}
	if !db.IsUniqueViolation(err, "") {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create user")
	}

	// another request created the account between lookup and insert
	existing, lookupErr := s.repo.FindUserByEmail(ctx, email)
	if lookupErr != nil {
		return nil, false, pkgerrors.New(pkgerrors.CodeConflict, "user conflict").
			WithDetails(map[string]string{"email": email})
	}
	return existing, false, nil
}

// CreatePendingReservation prices the stay server-side and inserts the
// reservation in PENDING. The studio must exist and be bookable.
func (s *service) CreatePendingReservation(ctx context.Context, intent *booking.Intent, guestUserID uuid.UUID) (*models.Reservation, error) {
	if intent == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "booking intent is required")
	}
	if guestUserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "guest user id is required")
	}

	studio, err := s.studios.GetStudio(ctx, intent.StudioID)
	if err != nil {
		return nil, err
	}
	if !studio.IsAvailable {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "studio is not available for booking")
	}
	if intent.GuestCount < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "guest count must be at least 1")
	}
	if studio.MaxGuests > 0 && intent.GuestCount > studio.MaxGuests {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "guest count exceeds studio capacity").
			WithDetails(map[string]int{"max_guests": studio.MaxGuests})
	}

	quote, err := booking.ComputeQuote(intent.CheckIn, intent.CheckOut, studio.PricePerNightCents, studio.CleaningFeeCents, s.bookingCfg)
	if err != nil {
		return nil, err
	}
	intent.Quote = quote

	reservation, err := s.repo.CreateReservation(ctx, &models.Reservation{
		StudioID:         intent.StudioID,
		GuestUserID:      guestUserID,
		CheckIn:          intent.CheckIn,
		CheckOut:         intent.CheckOut,
		Nights:           quote.Nights,
		GuestCount:       intent.GuestCount,
		SubtotalCents:    quote.SubtotalCents,
		ServiceFeeCents:  quote.ServiceFeeCents,
		TaxCents:         quote.TaxCents,
		CleaningFeeCents: quote.CleaningFeeCents,
		TotalCents:       quote.TotalCents,
		Status:           enums.ReservationStatusPending,
		SpecialRequests:  intent.SpecialRequests,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create reservation")
	}
	return reservation, nil
}

// ConfirmReservation moves a pending reservation to CONFIRMED. Confirming an
// already confirmed reservation is a no-op; any other settled state conflicts.
func (s *service) ConfirmReservation(ctx context.Context, id uuid.UUID) error {
	return s.transition(ctx, id, enums.ReservationStatusConfirmed)
}

// CancelReservation moves a pending reservation to CANCELLED. Cancelling an
// already cancelled reservation is a no-op; any other settled state conflicts.
func (s *service) CancelReservation(ctx context.Context, id uuid.UUID) error {
	return s.transition(ctx, id, enums.ReservationStatusCancelled)
}

func (s *service) transition(ctx context.Context, id uuid.UUID, target enums.ReservationStatus) error {
	reservation, err := s.repo.FindReservationByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "reservation not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load reservation")
	}

	if reservation.Status == target {
		return nil
	}
	if reservation.Status.IsTerminalForPayment() {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "reservation already settled").
			WithDetails(map[string]string{
				"status":    reservation.Status.String(),
				"requested": target.String(),
			})
	}

	updated, err := s.repo.UpdateReservationStatus(ctx, id, reservation.Status, target)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update reservation status")
	}
	if !updated {
		// the row moved between the read and the guarded write; a concurrent
		// transition to the same target is still a no-op
		current, err := s.repo.FindReservationByID(ctx, id)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reload reservation")
		}
		if current.Status == target {
			return nil
		}
		return pkgerrors.New(pkgerrors.CodeStateConflict, "reservation already settled").
			WithDetails(map[string]string{
				"status":    current.Status.String(),
				"requested": target.String(),
			})
	}
	return nil
}

// RecordPayment inserts the payment row for a provider reference. A second
// call with the same ExternalID returns the already recorded row unchanged.
func (s *service) RecordPayment(ctx context.Context, input RecordPaymentInput) (*models.Payment, error) {
	if input.ExternalID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment external id is required")
	}
	if input.ReservationID == uuid.Nil || input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment requires reservation and user ids")
	}

	payment := &models.Payment{
		ReservationID: input.ReservationID,
		UserID:        input.UserID,
		AmountCents:   input.AmountCents,
		Currency:      input.Currency,
		Method:        input.Method,
		Status:        input.Status,
		ExternalID:    input.ExternalID,
	}
	if input.Channel != "" {
		payment.Channel = &input.Channel
	}
	if input.FailureReason != "" {
		payment.FailureReason = &input.FailureReason
	}
	if input.Status == enums.PaymentStatusCompleted {
		now := time.Now().UTC()
		payment.ProcessedAt = &now
	}

	created, err := s.repo.CreatePayment(ctx, payment)
	if err == nil {
		return created, nil
	}
	if !db.IsUniqueViolation(err, "") {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create payment")
	}

	existing, lookupErr := s.repo.FindPaymentByExternalID(ctx, input.ExternalID)
	if lookupErr != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, lookupErr, "load recorded payment")
	}
	return existing, nil
}

// GetReservation loads a reservation or CodeNotFound.
func (s *service) GetReservation(ctx context.Context, id uuid.UUID) (*models.Reservation, error) {
	reservation, err := s.repo.FindReservationByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "reservation not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load reservation")
	}
	return reservation, nil
}
