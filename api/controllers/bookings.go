package controllers

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/mbouombouo/studiostay-backend/api/responses"
	"github.com/mbouombouo/studiostay-backend/api/validators"
	"github.com/mbouombouo/studiostay-backend/internal/booking"
	"github.com/mbouombouo/studiostay-backend/internal/reconciler"
	"github.com/mbouombouo/studiostay-backend/pkg/enums"
	pkgerrors "github.com/mbouombouo/studiostay-backend/pkg/errors"
	"github.com/mbouombouo/studiostay-backend/pkg/logger"
)

const dateLayout = "2006-01-02"

// SubmitBooking receives a booking intent and starts the payment flow.
func SubmitBooking(svc reconciler.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "booking service unavailable"))
			return
		}

		var payload bookingRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		intent, err := payload.toIntent()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.SubmitBooking(r.Context(), intent)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

type bookingRequest struct {
	StudioID        string              `json:"studio_id" validate:"required,uuid4"`
	CheckIn         string              `json:"check_in" validate:"required"`
	CheckOut        string              `json:"check_out" validate:"required"`
	GuestCount      int                 `json:"guest_count" validate:"required,min=1"`
	Guest           bookingGuestPayload `json:"guest" validate:"required"`
	SpecialRequests *string             `json:"special_requests,omitempty"`
	PaymentMethod   string              `json:"payment_method" validate:"required,oneof=monetbil pawapay card paypal"`
	Payment         paymentPayload      `json:"payment"`
}

type bookingGuestPayload struct {
	Email     string  `json:"email" validate:"required,email"`
	FirstName string  `json:"first_name" validate:"required"`
	LastName  string  `json:"last_name" validate:"required"`
	Phone     *string `json:"phone,omitempty"`
}

type paymentPayload struct {
	Phone    string `json:"phone,omitempty"`
	Operator string `json:"operator,omitempty"`
}

func (p bookingRequest) toIntent() (*booking.Intent, error) {
	studioID, err := uuid.Parse(p.StudioID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid studio id")
	}
	checkIn, err := time.Parse(dateLayout, p.CheckIn)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid check-in date")
	}
	checkOut, err := time.Parse(dateLayout, p.CheckOut)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid check-out date")
	}
	method, err := enums.ParsePaymentMethod(p.PaymentMethod)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment method")
	}

	return &booking.Intent{
		StudioID:   studioID,
		CheckIn:    checkIn,
		CheckOut:   checkOut,
		GuestCount: p.GuestCount,
		Guest: booking.GuestInfo{
			Email:     p.Guest.Email,
			FirstName: p.Guest.FirstName,
			LastName:  p.Guest.LastName,
			Phone:     p.Guest.Phone,
		},
		SpecialRequests: p.SpecialRequests,
		Method:          method,
		Payment: booking.PaymentDetails{
			Phone:    p.Payment.Phone,
			Operator: p.Payment.Operator,
		},
	}, nil
}
