package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/mbouombouo/studiostay-backend/internal/booking"
	"github.com/mbouombouo/studiostay-backend/internal/reconciler"
	"github.com/mbouombouo/studiostay-backend/pkg/enums"
	pkgerrors "github.com/mbouombouo/studiostay-backend/pkg/errors"
)

type stubReconcilerService struct {
	result    *reconciler.BookingResult
	status    *reconciler.StatusResult
	err       error
	submitted *booking.Intent
}

func (s *stubReconcilerService) SubmitBooking(ctx context.Context, intent *booking.Intent) (*reconciler.BookingResult, error) {
	s.submitted = intent
	return s.result, s.err
}

func (s *stubReconcilerService) HandlePaymentEvent(ctx context.Context, evt reconciler.PaymentEvent) error {
	return s.err
}

func (s *stubReconcilerService) GetPaymentStatus(ctx context.Context, reference string) (*reconciler.StatusResult, error) {
	return s.status, s.err
}

func bookingBody(studioID string) string {
	return `{
		"studio_id": "` + studioID + `",
		"check_in": "2026-09-10",
		"check_out": "2026-09-13",
		"guest_count": 2,
		"guest": {"email": "aline@example.cm", "first_name": "Aline", "last_name": "Ndongo"},
		"payment_method": "monetbil",
		"payment": {"phone": "670000001", "operator": "mtn"}
	}`
}

func TestSubmitBookingCreated(t *testing.T) {
	reservationID := uuid.New()
	svc := &stubReconcilerService{
		result: &reconciler.BookingResult{
			ReservationID: reservationID,
			Reference:     "mb-123",
			Status:        enums.GatewayStatusPending,
			AmountCents:   35100,
			Currency:      "XAF",
		},
	}
	handler := SubmitBooking(svc, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/bookings", strings.NewReader(bookingBody(uuid.NewString())))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", resp.Code, resp.Body.String())
	}

	var envelope struct {
		Data reconciler.BookingResult `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.ReservationID != reservationID {
		t.Fatalf("unexpected reservation id: %s", envelope.Data.ReservationID)
	}
	if envelope.Data.Reference != "mb-123" {
		t.Fatalf("unexpected reference: %s", envelope.Data.Reference)
	}

	if svc.submitted == nil {
		t.Fatal("expected intent handed to the service")
	}
	if svc.submitted.Method != enums.PaymentMethodMonetbil {
		t.Fatalf("unexpected method: %s", svc.submitted.Method)
	}
	if svc.submitted.Guest.Email != "aline@example.cm" {
		t.Fatalf("unexpected guest email: %s", svc.submitted.Guest.Email)
	}
	if svc.submitted.CheckOut.Sub(svc.submitted.CheckIn).Hours() != 72 {
		t.Fatalf("unexpected stay length: %s to %s", svc.submitted.CheckIn, svc.submitted.CheckOut)
	}
}

func TestSubmitBookingRejectsMissingGuestEmail(t *testing.T) {
	svc := &stubReconcilerService{}
	handler := SubmitBooking(svc, nil)

	body := `{
		"studio_id": "` + uuid.NewString() + `",
		"check_in": "2026-09-10",
		"check_out": "2026-09-13",
		"guest_count": 2,
		"guest": {"first_name": "Aline", "last_name": "Ndongo"},
		"payment_method": "monetbil"
	}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/bookings", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
	if svc.submitted != nil {
		t.Fatal("invalid payload must not reach the service")
	}
}

func TestSubmitBookingRejectsUnknownPaymentMethod(t *testing.T) {
	handler := SubmitBooking(&stubReconcilerService{}, nil)

	body := strings.Replace(bookingBody(uuid.NewString()), "monetbil", "cash", 1)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/bookings", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestSubmitBookingRejectsBadDate(t *testing.T) {
	handler := SubmitBooking(&stubReconcilerService{}, nil)

	body := strings.Replace(bookingBody(uuid.NewString()), "2026-09-10", "next tuesday", 1)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/bookings", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestSubmitBookingSurfacesServiceError(t *testing.T) {
	svc := &stubReconcilerService{err: pkgerrors.New(pkgerrors.CodeNotFound, "studio not found")}
	handler := SubmitBooking(svc, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/bookings", strings.NewReader(bookingBody(uuid.NewString())))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", resp.Code)
	}
}
