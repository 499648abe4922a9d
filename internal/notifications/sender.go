package notifications

import (
	"context"
	"fmt"

	"github.com/mbouombouo/studiostay-backend/pkg/config"
	"github.com/mbouombouo/studiostay-backend/pkg/db/models"
	"github.com/mbouombouo/studiostay-backend/pkg/logger"
)

// Confirmation is the payload for a booking confirmation message.
type Confirmation struct {
	ToEmail       string
	GuestName     string
	StudioName    string
	ReservationID string
	CheckIn       string
	CheckOut      string
	TotalCents    int
	Currency      string
}

// Sender delivers guest-facing messages. Delivery is best-effort: a failed
// send never rolls back the booking it announces.
type Sender interface {
	SendBookingConfirmation(ctx context.Context, confirmation Confirmation) error
}

// LogSender writes the confirmation to the structured log. It stands in for a
// mail provider in environments without one configured.
type LogSender struct {
	cfg    config.NotifierConfig
	logger *logger.Logger
}

// NewLogSender builds the logging sender.
func NewLogSender(cfg config.NotifierConfig, logg *logger.Logger) (*LogSender, error) {
	if logg == nil {
		return nil, fmt.Errorf("notifications: logger required")
	}
	return &LogSender{cfg: cfg, logger: logg}, nil
}

// SendBookingConfirmation implements Sender.
func (s *LogSender) SendBookingConfirmation(ctx context.Context, confirmation Confirmation) error {
	if !s.cfg.Enabled {
		return nil
	}
	ctx = s.logger.WithFields(ctx, map[string]any{
		"to":             confirmation.ToEmail,
		"from":           s.cfg.FromEmail,
		"studio":         confirmation.StudioName,
		"reservation_id": confirmation.ReservationID,
		"check_in":       confirmation.CheckIn,
		"check_out":      confirmation.CheckOut,
		"total_cents":    confirmation.TotalCents,
		"currency":       confirmation.Currency,
	})
	s.logger.Info(ctx, "booking confirmation sent")
	return nil
}

// ConfirmationFromReservation builds the message payload from ledger rows.
func ConfirmationFromReservation(user *models.User, reservation *models.Reservation, studioName, currency string) Confirmation {
	return Confirmation{
		ToEmail:       user.Email,
		GuestName:     fmt.Sprintf("%s %s", user.FirstName, user.LastName),
		StudioName:    studioName,
		ReservationID: reservation.ID.String(),
		CheckIn:       reservation.CheckIn.Format("2006-01-02"),
		CheckOut:      reservation.CheckOut.Format("2006-01-02"),
		TotalCents:    reservation.TotalCents,
		Currency:      currency,
	}
}
