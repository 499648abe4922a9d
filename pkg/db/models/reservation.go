package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/mbouombouo/studiostay-backend/pkg/enums"
)

// Reservation is a stay booked against a studio. Money fields are integer
// minor currency units.
type Reservation struct {
	ID              uuid.UUID               `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	StudioID        uuid.UUID               `gorm:"column:studio_id;type:uuid;not null"`
	GuestUserID     uuid.UUID               `gorm:"column:guest_user_id;type:uuid;not null"`
	CheckIn         time.Time               `gorm:"column:check_in;not null"`
	CheckOut        time.Time               `gorm:"column:check_out;not null"`
	Nights          int                     `gorm:"column:nights;not null"`
	GuestCount      int                     `gorm:"column:guest_count;not null;default:1"`
	SubtotalCents   int                     `gorm:"column:subtotal_cents;not null"`
	ServiceFeeCents int                     `gorm:"column:service_fee_cents;not null;default:0"`
	TaxCents        int                     `gorm:"column:tax_cents;not null;default:0"`
	CleaningFeeCents int                    `gorm:"column:cleaning_fee_cents;not null;default:0"`
	TotalCents      int                     `gorm:"column:total_cents;not null"`
	Status          enums.ReservationStatus `gorm:"column:status;type:text;not null;default:'pending'"`
	SpecialRequests *string                 `gorm:"column:special_requests"`
	Payment         *Payment                `gorm:"foreignKey:ReservationID;constraint:OnDelete:CASCADE"`
	CreatedAt       time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}
