package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/mbouombouo/studiostay-backend/pkg/enums"
)

// Payment records the money side of a reconciled booking. ExternalID is the
// provider's own transaction reference and doubles as the idempotency key.
type Payment struct {
	ID                uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ReservationID     uuid.UUID           `gorm:"column:reservation_id;type:uuid;not null"`
	UserID            uuid.UUID           `gorm:"column:user_id;type:uuid;not null"`
	AmountCents       int                 `gorm:"column:amount_cents;not null"`
	Currency          string              `gorm:"column:currency;type:text;not null;default:'XAF'"`
	Method            enums.PaymentMethod `gorm:"column:method;type:text;not null"`
	Status            enums.PaymentStatus `gorm:"column:status;type:text;not null;default:'pending'"`
	ExternalID        string              `gorm:"column:external_id;type:text;not null;uniqueIndex"`
	Channel           *string             `gorm:"column:channel"`
	FailureReason     *string             `gorm:"column:failure_reason"`
	RefundedAt        *time.Time          `gorm:"column:refunded_at"`
	RefundAmountCents int                 `gorm:"column:refund_amount_cents;not null;default:0"`
	ProcessedAt       *time.Time          `gorm:"column:processed_at"`
	CreatedAt         time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
