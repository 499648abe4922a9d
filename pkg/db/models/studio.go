package models

import (
	"time"

	"github.com/google/uuid"
)

// Studio is a bookable unit in the directory.
type Studio struct {
	ID                 uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Name               string    `gorm:"column:name;not null"`
	City               string    `gorm:"column:city;not null"`
	PricePerNightCents int       `gorm:"column:price_per_night_cents;not null"`
	CleaningFeeCents   int       `gorm:"column:cleaning_fee_cents;not null;default:0"`
	MaxGuests          int       `gorm:"column:max_guests;not null;default:2"`
	IsAvailable        bool      `gorm:"column:is_available;not null;default:true"`
	HostUserID         uuid.UUID `gorm:"column:host_user_id;type:uuid;not null"`
	CreatedAt          time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
