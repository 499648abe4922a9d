package booking

import (
	"time"

	"github.com/google/uuid"

	"github.com/mbouombouo/studiostay-backend/pkg/enums"
)

// GuestInfo is the contact block submitted with a booking intent. It is
// enough to create a guest account when no authenticated user exists.
type GuestInfo struct {
	Email     string  `json:"email"`
	FirstName string  `json:"first_name"`
	LastName  string  `json:"last_name"`
	Phone     *string `json:"phone,omitempty"`
}

// PaymentDetails carries the provider-specific inputs for initiation.
type PaymentDetails struct {
	Phone    string `json:"phone,omitempty"`
	Operator string `json:"operator,omitempty"`
}

// Intent is the client-submitted description of a desired stay. It is never
// persisted directly; the reconciler embeds a snapshot of it in the payment
// status cache so webhook/poll callbacks can materialize the booking later.
type Intent struct {
	StudioID        uuid.UUID           `json:"studio_id"`
	CheckIn         time.Time           `json:"check_in"`
	CheckOut        time.Time           `json:"check_out"`
	GuestCount      int                 `json:"guest_count"`
	Guest           GuestInfo           `json:"guest"`
	SpecialRequests *string             `json:"special_requests,omitempty"`
	Method          enums.PaymentMethod `json:"method"`
	Payment         PaymentDetails      `json:"payment"`
	Quote           Quote               `json:"quote"`
}
