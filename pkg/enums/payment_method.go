package enums

import "fmt"

// PaymentMethod names the provider channel chosen for a booking.
type PaymentMethod string

const (
	PaymentMethodMonetbil PaymentMethod = "monetbil"
	PaymentMethodPawaPay  PaymentMethod = "pawapay"
	PaymentMethodCard     PaymentMethod = "card"
	PaymentMethodPayPal   PaymentMethod = "paypal"
)

var validPaymentMethods = []PaymentMethod{
	PaymentMethodMonetbil,
	PaymentMethodPawaPay,
	PaymentMethodCard,
	PaymentMethodPayPal,
}

// String implements fmt.Stringer.
func (p PaymentMethod) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PaymentMethod.
func (p PaymentMethod) IsValid() bool {
	for _, candidate := range validPaymentMethods {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePaymentMethod converts raw input into a PaymentMethod.
func ParsePaymentMethod(value string) (PaymentMethod, error) {
	for _, candidate := range validPaymentMethods {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment method %q", value)
}
