package enums

import "fmt"

// GatewayStatus is the provider-reported state of a payment attempt.
type GatewayStatus string

const (
	GatewayStatusPending GatewayStatus = "pending"
	GatewayStatusSuccess GatewayStatus = "success"
	GatewayStatusFailed  GatewayStatus = "failed"
	GatewayStatusTimeout GatewayStatus = "timeout"
)

var validGatewayStatuses = []GatewayStatus{
	GatewayStatusPending,
	GatewayStatusSuccess,
	GatewayStatusFailed,
	GatewayStatusTimeout,
}

// String implements fmt.Stringer.
func (g GatewayStatus) String() string {
	return string(g)
}

// IsValid reports whether the value is a known GatewayStatus.
func (g GatewayStatus) IsValid() bool {
	for _, candidate := range validGatewayStatuses {
		if candidate == g {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status can no longer change.
func (g GatewayStatus) IsTerminal() bool {
	switch g {
	case GatewayStatusSuccess, GatewayStatusFailed, GatewayStatusTimeout:
		return true
	}
	return false
}

// ParseGatewayStatus converts raw input into a GatewayStatus.
func ParseGatewayStatus(value string) (GatewayStatus, error) {
	for _, candidate := range validGatewayStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid gateway status %q", value)
}
