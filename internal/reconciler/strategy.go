package reconciler

import (
	"time"

	"github.com/mbouombouo/studiostay-backend/internal/statuscache"
	"github.com/mbouombouo/studiostay-backend/pkg/enums"
)

// SimulationStrategy decides what status to report when the provider cannot
// be queried. It never mutates state; a simulated terminal answer is fed back
// through the normal reconciliation path.
type SimulationStrategy interface {
	Simulate(entry *statuscache.Entry, now time.Time) (enums.GatewayStatus, string, bool)
}

// AgeBasedStrategy approves payments older than SuccessAfter and leaves
// younger ones pending. Used in sandbox environments where the provider has
// no real settlement signal.
type AgeBasedStrategy struct {
	SuccessAfter time.Duration
}

// Simulate implements SimulationStrategy.
func (s AgeBasedStrategy) Simulate(entry *statuscache.Entry, now time.Time) (enums.GatewayStatus, string, bool) {
	if entry == nil {
		return "", "", false
	}
	if entry.Age(now) >= s.SuccessAfter {
		return enums.GatewayStatusSuccess, "payment settled (simulated)", true
	}
	return enums.GatewayStatusPending, "awaiting subscriber approval", true
}

// NoSimulation reports nothing, leaving the caller with the cached status.
type NoSimulation struct{}

// Simulate implements SimulationStrategy.
func (NoSimulation) Simulate(entry *statuscache.Entry, now time.Time) (enums.GatewayStatus, string, bool) {
	return "", "", false
}
