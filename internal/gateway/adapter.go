package gateway

import (
	"context"

	pkgerrors "github.com/mbouombouo/studiostay-backend/pkg/errors"

	"github.com/mbouombouo/studiostay-backend/pkg/enums"
)

// InitiateRequest carries everything an adapter needs to start a payment.
type InitiateRequest struct {
	AmountCents int
	Currency    string
	Phone       string
	Operator    string
	Email       string
	Description string
}

// InitiationResult is the adapter's answer to an initiation attempt. Status
// may already be terminal: some providers confirm synchronously.
type InitiationResult struct {
	Reference string
	Status    enums.GatewayStatus
	Channel   string
	Message   string
}

// Adapter abstracts one payment provider. A rejected payment is a normal
// FAILED result, not an error; errors are reserved for transport and
// malformed-response conditions.
type Adapter interface {
	Method() enums.PaymentMethod
	Initiate(ctx context.Context, req InitiateRequest) (*InitiationResult, error)
	QueryStatus(ctx context.Context, reference string) (enums.GatewayStatus, string, error)
}

// Registry resolves the adapter for a payment method.
type Registry struct {
	adapters map[enums.PaymentMethod]Adapter
}

// NewRegistry indexes the provided adapters by method.
func NewRegistry(adapters ...Adapter) *Registry {
	registry := &Registry{adapters: make(map[enums.PaymentMethod]Adapter, len(adapters))}
	for _, adapter := range adapters {
		if adapter == nil {
			continue
		}
		registry.adapters[adapter.Method()] = adapter
	}
	return registry
}

// Register adds or replaces the adapter for its method.
func (r *Registry) Register(adapter Adapter) {
	if adapter == nil {
		return
	}
	r.adapters[adapter.Method()] = adapter
}

// For returns the adapter registered for the method.
func (r *Registry) For(method enums.PaymentMethod) (Adapter, error) {
	adapter, ok := r.adapters[method]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unsupported payment method").
			WithDetails(map[string]string{"method": method.String()})
	}
	return adapter, nil
}
