package gateway

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/mbouombouo/studiostay-backend/pkg/enums"
	pkgerrors "github.com/mbouombouo/studiostay-backend/pkg/errors"
)

// CardAdapter simulates a synchronous card/PayPal approval. There is no real
// acquirer behind it; it exists so the immediate-terminal initiation path has
// a production shape while the card programme is pending.
type CardAdapter struct {
	method enums.PaymentMethod
}

// NewCardAdapter builds a simulated adapter for the given method.
func NewCardAdapter(method enums.PaymentMethod) (*CardAdapter, error) {
	if method != enums.PaymentMethodCard && method != enums.PaymentMethodPayPal {
		return nil, fmt.Errorf("card adapter does not support method %q", method)
	}
	return &CardAdapter{method: method}, nil
}

// Method implements Adapter.
func (a *CardAdapter) Method() enums.PaymentMethod {
	return a.method
}

// Initiate approves immediately with a generated reference.
func (a *CardAdapter) Initiate(ctx context.Context, req InitiateRequest) (*InitiationResult, error) {
	if req.AmountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	return &InitiationResult{
		Reference: fmt.Sprintf("%s_%s", a.method, uuid.NewString()),
		Status:    enums.GatewayStatusSuccess,
		Channel:   a.method.String(),
		Message:   "approved",
	}, nil
}

// QueryStatus always reports success: the simulated approval is terminal at
// initiation time.
func (a *CardAdapter) QueryStatus(ctx context.Context, reference string) (enums.GatewayStatus, string, error) {
	if reference == "" {
		return "", "", pkgerrors.New(pkgerrors.CodeValidation, "payment reference is required")
	}
	return enums.GatewayStatusSuccess, "approved", nil
}
