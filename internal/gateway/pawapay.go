package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mbouombouo/studiostay-backend/pkg/config"
	"github.com/mbouombouo/studiostay-backend/pkg/enums"
	pkgerrors "github.com/mbouombouo/studiostay-backend/pkg/errors"
	"github.com/mbouombouo/studiostay-backend/pkg/logger"
)

const pawapayRequestTimeout = 15 * time.Second

// PawaPayAdapter drives pawaPay deposit requests. The deposit id is generated
// client-side and becomes the provider reference.
type PawaPayAdapter struct {
	cfg    config.PawaPayConfig
	http   *http.Client
	logger *logger.Logger
}

type pawapayDepositRequest struct {
	DepositID   string `json:"depositId"`
	Amount      string `json:"amount"`
	Currency    string `json:"currency"`
	Payer       payer  `json:"payer"`
	Description string `json:"statementDescription,omitempty"`
}

type payer struct {
	Type    string  `json:"type"`
	Address address `json:"address"`
}

type address struct {
	Value string `json:"value"`
}

type pawapayDepositResponse struct {
	DepositID string `json:"depositId"`
	Status    string `json:"status"`
	Message   string `json:"failureReason,omitempty"`
}

// NewPawaPayAdapter validates the token and builds the adapter.
func NewPawaPayAdapter(cfg config.PawaPayConfig, logg *logger.Logger) (*PawaPayAdapter, error) {
	if strings.TrimSpace(cfg.APIToken) == "" {
		return nil, fmt.Errorf("pawapay api token is required")
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("pawapay base url is required")
	}
	return &PawaPayAdapter{
		cfg:    cfg,
		http:   &http.Client{Timeout: pawapayRequestTimeout},
		logger: logg,
	}, nil
}

// Method implements Adapter.
func (a *PawaPayAdapter) Method() enums.PaymentMethod {
	return enums.PaymentMethodPawaPay
}

// Initiate submits a deposit against the subscriber's wallet.
func (a *PawaPayAdapter) Initiate(ctx context.Context, req InitiateRequest) (*InitiationResult, error) {
	if strings.TrimSpace(req.Phone) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payer phone number is required")
	}

	depositID := uuid.NewString()
	payload := pawapayDepositRequest{
		DepositID:   depositID,
		Amount:      strconv.Itoa(req.AmountCents),
		Currency:    req.Currency,
		Payer:       payer{Type: "MSISDN", Address: address{Value: req.Phone}},
		Description: req.Description,
	}

	var resp pawapayDepositResponse
	if err := a.do(ctx, http.MethodPost, "/deposits", payload, &resp); err != nil {
		return nil, err
	}

	reference := resp.DepositID
	if reference == "" {
		reference = depositID
	}

	return &InitiationResult{
		Reference: reference,
		Status:    mapPawaPayStatus(resp.Status),
		Channel:   req.Operator,
		Message:   resp.Message,
	}, nil
}

// QueryStatus fetches the current deposit state.
func (a *PawaPayAdapter) QueryStatus(ctx context.Context, reference string) (enums.GatewayStatus, string, error) {
	if strings.TrimSpace(reference) == "" {
		return "", "", pkgerrors.New(pkgerrors.CodeValidation, "payment reference is required")
	}

	var entries []pawapayDepositResponse
	if err := a.do(ctx, http.MethodGet, "/deposits/"+reference, nil, &entries); err != nil {
		return "", "", err
	}
	if len(entries) == 0 {
		return "", "", pkgerrors.New(pkgerrors.CodeNotFound, "deposit not found")
	}

	entry := entries[0]
	return mapPawaPayStatus(entry.Status), entry.Message, nil
}

func (a *PawaPayAdapter) do(ctx context.Context, method, path string, payload any, dest any) error {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode pawapay request")
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.cfg.BaseURL+path, body)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build pawapay request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.cfg.APIToken)

	resp, err := a.http.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeGateway, err, "pawapay unreachable")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeGateway, err, "read pawapay response")
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return pkgerrors.New(pkgerrors.CodeGateway, "pawapay returned an error").
			WithDetails(map[string]any{"status": resp.StatusCode, "body": string(raw)})
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeGateway, err, "decode pawapay response")
	}
	return nil
}

func mapPawaPayStatus(status string) enums.GatewayStatus {
	switch strings.ToUpper(status) {
	case "COMPLETED":
		return enums.GatewayStatusSuccess
	case "FAILED", "REJECTED":
		return enums.GatewayStatusFailed
	default:
		// ACCEPTED, SUBMITTED, ENQUEUED and anything unknown stay pending.
		return enums.GatewayStatusPending
	}
}
