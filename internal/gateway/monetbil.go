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

	"github.com/mbouombouo/studiostay-backend/pkg/config"
	"github.com/mbouombouo/studiostay-backend/pkg/enums"
	pkgerrors "github.com/mbouombouo/studiostay-backend/pkg/errors"
	"github.com/mbouombouo/studiostay-backend/pkg/logger"
)

const monetbilRequestTimeout = 15 * time.Second

// MonetbilAdapter drives Monetbil mobile-money push payments. The provider
// responds with a paymentId and a pending status; confirmation arrives via
// webhook or polling.
type MonetbilAdapter struct {
	cfg    config.MonetbilConfig
	http   *http.Client
	logger *logger.Logger
}

type monetbilPlaceRequest struct {
	ServiceKey string `json:"service"`
	Amount     string `json:"amount"`
	Phone      string `json:"phonenumber"`
	Operator   string `json:"operator,omitempty"`
	NotifyURL  string `json:"notify_url,omitempty"`
	ItemRef    string `json:"item_ref,omitempty"`
}

type monetbilPlaceResponse struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	PaymentID string `json:"paymentId"`
	Channel   string `json:"channel_name"`
}

type monetbilCheckResponse struct {
	Transaction struct {
		Status  int    `json:"status"`
		Message string `json:"message"`
	} `json:"transaction"`
}

// NewMonetbilAdapter validates the credentials and builds the adapter.
func NewMonetbilAdapter(cfg config.MonetbilConfig, logg *logger.Logger) (*MonetbilAdapter, error) {
	if strings.TrimSpace(cfg.ServiceKey) == "" {
		return nil, fmt.Errorf("monetbil service key is required")
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("monetbil base url is required")
	}
	return &MonetbilAdapter{
		cfg:    cfg,
		http:   &http.Client{Timeout: monetbilRequestTimeout},
		logger: logg,
	}, nil
}

// Method implements Adapter.
func (a *MonetbilAdapter) Method() enums.PaymentMethod {
	return enums.PaymentMethodMonetbil
}

// Initiate places a payment push against the subscriber's phone.
func (a *MonetbilAdapter) Initiate(ctx context.Context, req InitiateRequest) (*InitiationResult, error) {
	if strings.TrimSpace(req.Phone) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payer phone number is required")
	}

	payload := monetbilPlaceRequest{
		ServiceKey: a.cfg.ServiceKey,
		Amount:     strconv.Itoa(req.AmountCents),
		Phone:      req.Phone,
		Operator:   req.Operator,
		NotifyURL:  a.cfg.NotifyURL,
		ItemRef:    req.Description,
	}

	var resp monetbilPlaceResponse
	if err := a.post(ctx, "/placePayment", payload, &resp); err != nil {
		return nil, err
	}
	if resp.PaymentID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeGateway, "monetbil returned no payment id").
			WithDetails(map[string]string{"message": resp.Message})
	}

	status := mapMonetbilPlaceStatus(resp.Status)
	return &InitiationResult{
		Reference: resp.PaymentID,
		Status:    status,
		Channel:   resp.Channel,
		Message:   resp.Message,
	}, nil
}

// QueryStatus asks Monetbil for the current state of a placed payment.
func (a *MonetbilAdapter) QueryStatus(ctx context.Context, reference string) (enums.GatewayStatus, string, error) {
	if strings.TrimSpace(reference) == "" {
		return "", "", pkgerrors.New(pkgerrors.CodeValidation, "payment reference is required")
	}

	payload := map[string]string{
		"paymentId": reference,
		"service":   a.cfg.ServiceKey,
	}

	var resp monetbilCheckResponse
	if err := a.post(ctx, "/checkPayment", payload, &resp); err != nil {
		return "", "", err
	}

	return mapMonetbilCheckStatus(resp.Transaction.Status), resp.Transaction.Message, nil
}

func (a *MonetbilAdapter) post(ctx context.Context, path string, payload any, dest any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode monetbil request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build monetbil request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.http.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeGateway, err, "monetbil unreachable")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeGateway, err, "read monetbil response")
	}
	if resp.StatusCode != http.StatusOK {
		return pkgerrors.New(pkgerrors.CodeGateway, "monetbil returned an error").
			WithDetails(map[string]any{"status": resp.StatusCode, "body": string(raw)})
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeGateway, err, "decode monetbil response")
	}
	return nil
}

func mapMonetbilPlaceStatus(status string) enums.GatewayStatus {
	switch strings.ToUpper(status) {
	case "SUCCESS", "SUCCESSFULL", "SUCCESSFUL":
		return enums.GatewayStatusSuccess
	case "FAILED", "CANCELLED":
		return enums.GatewayStatusFailed
	default:
		return enums.GatewayStatusPending
	}
}

// Monetbil reports numeric transaction statuses on the check endpoint:
// 1 success, 0 failed, -1 cancelled; anything else is in flight.
func mapMonetbilCheckStatus(status int) enums.GatewayStatus {
	switch status {
	case 1:
		return enums.GatewayStatusSuccess
	case 0, -1:
		return enums.GatewayStatusFailed
	default:
		return enums.GatewayStatusPending
	}
}
