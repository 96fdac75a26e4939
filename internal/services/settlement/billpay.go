package settlement

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"net/http"

	apperrors "kudi/internal/errors"
	"kudi/internal/models"

	"go.uber.org/zap"
)

const BillPayName = "billpay"

// billPayStatuses is the aggregator's delivery vocabulary.
var billPayStatuses = StatusTable{
	"delivered":  OutcomeCompleted,
	"successful": OutcomeCompleted,
	"success":    OutcomeCompleted,
	"reversed":   OutcomeRefunded,
	"refunded":   OutcomeRefunded,
	"failed":     OutcomeFailed,
	"declined":   OutcomeFailed,
	"initiated":  OutcomeOther,
	"pending":    OutcomeOther,
	"processing": OutcomeOther,
}

// BillPayConfig configures the airtime, data and utility aggregator.
type BillPayConfig struct {
	BaseURL string
	APIKey  string
	// Secret keys the webhook signature.
	Secret string
}

// BillPay settles airtime, data and utility purchases. The aggregator
// answers asynchronously, so funds are reserved until its webhook arrives.
type BillPay struct {
	http   *httpClient
	secret string
	logger *zap.Logger
}

func NewBillPay(cfg BillPayConfig, client *http.Client, logger *zap.Logger) *BillPay {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BillPay{
		http:   newHTTPClient(cfg.BaseURL, client, logger, map[string]string{"X-API-Key": cfg.APIKey}),
		secret: cfg.Secret,
		logger: logger.With(zap.String("provider", BillPayName)),
	}
}

func (b *BillPay) Name() string                { return BillPayName }
func (b *BillPay) Mode() models.SettlementMode { return models.ModeReserve }

type billPayOrder struct {
	RequestID   string `json:"request_id"`
	ServiceID   string `json:"service_id"`
	BillersCode string `json:"billers_code"`
	Variation   string `json:"variation_code,omitempty"`
	Amount      string `json:"amount"`
}

type billPayResponse struct {
	Status        string `json:"status"`
	RequestID     string `json:"request_id"`
	OrderID       string `json:"order_id"`
	TransactionID string `json:"transaction_id"`
	Message       string `json:"message"`
}

func (r billPayResponse) result() *Result {
	return &Result{
		Outcome:      billPayStatuses.Classify(r.Status),
		Status:       r.Status,
		ProviderRef:  r.OrderID,
		ProviderTxID: r.TransactionID,
		Message:      r.Message,
	}
}

func serviceID(req Request) string {
	if s := req.Metadata["service_id"]; s != "" {
		return s
	}
	switch req.Type {
	case models.TransactionTypeAirtime:
		return "airtime"
	case models.TransactionTypeData:
		return "data"
	default:
		return "electricity"
	}
}

func (b *BillPay) Submit(ctx context.Context, req Request) (*Result, error) {
	order := billPayOrder{
		RequestID:   req.RequestID,
		ServiceID:   serviceID(req),
		BillersCode: req.Destination,
		Variation:   req.Metadata["variation_code"],
		Amount:      req.Amount.StringFixed(2),
	}
	var resp billPayResponse
	if err := b.http.do(ctx, BillPayName, http.MethodPost, "/v1/pay", order, &resp); err != nil {
		return nil, err
	}
	b.logger.Info("order submitted",
		zap.String("request_id", req.RequestID),
		zap.String("order_id", resp.OrderID),
		zap.String("status", resp.Status))
	return resp.result(), nil
}

func (b *BillPay) QueryStatus(ctx context.Context, ref Ref) (*Result, error) {
	var resp billPayResponse
	if err := b.http.do(ctx, BillPayName, http.MethodPost, "/v1/requery", map[string]string{"request_id": ref.RequestID}, &resp); err != nil {
		return nil, err
	}
	return resp.result(), nil
}

type billPayWebhook struct {
	Type string          `json:"type"`
	Data billPayResponse `json:"data"`
}

// ParseWebhook checks an HMAC-SHA256 over the compact form of the JSON body,
// since the aggregator signs its own serialisation rather than the bytes on
// the wire.
func (b *BillPay) ParseWebhook(body []byte, signature string) (*Notification, error) {
	var compact bytes.Buffer
	if err := json.Compact(&compact, body); err != nil {
		return nil, apperrors.ErrMalformedPayload.Wrap(err)
	}
	if !verifyHexMAC(sha256.New, b.secret, compact.Bytes(), signature) {
		return nil, apperrors.ErrInvalidSignature
	}

	var hook billPayWebhook
	if err := json.Unmarshal(body, &hook); err != nil {
		return nil, apperrors.ErrMalformedPayload.Wrap(err)
	}
	d := hook.Data
	if d.RequestID == "" && d.OrderID == "" && d.TransactionID == "" {
		return nil, apperrors.ErrMalformedPayload.WithMessage("webhook carries no order reference")
	}
	return &Notification{
		Provider:     BillPayName,
		RequestID:    d.RequestID,
		OrderID:      d.OrderID,
		ProviderTxID: d.TransactionID,
		Status:       d.Status,
		Outcome:      billPayStatuses.Classify(d.Status),
	}, nil
}

// SignBillPay produces the signature the aggregator would send for body.
func SignBillPay(secret string, body []byte) (string, error) {
	var compact bytes.Buffer
	if err := json.Compact(&compact, body); err != nil {
		return "", err
	}
	return signHex(sha256.New, secret, compact.Bytes()), nil
}
