package settlement

import (
	"context"
	"crypto/sha512"
	"encoding/json"
	"net/http"
	"net/url"

	apperrors "kudi/internal/errors"
	"kudi/internal/models"

	"go.uber.org/zap"
)

const CustodianName = "custodian"

var custodianStatuses = StatusTable{
	"done":       OutcomeCompleted,
	"completed":  OutcomeCompleted,
	"confirmed":  OutcomeCompleted,
	"failed":     OutcomeFailed,
	"rejected":   OutcomeFailed,
	"canceled":   OutcomeFailed,
	"cancelled":  OutcomeFailed,
	"reversed":   OutcomeRefunded,
	"refunded":   OutcomeRefunded,
	"submitted":  OutcomeOther,
	"processing": OutcomeOther,
	"pending":    OutcomeOther,
}

type CustodianConfig struct {
	BaseURL string
	APIKey  string
	Secret  string
}

// Custodian sends on-chain and NGNZ withdrawals through the custody
// exchange. Broadcast and confirmation are reported by webhook.
type Custodian struct {
	http   *httpClient
	secret string
	logger *zap.Logger
}

func NewCustodian(cfg CustodianConfig, client *http.Client, logger *zap.Logger) *Custodian {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Custodian{
		http:   newHTTPClient(cfg.BaseURL, client, logger, map[string]string{"Authorization": "Bearer " + cfg.APIKey}),
		secret: cfg.Secret,
		logger: logger.With(zap.String("provider", CustodianName)),
	}
}

func (c *Custodian) Name() string                { return CustodianName }
func (c *Custodian) Mode() models.SettlementMode { return models.ModeReserve }

type custodianWithdrawal struct {
	ID        string `json:"id"`
	Reference string `json:"reference"`
	Currency  string `json:"currency"`
	Amount    string `json:"amount"`
	Address   string `json:"address"`
	Network   string `json:"network,omitempty"`
	Status    string `json:"status"`
	TxID      string `json:"txid"`
	Reason    string `json:"reason"`
}

type custodianEnvelope struct {
	Status  string              `json:"status"`
	Message string              `json:"message"`
	Data    custodianWithdrawal `json:"data"`
}

func (w custodianWithdrawal) result(message string) *Result {
	if w.Reason != "" {
		message = w.Reason
	}
	return &Result{
		Outcome:      custodianStatuses.Classify(w.Status),
		Status:       w.Status,
		ProviderRef:  w.ID,
		ProviderTxID: w.TxID,
		Message:      message,
	}
}

func (c *Custodian) Submit(ctx context.Context, req Request) (*Result, error) {
	body := custodianWithdrawal{
		Reference: req.RequestID,
		Currency:  string(req.Asset),
		Amount:    req.Amount.String(),
		Address:   req.Destination,
		Network:   req.Metadata["network"],
	}
	var env custodianEnvelope
	if err := c.http.do(ctx, CustodianName, http.MethodPost, "/api/v1/withdrawals", body, &env); err != nil {
		return nil, err
	}
	c.logger.Info("withdrawal submitted",
		zap.String("request_id", req.RequestID),
		zap.String("withdrawal_id", env.Data.ID),
		zap.String("status", env.Data.Status))
	return env.Data.result(env.Message), nil
}

func (c *Custodian) QueryStatus(ctx context.Context, ref Ref) (*Result, error) {
	path := "/api/v1/withdrawals/reference/" + url.PathEscape(ref.RequestID)
	if ref.ProviderRef != "" {
		path = "/api/v1/withdrawals/" + url.PathEscape(ref.ProviderRef)
	}
	var env custodianEnvelope
	if err := c.http.do(ctx, CustodianName, http.MethodGet, path, nil, &env); err != nil {
		return nil, err
	}
	return env.Data.result(env.Message), nil
}

type custodianWebhook struct {
	Event string              `json:"event"`
	Data  custodianWithdrawal `json:"data"`
}

// ParseWebhook checks a hex HMAC-SHA512 over the raw body.
func (c *Custodian) ParseWebhook(body []byte, signature string) (*Notification, error) {
	if !verifyHexMAC(sha512.New, c.secret, body, signature) {
		return nil, apperrors.ErrInvalidSignature
	}
	var hook custodianWebhook
	if err := json.Unmarshal(body, &hook); err != nil {
		return nil, apperrors.ErrMalformedPayload.Wrap(err)
	}
	d := hook.Data
	if d.Reference == "" && d.ID == "" && d.TxID == "" {
		return nil, apperrors.ErrMalformedPayload.WithMessage("webhook carries no withdrawal reference")
	}
	return &Notification{
		Provider:     CustodianName,
		RequestID:    d.Reference,
		OrderID:      d.ID,
		ProviderTxID: d.TxID,
		Status:       d.Status,
		Outcome:      custodianStatuses.Classify(d.Status),
	}, nil
}

// SignCustodian produces the signature the custodian would send for body.
func SignCustodian(secret string, body []byte) string {
	return signHex(sha512.New, secret, body)
}
