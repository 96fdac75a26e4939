package handlers

import (
	"context"
	"errors"

	apperrors "kudi/internal/errors"
	"kudi/internal/models"
	"kudi/internal/services/kyc"
	"kudi/internal/services/settlement"
	"kudi/internal/services/transaction"
	"kudi/internal/utils"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Signature headers per provider.
const (
	HeaderBillPaySignature   = "X-Signature"
	HeaderCustodianSignature = "X-Custodian-Signature"
	HeaderStripeSignature    = "Stripe-Signature"
)

// Reconciler applies verified settlement notifications.
type Reconciler interface {
	HandleNotification(ctx context.Context, n *settlement.Notification) (*transaction.WebhookResult, error)
}

// IdentityParser verifies and decodes a KYC vendor webhook. A nil result
// with no error means the event is not one we act on.
type IdentityParser interface {
	Parse(payload []byte, signature string) (*kyc.VerificationResult, error)
}

// VerificationApplier records a vendor decision on a profile.
type VerificationApplier interface {
	ApplyResult(ctx context.Context, r kyc.VerificationResult) (*models.KYCProfile, kyc.Outcome, error)
}

type WebhookHandler struct {
	parsers    map[string]settlement.WebhookParser
	reconciler Reconciler
	identity   IdentityParser
	verifier   VerificationApplier
	logger     *zap.Logger
}

func NewWebhookHandler(reconciler Reconciler, identity IdentityParser, verifier VerificationApplier, logger *zap.Logger, parsers ...settlement.WebhookParser) *WebhookHandler {
	h := &WebhookHandler{
		parsers:    make(map[string]settlement.WebhookParser, len(parsers)),
		reconciler: reconciler,
		identity:   identity,
		verifier:   verifier,
		logger:     orNop(logger),
	}
	for _, p := range parsers {
		h.parsers[p.Name()] = p
	}
	return h
}

// Settlement returns the handler for one provider's settlement webhooks.
// Once the signature checks out the provider always gets a 200, whether the
// notification was applied, repeated or unknown, so it stops retrying.
func (h *WebhookHandler) Settlement(provider, signatureHeader string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		parser, ok := h.parsers[provider]
		if !ok {
			return utils.Error(c, h.logger, apperrors.ErrNotFound.WithMessage("unknown provider %q", provider))
		}
		log := h.logger.With(zap.String("provider", provider))

		n, err := parser.ParseWebhook(c.Body(), c.Get(signatureHeader))
		if err != nil {
			return h.rejected(c, log, err)
		}

		result, err := h.reconciler.HandleNotification(c.UserContext(), n)
		if err != nil {
			// storage trouble: a non-200 makes the provider redeliver
			return utils.Error(c, log, err)
		}
		log.Info("webhook handled",
			zap.String("transaction_id", result.TransactionID),
			zap.String("action", string(result.Action)))
		return utils.Success(c, fiber.Map{"received": true, "result": result})
	}
}

// StripeIdentity handles verification session events from Stripe Identity.
func (h *WebhookHandler) StripeIdentity(c *fiber.Ctx) error {
	log := h.logger.With(zap.String("provider", kyc.ProviderStripeIdentity))

	r, err := h.identity.Parse(c.Body(), c.Get(HeaderStripeSignature))
	if err != nil {
		return h.rejected(c, log, err)
	}
	if r == nil {
		return utils.Success(c, fiber.Map{"received": true, "ignored": true})
	}

	profile, outcome, err := h.verifier.ApplyResult(c.UserContext(), *r)
	if err != nil {
		if errors.Is(err, apperrors.ErrValidation) {
			return utils.Error(c, log, apperrors.ErrMalformedPayload.WithMessage("%s", err.Error()))
		}
		return utils.Error(c, log, err)
	}
	log.Info("verification applied",
		zap.Uint("user_id", r.UserID),
		zap.String("outcome", string(outcome)),
		zap.Int("level", profile.Level))
	return utils.Success(c, fiber.Map{"received": true, "outcome": outcome})
}

func (h *WebhookHandler) rejected(c *fiber.Ctx, log *zap.Logger, err error) error {
	switch {
	case errors.Is(err, apperrors.ErrInvalidSignature):
		log.Warn("webhook signature rejected", zap.String("ip", c.IP()), zap.Error(err))
	case errors.Is(err, apperrors.ErrMalformedPayload):
		log.Warn("malformed webhook payload", zap.Error(err))
	default:
		err = apperrors.ErrMalformedPayload.Wrap(err)
	}
	return utils.Error(c, log, err)
}
