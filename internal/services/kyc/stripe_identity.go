package kyc

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	apperrors "kudi/internal/errors"

	"github.com/stripe/stripe-go/v72"
	"github.com/stripe/stripe-go/v72/webhook"
)

const stripeEventPrefix = "identity.verification_session."

// DefaultStripeTargetLevel is granted when a session carries no target_level
// metadata. A document plus selfie check satisfies level 2.
const DefaultStripeTargetLevel = 2

// StripeIdentity turns signed Stripe Identity webhooks into results.
type StripeIdentity struct {
	secret string
}

func NewStripeIdentity(secret string) *StripeIdentity {
	return &StripeIdentity{secret: secret}
}

type verificationSession struct {
	ID        string            `json:"id"`
	Status    string            `json:"status"`
	Metadata  map[string]string `json:"metadata"`
	LastError *struct {
		Code   string `json:"code"`
		Reason string `json:"reason"`
	} `json:"last_error"`
}

// Parse verifies the Stripe-Signature header and decodes the event. Events
// that are not verification session updates return (nil, nil).
func (s *StripeIdentity) Parse(payload []byte, signature string) (*VerificationResult, error) {
	if s.secret == "" {
		return nil, apperrors.ErrInvalidSignature.WithMessage("webhook secret not configured")
	}
	if err := webhook.ValidatePayload(payload, signature, s.secret); err != nil {
		return nil, apperrors.ErrInvalidSignature.Wrap(err)
	}

	var event stripe.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, apperrors.ErrMalformedPayload.Wrap(err)
	}
	if !strings.HasPrefix(event.Type, stripeEventPrefix) {
		return nil, nil
	}
	if event.Data == nil || len(event.Data.Raw) == 0 {
		return nil, apperrors.ErrMalformedPayload.WithMessage("event has no data object")
	}

	var session verificationSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return nil, apperrors.ErrMalformedPayload.Wrap(err)
	}

	userID, err := strconv.ParseUint(session.Metadata["user_id"], 10, 64)
	if err != nil || userID == 0 {
		return nil, apperrors.ErrMalformedPayload.WithMessage("session %s has no user_id metadata", session.ID)
	}
	target := DefaultStripeTargetLevel
	if raw, ok := session.Metadata["target_level"]; ok {
		if target, err = strconv.Atoi(raw); err != nil {
			return nil, apperrors.ErrMalformedPayload.WithMessage("invalid target_level %q", raw)
		}
	}

	code := session.Status
	if code == "" {
		code = strings.TrimPrefix(event.Type, stripeEventPrefix)
	}
	r := &VerificationResult{
		UserID:      uint(userID),
		Provider:    ProviderStripeIdentity,
		Code:        code,
		Reference:   session.ID,
		TargetLevel: target,
	}
	if session.LastError != nil {
		r.Reason = fmt.Sprintf("%s: %s", session.LastError.Code, session.LastError.Reason)
	}
	return r, nil
}
