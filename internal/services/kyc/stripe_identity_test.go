package kyc_test

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"testing"
	"time"

	apperrors "kudi/internal/errors"
	"kudi/internal/services/kyc"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const stripeSecret = "whsec_test"

func farFuture() time.Time { return time.Now().Add(time.Hour).UTC() }

func stripeSignature(secret string, payload []byte) string {
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(fmt.Sprintf("%d.%s", ts, payload)))
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func sessionEvent(eventType, status, metadata string) []byte {
	return []byte(fmt.Sprintf(`{"id":"evt_1","object":"event","type":%q,"data":{"object":{"id":"vs_1","object":"identity.verification_session","status":%q,"metadata":%s}}}`,
		eventType, status, metadata))
}

func TestStripeIdentity_Verified(t *testing.T) {
	s := kyc.NewStripeIdentity(stripeSecret)
	payload := sessionEvent("identity.verification_session.verified", "verified", `{"user_id":"42","target_level":"3"}`)

	r, err := s.Parse(payload, stripeSignature(stripeSecret, payload))
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.Equal(t, uint(42), r.UserID)
	assert.Equal(t, "verified", r.Code)
	assert.Equal(t, "vs_1", r.Reference)
	assert.Equal(t, 3, r.TargetLevel)
	assert.Equal(t, kyc.ProviderStripeIdentity, r.Provider)
}

func TestStripeIdentity_DefaultTargetLevel(t *testing.T) {
	s := kyc.NewStripeIdentity(stripeSecret)
	payload := sessionEvent("identity.verification_session.processing", "processing", `{"user_id":"42"}`)

	r, err := s.Parse(payload, stripeSignature(stripeSecret, payload))
	require.NoError(t, err)
	assert.Equal(t, kyc.DefaultStripeTargetLevel, r.TargetLevel)
}

func TestStripeIdentity_BadSignature(t *testing.T) {
	s := kyc.NewStripeIdentity(stripeSecret)
	payload := sessionEvent("identity.verification_session.verified", "verified", `{"user_id":"42"}`)

	_, err := s.Parse(payload, stripeSignature("whsec_other", payload))
	assert.True(t, errors.Is(err, apperrors.ErrInvalidSignature))

	_, err = kyc.NewStripeIdentity("").Parse(payload, stripeSignature("", payload))
	assert.True(t, errors.Is(err, apperrors.ErrInvalidSignature))
}

func TestStripeIdentity_MissingUser(t *testing.T) {
	s := kyc.NewStripeIdentity(stripeSecret)
	payload := sessionEvent("identity.verification_session.verified", "verified", `{}`)

	_, err := s.Parse(payload, stripeSignature(stripeSecret, payload))
	assert.True(t, errors.Is(err, apperrors.ErrMalformedPayload))
}

func TestStripeIdentity_IgnoresOtherEvents(t *testing.T) {
	s := kyc.NewStripeIdentity(stripeSecret)
	payload := []byte(`{"id":"evt_2","object":"event","type":"charge.succeeded","data":{"object":{}}}`)

	r, err := s.Parse(payload, stripeSignature(stripeSecret, payload))
	assert.NoError(t, err)
	assert.Nil(t, r)
}
