package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDomainError_IsMatchesCopies(t *testing.T) {
	err := ErrLimitExceeded.WithDetails(map[string]interface{}{"period": "daily"})
	wrapped := fmt.Errorf("validate: %w", err)

	assert.True(t, stderrors.Is(wrapped, ErrLimitExceeded))
	assert.False(t, stderrors.Is(wrapped, ErrInsufficientBalance))

	de, ok := As(wrapped)
	require.True(t, ok)
	assert.Equal(t, "daily", de.Details["period"])
	assert.Nil(t, ErrLimitExceeded.Details, "sentinel must not be mutated")
}

func TestDomainError_Wrap(t *testing.T) {
	cause := stderrors.New("connection reset")
	err := ErrExternalProvider.Wrap(cause)

	assert.True(t, stderrors.Is(err, cause))
	assert.True(t, stderrors.Is(err, ErrExternalProvider))
	assert.Contains(t, err.Error(), "connection reset")
	assert.True(t, IsRetryable(err))
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{ErrValidation, http.StatusBadRequest},
		{ErrInsufficientBalance, http.StatusUnprocessableEntity},
		{ErrLimitExceeded, http.StatusForbidden},
		{ErrUnsupportedCurrency, http.StatusBadRequest},
		{ErrPriceUnavailable, http.StatusServiceUnavailable},
		{ErrDuplicateOrStalePending, http.StatusConflict},
		{ErrExternalProvider, http.StatusBadGateway},
		{ErrReconciliationRequired, http.StatusInternalServerError},
		{stderrors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, HTTPStatus(tt.err), "%v", tt.err)
	}
}

func TestWithMessage(t *testing.T) {
	err := ErrValidation.WithMessage("amount must be positive, got %s", "-1")
	assert.Equal(t, "amount must be positive, got -1", err.Error())
	assert.True(t, err.ClientError())
	assert.Equal(t, "invalid request", ErrValidation.Message)
}

func TestDefaultMessage(t *testing.T) {
	specific := ErrExternalProvider.WithMessage("billpay did not respond")
	assert.Equal(t, "payment provider error", DefaultMessage(specific.Code))
	assert.Equal(t, ErrPriceUnavailable.Message, DefaultMessage("PRICE_UNAVAILABLE"))
	assert.Empty(t, DefaultMessage("SOMETHING_ELSE"))
}
