package utils

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	apperrors "kudi/internal/errors"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func respond(t *testing.T, logger *zap.Logger, err error) (int, ErrorBody) {
	t.Helper()
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error { return Error(c, logger, err) })

	resp, testErr := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, testErr)
	raw, readErr := io.ReadAll(resp.Body)
	require.NoError(t, readErr)

	var body ErrorBody
	require.NoError(t, json.Unmarshal(raw, &body))
	return resp.StatusCode, body
}

func TestError_ClientErrorsCarryDetails(t *testing.T) {
	status, body := respond(t, nil, apperrors.ErrInsufficientBalance.WithDetails(map[string]interface{}{
		"available": "10",
	}))
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, "INSUFFICIENT_BALANCE", body.Code)
	assert.Equal(t, "10", body.Details["available"])
}

func TestError_ServerErrorsAreLoggedNotShown(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	logger := zap.New(core)

	status, body := respond(t, logger, errors.New("dial tcp 10.0.0.3:5432: connection refused"))
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "internal server error", body.Error)
	assert.Nil(t, body.Details)

	status, body = respond(t, logger, apperrors.ErrExternalProvider.
		WithMessage("billpay did not respond: insufficient float on merchant account").
		WithDetails(map[string]interface{}{"transaction_id": "tx-1"}))
	assert.Equal(t, http.StatusBadGateway, status)
	assert.Equal(t, "PROVIDER_ERROR", body.Code)
	assert.Equal(t, "payment provider error", body.Error)
	assert.Nil(t, body.Details)

	require.Equal(t, 2, logs.Len())
	assert.Contains(t, logs.All()[0].ContextMap()["error"], "connection refused")
	assert.Equal(t, map[string]interface{}{"transaction_id": "tx-1"}, logs.All()[1].ContextMap()["details"])
}

func TestError_UnknownServerCodeIsGeneric(t *testing.T) {
	custom := &apperrors.DomainError{Code: "LEDGER_DOWN", Message: "shard 3 unreachable", Status: http.StatusServiceUnavailable}

	status, body := respond(t, nil, custom)
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, "INTERNAL_ERROR", body.Code)
	assert.Equal(t, "internal server error", body.Error)
}
