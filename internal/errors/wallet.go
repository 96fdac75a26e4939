package errors

import "net/http"

var (
	ErrValidation = &DomainError{
		Code:    "VALIDATION_ERROR",
		Message: "invalid request",
		Status:  http.StatusBadRequest,
	}
	ErrInsufficientBalance = &DomainError{
		Code:    "INSUFFICIENT_BALANCE",
		Message: "insufficient wallet balance",
		Status:  http.StatusUnprocessableEntity,
	}
	ErrLimitExceeded = &DomainError{
		Code:    "LIMIT_EXCEEDED",
		Message: "transaction limit exceeded",
		Status:  http.StatusForbidden,
	}
	ErrUnsupportedCurrency = &DomainError{
		Code:    "UNSUPPORTED_CURRENCY",
		Message: "unsupported currency",
		Status:  http.StatusBadRequest,
	}
	ErrPriceUnavailable = &DomainError{
		Code:      "PRICE_UNAVAILABLE",
		Message:   "price data temporarily unavailable",
		Status:    http.StatusServiceUnavailable,
		Retryable: true,
	}
	ErrDuplicateOrStalePending = &DomainError{
		Code:    "DUPLICATE_TRANSACTION",
		Message: "a matching transaction is already in progress",
		Status:  http.StatusConflict,
	}
	ErrExternalProvider = &DomainError{
		Code:      "PROVIDER_ERROR",
		Message:   "payment provider error",
		Status:    http.StatusBadGateway,
		Retryable: true,
	}
	ErrReconciliationRequired = &DomainError{
		Code:    "RECONCILIATION_REQUIRED",
		Message: "transaction requires manual review, contact support",
		Status:  http.StatusInternalServerError,
	}
	ErrNotFound = &DomainError{
		Code:    "NOT_FOUND",
		Message: "resource not found",
		Status:  http.StatusNotFound,
	}
	ErrUnauthorized = &DomainError{
		Code:    "UNAUTHORIZED",
		Message: "unauthorized",
		Status:  http.StatusUnauthorized,
	}
	ErrInvalidPIN = &DomainError{
		Code:    "INVALID_PIN",
		Message: "invalid transaction pin",
		Status:  http.StatusUnauthorized,
	}
	ErrInvalidSignature = &DomainError{
		Code:    "INVALID_SIGNATURE",
		Message: "invalid webhook signature",
		Status:  http.StatusUnauthorized,
	}
	ErrMalformedPayload = &DomainError{
		Code:    "MALFORMED_PAYLOAD",
		Message: "malformed payload",
		Status:  http.StatusBadRequest,
	}
)

var sentinels = map[string]*DomainError{}

func init() {
	for _, e := range []*DomainError{
		ErrValidation, ErrInsufficientBalance, ErrLimitExceeded, ErrUnsupportedCurrency,
		ErrPriceUnavailable, ErrDuplicateOrStalePending, ErrExternalProvider,
		ErrReconciliationRequired, ErrNotFound, ErrUnauthorized, ErrInvalidPIN,
		ErrInvalidSignature, ErrMalformedPayload,
	} {
		sentinels[e.Code] = e
	}
}

// DefaultMessage returns the class message for code, or "" when the code is
// not part of the taxonomy.
func DefaultMessage(code string) string {
	if e, ok := sentinels[code]; ok {
		return e.Message
	}
	return ""
}
