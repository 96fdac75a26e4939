package transaction

import "errors"

var (
	ErrInvalidTransition = errors.New("invalid transaction status transition")
	// ErrNoCounterparty means a transfer has no recipient to credit.
	ErrNoCounterparty = errors.New("transfer has no counterparty")
)
