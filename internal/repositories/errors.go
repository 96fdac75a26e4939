package repositories

import "errors"

var (
	ErrNotFound = errors.New("record not found")
	// ErrConditionFailed means a guarded UPDATE matched no row: the balance
	// guard or the expected status did not hold.
	ErrConditionFailed  = errors.New("conditional update matched no rows")
	ErrDuplicateRequest = errors.New("duplicate request id")
)
