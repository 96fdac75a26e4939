// Package errors defines the domain error taxonomy shared by the services
// and the HTTP layer.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// DomainError is a classified failure. Code identifies the class and is what
// errors.Is compares on, so a copy carrying details still matches its sentinel.
type DomainError struct {
	Code      string
	Message   string
	Status    int
	Retryable bool
	Details   map[string]interface{}
	Err       error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is matches any DomainError with the same code.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

func (e *DomainError) clone() *DomainError {
	c := *e
	if e.Details != nil {
		c.Details = make(map[string]interface{}, len(e.Details))
		for k, v := range e.Details {
			c.Details[k] = v
		}
	}
	return &c
}

// WithMessage returns a copy with a more specific message.
func (e *DomainError) WithMessage(format string, args ...interface{}) *DomainError {
	c := e.clone()
	c.Message = fmt.Sprintf(format, args...)
	return c
}

// WithDetails returns a copy carrying structured details for the client.
func (e *DomainError) WithDetails(details map[string]interface{}) *DomainError {
	c := e.clone()
	if c.Details == nil {
		c.Details = make(map[string]interface{}, len(details))
	}
	for k, v := range details {
		c.Details[k] = v
	}
	return c
}

// Wrap returns a copy with err as the underlying cause.
func (e *DomainError) Wrap(err error) *DomainError {
	c := e.clone()
	c.Err = err
	return c
}

// ClientError reports whether the error is the caller's fault (4xx).
func (e *DomainError) ClientError() bool {
	return e.Status >= 400 && e.Status < 500
}

// As extracts the first DomainError in err's chain.
func As(err error) (*DomainError, bool) {
	var de *DomainError
	if stderrors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// HTTPStatus maps err to a status code. Unclassified errors are 500.
func HTTPStatus(err error) int {
	if de, ok := As(err); ok && de.Status != 0 {
		return de.Status
	}
	return http.StatusInternalServerError
}

// IsRetryable reports whether the caller may retry the same request.
func IsRetryable(err error) bool {
	de, ok := As(err)
	return ok && de.Retryable
}
