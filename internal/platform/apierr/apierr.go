package apierr

import (
	"errors"
	"fmt"
	"net/http"

	domainagg "github.com/yungbote/enrollment-backend/internal/domain/aggregates"
)

type Error struct {
	Status int
	Code   string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	if e.Code != "" {
		return e.Code
	}
	if e.Status != 0 {
		return fmt.Sprintf("api error (%d)", e.Status)
	}
	return "api error"
}

func (e *Error) Unwrap() error { return e.Err }

func New(status int, code string, err error) *Error {
	return &Error{Status: status, Code: code, Err: err}
}

// FromAggregate maps aggregate error codes to HTTP status + API code.
// Provider failures are client-class: nothing was persisted, so the caller
// may simply retry.
func FromAggregate(err error) *Error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	switch domainagg.CodeOf(err) {
	case domainagg.CodeValidation:
		return New(http.StatusBadRequest, "invalid_request", err)
	case domainagg.CodePaymentProvider:
		return New(http.StatusBadRequest, "payment_provider_error", err)
	case domainagg.CodeNotFound:
		return New(http.StatusNotFound, "not_found", err)
	case domainagg.CodeConflict:
		return New(http.StatusConflict, "conflict", err)
	case domainagg.CodePreconditionFailed:
		return New(http.StatusConflict, "precondition_failed", err)
	case domainagg.CodeResourceExhausted:
		return New(http.StatusServiceUnavailable, "resource_exhausted", err)
	case domainagg.CodeRetryable:
		return New(http.StatusServiceUnavailable, "retryable", err)
	default:
		return New(http.StatusInternalServerError, "transaction_failed", err)
	}
}
