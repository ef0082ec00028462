package errorutil

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Error codes surfaced in JSON error bodies.
const (
	CodeValidation   = "VALIDATION_FAILED"
	CodeCorrelation  = "CORRELATION_NOT_FOUND"
	CodeUpstream     = "UPSTREAM_FAILED"
	CodeUnauthorized = "UNAUTHORIZED"
	CodeUnavailable  = "UNAVAILABLE"
	CodeInternal     = "INTERNAL_ERROR"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
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

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

// NewValidationError reports a missing or malformed inbound field.
func NewValidationError(field, message string) error {
	var details map[string]any
	if field != "" {
		details = map[string]any{"field": field}
	}
	return NewDomainError(CodeValidation, message, http.StatusBadRequest, details)
}

// NewCorrelationError reports that no counterpart record exists in the other system.
func NewCorrelationError(message string, details map[string]any) error {
	return NewDomainError(CodeCorrelation, message, http.StatusNotFound, details)
}

// NewUpstreamError reports a failed outbound call. status is 0 for network failures.
func NewUpstreamError(system, operation string, status int, body string, err error) error {
	details := map[string]any{
		"system":    system,
		"operation": operation,
	}
	if status != 0 {
		details["status"] = status
	}
	if body != "" {
		details["body"] = body
	}
	return &DomainError{
		Code:       CodeUpstream,
		Message:    fmt.Sprintf("%s %s failed", system, operation),
		HTTPStatus: http.StatusInternalServerError,
		Details:    details,
		Err:        err,
	}
}

func NewUnauthorized(message string) error {
	return NewDomainError(CodeUnauthorized, message, http.StatusUnauthorized, nil)
}

// NewUnavailable reports an optional subsystem that is not configured.
func NewUnavailable(message string) error {
	return NewDomainError(CodeUnavailable, message, http.StatusServiceUnavailable, nil)
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// WithDetail returns a copy of err carrying an extra detail entry. Non-domain errors are wrapped as internal.
func WithDetail(err error, key string, value any) error {
	de := ToDomainError(err)
	if de == nil {
		return nil
	}
	cp := *de
	cp.Details = make(map[string]any, len(de.Details)+1)
	for k, v := range de.Details {
		cp.Details[k] = v
	}
	cp.Details[key] = value
	return &cp
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &DomainError{
			Code:       CodeUpstream,
			Message:    "deadline exceeded",
			HTTPStatus: http.StatusInternalServerError,
			Err:        err,
		}
	}
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// HasCode reports whether err is a DomainError with the given code.
func HasCode(err error, code string) bool {
	var domainErr *DomainError
	return errors.As(err, &domainErr) && domainErr.Code == code
}
