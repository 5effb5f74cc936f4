// Package domainerrors carries coded errors across layer boundaries. Stores
// return sentinel errors (pkg/platform/sentinel); services translate them into
// coded errors here; the HTTP layer maps codes to statuses.
package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies the class of failure for transport mapping and client logic.
type Code string

const (
	CodeBadRequest   Code = "bad_request"
	CodeInvalidInput Code = "invalid_input"
	CodeValidation   Code = "validation_failed"
	CodeUnauthorized Code = "unauthorized"
	CodeForbidden    Code = "forbidden"
	CodeNotFound     Code = "not_found"
	CodeConflict     Code = "conflict"
	CodeEligibility  Code = "eligibility_blocked"
	CodeInternal     Code = "internal_error"
)

// Severity tags eligibility blocks so clients can differentiate a soft
// "warning" (cooldown, volume) from a "critical" block (suspension, pass
// block, trust floor).
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Error is the coded error type. Severity is only meaningful for
// CodeEligibility and is empty otherwise.
type Error struct {
	Code     Code
	Message  string
	Severity Severity
	cause    error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New builds a coded error with no underlying cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, cause: err}
}

// NewEligibility builds an eligibility block carrying a severity tag.
func NewEligibility(severity Severity, message string) *Error {
	return &Error{Code: CodeEligibility, Message: message, Severity: severity}
}

// HasCode reports whether err (or anything it wraps) carries the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// As extracts the coded error from err's chain, if present.
func As(err error) (*Error, bool) {
	var de *Error
	ok := errors.As(err, &de)
	return de, ok
}

// ToHTTPStatus maps codes onto HTTP statuses. Lifecycle and policy violations
// are all synchronous 4xx; only infrastructure failures become 5xx.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeBadRequest, CodeInvalidInput, CodeValidation:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodeEligibility:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
