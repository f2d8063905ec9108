// Package errors provides a structured application error type shared across
// the incident-response core. Every component returns *AppError for
// conditions callers are expected to branch on; ad-hoc fmt.Errorf is reserved
// for truly internal, non-actionable failures.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorType classifies an AppError for HTTP-status mapping and caller
// dispatch. New kinds are appended, never renumbered.
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeAuth       ErrorType = "auth"
	ErrorTypeNotFound   ErrorType = "not_found"
	ErrorTypeConflict   ErrorType = "conflict"
	ErrorTypeTimeout    ErrorType = "timeout"
	ErrorTypeRateLimit  ErrorType = "rate_limit"
	ErrorTypeDatabase   ErrorType = "database"
	ErrorTypeNetwork    ErrorType = "network"
	ErrorTypeInternal   ErrorType = "internal"

	// Domain-specific kinds beyond the teacher's generic set.
	ErrorTypeIntegrity    ErrorType = "integrity"     // hash-chain / signature tamper
	ErrorTypeQuorum       ErrorType = "quorum"        // consensus could not reach 2f+1
	ErrorTypeBudget       ErrorType = "budget"        // cost envelope denied a reservation
	ErrorTypeQuarantined  ErrorType = "quarantined"   // caller identity is quarantined/revoked
	ErrorTypeBackpressure ErrorType = "backpressure"  // sink/queue cannot keep up
)

var statusByType = map[ErrorType]int{
	ErrorTypeValidation:   http.StatusBadRequest,
	ErrorTypeAuth:         http.StatusUnauthorized,
	ErrorTypeNotFound:     http.StatusNotFound,
	ErrorTypeConflict:     http.StatusConflict,
	ErrorTypeTimeout:      http.StatusRequestTimeout,
	ErrorTypeRateLimit:    http.StatusTooManyRequests,
	ErrorTypeDatabase:     http.StatusInternalServerError,
	ErrorTypeNetwork:      http.StatusInternalServerError,
	ErrorTypeInternal:     http.StatusInternalServerError,
	ErrorTypeIntegrity:    http.StatusInternalServerError,
	ErrorTypeQuorum:       http.StatusServiceUnavailable,
	ErrorTypeBudget:       http.StatusTooManyRequests,
	ErrorTypeQuarantined:  http.StatusForbidden,
	ErrorTypeBackpressure: http.StatusServiceUnavailable,
}

// AppError is a tagged error carrying enough context for both human
// diagnostics and programmatic dispatch (error type, status code).
type AppError struct {
	Type       ErrorType
	Message    string
	Details    string
	StatusCode int
	Cause      error
}

func New(t ErrorType, message string) *AppError {
	return &AppError{
		Type:       t,
		Message:    message,
		StatusCode: statusByType[t],
	}
}

func Newf(t ErrorType, format string, args ...interface{}) *AppError {
	return New(t, fmt.Sprintf(format, args...))
}

func Wrap(cause error, t ErrorType, message string) *AppError {
	e := New(t, message)
	e.Cause = cause
	return e
}

func Wrapf(cause error, t ErrorType, format string, args ...interface{}) *AppError {
	return Wrap(cause, t, fmt.Sprintf(format, args...))
}

func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Type, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *AppError) Unwrap() error { return e.Cause }

func (e *AppError) WithDetails(details string) *AppError {
	e.Details = details
	return e
}

func (e *AppError) WithDetailsf(format string, args ...interface{}) *AppError {
	return e.WithDetails(fmt.Sprintf(format, args...))
}

// Is reports whether err is an *AppError of the given type, unwrapping as
// needed.
func Is(err error, t ErrorType) bool {
	var ae *AppError
	if !stderrors.As(err, &ae) {
		return false
	}
	return ae.Type == t
}

func NewValidationError(message string) *AppError { return New(ErrorTypeValidation, message) }

func NewDatabaseError(operation string, cause error) *AppError {
	return Wrapf(cause, ErrorTypeDatabase, "database operation failed: %s", operation)
}

func NewNotFoundError(resource string) *AppError {
	return Newf(ErrorTypeNotFound, "%s not found", resource)
}

func NewConflictError(resource string, expected, actual uint64) *AppError {
	return Newf(ErrorTypeConflict, "%s version conflict: expected %d, found %d", resource, expected, actual).
		WithDetailsf("expected=%d actual=%d", expected, actual)
}

func NewIntegrityError(incidentID string) *AppError {
	return Newf(ErrorTypeIntegrity, "chain hash mismatch for incident %s", incidentID)
}

func NewQuorumError(incidentID string, round uint64) *AppError {
	return Newf(ErrorTypeQuorum, "insufficient quorum for incident %s round %d", incidentID, round)
}

func NewBudgetError(window string, cost, remaining float64) *AppError {
	return Newf(ErrorTypeBudget, "budget denied for window %s", window).
		WithDetailsf("cost=%.4f remaining=%.4f", cost, remaining)
}
