// Package apperror provides structured error handling following RFC 7807 Problem Details.
// All business errors must use AppError for consistent API responses.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes
const (
	// Infrastructure errors (5xx)
	CodeInternal         = "INTERNAL_ERROR"
	CodeStoreUnavailable = "STORE_UNAVAILABLE"

	// Validation errors (400)
	CodeValidation = "VALIDATION_ERROR"

	// Numbering rule violations (422)
	CodeMissingFiscalYear      = "MISSING_FISCAL_YEAR"
	CodeUnparseableNumber      = "UNPARSEABLE_NUMBER"
	CodeCounterDrift           = "COUNTER_DRIFT"
	CodeRepairFailed           = "REPAIR_FAILED"
	CodeConcurrentModification = "CONCURRENT_MODIFICATION"

	// Authorization errors (401, 403)
	CodeUnauthorized = "UNAUTHORIZED"
	CodeForbidden    = "FORBIDDEN"

	// Not found (404)
	CodeNotFound = "NOT_FOUND"

	// Conflict (409, 422)
	CodeRepairInProgress     = "REPAIR_IN_PROGRESS"
	CodeIdempotencyConflict  = "IDEMPOTENCY_CONFLICT"
	CodeIdempotencyKeyReused = "IDEMPOTENCY_KEY_REUSED"
)

// AppError is the standard error type for the service.
// It implements error interface and provides structured details for API responses.
type AppError struct {
	// Code is a machine-readable error identifier
	Code string `json:"code"`

	// Message is a human-readable error description
	Message string `json:"message"`

	// Details contains additional context (counter key, document counts, etc.)
	Details map[string]any `json:"details,omitempty"`

	// HTTPStatus is the suggested HTTP status code
	HTTPStatus int `json:"-"`

	// Err is the underlying error (not exposed in JSON)
	Err error `json:"-"`
}

// Error implements error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetail adds a key-value pair to error details
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithCause sets the underlying error
func (e *AppError) WithCause(err error) *AppError {
	e.Err = err
	return e
}

// --- Factory functions ---

// NewValidation creates a validation error (400)
func NewValidation(message string) *AppError {
	return &AppError{
		Code:       CodeValidation,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewNotFound creates a not found error (404)
func NewNotFound(entity string, id any) *AppError {
	return &AppError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", entity),
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]any{"entity": entity, "id": id},
	}
}

// NewStoreUnavailable wraps a transient counter store failure.
// Callers degrade to the scan-based estimate instead of failing.
func NewStoreUnavailable(key string, err error) *AppError {
	return &AppError{
		Code:       CodeStoreUnavailable,
		Message:    "Counter store unavailable",
		HTTPStatus: http.StatusServiceUnavailable,
		Details:    map[string]any{"counter": key},
		Err:        err,
	}
}

// NewMissingFiscalYear is raised when tenant settings carry no fiscal year.
func NewMissingFiscalYear(tenantID string) *AppError {
	return &AppError{
		Code:       CodeMissingFiscalYear,
		Message:    "Fiscal year is not configured for tenant",
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    map[string]any{"tenant_id": tenantID},
	}
}

// NewUnparseableNumber reports a number that does not match the counter template.
func NewUnparseableNumber(number, format string) *AppError {
	return &AppError{
		Code:       CodeUnparseableNumber,
		Message:    "Number does not match counter format",
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    map[string]any{"number": number, "format": format},
	}
}

// NewRepairFailed wraps any failure during repair. Repair failures are fatal to the caller.
func NewRepairFailed(key string, err error) *AppError {
	return &AppError{
		Code:       CodeRepairFailed,
		Message:    "Counter repair failed",
		HTTPStatus: http.StatusInternalServerError,
		Details:    map[string]any{"counter": key},
		Err:        err,
	}
}

// NewRepairInProgress is returned when another repair holds the counter lock.
func NewRepairInProgress(key string) *AppError {
	return &AppError{
		Code:       CodeRepairInProgress,
		Message:    "Repair already in progress for this counter",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"counter": key},
	}
}

// NewIdempotencyConflict is returned while another request with the same key is in flight.
func NewIdempotencyConflict(key string) *AppError {
	return &AppError{
		Code:       CodeIdempotencyConflict,
		Message:    "Request with this idempotency key is already being processed",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"idempotency_key": key},
	}
}

// NewIdempotencyKeyReused is returned when a key is replayed with a different request.
func NewIdempotencyKeyReused(key string) *AppError {
	return &AppError{
		Code:       CodeIdempotencyKeyReused,
		Message:    "Idempotency key was already used for a different request",
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    map[string]any{"idempotency_key": key},
	}
}

// NewConcurrentModification creates an optimistic locking error
func NewConcurrentModification(entity string, id any) *AppError {
	return &AppError{
		Code:       CodeConcurrentModification,
		Message:    "Record was modified concurrently. Please retry.",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"entity": entity, "id": id},
	}
}

// NewInternal creates an internal server error (hides details from client)
func NewInternal(err error) *AppError {
	return &AppError{
		Code:       CodeInternal,
		Message:    "Internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// NewUnauthorized creates an authentication error (401)
func NewUnauthorized(message string) *AppError {
	return &AppError{
		Code:       CodeUnauthorized,
		Message:    message,
		HTTPStatus: http.StatusUnauthorized,
	}
}

// NewForbidden creates an authorization error (403)
func NewForbidden(message string) *AppError {
	return &AppError{
		Code:       CodeForbidden,
		Message:    message,
		HTTPStatus: http.StatusForbidden,
	}
}

// --- Helper functions ---

// AsAppError extracts AppError from error chain
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// HasCode checks whether the error chain carries an AppError with the given code.
func HasCode(err error, code string) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code == code
	}
	return false
}

// GetHTTPStatus returns appropriate HTTP status for any error
func GetHTTPStatus(err error) int {
	if appErr, ok := AsAppError(err); ok {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}
