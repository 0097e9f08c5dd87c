package types

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorCode is a typed string for categorizing application errors.
type ErrorCode string

// Error code constants. The prefix determines the HTTP status (see HTTPStatus),
// so new codes must keep the category prefix.
const (
	// Validation (400)
	ErrCodeValidationInvalidProfile   ErrorCode = "validation_invalid_profile"
	ErrCodeValidationInvalidTimeFrame ErrorCode = "validation_invalid_time_frame"
	ErrCodeValidationInvalidLat       ErrorCode = "validation_invalid_latitude"
	ErrCodeValidationInvalidLon       ErrorCode = "validation_invalid_longitude"
	ErrCodeValidationMissingField     ErrorCode = "validation_missing_required_field"
	ErrCodeValidationInvalidField     ErrorCode = "validation_invalid_field"
	ErrCodeValidationInvalidPreset    ErrorCode = "validation_invalid_preset"
	ErrCodeValidationInvalidJSON      ErrorCode = "validation_invalid_json"

	// Limits (429)
	ErrCodeRateLimit ErrorCode = "rate_limit_exceeded"

	// Not Found (404)
	ErrCodeNotFoundPrediction ErrorCode = "not_found_prediction"

	// Upstream (502). Recovered locally by the engine; surfaced only by
	// adapters and workers.
	ErrCodeUpstreamWeather     ErrorCode = "upstream_weather_unavailable"
	ErrCodeUpstreamGeocoding   ErrorCode = "upstream_geocoding_unavailable"
	ErrCodeUpstreamProvider    ErrorCode = "upstream_provider_unavailable"
	ErrCodeUpstreamUnavailable ErrorCode = "upstream_unavailable"
	ErrCodeUpstreamRateLimited ErrorCode = "upstream_rate_limited"

	// Internal (500)
	ErrCodeInternalDB               ErrorCode = "internal_database_error"
	ErrCodeInternalUnexpected       ErrorCode = "internal_unexpected_error"
	ErrCodeInternalComputationGuard ErrorCode = "internal_computation_guard"
	ErrCodeInternalQueue            ErrorCode = "internal_queue_error"
	ErrCodeInternalArchive          ErrorCode = "internal_archive_error"
)

// HTTPStatus maps an ErrorCode to its HTTP status code.
// Unrecognized codes map to 500.
func (c ErrorCode) HTTPStatus() int {
	s := string(c)
	switch {
	case strings.HasPrefix(s, "validation_"):
		return http.StatusBadRequest
	case c == ErrCodeRateLimit:
		return http.StatusTooManyRequests
	case strings.HasPrefix(s, "not_found_"):
		return http.StatusNotFound
	case strings.HasPrefix(s, "upstream_"):
		return http.StatusBadGateway
	case strings.HasPrefix(s, "internal_"):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// AppError is the standard application error type. Domain, adapter and
// handler errors are expressed as AppError so the API layer can map them to
// a status and a stable code.
type AppError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Err     error          `json:"-"`
	Details map[string]any `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// HTTPStatus returns the HTTP status code corresponding to this error's code.
func (e *AppError) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// WithDetails returns a copy of the error with the provided details merged in.
// The receiver is not modified.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	merged := make(map[string]any, len(e.Details)+len(details))
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	return &AppError{
		Code:    e.Code,
		Message: e.Message,
		Err:     e.Err,
		Details: merged,
	}
}

// NewAppError creates an AppError with the given code, message, and optional
// wrapped error.
func NewAppError(code ErrorCode, msg string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: msg,
		Err:     err,
	}
}

// NewAppErrorWithDetails creates an AppError carrying a details map.
func NewAppErrorWithDetails(code ErrorCode, msg string, err error, details map[string]any) *AppError {
	return &AppError{
		Code:    code,
		Message: msg,
		Err:     err,
		Details: details,
	}
}

// IsCode reports whether the first AppError in err's chain carries code.
func IsCode(err error, code ErrorCode) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}
