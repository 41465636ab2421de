package models

import "fmt"

// ErrorType classifies a failure for callers. Mapping to transport codes is
// the calling layer's responsibility.
type ErrorType string

const (
	ErrorBadRequest        ErrorType = "BAD_REQUEST"
	ErrorNotFound          ErrorType = "NOT_FOUND"
	ErrorConflict          ErrorType = "CONFLICT"
	ErrorInsufficientStock ErrorType = "INSUFFICIENT_STOCK"
	ErrorInsufficientPoint ErrorType = "INSUFFICIENT_POINT"
	ErrorInvalidState      ErrorType = "INVALID_STATE"
	ErrorUpstreamTimeout   ErrorType = "UPSTREAM_TIMEOUT"
	ErrorUpstreamFailure   ErrorType = "UPSTREAM_FAILURE"
	ErrorCircuitOpen       ErrorType = "CIRCUIT_OPEN"
	ErrorInternal          ErrorType = "INTERNAL"
)

// AppError is the structured {errorType, message} error surfaced to callers.
type AppError struct {
	Type    ErrorType `json:"errorType"`
	Message string    `json:"message"`
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Is matches any AppError of the same type, so errors wrapped with %w still
// compare against the sentinels below via errors.Is.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	return ok && t.Type == e.Type
}

// NewAppError builds an AppError with a formatted message.
func NewAppError(t ErrorType, format string, args ...interface{}) *AppError {
	return &AppError{Type: t, Message: fmt.Sprintf(format, args...)}
}

// Sentinel errors for errors.Is checks.
var (
	ErrNotFound          = &AppError{Type: ErrorNotFound, Message: "resource not found"}
	ErrConflict          = &AppError{Type: ErrorConflict, Message: "resource already exists"}
	ErrInsufficientStock = &AppError{Type: ErrorInsufficientStock, Message: "insufficient stock"}
	ErrInsufficientPoint = &AppError{Type: ErrorInsufficientPoint, Message: "insufficient point balance"}
	ErrInvalidState      = &AppError{Type: ErrorInvalidState, Message: "invalid state transition"}
	ErrCircuitOpen       = &AppError{Type: ErrorCircuitOpen, Message: "circuit breaker open"}
	ErrUpstreamTimeout   = &AppError{Type: ErrorUpstreamTimeout, Message: "upstream call timed out"}
	ErrUpstreamFailure   = &AppError{Type: ErrorUpstreamFailure, Message: "upstream call failed"}
)
