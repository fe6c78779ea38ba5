// internal/service/errors.go
package service

import (
	"errors"
	"fmt"
)

// Sentinel errors for comparison with errors.Is. Wrap them with Error to add
// the failing operation.
var (
	ErrInvalidFile     = errors.New("invalid image file")
	ErrInvalidDate     = errors.New("invalid date")
	ErrInvalidMealType = errors.New("invalid meal type")
	ErrInvalidInput    = errors.New("invalid input")
	ErrAnalysisFailed  = errors.New("image analysis failed")
	ErrStorage         = errors.New("storage failure")
	ErrUnauthorized    = errors.New("authentication required")
)

// Error codes reported to clients.
const (
	CodeFileError       = "FILE_ERROR"
	CodeWebhookError    = "WEBHOOK_ERROR"
	CodeDatabaseError   = "DATABASE_ERROR"
	CodeInvalidDate     = "INVALID_DATE"
	CodeInvalidMealType = "INVALID_MEAL_TYPE"
	CodeInvalidInput    = "INVALID_INPUT"
	CodeUnauthorized    = "UNAUTHORIZED"
	CodeUnknown         = "UPLOAD_FAILED"
)

// Error carries the operation that failed alongside the underlying cause.
type Error struct {
	Op  string // e.g. "service.SaveRecord"
	Err error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func opError(op string, sentinel error, format string, args ...any) error {
	if format == "" {
		return &Error{Op: op, Err: sentinel}
	}
	return &Error{Op: op, Err: fmt.Errorf("%w: %s", sentinel, fmt.Sprintf(format, args...))}
}

func wrapError(op string, sentinel, cause error) error {
	return &Error{Op: op, Err: fmt.Errorf("%w: %w", sentinel, cause)}
}

// Code maps an error to the client-facing error code.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrInvalidFile):
		return CodeFileError
	case errors.Is(err, ErrInvalidDate):
		return CodeInvalidDate
	case errors.Is(err, ErrInvalidMealType):
		return CodeInvalidMealType
	case errors.Is(err, ErrInvalidInput):
		return CodeInvalidInput
	case errors.Is(err, ErrAnalysisFailed):
		return CodeWebhookError
	case errors.Is(err, ErrStorage):
		return CodeDatabaseError
	case errors.Is(err, ErrUnauthorized):
		return CodeUnauthorized
	default:
		return CodeUnknown
	}
}

// IsValidation reports whether err was caused by bad caller input.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidFile) ||
		errors.Is(err, ErrInvalidDate) ||
		errors.Is(err, ErrInvalidMealType) ||
		errors.Is(err, ErrInvalidInput)
}
