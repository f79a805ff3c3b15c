// Package apperror defines the error kinds shared by every layer of payapp.
//
// Services return *AppError values that wrap one of the sentinel errors below.
// Handlers never inspect messages; they use errors.Is on the sentinel to pick
// an HTTP status and show AppError.Message (or Fields) to the user.
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrValidation       = errors.New("Validation Error")
	ErrConflict         = errors.New("conflict")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrMissingPaymentID = errors.New("missing payment id")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrStorage          = errors.New("storage failure")
)

type AppError struct {
	Err     error             // sentinel kind
	Message string            // Human-readable error message
	Field   string            // Optional: field causing the error
	Fields  map[string]string // Optional: every failing field (form validation)
	Cause   error             // Optional: underlying failure, for logs only
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
		Fields:  map[string]string{field: message},
	}
}

// FieldsInvalid bundles several field-level validation messages into one error.
// Message is the first field's message in iteration order of fields; callers
// that render forms should read Fields instead.
func FieldsInvalid(fields map[string]string) *AppError {
	msg := "please correct the errors below"
	if len(fields) == 1 {
		for _, m := range fields {
			msg = m
		}
	}
	return &AppError{
		Err:     ErrValidation,
		Message: msg,
		Fields:  fields,
	}
}

// DuplicateField reports that a unique field (username, email, payment id)
// is already taken by another record.
func DuplicateField(field, message string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: message,
		Field:   field,
		Fields:  map[string]string{field: message},
	}
}

func Unauthorized(message string) *AppError {
	return &AppError{
		Err:     ErrUnauthorized,
		Message: message,
	}
}

func MissingPaymentID(username string) *AppError {
	return &AppError{
		Err:     ErrMissingPaymentID,
		Message: "Creator has no UPI ID.",
		Field:   "payment_id",
		Cause:   fmt.Errorf("creator %s has no payment id", username),
	}
}

func InvalidAmount(raw string) *AppError {
	return &AppError{
		Err:     ErrInvalidAmount,
		Message: "Invalid amount.",
		Field:   "amount",
		Cause:   fmt.Errorf("rejected amount %q", raw),
	}
}

// Storage wraps an unexpected repository failure. The cause is kept for
// logging; the message shown to clients stays generic.
func Storage(op string, cause error) *AppError {
	return &AppError{
		Err:     ErrStorage,
		Message: "An internal error occurred",
		Cause:   fmt.Errorf("%s: %w", op, cause),
	}
}

// IsKind reports whether err carries an *AppError anywhere in its chain.
func IsKind(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}
