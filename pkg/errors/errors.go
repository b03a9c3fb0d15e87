package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorType classifies failures for the HTTP boundary.
type ErrorType string

const (
	// ErrorTypeNotFound: the referenced record item or trend does not exist.
	ErrorTypeNotFound ErrorType = "NOT_FOUND"

	// ErrorTypeValidation: the request body or parameters are unusable.
	ErrorTypeValidation ErrorType = "VALIDATION"

	// ErrorTypeInternal: a defect or an unclassified failure.
	ErrorTypeInternal ErrorType = "INTERNAL"

	// ErrorTypeExternal: the language model or another dependency failed.
	// Callers may retry.
	ErrorTypeExternal ErrorType = "EXTERNAL"
)

// AppError carries a type, a message safe to show the caller and an
// optional cause that is only logged.
type AppError struct {
	Type    ErrorType
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NewNotFoundError(message string) *AppError {
	return &AppError{Type: ErrorTypeNotFound, Message: message}
}

// NotFoundf formats the message like fmt.Sprintf.
func NotFoundf(format string, args ...any) *AppError {
	return NewNotFoundError(fmt.Sprintf(format, args...))
}

func NewValidationError(message string) *AppError {
	return &AppError{Type: ErrorTypeValidation, Message: message}
}

// Validationf formats the message like fmt.Sprintf.
func Validationf(format string, args ...any) *AppError {
	return NewValidationError(fmt.Sprintf(format, args...))
}

func NewInternalError(message string, err error) *AppError {
	return &AppError{Type: ErrorTypeInternal, Message: message, Err: err}
}

func NewExternalError(message string, err error) *AppError {
	return &AppError{Type: ErrorTypeExternal, Message: message, Err: err}
}

// TypeOf returns the ErrorType of the first AppError in err's chain, or
// ErrorTypeInternal when there is none.
func TypeOf(err error) ErrorType {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Type
	}
	return ErrorTypeInternal
}

// IsRetryable reports whether the caller may retry the failed operation.
func IsRetryable(err error) bool {
	return TypeOf(err) == ErrorTypeExternal
}
