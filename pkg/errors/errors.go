package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unique error code
type ErrorCode int

// AppError represents an application error
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Common error codes
const (
	ErrNotFound ErrorCode = iota + 1000
	ErrBadRequest
	ErrUnauthorized
	ErrForbidden
	ErrInternal
	ErrPrecondition
)

// Error constructors
func NewNotFound(resource string, err error) *AppError {
	return &AppError{
		Code:    ErrNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Err:     err,
	}
}

func NewBadRequest(message string, err error) *AppError {
	return &AppError{
		Code:    ErrBadRequest,
		Message: message,
		Err:     err,
	}
}

func NewInternal(err error) *AppError {
	return &AppError{
		Code:    ErrInternal,
		Message: "internal server error",
		Err:     err,
	}
}

func NewPrecondition(message string) *AppError {
	return &AppError{
		Code:    ErrPrecondition,
		Message: message,
	}
}

func Unauthorized(err error) *AppError {
	return &AppError{
		Code:    ErrUnauthorized,
		Message: "unauthorized",
		Err:     err,
	}
}

// Named dispatch configuration errors. These are operator mistakes raised
// synchronously to the caller, never retried.
var (
	ErrDeliveryDisabled   = NewPrecondition("telegram delivery is disabled")
	ErrPreviewOnly        = NewPrecondition("telegram delivery is in preview-only mode")
	ErrNoDestination      = NewPrecondition("no destination available")
	ErrNoConnection       = NewPrecondition("no telegram connection")
	ErrInvalidOrExpired   = NewBadRequest("invalid or expired", nil)
	ErrInvalidCredentials = Unauthorized(errors.New("invalid credentials"))
	ErrEmptyPreferencePut = NewBadRequest("no valid preference fields in update", nil)
)

// IsCode reports whether err is an AppError carrying the given code.
func IsCode(err error, code ErrorCode) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}
