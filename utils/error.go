package utils

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrorRecordNotFound = errors.New("record not found")
	ErrValidation       = errors.New("validation failed")
	ErrInvalidRange     = errors.New("invalid date range")
	ErrConflict         = errors.New("concurrent modification")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrTransientNetwork = errors.New("server unreachable")
)

// AppError carries one of the sentinel kinds above plus a caller-facing message.
// Match with errors.Is against the sentinel, or errors.As for the message.
type AppError struct {
	Kind    error
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Kind.Error()
}

func (e *AppError) Unwrap() []error {
	out := []error{e.Kind}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

func NewValidationError(format string, args ...any) error {
	return &AppError{Kind: ErrValidation, Message: fmt.Sprintf(format, args...)}
}

// NewInvalidRangeError is also a validation error.
func NewInvalidRangeError(from, to string) error {
	return &AppError{
		Kind:    ErrInvalidRange,
		Message: fmt.Sprintf("to_date %s is before from_date %s", to, from),
		Err:     ErrValidation,
	}
}

func NewNotFoundError(format string, args ...any) error {
	return &AppError{Kind: ErrorRecordNotFound, Message: fmt.Sprintf(format, args...)}
}

func NewConflictError(format string, args ...any) error {
	return &AppError{Kind: ErrConflict, Message: fmt.Sprintf(format, args...)}
}

func NewUnauthorizedError(message string) error {
	return &AppError{Kind: ErrUnauthorized, Message: message}
}

func NewTransientNetworkError(err error) error {
	return &AppError{Kind: ErrTransientNetwork, Err: err, Message: fmt.Sprintf("server unreachable: %v", err)}
}

func IsValidation(err error) bool { return errors.Is(err, ErrValidation) }
func IsNotFound(err error) bool   { return errors.Is(err, ErrorRecordNotFound) }
func IsConflict(err error) bool   { return errors.Is(err, ErrConflict) }

// HTTPStatus maps an error kind to the status the API answers with.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrValidation), errors.Is(err, ErrInvalidRange):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrorRecordNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrTransientNetwork):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage hides internal error text behind a generic message.
func PublicMessage(err error) string {
	if HTTPStatus(err) == http.StatusInternalServerError {
		return "internal server error"
	}
	return err.Error()
}
