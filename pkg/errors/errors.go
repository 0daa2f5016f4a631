// Package errors defines the sentinel errors shared across the search engine
// and an AppError type that carries an HTTP status for the serving layer.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrInvalidRoot     = errors.New("invalid root directory")
	ErrInvalidInput    = errors.New("invalid input")
	ErrPathOutsideRoot = errors.New("path escapes indexed root")
	ErrNotFound        = errors.New("not found")
	ErrInternal        = errors.New("internal error")
	ErrTimeout         = errors.New("operation timed out")
)

type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

// Is and As re-export the standard helpers so callers importing this
// package under the name "errors" keep access to them.
func Is(err, target error) bool { return errors.Is(err, target) }

func As(err error, target any) bool { return errors.As(err, target) }

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrPathOutsideRoot):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrInvalidRoot), errors.Is(err, ErrTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
