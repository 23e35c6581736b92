// Package apperr defines the error taxonomy shared by every domain service:
// validation, state, not-found, forbidden and persistence failures. Services
// wrap one of the sentinels with %w so handlers can classify with errors.Is.
package apperr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

var (
	ErrValidation             = errors.New("validation error")
	ErrState                  = errors.New("state error")
	ErrInvalidStateTransition = fmt.Errorf("invalid state transition: %w", ErrState)
	ErrNotFound               = errors.New("not found")
	ErrForbidden              = errors.New("forbidden")
	ErrPersistence            = errors.New("persistence error")
)

// Validation reports bad caller input. Nothing has been mutated.
func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// State reports an operation that is not allowed in the current state.
func State(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrState, fmt.Sprintf(format, args...))
}

// Transition reports a workflow transition from a terminal or unexpected status.
func Transition(from, to string) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidStateTransition, from, to)
}

func NotFound(kind, id string) error {
	return fmt.Errorf("%w: %s %q", ErrNotFound, kind, id)
}

func Forbidden(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrForbidden, fmt.Sprintf(format, args...))
}

// Persistence wraps a storage failure. The cause stays reachable through errors.Unwrap chains.
func Persistence(cause error, op string) error {
	return fmt.Errorf("%w: %s: %w", ErrPersistence, op, cause)
}

// HTTPStatus maps a classified error to the status code handlers return.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrState):
		return http.StatusConflict
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrPersistence):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// HTTPError converts err for an echo handler. Unclassified errors are not
// echoed back to the caller.
func HTTPError(err error) *echo.HTTPError {
	status := HTTPStatus(err)
	if status == http.StatusInternalServerError {
		return echo.NewHTTPError(status, "internal server error").SetInternal(err)
	}
	return echo.NewHTTPError(status, err.Error())
}
