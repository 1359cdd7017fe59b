// Package apperr holds the error kinds shared by every layer. Packages define
// their own sentinels on top of these so callers can classify with errors.Is.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrValidation         = errors.New("validation error")
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrExternalService    = errors.New("external service error")
	ErrInvariantViolation = errors.New("invariant violation")
	ErrForbidden          = errors.New("forbidden")
)

func Validation(msg string) error {
	return fmt.Errorf("%w: %s", ErrValidation, msg)
}

// External marks err as a failure of a collaborator outside the process.
func External(service string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrExternalService, service, err)
}

func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict), errors.Is(err, ErrInsufficientFunds):
		return http.StatusConflict
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrExternalService):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// UserMessage is the text shown to an end user for err. External and internal
// failures never leak details.
func UserMessage(err error) string {
	switch {
	case errors.Is(err, ErrValidation), errors.Is(err, ErrNotFound),
		errors.Is(err, ErrConflict), errors.Is(err, ErrInsufficientFunds),
		errors.Is(err, ErrForbidden):
		return err.Error()
	case errors.Is(err, ErrExternalService):
		return "service temporarily unavailable, please try again later"
	default:
		return "internal error"
	}
}
