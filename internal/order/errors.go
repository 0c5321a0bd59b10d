package order

import (
	"errors"
	"fmt"
	"net/http"
)

type ErrorCategory string

const (
	CategoryInput       ErrorCategory = "input"
	CategoryNotFound    ErrorCategory = "not_found"
	CategoryConflict    ErrorCategory = "conflict"
	CategoryFulfillment ErrorCategory = "fulfillment"
	CategoryInternal    ErrorCategory = "internal"
)

// OrderError carries an HTTP status and a message that is safe to show the client.
// InternalError is for logs only.
type OrderError struct {
	Category      ErrorCategory
	StatusCode    int
	PublicError   string
	InternalError string
	OriginalErr   error
}

func (e *OrderError) Error() string {
	if e.InternalError != "" {
		return fmt.Sprintf("%s: %s", e.Category, e.InternalError)
	}
	return fmt.Sprintf("%s: %s", e.Category, e.PublicError)
}

func (e *OrderError) Unwrap() error {
	return e.OriginalErr
}

func NewInputError(public string) *OrderError {
	return &OrderError{Category: CategoryInput, StatusCode: http.StatusBadRequest, PublicError: public}
}

func WrapInputError(public string, err error) *OrderError {
	return &OrderError{Category: CategoryInput, StatusCode: http.StatusBadRequest, PublicError: public, InternalError: err.Error(), OriginalErr: err}
}

func NewNotFoundError(public string, err error) *OrderError {
	return &OrderError{Category: CategoryNotFound, StatusCode: http.StatusNotFound, PublicError: public, OriginalErr: err}
}

func NewConflictError(public, internal string, err error) *OrderError {
	return &OrderError{Category: CategoryConflict, StatusCode: http.StatusConflict, PublicError: public, InternalError: internal, OriginalErr: err}
}

func NewFulfillmentError(err error) *OrderError {
	return &OrderError{
		Category:      CategoryFulfillment,
		StatusCode:    http.StatusBadGateway,
		PublicError:   "Tickets could not be issued; the order was not completed",
		InternalError: err.Error(),
		OriginalErr:   err,
	}
}

func NewInternalError(internal string, err error) *OrderError {
	return &OrderError{
		Category:      CategoryInternal,
		StatusCode:    http.StatusInternalServerError,
		PublicError:   "Internal server error",
		InternalError: internal,
		OriginalErr:   err,
	}
}

// StatusCode maps any error returned by the service to an HTTP status.
func StatusCode(err error) int {
	var oe *OrderError
	if errors.As(err, &oe) {
		return oe.StatusCode
	}
	return http.StatusInternalServerError
}

// PublicMessage returns the client-safe message for err.
func PublicMessage(err error) string {
	var oe *OrderError
	if errors.As(err, &oe) {
		return oe.PublicError
	}
	return "Internal server error"
}
