// Package errors provides custom error types for product-related operations.
package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	ErrProductNotFound = errors.New("product not found")
	ErrValidation      = errors.New("product rejected")
	ErrFetch           = errors.New("product request failed")
	ErrMalformed       = errors.New("malformed product payload")
	// ErrUnavailable is reported while the circuit breaker is open. It is also an ErrFetch.
	ErrUnavailable = fmt.Errorf("%w: service unavailable", ErrFetch)
)

// APIError is a non-2xx answer of the remote product API.
type APIError struct {
	Op         string
	StatusCode int
	// Message is the server supplied message, if any.
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: status %d: %s", e.Op, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: status %d", e.Op, e.StatusCode)
}

// Is maps the status code onto the sentinel errors of this package.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrProductNotFound:
		return e.StatusCode == http.StatusNotFound
	case ErrValidation:
		return isRejection(e.StatusCode)
	case ErrFetch:
		return e.StatusCode != http.StatusNotFound && !isRejection(e.StatusCode)
	}
	return false
}

func isRejection(status int) bool {
	return status == http.StatusBadRequest ||
		status == http.StatusConflict ||
		status == http.StatusUnprocessableEntity
}

// FieldError names a field and the rule it failed.
type FieldError struct {
	Field string
	Rule  string
}

// ValidationError is returned when a product fails local validation.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + " failed on rule: " + f.Rule
	}
	return "invalid product: " + strings.Join(parts, ", ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Message returns the text that should be shown to a user for err, if err carries one.
func Message(err error) (string, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message, true
	}
	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return validationErr.Error(), true
	}
	return "", false
}
