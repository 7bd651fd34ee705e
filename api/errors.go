package api

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrUnauthorized indicates a 401: bad credentials on login, an invalid or
	// expired token elsewhere.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrNotFound indicates a 404.
	ErrNotFound = errors.New("not found")
	// ErrBadRequest indicates a 4xx other than 401 and 404, usually a
	// validation failure reported by the service.
	ErrBadRequest = errors.New("bad request")
	// ErrServer indicates a 5xx.
	ErrServer = errors.New("server error")
	// ErrUnavailable indicates no response was received.
	ErrUnavailable = errors.New("service unavailable")
	// ErrInvalidInput indicates input rejected locally before any request was sent.
	ErrInvalidInput = errors.New("invalid input")
)

// ErrorResponse is the error body returned by the service. Application
// errors use "error"; token failures use "msg".
type ErrorResponse struct {
	Error string `json:"error,omitempty"`
	Msg   string `json:"msg,omitempty"`
}

// StatusError is returned for any non-2xx response.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api: %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("api: %d: %s", e.StatusCode, e.Message)
}

// Unwrap maps the status code to one of the package sentinels.
func (e *StatusError) Unwrap() error {
	switch {
	case e.StatusCode == http.StatusUnauthorized:
		return ErrUnauthorized
	case e.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case e.StatusCode >= 500:
		return ErrServer
	default:
		return ErrBadRequest
	}
}

// ValidationError wraps the field errors found by local validation.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string {
	return e.Err.Error()
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Message returns the text to show a user for err: the service's own message
// for a status error, the field errors for a local validation failure, or
// fallback otherwise.
func Message(err error, fallback string) string {
	var statusErr *StatusError
	if errors.As(err, &statusErr) && statusErr.Message != "" {
		return statusErr.Message
	}
	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return validationErr.Error()
	}
	return fallback
}
