// Package errors defines the service's error taxonomy and its mapping onto
// HTTP status codes.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinels every AppError built by this package unwraps to, so callers can
// branch with errors.Is without knowing about AppError.
var (
	ErrNotFound       = errors.New("resource not found")
	ErrInvalidInput   = errors.New("invalid input")
	ErrConflict       = errors.New("conflict")
	ErrUnprocessable  = errors.New("unprocessable entity")
	ErrUpstream       = errors.New("upstream failure")
	ErrServiceUnavail = errors.New("service unavailable")
	ErrInternal       = errors.New("internal error")
)

type kind struct {
	sentinel error
	code     string
	status   int
}

// Ordered so the first match wins in HTTPStatus.
var kinds = []kind{
	{ErrNotFound, "NOT_FOUND", http.StatusNotFound},
	{ErrInvalidInput, "INVALID_INPUT", http.StatusBadRequest},
	{ErrConflict, "CONFLICT", http.StatusConflict},
	{ErrUnprocessable, "UNPROCESSABLE", http.StatusUnprocessableEntity},
	{ErrUpstream, "UPSTREAM_FAILURE", http.StatusBadGateway},
	{ErrServiceUnavail, "SERVICE_UNAVAILABLE", http.StatusServiceUnavailable},
	{ErrInternal, "INTERNAL_ERROR", http.StatusInternalServerError},
}

// AppError is an error that knows how it should be reported to a client.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Code + ": " + e.Message
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
}

func (e *AppError) Unwrap() error { return e.Err }

func newError(sentinel error, message string) *AppError {
	for _, k := range kinds {
		if k.sentinel == sentinel {
			return &AppError{Code: k.code, Message: message, Status: k.status, Err: sentinel}
		}
	}
	panic("errors: unregistered sentinel " + sentinel.Error())
}

// NotFound reports a missing resource (404).
func NotFound(resource, id string) *AppError {
	return newError(ErrNotFound, fmt.Sprintf("%s with id %s not found", resource, id))
}

// InvalidInput reports a request the caller must fix (400).
func InvalidInput(message string) *AppError {
	return newError(ErrInvalidInput, message)
}

// Conflict reports a request that clashes with work already in progress (409).
func Conflict(message string) *AppError {
	return newError(ErrConflict, message)
}

// Unprocessable reports well-formed input that cannot be processed, such as
// a malformed upstream catalogue (422).
func Unprocessable(message string) *AppError {
	return newError(ErrUnprocessable, message)
}

// BadGateway reports a failed call to an upstream system (502).
func BadGateway(message string) *AppError {
	return newError(ErrUpstream, message)
}

// Unavailable reports a dependency that is down (503).
func Unavailable(message string) *AppError {
	return newError(ErrServiceUnavail, message)
}

// Internal hides err behind a generic message (500). err is kept for logs.
func Internal(err error) *AppError {
	e := newError(ErrInternal, "an internal error occurred")
	e.Err = err
	return e
}

// HTTPStatus returns the status code err should be reported with. Errors
// outside the taxonomy are 500.
func HTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status
	}
	for _, k := range kinds {
		if errors.Is(err, k.sentinel) {
			return k.status
		}
	}
	return http.StatusInternalServerError
}
