// Package apperr classifies errors into the kinds shown to API callers.
package apperr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/jackc/pgx/v5/pgconn"
)

// Kind is a machine-readable error category.
type Kind string

// Error kinds.
const (
	KindValidation   Kind = "validation"
	KindUnauthorized Kind = "unauthorized"
	KindForbidden    Kind = "forbidden"
	KindNotFound     Kind = "not_found"
	KindConflict     Kind = "conflict"
	KindRateLimited  Kind = "rate_limited"
	KindUnavailable  Kind = "unavailable"
	KindInternal     Kind = "internal"
)

// Error is an error with a user-visible kind and message. Err is the cause
// and is never shown to callers.
type Error struct {
	Kind     Kind
	Message  string
	CanRetry bool
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Status maps the kind to an HTTP status code.
func (e *Error) Status() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Validation creates a validation error.
func Validation(message string) *Error {
	return &Error{Kind: KindValidation, Message: message}
}

// NotFound creates a not found error.
func NotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Message: message}
}

// Unauthorized creates an unauthorized error.
func Unauthorized(message string) *Error {
	return &Error{Kind: KindUnauthorized, Message: message}
}

// Forbidden creates a forbidden error.
func Forbidden(message string) *Error {
	return &Error{Kind: KindForbidden, Message: message}
}

// Wrap attaches a kind and message to err.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err, CanRetry: kind == KindUnavailable}
}

// From classifies err. Errors already carrying a kind pass through;
// database and network failures are mapped by whether a retry can help.
func From(err error) *Error {
	if err == nil {
		return nil
	}

	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return fromPg(pgErr, err)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindUnavailable, Message: "The request timed out, please retry.", CanRetry: true, Err: err}
	}
	if errors.Is(err, context.Canceled) {
		return &Error{Kind: KindUnavailable, Message: "The request was cancelled.", CanRetry: true, Err: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) || pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
		return &Error{Kind: KindUnavailable, Message: "A backing service is unavailable, please retry.", CanRetry: true, Err: err}
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return &Error{Kind: KindUnavailable, Message: "A backing service is unavailable, please retry.", CanRetry: true, Err: err}
	}

	return &Error{Kind: KindInternal, Message: "An unexpected error occurred.", Err: err}
}

// fromPg maps a Postgres error by SQLSTATE class.
func fromPg(pgErr *pgconn.PgError, err error) *Error {
	switch {
	case pgErr.Code == "23505":
		return &Error{Kind: KindConflict, Message: "The record already exists.", Err: err}
	case pgErr.Code == "23503" || pgErr.Code == "23502" || pgErr.Code == "23514" || pgErr.Code == "22P02":
		return &Error{Kind: KindValidation, Message: "The request violates a data constraint.", Err: err}
	case pgErr.Code == "40001" || pgErr.Code == "40P01":
		return &Error{Kind: KindUnavailable, Message: "The request conflicted with another, please retry.", CanRetry: true, Err: err}
	case len(pgErr.Code) == 5 && (pgErr.Code[:2] == "08" || pgErr.Code[:2] == "53" || pgErr.Code[:2] == "57"):
		// connection exception, insufficient resources, operator intervention
		return &Error{Kind: KindUnavailable, Message: "The database is unavailable, please retry.", CanRetry: true, Err: err}
	}
	return &Error{Kind: KindInternal, Message: "An unexpected error occurred.", Err: err}
}

// IsUniqueViolation reports whether err is a Postgres unique constraint violation.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// Body is the JSON error response.
type Body struct {
	Error     Kind   `json:"error"`
	Message   string `json:"message"`
	CanRetry  bool   `json:"canRetry"`
	RequestID string `json:"requestId,omitempty"`
}

// Write classifies err and writes it as a JSON error response.
func Write(w http.ResponseWriter, err error, requestID string) *Error {
	ae := From(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(ae.Status())
	_ = json.NewEncoder(w).Encode(Body{
		Error:     ae.Kind,
		Message:   ae.Message,
		CanRetry:  ae.CanRetry,
		RequestID: requestID,
	})
	return ae
}
