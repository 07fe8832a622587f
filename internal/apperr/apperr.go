// Package apperr defines the error taxonomy shared by services and handlers.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an application error.
type Kind int

const (
	KindInternal Kind = iota
	KindUnauthorized
	KindForbidden
	KindValidation
	KindNotFound
	KindConflict
	KindOutOfStock
	KindInsufficientStock
	KindEmptyCart
	KindInvalidSignature
	KindUpstream
)

var kindNames = map[Kind]string{
	KindInternal:          "Internal",
	KindUnauthorized:      "Unauthorized",
	KindForbidden:         "Forbidden",
	KindValidation:        "ValidationError",
	KindNotFound:          "NotFound",
	KindConflict:          "Conflict",
	KindOutOfStock:        "OutOfStock",
	KindInsufficientStock: "InsufficientStock",
	KindEmptyCart:         "EmptyCart",
	KindInvalidSignature:  "InvalidSignature",
	KindUpstream:          "UpstreamError",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Error is a classified application error.
type Error struct {
	Kind    Kind
	Message string
	// Details carries structured diagnostics, e.g. the offending fields or the
	// raw payload returned by a payment gateway or carrier.
	Details map[string]any
	// Retryable marks upstream failures (timeouts, 5xx) a client may retry.
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// StatusCode maps the error kind to an HTTP status.
func (e *Error) StatusCode() int {
	switch e.Kind {
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindValidation, KindEmptyCart, KindInvalidSignature:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict, KindOutOfStock, KindInsufficientStock:
		return http.StatusConflict
	case KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// WithDetail returns e after setting a diagnostic key.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = map[string]any{}
	}
	e.Details[key] = value
	return e
}

// As extracts an *Error from err's chain.
func As(err error) (*Error, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// KindOf returns the kind of err, or KindInternal for unclassified errors.
func KindOf(err error) Kind {
	if appErr, ok := As(err); ok {
		return appErr.Kind
	}
	return KindInternal
}

// Is reports whether err is an application error of the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

func Unauthorized(msg string) *Error {
	return &Error{Kind: KindUnauthorized, Message: msg}
}

func Forbidden(msg string) *Error {
	return &Error{Kind: KindForbidden, Message: msg}
}

// Validation reports malformed input. fields names the offending input fields.
func Validation(msg string, fields ...string) *Error {
	e := &Error{Kind: KindValidation, Message: msg}
	if len(fields) > 0 {
		e.WithDetail("fields", fields)
	}
	return e
}

func NotFound(entity string) *Error {
	return &Error{Kind: KindNotFound, Message: entity + " not found"}
}

func Conflict(msg string) *Error {
	return &Error{Kind: KindConflict, Message: msg}
}

func OutOfStock(sku string) *Error {
	return (&Error{Kind: KindOutOfStock, Message: "variant is out of stock"}).
		WithDetail("sku", sku).
		WithDetail("available", 0)
}

// InsufficientStock reports a requested quantity above the available stock.
func InsufficientStock(sku string, available int) *Error {
	return (&Error{
		Kind:    KindInsufficientStock,
		Message: fmt.Sprintf("only %d left in stock", available),
	}).WithDetail("sku", sku).WithDetail("available", available)
}

func EmptyCart() *Error {
	return &Error{Kind: KindEmptyCart, Message: "cart is empty"}
}

func InvalidSignature() *Error {
	return &Error{Kind: KindInvalidSignature, Message: "payment signature mismatch"}
}

// Upstream reports a failed call to a third-party provider. payload is the raw
// response body, kept for diagnostics.
func Upstream(provider, msg string, payload []byte, err error) *Error {
	e := &Error{Kind: KindUpstream, Message: provider + ": " + msg, Err: err}
	e.WithDetail("provider", provider)
	if len(payload) > 0 {
		e.WithDetail("payload", truncate(string(payload), 2048))
	}
	return e
}

// Internal wraps an unexpected failure.
func Internal(msg string, err error) *Error {
	return &Error{Kind: KindInternal, Message: msg, Err: err}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
