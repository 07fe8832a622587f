// Package services holds the storefront business flows: cart, checkout,
// payment verification and shipment dispatch.
package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/example/storefront/internal/apperr"
	"github.com/example/storefront/internal/repository"
)

var tracer = otel.Tracer("github.com/example/storefront/internal/services")

// newHTTPClient returns a client whose requests carry the caller's trace
// context. A zero timeout leaves the deadline to the request context.
func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

func orDiscard(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return logger
}

// notFound turns a repository miss into a NotFound error for entity and wraps
// anything else as Internal.
func notFound(err error, entity string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperr.NotFound(entity)
	}
	if _, ok := apperr.As(err); ok {
		return err
	}
	return apperr.Internal("load "+entity, err)
}

func internal(msg string, err error) error {
	if _, ok := apperr.As(err); ok {
		return err
	}
	return apperr.Internal(msg, err)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, apperr.KindOf(err).String())
	}
	span.End()
}

// detached keeps request values such as the trace span but drops the
// request's cancellation, for work that outlives the request.
func detached(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}
