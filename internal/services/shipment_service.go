package services

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/example/storefront/internal/access"
	"github.com/example/storefront/internal/apperr"
	"github.com/example/storefront/internal/config"
	"github.com/example/storefront/internal/models"
	"github.com/example/storefront/internal/repository"
	"github.com/example/storefront/internal/telemetry"
)

// TokenSource hands out carrier bearer tokens. CarrierTokenCache implements it.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	Invalidate()
}

// CarrierBooker books shipments. CarrierClient implements it.
type CarrierBooker interface {
	Book(ctx context.Context, token string, payload BookingPayload) (*CarrierBooking, error)
}

type DispatchInput struct {
	OrderID     uuid.UUID `json:"order_id"`
	OrderLineID uuid.UUID `json:"order_line_id"`
	// SequenceIndex picks the parcel number; nil books the next one.
	SequenceIndex *int `json:"sequence_index,omitempty"`
}

// ShipmentService books parcels with the carrier, one order line at a time.
type ShipmentService struct {
	orders    repository.OrderRepository
	products  repository.ProductRepository
	shipments repository.ShipmentRepository
	tokens    TokenSource
	carrier   CarrierBooker
	pickup    config.Pickup
	notifier  *Notifier
	metrics   *telemetry.Metrics
	logger    *slog.Logger
}

func NewShipmentService(
	orders repository.OrderRepository,
	products repository.ProductRepository,
	shipments repository.ShipmentRepository,
	tokens TokenSource,
	carrier CarrierBooker,
	pickup config.Pickup,
	notifier *Notifier,
	metrics *telemetry.Metrics,
	logger *slog.Logger,
) *ShipmentService {
	return &ShipmentService{
		orders:    orders,
		products:  products,
		shipments: shipments,
		tokens:    tokens,
		carrier:   carrier,
		pickup:    pickup,
		notifier:  notifier,
		metrics:   metrics,
		logger:    orDiscard(logger),
	}
}

// Dispatch books one parcel for an order line. The shipment row exists in
// NOT_CREATED before the carrier is called and only becomes BOOKED once an
// AWB comes back. Bookings are not idempotent on the carrier side, so a
// failed call is surfaced and never retried, except once after a 401 with a
// fresh token.
func (s *ShipmentService) Dispatch(ctx context.Context, id access.Identity, in DispatchInput) (_ *models.Shipment, err error) {
	ctx, span := tracer.Start(ctx, "shipment.Dispatch", trace.WithAttributes(
		attribute.String("order.id", in.OrderID.String()),
		attribute.String("order_line.id", in.OrderLineID.String()),
	))
	defer func() { endSpan(span, err) }()

	if err := id.RequireAdmin(); err != nil {
		return nil, err
	}

	order, err := s.orders.FindByID(ctx, in.OrderID)
	if err != nil {
		return nil, notFound(err, "order")
	}
	line, ok := order.Line(in.OrderLineID)
	if !ok {
		return nil, apperr.NotFound("order line")
	}
	switch {
	case order.Status == models.OrderCancelled:
		return nil, apperr.Conflict("order is cancelled")
	case order.PaymentMethod == models.PaymentOnline && !order.IsPaid:
		return nil, apperr.Conflict("order is awaiting payment")
	}
	if missing := order.ShippingAddress.MissingFields(); len(missing) > 0 {
		return nil, apperr.Validation("order has no complete shipping address", missing...)
	}

	shipment, err := s.pendingShipment(ctx, order.ID, line.ID, in.SequenceIndex)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("shipment.sequence", shipment.SequenceIndex))

	variant, err := s.products.FindVariant(ctx, line.VariantID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, internal("load variant", err)
		}
		variant = nil
	}
	payload := BuildBookingPayload(order, line, variant, shipment.SequenceIndex, s.pickup)

	booking, err := s.book(ctx, payload)
	if err != nil {
		s.metrics.ShipmentDispatched(ctx, "failed")
		s.logger.Error("shipment booking failed",
			"order_id", order.ID, "order_line_id", line.ID, "sequence", shipment.SequenceIndex, "error", err)
		if recErr := s.shipments.RecordFailure(ctx, shipment.ID, err.Error()); recErr != nil {
			s.logger.Error("record shipment failure", "shipment_id", shipment.ID, "error", recErr)
		}
		return nil, bookingError(err).WithDetail("shipment_id", shipment.ID.String())
	}

	if err := s.shipments.MarkBooked(ctx, shipment.ID, booking.AWB, booking.CourierName); err != nil {
		// The carrier has the parcel; keep the AWB in the logs so it can be reconciled.
		s.logger.Error("persist booked shipment", "shipment_id", shipment.ID, "awb", booking.AWB, "error", err)
		return nil, internal("persist booking", err)
	}
	shipment.AWB = booking.AWB
	shipment.Carrier = booking.CourierName
	shipment.Status = models.ShipmentBooked
	shipment.LastError = ""

	if order.Status == models.OrderProcessing {
		if err := s.orders.UpdateStatus(ctx, order.ID, models.OrderShipped); err != nil {
			s.logger.Warn("mark order shipped", "order_id", order.ID, "error", err)
		}
	}

	s.metrics.ShipmentDispatched(ctx, "booked")
	s.logger.Info("shipment booked",
		"order_id", order.ID, "shipment_id", shipment.ID, "awb", booking.AWB, "carrier", booking.CourierName)
	s.notifier.ShipmentBooked(ctx, shipment)
	return shipment, nil
}

// pendingShipment returns the NOT_CREATED row for the requested sequence,
// creating it when needed.
func (s *ShipmentService) pendingShipment(ctx context.Context, orderID, lineID uuid.UUID, requested *int) (*models.Shipment, error) {
	var seq int
	if requested != nil {
		if *requested < 1 {
			return nil, apperr.Validation("sequence index must be at least 1", "sequence_index")
		}
		seq = *requested
	} else {
		last, err := s.shipments.MaxSequence(ctx, lineID)
		if err != nil {
			return nil, internal("next sequence", err)
		}
		seq = last + 1
	}

	existing, err := s.shipments.FindByLineAndSequence(ctx, lineID, seq)
	switch {
	case err == nil:
		if existing.Status == models.ShipmentBooked {
			return nil, apperr.Conflict("shipment is already booked").
				WithDetail("awb", existing.AWB).
				WithDetail("sequence_index", seq)
		}
		return existing, nil
	case !errors.Is(err, repository.ErrNotFound):
		return nil, internal("load shipment", err)
	}

	shipment := &models.Shipment{
		OrderID:       orderID,
		OrderLineID:   lineID,
		SequenceIndex: seq,
		Status:        models.ShipmentNotCreated,
	}
	if err := s.shipments.Create(ctx, shipment); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperr.Conflict("shipment is being dispatched").WithDetail("sequence_index", seq)
		}
		return nil, internal("create shipment", err)
	}
	return shipment, nil
}

func (s *ShipmentService) book(ctx context.Context, payload BookingPayload) (*CarrierBooking, error) {
	token, err := s.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}
	booking, err := s.carrier.Book(ctx, token, payload)

	var status *CarrierStatusError
	if errors.As(err, &status) && status.Status == http.StatusUnauthorized {
		s.logger.Info("carrier rejected token, logging in again")
		s.tokens.Invalidate()
		if token, err = s.tokens.Token(ctx); err != nil {
			return nil, err
		}
		booking, err = s.carrier.Book(ctx, token, payload)
	}
	return booking, err
}

// ListForOrder returns the shipments of an order the caller may see.
func (s *ShipmentService) ListForOrder(ctx context.Context, id access.Identity, orderID uuid.UUID) ([]models.Shipment, error) {
	if err := id.RequireUser(); err != nil {
		return nil, err
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, notFound(err, "order")
	}
	if err := id.CanAccess(order.UserID); err != nil {
		return nil, err
	}
	list, err := s.shipments.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, internal("list shipments", err)
	}
	return list, nil
}

func bookingError(err error) *apperr.Error {
	if appErr, ok := apperr.As(err); ok {
		return appErr
	}
	var status *CarrierStatusError
	if errors.As(err, &status) {
		e := apperr.Upstream(carrierProvider, "booking returned no AWB", status.Body, err).WithDetail("status", status.Status)
		e.Retryable = status.Status >= 500
		return e
	}
	return apperr.Upstream(carrierProvider, "booking failed", nil, err)
}
