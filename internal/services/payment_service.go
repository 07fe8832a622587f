package services

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/example/storefront/internal/access"
	"github.com/example/storefront/internal/apperr"
	"github.com/example/storefront/internal/models"
	"github.com/example/storefront/internal/repository"
	"github.com/example/storefront/internal/telemetry"
)

// PaymentCallback is what the gateway hands the customer after payment.
type PaymentCallback struct {
	OrderID        uuid.UUID `json:"order_id"`
	PaymentID      string    `json:"payment_id"`
	GatewayOrderID string    `json:"gateway_order_id"`
	Signature      string    `json:"signature"`
}

// InitiatedPayment is returned to the client to open the gateway checkout.
type InitiatedPayment struct {
	OrderID        uuid.UUID `json:"order_id"`
	GatewayOrderID string    `json:"gateway_order_id"`
	Amount         int64     `json:"amount"`
	Currency       string    `json:"currency"`
	KeyID          string    `json:"key_id,omitempty"`
}

// PaymentService creates gateway orders and verifies payment callbacks.
type PaymentService struct {
	orders   repository.OrderRepository
	users    repository.UserRepository
	gateway  PaymentGateway
	keyID    string
	secret   string
	notifier *Notifier
	metrics  *telemetry.Metrics
	logger   *slog.Logger
}

func NewPaymentService(orders repository.OrderRepository, users repository.UserRepository, gateway PaymentGateway, keyID, secret string, notifier *Notifier, metrics *telemetry.Metrics, logger *slog.Logger) *PaymentService {
	return &PaymentService{
		orders:   orders,
		users:    users,
		gateway:  gateway,
		keyID:    keyID,
		secret:   secret,
		notifier: notifier,
		metrics:  metrics,
		logger:   orDiscard(logger),
	}
}

// Sign returns hex(HMAC-SHA256(secret, gatewayOrderID|paymentID)).
func Sign(secret, gatewayOrderID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(gatewayOrderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

func (s *PaymentService) validSignature(cb PaymentCallback) bool {
	expected := Sign(s.secret, cb.GatewayOrderID, cb.PaymentID)
	return hmac.Equal([]byte(expected), []byte(cb.Signature))
}

// Verify checks the callback signature and marks the order paid. A given
// order can be marked paid once; replays fail with Conflict.
func (s *PaymentService) Verify(ctx context.Context, id access.Identity, cb PaymentCallback) (_ *models.Order, err error) {
	ctx, span := tracer.Start(ctx, "payment.Verify", trace.WithAttributes(attribute.String("order.id", cb.OrderID.String())))
	defer func() { endSpan(span, err) }()

	if err := id.RequireUser(); err != nil {
		return nil, err
	}
	var missing []string
	if cb.OrderID == uuid.Nil {
		missing = append(missing, "order_id")
	}
	if strings.TrimSpace(cb.PaymentID) == "" {
		missing = append(missing, "payment_id")
	}
	if strings.TrimSpace(cb.GatewayOrderID) == "" {
		missing = append(missing, "gateway_order_id")
	}
	if cb.Signature == "" {
		missing = append(missing, "signature")
	}
	if len(missing) > 0 {
		return nil, apperr.Validation("payment callback is incomplete", missing...)
	}

	order, err := s.orders.FindByID(ctx, cb.OrderID)
	if err != nil {
		return nil, notFound(err, "order")
	}
	if err := id.CanAccess(order.UserID); err != nil {
		return nil, err
	}

	if order.GatewayOrderID == "" || !hmac.Equal([]byte(order.GatewayOrderID), []byte(cb.GatewayOrderID)) || !s.validSignature(cb) {
		s.metrics.PaymentVerified(ctx, "invalid_signature")
		s.logger.Warn("payment signature rejected", "order_id", order.ID, "payment_id", cb.PaymentID)
		return nil, apperr.InvalidSignature()
	}
	if order.IsPaid {
		s.metrics.PaymentVerified(ctx, "replay")
		return nil, apperr.Conflict("order is already paid")
	}
	if order.Status == models.OrderCancelled {
		return nil, apperr.Conflict("order is cancelled")
	}

	changed, err := s.orders.MarkPaid(ctx, order.ID, cb.PaymentID, models.OrderProcessing)
	if err != nil {
		return nil, internal("mark order paid", err)
	}
	if !changed {
		s.metrics.PaymentVerified(ctx, "replay")
		return nil, apperr.Conflict("order is already paid")
	}

	order.IsPaid = true
	order.Status = models.OrderProcessing
	order.GatewayPaymentID = cb.PaymentID
	s.metrics.PaymentVerified(ctx, "paid")
	s.logger.Info("order paid", "order_id", order.ID, "order_number", order.OrderNumber, "payment_id", cb.PaymentID)

	s.notifier.OrderPaid(ctx, s.owner(ctx, order.UserID), order, cb.PaymentID)
	return order, nil
}

// Initiate creates (or recreates) the gateway order for an unpaid online order.
func (s *PaymentService) Initiate(ctx context.Context, id access.Identity, orderID uuid.UUID) (*InitiatedPayment, error) {
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
	return s.start(ctx, order)
}

func (s *PaymentService) start(ctx context.Context, order *models.Order) (_ *InitiatedPayment, err error) {
	ctx, span := tracer.Start(ctx, "payment.Initiate", trace.WithAttributes(attribute.String("order.id", order.ID.String())))
	defer func() { endSpan(span, err) }()

	switch {
	case order.PaymentMethod != models.PaymentOnline:
		return nil, apperr.Validation("order is not paid online", "payment_method")
	case order.IsPaid:
		return nil, apperr.Conflict("order is already paid")
	case order.Status == models.OrderCancelled:
		return nil, apperr.Conflict("order is cancelled")
	}

	gwOrder, err := s.gateway.CreateOrder(ctx, GatewayOrderRequest{
		Amount:   minorUnits(order.Total),
		Currency: order.Currency,
		Receipt:  order.OrderNumber,
	})
	if err != nil {
		s.logger.Error("gateway order creation failed", "order_id", order.ID, "error", err)
		upstream, ok := apperr.As(err)
		if !ok {
			upstream = apperr.Upstream(gatewayProvider, "create order failed", nil, err)
		}
		return nil, upstream.WithDetail("order_id", order.ID.String())
	}

	if err := s.orders.SetGatewayOrder(ctx, order.ID, gwOrder.ID, models.OrderPaymentPending); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.Conflict("order is already paid")
		}
		return nil, internal("store gateway order", err)
	}
	order.GatewayOrderID = gwOrder.ID
	order.Status = models.OrderPaymentPending

	return &InitiatedPayment{
		OrderID:        order.ID,
		GatewayOrderID: gwOrder.ID,
		Amount:         gwOrder.Amount,
		Currency:       gwOrder.Currency,
		KeyID:          s.keyID,
	}, nil
}

func (s *PaymentService) owner(ctx context.Context, userID uuid.UUID) *models.User {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		s.logger.Warn("load order owner", "user_id", userID, "error", err)
		return nil
	}
	return user
}
