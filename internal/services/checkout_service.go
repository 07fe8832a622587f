package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/example/storefront/internal/access"
	"github.com/example/storefront/internal/apperr"
	"github.com/example/storefront/internal/models"
	"github.com/example/storefront/internal/repository"
	"github.com/example/storefront/internal/telemetry"
)

type CheckoutInput struct {
	Address       models.Address       `json:"address"`
	PaymentMethod models.PaymentMethod `json:"payment_method"`
}

// CheckoutResult is the placed order and, for online payment, the gateway
// order the client pays against.
type CheckoutResult struct {
	Order   *models.Order     `json:"order"`
	Payment *InitiatedPayment `json:"payment,omitempty"`
}

// CheckoutService turns a cart into an order.
type CheckoutService struct {
	tx       repository.TxManager
	payments *PaymentService
	pricing  Pricing
	notifier *Notifier
	metrics  *telemetry.Metrics
	logger   *slog.Logger
	now      func() time.Time
}

func NewCheckoutService(tx repository.TxManager, payments *PaymentService, pricing Pricing, notifier *Notifier, metrics *telemetry.Metrics, logger *slog.Logger) *CheckoutService {
	return &CheckoutService{
		tx:       tx,
		payments: payments,
		pricing:  pricing,
		notifier: notifier,
		metrics:  metrics,
		logger:   orDiscard(logger),
		now:      time.Now,
	}
}

// Checkout validates the input, then in one transaction saves the default
// address if missing, re-reads the cart, reserves stock, creates the order
// with its lines and empties the cart. Any failure leaves cart, stock and
// orders as they were. Online orders get a gateway order after commit; if
// that call fails the order stays PENDING and the error carries its id.
func (s *CheckoutService) Checkout(ctx context.Context, id access.Identity, in CheckoutInput) (_ *CheckoutResult, err error) {
	ctx, span := tracer.Start(ctx, "checkout.Checkout")
	defer func() { endSpan(span, err) }()

	if err := id.RequireUser(); err != nil {
		return nil, err
	}
	if !in.PaymentMethod.Valid() {
		return nil, apperr.Validation("payment method must be COD or ONLINE", "payment_method")
	}
	addr := in.Address.Normalized()
	if missing := addr.MissingFields(); len(missing) > 0 {
		return nil, apperr.Validation("shipping address is incomplete", missing...)
	}

	var (
		order *models.Order
		user  *models.User
	)
	err = s.tx.WithinTx(ctx, func(r repository.TxRepos) error {
		var err error
		user, err = r.Users().FindByID(ctx, id.UserID)
		if err != nil {
			return notFound(err, "user")
		}
		if user.DefaultAddress.IsZero() {
			if err := r.Users().SetDefaultAddress(ctx, user.ID, addr); err != nil {
				return internal("save default address", err)
			}
			user.DefaultAddress = addr
		}

		entries, err := r.Carts().ListByUser(ctx, user.ID)
		if err != nil {
			return internal("load cart", err)
		}
		if len(entries) == 0 {
			return apperr.EmptyCart()
		}

		order, err = s.buildOrder(user.ID, addr, in.PaymentMethod, entries)
		if err != nil {
			return err
		}

		for _, line := range order.Lines {
			ok, err := r.Products().DecrementStock(ctx, line.VariantID, line.Quantity)
			if err != nil {
				return internal("reserve stock", err)
			}
			if !ok {
				return stockShortfall(ctx, r.Products(), line)
			}
		}

		if err := r.Orders().Create(ctx, order); err != nil {
			return internal("create order", err)
		}
		if _, err := r.Carts().ClearByUser(ctx, user.ID); err != nil {
			return internal("clear cart", err)
		}
		return nil
	})
	if err != nil {
		s.metrics.CheckoutFailed(ctx, apperr.KindOf(err).String())
		return nil, err
	}

	span.SetAttributes(
		attribute.String("order.id", order.ID.String()),
		attribute.String("order.payment_method", string(order.PaymentMethod)),
	)
	s.metrics.OrderPlaced(ctx, string(order.PaymentMethod))
	s.logger.Info("order placed",
		"order_id", order.ID,
		"order_number", order.OrderNumber,
		"user_id", order.UserID,
		"total", order.Total.String(),
		"payment_method", order.PaymentMethod,
	)
	s.notifier.OrderPlaced(ctx, user, order)

	result := &CheckoutResult{Order: order}
	if order.PaymentMethod == models.PaymentOnline {
		payment, err := s.payments.start(ctx, order)
		if err != nil {
			return result, err
		}
		result.Payment = payment
	}
	return result, nil
}

// buildOrder snapshots the cart into an order. Prices are copied into the
// lines and never recomputed.
func (s *CheckoutService) buildOrder(userID uuid.UUID, addr models.Address, method models.PaymentMethod, entries []models.CartEntry) (*models.Order, error) {
	now := s.now().UTC()
	order := &models.Order{
		UserID:          userID,
		OrderNumber:     newOrderNumber(now),
		ShippingAddress: addr,
		PaymentMethod:   method,
		Currency:        s.pricing.Currency,
		Status:          models.OrderPending,
		PlacedAt:        now,
		Lines:           make([]models.OrderLine, 0, len(entries)),
	}
	if method == models.PaymentCOD {
		order.Status = models.OrderProcessing
	}

	for _, e := range entries {
		v := e.Variant
		if v == nil || !v.Available() {
			return nil, apperr.NotFound("variant").WithDetail("variant_id", e.VariantID.String())
		}
		if err := checkStock(v, e.Quantity); err != nil {
			return nil, err
		}
		line := models.OrderLine{
			VariantID:       v.ID,
			ProductID:       v.ProductID,
			VariantSize:     v.Size,
			SKU:             v.SKU,
			Quantity:        e.Quantity,
			PriceAtPurchase: v.UnitPrice(),
		}
		if v.Product != nil {
			line.ProductName = v.Product.Name
		}
		order.Lines = append(order.Lines, line)
	}

	quote := s.pricing.Quote(order.LinesTotal())
	order.Subtotal = quote.Subtotal
	order.DeliveryCharge = quote.DeliveryCharge
	order.Total = quote.Total
	return order, nil
}

// stockShortfall explains a failed decrement with the stock left now.
func stockShortfall(ctx context.Context, products repository.ProductRepository, line models.OrderLine) error {
	v, err := products.FindVariant(ctx, line.VariantID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.NotFound("variant")
		}
		return internal("reload variant", err)
	}
	return checkStockOrShort(v, line.Quantity)
}

func checkStockOrShort(v *models.Variant, qty int) error {
	if err := checkStock(v, qty); err != nil {
		return err
	}
	return apperr.InsufficientStock(v.SKU, v.Stock)
}

// newOrderNumber returns ORD-<yyyymmdd>-<8 hex>.
func newOrderNumber(now time.Time) string {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return fmt.Sprintf("ORD-%s-%08x", now.Format("20060102"), now.UnixNano()&0xffffffff)
	}
	return fmt.Sprintf("ORD-%s-%s", now.Format("20060102"), hex.EncodeToString(b[:]))
}
