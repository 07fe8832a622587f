package services

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"sync"
	"time"

	"github.com/example/storefront/internal/messaging"
	"github.com/example/storefront/internal/models"
)

// EventPublisher publishes domain events. messaging.Producer implements it.
type EventPublisher interface {
	Publish(ctx context.Context, topic, key string, event any) error
}

const sideEffectTimeout = 15 * time.Second

// Notifier fans order lifecycle changes out to email, the admin Telegram
// chat and the event bus. Every delivery runs in the background and failures
// are only logged. A nil *Notifier does nothing.
type Notifier struct {
	mailer   Mailer
	telegram *TelegramService
	events   EventPublisher
	logger   *slog.Logger
	wg       sync.WaitGroup
}

// NewNotifier accepts nil for any channel that is not configured.
func NewNotifier(mailer Mailer, telegram *TelegramService, events EventPublisher, logger *slog.Logger) *Notifier {
	return &Notifier{
		mailer:   mailer,
		telegram: telegram,
		events:   events,
		logger:   orDiscard(logger),
	}
}

// Wait blocks until every pending delivery has finished.
func (n *Notifier) Wait() {
	if n == nil {
		return
	}
	n.wg.Wait()
}

// WaitContext is Wait bounded by ctx.
func (n *Notifier) WaitContext(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		n.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (n *Notifier) async(ctx context.Context, what string, attrs []any, fn func(ctx context.Context) error) {
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		ctx, cancel := context.WithTimeout(detached(ctx), sideEffectTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			n.logger.Warn(what+" failed", append(attrs, "error", err)...)
		}
	}()
}

func (n *Notifier) mail(ctx context.Context, to, subject, body string, attrs []any) {
	if n.mailer == nil || to == "" {
		return
	}
	n.async(ctx, "email", attrs, func(ctx context.Context) error {
		return n.mailer.Send(ctx, to, subject, body)
	})
}

func (n *Notifier) publish(ctx context.Context, topic, key string, event any, attrs []any) {
	if n.events == nil {
		return
	}
	n.async(ctx, "publish "+topic, attrs, func(ctx context.Context) error {
		return n.events.Publish(ctx, topic, key, event)
	})
}

// OrderPlaced confirms a new order to the customer and the admins.
func (n *Notifier) OrderPlaced(ctx context.Context, user *models.User, order *models.Order) {
	if n == nil {
		return
	}
	attrs := []any{"order_id", order.ID, "order_number", order.OrderNumber}

	if user != nil {
		n.mail(ctx, user.Email, "Order "+order.OrderNumber+" received", orderConfirmationHTML(order), attrs)
	}

	if n.telegram.Enabled() {
		note := OrderNotification{
			OrderNumber:   order.OrderNumber,
			Total:         order.Total,
			Currency:      order.Currency,
			CustomerName:  order.ShippingAddress.Name,
			CustomerPhone: order.ShippingAddress.Phone,
			PaymentMethod: string(order.PaymentMethod),
			City:          order.ShippingAddress.City,
		}
		for _, l := range order.Lines {
			note.Items = append(note.Items, OrderItemNotification{
				Name:     l.ProductName,
				Size:     l.VariantSize,
				Quantity: l.Quantity,
				Price:    l.PriceAtPurchase,
			})
		}
		n.async(ctx, "telegram", attrs, func(ctx context.Context) error {
			return n.telegram.NotifyNewOrder(ctx, note)
		})
	}

	n.publish(ctx, messaging.TopicOrderCreated, order.ID.String(), messaging.OrderCreatedEvent{
		OrderID:       order.ID,
		OrderNumber:   order.OrderNumber,
		UserID:        order.UserID,
		PaymentMethod: string(order.PaymentMethod),
		Total:         order.Total,
		Currency:      order.Currency,
		Lines:         len(order.Lines),
		Timestamp:     order.PlacedAt,
	}, attrs)
}

// OrderPaid reports a verified online payment.
func (n *Notifier) OrderPaid(ctx context.Context, user *models.User, order *models.Order, paymentID string) {
	if n == nil {
		return
	}
	attrs := []any{"order_id", order.ID, "payment_id", paymentID}

	if user != nil {
		body := fmt.Sprintf("<p>We received your payment for order <b>%s</b>.</p><p>Payment reference: %s</p>",
			html.EscapeString(order.OrderNumber), html.EscapeString(paymentID))
		n.mail(ctx, user.Email, "Payment received for "+order.OrderNumber, body, attrs)
	}
	if n.telegram.Enabled() {
		n.async(ctx, "telegram", attrs, func(ctx context.Context) error {
			return n.telegram.NotifyPaymentReceived(ctx, order.OrderNumber, paymentID, order.Total, order.Currency)
		})
	}
	n.publish(ctx, messaging.TopicOrderPaid, order.ID.String(), messaging.OrderPaidEvent{
		OrderID:          order.ID,
		OrderNumber:      order.OrderNumber,
		GatewayOrderID:   order.GatewayOrderID,
		GatewayPaymentID: paymentID,
		Timestamp:        time.Now().UTC(),
	}, attrs)
}

// ShipmentBooked publishes the tracking number of a booked parcel.
func (n *Notifier) ShipmentBooked(ctx context.Context, shipment *models.Shipment) {
	if n == nil {
		return
	}
	attrs := []any{"order_id", shipment.OrderID, "shipment_id", shipment.ID}
	n.publish(ctx, messaging.TopicShipmentBooked, shipment.OrderID.String(), messaging.ShipmentBookedEvent{
		ShipmentID:    shipment.ID,
		OrderID:       shipment.OrderID,
		OrderLineID:   shipment.OrderLineID,
		SequenceIndex: shipment.SequenceIndex,
		AWB:           shipment.AWB,
		Carrier:       shipment.Carrier,
		Timestamp:     time.Now().UTC(),
	}, attrs)
}

func orderConfirmationHTML(order *models.Order) string {
	var rows string
	for _, l := range order.Lines {
		rows += fmt.Sprintf("<tr><td>%s (%s)</td><td>%d</td><td>%s</td></tr>",
			html.EscapeString(l.ProductName), html.EscapeString(l.VariantSize),
			l.Quantity, FormatPrice(l.LineTotal(), order.Currency))
	}
	return fmt.Sprintf(`<h2>Thank you for your order</h2>
<p>Order number: <b>%s</b></p>
<table>%s</table>
<p>Subtotal: %s<br>Delivery: %s<br><b>Total: %s</b></p>`,
		html.EscapeString(order.OrderNumber), rows,
		FormatPrice(order.Subtotal, order.Currency),
		FormatPrice(order.DeliveryCharge, order.Currency),
		FormatPrice(order.Total, order.Currency),
	)
}
