package messaging

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	TopicOrderCreated   = "order.created"
	TopicOrderPaid      = "order.paid"
	TopicShipmentBooked = "shipment.booked"
)

type OrderCreatedEvent struct {
	OrderID       uuid.UUID       `json:"order_id"`
	OrderNumber   string          `json:"order_number"`
	UserID        uuid.UUID       `json:"user_id"`
	PaymentMethod string          `json:"payment_method"`
	Total         decimal.Decimal `json:"total"`
	Currency      string          `json:"currency"`
	Lines         int             `json:"lines"`
	Timestamp     time.Time       `json:"timestamp"`
}

type OrderPaidEvent struct {
	OrderID          uuid.UUID `json:"order_id"`
	OrderNumber      string    `json:"order_number"`
	GatewayOrderID   string    `json:"gateway_order_id"`
	GatewayPaymentID string    `json:"gateway_payment_id"`
	Timestamp        time.Time `json:"timestamp"`
}

type ShipmentBookedEvent struct {
	ShipmentID    uuid.UUID `json:"shipment_id"`
	OrderID       uuid.UUID `json:"order_id"`
	OrderLineID   uuid.UUID `json:"order_line_id"`
	SequenceIndex int       `json:"sequence_index"`
	AWB           string    `json:"awb"`
	Carrier       string    `json:"carrier"`
	Timestamp     time.Time `json:"timestamp"`
}
