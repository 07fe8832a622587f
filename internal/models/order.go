package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PaymentMethod string

const (
	PaymentCOD    PaymentMethod = "COD"
	PaymentOnline PaymentMethod = "ONLINE"
)

// Valid reports whether m is a supported payment method.
func (m PaymentMethod) Valid() bool {
	return m == PaymentCOD || m == PaymentOnline
}

type OrderStatus string

const (
	OrderPending        OrderStatus = "PENDING"
	OrderPaymentPending OrderStatus = "PAYMENT_PENDING"
	OrderProcessing     OrderStatus = "PROCESSING"
	OrderShipped        OrderStatus = "SHIPPED"
	OrderDelivered      OrderStatus = "DELIVERED"
	OrderCancelled      OrderStatus = "CANCELLED"
)

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderPending:        {OrderPaymentPending, OrderProcessing, OrderCancelled},
	OrderPaymentPending: {OrderProcessing, OrderCancelled},
	OrderProcessing:     {OrderShipped, OrderCancelled},
	OrderShipped:        {OrderDelivered},
}

// CanTransition reports whether an order may move from s to next.
func (s OrderStatus) CanTransition(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Order is an immutable snapshot of a checkout. Only the status, paid flag and
// gateway references change after creation.
type Order struct {
	BaseModel
	UserID           uuid.UUID       `gorm:"type:uuid;index;not null" json:"user_id"`
	OrderNumber      string          `gorm:"uniqueIndex;not null" json:"order_number"`
	ShippingAddress  Address         `gorm:"embedded;embeddedPrefix:ship_" json:"shipping_address"`
	PaymentMethod    PaymentMethod   `gorm:"type:varchar(16);not null" json:"payment_method"`
	Subtotal         decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"subtotal"`
	DeliveryCharge   decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"delivery_charge"`
	Total            decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"total"`
	Currency         string          `gorm:"type:varchar(3);not null" json:"currency"`
	Status           OrderStatus     `gorm:"type:varchar(32);index;not null" json:"status"`
	IsPaid           bool            `gorm:"not null;default:false" json:"is_paid"`
	GatewayOrderID   string          `gorm:"index" json:"gateway_order_id,omitempty"`
	GatewayPaymentID string          `json:"gateway_payment_id,omitempty"`
	PlacedAt         time.Time       `json:"placed_at"`
	Lines            []OrderLine     `json:"lines,omitempty"`
}

// LinesTotal sums price at purchase times quantity over every line.
func (o Order) LinesTotal() decimal.Decimal {
	sum := decimal.Zero
	for _, l := range o.Lines {
		sum = sum.Add(l.LineTotal())
	}
	return sum
}

// Line returns the order line with the given id.
func (o Order) Line(id uuid.UUID) (OrderLine, bool) {
	for _, l := range o.Lines {
		if l.ID == id {
			return l, true
		}
	}
	return OrderLine{}, false
}

// OrderLine records what was bought and the unit price captured at checkout.
type OrderLine struct {
	BaseModel
	OrderID         uuid.UUID       `gorm:"type:uuid;index;not null" json:"order_id"`
	ProductID       uuid.UUID       `gorm:"type:uuid;not null" json:"product_id"`
	VariantID       uuid.UUID       `gorm:"type:uuid;not null" json:"variant_id"`
	ProductName     string          `json:"product_name"`
	VariantSize     string          `json:"variant_size"`
	SKU             string          `json:"sku"`
	Quantity        int             `gorm:"not null" json:"quantity"`
	PriceAtPurchase decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"price_at_purchase"`
}

// LineTotal is the price at purchase multiplied by the quantity.
func (l OrderLine) LineTotal() decimal.Decimal {
	return l.PriceAtPurchase.Mul(decimal.NewFromInt(int64(l.Quantity)))
}
