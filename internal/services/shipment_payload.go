package services

import (
	"fmt"
	"strings"

	"github.com/example/storefront/internal/config"
	"github.com/example/storefront/internal/models"
)

// Parcel defaults used when a variant has no measurements recorded.
const (
	defaultWeightGrams = 500
	defaultDimensionCm = 10
)

const (
	PaymentTypeCOD     = "cod"
	PaymentTypePrepaid = "prepaid"
)

// BookingPayload is the carrier's shipment booking request.
type BookingPayload struct {
	OrderNumber       string        `json:"order_number"`
	PaymentType       string        `json:"payment_type"`
	OrderAmount       float64       `json:"order_amount"`
	ShippingCharges   float64       `json:"shipping_charges"`
	CollectableAmount float64       `json:"collectable_amount"`
	PackageWeight     int           `json:"package_weight"`
	PackageLength     int           `json:"package_length"`
	PackageBreadth    int           `json:"package_breadth"`
	PackageHeight     int           `json:"package_height"`
	RequestAutoPickup string        `json:"request_auto_pickup"`
	Consignee         BookingParty  `json:"consignee"`
	Pickup            BookingPickup `json:"pickup"`
	OrderItems        []BookingItem `json:"order_items"`
}

type BookingParty struct {
	Name     string `json:"name"`
	Address  string `json:"address"`
	Address2 string `json:"address_2"`
	City     string `json:"city"`
	State    string `json:"state"`
	Pincode  string `json:"pincode"`
	Phone    string `json:"phone"`
}

type BookingPickup struct {
	WarehouseName string `json:"warehouse_name"`
	Name          string `json:"name"`
	Address       string `json:"address"`
	City          string `json:"city"`
	State         string `json:"state"`
	Pincode       string `json:"pincode"`
	Phone         string `json:"phone"`
}

type BookingItem struct {
	Name  string  `json:"name"`
	Qty   string  `json:"qty"`
	Price float64 `json:"price"`
	SKU   string  `json:"sku"`
}

// BuildBookingPayload assembles the booking request for one parcel holding
// every unit of an order line. variant may be nil when the catalog row is
// gone; default measurements are used then.
func BuildBookingPayload(order *models.Order, line models.OrderLine, variant *models.Variant, seq int, pickup config.Pickup) BookingPayload {
	weight, length, breadth, height := defaultWeightGrams, defaultDimensionCm, defaultDimensionCm, defaultDimensionCm
	if variant != nil {
		weight = positiveOr(variant.WeightGrams, weight)
		length = positiveOr(variant.LengthCm, length)
		breadth = positiveOr(variant.BreadthCm, breadth)
		height = positiveOr(variant.HeightCm, height)
	}
	qty := line.Quantity
	if qty < 1 {
		qty = 1
	}

	paymentType := PaymentTypePrepaid
	collectable := 0.0
	if order.PaymentMethod == models.PaymentCOD {
		paymentType = PaymentTypeCOD
		collectable = order.Total.InexactFloat64()
	}

	addr := order.ShippingAddress
	name := line.ProductName
	if line.VariantSize != "" {
		name += " " + line.VariantSize
	}

	return BookingPayload{
		OrderNumber:       shipmentOrderNumber(order.OrderNumber, line, seq),
		PaymentType:       paymentType,
		OrderAmount:       line.LineTotal().InexactFloat64(),
		ShippingCharges:   order.DeliveryCharge.InexactFloat64(),
		CollectableAmount: collectable,
		PackageWeight:     weight * qty,
		PackageLength:     length,
		PackageBreadth:    breadth,
		PackageHeight:     height * qty,
		RequestAutoPickup: "yes",
		Consignee: BookingParty{
			Name:     addr.Name,
			Address:  addr.Line1,
			Address2: addr.Line2,
			City:     addr.City,
			State:    addr.State,
			Pincode:  addr.PostalCode,
			Phone:    addr.Phone,
		},
		Pickup: BookingPickup{
			WarehouseName: pickup.WarehouseName,
			Name:          pickup.Name,
			Address:       pickup.Address,
			City:          pickup.City,
			State:         pickup.State,
			Pincode:       pickup.Pincode,
			Phone:         pickup.Phone,
		},
		OrderItems: []BookingItem{{
			Name:  strings.TrimSpace(name),
			Qty:   fmt.Sprint(qty),
			Price: line.PriceAtPurchase.InexactFloat64(),
			SKU:   line.SKU,
		}},
	}
}

// shipmentOrderNumber is unique per (line, sequence) so the carrier never
// sees the same reference twice for different parcels.
func shipmentOrderNumber(orderNumber string, line models.OrderLine, seq int) string {
	lineShort := strings.ReplaceAll(line.ID.String(), "-", "")[:8]
	return fmt.Sprintf("%s-%s-%d", orderNumber, lineShort, seq)
}

func positiveOr(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}
