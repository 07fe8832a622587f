package services

import (
	"regexp"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/example/storefront/internal/models"
)

func payloadOrder(method models.PaymentMethod) (*models.Order, models.OrderLine) {
	line := models.OrderLine{
		BaseModel:       models.BaseModel{ID: uuid.MustParse("8f14e45f-ceea-467a-9af6-2b3c1d0e9a11")},
		ProductName:     "Oud Noir",
		VariantSize:     "100ml",
		SKU:             "OUD-100",
		Quantity:        3,
		PriceAtPurchase: decimal.NewFromInt(200),
	}
	order := &models.Order{
		OrderNumber:     "ORD-20240309-deadbeef",
		ShippingAddress: testAddress,
		PaymentMethod:   method,
		Subtotal:        decimal.NewFromInt(600),
		DeliveryCharge:  decimal.NewFromInt(50),
		Total:           decimal.NewFromInt(650),
		Lines:           []models.OrderLine{line},
	}
	return order, line
}

func TestBookingPayloadCOD(t *testing.T) {
	order, line := payloadOrder(models.PaymentCOD)
	v := &models.Variant{WeightGrams: 250, LengthCm: 10, BreadthCm: 6, HeightCm: 4}

	p := BuildBookingPayload(order, line, v, 2, testPickup)

	assert.Equal(t, "ORD-20240309-deadbeef-8f14e45f-2", p.OrderNumber)
	assert.Equal(t, PaymentTypeCOD, p.PaymentType)
	assert.Equal(t, 650.0, p.CollectableAmount)
	assert.Equal(t, 600.0, p.OrderAmount)
	assert.Equal(t, 50.0, p.ShippingCharges)
	assert.Equal(t, 750, p.PackageWeight)
	assert.Equal(t, 10, p.PackageLength)
	assert.Equal(t, 6, p.PackageBreadth)
	assert.Equal(t, 12, p.PackageHeight)
	assert.Equal(t, "yes", p.RequestAutoPickup)
	assert.Equal(t, "Asha Rao", p.Consignee.Name)
	assert.Equal(t, "12 MG Road", p.Consignee.Address)
	assert.Equal(t, "Main", p.Pickup.WarehouseName)
	if assert.Len(t, p.OrderItems, 1) {
		assert.Equal(t, "Oud Noir 100ml", p.OrderItems[0].Name)
		assert.Equal(t, "3", p.OrderItems[0].Qty)
		assert.Equal(t, 200.0, p.OrderItems[0].Price)
		assert.Equal(t, "OUD-100", p.OrderItems[0].SKU)
	}
}

func TestBookingPayloadPrepaidCollectsNothing(t *testing.T) {
	order, line := payloadOrder(models.PaymentOnline)
	p := BuildBookingPayload(order, line, nil, 1, testPickup)

	assert.Equal(t, PaymentTypePrepaid, p.PaymentType)
	assert.Zero(t, p.CollectableAmount)
	// Without a variant the default parcel measurements apply.
	assert.Equal(t, defaultWeightGrams*3, p.PackageWeight)
	assert.Equal(t, defaultDimensionCm, p.PackageLength)
	assert.Equal(t, defaultDimensionCm*3, p.PackageHeight)
	assert.Regexp(t, regexp.MustCompile(`^ORD-20240309-deadbeef-[0-9a-f]{8}-1$`), p.OrderNumber)
}
