package services

import (
	"github.com/shopspring/decimal"

	"github.com/example/storefront/internal/models"
)

// Pricing computes order totals from cart contents.
type Pricing struct {
	// FreeShippingThreshold is the subtotal from which delivery is free.
	FreeShippingThreshold decimal.Decimal
	FlatDeliveryFee       decimal.Decimal
	Currency              string
}

type Quote struct {
	Subtotal       decimal.Decimal `json:"subtotal"`
	DeliveryCharge decimal.Decimal `json:"delivery_charge"`
	Total          decimal.Decimal `json:"total"`
	Currency       string          `json:"currency"`
}

// Subtotal sums unit price times quantity. Entries must have their variant
// and product loaded.
func (p Pricing) Subtotal(entries []models.CartEntry) decimal.Decimal {
	sum := decimal.Zero
	for _, e := range entries {
		if e.Variant == nil {
			continue
		}
		sum = sum.Add(e.Variant.UnitPrice().Mul(decimal.NewFromInt(int64(e.Quantity))))
	}
	return sum
}

// Quote adds delivery to subtotal. A subtotal equal to the threshold ships free.
func (p Pricing) Quote(subtotal decimal.Decimal) Quote {
	delivery := p.FlatDeliveryFee
	if subtotal.GreaterThanOrEqual(p.FreeShippingThreshold) {
		delivery = decimal.Zero
	}
	return Quote{
		Subtotal:       subtotal,
		DeliveryCharge: delivery,
		Total:          subtotal.Add(delivery),
		Currency:       p.Currency,
	}
}

// minorUnits converts an amount to the smallest currency unit (paise, cents).
func minorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}
