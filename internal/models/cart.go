package models

import "github.com/google/uuid"

// CartEntry is one (user, variant, quantity) row of a shopping cart.
type CartEntry struct {
	BaseModel
	UserID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_cart_user_variant" json:"user_id"`
	VariantID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_cart_user_variant" json:"variant_id"`
	Variant   *Variant  `json:"variant,omitempty"`
	Quantity  int       `gorm:"not null" json:"quantity"`
}
