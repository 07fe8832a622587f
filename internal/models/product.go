package models

import (
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// Product is a catalog item. Products referenced by orders are never hard-deleted;
// IsDeleted hides them from the storefront instead.
type Product struct {
	BaseModel
	Slug        string          `gorm:"uniqueIndex;not null" json:"slug"`
	Name        string          `gorm:"not null" json:"name"`
	Description string          `json:"description"`
	BasePrice   decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"base_price"`
	Images      pq.StringArray  `gorm:"type:text[]" json:"images"`
	IsDeleted   bool            `gorm:"not null;default:false;index" json:"is_deleted"`
	Variants    []Variant       `json:"variants,omitempty"`
}

// Variant is a purchasable size of a product with its own stock and optional price.
type Variant struct {
	BaseModel
	ProductID   uuid.UUID        `gorm:"type:uuid;index;not null" json:"product_id"`
	Product     *Product         `json:"product,omitempty"`
	Size        string           `json:"size"`
	SKU         string           `gorm:"index" json:"sku"`
	Price       *decimal.Decimal `gorm:"type:numeric(12,2)" json:"price,omitempty"`
	Stock       int              `gorm:"not null;default:0" json:"stock"`
	WeightGrams int              `json:"weight_grams"`
	LengthCm    int              `json:"length_cm"`
	BreadthCm   int              `json:"breadth_cm"`
	HeightCm    int              `json:"height_cm"`
	IsDeleted   bool             `gorm:"not null;default:false" json:"is_deleted"`
}

// UnitPrice returns the variant price override, falling back to the product base price.
// The product must be loaded when the variant has no override.
func (v Variant) UnitPrice() decimal.Decimal {
	if v.Price != nil {
		return *v.Price
	}
	if v.Product != nil {
		return v.Product.BasePrice
	}
	return decimal.Zero
}

// Available reports whether the variant can be sold at all.
func (v Variant) Available() bool {
	if v.IsDeleted {
		return false
	}
	return v.Product == nil || !v.Product.IsDeleted
}
