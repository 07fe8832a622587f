package services

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/example/storefront/internal/access"
	"github.com/example/storefront/internal/apperr"
	"github.com/example/storefront/internal/models"
	"github.com/example/storefront/internal/repository"
	"github.com/example/storefront/internal/telemetry"
)

// CartService manages the per-user cart ledger. Mutations are last-write-wins
// per entry; there is no version token.
type CartService struct {
	carts    repository.CartRepository
	products repository.ProductRepository
	pricing  Pricing
	metrics  *telemetry.Metrics
	logger   *slog.Logger
}

func NewCartService(carts repository.CartRepository, products repository.ProductRepository, pricing Pricing, metrics *telemetry.Metrics, logger *slog.Logger) *CartService {
	return &CartService{
		carts:    carts,
		products: products,
		pricing:  pricing,
		metrics:  metrics,
		logger:   orDiscard(logger),
	}
}

// CartLine is a cart entry with its display data and computed totals.
type CartLine struct {
	ID          uuid.UUID       `json:"id"`
	VariantID   uuid.UUID       `json:"variant_id"`
	ProductID   uuid.UUID       `json:"product_id"`
	ProductName string          `json:"product_name"`
	Slug        string          `json:"slug"`
	Size        string          `json:"size"`
	SKU         string          `json:"sku"`
	Images      []string        `json:"images"`
	Quantity    int             `json:"quantity"`
	Stock       int             `json:"stock"`
	Available   bool            `json:"available"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	LineTotal   decimal.Decimal `json:"line_total"`
}

type CartView struct {
	Items []CartLine `json:"items"`
	Quote
}

func (s *CartService) List(ctx context.Context, id access.Identity) (*CartView, error) {
	if err := id.RequireUser(); err != nil {
		return nil, err
	}
	entries, err := s.carts.ListByUser(ctx, id.UserID)
	if err != nil {
		return nil, internal("list cart", err)
	}

	view := &CartView{Items: make([]CartLine, 0, len(entries))}
	for _, e := range entries {
		line := CartLine{ID: e.ID, VariantID: e.VariantID, Quantity: e.Quantity}
		if v := e.Variant; v != nil {
			line.Size = v.Size
			line.SKU = v.SKU
			line.Stock = v.Stock
			line.Available = v.Available() && v.Stock >= e.Quantity
			line.UnitPrice = v.UnitPrice()
			line.LineTotal = line.UnitPrice.Mul(decimal.NewFromInt(int64(e.Quantity)))
			if p := v.Product; p != nil {
				line.ProductID = p.ID
				line.ProductName = p.Name
				line.Slug = p.Slug
				line.Images = p.Images
			}
		}
		view.Items = append(view.Items, line)
	}
	view.Quote = s.pricing.Quote(s.pricing.Subtotal(entries))
	return view, nil
}

// Add puts qty units of a variant in the caller's cart, creating the entry or
// incrementing the existing one. Nothing changes when the stock check fails.
func (s *CartService) Add(ctx context.Context, id access.Identity, variantID uuid.UUID, qty int) (*models.CartEntry, error) {
	if err := id.RequireUser(); err != nil {
		return nil, err
	}
	if qty < 1 {
		return nil, apperr.Validation("quantity must be at least 1", "quantity")
	}

	variant, err := s.products.FindVariant(ctx, variantID)
	if err != nil {
		return nil, notFound(err, "variant")
	}
	if !variant.Available() {
		return nil, apperr.NotFound("variant")
	}

	existing, err := s.carts.FindByUserAndVariant(ctx, id.UserID, variantID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		existing = nil
	case err != nil:
		return nil, internal("load cart entry", err)
	}

	total := qty
	if existing != nil {
		total += existing.Quantity
	}
	if err := checkStock(variant, total); err != nil {
		return nil, err
	}

	if existing != nil {
		if err := s.carts.UpdateQuantity(ctx, existing.ID, total); err != nil {
			return nil, notFound(err, "cart entry")
		}
		existing.Quantity = total
		existing.Variant = variant
		s.metrics.CartMutation(ctx, "increment")
		return existing, nil
	}

	entry := &models.CartEntry{UserID: id.UserID, VariantID: variantID, Quantity: qty}
	if err := s.carts.Create(ctx, entry); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperr.Conflict("variant is already in the cart")
		}
		return nil, internal("create cart entry", err)
	}
	entry.Variant = variant
	s.metrics.CartMutation(ctx, "add")
	s.logger.Debug("cart entry added", "user_id", id.UserID, "variant_id", variantID, "quantity", qty)
	return entry, nil
}

// Update sets the quantity of an entry the caller owns.
func (s *CartService) Update(ctx context.Context, id access.Identity, entryID uuid.UUID, qty int) (*models.CartEntry, error) {
	if err := id.RequireUser(); err != nil {
		return nil, err
	}
	if qty < 1 {
		return nil, apperr.Validation("quantity must be at least 1", "quantity")
	}

	entry, err := s.ownedEntry(ctx, id, entryID)
	if err != nil {
		return nil, err
	}
	if entry.Variant == nil || !entry.Variant.Available() {
		return nil, apperr.NotFound("variant")
	}
	if err := checkStock(entry.Variant, qty); err != nil {
		return nil, err
	}

	if err := s.carts.UpdateQuantity(ctx, entry.ID, qty); err != nil {
		return nil, notFound(err, "cart entry")
	}
	entry.Quantity = qty
	s.metrics.CartMutation(ctx, "update")
	return entry, nil
}

// Remove deletes an entry the caller owns.
func (s *CartService) Remove(ctx context.Context, id access.Identity, entryID uuid.UUID) error {
	if err := id.RequireUser(); err != nil {
		return err
	}
	entry, err := s.ownedEntry(ctx, id, entryID)
	if err != nil {
		return err
	}
	if err := s.carts.Delete(ctx, entry.ID); err != nil {
		return notFound(err, "cart entry")
	}
	s.metrics.CartMutation(ctx, "remove")
	return nil
}

func (s *CartService) ownedEntry(ctx context.Context, id access.Identity, entryID uuid.UUID) (*models.CartEntry, error) {
	entry, err := s.carts.FindByID(ctx, entryID)
	if err != nil {
		return nil, notFound(err, "cart entry")
	}
	if err := id.CanAccess(entry.UserID); err != nil {
		return nil, err
	}
	return entry, nil
}

// checkStock fails when qty units of v cannot be sold right now.
func checkStock(v *models.Variant, qty int) error {
	if v.Stock <= 0 {
		return apperr.OutOfStock(v.SKU)
	}
	if qty > v.Stock {
		return apperr.InsufficientStock(v.SKU, v.Stock)
	}
	return nil
}
