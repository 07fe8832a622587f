package services

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/example/storefront/internal/access"
	"github.com/example/storefront/internal/apperr"
	"github.com/example/storefront/internal/models"
	"github.com/example/storefront/internal/repository"
)

// CatalogService serves the storefront catalog and the few admin writes the
// cart needs: products, variants and stock.
type CatalogService struct {
	products repository.ProductRepository
}

func NewCatalogService(products repository.ProductRepository) *CatalogService {
	return &CatalogService{products: products}
}

type ProductPage struct {
	Products []models.Product `json:"products"`
	Total    int64            `json:"total"`
}

// List hides soft-deleted products unless an admin asks for them.
func (s *CatalogService) List(ctx context.Context, id access.Identity, search string, includeDeleted bool, page repository.Page) (*ProductPage, error) {
	filter := repository.ProductFilter{Search: search, Page: page}
	filter.IncludeDeleted = includeDeleted && id.IsAdmin
	products, total, err := s.products.List(ctx, filter)
	if err != nil {
		return nil, internal("list products", err)
	}
	if products == nil {
		products = []models.Product{}
	}
	return &ProductPage{Products: products, Total: total}, nil
}

func (s *CatalogService) Get(ctx context.Context, id access.Identity, productID uuid.UUID) (*models.Product, error) {
	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return nil, notFound(err, "product")
	}
	if product.IsDeleted && !id.IsAdmin {
		return nil, apperr.NotFound("product")
	}
	return product, nil
}

type VariantInput struct {
	Size        string           `json:"size"`
	SKU         string           `json:"sku"`
	Price       *decimal.Decimal `json:"price"`
	Stock       int              `json:"stock"`
	WeightGrams int              `json:"weight_grams"`
	LengthCm    int              `json:"length_cm"`
	BreadthCm   int              `json:"breadth_cm"`
	HeightCm    int              `json:"height_cm"`
}

type ProductInput struct {
	Slug        string          `json:"slug"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	BasePrice   decimal.Decimal `json:"base_price"`
	Images      []string        `json:"images"`
	Variants    []VariantInput  `json:"variants"`
}

func (s *CatalogService) Create(ctx context.Context, id access.Identity, in ProductInput) (*models.Product, error) {
	if err := id.RequireAdmin(); err != nil {
		return nil, err
	}
	in.Slug = strings.TrimSpace(strings.ToLower(in.Slug))
	in.Name = strings.TrimSpace(in.Name)

	var missing []string
	if in.Slug == "" {
		missing = append(missing, "slug")
	}
	if in.Name == "" {
		missing = append(missing, "name")
	}
	if in.BasePrice.IsNegative() {
		missing = append(missing, "base_price")
	}
	if len(missing) > 0 {
		return nil, apperr.Validation("invalid product", missing...)
	}

	product := &models.Product{
		Slug:        in.Slug,
		Name:        in.Name,
		Description: in.Description,
		BasePrice:   in.BasePrice,
		Images:      in.Images,
	}
	for _, v := range in.Variants {
		variant, err := newVariant(v)
		if err != nil {
			return nil, err
		}
		product.Variants = append(product.Variants, *variant)
	}

	if err := s.products.Create(ctx, product); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperr.Conflict("slug is already taken")
		}
		return nil, internal("create product", err)
	}
	return product, nil
}

func (s *CatalogService) AddVariant(ctx context.Context, id access.Identity, productID uuid.UUID, in VariantInput) (*models.Variant, error) {
	if err := id.RequireAdmin(); err != nil {
		return nil, err
	}
	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return nil, notFound(err, "product")
	}
	if product.IsDeleted {
		return nil, apperr.Conflict("product is deleted")
	}
	variant, err := newVariant(in)
	if err != nil {
		return nil, err
	}
	variant.ProductID = product.ID
	if err := s.products.CreateVariant(ctx, variant); err != nil {
		return nil, notFound(err, "product")
	}
	return variant, nil
}

func (s *CatalogService) SetStock(ctx context.Context, id access.Identity, variantID uuid.UUID, stock int) error {
	if err := id.RequireAdmin(); err != nil {
		return err
	}
	if stock < 0 {
		return apperr.Validation("stock must not be negative", "stock")
	}
	if err := s.products.SetStock(ctx, variantID, stock); err != nil {
		return notFound(err, "variant")
	}
	return nil
}

// Delete hides a product and its variants. Orders keep referring to them.
func (s *CatalogService) Delete(ctx context.Context, id access.Identity, productID uuid.UUID) error {
	if err := id.RequireAdmin(); err != nil {
		return err
	}
	if err := s.products.SoftDelete(ctx, productID); err != nil {
		return notFound(err, "product")
	}
	return nil
}

func newVariant(in VariantInput) (*models.Variant, error) {
	var bad []string
	if strings.TrimSpace(in.SKU) == "" {
		bad = append(bad, "sku")
	}
	if in.Stock < 0 {
		bad = append(bad, "stock")
	}
	if in.Price != nil && in.Price.IsNegative() {
		bad = append(bad, "price")
	}
	if len(bad) > 0 {
		return nil, apperr.Validation("invalid variant", bad...)
	}
	return &models.Variant{
		Size:        strings.TrimSpace(in.Size),
		SKU:         strings.TrimSpace(in.SKU),
		Price:       in.Price,
		Stock:       in.Stock,
		WeightGrams: in.WeightGrams,
		LengthCm:    in.LengthCm,
		BreadthCm:   in.BreadthCm,
		HeightCm:    in.HeightCm,
	}, nil
}
