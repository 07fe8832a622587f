package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/example/storefront/internal/apperr"
	"github.com/example/storefront/internal/middleware"
	"github.com/example/storefront/internal/repository"
	"github.com/example/storefront/internal/services"
	"github.com/example/storefront/internal/utils"
)

// ProductHandler serves the catalog.
type ProductHandler struct {
	catalog *services.CatalogService
}

// NewProductHandler constructs ProductHandler.
func NewProductHandler(catalog *services.CatalogService) *ProductHandler {
	return &ProductHandler{catalog: catalog}
}

// ListProducts returns paginated products, optionally filtered by ?search=.
func (h *ProductHandler) ListProducts(c *fiber.Ctx) error {
	pg := utils.ParsePagination(c)
	page, err := h.catalog.List(c.UserContext(), middleware.CurrentIdentity(c),
		c.Query("search"), c.QueryBool("include_deleted"),
		repository.Page{Limit: pg.Limit, Offset: pg.Offset})
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    page.Products,
		"pagination": fiber.Map{
			"current_page":   pg.Page,
			"items_per_page": pg.Limit,
			"total_items":    page.Total,
		},
	})
}

// GetProduct loads a product with its variants.
func (h *ProductHandler) GetProduct(c *fiber.Ctx) error {
	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}
	product, err := h.catalog.Get(c.UserContext(), middleware.CurrentIdentity(c), id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": product})
}

// CreateProduct adds a product with optional variants. Admin only.
func (h *ProductHandler) CreateProduct(c *fiber.Ctx) error {
	var req services.ProductInput
	if err := parseBody(c, &req); err != nil {
		return err
	}
	product, err := h.catalog.Create(c.UserContext(), middleware.CurrentIdentity(c), req)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": product})
}

// CreateVariant adds a variant to a product. Admin only.
func (h *ProductHandler) CreateVariant(c *fiber.Ctx) error {
	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}
	var req services.VariantInput
	if err := parseBody(c, &req); err != nil {
		return err
	}
	variant, err := h.catalog.AddVariant(c.UserContext(), middleware.CurrentIdentity(c), id, req)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": variant})
}

type stockRequest struct {
	Stock *int `json:"stock"`
}

// SetStock overwrites a variant's stock count. Admin only.
func (h *ProductHandler) SetStock(c *fiber.Ctx) error {
	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}
	var req stockRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if req.Stock == nil {
		return apperr.Validation("stock is required", "stock")
	}
	if err := h.catalog.SetStock(c.UserContext(), middleware.CurrentIdentity(c), id, *req.Stock); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": fiber.Map{"variant_id": id, "stock": *req.Stock}})
}

// DeleteProduct soft-deletes a product. Admin only.
func (h *ProductHandler) DeleteProduct(c *fiber.Ctx) error {
	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}
	if err := h.catalog.Delete(c.UserContext(), middleware.CurrentIdentity(c), id); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true})
}
