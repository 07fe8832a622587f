package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/example/storefront/internal/apperr"
	"github.com/example/storefront/internal/middleware"
	"github.com/example/storefront/internal/services"
)

// CartHandler exposes the caller's cart.
type CartHandler struct {
	carts *services.CartService
}

func NewCartHandler(carts *services.CartService) *CartHandler {
	return &CartHandler{carts: carts}
}

func (h *CartHandler) GetCart(c *fiber.Ctx) error {
	view, err := h.carts.List(c.UserContext(), middleware.CurrentIdentity(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": view})
}

type addToCartRequest struct {
	VariantID uuid.UUID `json:"variant_id"`
	// Quantity defaults to 1 when omitted.
	Quantity *int `json:"quantity"`
}

func (h *CartHandler) AddItem(c *fiber.Ctx) error {
	var req addToCartRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if req.VariantID == uuid.Nil {
		return apperr.Validation("variant_id is required", "variant_id")
	}
	qty := 1
	if req.Quantity != nil {
		qty = *req.Quantity
	}
	entry, err := h.carts.Add(c.UserContext(), middleware.CurrentIdentity(c), req.VariantID, qty)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": entry})
}

type updateCartRequest struct {
	Quantity int `json:"quantity"`
}

func (h *CartHandler) UpdateItem(c *fiber.Ctx) error {
	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}
	var req updateCartRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	entry, err := h.carts.Update(c.UserContext(), middleware.CurrentIdentity(c), id, req.Quantity)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": entry})
}

func (h *CartHandler) RemoveItem(c *fiber.Ctx) error {
	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}
	if err := h.carts.Remove(c.UserContext(), middleware.CurrentIdentity(c), id); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true})
}
