package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/example/storefront/internal/apperr"
	"github.com/example/storefront/internal/middleware"
	"github.com/example/storefront/internal/models"
	"github.com/example/storefront/internal/repository"
	"github.com/example/storefront/internal/services"
	"github.com/example/storefront/internal/utils"
)

// OrderHandler manages checkout and order endpoints.
type OrderHandler struct {
	checkout *services.CheckoutService
	orders   *services.OrderService
	payments *services.PaymentService
}

// NewOrderHandler constructs OrderHandler.
func NewOrderHandler(checkout *services.CheckoutService, orders *services.OrderService, payments *services.PaymentService) *OrderHandler {
	return &OrderHandler{checkout: checkout, orders: orders, payments: payments}
}

// Checkout places an order from the caller's cart.
func (h *OrderHandler) Checkout(c *fiber.Ctx) error {
	var req services.CheckoutInput
	if err := parseBody(c, &req); err != nil {
		return err
	}

	result, err := h.checkout.Checkout(c.UserContext(), middleware.CurrentIdentity(c), req)
	if err != nil {
		if result != nil && result.Order != nil {
			// The order exists but the gateway call failed; the client can
			// retry payment initiation with the returned order id.
			if appErr, ok := apperr.As(err); ok {
				appErr.WithDetail("order", result.Order)
			}
		}
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": result})
}

// ListOrders returns the caller's orders.
func (h *OrderHandler) ListOrders(c *fiber.Ctx) error {
	pg := utils.ParsePagination(c)
	page, err := h.orders.List(c.UserContext(), middleware.CurrentIdentity(c),
		models.OrderStatus(c.Query("status")), repository.Page{Limit: pg.Limit, Offset: pg.Offset})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data":    page.Orders,
		"pagination": fiber.Map{
			"current_page":   pg.Page,
			"items_per_page": pg.Limit,
			"total_items":    page.Total,
		},
	})
}

// GetOrder returns one order to its owner or an admin.
func (h *OrderHandler) GetOrder(c *fiber.Ctx) error {
	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}
	order, err := h.orders.Get(c.UserContext(), middleware.CurrentIdentity(c), id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": order})
}

// InitiatePayment (re)creates the gateway order for an unpaid online order.
func (h *OrderHandler) InitiatePayment(c *fiber.Ctx) error {
	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}
	payment, err := h.payments.Initiate(c.UserContext(), middleware.CurrentIdentity(c), id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": payment})
}

// VerifyPayment checks a gateway callback signature and marks the order paid.
func (h *OrderHandler) VerifyPayment(c *fiber.Ctx) error {
	var req services.PaymentCallback
	if err := parseBody(c, &req); err != nil {
		return err
	}
	order, err := h.payments.Verify(c.UserContext(), middleware.CurrentIdentity(c), req)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": order})
}
