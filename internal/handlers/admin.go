package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/example/storefront/internal/middleware"
	"github.com/example/storefront/internal/models"
	"github.com/example/storefront/internal/repository"
	"github.com/example/storefront/internal/services"
	"github.com/example/storefront/internal/utils"
)

// AdminHandler manages admin-only order endpoints.
type AdminHandler struct {
	orders *services.OrderService
}

// NewAdminHandler constructs AdminHandler.
func NewAdminHandler(orders *services.OrderService) *AdminHandler {
	return &AdminHandler{orders: orders}
}

// ListOrders returns every customer's orders, optionally filtered by ?status=.
func (h *AdminHandler) ListOrders(c *fiber.Ctx) error {
	pg := utils.ParsePagination(c)
	page, err := h.orders.ListAll(c.UserContext(), middleware.CurrentIdentity(c),
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

type updateOrderStatusRequest struct {
	Status models.OrderStatus `json:"status"`
}

// UpdateOrderStatus moves an order to another status.
func (h *AdminHandler) UpdateOrderStatus(c *fiber.Ctx) error {
	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}
	var req updateOrderStatusRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	order, err := h.orders.UpdateStatus(c.UserContext(), middleware.CurrentIdentity(c), id, req.Status)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": order})
}
