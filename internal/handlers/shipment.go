package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/example/storefront/internal/middleware"
	"github.com/example/storefront/internal/services"
)

// ShipmentHandler books and lists parcels.
type ShipmentHandler struct {
	shipments *services.ShipmentService
}

func NewShipmentHandler(shipments *services.ShipmentService) *ShipmentHandler {
	return &ShipmentHandler{shipments: shipments}
}

// ListShipments returns an order's parcels to its owner or an admin.
func (h *ShipmentHandler) ListShipments(c *fiber.Ctx) error {
	id, err := paramUUID(c, "id")
	if err != nil {
		return err
	}
	list, err := h.shipments.ListForOrder(c.UserContext(), middleware.CurrentIdentity(c), id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": list})
}

type dispatchRequest struct {
	OrderLineID   string `json:"order_line_id"`
	SequenceIndex *int   `json:"sequence_index"`
}

// Dispatch books a parcel for one order line with the carrier. Admin only.
func (h *ShipmentHandler) Dispatch(c *fiber.Ctx) error {
	orderID, err := paramUUID(c, "id")
	if err != nil {
		return err
	}
	var req dispatchRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	lineID, err := parseUUIDField(req.OrderLineID, "order_line_id")
	if err != nil {
		return err
	}

	shipment, err := h.shipments.Dispatch(c.UserContext(), middleware.CurrentIdentity(c), services.DispatchInput{
		OrderID:       orderID,
		OrderLineID:   lineID,
		SequenceIndex: req.SequenceIndex,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": shipment})
}
