package handlers

import (
	"github.com/gofiber/fiber/v2"

	"tradepost/internal/services"
)

type AdminHandler struct {
	Orders *services.OrderService
}

// GET /api/v1/admin/orders
func (h *AdminHandler) ListOrders(c *fiber.Ctx) error {
	ords, err := h.Orders.ListLatest(c.UserContext(), c.QueryInt("limit", 100))
	if err != nil {
		return fail(c, "admin.orders.list", err)
	}
	return c.JSON(fiber.Map{"orders": ords})
}

// POST /api/v1/admin/orders/:id/status
func (h *AdminHandler) UpdateOrderStatus(c *fiber.Ctx) error {
	return transition(c, h.Orders, "admin.orders.update")
}
