package handlers

import (
	"github.com/gofiber/fiber/v2"

	"tradepost/internal/services"
	"tradepost/internal/validate"
)

type InventoryHandler struct {
	Ledger *services.InventoryLedger
}

// GET /api/v1/availability?listingId=
func (h *InventoryHandler) Check(c *fiber.Ctx) error {
	if c.Query("listingId") == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "missing listingId"})
	}
	id, ok := validate.ID(c.Query("listingId"))
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid listingId"})
	}

	avail, err := h.Ledger.CheckAvailability(c.UserContext(), id)
	if err != nil {
		return fail(c, "availability", err)
	}
	return c.JSON(avail)
}
