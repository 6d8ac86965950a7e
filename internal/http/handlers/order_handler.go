package handlers

import (
	"github.com/gofiber/fiber/v2"

	applog "tradepost/internal/log"
	"tradepost/internal/services"
	"tradepost/internal/validate"
)

type OrderHandler struct {
	Orders *services.OrderService
}

type placeOrderRequest struct {
	ListingID        int64  `json:"listingId"`
	Quantity         int    `json:"quantity"`
	PaymentMethodRef string `json:"paymentMethodRef"`
}

type statusRequest struct {
	Status string `json:"status"`
}

// POST /api/v1/orders
func (h *OrderHandler) Place(c *fiber.Ctx) error {
	u := currentUser(c)
	var req placeOrderRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "body", "invalid request body")
	}
	if req.ListingID < 1 {
		return badRequest(c, "listingId", "listingId is required")
	}
	qty, ok := validate.Qty(req.Quantity)
	if !ok {
		return badRequest(c, "quantity", "quantity must be between 1 and 50")
	}
	ref, ok := validate.PaymentRef(req.PaymentMethodRef)
	if !ok {
		return badRequest(c, "paymentMethodRef", services.ErrPaymentMethodRequired.Error())
	}
	key, ok := validate.RequestKey(c.Get("Idempotency-Key"))
	if !ok {
		return badRequest(c, "Idempotency-Key", "invalid Idempotency-Key header")
	}

	order, replayed, err := h.Orders.Place(c.UserContext(), services.PlaceOrderCommand{
		BuyerID:          u.ID,
		ListingID:        req.ListingID,
		Quantity:         qty,
		PaymentMethodRef: ref,
		RequestKey:       key,
	})
	if err != nil {
		return fail(c, "order.place", err)
	}

	status := fiber.StatusCreated
	if replayed {
		status = fiber.StatusOK
	} else {
		applog.Audit(c, "order.place", map[string]any{
			"order_id":   order.ID,
			"listing":    order.ListingID,
			"total":      order.TotalAmount.StringFixed(2),
			"commission": order.CommissionAmount.StringFixed(2),
		})
	}
	return c.Status(status).JSON(order)
}

// GET /api/v1/orders/:id
func (h *OrderHandler) View(c *fiber.Ctx) error {
	id, ok := validate.ID(c.Params("id"))
	if !ok {
		return badRequest(c, "id", "invalid order id")
	}
	o, err := h.Orders.Get(c.UserContext(), actorOf(c), id)
	if err != nil {
		return fail(c, "order", err)
	}
	return c.JSON(o)
}

// GET /api/v1/orders
func (h *OrderHandler) History(c *fiber.Ctx) error {
	orders, err := h.Orders.ListMine(c.UserContext(), currentUser(c).ID)
	if err != nil {
		return fail(c, "orders.history", err)
	}
	return c.JSON(fiber.Map{"orders": orders})
}

// POST /api/v1/orders/:id/status
func (h *OrderHandler) UpdateStatus(c *fiber.Ctx) error {
	return transition(c, h.Orders, "order.status")
}

func transition(c *fiber.Ctx, orders *services.OrderService, action string) error {
	id, ok := validate.ID(c.Params("id"))
	if !ok {
		return badRequest(c, "id", "invalid order id")
	}
	var req statusRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "body", "invalid request body")
	}
	status, ok := validate.Status(req.Status)
	if !ok {
		return badRequest(c, "status", "status is required")
	}

	o, err := orders.UpdateStatus(c.UserContext(), actorOf(c), id, status)
	if err != nil {
		return fail(c, action, err)
	}
	applog.Audit(c, action, map[string]any{"order_id": id, "status": o.Status})
	return c.JSON(o)
}
