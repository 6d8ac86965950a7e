package handlers

import (
	"github.com/gofiber/fiber/v2"

	"tradepost/internal/services"
	"tradepost/internal/validate"
)

type InboxHandler struct {
	Inbox *services.InboxService
}

// GET /api/v1/notifications
func (h *InboxHandler) Notifications(c *fiber.Ctx) error {
	notes, err := h.Inbox.ListNotifications(c.UserContext(), currentUser(c).ID)
	if err != nil {
		return fail(c, "notifications", err)
	}
	return c.JSON(fiber.Map{"notifications": notes})
}

// GET /api/v1/conversations/:id/messages
func (h *InboxHandler) Messages(c *fiber.Ctx) error {
	id, ok := validate.ID(c.Params("id"))
	if !ok {
		return badRequest(c, "id", "invalid conversation id")
	}
	msgs, err := h.Inbox.ConversationMessages(c.UserContext(), actorOf(c), id)
	if err != nil {
		return fail(c, "conversation", err)
	}
	return c.JSON(fiber.Map{"messages": msgs})
}
