package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	applog "tradepost/internal/log"
	"tradepost/internal/services"
)

const genericError = "Something went wrong. Please try again."

type errorMapping struct {
	err    error
	status int
	code   string
}

// errorMappings is checked in order with errors.Is.
var errorMappings = []errorMapping{
	{services.ErrInvalidQuantity, fiber.StatusBadRequest, "INVALID_QUANTITY"},
	{services.ErrPaymentMethodRequired, fiber.StatusBadRequest, "PAYMENT_METHOD_REQUIRED"},
	{services.ErrCannotBuyOwnListing, fiber.StatusBadRequest, "CANNOT_BUY_OWN_LISTING"},
	{services.ErrListingNotListed, fiber.StatusBadRequest, "LISTING_NOT_LISTED"},
	{services.ErrUnknownStatus, fiber.StatusBadRequest, "UNKNOWN_STATUS"},
	{services.ErrInvalidBoostDuration, fiber.StatusBadRequest, "INVALID_BOOST_DURATION"},

	{services.ErrListingNotFound, fiber.StatusNotFound, "LISTING_NOT_FOUND"},
	{services.ErrSellerNotFound, fiber.StatusNotFound, "SELLER_NOT_FOUND"},
	{services.ErrOrderNotFound, fiber.StatusNotFound, "ORDER_NOT_FOUND"},
	{services.ErrPromotionNotFound, fiber.StatusNotFound, "PROMOTION_NOT_FOUND"},
	{services.ErrConversationNotFound, fiber.StatusNotFound, "CONVERSATION_NOT_FOUND"},

	{services.ErrNotOrderParty, fiber.StatusForbidden, "NOT_ORDER_PARTY"},
	{services.ErrNotAuthorized, fiber.StatusForbidden, "NOT_AUTHORIZED"},
	{services.ErrNotListingOwner, fiber.StatusForbidden, "NOT_LISTING_OWNER"},
	{services.ErrNotPromotionOwner, fiber.StatusForbidden, "NOT_PROMOTION_OWNER"},

	{services.ErrListingSold, fiber.StatusConflict, "LISTING_SOLD"},
	{services.ErrInsufficientStock, fiber.StatusConflict, "INSUFFICIENT_STOCK"},
	{services.ErrTransitionConflict, fiber.StatusConflict, "CONFLICT"},
	{services.ErrRequestKeyReused, fiber.StatusConflict, "REQUEST_KEY_REUSED"},
	{services.ErrPromotionAlreadyActive, fiber.StatusConflict, "PROMOTION_ALREADY_ACTIVE"},
	{services.ErrFreeBoostUsed, fiber.StatusConflict, "FREE_BOOST_USED"},

	{services.ErrCannotCancelAfterShipping, fiber.StatusUnprocessableEntity, "CANNOT_CANCEL_AFTER_SHIPPING"},
	{services.ErrInvalidTransition, fiber.StatusUnprocessableEntity, "INVALID_TRANSITION"},
}

func badRequest(c *fiber.Ctx, field, msg string) error {
	applog.Security(c, "validation.fail", map[string]any{"field": field})
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msg, "code": "INVALID_INPUT"})
}

// fail writes the JSON error for err. Known service errors keep their
// message; anything else is logged and hidden behind a generic one.
func fail(c *fiber.Ctx, action string, err error) error {
	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			if m.status == fiber.StatusForbidden {
				applog.Security(c, "access.denied."+action, map[string]any{"reason": m.code})
			}
			return c.Status(m.status).JSON(fiber.Map{"error": err.Error(), "code": m.code})
		}
	}
	applog.Error(c, action+".fail", err, nil)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": genericError, "code": "INTERNAL"})
}

// ErrorHandler is the app-wide fallback for errors escaping handlers.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(fiber.Map{"error": fe.Message})
	}
	applog.Error(c, "server.error", err, nil)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": genericError})
}
