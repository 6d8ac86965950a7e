package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"

	applog "tradepost/internal/log"
	"tradepost/internal/services"
	"tradepost/internal/validate"
)

type PromotionHandler struct {
	Promotions *services.PromotionService
}

type boostRequest struct {
	ListingID     int64 `json:"listingId"`
	Days          int   `json:"days"`
	UseFreeCredit bool  `json:"useFreeCredit"`
}

// POST /api/v1/promotions
func (h *PromotionHandler) Start(c *fiber.Ctx) error {
	var req boostRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "body", "invalid request body")
	}
	if req.ListingID < 1 {
		return badRequest(c, "listingId", "listingId is required")
	}
	days, ok := validate.Days(req.Days)
	if !ok {
		return badRequest(c, "days", services.ErrInvalidBoostDuration.Error())
	}

	p, err := h.Promotions.StartBoost(c.UserContext(), services.StartBoostCommand{
		SellerID:      currentUser(c).ID,
		ListingID:     req.ListingID,
		Days:          days,
		UseFreeCredit: req.UseFreeCredit,
	})
	if err != nil {
		return fail(c, "promotion.start", err)
	}
	applog.Audit(c, "promotion.start", map[string]any{
		"promotion_id": p.ID, "listing": p.ListingID, "days": days, "paid": p.PaidAmount.StringFixed(2),
	})
	return c.Status(fiber.StatusCreated).JSON(p)
}

// GET /api/v1/promotions/:id/uplift
func (h *PromotionHandler) Uplift(c *fiber.Ctx) error {
	id, ok := validate.ID(c.Params("id"))
	if !ok {
		return badRequest(c, "id", "invalid promotion id")
	}
	u, err := h.Promotions.UpliftFor(c.UserContext(), actorOf(c), id)
	if err != nil {
		return fail(c, "promotion.uplift", err)
	}
	return c.JSON(u)
}

// GET /api/v1/me/promotions
func (h *PromotionHandler) Mine(c *fiber.Ctx) error {
	promos, err := h.Promotions.RefreshSellerPromotions(c.UserContext(), currentUser(c).ID)
	if err != nil {
		return fail(c, "promotion.list", err)
	}
	return c.JSON(fiber.Map{"promotions": promos})
}

// POST /api/v1/listings/:id/view
func (h *PromotionHandler) View(c *fiber.Ctx) error {
	return h.track(c, h.Promotions.RecordView)
}

// POST /api/v1/listings/:id/click
func (h *PromotionHandler) Click(c *fiber.Ctx) error {
	return h.track(c, h.Promotions.RecordClick)
}

func (h *PromotionHandler) track(c *fiber.Ctx, record func(ctx context.Context, listingID int64) error) error {
	id, ok := validate.ID(c.Params("id"))
	if !ok {
		return badRequest(c, "id", "invalid listing id")
	}
	if err := record(c.UserContext(), id); err != nil {
		return fail(c, "listing.traffic", err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
