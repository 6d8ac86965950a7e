package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type PromotionStatus string

const (
	PromotionActive    PromotionStatus = "ACTIVE"
	PromotionScheduled PromotionStatus = "SCHEDULED"
	PromotionExpired   PromotionStatus = "EXPIRED"
)

// Promotion is a boost on a listing. Views and Clicks are counted while the
// boost runs; the uplift fields are derived.
type Promotion struct {
	ID                 int64           `json:"id"`
	ListingID          int64           `json:"listingId"`
	SellerID           int64           `json:"sellerId"`
	Status             PromotionStatus `json:"status"`
	StartedAt          time.Time       `json:"startedAt"`
	EndsAt             *time.Time      `json:"endsAt,omitempty"`
	Views              int64           `json:"views"`
	Clicks             int64           `json:"clicks"`
	ViewUpliftPercent  int             `json:"viewUpliftPercent"`
	ClickUpliftPercent int             `json:"clickUpliftPercent"`
	UsedFreeCredit     bool            `json:"usedFreeCredit"`
	PaidAmount         decimal.Decimal `json:"paidAmount"`
	CreatedAt          time.Time       `json:"createdAt"`
}

type Uplift struct {
	ViewUpliftPercent  int `json:"viewUpliftPercent"`
	ClickUpliftPercent int `json:"clickUpliftPercent"`
}
