package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Listing is a purchasable item. AvailableQuantity is only written through
// the inventory ledger. Sold implies AvailableQuantity == 0 implies !Listed.
type Listing struct {
	ID                int64           `json:"id"`
	SellerID          int64           `json:"sellerId"`
	Title             string          `json:"title"`
	Price             decimal.Decimal `json:"price"`
	AvailableQuantity int             `json:"availableQuantity"`
	Listed            bool            `json:"listed"`
	Sold              bool            `json:"sold"`
	CreatedAt         time.Time       `json:"createdAt"`
	UpdatedAt         time.Time       `json:"updatedAt"`
}

type Availability struct {
	Status string `json:"status"` // IN_STOCK | LOW_STOCK | OUT_OF_STOCK
	Qty    int    `json:"qty"`
}
