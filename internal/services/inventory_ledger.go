package services

import (
	"context"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"tradepost/internal/domain"
	"tradepost/internal/repos"
)

const lowStockThreshold = 5

// InventoryLedger owns listing stock. Every change to available quantity
// goes through TryReserve or Restore.
type InventoryLedger struct {
	Listings *repos.ListingRepo
	Log      *zap.Logger
	Now      func() time.Time
}

func NewInventoryLedger(listings *repos.ListingRepo, log *zap.Logger) *InventoryLedger {
	if log == nil {
		log = zap.NewNop()
	}
	return &InventoryLedger{Listings: listings, Log: log, Now: time.Now}
}

// WithTx returns a ledger whose writes join tx.
func (l *InventoryLedger) WithTx(tx *sqlx.Tx) *InventoryLedger {
	return &InventoryLedger{Listings: l.Listings.WithTx(tx), Log: l.Log, Now: l.Now}
}

// TryReserve takes qty units from the listing or returns ErrInsufficientStock.
// Losing a race is an expected outcome and is not logged as a failure.
func (l *InventoryLedger) TryReserve(ctx context.Context, listingID int64, qty int) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	ok, err := l.Listings.TryReserve(ctx, listingID, qty, l.Now().UTC())
	if err != nil {
		return err
	}
	if !ok {
		l.Log.Info("inventory.reserve.rejected", zap.Int64("listingId", listingID), zap.Int("qty", qty))
		return ErrInsufficientStock
	}
	return nil
}

// Restore gives qty units back, un-selling the listing if needed.
func (l *InventoryLedger) Restore(ctx context.Context, listingID int64, qty int) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	err := l.Listings.Restore(ctx, listingID, qty, l.Now().UTC())
	if errors.Is(err, repos.ErrNotFound) {
		return ErrListingNotFound
	}
	return err
}

// ConfirmSoldOut makes sure an exhausted listing is flagged sold.
func (l *InventoryLedger) ConfirmSoldOut(ctx context.Context, listingID int64) error {
	return l.Listings.ConfirmSoldOut(ctx, listingID, l.Now().UTC())
}

// CheckAvailability converts stock to IN_STOCK / LOW_STOCK / OUT_OF_STOCK.
func (l *InventoryLedger) CheckAvailability(ctx context.Context, listingID int64) (domain.Availability, error) {
	listing, err := l.Listings.Get(ctx, listingID)
	if errors.Is(err, repos.ErrNotFound) {
		return domain.Availability{}, ErrListingNotFound
	}
	if err != nil {
		return domain.Availability{}, err
	}

	qty := listing.AvailableQuantity
	status := "OUT_OF_STOCK"
	switch {
	case !listing.Listed || listing.Sold:
	case qty >= lowStockThreshold:
		status = "IN_STOCK"
	case qty > 0:
		status = "LOW_STOCK"
	}
	return domain.Availability{Status: status, Qty: qty}, nil
}
