package repos

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"tradepost/internal/domain"
)

// ListingRepo is the only code that writes listings.available_quantity.
type ListingRepo struct{ db sqlx.ExtContext }

func NewListingRepo(db sqlx.ExtContext) *ListingRepo { return &ListingRepo{db: db} }

func (r *ListingRepo) WithTx(tx *sqlx.Tx) *ListingRepo { return &ListingRepo{db: tx} }

type listingRow struct {
	ID                int64  `db:"id"`
	SellerID          int64  `db:"seller_id"`
	Title             string `db:"title"`
	Price             string `db:"price"`
	AvailableQuantity int    `db:"available_quantity"`
	Listed            bool   `db:"listed"`
	Sold              bool   `db:"sold"`
	CreatedAt         string `db:"created_at"`
	UpdatedAt         string `db:"updated_at"`
}

func (row listingRow) toDomain() (*domain.Listing, error) {
	price, err := decimal.NewFromString(row.Price)
	if err != nil {
		return nil, err
	}
	created, err := parseTime(row.CreatedAt)
	if err != nil {
		return nil, err
	}
	updated, err := parseTime(row.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &domain.Listing{
		ID:                row.ID,
		SellerID:          row.SellerID,
		Title:             row.Title,
		Price:             price,
		AvailableQuantity: row.AvailableQuantity,
		Listed:            row.Listed,
		Sold:              row.Sold,
		CreatedAt:         created,
		UpdatedAt:         updated,
	}, nil
}

func (r *ListingRepo) Get(ctx context.Context, id int64) (*domain.Listing, error) {
	var row listingRow
	err := sqlx.GetContext(ctx, r.db, &row, `
		SELECT id, seller_id, title, price, available_quantity, listed, sold, created_at, updated_at
		FROM listings WHERE id = ?
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return row.toDomain()
}

// Create inserts a listing. A listing without stock is stored unlisted.
func (r *ListingRepo) Create(ctx context.Context, l domain.Listing, now time.Time) (int64, error) {
	listed := l.Listed && l.AvailableQuantity > 0
	ts := formatTime(now)
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO listings(seller_id, title, price, available_quantity, listed, sold, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 0, ?, ?)
	`, l.SellerID, l.Title, l.Price.StringFixed(2), l.AvailableQuantity, boolInt(listed), ts, ts)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// TryReserve subtracts qty in one guarded UPDATE. It reports false when the
// listing is not purchasable or holds fewer than qty units. When the last
// unit goes, the same statement flips sold on and listed off.
func (r *ListingRepo) TryReserve(ctx context.Context, id int64, qty int, now time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE listings
		SET available_quantity = available_quantity - ?,
		    sold   = CASE WHEN available_quantity - ? = 0 THEN 1 ELSE 0 END,
		    listed = CASE WHEN available_quantity - ? = 0 THEN 0 ELSE listed END,
		    updated_at = ?
		WHERE id = ? AND listed = 1 AND sold = 0 AND available_quantity >= ?
	`, qty, qty, qty, formatTime(now), id, qty)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Restore adds qty back and un-sells a sold listing.
func (r *ListingRepo) Restore(ctx context.Context, id int64, qty int, now time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE listings
		SET available_quantity = available_quantity + ?,
		    listed = CASE WHEN sold = 1 THEN 1 ELSE listed END,
		    sold = 0,
		    updated_at = ?
		WHERE id = ?
	`, qty, formatTime(now), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ConfirmSoldOut marks an exhausted listing sold. It is a no-op when stock
// remains or the flags are already set.
func (r *ListingRepo) ConfirmSoldOut(ctx context.Context, id int64, now time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE listings SET sold = 1, listed = 0, updated_at = ?
		WHERE id = ? AND available_quantity = 0 AND (sold = 0 OR listed = 1)
	`, formatTime(now), id)
	return err
}
