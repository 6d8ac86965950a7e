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

// ErrAlreadyActive is returned when a listing already has an ACTIVE promotion.
var ErrAlreadyActive = errors.New("listing already has an active promotion")

type PromotionRepo struct{ db sqlx.ExtContext }

func NewPromotionRepo(db sqlx.ExtContext) *PromotionRepo { return &PromotionRepo{db: db} }

func (r *PromotionRepo) WithTx(tx *sqlx.Tx) *PromotionRepo { return &PromotionRepo{db: tx} }

type promotionRow struct {
	ID                 int64          `db:"id"`
	ListingID          int64          `db:"listing_id"`
	SellerID           int64          `db:"seller_id"`
	Status             string         `db:"status"`
	StartedAt          string         `db:"started_at"`
	EndsAt             sql.NullString `db:"ends_at"`
	Views              int64          `db:"views"`
	Clicks             int64          `db:"clicks"`
	ViewUpliftPercent  int            `db:"view_uplift_percent"`
	ClickUpliftPercent int            `db:"click_uplift_percent"`
	UsedFreeCredit     bool           `db:"used_free_credit"`
	PaidAmount         string         `db:"paid_amount"`
	CreatedAt          string         `db:"created_at"`
}

const promotionColumns = `id, listing_id, seller_id, status, started_at, ends_at, views, clicks,
	view_uplift_percent, click_uplift_percent, used_free_credit, paid_amount, created_at`

func (row promotionRow) toDomain() (*domain.Promotion, error) {
	p := &domain.Promotion{
		ID:                 row.ID,
		ListingID:          row.ListingID,
		SellerID:           row.SellerID,
		Status:             domain.PromotionStatus(row.Status),
		Views:              row.Views,
		Clicks:             row.Clicks,
		ViewUpliftPercent:  row.ViewUpliftPercent,
		ClickUpliftPercent: row.ClickUpliftPercent,
		UsedFreeCredit:     row.UsedFreeCredit,
	}
	var err error
	if p.StartedAt, err = parseTime(row.StartedAt); err != nil {
		return nil, err
	}
	if p.EndsAt, err = parseNullTime(row.EndsAt); err != nil {
		return nil, err
	}
	if p.PaidAmount, err = decimal.NewFromString(row.PaidAmount); err != nil {
		return nil, err
	}
	if p.CreatedAt, err = parseTime(row.CreatedAt); err != nil {
		return nil, err
	}
	return p, nil
}

// Create inserts a promotion. A second ACTIVE promotion for the same listing
// fails with ErrAlreadyActive.
func (r *PromotionRepo) Create(ctx context.Context, p domain.Promotion) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO promotions(listing_id, seller_id, status, started_at, ends_at,
		                       used_free_credit, paid_amount, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, p.ListingID, p.SellerID, string(p.Status), formatTime(p.StartedAt), nullTime(p.EndsAt),
		boolInt(p.UsedFreeCredit), p.PaidAmount.StringFixed(2), formatTime(p.CreatedAt))
	if isUniqueViolation(err) {
		return 0, ErrAlreadyActive
	}
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r *PromotionRepo) Get(ctx context.Context, id int64) (*domain.Promotion, error) {
	var row promotionRow
	if err := sqlx.GetContext(ctx, r.db, &row, `SELECT `+promotionColumns+` FROM promotions WHERE id = ?`, id); err != nil {
		return nil, notFound(err)
	}
	return row.toDomain()
}

// ListBySeller returns a seller's promotions newest first.
func (r *PromotionRepo) ListBySeller(ctx context.Context, sellerID int64) ([]domain.Promotion, error) {
	var rows []promotionRow
	if err := sqlx.SelectContext(ctx, r.db, &rows, `
		SELECT `+promotionColumns+` FROM promotions WHERE seller_id = ? ORDER BY id DESC
	`, sellerID); err != nil {
		return nil, err
	}
	out := make([]domain.Promotion, 0, len(rows))
	for _, row := range rows {
		p, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, nil
}

// SaveUplift overwrites the derived uplift fields.
func (r *PromotionRepo) SaveUplift(ctx context.Context, id int64, u domain.Uplift) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE promotions SET view_uplift_percent = ?, click_uplift_percent = ? WHERE id = ?
	`, u.ViewUpliftPercent, u.ClickUpliftPercent, id)
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

// ExpireEnded marks ACTIVE promotions whose end has passed as EXPIRED.
func (r *PromotionRepo) ExpireEnded(ctx context.Context, sellerID int64, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE promotions SET status = 'EXPIRED'
		WHERE seller_id = ? AND status = 'ACTIVE' AND ends_at IS NOT NULL AND ends_at <= ?
	`, sellerID, formatTime(now))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CountTraffic bumps the counters of the listing's running promotion, if any.
func (r *PromotionRepo) CountTraffic(ctx context.Context, listingID int64, views, clicks int64, now time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE promotions SET views = views + ?, clicks = clicks + ?
		WHERE listing_id = ? AND status = 'ACTIVE' AND started_at <= ?
		  AND (ends_at IS NULL OR ends_at > ?)
	`, views, clicks, listingID, formatTime(now), formatTime(now))
	return err
}
