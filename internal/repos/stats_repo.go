package repos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
)

// StatsRepo holds per-listing daily traffic.
type StatsRepo struct{ db sqlx.ExtContext }

func NewStatsRepo(db sqlx.ExtContext) *StatsRepo { return &StatsRepo{db: db} }

func (r *StatsRepo) WithTx(tx *sqlx.Tx) *StatsRepo { return &StatsRepo{db: tx} }

func dayOf(t time.Time) string { return t.UTC().Format(dayLayout) }

// Record adds traffic to the listing's row for the day containing at.
func (r *StatsRepo) Record(ctx context.Context, listingID int64, at time.Time, views, clicks int64) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO listing_daily_stats(listing_id, day, views, clicks)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(listing_id, day) DO UPDATE SET
		  views = views + excluded.views,
		  clicks = clicks + excluded.clicks
	`, listingID, dayOf(at), views, clicks)
	return err
}

// SumRange totals views and clicks over days in [from, to).
func (r *StatsRepo) SumRange(ctx context.Context, listingID int64, from, to time.Time) (views, clicks int64, err error) {
	var sums struct {
		Views  int64 `db:"views"`
		Clicks int64 `db:"clicks"`
	}
	err = sqlx.GetContext(ctx, r.db, &sums, `
		SELECT COALESCE(SUM(views), 0) AS views, COALESCE(SUM(clicks), 0) AS clicks
		FROM listing_daily_stats
		WHERE listing_id = ? AND day >= ? AND day < ?
	`, listingID, dayOf(from), dayOf(to))
	return sums.Views, sums.Clicks, err
}
