package repos

import (
	"context"

	"github.com/jmoiron/sqlx"

	"tradepost/internal/domain"
)

type NotificationRepo struct{ db sqlx.ExtContext }

func NewNotificationRepo(db sqlx.ExtContext) *NotificationRepo { return &NotificationRepo{db: db} }

func (r *NotificationRepo) WithTx(tx *sqlx.Tx) *NotificationRepo { return &NotificationRepo{db: tx} }

type notificationRow struct {
	ID        int64  `db:"id"`
	UserID    int64  `db:"user_id"`
	OrderID   int64  `db:"order_id"`
	Kind      string `db:"kind"`
	Title     string `db:"title"`
	Body      string `db:"body"`
	Read      bool   `db:"read"`
	CreatedAt string `db:"created_at"`
}

// Insert adds a notification once per (user, order, kind). It reports
// whether a row was added.
func (r *NotificationRepo) Insert(ctx context.Context, n domain.Notification) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO notifications(user_id, order_id, kind, title, body, read, created_at)
		VALUES (?, ?, ?, ?, ?, 0, ?)
		ON CONFLICT(user_id, order_id, kind) DO NOTHING
	`, n.UserID, n.OrderID, string(n.Kind), n.Title, n.Body, formatTime(n.CreatedAt))
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// ListForUser returns the user's notifications newest first.
func (r *NotificationRepo) ListForUser(ctx context.Context, userID int64) ([]domain.Notification, error) {
	var rows []notificationRow
	if err := sqlx.SelectContext(ctx, r.db, &rows, `
		SELECT id, user_id, order_id, kind, title, body, read, created_at
		FROM notifications
		WHERE user_id = ?
		ORDER BY id DESC
	`, userID); err != nil {
		return nil, err
	}
	out := make([]domain.Notification, 0, len(rows))
	for _, row := range rows {
		created, err := parseTime(row.CreatedAt)
		if err != nil {
			return nil, err
		}
		out = append(out, domain.Notification{
			ID:        row.ID,
			UserID:    row.UserID,
			OrderID:   row.OrderID,
			Kind:      domain.MessageKind(row.Kind),
			Title:     row.Title,
			Body:      row.Body,
			Read:      row.Read,
			CreatedAt: created,
		})
	}
	return out, nil
}
