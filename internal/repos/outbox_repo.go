package repos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
)

const (
	OutboxPending = "PENDING"
	OutboxSent    = "SENT"
	OutboxFailed  = "FAILED"
)

// OutboxEntry is a notification event waiting for redelivery.
type OutboxEntry struct {
	ID        int64  `db:"id"`
	EventKey  string `db:"event_key"`
	Payload   string `db:"payload"`
	Status    string `db:"status"`
	Attempts  int    `db:"attempts"`
	LastError string `db:"last_error"`
}

type OutboxRepo struct{ db sqlx.ExtContext }

func NewOutboxRepo(db sqlx.ExtContext) *OutboxRepo { return &OutboxRepo{db: db} }

// Enqueue stores an event for redelivery. Re-enqueueing the same key resets
// it to pending and keeps the attempt count.
func (r *OutboxRepo) Enqueue(ctx context.Context, key, payload, lastErr string, now time.Time) error {
	ts := formatTime(now)
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO dispatch_outbox(event_key, payload, status, attempts, last_error, created_at, updated_at)
		VALUES (?, ?, 'PENDING', 0, ?, ?, ?)
		ON CONFLICT(event_key) DO UPDATE SET
		  payload = excluded.payload,
		  status = CASE WHEN dispatch_outbox.status = 'SENT' THEN 'SENT' ELSE 'PENDING' END,
		  last_error = excluded.last_error,
		  updated_at = excluded.updated_at
	`, key, payload, lastErr, ts, ts)
	return err
}

// Pending returns up to limit entries awaiting delivery, oldest first.
func (r *OutboxRepo) Pending(ctx context.Context, limit int) ([]OutboxEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []OutboxEntry
	err := sqlx.SelectContext(ctx, r.db, &out, `
		SELECT id, event_key, payload, status, attempts, COALESCE(last_error, '') AS last_error
		FROM dispatch_outbox
		WHERE status = 'PENDING'
		ORDER BY id
		LIMIT ?
	`, limit)
	return out, err
}

func (r *OutboxRepo) MarkSent(ctx context.Context, id int64, now time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE dispatch_outbox SET status = 'SENT', attempts = attempts + 1, last_error = NULL, updated_at = ?
		WHERE id = ?
	`, formatTime(now), id)
	return err
}

// MarkAttemptFailed records a failed redelivery. The entry turns FAILED once
// it has used maxAttempts.
func (r *OutboxRepo) MarkAttemptFailed(ctx context.Context, id int64, reason string, maxAttempts int, now time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE dispatch_outbox
		SET attempts = attempts + 1,
		    status = CASE WHEN attempts + 1 >= ? THEN 'FAILED' ELSE 'PENDING' END,
		    last_error = ?,
		    updated_at = ?
		WHERE id = ?
	`, maxAttempts, reason, formatTime(now), id)
	return err
}

// ByKey returns the entry for an event key.
func (r *OutboxRepo) ByKey(ctx context.Context, key string) (*OutboxEntry, error) {
	var e OutboxEntry
	err := sqlx.GetContext(ctx, r.db, &e, `
		SELECT id, event_key, payload, status, attempts, COALESCE(last_error, '') AS last_error
		FROM dispatch_outbox WHERE event_key = ?
	`, key)
	if err != nil {
		return nil, notFound(err)
	}
	return &e, nil
}
