package repos

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"tradepost/internal/domain"
)

type MessageRepo struct{ db sqlx.ExtContext }

func NewMessageRepo(db sqlx.ExtContext) *MessageRepo { return &MessageRepo{db: db} }

func (r *MessageRepo) WithTx(tx *sqlx.Tx) *MessageRepo { return &MessageRepo{db: tx} }

type conversationRow struct {
	ID        int64  `db:"id"`
	ListingID int64  `db:"listing_id"`
	BuyerID   int64  `db:"buyer_id"`
	SellerID  int64  `db:"seller_id"`
	CreatedAt string `db:"created_at"`
}

type messageRow struct {
	ID             int64          `db:"id"`
	ConversationID int64          `db:"conversation_id"`
	SenderID       int64          `db:"sender_id"`
	ReceiverID     int64          `db:"receiver_id"`
	Content        string         `db:"content"`
	Type           string         `db:"type"`
	OrderID        sql.NullInt64  `db:"order_id"`
	Kind           sql.NullString `db:"kind"`
	CreatedAt      string         `db:"created_at"`
}

// EnsureConversation finds or creates the buyer/seller thread for a listing.
func (r *MessageRepo) EnsureConversation(ctx context.Context, listingID, buyerID, sellerID int64, now time.Time) (*domain.Conversation, error) {
	if _, err := r.db.ExecContext(ctx, `
		INSERT INTO conversations(listing_id, buyer_id, seller_id, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(listing_id, buyer_id, seller_id) DO NOTHING
	`, listingID, buyerID, sellerID, formatTime(now)); err != nil {
		return nil, err
	}
	var row conversationRow
	if err := sqlx.GetContext(ctx, r.db, &row, `
		SELECT id, listing_id, buyer_id, seller_id, created_at
		FROM conversations
		WHERE listing_id = ? AND buyer_id = ? AND seller_id = ?
	`, listingID, buyerID, sellerID); err != nil {
		return nil, err
	}
	created, err := parseTime(row.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &domain.Conversation{
		ID: row.ID, ListingID: row.ListingID, BuyerID: row.BuyerID, SellerID: row.SellerID, CreatedAt: created,
	}, nil
}

func (r *MessageRepo) Conversation(ctx context.Context, id int64) (*domain.Conversation, error) {
	var row conversationRow
	err := sqlx.GetContext(ctx, r.db, &row, `
		SELECT id, listing_id, buyer_id, seller_id, created_at FROM conversations WHERE id = ?
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	created, err := parseTime(row.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &domain.Conversation{
		ID: row.ID, ListingID: row.ListingID, BuyerID: row.BuyerID, SellerID: row.SellerID, CreatedAt: created,
	}, nil
}

// HasSystemMessage reports whether the (conversation, order, kind) message exists.
func (r *MessageRepo) HasSystemMessage(ctx context.Context, conversationID, orderID int64, kind domain.MessageKind) (bool, error) {
	var n int
	err := sqlx.GetContext(ctx, r.db, &n, `
		SELECT COUNT(1) FROM messages
		WHERE conversation_id = ? AND order_id = ? AND kind = ? AND type = 'SYSTEM'
	`, conversationID, orderID, string(kind))
	return n > 0, err
}

// InsertSystem writes a system message unless one with the same
// (conversation, order, kind) already exists. It reports whether a row was added.
func (r *MessageRepo) InsertSystem(ctx context.Context, m domain.Message) (bool, error) {
	var orderID sql.NullInt64
	if m.OrderID != nil {
		orderID = sql.NullInt64{Int64: *m.OrderID, Valid: true}
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO messages(conversation_id, sender_id, receiver_id, content, type, order_id, kind, created_at)
		VALUES (?, ?, ?, ?, 'SYSTEM', ?, ?, ?)
		ON CONFLICT DO NOTHING
	`, m.ConversationID, m.SenderID, m.ReceiverID, m.Content, orderID, string(m.Kind), formatTime(m.CreatedAt))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// List returns a conversation's messages oldest first.
func (r *MessageRepo) List(ctx context.Context, conversationID int64) ([]domain.Message, error) {
	var rows []messageRow
	if err := sqlx.SelectContext(ctx, r.db, &rows, `
		SELECT id, conversation_id, sender_id, receiver_id, content, type, order_id, kind, created_at
		FROM messages
		WHERE conversation_id = ?
		ORDER BY id
	`, conversationID); err != nil {
		return nil, err
	}
	out := make([]domain.Message, 0, len(rows))
	for _, row := range rows {
		created, err := parseTime(row.CreatedAt)
		if err != nil {
			return nil, err
		}
		m := domain.Message{
			ID:             row.ID,
			ConversationID: row.ConversationID,
			SenderID:       row.SenderID,
			ReceiverID:     row.ReceiverID,
			Content:        row.Content,
			Type:           domain.MessageType(row.Type),
			Kind:           domain.MessageKind(row.Kind.String),
			CreatedAt:      created,
		}
		if row.OrderID.Valid {
			id := row.OrderID.Int64
			m.OrderID = &id
		}
		out = append(out, m)
	}
	return out, nil
}
