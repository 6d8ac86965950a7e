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

// ErrDuplicateRequest is returned when a buyer reuses a request key.
var ErrDuplicateRequest = errors.New("order request key already used")

type OrderRepo struct{ db sqlx.ExtContext }

func NewOrderRepo(db sqlx.ExtContext) *OrderRepo { return &OrderRepo{db: db} }

func (r *OrderRepo) WithTx(tx *sqlx.Tx) *OrderRepo { return &OrderRepo{db: tx} }

type orderRow struct {
	ID               int64          `db:"id"`
	BuyerID          int64          `db:"buyer_id"`
	SellerID         int64          `db:"seller_id"`
	ListingID        int64          `db:"listing_id"`
	Quantity         int            `db:"quantity"`
	TotalAmount      string         `db:"total_amount"`
	CommissionRate   string         `db:"commission_rate"`
	CommissionAmount string         `db:"commission_amount"`
	PaymentMethodRef string         `db:"payment_method_ref"`
	RequestKey       sql.NullString `db:"request_key"`
	Status           string         `db:"status"`
	SettledAt        sql.NullString `db:"settled_at"`
	CreatedAt        string         `db:"created_at"`
	UpdatedAt        string         `db:"updated_at"`
}

const orderColumns = `id, buyer_id, seller_id, listing_id, quantity, total_amount, commission_rate,
	commission_amount, payment_method_ref, request_key, status, settled_at, created_at, updated_at`

func (row orderRow) toDomain() (*domain.Order, error) {
	o := &domain.Order{
		ID:               row.ID,
		BuyerID:          row.BuyerID,
		SellerID:         row.SellerID,
		ListingID:        row.ListingID,
		Quantity:         row.Quantity,
		PaymentMethodRef: row.PaymentMethodRef,
		RequestKey:       row.RequestKey.String,
		Status:           domain.OrderStatus(row.Status),
	}
	var err error
	if o.TotalAmount, err = decimal.NewFromString(row.TotalAmount); err != nil {
		return nil, err
	}
	if o.CommissionRate, err = decimal.NewFromString(row.CommissionRate); err != nil {
		return nil, err
	}
	if o.CommissionAmount, err = decimal.NewFromString(row.CommissionAmount); err != nil {
		return nil, err
	}
	if o.SettledAt, err = parseNullTime(row.SettledAt); err != nil {
		return nil, err
	}
	if o.CreatedAt, err = parseTime(row.CreatedAt); err != nil {
		return nil, err
	}
	if o.UpdatedAt, err = parseTime(row.UpdatedAt); err != nil {
		return nil, err
	}
	return o, nil
}

func toOrders(rows []orderRow) ([]domain.Order, error) {
	out := make([]domain.Order, 0, len(rows))
	for _, row := range rows {
		o, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, *o)
	}
	return out, nil
}

func (r *OrderRepo) getOne(ctx context.Context, query string, args ...any) (*domain.Order, error) {
	var row orderRow
	if err := sqlx.GetContext(ctx, r.db, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return row.toDomain()
}

// Create inserts a new order with its snapshotted amounts and returns the id.
func (r *OrderRepo) Create(ctx context.Context, o domain.Order) (int64, error) {
	var requestKey sql.NullString
	if o.RequestKey != "" {
		requestKey = sql.NullString{String: o.RequestKey, Valid: true}
	}
	res, err := r.db.ExecContext(ctx, `
	  INSERT INTO orders
	    (buyer_id, seller_id, listing_id, quantity, total_amount, commission_rate, commission_amount,
	     payment_method_ref, request_key, status, created_at, updated_at)
	  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, o.BuyerID, o.SellerID, o.ListingID, o.Quantity,
		o.TotalAmount.StringFixed(2), o.CommissionRate.String(), o.CommissionAmount.StringFixed(2),
		o.PaymentMethodRef, requestKey, string(o.Status), formatTime(o.CreatedAt), formatTime(o.UpdatedAt))
	if isUniqueViolation(err) {
		return 0, ErrDuplicateRequest
	}
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r *OrderRepo) Get(ctx context.Context, id int64) (*domain.Order, error) {
	return r.getOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = ?`, id)
}

// ByRequestKey finds the order a buyer already placed with the given key.
func (r *OrderRepo) ByRequestKey(ctx context.Context, buyerID int64, key string) (*domain.Order, error) {
	return r.getOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE buyer_id = ? AND request_key = ?`, buyerID, key)
}

// UpdateStatus moves an order from one status to another. It reports false
// when the stored status is no longer from.
func (r *OrderRepo) UpdateStatus(ctx context.Context, id int64, from, to domain.OrderStatus, now time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE orders SET status = ?, updated_at = ? WHERE id = ? AND status = ?
	`, string(to), formatTime(now), id, string(from))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// MarkSettled stamps settled_at once. It reports whether this call did it.
func (r *OrderRepo) MarkSettled(ctx context.Context, id int64, now time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE orders SET settled_at = ? WHERE id = ? AND settled_at IS NULL
	`, formatTime(now), id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ListForUser returns orders where the user is buyer or seller, newest first.
func (r *OrderRepo) ListForUser(ctx context.Context, userID int64) ([]domain.Order, error) {
	var rows []orderRow
	if err := sqlx.SelectContext(ctx, r.db, &rows, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE buyer_id = ? OR seller_id = ?
		ORDER BY created_at DESC, id DESC
	`, userID, userID); err != nil {
		return nil, err
	}
	return toOrders(rows)
}

func (r *OrderRepo) ListLatest(ctx context.Context, limit int) ([]domain.Order, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []orderRow
	if err := sqlx.SelectContext(ctx, r.db, &rows, `
		SELECT `+orderColumns+`
		FROM orders
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, limit); err != nil {
		return nil, err
	}
	return toOrders(rows)
}
