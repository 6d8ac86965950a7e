package repos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"golang.org/x/crypto/bcrypt"
)

// Seed ensures demo users and listings exist (idempotent; safe to run every start).
func Seed(ctx context.Context, db *sqlx.DB, now time.Time) error {
	type u struct {
		Email, Name, Role, Raw string
		Premium                bool
	}
	users := []u{
		{"alice@tradepost.test", "Alice", "USER", "Passw0rd!", false},
		{"bob@tradepost.test", "Bob", "USER", "Passw0rd!", true},
		{"carol@tradepost.test", "Carol", "USER", "Passw0rd!", false},
		{"admin@tradepost.test", "Admin", "ADMIN", "Passw0rd!", false},
	}
	premiumUntil := now.AddDate(1, 0, 0)

	return InTx(ctx, db, func(tx *sqlx.Tx) error {
		for _, x := range users {
			h, err := bcrypt.GenerateFromPassword([]byte(x.Raw), bcrypt.DefaultCost)
			if err != nil {
				return err
			}
			var expires *time.Time
			if x.Premium {
				expires = &premiumUntil
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO users(email,name,password_hash,role,premium,premium_expires_at)
				VALUES(?,?,?,?,?,?)
				ON CONFLICT DO NOTHING
			`, x.Email, x.Name, string(h), x.Role, boolInt(x.Premium), nullTime(expires)); err != nil {
				return err
			}
		}

		ts := formatTime(now)
		_, err := tx.ExecContext(ctx, `
			INSERT INTO listings(seller_id,title,price,available_quantity,listed,sold,created_at,updated_at)
			SELECT u.id, l.title, l.price, l.qty, 1, 0, ?, ?
			FROM (
			  SELECT 'bob@tradepost.test' AS email, 'Game Boy Color' AS title, '129.99' AS price, 3 AS qty
			  UNION ALL SELECT 'bob@tradepost.test', 'Philco 1939 Radio', '349.50', 1
			  UNION ALL SELECT 'carol@tradepost.test', 'NES Console', '50.00', 1
			) l
			JOIN users u ON LOWER(u.email) = l.email
			WHERE NOT EXISTS (SELECT 1 FROM listings x WHERE x.title = l.title AND x.seller_id = u.id)
		`, ts, ts)
		return err
	})
}
