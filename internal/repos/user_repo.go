package repos

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"tradepost/internal/domain"
)

type UserRepo struct{ db sqlx.ExtContext }

func NewUserRepo(db sqlx.ExtContext) *UserRepo { return &UserRepo{db: db} }

func (r *UserRepo) WithTx(tx *sqlx.Tx) *UserRepo { return &UserRepo{db: tx} }

type userRow struct {
	ID               int64          `db:"id"`
	Email            string         `db:"email"`
	Name             string         `db:"name"`
	Hash             string         `db:"password_hash"`
	Role             string         `db:"role"`
	Premium          bool           `db:"premium"`
	PremiumExpiresAt sql.NullString `db:"premium_expires_at"`
	FreeBoostUsed    bool           `db:"free_boost_used"`
}

const userColumns = `u.id,u.email,u.name,u.password_hash,u.role,u.premium,u.premium_expires_at,u.free_boost_used`

func (row userRow) toDomain() (*domain.User, error) {
	expires, err := parseNullTime(row.PremiumExpiresAt)
	if err != nil {
		return nil, err
	}
	return &domain.User{
		ID:               row.ID,
		Email:            row.Email,
		Name:             row.Name,
		Hash:             row.Hash,
		Role:             domain.Role(row.Role),
		Premium:          row.Premium,
		PremiumExpiresAt: expires,
		FreeBoostUsed:    row.FreeBoostUsed,
	}, nil
}

func (r *UserRepo) getOne(ctx context.Context, query string, args ...any) (*domain.User, error) {
	var row userRow
	if err := sqlx.GetContext(ctx, r.db, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return row.toDomain()
}

// Create inserts a user and returns its id.
func (r *UserRepo) Create(ctx context.Context, u domain.User) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO users(email,name,password_hash,role,premium,premium_expires_at)
		VALUES(?,?,?,?,?,?)
	`, u.Email, u.Name, u.Hash, string(u.Role), boolInt(u.Premium), nullTime(u.PremiumExpiresAt))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r *UserRepo) ByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users u WHERE LOWER(u.email)=LOWER(?)`, email)
}

func (r *UserRepo) ByID(ctx context.Context, id int64) (*domain.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users u WHERE u.id=?`, id)
}

// ClaimFreeBoost marks the user's one free boost credit as used. It reports
// false when the credit was already spent.
func (r *UserRepo) ClaimFreeBoost(ctx context.Context, id int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET free_boost_used=1 WHERE id=? AND free_boost_used=0`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *UserRepo) BindSession(ctx context.Context, sid string, userID int64) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO sessions(id,user_id,last_seen)
                          VALUES(?,?,CURRENT_TIMESTAMP)
                          ON CONFLICT(id) DO UPDATE SET user_id=excluded.user_id,last_seen=CURRENT_TIMESTAMP`, sid, userID)
	return err
}

func (r *UserRepo) SessionUser(ctx context.Context, sid string) (*domain.User, error) {
	return r.getOne(ctx, `
      SELECT `+userColumns+`
      FROM sessions s
      JOIN users u ON u.id=s.user_id
      WHERE s.id=?`, sid)
}

func (r *UserRepo) UnbindSession(ctx context.Context, sid string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE sessions SET user_id=NULL,last_seen=CURRENT_TIMESTAMP WHERE id=?`, sid)
	return err
}
