// Package testutil builds throwaway databases and fixtures for tests.
package testutil

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"tradepost/internal/domain"
	"tradepost/internal/repos"
)

const Password = "Passw0rd!"

// NewDB opens a schema-ready SQLite file in a temp dir. A file (not
// :memory:) lets concurrent tests contend across real connections.
func NewDB(t testing.TB) *sqlx.DB {
	t.Helper()
	db, err := repos.OpenDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

type UserOption func(*domain.User)

func Admin() UserOption {
	return func(u *domain.User) { u.Role = domain.RoleAdmin }
}

// PremiumUntil makes the user a premium seller expiring at t.
func PremiumUntil(t time.Time) UserOption {
	return func(u *domain.User) {
		u.Premium = true
		u.PremiumExpiresAt = &t
	}
}

// CreateUser inserts a user whose password is Password.
func CreateUser(t testing.TB, db *sqlx.DB, email string, opts ...UserOption) *domain.User {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(Password), bcrypt.MinCost)
	require.NoError(t, err)
	u := domain.User{Email: email, Name: email, Hash: string(h), Role: domain.RoleUser}
	for _, o := range opts {
		o(&u)
	}
	users := repos.NewUserRepo(db)
	id, err := users.Create(context.Background(), u)
	require.NoError(t, err)
	out, err := users.ByID(context.Background(), id)
	require.NoError(t, err)
	return out
}

// CreateListing inserts a listed listing with qty units at price.
func CreateListing(t testing.TB, db *sqlx.DB, sellerID int64, price string, qty int) *domain.Listing {
	t.Helper()
	listings := repos.NewListingRepo(db)
	id, err := listings.Create(context.Background(), domain.Listing{
		SellerID:          sellerID,
		Title:             "Listing for " + price,
		Price:             decimal.RequireFromString(price),
		AvailableQuantity: qty,
		Listed:            true,
	}, time.Now())
	require.NoError(t, err)
	l, err := listings.Get(context.Background(), id)
	require.NoError(t, err)
	return l
}
