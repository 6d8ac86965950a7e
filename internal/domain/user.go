package domain

import "time"

type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

type User struct {
	ID               int64
	Email            string
	Name             string
	Hash             string
	Role             Role
	Premium          bool
	PremiumExpiresAt *time.Time
	FreeBoostUsed    bool
}

// IsPremiumAt reports whether the premium tier is in effect at now. A premium
// flag whose expiry is missing or not in the future counts as standard tier.
func (u User) IsPremiumAt(now time.Time) bool {
	return u.Premium && u.PremiumExpiresAt != nil && u.PremiumExpiresAt.After(now)
}

// Actor is the authenticated identity performing an operation.
type Actor struct {
	UserID int64
	Role   Role
}

func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }
