package users

import "time"

// User is an account row. UpdatedAt doubles as the optimistic concurrency
// version token and is bumped atomically on every successful mutation.
type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	IsActive     bool      `json:"isActive"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Version returns the concurrency token.
func (u User) Version() time.Time {
	return u.UpdatedAt
}

// Snapshot captures the mutable fields for audit diffing.
func (u User) Snapshot() map[string]any {
	return map[string]any{
		"email":    u.Email,
		"name":     u.Name,
		"isActive": u.IsActive,
	}
}
