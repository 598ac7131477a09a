package models

import (
	"time"
)

// User represents an account in the system. Role feeds both the JWT roles
// claim and the compliance policy's per-role budget ceilings.
type User struct {
	ID             string    `json:"id" db:"id"`
	Name           string    `json:"name" db:"name"`
	Email          string    `json:"email" db:"email"`
	Role           string    `json:"role" db:"role"`
	HashedPassword string    `json:"-" db:"hashed_password"` // Never expose in JSON
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

// Requester converts a user into the requester identity attached to a
// procurement request.
func (u *User) Requester() Requester {
	return Requester{
		ID:    u.ID,
		Name:  u.Name,
		Email: u.Email,
		Role:  u.Role,
	}
}
