// Package model defines the data structures used throughout the application.
package model

import "time"

// User is a registered account. Login is by email only; Staff is the single
// privilege flag and can only be set by bootstrap, never through the API.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Nickname  string    `json:"nickname"`
	Staff     bool      `json:"staff"`
	CreatedAt time.Time `json:"created_at"`
}

// IsStaff is nil-safe so anonymous viewers can be passed around as a nil *User.
func (u *User) IsStaff() bool {
	return u != nil && u.Staff
}

// UserView is the user as embedded in a reservation listing.
// Email is empty when the viewer may not see it.
type UserView struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Nickname  string    `json:"nickname"`
	CreatedAt time.Time `json:"created_at"`
}
