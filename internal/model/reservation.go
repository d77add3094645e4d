package model

import "time"

// Reservation is one user's claim on one schedule slot.
type Reservation struct {
	ID         string    `json:"id"`
	ScheduleID string    `json:"schedule_id"`
	UserID     string    `json:"user_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// ReservationRow is a reservation joined with its user, as read from storage.
// It still holds the unfiltered email and must not be serialized to clients.
type ReservationRow struct {
	Reservation
	User User
}

// ReservationView is the client-facing form of a ReservationRow.
type ReservationView struct {
	Reservation
	User UserView `json:"user"`
}
