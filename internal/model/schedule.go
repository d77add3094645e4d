package model

import "time"

// Schedule is a bookable appointment slot with a fixed capacity.
//
// Reserved is not stored; it is filled by read queries that aggregate the
// reservations table.
type Schedule struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Capacity  int       `json:"capacity"`
	Reserved  int       `json:"reserved"`
	CreatedAt time.Time `json:"created_at"`
}

// ScheduleDetail is a schedule together with its privacy-filtered reservations.
type ScheduleDetail struct {
	Schedule
	Reservations []ReservationView `json:"reservations"`
}
