// Package repository declares the storage interfaces the service layer depends on.
// The sqldb package implements them for SQLite and MySQL.
package repository

import (
	"context"
	"errors"

	"github.com/sakif/reservations/internal/model"
)

// ErrDuplicate is returned when an insert violates a unique constraint.
var ErrDuplicate = errors.New("repository: duplicate key")

// Tables whose primary keys come from the identifier generator.
const (
	TableUsers        = "users"
	TableSchedules    = "schedules"
	TableReservations = "reservations"
)

// IDChecker checks whether an identifier is already taken. It runs inside the
// caller's transaction so a check and the following insert see the same state.
type IDChecker interface {
	IDExists(ctx context.Context, table, id string) (bool, error)
}

// WriteTx is the set of statements available inside a write transaction.
// Method order in the booking engine matters; see service.BookingService.
type WriteTx interface {
	IDChecker

	// LockSchedule takes the exclusive lock on the schedule row and reports
	// whether it exists. Every other reservation write for the same schedule
	// blocks here until this transaction ends.
	LockSchedule(ctx context.Context, scheduleID string) (bool, error)
	UserExists(ctx context.Context, userID string) (bool, error)
	ReservationExists(ctx context.Context, scheduleID, userID string) (bool, error)
	ScheduleCapacity(ctx context.Context, scheduleID string) (int, error)
	CountReservations(ctx context.Context, scheduleID string) (int, error)

	// Insert methods set CreatedAt from the storage clock.
	InsertReservation(ctx context.Context, r *model.Reservation) error
	InsertSchedule(ctx context.Context, s *model.Schedule) error
	InsertUser(ctx context.Context, u *model.User) error

	// Truncate removes every row from reservations, schedules and users.
	Truncate(ctx context.Context) error
}

// Transactor runs fn in a single write transaction. The transaction commits
// when fn returns nil and rolls back otherwise.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(tx WriteTx) error) error
}

type UserRepository interface {
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
}

type ScheduleRepository interface {
	GetSchedule(ctx context.Context, id string) (*model.Schedule, error)
	// ListSchedules returns every schedule with its reserved count, newest first.
	ListSchedules(ctx context.Context) ([]model.Schedule, error)
	// ListReservations returns the schedule's reservations joined with their
	// users, in creation order.
	ListReservations(ctx context.Context, scheduleID string) ([]model.ReservationRow, error)
}

// Store is everything the services need from storage.
type Store interface {
	Transactor
	UserRepository
	ScheduleRepository
	Ping(ctx context.Context) error
}
