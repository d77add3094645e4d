package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sakif/reservations/internal/apperror"
	"github.com/sakif/reservations/internal/idgen"
	"github.com/sakif/reservations/internal/metrics"
	"github.com/sakif/reservations/internal/model"
	"github.com/sakif/reservations/internal/repository"
)

// BookingService creates reservations without ever exceeding a schedule's
// capacity or double-booking a user, no matter how many requests race.
type BookingService struct {
	tx      repository.Transactor
	ids     *idgen.Generator
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewBookingService(tx repository.Transactor, ids *idgen.Generator, m *metrics.Metrics, logger *slog.Logger) *BookingService {
	return &BookingService{tx: tx, ids: ids, metrics: m, logger: logger}
}

// Reserve books one slot on scheduleID for userID.
//
// THE TRANSACTION, STEP BY STEP:
// Every step runs inside one transaction and the order is load-bearing.
//
//  1. Lock the schedule row. Concurrent bookings for the same schedule queue
//     here, so steps 3-5 below never interleave between two of them.
//     Missing schedule → schedule_not_found.
//  2. The user must exist → else user_not_found.
//  3. No existing reservation for (schedule, user) → else already_reserved.
//  4. Count reservations (after the lock!) against capacity → capacity_full
//     when count >= capacity.
//  5. Generate a unique id and insert with the storage clock's timestamp.
//
// Any failure rolls back, so a rejected booking leaves no rows behind.
// Nothing is retried: a lock timeout surfaces as storage_failure.
func (s *BookingService) Reserve(ctx context.Context, scheduleID, userID string) (*model.Reservation, error) {
	start := time.Now()

	var reservation *model.Reservation
	err := s.tx.WithinTx(ctx, func(tx repository.WriteTx) error {
		found, err := tx.LockSchedule(ctx, scheduleID)
		if err != nil {
			return apperror.StorageFailure("locking schedule", err)
		}
		if !found {
			return apperror.Rejected(apperror.KindScheduleNotFound)
		}

		userExists, err := tx.UserExists(ctx, userID)
		if err != nil {
			return apperror.StorageFailure("checking user", err)
		}
		if !userExists {
			return apperror.Rejected(apperror.KindUserNotFound)
		}

		taken, err := tx.ReservationExists(ctx, scheduleID, userID)
		if err != nil {
			return apperror.StorageFailure("checking existing reservation", err)
		}
		if taken {
			return apperror.Rejected(apperror.KindAlreadyReserved)
		}

		capacity, err := tx.ScheduleCapacity(ctx, scheduleID)
		if err != nil {
			return apperror.StorageFailure("reading capacity", err)
		}
		reserved, err := tx.CountReservations(ctx, scheduleID)
		if err != nil {
			return apperror.StorageFailure("counting reservations", err)
		}
		if reserved >= capacity {
			return apperror.Rejected(apperror.KindCapacityFull)
		}

		id, err := s.ids.Generate(ctx, tx, repository.TableReservations)
		if err != nil {
			return err
		}

		r := &model.Reservation{ID: id, ScheduleID: scheduleID, UserID: userID}
		if err := tx.InsertReservation(ctx, r); err != nil {
			return apperror.StorageFailure("inserting reservation", err)
		}
		reservation = r
		return nil
	})

	outcome := "ok"
	if err != nil {
		// Begin/commit failures come back from WithinTx unwrapped.
		err = asAppError("booking transaction", err)
		outcome = string(apperror.KindOf(err))
	}
	s.metrics.ObserveBooking(outcome, time.Since(start))

	switch {
	case err == nil:
		s.logger.Info("reservation created",
			slog.String("id", reservation.ID),
			slog.String("schedule_id", scheduleID),
			slog.String("user_id", userID),
		)
		return reservation, nil
	case errors.Is(err, apperror.ErrForbidden):
		s.logger.Info("reservation rejected",
			slog.String("reason", outcome),
			slog.String("schedule_id", scheduleID),
			slog.String("user_id", userID),
		)
	default:
		s.logger.Error("reservation failed",
			slog.String("reason", outcome),
			slog.String("schedule_id", scheduleID),
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	}
	return nil, err
}
