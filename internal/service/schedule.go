// Package service contains the business logic layer of the application.
//
// THE THREE LAYERS:
//
//	Handler (HTTP)     → parses requests, writes responses
//	Service (business) → validates, enforces rules, runs transactions
//	Repository (data)  → reads/writes the database
//
// Services take repository interfaces, never *sqldb.DB, so tests can swap in
// fakes and the storage engine can change without touching this package.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/sakif/reservations/internal/apperror"
	"github.com/sakif/reservations/internal/idgen"
	"github.com/sakif/reservations/internal/model"
	"github.com/sakif/reservations/internal/repository"
)

const MaxScheduleTitleLength = 255

// ScheduleStore is what ScheduleService needs from storage.
type ScheduleStore interface {
	repository.Transactor
	repository.ScheduleRepository
}

type ScheduleService struct {
	store  ScheduleStore
	ids    *idgen.Generator
	views  *ReservationViewBuilder
	logger *slog.Logger
}

func NewScheduleService(store ScheduleStore, ids *idgen.Generator, logger *slog.Logger) *ScheduleService {
	return &ScheduleService{
		store:  store,
		ids:    ids,
		views:  NewReservationViewBuilder(store),
		logger: logger,
	}
}

// Create publishes a new schedule. Only staff may call it; capacity is fixed
// for the schedule's lifetime.
func (s *ScheduleService) Create(ctx context.Context, viewer *model.User, title string, capacity int) (*model.Schedule, error) {
	if viewer == nil {
		return nil, apperror.NotAuthenticated()
	}
	if !viewer.IsStaff() {
		return nil, apperror.NotAuthorized()
	}

	title = strings.TrimSpace(title)
	if title == "" {
		return nil, apperror.ValidationFailed("title", "schedule title is required")
	}
	if utf8.RuneCountInString(title) > MaxScheduleTitleLength {
		return nil, apperror.ValidationFailed("title",
			fmt.Sprintf("schedule title must be %d characters or less", MaxScheduleTitleLength))
	}
	if capacity < 0 {
		return nil, apperror.ValidationFailed("capacity", "capacity must not be negative")
	}

	schedule := &model.Schedule{Title: title, Capacity: capacity}
	err := s.store.WithinTx(ctx, func(tx repository.WriteTx) error {
		id, err := s.ids.Generate(ctx, tx, repository.TableSchedules)
		if err != nil {
			return err
		}
		schedule.ID = id
		if err := tx.InsertSchedule(ctx, schedule); err != nil {
			return apperror.StorageFailure("inserting schedule", err)
		}
		return nil
	})
	if err != nil {
		s.logger.Error("failed to create schedule", slog.String("error", err.Error()))
		return nil, fmt.Errorf("creating schedule: %w", asAppError("creating schedule", err))
	}

	s.logger.Info("schedule created",
		slog.String("id", schedule.ID),
		slog.String("title", schedule.Title),
		slog.Int("capacity", schedule.Capacity),
		slog.String("by", viewer.ID),
	)
	return schedule, nil
}

// List returns all schedules with their reserved counts, newest first.
func (s *ScheduleService) List(ctx context.Context) ([]model.Schedule, error) {
	schedules, err := s.store.ListSchedules(ctx)
	if err != nil {
		return nil, apperror.StorageFailure("listing schedules", err)
	}
	return schedules, nil
}

// Get returns the schedule with its reservations as viewer may see them.
func (s *ScheduleService) Get(ctx context.Context, id string, viewer *model.User) (*model.ScheduleDetail, error) {
	schedule, err := s.store.GetSchedule(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("getting schedule: %w", asAppError("getting schedule", err))
	}

	reservations, err := s.views.Build(ctx, id, viewer)
	if err != nil {
		return nil, err
	}

	return &model.ScheduleDetail{Schedule: *schedule, Reservations: reservations}, nil
}
