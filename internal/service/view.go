package service

import (
	"context"

	"github.com/sakif/reservations/internal/apperror"
	"github.com/sakif/reservations/internal/model"
	"github.com/sakif/reservations/internal/repository"
)

// ReservationViewBuilder is the only path from stored reservations to
// anything a client sees. Storage rows hold real emails; views do not,
// unless EmailVisible says so.
type ReservationViewBuilder struct {
	repo repository.ScheduleRepository
}

func NewReservationViewBuilder(repo repository.ScheduleRepository) *ReservationViewBuilder {
	return &ReservationViewBuilder{repo: repo}
}

// Build lists the schedule's reservations as viewer may see them, in
// creation order. It is read-only and takes no locks; a booking committed
// mid-read may or may not appear.
func (b *ReservationViewBuilder) Build(ctx context.Context, scheduleID string, viewer *model.User) ([]model.ReservationView, error) {
	rows, err := b.repo.ListReservations(ctx, scheduleID)
	if err != nil {
		return nil, apperror.StorageFailure("listing reservations", err)
	}
	return BuildReservationViews(viewer, rows), nil
}

// EmailVisible is the one privacy rule of the API: a user's email is shown
// only to that user and to staff. Anonymous viewers (nil) see no emails.
func EmailVisible(viewer *model.User, ownerID string) bool {
	if viewer == nil {
		return false
	}
	return viewer.ID == ownerID || viewer.Staff
}

// BuildReservationViews turns storage rows into client views for viewer,
// blanking every email EmailVisible does not allow. Order is preserved.
func BuildReservationViews(viewer *model.User, rows []model.ReservationRow) []model.ReservationView {
	views := make([]model.ReservationView, 0, len(rows))
	for _, row := range rows {
		email := ""
		if EmailVisible(viewer, row.User.ID) {
			email = row.User.Email
		}
		views = append(views, model.ReservationView{
			Reservation: row.Reservation,
			User: model.UserView{
				ID:        row.User.ID,
				Email:     email,
				Nickname:  row.User.Nickname,
				CreatedAt: row.User.CreatedAt,
			},
		})
	}
	return views
}
