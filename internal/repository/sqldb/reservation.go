package sqldb

import (
	"context"
	"fmt"

	"github.com/sakif/reservations/internal/model"
)

// ListReservations reads the schedule's reservations joined with their users.
// The rows carry real emails; callers must pass them through the view builder
// before anything reaches a client.
func (db *DB) ListReservations(ctx context.Context, scheduleID string) ([]model.ReservationRow, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT r.id, r.schedule_id, r.user_id, r.created_at,
		        u.id, u.email, u.nickname, u.staff, u.created_at
		 FROM reservations r
		 JOIN users u ON u.id = r.user_id
		 WHERE r.schedule_id = ?
		 ORDER BY r.created_at, r.id`,
		scheduleID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqldb: listing reservations of %s: %w", scheduleID, err)
	}
	defer rows.Close()

	result := []model.ReservationRow{}
	for rows.Next() {
		var row model.ReservationRow
		if err := rows.Scan(
			&row.ID, &row.ScheduleID, &row.UserID, scanTime(&row.Reservation.CreatedAt),
			&row.User.ID, &row.User.Email, &row.User.Nickname, &row.User.Staff, scanTime(&row.User.CreatedAt),
		); err != nil {
			return nil, fmt.Errorf("sqldb: scanning reservation: %w", err)
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqldb: iterating reservations: %w", err)
	}
	return result, nil
}
