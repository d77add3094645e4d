package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/sakif/reservations/internal/apperror"
	"github.com/sakif/reservations/internal/model"
)

// GetSchedule returns the schedule with its current reserved count.
func (db *DB) GetSchedule(ctx context.Context, id string) (*model.Schedule, error) {
	var s model.Schedule
	err := db.conn.QueryRowContext(ctx,
		`SELECT s.id, s.title, s.capacity, s.created_at,
		        (SELECT COUNT(*) FROM reservations r WHERE r.schedule_id = s.id)
		 FROM schedules s
		 WHERE s.id = ?`,
		id,
	).Scan(&s.ID, &s.Title, &s.Capacity, scanTime(&s.CreatedAt), &s.Reserved)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.ScheduleNotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("sqldb: getting schedule %s: %w", id, err)
	}
	return &s, nil
}

// ListSchedules aggregates reserved counts with a LEFT JOIN so schedules
// without reservations are listed with zero. IDs are time ordered, so id
// DESC is newest first.
func (db *DB) ListSchedules(ctx context.Context) ([]model.Schedule, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT s.id, s.title, s.capacity, s.created_at, COUNT(r.id)
		 FROM schedules s
		 LEFT JOIN reservations r ON r.schedule_id = s.id
		 GROUP BY s.id, s.title, s.capacity, s.created_at
		 ORDER BY s.id DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("sqldb: listing schedules: %w", err)
	}
	defer rows.Close()

	schedules := []model.Schedule{}
	for rows.Next() {
		var s model.Schedule
		if err := rows.Scan(&s.ID, &s.Title, &s.Capacity, scanTime(&s.CreatedAt), &s.Reserved); err != nil {
			return nil, fmt.Errorf("sqldb: scanning schedule: %w", err)
		}
		schedules = append(schedules, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqldb: iterating schedules: %w", err)
	}
	return schedules, nil
}
