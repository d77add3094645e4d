package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/reservations/internal/apperror"
	"github.com/sakif/reservations/internal/model"
)

// =========================================================================
// CREATE TESTS
// =========================================================================

func TestScheduleCreate(t *testing.T) {
	f := newBookingFixture(t)

	s, err := f.schedules.Create(context.Background(), staffUser(), "  Vaccination  ", 10)
	require.NoError(t, err)
	assert.NotEmpty(t, s.ID)
	assert.Equal(t, "Vaccination", s.Title, "title is trimmed")
	assert.Equal(t, 10, s.Capacity)
	assert.False(t, s.CreatedAt.IsZero())
}

func TestScheduleCreate_Authorization(t *testing.T) {
	f := newBookingFixture(t)

	_, err := f.schedules.Create(context.Background(), nil, "x", 1)
	assert.True(t, apperror.IsKind(err, apperror.KindNotAuthenticated))

	_, err = f.schedules.Create(context.Background(), &model.User{ID: "u1"}, "x", 1)
	assert.True(t, apperror.IsKind(err, apperror.KindNotAuthorized))
}

func TestScheduleCreate_Validation(t *testing.T) {
	f := newBookingFixture(t)

	tests := []struct {
		name      string
		title     string
		capacity  int
		wantField string
	}{
		{"empty title", "", 1, "title"},
		{"blank title", "   ", 1, "title"},
		{"title too long", strings.Repeat("a", MaxScheduleTitleLength+1), 1, "title"},
		{"negative capacity", "ok", -1, "capacity"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.schedules.Create(context.Background(), staffUser(), tt.title, tt.capacity)
			require.ErrorIs(t, err, apperror.ErrValidation)
			var appErr *apperror.AppError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, tt.wantField, appErr.Field)
		})
	}

	_, err := f.schedules.Create(context.Background(), staffUser(), "zero is allowed", 0)
	assert.NoError(t, err)
}

// =========================================================================
// READ TESTS
// =========================================================================

func TestScheduleList_NewestFirstWithCounts(t *testing.T) {
	f := newBookingFixture(t)
	first := mustCreateSchedule(t, f.schedules, "first", 2)
	second := mustCreateSchedule(t, f.schedules, "second", 2)
	u := mustSignup(t, f.accounts, "u@example.com")
	_, err := f.booking.Reserve(context.Background(), first.ID, u.ID)
	require.NoError(t, err)

	list, err := f.schedules.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
	assert.Equal(t, 0, list[0].Reserved)
	assert.Equal(t, first.ID, list[1].ID)
	assert.Equal(t, 1, list[1].Reserved)
}

func TestScheduleGet(t *testing.T) {
	f := newBookingFixture(t)
	s := mustCreateSchedule(t, f.schedules, "x-ray", 4)
	u := mustSignup(t, f.accounts, "u@example.com")
	_, err := f.booking.Reserve(context.Background(), s.ID, u.ID)
	require.NoError(t, err)

	detail, err := f.schedules.Get(context.Background(), s.ID, u)
	require.NoError(t, err)
	assert.Equal(t, "x-ray", detail.Title)
	assert.Equal(t, 1, detail.Reserved)
	require.Len(t, detail.Reservations, 1)
	assert.Equal(t, "u@example.com", detail.Reservations[0].User.Email)
}

func TestScheduleGet_NotFound(t *testing.T) {
	f := newBookingFixture(t)

	_, err := f.schedules.Get(context.Background(), "missing", nil)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
	assert.True(t, apperror.IsKind(err, apperror.KindScheduleNotFound))
}
