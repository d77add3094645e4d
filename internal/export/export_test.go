package export

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/sakif/reservations/internal/model"
)

func TestWriteReservations(t *testing.T) {
	created := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	detail := &model.ScheduleDetail{
		Schedule: model.Schedule{ID: "s1", Title: "Flu shots", Capacity: 3, Reserved: 2},
		Reservations: []model.ReservationView{
			{
				Reservation: model.Reservation{ID: "r1", ScheduleID: "s1", UserID: "u1", CreatedAt: created},
				User:        model.UserView{ID: "u1", Email: "u1@example.com", Nickname: "one"},
			},
			{
				Reservation: model.Reservation{ID: "r2", ScheduleID: "s1", UserID: "u2", CreatedAt: created.Add(time.Minute)},
				User:        model.UserView{ID: "u2", Email: "", Nickname: "two"},
			},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteReservations(&buf, detail))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Flu shots")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, columns, rows[0])
	assert.Equal(t, []string{"r1", "u1", "one", "u1@example.com", "2026-05-01T10:00:00Z"}, rows[1])
	assert.Equal(t, "r2", rows[2][0])
	assert.Equal(t, "two", rows[2][2])
}

func TestSheetName(t *testing.T) {
	assert.Equal(t, "Reservations", sheetName(""))
	assert.Equal(t, "Reservations", sheetName("[]"))
	assert.Equal(t, "ab", sheetName("a/b"))
	assert.Equal(t, strings.Repeat("x", 31), sheetName(strings.Repeat("x", 40)))
}

func TestWriteReservations_BoldHeader(t *testing.T) {
	detail := &model.ScheduleDetail{Schedule: model.Schedule{ID: "s1", Title: "Empty"}}

	var buf bytes.Buffer
	require.NoError(t, WriteReservations(&buf, detail))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	for _, cell := range []string{"A1", "E1"} {
		id, err := f.GetCellStyle("Empty", cell)
		require.NoError(t, err)
		style, err := f.GetStyle(id)
		require.NoError(t, err)
		require.NotNil(t, style.Font, cell)
		assert.True(t, style.Font.Bold, cell)
	}
}

func TestBoldHeader_UnknownSheet(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()

	assert.Error(t, boldHeader(f, "missing"))
}
