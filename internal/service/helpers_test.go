package service

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sakif/reservations/internal/idgen"
	"github.com/sakif/reservations/internal/model"
	"github.com/sakif/reservations/internal/repository"
	"github.com/sakif/reservations/internal/repository/sqldb"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// =========================================================================
// RECORDING FAKE
// =========================================================================
//
// fakeTx answers the booking engine's questions from fixed state and records
// every call, so tests can assert the exact order of steps and that nothing
// runs after a rejection.

type fakeTx struct {
	schedules    map[string]int // id → capacity
	users        map[string]bool
	reservations []model.Reservation
	takenIDs     map[string]bool
	failOn       string // method name that returns failErr
	failErr      error

	calls []string
}

func newFakeTx() *fakeTx {
	return &fakeTx{
		schedules: map[string]int{},
		users:     map[string]bool{},
		takenIDs:  map[string]bool{},
	}
}

func (f *fakeTx) record(name string) error {
	f.calls = append(f.calls, name)
	if f.failOn == name {
		return f.failErr
	}
	return nil
}

func (f *fakeTx) IDExists(_ context.Context, _ string, id string) (bool, error) {
	if err := f.record("IDExists"); err != nil {
		return false, err
	}
	return f.takenIDs[id], nil
}

func (f *fakeTx) LockSchedule(_ context.Context, id string) (bool, error) {
	if err := f.record("LockSchedule"); err != nil {
		return false, err
	}
	_, ok := f.schedules[id]
	return ok, nil
}

func (f *fakeTx) UserExists(_ context.Context, id string) (bool, error) {
	if err := f.record("UserExists"); err != nil {
		return false, err
	}
	return f.users[id], nil
}

func (f *fakeTx) ReservationExists(_ context.Context, scheduleID, userID string) (bool, error) {
	if err := f.record("ReservationExists"); err != nil {
		return false, err
	}
	for _, r := range f.reservations {
		if r.ScheduleID == scheduleID && r.UserID == userID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeTx) ScheduleCapacity(_ context.Context, id string) (int, error) {
	if err := f.record("ScheduleCapacity"); err != nil {
		return 0, err
	}
	return f.schedules[id], nil
}

func (f *fakeTx) CountReservations(_ context.Context, id string) (int, error) {
	if err := f.record("CountReservations"); err != nil {
		return 0, err
	}
	n := 0
	for _, r := range f.reservations {
		if r.ScheduleID == id {
			n++
		}
	}
	return n, nil
}

func (f *fakeTx) InsertReservation(_ context.Context, r *model.Reservation) error {
	if err := f.record("InsertReservation"); err != nil {
		return err
	}
	r.CreatedAt = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	f.reservations = append(f.reservations, *r)
	return nil
}

func (f *fakeTx) InsertSchedule(context.Context, *model.Schedule) error {
	return f.record("InsertSchedule")
}

func (f *fakeTx) InsertUser(context.Context, *model.User) error {
	return f.record("InsertUser")
}

func (f *fakeTx) Truncate(context.Context) error {
	return f.record("Truncate")
}

// fakeTransactor runs fn against tx. It does not undo writes; tests check
// the returned error and the recorded calls instead.
type fakeTransactor struct {
	tx       *fakeTx
	beginErr error
}

func (f *fakeTransactor) WithinTx(_ context.Context, fn func(repository.WriteTx) error) error {
	if f.beginErr != nil {
		return f.beginErr
	}
	return fn(f.tx)
}

// =========================================================================
// SQLITE-BACKED FIXTURES
// =========================================================================

func newTestStore(t *testing.T) *sqldb.DB {
	t.Helper()
	db, err := sqldb.Open(context.Background(), sqldb.Options{
		Driver: "sqlite",
		DSN:    sqldb.SQLiteDSN(filepath.Join(t.TempDir(), "service.db"), 10*time.Second),
		Logger: testLogger(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func newIDs() *idgen.Generator {
	return idgen.New(idgen.UUIDv7, idgen.DefaultMaxAttempts)
}

func mustSignup(t *testing.T, accounts *AccountService, email string) *model.User {
	t.Helper()
	u, err := accounts.Signup(context.Background(), email, "nick "+email)
	require.NoError(t, err)
	return u
}

func staffUser() *model.User {
	return &model.User{ID: "staff", Email: "staff@example.com", Staff: true}
}

func mustCreateSchedule(t *testing.T, schedules *ScheduleService, title string, capacity int) *model.Schedule {
	t.Helper()
	s, err := schedules.Create(context.Background(), staffUser(), title, capacity)
	require.NoError(t, err)
	return s
}
