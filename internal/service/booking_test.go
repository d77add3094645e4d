package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/sakif/reservations/internal/apperror"
	"github.com/sakif/reservations/internal/idgen"
	"github.com/sakif/reservations/internal/metrics"
	"github.com/sakif/reservations/internal/model"
)

// =========================================================================
// STEP ORDER (fake transaction)
// =========================================================================

func newFakeBooking(tx *fakeTx) *BookingService {
	return NewBookingService(&fakeTransactor{tx: tx}, newIDs(), nil, testLogger())
}

func TestReserve_StepOrder(t *testing.T) {
	tx := newFakeTx()
	tx.schedules["s1"] = 2
	tx.users["u1"] = true

	r, err := newFakeBooking(tx).Reserve(context.Background(), "s1", "u1")
	require.NoError(t, err)
	assert.NotEmpty(t, r.ID)
	assert.Equal(t, "s1", r.ScheduleID)
	assert.Equal(t, "u1", r.UserID)
	assert.False(t, r.CreatedAt.IsZero())

	assert.Equal(t, []string{
		"LockSchedule",
		"UserExists",
		"ReservationExists",
		"ScheduleCapacity",
		"CountReservations",
		"IDExists",
		"InsertReservation",
	}, tx.calls)
}

func TestReserve_Rejections(t *testing.T) {
	tests := []struct {
		name      string
		setup     func(tx *fakeTx)
		wantKind  apperror.Kind
		wantCalls []string
	}{
		{
			name:      "schedule missing stops right after the lock",
			setup:     func(tx *fakeTx) { tx.users["u1"] = true },
			wantKind:  apperror.KindScheduleNotFound,
			wantCalls: []string{"LockSchedule"},
		},
		{
			name:      "user missing",
			setup:     func(tx *fakeTx) { tx.schedules["s1"] = 5 },
			wantKind:  apperror.KindUserNotFound,
			wantCalls: []string{"LockSchedule", "UserExists"},
		},
		{
			name: "already reserved",
			setup: func(tx *fakeTx) {
				tx.schedules["s1"] = 5
				tx.users["u1"] = true
				tx.reservations = []model.Reservation{{ID: "r0", ScheduleID: "s1", UserID: "u1"}}
			},
			wantKind:  apperror.KindAlreadyReserved,
			wantCalls: []string{"LockSchedule", "UserExists", "ReservationExists"},
		},
		{
			name: "capacity full",
			setup: func(tx *fakeTx) {
				tx.schedules["s1"] = 1
				tx.users["u1"] = true
				tx.reservations = []model.Reservation{{ID: "r0", ScheduleID: "s1", UserID: "other"}}
			},
			wantKind:  apperror.KindCapacityFull,
			wantCalls: []string{"LockSchedule", "UserExists", "ReservationExists", "ScheduleCapacity", "CountReservations"},
		},
		{
			name: "zero capacity is always full",
			setup: func(tx *fakeTx) {
				tx.schedules["s1"] = 0
				tx.users["u1"] = true
			},
			wantKind:  apperror.KindCapacityFull,
			wantCalls: []string{"LockSchedule", "UserExists", "ReservationExists", "ScheduleCapacity", "CountReservations"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := newFakeTx()
			tt.setup(tx)

			_, err := newFakeBooking(tx).Reserve(context.Background(), "s1", "u1")
			require.Error(t, err)
			assert.True(t, apperror.IsKind(err, tt.wantKind), "got %v", apperror.KindOf(err))
			assert.ErrorIs(t, err, apperror.ErrForbidden)
			assert.Equal(t, tt.wantCalls, tx.calls)
		})
	}
}

// count == capacity-1 still has room.
func TestReserve_LastSlot(t *testing.T) {
	tx := newFakeTx()
	tx.schedules["s1"] = 2
	tx.users["u1"] = true
	tx.reservations = []model.Reservation{{ID: "r0", ScheduleID: "s1", UserID: "other"}}

	_, err := newFakeBooking(tx).Reserve(context.Background(), "s1", "u1")
	require.NoError(t, err)
	assert.Len(t, tx.reservations, 2)
}

func TestReserve_StorageErrors(t *testing.T) {
	dbErr := errors.New("database is locked")
	for _, step := range []string{"LockSchedule", "UserExists", "ReservationExists", "ScheduleCapacity", "CountReservations", "IDExists", "InsertReservation"} {
		t.Run(step, func(t *testing.T) {
			tx := newFakeTx()
			tx.schedules["s1"] = 5
			tx.users["u1"] = true
			tx.failOn = step
			tx.failErr = dbErr

			_, err := newFakeBooking(tx).Reserve(context.Background(), "s1", "u1")
			require.Error(t, err)
			assert.True(t, apperror.IsKind(err, apperror.KindStorageFailure))
			assert.ErrorIs(t, err, apperror.ErrInternal)
			assert.ErrorIs(t, err, dbErr)
			assert.Equal(t, step, tx.calls[len(tx.calls)-1], "nothing runs after the failing step")
		})
	}
}

func TestReserve_BeginFailure(t *testing.T) {
	svc := NewBookingService(&fakeTransactor{beginErr: errors.New("too many connections")}, newIDs(), nil, testLogger())

	_, err := svc.Reserve(context.Background(), "s1", "u1")
	assert.True(t, apperror.IsKind(err, apperror.KindStorageFailure))
}

func TestReserve_IdentifierCollisionExhausted(t *testing.T) {
	tx := newFakeTx()
	tx.schedules["s1"] = 5
	tx.users["u1"] = true
	tx.takenIDs["fixed"] = true

	ids := idgen.New(func() (string, error) { return "fixed", nil }, 3)
	svc := NewBookingService(&fakeTransactor{tx: tx}, ids, nil, testLogger())

	_, err := svc.Reserve(context.Background(), "s1", "u1")
	assert.True(t, apperror.IsKind(err, apperror.KindIdentifierCollisionExhausted))
	assert.NotContains(t, tx.calls, "InsertReservation")
}

func TestReserve_RecordsMetrics(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	tx := newFakeTx()
	tx.schedules["s1"] = 1
	tx.users["u1"] = true
	tx.users["u2"] = true
	svc := NewBookingService(&fakeTransactor{tx: tx}, newIDs(), m, testLogger())

	_, err := svc.Reserve(context.Background(), "s1", "u1")
	require.NoError(t, err)
	_, err = svc.Reserve(context.Background(), "s1", "u2")
	require.Error(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.BookingsTotal.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BookingsTotal.WithLabelValues("capacity_full")))
}

// =========================================================================
// CONCURRENCY (real SQLite)
// =========================================================================

type bookingFixture struct {
	accounts  *AccountService
	schedules *ScheduleService
	booking   *BookingService
}

func newBookingFixture(t *testing.T) *bookingFixture {
	t.Helper()
	store := newTestStore(t)
	ids := newIDs()
	return &bookingFixture{
		accounts:  NewAccountService(store, ids, SeedUser{Email: "seed@example.com", Nickname: "seed"}, testLogger()),
		schedules: NewScheduleService(store, ids, testLogger()),
		booking:   NewBookingService(store, ids, nil, testLogger()),
	}
}

// C+k distinct users race for C slots: exactly C win, k get capacity_full,
// and the stored count equals C.
func TestReserve_ConcurrentNeverExceedsCapacity(t *testing.T) {
	f := newBookingFixture(t)
	const capacity, extra = 5, 7

	schedule := mustCreateSchedule(t, f.schedules, "flu shots", capacity)
	users := make([]*model.User, capacity+extra)
	for i := range users {
		users[i] = mustSignup(t, f.accounts, fmt.Sprintf("user%02d@example.com", i))
	}

	var (
		mu        sync.Mutex
		successes int
		kinds     = map[apperror.Kind]int{}
		ids       = map[string]bool{}
	)
	var g errgroup.Group
	for _, u := range users {
		u := u
		g.Go(func() error {
			r, err := f.booking.Reserve(context.Background(), schedule.ID, u.ID)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				kinds[apperror.KindOf(err)]++
				return nil
			}
			successes++
			ids[r.ID] = true
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, capacity, successes)
	assert.Equal(t, map[apperror.Kind]int{apperror.KindCapacityFull: extra}, kinds)
	assert.Len(t, ids, capacity, "reservation ids are unique")

	detail, err := f.schedules.Get(context.Background(), schedule.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, capacity, detail.Reserved)
	assert.Len(t, detail.Reservations, capacity)
}

// One user hammering the same schedule gets exactly one reservation.
func TestReserve_ConcurrentSameUser(t *testing.T) {
	f := newBookingFixture(t)
	schedule := mustCreateSchedule(t, f.schedules, "checkup", 10)
	user := mustSignup(t, f.accounts, "eager@example.com")

	const attempts = 8
	results := make([]error, attempts)
	var g errgroup.Group
	for i := 0; i < attempts; i++ {
		i := i
		g.Go(func() error {
			_, results[i] = f.booking.Reserve(context.Background(), schedule.ID, user.ID)
			return nil
		})
	}
	require.NoError(t, g.Wait())

	ok, already := 0, 0
	for _, err := range results {
		switch {
		case err == nil:
			ok++
		case apperror.IsKind(err, apperror.KindAlreadyReserved):
			already++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, attempts-1, already)
}

// Bookings on different schedules don't affect each other's counts.
func TestReserve_IndependentSchedules(t *testing.T) {
	f := newBookingFixture(t)
	a := mustCreateSchedule(t, f.schedules, "a", 1)
	b := mustCreateSchedule(t, f.schedules, "b", 1)
	u := mustSignup(t, f.accounts, "u@example.com")

	_, err := f.booking.Reserve(context.Background(), a.ID, u.ID)
	require.NoError(t, err)
	_, err = f.booking.Reserve(context.Background(), b.ID, u.ID)
	require.NoError(t, err)

	other := mustSignup(t, f.accounts, "other@example.com")
	_, err = f.booking.Reserve(context.Background(), a.ID, other.ID)
	assert.True(t, apperror.IsKind(err, apperror.KindCapacityFull))
}

func TestReserve_UnknownScheduleAndUser(t *testing.T) {
	f := newBookingFixture(t)
	s := mustCreateSchedule(t, f.schedules, "a", 3)
	u := mustSignup(t, f.accounts, "u@example.com")

	_, err := f.booking.Reserve(context.Background(), "no-such-schedule", u.ID)
	assert.True(t, apperror.IsKind(err, apperror.KindScheduleNotFound))

	_, err = f.booking.Reserve(context.Background(), s.ID, "no-such-user")
	assert.True(t, apperror.IsKind(err, apperror.KindUserNotFound))

	detail, err := f.schedules.Get(context.Background(), s.ID, nil)
	require.NoError(t, err)
	assert.Zero(t, detail.Reserved, "rejected bookings leave no rows")
}

func TestReserve_CancelledContext(t *testing.T) {
	f := newBookingFixture(t)
	s := mustCreateSchedule(t, f.schedules, "a", 3)
	u := mustSignup(t, f.accounts, "u@example.com")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.booking.Reserve(ctx, s.ID, u.ID)
	require.Error(t, err)
	assert.True(t, apperror.IsKind(err, apperror.KindStorageFailure))
	assert.ErrorIs(t, err, context.Canceled)
}
