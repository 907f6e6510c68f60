package services

import (
	"fmt"
	"testing"
	"time"

	"github.com/smarttransit/seat-booking-core/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpirationService_ExpiresLapsedHolds(t *testing.T) {
	e := newTestEngine(t)

	b := e.book(t, "sess-a", 14, 15)
	ps, err := e.payments.CreateSession(e.ctx(), b.ID)
	require.NoError(t, err)
	_, err = e.locks.Acquire(e.ctx(), testScheduleID, []int{30}, "sess-idle")
	require.NoError(t, err)

	// nothing is due yet
	report := e.sweeper.RunOnce(e.ctx())
	assert.Equal(t, SweepReport{}, report)

	e.clock.Advance(testHoldDuration)
	report = e.sweeper.RunOnce(e.ctx())
	assert.Equal(t, 1, report.BookingsExpired)
	assert.Equal(t, 1, report.LocksRemoved)
	assert.Equal(t, 1, report.SessionsExpired)
	assert.Zero(t, report.Errors)

	got, err := e.bookings.Get(e.ctx(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusExpired, got.Status)
	assert.Nil(t, got.ExpiresAt)

	stored, err := e.store.GetSession(e.ctx(), ps.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentSessionExpired, stored.Status)

	// the seats are free again
	_, err = e.locks.Acquire(e.ctx(), testScheduleID, []int{14, 15}, "sess-b")
	require.NoError(t, err)

	// re-running is a no-op
	assert.Equal(t, SweepReport{}, e.sweeper.RunOnce(e.ctx()))
	assert.Contains(t, e.events.types(), models.EventBookingExpired)
}

func TestExpirationService_ProcessesEveryBatch(t *testing.T) {
	e := newTestEngine(t)

	for i := 1; i <= 5; i++ {
		e.book(t, fmt.Sprintf("sess-batch-%d", i), i)
	}
	e.clock.Advance(testHoldDuration + time.Second)

	report := e.sweeper.RunOnce(e.ctx())
	assert.Equal(t, 5, report.BookingsExpired)

	expired, err := e.store.ListExpiredPendingBookings(e.ctx(), e.clock.Now(), 0)
	require.NoError(t, err)
	assert.Empty(t, expired)
}

func TestExpirationService_DoesNotExpireConfirmedBooking(t *testing.T) {
	e := newTestEngine(t)

	b := e.book(t, "sess-a", 1)
	_, err := e.bookings.Confirm(e.ctx(), b.ID, "TXN-1")
	require.NoError(t, err)

	e.clock.Advance(time.Hour)
	report := e.sweeper.RunOnce(e.ctx())
	assert.Zero(t, report.BookingsExpired)

	got, err := e.bookings.Get(e.ctx(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusConfirmed, got.Status)
}

func TestExpirationService_ScheduleLifecycle(t *testing.T) {
	e := newTestEngine(t)

	confirmed := e.book(t, "sess-a", 1, 2)
	_, err := e.bookings.Confirm(e.ctx(), confirmed.ID, "TXN-1")
	require.NoError(t, err)
	cancelled := e.book(t, "sess-b", 3)
	_, _, err = e.bookings.Cancel(e.ctx(), cancelled.ID, "")
	require.NoError(t, err)

	e.clock.Set(e.schedule.DepartureAt)
	report := e.sweeper.RunOnce(e.ctx())
	assert.Equal(t, 1, report.SchedulesStarted)
	assert.Zero(t, report.SchedulesCompleted)

	sc, err := e.store.GetSchedule(e.ctx(), testScheduleID)
	require.NoError(t, err)
	assert.Equal(t, models.ScheduleStatusInProgress, sc.Status)

	e.clock.Set(e.schedule.ArrivalAt)
	report = e.sweeper.RunOnce(e.ctx())
	assert.Equal(t, 1, report.SchedulesCompleted)
	assert.Equal(t, 1, report.BookingsCompleted)

	sc, err = e.store.GetSchedule(e.ctx(), testScheduleID)
	require.NoError(t, err)
	assert.Equal(t, models.ScheduleStatusCompleted, sc.Status)

	got, err := e.bookings.Get(e.ctx(), confirmed.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusCompleted, got.Status)

	got, err = e.bookings.Get(e.ctx(), cancelled.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusCancelled, got.Status)

	assert.Equal(t, SweepReport{}, e.sweeper.RunOnce(e.ctx()))
}

func TestExpirationService_StartStop(t *testing.T) {
	e := newTestEngine(t)

	require.NoError(t, e.sweeper.Start())
	assert.Error(t, e.sweeper.Start())
	e.sweeper.Stop()
	e.sweeper.Stop()

	require.NoError(t, e.sweeper.Start())
	e.sweeper.Stop()
}
