package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/smarttransit/seat-booking-core/internal/models"
	"github.com/smarttransit/seat-booking-core/pkg/payment"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// blockingGateway approves once released
type blockingGateway struct {
	entered chan struct{}
	release chan struct{}
}

func newBlockingGateway() *blockingGateway {
	return &blockingGateway{entered: make(chan struct{}, 1), release: make(chan struct{})}
}

func (g *blockingGateway) Charge(ctx context.Context, req payment.ChargeRequest) (payment.ChargeResult, error) {
	g.entered <- struct{}{}
	select {
	case <-g.release:
		return payment.ChargeResult{Approved: true, TransactionID: "TXN-BLOCKED"}, nil
	case <-ctx.Done():
		return payment.ChargeResult{}, ctx.Err()
	}
}

func (g *blockingGateway) GetName() string { return "blocking" }

func TestPaymentService_CreateSession(t *testing.T) {
	e := newTestEngine(t)
	b := e.book(t, "sess-a", 1)

	ps, err := e.payments.CreateSession(e.ctx(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentSessionActive, ps.Status)
	assert.True(t, ps.Amount.Equal(b.Pricing.TotalPay))
	assert.Equal(t, "LKR", ps.Currency)
	assert.Equal(t, testStart.Add(testSessionTTL), ps.ExpiresAt)

	_, err = e.payments.CreateSession(e.ctx(), b.ID)
	assert.True(t, models.IsInvalidTransition(err), "second active session: %v", err)

	fetched, err := e.payments.FetchSession(e.ctx(), ps.ID)
	require.NoError(t, err)
	assert.Equal(t, ps.ID, fetched.ID)

	_, err = e.payments.FetchSession(e.ctx(), uuid.New())
	assert.True(t, models.IsNotFound(err))
}

func TestPaymentService_SessionNeverOutlivesBooking(t *testing.T) {
	e := newTestEngine(t)
	b := e.book(t, "sess-a", 1)

	e.clock.Advance(8 * time.Minute)
	ps, err := e.payments.CreateSession(e.ctx(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, *b.ExpiresAt, ps.ExpiresAt)

	e.clock.Set(*b.ExpiresAt)
	_, err = e.payments.FetchSession(e.ctx(), ps.ID)
	assert.True(t, models.IsExpired(err))

	_, err = e.payments.ProcessPayment(e.ctx(), ps.ID, validCard())
	assert.True(t, models.IsExpired(err))
}

func TestPaymentService_CreateSessionRequiresPendingBooking(t *testing.T) {
	e := newTestEngine(t)
	b := e.book(t, "sess-a", 1)
	_, err := e.bookings.Confirm(e.ctx(), b.ID, "TXN-1")
	require.NoError(t, err)

	_, err = e.payments.CreateSession(e.ctx(), b.ID)
	assert.True(t, models.IsInvalidTransition(err))

	_, err = e.payments.CreateSession(e.ctx(), uuid.New())
	assert.True(t, models.IsNotFound(err))
}

func TestPaymentService_ApprovedCardConfirmsBooking(t *testing.T) {
	e := newTestEngine(t)
	b := e.book(t, "sess-a", 1, 2)
	ps, err := e.payments.CreateSession(e.ctx(), b.ID)
	require.NoError(t, err)

	res, err := e.payments.ProcessPayment(e.ctx(), ps.ID, validCard())
	require.NoError(t, err)
	assert.Equal(t, b.BookingReference, res.BookingReference)
	assert.Regexp(t, `^TXN-[0-9A-F]{12}$`, res.GatewayReference)
	assert.Equal(t, models.BookingStatusConfirmed, res.Booking.Status)
	require.NotNil(t, res.Booking.PaymentReference)
	assert.Equal(t, res.GatewayReference, *res.Booking.PaymentReference)
	assert.Equal(t, testTotalSeats-2, e.availableSeats(t))

	stored, err := e.store.GetSession(e.ctx(), ps.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentSessionCompleted, stored.Status)
	assert.Equal(t, 1, stored.Attempts)
	require.NotNil(t, stored.CardLast4)
	assert.Equal(t, "1111", *stored.CardLast4)
	require.NotNil(t, stored.CardFingerprint)
	assert.Equal(t, payment.Fingerprint("4111111111111111"), *stored.CardFingerprint)

	_, err = e.payments.ProcessPayment(e.ctx(), ps.ID, validCard())
	assert.True(t, models.IsInvalidTransition(err), "paying a completed session: %v", err)
}

func TestPaymentService_SentinelCardDeclines(t *testing.T) {
	e := newTestEngine(t)
	b := e.book(t, "sess-a", 1)
	ps, err := e.payments.CreateSession(e.ctx(), b.ID)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err = e.payments.ProcessPayment(e.ctx(), ps.ID, declineCard())
		require.Error(t, err)
		assert.True(t, models.IsGatewayDeclined(err), err.Error())
	}

	got, err := e.bookings.Get(e.ctx(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusPending, got.Status)

	stored, err := e.store.GetSession(e.ctx(), ps.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentSessionActive, stored.Status)
	assert.Equal(t, 3, stored.Attempts)
	require.NotNil(t, stored.LastError)
	assert.Equal(t, payment.DeclineReasonSentinel, *stored.LastError)

	// the hold is still retryable with another card
	res, err := e.payments.ProcessPayment(e.ctx(), ps.ID, validCard())
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusConfirmed, res.Booking.Status)
}

func TestPaymentService_InvalidCard(t *testing.T) {
	e := newTestEngine(t)
	b := e.book(t, "sess-a", 1)
	ps, err := e.payments.CreateSession(e.ctx(), b.ID)
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(c *models.CardDetails)
	}{
		{"short number", func(c *models.CardDetails) { c.Number = "4111 1111 1111" }},
		{"letters", func(c *models.CardDetails) { c.Number = "4111 1111 1111 111A" }},
		{"amex needs four digit cvv", func(c *models.CardDetails) { c.Brand = "amex" }},
		{"expired", func(c *models.CardDetails) { c.ExpiryYear = 2025 }},
		{"unknown brand", func(c *models.CardDetails) { c.Brand = "diners" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			card := validCard()
			tt.mutate(&card)
			_, err := e.payments.ProcessPayment(e.ctx(), ps.ID, card)
			require.Error(t, err)
			assert.True(t, models.IsValidation(err), err.Error())
		})
	}

	stored, err := e.store.GetSession(e.ctx(), ps.ID)
	require.NoError(t, err)
	assert.Zero(t, stored.Attempts)
}

func TestPaymentService_GatewayTimeoutLeavesBookingPending(t *testing.T) {
	e := newTestEngine(t, withGateway(payment.NewDeterministicGateway(time.Second), 20*time.Millisecond))
	b := e.book(t, "sess-a", 1)
	ps, err := e.payments.CreateSession(e.ctx(), b.ID)
	require.NoError(t, err)

	_, err = e.payments.ProcessPayment(e.ctx(), ps.ID, validCard())
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrPaymentTimeout))

	got, err := e.bookings.Get(e.ctx(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusPending, got.Status)

	stored, err := e.store.GetSession(e.ctx(), ps.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentSessionActive, stored.Status)
	assert.Zero(t, stored.Attempts)
}

func TestPaymentService_LostSeatsAreNotCharged(t *testing.T) {
	gw := newBlockingGateway()
	e := newTestEngine(t, withGateway(gw, time.Second))
	b := e.book(t, "sess-a", 5)
	ps, err := e.payments.CreateSession(e.ctx(), b.ID)
	require.NoError(t, err)

	// the hold disappears behind the booking's back
	_, err = e.lockStore.ReleaseAssigned(e.ctx(), testScheduleID, []int{5}, "sess-a")
	require.NoError(t, err)
	_, err = e.locks.Acquire(e.ctx(), testScheduleID, []int{5}, "sess-b")
	require.NoError(t, err)

	_, err = e.payments.ProcessPayment(e.ctx(), ps.ID, validCard())
	require.True(t, models.IsConflict(err))
	assert.Len(t, gw.entered, 0, "gateway must not be called")

	got, err := e.bookings.Get(e.ctx(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusPending, got.Status)
}

func TestPaymentService_ConcurrentProcessingRejected(t *testing.T) {
	gw := newBlockingGateway()
	e := newTestEngine(t, withGateway(gw, 5*time.Second))
	b := e.book(t, "sess-a", 1)
	ps, err := e.payments.CreateSession(e.ctx(), b.ID)
	require.NoError(t, err)

	type outcome struct {
		res *models.PaymentResult
		err error
	}
	first := make(chan outcome, 1)
	go func() {
		res, err := e.payments.ProcessPayment(e.ctx(), ps.ID, validCard())
		first <- outcome{res, err}
	}()
	<-gw.entered

	_, err = e.payments.ProcessPayment(e.ctx(), ps.ID, validCard())
	require.Error(t, err)
	assert.True(t, models.IsConflict(err))

	close(gw.release)
	o := <-first
	require.NoError(t, o.err)
	assert.Equal(t, "TXN-BLOCKED", o.res.GatewayReference)
}

func TestPaymentService_CancelSessionCancelsBooking(t *testing.T) {
	e := newTestEngine(t)
	b := e.book(t, "sess-a", 5)
	ps, err := e.payments.CreateSession(e.ctx(), b.ID)
	require.NoError(t, err)

	cancelled, err := e.payments.CancelSession(e.ctx(), ps.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentSessionCancelled, cancelled.Status)

	got, err := e.bookings.Get(e.ctx(), b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusCancelled, got.Status)

	_, err = e.locks.Acquire(e.ctx(), testScheduleID, []int{5}, "sess-b")
	require.NoError(t, err)

	_, err = e.payments.CancelSession(e.ctx(), ps.ID)
	assert.True(t, models.IsInvalidTransition(err))
}
