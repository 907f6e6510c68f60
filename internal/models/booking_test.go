package models

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBookingStatus_Transitions(t *testing.T) {
	tests := []struct {
		from  BookingStatus
		to    BookingStatus
		allow bool
	}{
		{BookingStatusPending, BookingStatusConfirmed, true},
		{BookingStatusPending, BookingStatusCancelled, true},
		{BookingStatusPending, BookingStatusExpired, true},
		{BookingStatusPending, BookingStatusCompleted, false},
		{BookingStatusConfirmed, BookingStatusCompleted, true},
		{BookingStatusConfirmed, BookingStatusCancelled, true},
		{BookingStatusConfirmed, BookingStatusExpired, false},
		{BookingStatusExpired, BookingStatusConfirmed, false},
		{BookingStatusCancelled, BookingStatusConfirmed, false},
		{BookingStatusCompleted, BookingStatusCancelled, false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s to %s", tt.from, tt.to), func(t *testing.T) {
			assert.Equal(t, tt.allow, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestBookingStatus_IsTerminal(t *testing.T) {
	assert.False(t, BookingStatusPending.IsTerminal())
	assert.False(t, BookingStatusConfirmed.IsTerminal())
	assert.True(t, BookingStatusCancelled.IsTerminal())
	assert.True(t, BookingStatusCompleted.IsTerminal())
	assert.True(t, BookingStatusExpired.IsTerminal())
}

func TestParseBookingStatus(t *testing.T) {
	s, err := ParseBookingStatus("confirmed")
	require.NoError(t, err)
	assert.Equal(t, BookingStatusConfirmed, s)

	_, err = ParseBookingStatus("no_show")
	assert.Error(t, err)
}

func TestBooking_IsHoldLapsed(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	exp := now.Add(15 * time.Minute)
	b := &Booking{Status: BookingStatusPending, ExpiresAt: &exp}

	assert.False(t, b.IsHoldLapsed(now))
	assert.True(t, b.IsHoldLapsed(exp))

	b.Status = BookingStatusConfirmed
	assert.False(t, b.IsHoldLapsed(exp.Add(time.Hour)))
}

func TestBooking_CloneIsIndependent(t *testing.T) {
	exp := time.Now()
	b := &Booking{SeatNumbers: IntArray{1, 2}, ExpiresAt: &exp, Pricing: PricingBreakdown{TotalPay: decimal.NewFromInt(5000)}}
	c := b.Clone()
	c.SeatNumbers[0] = 9
	*c.ExpiresAt = exp.Add(time.Hour)

	assert.Equal(t, 1, b.SeatNumbers[0])
	assert.Equal(t, exp, *b.ExpiresAt)
}

func TestSeatLock_IsLive(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	exp := now.Add(time.Minute)
	lock := SeatLock{ExpiresAt: &exp}

	assert.True(t, lock.IsLive(now))
	assert.False(t, lock.IsLive(exp))

	lock.ExpiresAt = nil
	assert.True(t, lock.IsPermanent())
	assert.True(t, lock.IsLive(now.Add(24*time.Hour)))
}

func TestNormalizeSeats(t *testing.T) {
	assert.Equal(t, []int{1, 3, 7}, NormalizeSeats([]int{7, 3, 1, 3}))
	assert.True(t, HasDuplicateSeats([]int{2, 2}))
	assert.False(t, HasDuplicateSeats([]int{2, 1}))
}

func TestPricingBreakdown_JSONBRoundTrip(t *testing.T) {
	p := PricingBreakdown{
		PricePerSeat: decimal.NewFromInt(100000),
		NumSeats:     1,
		BusFare:      decimal.NewFromInt(100000),
		TotalPay:     decimal.NewFromInt(106000),
		Currency:     "LKR",
	}
	v, err := p.Value()
	require.NoError(t, err)

	var out PricingBreakdown
	require.NoError(t, out.Scan(v))
	assert.True(t, out.TotalPay.Equal(p.TotalPay))
	assert.Equal(t, "LKR", out.Currency)
}

func TestErrorHelpers(t *testing.T) {
	conflict := fmt.Errorf("reserve: %w", ConflictError{Resource: "seat", Seats: []int{4, 2}})
	assert.True(t, IsConflict(conflict))
	assert.Equal(t, []int{4, 2}, ConflictSeats(conflict))
	assert.Contains(t, conflict.Error(), "seats [2 4] unavailable")

	notLocked := ConflictError{Resource: "booking", Seats: []int{3}, Err: ErrSeatsNotLocked}
	assert.True(t, errors.Is(notLocked, ErrSeatsNotLocked))

	assert.True(t, IsValidation(ValidationError{Field: "cvv", Msg: "must be 3 digits"}))
	assert.True(t, IsNotFound(NotFoundError{Resource: "booking", ID: "x"}))
	assert.True(t, IsExpired(ExpiredError{Resource: "booking", ID: "x"}))
	assert.True(t, IsInvalidTransition(InvalidTransitionError{Resource: "booking", From: "expired", To: "confirmed"}))
	assert.True(t, IsGatewayDeclined(GatewayDeclinedError{PaymentID: "p", Reason: "declined"}))
	assert.True(t, IsNotCancellable(NotCancellableError{HoursBeforeDeparture: -1}))
	assert.False(t, IsConflict(errors.New("plain")))
}
