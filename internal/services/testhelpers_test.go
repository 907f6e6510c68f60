package services

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/seat-booking-core/internal/clock"
	"github.com/smarttransit/seat-booking-core/internal/config"
	"github.com/smarttransit/seat-booking-core/internal/database"
	"github.com/smarttransit/seat-booking-core/internal/models"
	"github.com/smarttransit/seat-booking-core/pkg/payment"
	"github.com/stretchr/testify/require"
)

const (
	testScheduleID   = "sch-colombo-kandy-0800"
	testTotalSeats   = 40
	testHoldDuration = 15 * time.Minute
	testLockTTL      = 15 * time.Minute
	testSessionTTL   = 10 * time.Minute
)

var testStart = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

func testPricingConfig() config.PricingConfig {
	return config.PricingConfig{
		ConvenienceFeePercent: decimal.RequireFromString("0.02"),
		ConvenienceFeeFixed:   decimal.NewFromInt(2000),
		BankChargePercent:     decimal.RequireFromString("0.015"),
		BankChargeFixed:       decimal.Zero,
		RoundingUnit:          decimal.NewFromInt(1000),
		MinTotal:              decimal.NewFromInt(10000),
		MaxTotal:              decimal.NewFromInt(50000000),
		MinPrice:              decimal.NewFromInt(1000),
		MaxPrice:              decimal.NewFromInt(10000000),
	}
}

func testRefundConfig() config.RefundConfig {
	return config.RefundConfig{
		FullRefundHours:    24,
		PartialRefundHours: 12,
		PartialRefundRate:  decimal.RequireFromString("0.5"),
	}
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// recordingPublisher keeps every published event
type recordingPublisher struct {
	mu     sync.Mutex
	events []models.BookingEvent
}

func (p *recordingPublisher) PublishBookingEvent(_ context.Context, ev models.BookingEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) types() []models.BookingEventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]models.BookingEventType, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
}

// testEngine wires every service over the in-memory stores and a fake clock
type testEngine struct {
	clock        *clock.Fake
	store        *database.MemoryStore
	lockStore    *database.MemorySeatLockStore
	events       *recordingPublisher
	locks        *SeatLockService
	bookings     *BookingService
	payments     *PaymentService
	sweeper      *ExpirationService
	orchestrator *BookingOrchestratorService
	schedule     *models.Schedule
	passengerSeq int
}

type engineOption func(*engineOptions)

type engineOptions struct {
	gateway        payment.Gateway
	gatewayTimeout time.Duration
	wrapBookings   func(*database.MemoryStore) BookingStore
}

func withGateway(g payment.Gateway, timeout time.Duration) engineOption {
	return func(o *engineOptions) {
		o.gateway = g
		o.gatewayTimeout = timeout
	}
}

func withBookingStore(wrap func(*database.MemoryStore) BookingStore) engineOption {
	return func(o *engineOptions) {
		o.wrapBookings = wrap
	}
}

func newTestEngine(t *testing.T, opts ...engineOption) *testEngine {
	t.Helper()

	o := engineOptions{
		gateway:        payment.NewDeterministicGateway(0),
		gatewayTimeout: time.Second,
	}
	for _, opt := range opts {
		opt(&o)
	}

	clk := clock.NewFake(testStart)
	store := database.NewMemoryStore()
	lockStore := database.NewMemorySeatLockStore()
	events := &recordingPublisher{}
	logger := testLogger()

	var bookingStore BookingStore = store
	if o.wrapBookings != nil {
		bookingStore = o.wrapBookings(store)
	}

	schedule := &models.Schedule{
		ID:             testScheduleID,
		RouteName:      "Colombo - Kandy",
		DepartureAt:    testStart.Add(48 * time.Hour),
		ArrivalAt:      testStart.Add(52 * time.Hour),
		TotalSeats:     testTotalSeats,
		AvailableSeats: testTotalSeats,
		FarePerSeat:    decimal.NewFromInt(100000),
		Status:         models.ScheduleStatusScheduled,
		CreatedAt:      testStart,
		UpdatedAt:      testStart,
	}
	require.NoError(t, store.CreateSchedule(context.Background(), schedule))

	locks := NewSeatLockService(lockStore, store, clk, testLockTTL, nil, logger)
	bookings := NewBookingService(
		bookingStore, store, locks,
		NewPricingService(testPricingConfig(), "LKR"),
		NewCancellationService(testRefundConfig()),
		events, clk, testHoldDuration, nil, logger,
	)
	payments := NewPaymentService(store, bookings, o.gateway, clk, PaymentServiceConfig{
		SessionTTL:     testSessionTTL,
		GatewayTimeout: o.gatewayTimeout,
		Currency:       "LKR",
	}, nil, logger)
	sweeper := NewExpirationService(bookingStore, store, store, bookings, locks, clk, time.Minute, 2, nil, logger)

	return &testEngine{
		clock:        clk,
		store:        store,
		lockStore:    lockStore,
		events:       events,
		locks:        locks,
		bookings:     bookings,
		payments:     payments,
		sweeper:      sweeper,
		orchestrator: NewBookingOrchestratorService(locks, bookings, payments, store, logger),
		schedule:     schedule,
	}
}

func (e *testEngine) ctx() context.Context { return context.Background() }

// book reserves seats for owner and creates a pending booking over them
func (e *testEngine) book(t *testing.T, owner string, seats ...int) *models.Booking {
	t.Helper()
	_, err := e.locks.Acquire(e.ctx(), testScheduleID, seats, owner)
	require.NoError(t, err)

	passengers := make([]models.Passenger, len(seats))
	for i := range seats {
		e.passengerSeq++
		passengers[i] = models.Passenger{Name: fmt.Sprintf("Passenger %d", e.passengerSeq)}
	}
	b, err := e.bookings.Create(e.ctx(), CreateBookingParams{
		ScheduleID:     testScheduleID,
		SeatNumbers:    seats,
		Passengers:     passengers,
		OwnerSessionID: owner,
		PricePerSeat:   100000,
		ContactEmail:   "nimal@example.com",
		ContactPhone:   "0771234567",
	})
	require.NoError(t, err)
	return b
}

func (e *testEngine) availableSeats(t *testing.T) int {
	t.Helper()
	s, err := e.store.GetSchedule(e.ctx(), testScheduleID)
	require.NoError(t, err)
	return s.AvailableSeats
}

func validCard() models.CardDetails {
	return models.CardDetails{
		Number:      "4111 1111 1111 1111",
		CVV:         "123",
		ExpiryMonth: 12,
		ExpiryYear:  2030,
		Brand:       "visa",
		HolderName:  "N PERERA",
	}
}

func declineCard() models.CardDetails {
	c := validCard()
	c.Number = "0000-0000-0000-0000"
	return c
}
