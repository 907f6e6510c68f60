package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/seat-booking-core/internal/models"
)

// SeatReservation is the result of reserving seats
type SeatReservation struct {
	ScheduleID string            `json:"schedule_id"`
	Seats      []int             `json:"seat_numbers"`
	ExpiresAt  time.Time         `json:"expires_at"`
	Locks      []models.SeatLock `json:"locks"`
}

// SeatMap is the lock view of one schedule
type SeatMap struct {
	Schedule *models.Schedule  `json:"schedule"`
	Locked   []models.SeatLock `json:"locked"`
	Free     []int             `json:"free"`
}

// Caller is whoever acts on a booking through the API
type Caller struct {
	SessionID  string
	CustomerID string
	Staff      bool
}

// Owns reports whether the caller made b, or is staff
func (c Caller) Owns(b *models.Booking) bool {
	if c.Staff {
		return true
	}
	if c.SessionID != "" && c.SessionID == b.OwnerSessionID {
		return true
	}
	return c.CustomerID != "" && b.CustomerID != nil && *b.CustomerID == c.CustomerID
}

// BookingOrchestratorService is the entry point of the booking engine. It
// handles the Reserve → Book → Pay → Confirm flow over the lock, booking and
// payment services.
type BookingOrchestratorService struct {
	locks     *SeatLockService
	bookings  *BookingService
	payments  *PaymentService
	schedules ScheduleStore
	logger    *logrus.Logger
}

// NewBookingOrchestratorService creates a new orchestrator service
func NewBookingOrchestratorService(
	locks *SeatLockService,
	bookings *BookingService,
	payments *PaymentService,
	schedules ScheduleStore,
	logger *logrus.Logger,
) *BookingOrchestratorService {
	return &BookingOrchestratorService{
		locks:     locks,
		bookings:  bookings,
		payments:  payments,
		schedules: schedules,
		logger:    logger,
	}
}

// ============================================================================
// SCHEDULES
// ============================================================================

// RegisterSchedule makes a departure bookable with every seat free
func (s *BookingOrchestratorService) RegisterSchedule(ctx context.Context, req models.CreateScheduleRequest) (*models.Schedule, error) {
	now := s.locks.clock.Now()
	if err := req.Validate(now); err != nil {
		return nil, err
	}
	if err := s.bookings.pricing.CheckFare(req.FarePerSeat); err != nil {
		return nil, err
	}

	existing, err := s.schedules.GetSchedule(ctx, req.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get schedule: %w", err)
	}
	if existing != nil {
		return nil, models.ConflictError{Resource: "schedule", Msg: "schedule " + req.ID + " already exists"}
	}

	schedule := &models.Schedule{
		ID:             req.ID,
		RouteName:      req.RouteName,
		DepartureAt:    req.DepartureAt.UTC(),
		ArrivalAt:      req.ArrivalAt.UTC(),
		TotalSeats:     req.TotalSeats,
		AvailableSeats: req.TotalSeats,
		FarePerSeat:    req.FarePerSeat,
		Status:         models.ScheduleStatusScheduled,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.schedules.CreateSchedule(ctx, schedule); err != nil {
		return nil, fmt.Errorf("failed to create schedule: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"schedule_id": schedule.ID,
		"route":       schedule.RouteName,
		"departure":   schedule.DepartureAt,
		"seats":       schedule.TotalSeats,
		"fare":        schedule.FarePerSeat.String(),
	}).Info("Schedule registered")

	return schedule, nil
}

// GetSchedule returns a schedule by id
func (s *BookingOrchestratorService) GetSchedule(ctx context.Context, scheduleID string) (*models.Schedule, error) {
	schedule, err := s.schedules.GetSchedule(ctx, scheduleID)
	if err != nil {
		return nil, fmt.Errorf("failed to get schedule: %w", err)
	}
	if schedule == nil {
		return nil, models.NotFoundError{Resource: "schedule", ID: scheduleID}
	}
	return schedule, nil
}

// ============================================================================
// SEATS (Phase 1)
// ============================================================================

// ReserveSeats locks seats for the session, all or none
func (s *BookingOrchestratorService) ReserveSeats(ctx context.Context, scheduleID string, seats []int, sessionID string) (*SeatReservation, error) {
	locks, err := s.locks.Acquire(ctx, scheduleID, seats, sessionID)
	if err != nil {
		return nil, err
	}
	res := &SeatReservation{ScheduleID: scheduleID, Locks: locks}
	for i, l := range locks {
		res.Seats = append(res.Seats, l.SeatNumber)
		if l.ExpiresAt != nil && (i == 0 || l.ExpiresAt.Before(res.ExpiresAt)) {
			res.ExpiresAt = *l.ExpiresAt
		}
	}
	return res, nil
}

// ReleaseSeats drops the session's locks on seats. Seats that belong to one
// of the session's open bookings are refused; cancel the booking instead.
func (s *BookingOrchestratorService) ReleaseSeats(ctx context.Context, scheduleID string, seats []int, sessionID string) error {
	if err := validateOwner(sessionID); err != nil {
		return err
	}
	if err := s.bookings.checkNoOverlap(ctx, sessionID, scheduleID, seats); err != nil {
		return err
	}
	return s.locks.Release(ctx, scheduleID, seats, sessionID)
}

// RenewSeats extends every live lock of the session by the lock TTL
func (s *BookingOrchestratorService) RenewSeats(ctx context.Context, sessionID string) (int, error) {
	return s.locks.Renew(ctx, sessionID)
}

// SeatMap returns the live locks and the free seats of a schedule
func (s *BookingOrchestratorService) SeatMap(ctx context.Context, scheduleID string) (*SeatMap, error) {
	schedule, err := s.schedules.GetSchedule(ctx, scheduleID)
	if err != nil {
		return nil, fmt.Errorf("failed to get schedule: %w", err)
	}
	if schedule == nil {
		return nil, models.NotFoundError{Resource: "schedule", ID: scheduleID}
	}
	locks, err := s.locks.LiveLocks(ctx, scheduleID)
	if err != nil {
		return nil, err
	}

	taken := make(map[int]bool, len(locks))
	for _, l := range locks {
		taken[l.SeatNumber] = true
	}
	free := make([]int, 0, schedule.TotalSeats-len(locks))
	for seat := 1; seat <= schedule.TotalSeats; seat++ {
		if !taken[seat] {
			free = append(free, seat)
		}
	}
	return &SeatMap{Schedule: schedule, Locked: locks, Free: free}, nil
}

// ============================================================================
// BOOKINGS (Phase 2)
// ============================================================================

// CreateBooking creates a pending booking over seats the session holds
func (s *BookingOrchestratorService) CreateBooking(ctx context.Context, p CreateBookingParams) (*models.Booking, error) {
	return s.bookings.Create(ctx, p)
}

// ConfirmBooking confirms a pending booking against a payment reference
func (s *BookingOrchestratorService) ConfirmBooking(ctx context.Context, bookingID uuid.UUID, paymentReference string) (*models.Booking, error) {
	return s.bookings.Confirm(ctx, bookingID, paymentReference)
}

// CancelBooking cancels a booking. Confirmed bookings come back with a refund quote.
func (s *BookingOrchestratorService) CancelBooking(ctx context.Context, bookingID uuid.UUID, reason string) (*models.Booking, *models.RefundQuote, error) {
	return s.bookings.Cancel(ctx, bookingID, reason)
}

// QuoteRefund quotes the refund for cancelling a confirmed booking now
func (s *BookingOrchestratorService) QuoteRefund(ctx context.Context, bookingID uuid.UUID) (*models.RefundQuote, error) {
	return s.bookings.QuoteRefund(ctx, bookingID)
}

// GetBooking returns a booking by id
func (s *BookingOrchestratorService) GetBooking(ctx context.Context, bookingID uuid.UUID) (*models.Booking, error) {
	return s.bookings.Get(ctx, bookingID)
}

// GetBookingByReference returns a booking by its BKG reference
func (s *BookingOrchestratorService) GetBookingByReference(ctx context.Context, reference string) (*models.Booking, error) {
	return s.bookings.GetByReference(ctx, reference)
}

// ListBookingsForSession returns the bookings made by a session
func (s *BookingOrchestratorService) ListBookingsForSession(ctx context.Context, sessionID string) ([]*models.Booking, error) {
	return s.bookings.ListForSession(ctx, sessionID)
}

// AuthorizeBooking fails with a ForbiddenError unless caller owns the booking
func (s *BookingOrchestratorService) AuthorizeBooking(ctx context.Context, bookingID uuid.UUID, caller Caller) error {
	b, err := s.bookings.Get(ctx, bookingID)
	if err != nil {
		return err
	}
	if !caller.Owns(b) {
		s.logger.WithFields(logrus.Fields{
			"booking_id": bookingID,
			"session":    caller.SessionID,
			"customer":   caller.CustomerID,
		}).Warn("Booking access denied")
		return models.ForbiddenError{Resource: "booking", ID: bookingID.String()}
	}
	return nil
}

// ============================================================================
// PAYMENT (Phase 3)
// ============================================================================

// AuthorizePayment fails with a ForbiddenError unless caller owns the
// booking behind the payment session
func (s *BookingOrchestratorService) AuthorizePayment(ctx context.Context, paymentID uuid.UUID, caller Caller) error {
	session, err := s.payments.sessions.GetSession(ctx, paymentID)
	if err != nil {
		return fmt.Errorf("failed to get payment session: %w", err)
	}
	if session == nil {
		return models.NotFoundError{Resource: "payment session", ID: paymentID.String()}
	}
	if err := s.AuthorizeBooking(ctx, session.BookingID, caller); err != nil {
		if models.IsForbidden(err) {
			return models.ForbiddenError{Resource: "payment session", ID: paymentID.String()}
		}
		return err
	}
	return nil
}

// CreatePaymentSession opens a payment session for a pending booking
func (s *BookingOrchestratorService) CreatePaymentSession(ctx context.Context, bookingID uuid.UUID) (*models.PaymentSession, error) {
	return s.payments.CreateSession(ctx, bookingID)
}

// GetPaymentSession returns an active or settled payment session
func (s *BookingOrchestratorService) GetPaymentSession(ctx context.Context, paymentID uuid.UUID) (*models.PaymentSession, error) {
	return s.payments.FetchSession(ctx, paymentID)
}

// ProcessPayment charges the card and confirms the booking on approval
func (s *BookingOrchestratorService) ProcessPayment(ctx context.Context, paymentID uuid.UUID, card models.CardDetails) (*models.PaymentResult, error) {
	return s.payments.ProcessPayment(ctx, paymentID, card)
}

// CancelPaymentSession abandons the payment and cancels the pending booking
func (s *BookingOrchestratorService) CancelPaymentSession(ctx context.Context, paymentID uuid.UUID) (*models.PaymentSession, error) {
	return s.payments.CancelSession(ctx, paymentID)
}
