package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/seat-booking-core/internal/clock"
	"github.com/smarttransit/seat-booking-core/internal/models"
	"github.com/smarttransit/seat-booking-core/internal/monitoring"
	"github.com/smarttransit/seat-booking-core/internal/utils"
	"github.com/smarttransit/seat-booking-core/pkg/validator"
)

// maxReferenceAttempts bounds regeneration on booking reference collisions
const maxReferenceAttempts = 10

// CreateBookingParams is the input to BookingService.Create
type CreateBookingParams struct {
	ScheduleID     string
	SeatNumbers    []int
	Passengers     []models.Passenger
	OwnerSessionID string
	PricePerSeat   interface{} // staff override of the schedule fare; nil uses the fare
	Discount       decimal.Decimal
	CustomerID     *string
	ContactEmail   string
	ContactPhone   string
	Device         *models.DeviceSnapshot
}

// BookingService owns the booking entity and its state machine. Every
// transition is a compare-and-set on (status, version).
type BookingService struct {
	bookings     BookingStore
	schedules    ScheduleStore
	locks        *SeatLockService
	pricing      *PricingService
	cancellation *CancellationService
	events       EventPublisher
	contacts     *validator.ContactValidator
	clock        clock.Clock
	holdDuration time.Duration
	metrics      *monitoring.Metrics
	logger       *logrus.Logger
}

// NewBookingService creates a new booking service
func NewBookingService(
	bookings BookingStore,
	schedules ScheduleStore,
	locks *SeatLockService,
	pricing *PricingService,
	cancellation *CancellationService,
	events EventPublisher,
	clk clock.Clock,
	holdDuration time.Duration,
	metrics *monitoring.Metrics,
	logger *logrus.Logger,
) *BookingService {
	if events == nil {
		events = NoopPublisher{}
	}
	return &BookingService{
		bookings:     bookings,
		schedules:    schedules,
		locks:        locks,
		pricing:      pricing,
		cancellation: cancellation,
		events:       events,
		contacts:     validator.NewContactValidator(),
		clock:        clk,
		holdDuration: holdDuration,
		metrics:      metrics,
		logger:       logger,
	}
}

// ============================================================================
// CREATE
// ============================================================================

// Create builds a pending booking for seats the owner currently holds and
// pins those locks to the booking's expiry
func (s *BookingService) Create(ctx context.Context, p CreateBookingParams) (*models.Booking, error) {
	if err := validateOwner(p.OwnerSessionID); err != nil {
		return nil, err
	}
	seats := models.NormalizeSeats(p.SeatNumbers)
	if len(seats) == 0 {
		return nil, models.ValidationError{Field: "seat_numbers", Msg: "at least one seat is required"}
	}
	if len(seats) != len(p.SeatNumbers) {
		return nil, models.ValidationError{Field: "seat_numbers", Msg: "seat numbers must be unique"}
	}
	passengers, err := assignPassengers(seats, p.Passengers)
	if err != nil {
		return nil, err
	}

	booking := &models.Booking{
		ID:             uuid.New(),
		OwnerSessionID: p.OwnerSessionID,
		ScheduleID:     p.ScheduleID,
		SeatNumbers:    models.IntArray(seats),
		Passengers:     passengers,
		Status:         models.BookingStatusPending,
		Device:         p.Device,
	}
	now := s.clock.Now()
	if err := s.applyContact(booking, p, now); err != nil {
		return nil, err
	}

	schedule, err := s.schedules.GetSchedule(ctx, p.ScheduleID)
	if err != nil {
		return nil, fmt.Errorf("failed to get schedule: %w", err)
	}
	if schedule == nil {
		return nil, models.NotFoundError{Resource: "schedule", ID: p.ScheduleID}
	}
	if !schedule.CanAcceptBooking(now) {
		return nil, models.ValidationError{Field: "schedule_id", Msg: "schedule is not accepting bookings"}
	}
	if err := s.checkNoOverlap(ctx, p.OwnerSessionID, p.ScheduleID, seats); err != nil {
		return nil, err
	}

	fare := p.PricePerSeat
	if fare == nil {
		fare = schedule.FarePerSeat
	}
	pricing, err := s.pricing.Calculate(s.pricing.ValidatePrice(fare), len(seats), p.Discount)
	if err != nil {
		return nil, err
	}
	booking.Pricing = *pricing

	expiresAt := now.Add(s.holdDuration)
	booking.ExpiresAt = &expiresAt
	booking.CreatedAt = now
	booking.UpdatedAt = now

	if err := s.locks.HoldUntil(ctx, p.ScheduleID, seats, p.OwnerSessionID, expiresAt); err != nil {
		if models.IsConflict(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to pin seat locks: %w", err)
	}

	if err := s.insertWithReference(ctx, booking, now); err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"booking_id":  booking.ID,
		"reference":   booking.BookingReference,
		"schedule_id": booking.ScheduleID,
		"seats":       seats,
		"total":       booking.Pricing.TotalPay.String(),
		"expires_at":  expiresAt,
	}).Info("Booking created")

	s.metrics.BookingTransition(string(models.BookingStatusPending))
	s.publish(ctx, models.EventBookingCreated, booking)
	return booking, nil
}

// insertWithReference generates references until the store accepts one
func (s *BookingService) insertWithReference(ctx context.Context, booking *models.Booking, now time.Time) error {
	for attempt := 0; attempt < maxReferenceAttempts; attempt++ {
		ref, err := utils.GenerateBookingReference(now)
		if err != nil {
			return err
		}
		booking.BookingReference = ref

		err = s.bookings.CreateBooking(ctx, booking)
		if err == nil {
			return nil
		}
		if !errors.Is(err, models.ErrDuplicateReference) {
			return fmt.Errorf("failed to create booking: %w", err)
		}
		s.logger.WithField("reference", ref).Warn("Booking reference collision, regenerating")
	}
	return fmt.Errorf("failed to generate unique booking reference after %d attempts", maxReferenceAttempts)
}

func (s *BookingService) applyContact(b *models.Booking, p CreateBookingParams, now time.Time) error {
	if p.ContactEmail != "" {
		email, err := s.contacts.ValidateEmail(p.ContactEmail)
		if err != nil {
			return models.ValidationError{Field: "contact_email", Err: err}
		}
		b.ContactEmail = &email
	}
	if p.ContactPhone != "" {
		phone, err := s.contacts.ValidatePhone(p.ContactPhone)
		if err != nil {
			return models.ValidationError{Field: "contact_phone", Err: err}
		}
		b.ContactPhone = &phone
	}

	if p.CustomerID != nil && strings.TrimSpace(*p.CustomerID) != "" {
		id := strings.TrimSpace(*p.CustomerID)
		b.CustomerID = &id
		return nil
	}
	guest := utils.GenerateGuestIdentifier(now, p.ContactEmail, p.ContactPhone)
	b.GuestIdentifier = &guest
	return nil
}

// checkNoOverlap rejects a second open booking by the same session for any of the same seats
func (s *BookingService) checkNoOverlap(ctx context.Context, owner, scheduleID string, seats []int) error {
	existing, err := s.bookings.ListBookingsBySession(ctx, owner)
	if err != nil {
		return fmt.Errorf("failed to list session bookings: %w", err)
	}
	wanted := make(map[int]bool, len(seats))
	for _, seat := range seats {
		wanted[seat] = true
	}
	now := s.clock.Now()
	for _, b := range existing {
		open := b.Status == models.BookingStatusConfirmed || (b.Status == models.BookingStatusPending && !b.IsHoldLapsed(now))
		if !open || b.ScheduleID != scheduleID {
			continue
		}
		var overlap []int
		for _, seat := range b.SeatNumbers {
			if wanted[seat] {
				overlap = append(overlap, seat)
			}
		}
		if len(overlap) > 0 {
			return models.ConflictError{Resource: "booking", Seats: overlap, Msg: "seats already belong to booking " + b.BookingReference}
		}
	}
	return nil
}

// assignPassengers gives each passenger a seat. Passengers without a seat
// number take the remaining seats in ascending order.
func assignPassengers(seats []int, passengers []models.Passenger) (models.Passengers, error) {
	if len(passengers) != len(seats) {
		return nil, models.ValidationError{Field: "passengers", Msg: fmt.Sprintf("expected %d passengers, got %d", len(seats), len(passengers))}
	}

	free := make(map[int]bool, len(seats))
	for _, seat := range seats {
		free[seat] = true
	}
	out := make(models.Passengers, len(passengers))
	for i, p := range passengers {
		if strings.TrimSpace(p.Name) == "" {
			return nil, models.ValidationError{Field: "passengers", Msg: fmt.Sprintf("passenger %d has no name", i+1)}
		}
		if p.SeatNumber != 0 {
			if !free[p.SeatNumber] {
				return nil, models.ValidationError{Field: "passengers", Msg: fmt.Sprintf("seat %d is not part of this booking or is assigned twice", p.SeatNumber)}
			}
			free[p.SeatNumber] = false
		}
		out[i] = p
	}
	next := 0
	for i := range out {
		if out[i].SeatNumber != 0 {
			continue
		}
		for !free[seats[next]] {
			next++
		}
		out[i].SeatNumber = seats[next]
		free[seats[next]] = false
	}
	return out, nil
}

// ============================================================================
// TRANSITIONS
// ============================================================================

// Confirm moves a pending booking to confirmed, making its seat locks
// permanent and taking the seats out of the schedule's available count.
// Confirming an already confirmed booking with the same payment reference
// returns it unchanged.
func (s *BookingService) Confirm(ctx context.Context, id uuid.UUID, paymentReference string) (*models.Booking, error) {
	if strings.TrimSpace(paymentReference) == "" {
		return nil, models.ValidationError{Field: "payment_reference", Msg: "is required"}
	}
	current, err := s.mustGet(ctx, id)
	if err != nil {
		return nil, err
	}

	if current.Status == models.BookingStatusConfirmed && current.PaymentReference != nil && *current.PaymentReference == paymentReference {
		return current, nil
	}
	if current.Status != models.BookingStatusPending {
		return nil, invalidTransition(current.Status, models.BookingStatusConfirmed)
	}
	now := s.clock.Now()
	if current.IsHoldLapsed(now) {
		return nil, models.ExpiredError{Resource: "booking", ID: current.ID.String(), ExpiredAt: *current.ExpiresAt}
	}

	if err := s.locks.MakePermanent(ctx, current.ScheduleID, current.SeatNumbers, current.OwnerSessionID); err != nil {
		if models.IsConflict(err) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to assign seats: %w", err)
	}

	next := current.Clone()
	next.Status = models.BookingStatusConfirmed
	next.ExpiresAt = nil
	next.PaymentReference = &paymentReference
	next.ConfirmedAt = &now
	next.UpdatedAt = now

	if err := s.commit(ctx, current, next); err != nil {
		// a cancel or expire won the race; its seats must not stay assigned
		s.releaseSeats(ctx, current)
		return nil, err
	}

	if err := s.schedules.AdjustAvailableSeats(ctx, next.ScheduleID, -len(next.SeatNumbers)); err != nil {
		s.logger.WithError(err).WithField("booking_id", next.ID).Error("Failed to decrement available seats")
	}

	s.logger.WithFields(logrus.Fields{
		"booking_id": next.ID,
		"reference":  next.BookingReference,
		"payment":    paymentReference,
	}).Info("Booking confirmed")

	s.metrics.BookingTransition(string(next.Status))
	s.publish(ctx, models.EventBookingConfirmed, next)
	return next, nil
}

// Cancel cancels a pending booking (no refund) or a confirmed booking
// (refund quoted from the schedule's departure). Seats go back to the pool.
func (s *BookingService) Cancel(ctx context.Context, id uuid.UUID, reason string) (*models.Booking, *models.RefundQuote, error) {
	current, err := s.mustGet(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	now := s.clock.Now()
	next := current.Clone()
	next.Status = models.BookingStatusCancelled
	next.ExpiresAt = nil
	next.CancelledAt = &now
	next.UpdatedAt = now
	if reason = strings.TrimSpace(reason); reason != "" {
		next.CancellationReason = &reason
	}

	switch current.Status {
	case models.BookingStatusPending:
	case models.BookingStatusConfirmed:
		quote, err := s.refundQuote(ctx, current, now)
		if err != nil {
			return nil, nil, err
		}
		next.RefundQuote = quote
	default:
		return nil, nil, invalidTransition(current.Status, models.BookingStatusCancelled)
	}

	if err := s.commit(ctx, current, next); err != nil {
		return nil, nil, err
	}

	s.releaseSeats(ctx, next)
	if current.Status == models.BookingStatusConfirmed {
		if err := s.schedules.AdjustAvailableSeats(ctx, next.ScheduleID, len(next.SeatNumbers)); err != nil {
			s.logger.WithError(err).WithField("booking_id", next.ID).Error("Failed to restore available seats")
		}
	}

	fields := logrus.Fields{"booking_id": next.ID, "reference": next.BookingReference, "from": current.Status}
	if next.RefundQuote != nil {
		fields["refund"] = next.RefundQuote.RefundAmount.String()
	}
	s.logger.WithFields(fields).Info("Booking cancelled")

	s.metrics.BookingTransition(string(next.Status))
	s.publish(ctx, models.EventBookingCancelled, next)
	return next, next.RefundQuote, nil
}

// Expire moves a pending booking whose hold lapsed to expired and releases
// its locks. Expiring an expired booking is a no-op.
func (s *BookingService) Expire(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	current, err := s.mustGet(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status == models.BookingStatusExpired {
		return current, nil
	}
	if current.Status != models.BookingStatusPending {
		return nil, invalidTransition(current.Status, models.BookingStatusExpired)
	}
	now := s.clock.Now()
	if !current.IsHoldLapsed(now) {
		return nil, models.InvalidTransitionError{Resource: "booking", Msg: "hold has not lapsed yet"}
	}

	next := current.Clone()
	next.Status = models.BookingStatusExpired
	next.ExpiresAt = nil
	next.UpdatedAt = now

	if err := s.commit(ctx, current, next); err != nil {
		if latest, getErr := s.bookings.GetBooking(ctx, id); getErr == nil && latest != nil && latest.Status == models.BookingStatusExpired {
			return latest, nil
		}
		return nil, err
	}
	s.releaseSeats(ctx, next)

	s.logger.WithFields(logrus.Fields{
		"booking_id": next.ID,
		"reference":  next.BookingReference,
	}).Info("Booking expired and seats released")

	s.metrics.BookingTransition(string(next.Status))
	s.publish(ctx, models.EventBookingExpired, next)
	return next, nil
}

// Complete marks a confirmed booking completed once its trip has arrived.
// Completing a completed booking is a no-op.
func (s *BookingService) Complete(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	current, err := s.mustGet(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status == models.BookingStatusCompleted {
		return current, nil
	}
	if current.Status != models.BookingStatusConfirmed {
		return nil, invalidTransition(current.Status, models.BookingStatusCompleted)
	}

	now := s.clock.Now()
	schedule, err := s.schedules.GetSchedule(ctx, current.ScheduleID)
	if err != nil {
		return nil, fmt.Errorf("failed to get schedule: %w", err)
	}
	if schedule == nil || !schedule.IsPastArrival(now) {
		return nil, models.InvalidTransitionError{Resource: "booking", Msg: "trip has not arrived yet"}
	}

	next := current.Clone()
	next.Status = models.BookingStatusCompleted
	next.CompletedAt = &now
	next.UpdatedAt = now

	if err := s.commit(ctx, current, next); err != nil {
		return nil, err
	}

	s.metrics.BookingTransition(string(next.Status))
	s.publish(ctx, models.EventBookingCompleted, next)
	return next, nil
}

// VerifySeatsHeld re-pins a pending booking's locks to its expiry, failing
// with a ConflictError if the owner no longer holds every seat
func (s *BookingService) VerifySeatsHeld(ctx context.Context, b *models.Booking) error {
	if b.Status != models.BookingStatusPending || b.ExpiresAt == nil {
		return invalidTransition(b.Status, models.BookingStatusConfirmed)
	}
	return s.locks.HoldUntil(ctx, b.ScheduleID, b.SeatNumbers, b.OwnerSessionID, *b.ExpiresAt)
}

// ============================================================================
// QUERIES
// ============================================================================

// Get returns a booking or a NotFoundError
func (s *BookingService) Get(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	return s.mustGet(ctx, id)
}

// GetByReference looks a booking up by its reference
func (s *BookingService) GetByReference(ctx context.Context, reference string) (*models.Booking, error) {
	reference = strings.ToUpper(strings.TrimSpace(reference))
	if !utils.IsValidBookingReference(reference) {
		return nil, models.ValidationError{Field: "booking_reference", Msg: "invalid format"}
	}
	b, err := s.bookings.GetBookingByReference(ctx, reference)
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	if b == nil {
		return nil, models.NotFoundError{Resource: "booking", ID: reference}
	}
	return b, nil
}

// ListForSession returns the bookings created by a session
func (s *BookingService) ListForSession(ctx context.Context, owner string) ([]*models.Booking, error) {
	if err := validateOwner(owner); err != nil {
		return nil, err
	}
	return s.bookings.ListBookingsBySession(ctx, owner)
}

// QuoteRefund returns what cancelling a confirmed booking now would refund
func (s *BookingService) QuoteRefund(ctx context.Context, id uuid.UUID) (*models.RefundQuote, error) {
	b, err := s.mustGet(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.Status != models.BookingStatusConfirmed {
		return nil, models.InvalidTransitionError{Resource: "booking", Msg: fmt.Sprintf("only confirmed bookings can be refunded (status %s)", b.Status)}
	}
	return s.refundQuote(ctx, b, s.clock.Now())
}

// ============================================================================
// HELPERS
// ============================================================================

func (s *BookingService) mustGet(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	b, err := s.bookings.GetBooking(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	if b == nil {
		return nil, models.NotFoundError{Resource: "booking", ID: id.String()}
	}
	return b, nil
}

func (s *BookingService) refundQuote(ctx context.Context, b *models.Booking, now time.Time) (*models.RefundQuote, error) {
	schedule, err := s.schedules.GetSchedule(ctx, b.ScheduleID)
	if err != nil {
		return nil, fmt.Errorf("failed to get schedule: %w", err)
	}
	if schedule == nil {
		return nil, models.NotFoundError{Resource: "schedule", ID: b.ScheduleID}
	}
	return s.cancellation.Quote(b.Pricing.TotalPay, schedule.HoursBeforeDeparture(now))
}

// commit writes next if current is still the stored version
func (s *BookingService) commit(ctx context.Context, current, next *models.Booking) error {
	ok, err := s.bookings.UpdateBooking(ctx, next, current.Status, current.Version)
	if err != nil {
		return fmt.Errorf("failed to update booking: %w", err)
	}
	if ok {
		return nil
	}

	msg := fmt.Sprintf("booking changed while moving to %s", next.Status)
	if latest, err := s.bookings.GetBooking(ctx, current.ID); err == nil && latest != nil {
		msg = fmt.Sprintf("booking is now %s, cannot move to %s", latest.Status, next.Status)
	}
	s.logger.WithFields(logrus.Fields{
		"booking_id": current.ID,
		"from":       current.Status,
		"to":         next.Status,
	}).Warn("Booking transition lost a concurrent update")
	return models.ConflictError{Resource: "booking", Msg: msg, Err: models.ErrVersionMismatch}
}

func (s *BookingService) releaseSeats(ctx context.Context, b *models.Booking) {
	if err := s.locks.ReleaseBooked(ctx, b.ScheduleID, b.SeatNumbers, b.OwnerSessionID); err != nil {
		s.logger.WithError(err).WithField("booking_id", b.ID).Error("Failed to release seat locks")
	}
}

func (s *BookingService) publish(ctx context.Context, t models.BookingEventType, b *models.Booking) {
	if err := s.events.PublishBookingEvent(ctx, models.NewBookingEvent(t, b, s.clock.Now())); err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"booking_id": b.ID,
			"event":      t,
		}).Warn("Failed to publish booking event")
	}
}

func invalidTransition(from, to models.BookingStatus) error {
	return models.InvalidTransitionError{Resource: "booking", From: string(from), To: string(to)}
}
