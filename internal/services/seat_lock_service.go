package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/smarttransit/seat-booking-core/internal/clock"
	"github.com/smarttransit/seat-booking-core/internal/models"
	"github.com/smarttransit/seat-booking-core/internal/monitoring"
)

// maxSeatsPerRequest bounds a single reservation
const maxSeatsPerRequest = 10

// SeatLockService grants and releases short-lived exclusive holds on seats
type SeatLockService struct {
	locks     SeatLockStore
	schedules ScheduleStore
	clock     clock.Clock
	ttl       time.Duration
	metrics   *monitoring.Metrics
	logger    *logrus.Logger
}

// NewSeatLockService creates a new seat lock service
func NewSeatLockService(
	locks SeatLockStore,
	schedules ScheduleStore,
	clk clock.Clock,
	ttl time.Duration,
	metrics *monitoring.Metrics,
	logger *logrus.Logger,
) *SeatLockService {
	return &SeatLockService{
		locks:     locks,
		schedules: schedules,
		clock:     clk,
		ttl:       ttl,
		metrics:   metrics,
		logger:    logger,
	}
}

// Acquire locks every seat for owner or none of them. Seats held live by
// another session are reported in a models.ConflictError.
func (s *SeatLockService) Acquire(ctx context.Context, scheduleID string, seats []int, owner string) ([]models.SeatLock, error) {
	if err := validateOwner(owner); err != nil {
		return nil, err
	}
	if _, err := s.bookableSchedule(ctx, scheduleID, seats); err != nil {
		return nil, err
	}

	start := time.Now()
	now := s.clock.Now()
	granted, err := s.locks.Acquire(ctx, scheduleID, models.NormalizeSeats(seats), owner, now, now.Add(s.ttl))
	switch {
	case err == nil:
		s.metrics.SeatLockAttempt("acquired", time.Since(start))
	case models.IsConflict(err):
		s.metrics.SeatLockAttempt("conflict", time.Since(start))
		s.logger.WithFields(logrus.Fields{
			"schedule_id": scheduleID,
			"seats":       models.ConflictSeats(err),
		}).Debug("Seat lock conflict")
		return nil, err
	default:
		s.metrics.SeatLockAttempt("error", time.Since(start))
		return nil, fmt.Errorf("failed to acquire seat locks: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"schedule_id": scheduleID,
		"seats":       seats,
		"session":     owner,
	}).Debug("Seats locked")

	return granted, nil
}

// Release drops the owner's temporary locks on seats. Unowned, expired and
// permanently assigned seats are skipped.
func (s *SeatLockService) Release(ctx context.Context, scheduleID string, seats []int, owner string) error {
	if err := validateOwner(owner); err != nil {
		return err
	}
	if len(seats) == 0 {
		return nil
	}
	if _, err := s.locks.Release(ctx, scheduleID, seats, owner); err != nil {
		return fmt.Errorf("failed to release seat locks: %w", err)
	}
	return nil
}

// ReleaseBooked frees the seats of a booking that left the pending or
// confirmed state, permanent assignments included
func (s *SeatLockService) ReleaseBooked(ctx context.Context, scheduleID string, seats []int, owner string) error {
	if len(seats) == 0 {
		return nil
	}
	if _, err := s.locks.ReleaseAssigned(ctx, scheduleID, seats, owner); err != nil {
		return fmt.Errorf("failed to release booked seats: %w", err)
	}
	return nil
}

// Renew extends all of the owner's live locks to at least now plus the lock
// TTL. Locks pinned further out by a booking keep their expiry.
func (s *SeatLockService) Renew(ctx context.Context, owner string) (int, error) {
	if err := validateOwner(owner); err != nil {
		return 0, err
	}
	now := s.clock.Now()
	n, err := s.locks.RenewOwner(ctx, owner, now, now.Add(s.ttl))
	if err != nil {
		return 0, fmt.Errorf("failed to renew seat locks: %w", err)
	}
	return n, nil
}

// HoldUntil pins the owner's locks on seats to expiresAt. Fails with a
// ConflictError wrapping models.ErrSeatsNotLocked if any seat is not held.
func (s *SeatLockService) HoldUntil(ctx context.Context, scheduleID string, seats []int, owner string, expiresAt time.Time) error {
	return s.locks.RenewSeats(ctx, scheduleID, seats, owner, s.clock.Now(), expiresAt)
}

// MakePermanent turns the owner's locks on seats into a permanent assignment
func (s *SeatLockService) MakePermanent(ctx context.Context, scheduleID string, seats []int, owner string) error {
	return s.locks.MakePermanent(ctx, scheduleID, seats, owner, s.clock.Now())
}

// LiveLocks lists the live locks of a schedule
func (s *SeatLockService) LiveLocks(ctx context.Context, scheduleID string) ([]models.SeatLock, error) {
	locks, err := s.locks.LiveLocks(ctx, scheduleID, s.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to list seat locks: %w", err)
	}
	s.metrics.ActiveLocks(scheduleID, len(locks))
	return locks, nil
}

// Sweep removes every lock that expired by now
func (s *SeatLockService) Sweep(ctx context.Context, now time.Time) (int, error) {
	return s.locks.Sweep(ctx, now)
}

// bookableSchedule checks the schedule accepts bookings and every seat is in range
func (s *SeatLockService) bookableSchedule(ctx context.Context, scheduleID string, seats []int) (*models.Schedule, error) {
	if len(seats) == 0 {
		return nil, models.ValidationError{Field: "seat_numbers", Msg: "at least one seat is required"}
	}
	if len(seats) > maxSeatsPerRequest {
		return nil, models.ValidationError{Field: "seat_numbers", Msg: fmt.Sprintf("maximum %d seats can be reserved at once", maxSeatsPerRequest)}
	}
	if models.HasDuplicateSeats(seats) {
		return nil, models.ValidationError{Field: "seat_numbers", Msg: "seat numbers must be unique"}
	}

	schedule, err := s.schedules.GetSchedule(ctx, scheduleID)
	if err != nil {
		return nil, fmt.Errorf("failed to get schedule: %w", err)
	}
	if schedule == nil {
		return nil, models.NotFoundError{Resource: "schedule", ID: scheduleID}
	}
	if !schedule.CanAcceptBooking(s.clock.Now()) {
		return nil, models.ValidationError{Field: "schedule_id", Msg: "schedule is not accepting bookings"}
	}
	for _, seat := range seats {
		if !schedule.HasSeat(seat) {
			return nil, models.ValidationError{Field: "seat_numbers", Msg: fmt.Sprintf("seat %d does not exist on this schedule", seat)}
		}
	}
	return schedule, nil
}

func validateOwner(owner string) error {
	if strings.TrimSpace(owner) == "" {
		return models.ValidationError{Field: "session_id", Msg: "owner session is required"}
	}
	return nil
}
