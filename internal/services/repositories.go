package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/smarttransit/seat-booking-core/internal/models"
)

// SeatLockStore persists seat locks. Implementations must make Acquire
// all-or-nothing per call and serialize concurrent calls on the same
// (schedule, seat). Expired locks count as absent everywhere.
type SeatLockStore interface {
	// Acquire grants or refreshes a lock on every seat for owner. On any
	// seat held live by another owner, or permanently assigned, nothing
	// changes and a models.ConflictError listing those seats is returned.
	Acquire(ctx context.Context, scheduleID string, seats []int, owner string, now, expiresAt time.Time) ([]models.SeatLock, error)

	// Release deletes the owner's temporary locks on seats. Permanent locks
	// and seats not held by owner are skipped.
	Release(ctx context.Context, scheduleID string, seats []int, owner string) (int, error)

	// ReleaseAssigned deletes the owner's locks on seats, live or permanent
	ReleaseAssigned(ctx context.Context, scheduleID string, seats []int, owner string) (int, error)

	// RenewOwner moves the expiry of every live, non-permanent lock of owner
	// to expiresAt unless it already runs later
	RenewOwner(ctx context.Context, owner string, now, expiresAt time.Time) (int, error)

	// RenewSeats moves the expiry of the owner's locks on seats to expiresAt.
	// Fails with a ConflictError wrapping models.ErrSeatsNotLocked, changing
	// nothing, if any seat is not a live, non-permanent lock of owner.
	RenewSeats(ctx context.Context, scheduleID string, seats []int, owner string, now, expiresAt time.Time) error

	// MakePermanent clears the expiry of the owner's locks on seats, with
	// the same precondition as RenewSeats
	MakePermanent(ctx context.Context, scheduleID string, seats []int, owner string, now time.Time) error

	// LiveLocks lists the live locks on a schedule ordered by seat
	LiveLocks(ctx context.Context, scheduleID string, now time.Time) ([]models.SeatLock, error)

	// Sweep deletes every lock with expires_at <= now
	Sweep(ctx context.Context, now time.Time) (int, error)
}

// BookingStore persists bookings. Getters return nil, nil when absent.
type BookingStore interface {
	// CreateBooking inserts b; returns models.ErrDuplicateReference on a reference collision
	CreateBooking(ctx context.Context, b *models.Booking) error
	GetBooking(ctx context.Context, id uuid.UUID) (*models.Booking, error)
	GetBookingByReference(ctx context.Context, reference string) (*models.Booking, error)

	// UpdateBooking writes b only if the stored status and version still
	// equal expectedStatus and expectedVersion, bumping the version. Returns
	// false when the compare-and-set lost.
	UpdateBooking(ctx context.Context, b *models.Booking, expectedStatus models.BookingStatus, expectedVersion int) (bool, error)

	ListExpiredPendingBookings(ctx context.Context, now time.Time, limit int) ([]*models.Booking, error)
	ListBookingsBySchedule(ctx context.Context, scheduleID string, status models.BookingStatus) ([]*models.Booking, error)
	ListBookingsBySession(ctx context.Context, owner string) ([]*models.Booking, error)
}

// PaymentSessionStore persists payment sessions. Getters return nil, nil when absent.
type PaymentSessionStore interface {
	// CreateSession inserts s. An active session of the same booking that
	// lapsed by now is expired first; a live one yields models.ErrActiveSessionExists.
	CreateSession(ctx context.Context, s *models.PaymentSession, now time.Time) error
	GetSession(ctx context.Context, id uuid.UUID) (*models.PaymentSession, error)
	GetActiveSessionForBooking(ctx context.Context, bookingID uuid.UUID) (*models.PaymentSession, error)

	// UpdateSession writes s only if the stored status equals expectedStatus
	UpdateSession(ctx context.Context, s *models.PaymentSession, expectedStatus models.PaymentSessionStatus) (bool, error)

	// ExpireSessions marks active sessions with expires_at <= now expired
	ExpireSessions(ctx context.Context, now time.Time) (int, error)
}

// ScheduleStore persists schedules. Getters return nil, nil when absent.
type ScheduleStore interface {
	CreateSchedule(ctx context.Context, s *models.Schedule) error
	GetSchedule(ctx context.Context, id string) (*models.Schedule, error)

	// AdjustAvailableSeats adds delta to available seats, bounded to [0, total]
	AdjustAvailableSeats(ctx context.Context, id string, delta int) error

	// UpdateScheduleStatus moves a schedule from one status to another; false if it was not in from
	UpdateScheduleStatus(ctx context.Context, id string, from, to models.ScheduleStatus) (bool, error)

	ListSchedulesDeparted(ctx context.Context, now time.Time) ([]*models.Schedule, error)
	ListSchedulesArrived(ctx context.Context, now time.Time) ([]*models.Schedule, error)
}

// EventPublisher publishes committed booking transitions
type EventPublisher interface {
	PublishBookingEvent(ctx context.Context, event models.BookingEvent) error
}

// NoopPublisher drops every event
type NoopPublisher struct{}

// PublishBookingEvent implements EventPublisher
func (NoopPublisher) PublishBookingEvent(context.Context, models.BookingEvent) error { return nil }
