package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/smarttransit/seat-booking-core/internal/models"
)

const bookingColumns = `
	id, booking_reference, customer_id, guest_identifier, contact_email, contact_phone,
	owner_session_id, schedule_id, seat_numbers, passengers, pricing, status, version,
	expires_at, payment_reference, cancellation_reason, refund_quote, device,
	confirmed_at, cancelled_at, completed_at, created_at, updated_at`

// BookingRepository handles database operations for the bookings table
type BookingRepository struct {
	db *sqlx.DB
}

// NewBookingRepository creates a new BookingRepository
func NewBookingRepository(db *sqlx.DB) *BookingRepository {
	return &BookingRepository{db: db}
}

// CreateBooking inserts a booking. A clash on booking_reference returns
// models.ErrDuplicateReference so the caller can pick another one.
func (r *BookingRepository) CreateBooking(ctx context.Context, b *models.Booking) error {
	query := `
		INSERT INTO bookings (` + bookingColumns + `
		) VALUES (
			:id, :booking_reference, :customer_id, :guest_identifier, :contact_email, :contact_phone,
			:owner_session_id, :schedule_id, :seat_numbers, :passengers, :pricing, :status, :version,
			:expires_at, :payment_reference, :cancellation_reason, :refund_quote, :device,
			:confirmed_at, :cancelled_at, :completed_at, :created_at, :updated_at
		)`

	if _, err := r.db.NamedExecContext(ctx, query, b); err != nil {
		if isUniqueViolation(err, "bookings_booking_reference_key") {
			return models.ErrDuplicateReference
		}
		return fmt.Errorf("failed to create booking: %w", err)
	}
	return nil
}

// GetBooking retrieves a booking by ID
func (r *BookingRepository) GetBooking(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	var b models.Booking
	err := r.db.GetContext(ctx, &b, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// GetBookingByReference retrieves a booking by its reference
func (r *BookingRepository) GetBookingByReference(ctx context.Context, reference string) (*models.Booking, error) {
	var b models.Booking
	err := r.db.GetContext(ctx, &b, `SELECT `+bookingColumns+` FROM bookings WHERE booking_reference = $1`, reference)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// UpdateBooking writes the mutable booking fields if status and version are
// still the expected ones. The stored version is bumped on success.
func (r *BookingRepository) UpdateBooking(ctx context.Context, b *models.Booking, expectedStatus models.BookingStatus, expectedVersion int) (bool, error) {
	query := `
		UPDATE bookings
		SET status = $1,
			version = version + 1,
			expires_at = $2,
			payment_reference = $3,
			cancellation_reason = $4,
			refund_quote = $5,
			confirmed_at = $6,
			cancelled_at = $7,
			completed_at = $8,
			updated_at = $9
		WHERE id = $10 AND status = $11 AND version = $12`

	result, err := r.db.ExecContext(ctx, query,
		b.Status, b.ExpiresAt, b.PaymentReference, b.CancellationReason, b.RefundQuote,
		b.ConfirmedAt, b.CancelledAt, b.CompletedAt, b.UpdatedAt,
		b.ID, expectedStatus, expectedVersion,
	)
	if err != nil {
		return false, err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	if rows == 0 {
		return false, nil
	}
	b.Version = expectedVersion + 1
	return true, nil
}

// ListExpiredPendingBookings returns pending bookings whose hold lapsed, oldest first.
// A limit of 0 means no limit.
func (r *BookingRepository) ListExpiredPendingBookings(ctx context.Context, now time.Time, limit int) ([]*models.Booking, error) {
	var lim interface{}
	if limit > 0 {
		lim = limit
	}

	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE status = 'pending' AND expires_at <= $1
		ORDER BY expires_at ASC
		LIMIT $2`

	var bookings []*models.Booking
	if err := r.db.SelectContext(ctx, &bookings, query, now, lim); err != nil {
		return nil, err
	}
	return bookings, nil
}

// ListBookingsBySchedule returns a schedule's bookings in the given status
func (r *BookingRepository) ListBookingsBySchedule(ctx context.Context, scheduleID string, status models.BookingStatus) ([]*models.Booking, error) {
	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE schedule_id = $1 AND status = $2
		ORDER BY created_at ASC`

	var bookings []*models.Booking
	if err := r.db.SelectContext(ctx, &bookings, query, scheduleID, status); err != nil {
		return nil, err
	}
	return bookings, nil
}

// ListBookingsBySession returns the bookings created by a session
func (r *BookingRepository) ListBookingsBySession(ctx context.Context, owner string) ([]*models.Booking, error) {
	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE owner_session_id = $1
		ORDER BY created_at ASC`

	var bookings []*models.Booking
	if err := r.db.SelectContext(ctx, &bookings, query, owner); err != nil {
		return nil, err
	}
	return bookings, nil
}
