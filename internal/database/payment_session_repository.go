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

const paymentSessionColumns = `
	id, booking_id, amount, currency, status, card_last4, card_fingerprint,
	attempts, last_error, gateway_reference, expires_at, created_at, updated_at`

// PaymentSessionRepository handles database operations for payment sessions.
// A partial unique index keeps at most one active session per booking.
type PaymentSessionRepository struct {
	db *sqlx.DB
}

// NewPaymentSessionRepository creates a new PaymentSessionRepository
func NewPaymentSessionRepository(db *sqlx.DB) *PaymentSessionRepository {
	return &PaymentSessionRepository{db: db}
}

// CreateSession expires the booking's lapsed active session, if any, and
// inserts s in the same transaction
func (r *PaymentSessionRepository) CreateSession(ctx context.Context, s *models.PaymentSession, now time.Time) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		UPDATE payment_sessions SET status = 'expired', updated_at = $2
		WHERE booking_id = $1 AND status = 'active' AND expires_at <= $2`,
		s.BookingID, now,
	)
	if err != nil {
		return fmt.Errorf("failed to expire lapsed sessions: %w", err)
	}

	query := `
		INSERT INTO payment_sessions (` + paymentSessionColumns + `
		) VALUES (
			:id, :booking_id, :amount, :currency, :status, :card_last4, :card_fingerprint,
			:attempts, :last_error, :gateway_reference, :expires_at, :created_at, :updated_at
		)`
	if _, err := tx.NamedExecContext(ctx, query, s); err != nil {
		if isUniqueViolation(err, "payment_sessions_one_active_idx") {
			return models.ErrActiveSessionExists
		}
		return fmt.Errorf("failed to create payment session: %w", err)
	}

	return tx.Commit()
}

// GetSession retrieves a session by ID
func (r *PaymentSessionRepository) GetSession(ctx context.Context, id uuid.UUID) (*models.PaymentSession, error) {
	var s models.PaymentSession
	err := r.db.GetContext(ctx, &s, `SELECT `+paymentSessionColumns+` FROM payment_sessions WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// GetActiveSessionForBooking retrieves the booking's active session
func (r *PaymentSessionRepository) GetActiveSessionForBooking(ctx context.Context, bookingID uuid.UUID) (*models.PaymentSession, error) {
	var s models.PaymentSession
	err := r.db.GetContext(ctx, &s,
		`SELECT `+paymentSessionColumns+` FROM payment_sessions WHERE booking_id = $1 AND status = 'active'`,
		bookingID,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// UpdateSession writes s if its stored status still equals expectedStatus
func (r *PaymentSessionRepository) UpdateSession(ctx context.Context, s *models.PaymentSession, expectedStatus models.PaymentSessionStatus) (bool, error) {
	query := `
		UPDATE payment_sessions
		SET status = $1,
			card_last4 = $2,
			card_fingerprint = $3,
			attempts = $4,
			last_error = $5,
			gateway_reference = $6,
			updated_at = $7
		WHERE id = $8 AND status = $9`

	result, err := r.db.ExecContext(ctx, query,
		s.Status, s.CardLast4, s.CardFingerprint, s.Attempts, s.LastError, s.GatewayRef, s.UpdatedAt,
		s.ID, expectedStatus,
	)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows == 1, nil
}

// ExpireSessions marks lapsed active sessions expired
func (r *PaymentSessionRepository) ExpireSessions(ctx context.Context, now time.Time) (int, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE payment_sessions SET status = 'expired', updated_at = $1
		WHERE status = 'active' AND expires_at <= $1`,
		now,
	)
	if err != nil {
		return 0, err
	}
	rows, err := result.RowsAffected()
	return int(rows), err
}
