package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/smarttransit/seat-booking-core/internal/models"
)

// SeatLockRepository stores seat locks in the seat_locks table. The primary
// key (schedule_id, seat_number) serializes concurrent acquisitions of a seat.
type SeatLockRepository struct {
	db *sqlx.DB
}

// NewSeatLockRepository creates a new SeatLockRepository
func NewSeatLockRepository(db *sqlx.DB) *SeatLockRepository {
	return &SeatLockRepository{db: db}
}

// Acquire grants every seat to owner or none of them. Seats are claimed in
// ascending order inside one transaction; any seat held live by someone else
// (or permanently assigned) rolls the whole claim back.
func (r *SeatLockRepository) Acquire(ctx context.Context, scheduleID string, seats []int, owner string, now, expiresAt time.Time) ([]models.SeatLock, error) {
	seats = models.NormalizeSeats(seats)

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		DELETE FROM seat_locks
		WHERE schedule_id = $1 AND seat_number = ANY($2)
		  AND expires_at IS NOT NULL AND expires_at <= $3`,
		scheduleID, pq.Array(seats), now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to clear expired locks: %w", err)
	}

	// the WHERE on DO UPDATE only lets the owner refresh its own temporary lock
	upsert := `
		INSERT INTO seat_locks (schedule_id, seat_number, owner_session_id, acquired_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (schedule_id, seat_number) DO UPDATE
		SET expires_at = GREATEST(seat_locks.expires_at, EXCLUDED.expires_at)
		WHERE seat_locks.owner_session_id = EXCLUDED.owner_session_id
		  AND seat_locks.expires_at IS NOT NULL
		RETURNING schedule_id, seat_number, owner_session_id, acquired_at, expires_at`

	granted := make([]models.SeatLock, 0, len(seats))
	var conflicts []int
	for _, seat := range seats {
		var lock models.SeatLock
		err := tx.GetContext(ctx, &lock, upsert, scheduleID, seat, owner, now, expiresAt)
		if err == sql.ErrNoRows {
			conflicts = append(conflicts, seat)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to lock seat %d: %w", seat, err)
		}
		granted = append(granted, lock)
	}
	if len(conflicts) > 0 {
		return nil, models.ConflictError{Resource: "seat", Seats: conflicts}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit seat locks: %w", err)
	}
	return granted, nil
}

// Release deletes the owner's temporary locks on seats; permanent
// assignments are left in place
func (r *SeatLockRepository) Release(ctx context.Context, scheduleID string, seats []int, owner string) (int, error) {
	return r.exec(ctx, `
		DELETE FROM seat_locks
		WHERE schedule_id = $1 AND seat_number = ANY($2) AND owner_session_id = $3
		  AND expires_at IS NOT NULL`,
		scheduleID, pq.Array(seats), owner,
	)
}

// ReleaseAssigned deletes the owner's locks on seats, permanent ones included
func (r *SeatLockRepository) ReleaseAssigned(ctx context.Context, scheduleID string, seats []int, owner string) (int, error) {
	return r.exec(ctx, `
		DELETE FROM seat_locks
		WHERE schedule_id = $1 AND seat_number = ANY($2) AND owner_session_id = $3`,
		scheduleID, pq.Array(seats), owner,
	)
}

// RenewOwner extends every live, non-permanent lock of owner, never
// shortening one
func (r *SeatLockRepository) RenewOwner(ctx context.Context, owner string, now, expiresAt time.Time) (int, error) {
	return r.exec(ctx, `
		UPDATE seat_locks SET expires_at = GREATEST(expires_at, $3)
		WHERE owner_session_id = $1 AND expires_at IS NOT NULL AND expires_at > $2`,
		owner, now, expiresAt,
	)
}

func (r *SeatLockRepository) exec(ctx context.Context, query string, args ...interface{}) (int, error) {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	rows, err := result.RowsAffected()
	return int(rows), err
}

// RenewSeats moves the owner's locks on seats to expiresAt, all or nothing
func (r *SeatLockRepository) RenewSeats(ctx context.Context, scheduleID string, seats []int, owner string, now, expiresAt time.Time) error {
	return r.updateOwned(ctx, scheduleID, seats, owner, now, &expiresAt)
}

// MakePermanent clears the expiry of the owner's locks on seats, all or nothing
func (r *SeatLockRepository) MakePermanent(ctx context.Context, scheduleID string, seats []int, owner string, now time.Time) error {
	return r.updateOwned(ctx, scheduleID, seats, owner, now, nil)
}

func (r *SeatLockRepository) updateOwned(ctx context.Context, scheduleID string, seats []int, owner string, now time.Time, expiresAt *time.Time) error {
	seats = models.NormalizeSeats(seats)

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var held []int
	err = tx.SelectContext(ctx, &held, `
		SELECT seat_number FROM seat_locks
		WHERE schedule_id = $1 AND seat_number = ANY($2) AND owner_session_id = $3
		  AND expires_at IS NOT NULL AND expires_at > $4
		ORDER BY seat_number
		FOR UPDATE`,
		scheduleID, pq.Array(seats), owner, now,
	)
	if err != nil {
		return fmt.Errorf("failed to read seat locks: %w", err)
	}

	if missing := missingSeats(seats, held); len(missing) > 0 {
		return models.ConflictError{Resource: "seat lock", Seats: missing, Err: models.ErrSeatsNotLocked}
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE seat_locks SET expires_at = $4
		WHERE schedule_id = $1 AND seat_number = ANY($2) AND owner_session_id = $3`,
		scheduleID, pq.Array(seats), owner, expiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update seat locks: %w", err)
	}
	return tx.Commit()
}

// LiveLocks lists live locks on a schedule ordered by seat
func (r *SeatLockRepository) LiveLocks(ctx context.Context, scheduleID string, now time.Time) ([]models.SeatLock, error) {
	locks := []models.SeatLock{}
	err := r.db.SelectContext(ctx, &locks, `
		SELECT schedule_id, seat_number, owner_session_id, acquired_at, expires_at
		FROM seat_locks
		WHERE schedule_id = $1 AND (expires_at IS NULL OR expires_at > $2)
		ORDER BY seat_number`,
		scheduleID, now,
	)
	if err != nil {
		return nil, err
	}
	return locks, nil
}

// Sweep deletes every lock that expired by now
func (r *SeatLockRepository) Sweep(ctx context.Context, now time.Time) (int, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM seat_locks WHERE expires_at IS NOT NULL AND expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	rows, err := result.RowsAffected()
	return int(rows), err
}

// missingSeats returns the wanted seats absent from held; both are ascending
func missingSeats(wanted, held []int) []int {
	var missing []int
	i := 0
	for _, seat := range wanted {
		for i < len(held) && held[i] < seat {
			i++
		}
		if i < len(held) && held[i] == seat {
			continue
		}
		missing = append(missing, seat)
	}
	return missing
}
