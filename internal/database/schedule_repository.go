package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/smarttransit/seat-booking-core/internal/models"
)

const scheduleColumns = `id, route_name, departure_at, arrival_at, total_seats, available_seats, fare_per_seat, status, created_at, updated_at`

// ScheduleRepository handles database operations for schedules
type ScheduleRepository struct {
	db *sqlx.DB
}

// NewScheduleRepository creates a new ScheduleRepository
func NewScheduleRepository(db *sqlx.DB) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

// CreateSchedule inserts or replaces a schedule
func (r *ScheduleRepository) CreateSchedule(ctx context.Context, s *models.Schedule) error {
	query := `
		INSERT INTO schedules (` + scheduleColumns + `)
		VALUES (:id, :route_name, :departure_at, :arrival_at, :total_seats, :available_seats, :fare_per_seat, :status, :created_at, :updated_at)
		ON CONFLICT (id) DO UPDATE SET
			route_name = EXCLUDED.route_name,
			departure_at = EXCLUDED.departure_at,
			arrival_at = EXCLUDED.arrival_at,
			total_seats = EXCLUDED.total_seats,
			available_seats = EXCLUDED.available_seats,
			fare_per_seat = EXCLUDED.fare_per_seat,
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at`

	_, err := r.db.NamedExecContext(ctx, query, s)
	return err
}

// GetSchedule retrieves a schedule by ID
func (r *ScheduleRepository) GetSchedule(ctx context.Context, id string) (*models.Schedule, error) {
	var s models.Schedule
	err := r.db.GetContext(ctx, &s, `SELECT `+scheduleColumns+` FROM schedules WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// AdjustAvailableSeats adds delta to available seats, bounded to [0, total_seats]
func (r *ScheduleRepository) AdjustAvailableSeats(ctx context.Context, id string, delta int) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE schedules
		SET available_seats = LEAST(total_seats, GREATEST(0, available_seats + $2)),
			updated_at = NOW()
		WHERE id = $1`,
		id, delta,
	)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return models.NotFoundError{Resource: "schedule", ID: id}
	}
	return nil
}

// UpdateScheduleStatus moves a schedule from one status to another
func (r *ScheduleRepository) UpdateScheduleStatus(ctx context.Context, id string, from, to models.ScheduleStatus) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE schedules SET status = $3, updated_at = NOW() WHERE id = $1 AND status = $2`,
		id, from, to,
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

// ListSchedulesDeparted returns scheduled trips whose departure has passed
func (r *ScheduleRepository) ListSchedulesDeparted(ctx context.Context, now time.Time) ([]*models.Schedule, error) {
	var schedules []*models.Schedule
	err := r.db.SelectContext(ctx, &schedules,
		`SELECT `+scheduleColumns+` FROM schedules WHERE status = 'scheduled' AND departure_at <= $1 ORDER BY departure_at`,
		now,
	)
	return schedules, err
}

// ListSchedulesArrived returns in-progress trips whose arrival has passed
func (r *ScheduleRepository) ListSchedulesArrived(ctx context.Context, now time.Time) ([]*models.Schedule, error) {
	var schedules []*models.Schedule
	err := r.db.SelectContext(ctx, &schedules,
		`SELECT `+scheduleColumns+` FROM schedules WHERE status = 'in_progress' AND arrival_at <= $1 ORDER BY arrival_at`,
		now,
	)
	return schedules, err
}
