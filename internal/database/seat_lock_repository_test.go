package database

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/smarttransit/seat-booking-core/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "postgres"), mock
}

var seatLockCols = []string{"schedule_id", "seat_number", "owner_session_id", "acquired_at", "expires_at"}

func TestSeatLockRepository_Acquire(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	expires := now.Add(15 * time.Minute)

	t.Run("Success", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewSeatLockRepository(db)

		mock.ExpectBegin()
		mock.ExpectExec(`DELETE FROM seat_locks`).
			WithArgs("sch-1", sqlmock.AnyArg(), now).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`INSERT INTO seat_locks`).
			WithArgs("sch-1", 3, "sess-a", now, expires).
			WillReturnRows(sqlmock.NewRows(seatLockCols).AddRow("sch-1", 3, "sess-a", now, expires))
		mock.ExpectQuery(`INSERT INTO seat_locks`).
			WithArgs("sch-1", 7, "sess-a", now, expires).
			WillReturnRows(sqlmock.NewRows(seatLockCols).AddRow("sch-1", 7, "sess-a", now, expires))
		mock.ExpectCommit()

		locks, err := repo.Acquire(ctx, "sch-1", []int{7, 3}, "sess-a", now, expires)
		require.NoError(t, err)
		require.Len(t, locks, 2)
		assert.Equal(t, 3, locks[0].SeatNumber)
		assert.Equal(t, 7, locks[1].SeatNumber)
		require.NotNil(t, locks[0].ExpiresAt)
		assert.True(t, locks[0].ExpiresAt.Equal(expires))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Conflict rolls back", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewSeatLockRepository(db)

		mock.ExpectBegin()
		mock.ExpectExec(`DELETE FROM seat_locks`).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery(`INSERT INTO seat_locks`).
			WithArgs("sch-1", 3, "sess-b", now, expires).
			WillReturnRows(sqlmock.NewRows(seatLockCols).AddRow("sch-1", 3, "sess-b", now, expires))
		mock.ExpectQuery(`INSERT INTO seat_locks`).
			WithArgs("sch-1", 7, "sess-b", now, expires).
			WillReturnRows(sqlmock.NewRows(seatLockCols))
		mock.ExpectRollback()

		locks, err := repo.Acquire(ctx, "sch-1", []int{3, 7}, "sess-b", now, expires)
		assert.Nil(t, locks)
		require.True(t, models.IsConflict(err))
		assert.Equal(t, []int{7}, models.ConflictSeats(err))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestSeatLockRepository_MakePermanent(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	t.Run("Success", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewSeatLockRepository(db)

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT seat_number FROM seat_locks`).
			WithArgs("sch-1", sqlmock.AnyArg(), "sess-a", now).
			WillReturnRows(sqlmock.NewRows([]string{"seat_number"}).AddRow(3).AddRow(7))
		mock.ExpectExec(`UPDATE seat_locks SET expires_at`).
			WithArgs("sch-1", sqlmock.AnyArg(), "sess-a", nil).
			WillReturnResult(sqlmock.NewResult(0, 2))
		mock.ExpectCommit()

		require.NoError(t, repo.MakePermanent(ctx, "sch-1", []int{3, 7}, "sess-a", now))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Missing seat", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewSeatLockRepository(db)

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT seat_number FROM seat_locks`).
			WillReturnRows(sqlmock.NewRows([]string{"seat_number"}).AddRow(3))
		mock.ExpectRollback()

		err := repo.MakePermanent(ctx, "sch-1", []int{3, 7}, "sess-a", now)
		require.ErrorIs(t, err, models.ErrSeatsNotLocked)
		assert.Equal(t, []int{7}, models.ConflictSeats(err))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestSeatLockRepository_ReleaseAndSweep(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	db, mock := newMockDB(t)
	repo := NewSeatLockRepository(db)

	mock.ExpectExec(`DELETE FROM seat_locks .* AND expires_at IS NOT NULL`).
		WithArgs("sch-1", sqlmock.AnyArg(), "sess-a").
		WillReturnResult(sqlmock.NewResult(0, 1))
	n, err := repo.Release(ctx, "sch-1", []int{3, 7}, "sess-a")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	mock.ExpectExec(`DELETE FROM seat_locks`).
		WithArgs("sch-1", sqlmock.AnyArg(), "sess-a").
		WillReturnResult(sqlmock.NewResult(0, 2))
	n, err = repo.ReleaseAssigned(ctx, "sch-1", []int{3, 7}, "sess-a")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	mock.ExpectExec(`DELETE FROM seat_locks WHERE expires_at IS NOT NULL`).
		WithArgs(now).
		WillReturnResult(sqlmock.NewResult(0, 5))
	n, err = repo.Sweep(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSeatLockRepository_RenewOwner(t *testing.T) {
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	db, mock := newMockDB(t)
	repo := NewSeatLockRepository(db)

	mock.ExpectExec(`UPDATE seat_locks SET expires_at = GREATEST\(expires_at, \$3\)`).
		WithArgs("sess-a", now, now.Add(15*time.Minute)).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := repo.RenewOwner(context.Background(), "sess-a", now, now.Add(15*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMissingSeats(t *testing.T) {
	assert.Nil(t, missingSeats([]int{1, 2, 3}, []int{1, 2, 3}))
	assert.Equal(t, []int{2}, missingSeats([]int{1, 2, 3}, []int{1, 3}))
	assert.Equal(t, []int{1, 2}, missingSeats([]int{1, 2}, nil))
	assert.Equal(t, []int{4}, missingSeats([]int{4}, []int{1, 2, 3}))
}
