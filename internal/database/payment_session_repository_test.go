package database

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/smarttransit/seat-booking-core/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func samplePaymentSession(now time.Time) *models.PaymentSession {
	return &models.PaymentSession{
		ID:        uuid.New(),
		BookingID: uuid.New(),
		Amount:    decimal.NewFromInt(106000),
		Currency:  "LKR",
		Status:    models.PaymentSessionActive,
		ExpiresAt: now.Add(10 * time.Minute),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestPaymentSessionRepository_CreateSession(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	t.Run("Success", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewPaymentSessionRepository(db)
		s := samplePaymentSession(now)

		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE payment_sessions SET status = 'expired'`).
			WithArgs(s.BookingID.String(), now).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(`INSERT INTO payment_sessions`).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		require.NoError(t, repo.CreateSession(ctx, s, now))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Active session exists", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewPaymentSessionRepository(db)

		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE payment_sessions SET status = 'expired'`).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(`INSERT INTO payment_sessions`).
			WillReturnError(&pq.Error{Code: "23505", Constraint: "payment_sessions_one_active_idx"})
		mock.ExpectRollback()

		err := repo.CreateSession(ctx, samplePaymentSession(now), now)
		assert.ErrorIs(t, err, models.ErrActiveSessionExists)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPaymentSessionRepository_UpdateSession(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	db, mock := newMockDB(t)
	repo := NewPaymentSessionRepository(db)
	s := samplePaymentSession(now)
	s.Status = models.PaymentSessionCompleted

	mock.ExpectExec(`UPDATE payment_sessions`).WillReturnResult(sqlmock.NewResult(0, 1))
	ok, err := repo.UpdateSession(ctx, s, models.PaymentSessionActive)
	require.NoError(t, err)
	assert.True(t, ok)

	mock.ExpectExec(`UPDATE payment_sessions`).WillReturnResult(sqlmock.NewResult(0, 0))
	ok, err = repo.UpdateSession(ctx, s, models.PaymentSessionActive)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentSessionRepository_GetSessionNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPaymentSessionRepository(db)
	id := uuid.New()

	mock.ExpectQuery(`SELECT .+ FROM payment_sessions WHERE id = \$1`).
		WithArgs(id.String()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	s, err := repo.GetSession(context.Background(), id)
	require.NoError(t, err)
	assert.Nil(t, s)
	assert.NoError(t, mock.ExpectationsWereMet())
}
