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

var bookingCols = []string{
	"id", "booking_reference", "customer_id", "guest_identifier", "contact_email", "contact_phone",
	"owner_session_id", "schedule_id", "seat_numbers", "passengers", "pricing", "status", "version",
	"expires_at", "payment_reference", "cancellation_reason", "refund_quote", "device",
	"confirmed_at", "cancelled_at", "completed_at", "created_at", "updated_at",
}

func sampleBooking(now time.Time) *models.Booking {
	expires := now.Add(15 * time.Minute)
	return &models.Booking{
		ID:               uuid.New(),
		BookingReference: "BKG-MF3K2Z1A-A1B2C3",
		OwnerSessionID:   "sess-a",
		ScheduleID:       "sch-1",
		SeatNumbers:      models.IntArray{3, 7},
		Passengers:       models.Passengers{{Name: "Nimal", SeatNumber: 3}, {Name: "Kamal", SeatNumber: 7}},
		Pricing:          models.PricingBreakdown{TotalPay: decimal.NewFromInt(212000), Currency: "LKR"},
		Status:           models.BookingStatusPending,
		Version:          1,
		ExpiresAt:        &expires,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

func TestBookingRepository_CreateBooking(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	t.Run("Success", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewBookingRepository(db)

		mock.ExpectExec(`INSERT INTO bookings`).WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.CreateBooking(ctx, sampleBooking(now)))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Duplicate reference", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewBookingRepository(db)

		mock.ExpectExec(`INSERT INTO bookings`).
			WillReturnError(&pq.Error{Code: "23505", Constraint: "bookings_booking_reference_key"})

		err := repo.CreateBooking(ctx, sampleBooking(now))
		assert.ErrorIs(t, err, models.ErrDuplicateReference)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Other unique violation", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewBookingRepository(db)

		mock.ExpectExec(`INSERT INTO bookings`).
			WillReturnError(&pq.Error{Code: "23505", Constraint: "bookings_pkey"})

		err := repo.CreateBooking(ctx, sampleBooking(now))
		require.Error(t, err)
		assert.NotErrorIs(t, err, models.ErrDuplicateReference)
		assert.Contains(t, err.Error(), "failed to create booking")
	})
}

func TestBookingRepository_GetBooking(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	t.Run("Found", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewBookingRepository(db)
		id := uuid.New()
		expires := now.Add(15 * time.Minute)

		mock.ExpectQuery(`SELECT .+ FROM bookings WHERE id = \$1`).
			WithArgs(id.String()).
			WillReturnRows(sqlmock.NewRows(bookingCols).AddRow(
				id.String(), "BKG-MF3K2Z1A-A1B2C3", nil, "GUEST-NIMAL", "nimal@example.com", "0771234567",
				"sess-a", "sch-1", []byte("{3,7}"),
				[]byte(`[{"name":"Nimal","seat_number":3},{"name":"Kamal","seat_number":7}]`),
				[]byte(`{"total_pay":"212000","currency":"LKR"}`), "pending", 2,
				expires, nil, nil, nil, nil,
				nil, nil, nil, now, now,
			))

		b, err := repo.GetBooking(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, b)
		assert.Equal(t, id, b.ID)
		assert.Equal(t, models.IntArray{3, 7}, b.SeatNumbers)
		assert.Len(t, b.Passengers, 2)
		assert.True(t, b.Pricing.TotalPay.Equal(decimal.NewFromInt(212000)))
		assert.Equal(t, models.BookingStatusPending, b.Status)
		assert.Equal(t, 2, b.Version)
		assert.Nil(t, b.CustomerID)
		assert.Nil(t, b.RefundQuote)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Not found", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewBookingRepository(db)

		mock.ExpectQuery(`SELECT .+ FROM bookings WHERE booking_reference = \$1`).
			WithArgs("BKG-MF3K2Z1A-FFFFFF").
			WillReturnRows(sqlmock.NewRows(bookingCols))

		b, err := repo.GetBookingByReference(ctx, "BKG-MF3K2Z1A-FFFFFF")
		require.NoError(t, err)
		assert.Nil(t, b)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestBookingRepository_UpdateBooking(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	t.Run("Version matches", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewBookingRepository(db)
		b := sampleBooking(now)
		b.Status = models.BookingStatusConfirmed
		b.ExpiresAt = nil

		mock.ExpectExec(`UPDATE bookings`).
			WithArgs(
				"confirmed", nil, nil, nil, nil, nil, nil, nil, sqlmock.AnyArg(),
				b.ID.String(), "pending", 1,
			).
			WillReturnResult(sqlmock.NewResult(0, 1))

		ok, err := repo.UpdateBooking(ctx, b, models.BookingStatusPending, 1)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, 2, b.Version)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Stale version", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewBookingRepository(db)
		b := sampleBooking(now)

		mock.ExpectExec(`UPDATE bookings`).WillReturnResult(sqlmock.NewResult(0, 0))

		ok, err := repo.UpdateBooking(ctx, b, models.BookingStatusPending, 1)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Equal(t, 1, b.Version)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestBookingRepository_ListExpiredPendingBookings(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	db, mock := newMockDB(t)
	repo := NewBookingRepository(db)

	mock.ExpectQuery(`SELECT .+ FROM bookings`).
		WithArgs(now, 50).
		WillReturnRows(sqlmock.NewRows(bookingCols))

	bookings, err := repo.ListExpiredPendingBookings(ctx, now, 50)
	require.NoError(t, err)
	assert.Empty(t, bookings)
	assert.NoError(t, mock.ExpectationsWereMet())
}
