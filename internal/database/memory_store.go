package database

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/smarttransit/seat-booking-core/internal/models"
)

// MemoryStore keeps bookings, payment sessions and schedules in process.
// Records are copied on the way in and out so callers never share state.
type MemoryStore struct {
	mu        sync.RWMutex
	bookings  map[uuid.UUID]*models.Booking
	refs      map[string]uuid.UUID
	sessions  map[uuid.UUID]*models.PaymentSession
	schedules map[string]*models.Schedule
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		bookings:  make(map[uuid.UUID]*models.Booking),
		refs:      make(map[string]uuid.UUID),
		sessions:  make(map[uuid.UUID]*models.PaymentSession),
		schedules: make(map[string]*models.Schedule),
	}
}

// ============================================================================
// BOOKINGS
// ============================================================================

// CreateBooking inserts a booking with a unique reference
func (s *MemoryStore) CreateBooking(ctx context.Context, b *models.Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.refs[b.BookingReference]; exists {
		return models.ErrDuplicateReference
	}
	s.bookings[b.ID] = b.Clone()
	s.refs[b.BookingReference] = b.ID
	return nil
}

// GetBooking returns a booking by ID
func (s *MemoryStore) GetBooking(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bookings[id].Clone(), nil
}

// GetBookingByReference returns a booking by reference
func (s *MemoryStore) GetBookingByReference(ctx context.Context, reference string) (*models.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.refs[reference]
	if !ok {
		return nil, nil
	}
	return s.bookings[id].Clone(), nil
}

// UpdateBooking performs the status/version compare-and-set
func (s *MemoryStore) UpdateBooking(ctx context.Context, b *models.Booking, expectedStatus models.BookingStatus, expectedVersion int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.bookings[b.ID]
	if !ok || current.Status != expectedStatus || current.Version != expectedVersion {
		return false, nil
	}
	b.Version = expectedVersion + 1
	s.bookings[b.ID] = b.Clone()
	return true, nil
}

// ListExpiredPendingBookings returns pending bookings whose hold lapsed, oldest first
func (s *MemoryStore) ListExpiredPendingBookings(ctx context.Context, now time.Time, limit int) ([]*models.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Booking
	for _, b := range s.bookings {
		if b.IsHoldLapsed(now) {
			out = append(out, b.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(*out[j].ExpiresAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ListBookingsBySchedule returns a schedule's bookings in status
func (s *MemoryStore) ListBookingsBySchedule(ctx context.Context, scheduleID string, status models.BookingStatus) ([]*models.Booking, error) {
	return s.filterBookings(func(b *models.Booking) bool {
		return b.ScheduleID == scheduleID && b.Status == status
	}), nil
}

// ListBookingsBySession returns the bookings created by a session
func (s *MemoryStore) ListBookingsBySession(ctx context.Context, owner string) ([]*models.Booking, error) {
	return s.filterBookings(func(b *models.Booking) bool {
		return b.OwnerSessionID == owner
	}), nil
}

func (s *MemoryStore) filterBookings(keep func(*models.Booking) bool) []*models.Booking {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Booking
	for _, b := range s.bookings {
		if keep(b) {
			out = append(out, b.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// ============================================================================
// PAYMENT SESSIONS
// ============================================================================

// CreateSession inserts a session, enforcing one active session per booking
func (s *MemoryStore) CreateSession(ctx context.Context, ps *models.PaymentSession, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.sessions {
		if existing.BookingID != ps.BookingID || existing.Status != models.PaymentSessionActive {
			continue
		}
		if existing.IsActiveAt(now) {
			return models.ErrActiveSessionExists
		}
		existing.Status = models.PaymentSessionExpired
		existing.UpdatedAt = now
	}
	s.sessions[ps.ID] = ps.Clone()
	return nil
}

// GetSession returns a session by ID
func (s *MemoryStore) GetSession(ctx context.Context, id uuid.UUID) (*models.PaymentSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessions[id].Clone(), nil
}

// GetActiveSessionForBooking returns the booking's active session
func (s *MemoryStore) GetActiveSessionForBooking(ctx context.Context, bookingID uuid.UUID) (*models.PaymentSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ps := range s.sessions {
		if ps.BookingID == bookingID && ps.Status == models.PaymentSessionActive {
			return ps.Clone(), nil
		}
	}
	return nil, nil
}

// UpdateSession writes ps if its stored status still equals expectedStatus
func (s *MemoryStore) UpdateSession(ctx context.Context, ps *models.PaymentSession, expectedStatus models.PaymentSessionStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.sessions[ps.ID]
	if !ok || current.Status != expectedStatus {
		return false, nil
	}
	s.sessions[ps.ID] = ps.Clone()
	return true, nil
}

// ExpireSessions marks lapsed active sessions expired
func (s *MemoryStore) ExpireSessions(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	expired := 0
	for _, ps := range s.sessions {
		if ps.Status == models.PaymentSessionActive && !now.Before(ps.ExpiresAt) {
			ps.Status = models.PaymentSessionExpired
			ps.UpdatedAt = now
			expired++
		}
	}
	return expired, nil
}

// ============================================================================
// SCHEDULES
// ============================================================================

// CreateSchedule inserts or replaces a schedule
func (s *MemoryStore) CreateSchedule(ctx context.Context, sc *models.Schedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *sc
	s.schedules[sc.ID] = &c
	return nil
}

// GetSchedule returns a schedule by ID
func (s *MemoryStore) GetSchedule(ctx context.Context, id string) (*models.Schedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sc, ok := s.schedules[id]
	if !ok {
		return nil, nil
	}
	c := *sc
	return &c, nil
}

// AdjustAvailableSeats adds delta to the schedule's available seats
func (s *MemoryStore) AdjustAvailableSeats(ctx context.Context, id string, delta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc, ok := s.schedules[id]
	if !ok {
		return models.NotFoundError{Resource: "schedule", ID: id}
	}
	if delta < 0 {
		sc.ReserveSeats(-delta)
	} else {
		sc.ReleaseSeats(delta)
	}
	return nil
}

// UpdateScheduleStatus moves a schedule from one status to another
func (s *MemoryStore) UpdateScheduleStatus(ctx context.Context, id string, from, to models.ScheduleStatus) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc, ok := s.schedules[id]
	if !ok || sc.Status != from {
		return false, nil
	}
	sc.Status = to
	return true, nil
}

// ListSchedulesDeparted returns scheduled trips whose departure has passed
func (s *MemoryStore) ListSchedulesDeparted(ctx context.Context, now time.Time) ([]*models.Schedule, error) {
	return s.filterSchedules(func(sc *models.Schedule) bool {
		return sc.Status == models.ScheduleStatusScheduled && sc.IsPastDeparture(now)
	}), nil
}

// ListSchedulesArrived returns in-progress trips whose arrival has passed
func (s *MemoryStore) ListSchedulesArrived(ctx context.Context, now time.Time) ([]*models.Schedule, error) {
	return s.filterSchedules(func(sc *models.Schedule) bool {
		return sc.Status == models.ScheduleStatusInProgress && sc.IsPastArrival(now)
	}), nil
}

func (s *MemoryStore) filterSchedules(keep func(*models.Schedule) bool) []*models.Schedule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Schedule
	for _, sc := range s.schedules {
		if keep(sc) {
			c := *sc
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DepartureAt.Before(out[j].DepartureAt) })
	return out
}
