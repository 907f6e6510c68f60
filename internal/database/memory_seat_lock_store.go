package database

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/smarttransit/seat-booking-core/internal/models"
)

// MemorySeatLockStore keeps seat locks in process. Each schedule has its own
// mutex, so acquisitions on different schedules never contend. Only valid
// for a single engine instance.
type MemorySeatLockStore struct {
	mu        sync.Mutex
	schedules map[string]*scheduleLocks
}

type scheduleLocks struct {
	mu    sync.Mutex
	seats map[int]models.SeatLock
}

// NewMemorySeatLockStore creates an empty store
func NewMemorySeatLockStore() *MemorySeatLockStore {
	return &MemorySeatLockStore{schedules: make(map[string]*scheduleLocks)}
}

func (s *MemorySeatLockStore) schedule(id string) *scheduleLocks {
	s.mu.Lock()
	defer s.mu.Unlock()
	sl, ok := s.schedules[id]
	if !ok {
		sl = &scheduleLocks{seats: make(map[int]models.SeatLock)}
		s.schedules[id] = sl
	}
	return sl
}

func (s *MemorySeatLockStore) all() []*scheduleLocks {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*scheduleLocks, 0, len(s.schedules))
	for _, sl := range s.schedules {
		out = append(out, sl)
	}
	return out
}

// Acquire grants every seat to owner or none of them. Permanently assigned
// seats conflict even for their owner.
func (s *MemorySeatLockStore) Acquire(ctx context.Context, scheduleID string, seats []int, owner string, now, expiresAt time.Time) ([]models.SeatLock, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	seats = models.NormalizeSeats(seats)

	sl := s.schedule(scheduleID)
	sl.mu.Lock()
	defer sl.mu.Unlock()

	var conflicts []int
	for _, seat := range seats {
		if lock, ok := sl.seats[seat]; ok && lock.IsLive(now) && (!lock.OwnedBy(owner) || lock.IsPermanent()) {
			conflicts = append(conflicts, seat)
		}
	}
	if len(conflicts) > 0 {
		return nil, models.ConflictError{Resource: "seat", Seats: conflicts}
	}

	granted := make([]models.SeatLock, 0, len(seats))
	for _, seat := range seats {
		lock, ok := sl.seats[seat]
		if ok && lock.IsLive(now) {
			// refresh, never shorten
			if lock.ExpiresAt.Before(expiresAt) {
				exp := expiresAt
				lock.ExpiresAt = &exp
			}
		} else {
			exp := expiresAt
			lock = models.SeatLock{
				ScheduleID:     scheduleID,
				SeatNumber:     seat,
				OwnerSessionID: owner,
				AcquiredAt:     now,
				ExpiresAt:      &exp,
			}
		}
		sl.seats[seat] = lock
		granted = append(granted, lock)
	}
	return granted, nil
}

// Release deletes the owner's temporary locks on seats. Permanent
// assignments stay until their booking frees them.
func (s *MemorySeatLockStore) Release(ctx context.Context, scheduleID string, seats []int, owner string) (int, error) {
	return s.release(scheduleID, seats, owner, false), nil
}

// ReleaseAssigned deletes the owner's locks on seats, permanent ones included
func (s *MemorySeatLockStore) ReleaseAssigned(ctx context.Context, scheduleID string, seats []int, owner string) (int, error) {
	return s.release(scheduleID, seats, owner, true), nil
}

func (s *MemorySeatLockStore) release(scheduleID string, seats []int, owner string, permanent bool) int {
	sl := s.schedule(scheduleID)
	sl.mu.Lock()
	defer sl.mu.Unlock()

	released := 0
	for _, seat := range models.NormalizeSeats(seats) {
		lock, ok := sl.seats[seat]
		if !ok || !lock.OwnedBy(owner) || (lock.IsPermanent() && !permanent) {
			continue
		}
		delete(sl.seats, seat)
		released++
	}
	return released
}

// RenewOwner extends every live, non-permanent lock of owner. A lock already
// running past expiresAt keeps its expiry.
func (s *MemorySeatLockStore) RenewOwner(ctx context.Context, owner string, now, expiresAt time.Time) (int, error) {
	renewed := 0
	for _, sl := range s.all() {
		sl.mu.Lock()
		for seat, lock := range sl.seats {
			if !lock.OwnedBy(owner) || lock.IsPermanent() || !lock.IsLive(now) {
				continue
			}
			if lock.ExpiresAt.Before(expiresAt) {
				exp := expiresAt
				lock.ExpiresAt = &exp
				sl.seats[seat] = lock
			}
			renewed++
		}
		sl.mu.Unlock()
	}
	return renewed, nil
}

// RenewSeats extends the owner's locks on seats, all or nothing
func (s *MemorySeatLockStore) RenewSeats(ctx context.Context, scheduleID string, seats []int, owner string, now, expiresAt time.Time) error {
	return s.updateOwned(scheduleID, seats, owner, now, func(l *models.SeatLock) {
		exp := expiresAt
		l.ExpiresAt = &exp
	})
}

// MakePermanent clears the expiry of the owner's locks on seats, all or nothing
func (s *MemorySeatLockStore) MakePermanent(ctx context.Context, scheduleID string, seats []int, owner string, now time.Time) error {
	return s.updateOwned(scheduleID, seats, owner, now, func(l *models.SeatLock) {
		l.ExpiresAt = nil
	})
}

func (s *MemorySeatLockStore) updateOwned(scheduleID string, seats []int, owner string, now time.Time, apply func(*models.SeatLock)) error {
	seats = models.NormalizeSeats(seats)
	sl := s.schedule(scheduleID)
	sl.mu.Lock()
	defer sl.mu.Unlock()

	var missing []int
	for _, seat := range seats {
		lock, ok := sl.seats[seat]
		if !ok || !lock.IsLive(now) || !lock.OwnedBy(owner) || lock.IsPermanent() {
			missing = append(missing, seat)
		}
	}
	if len(missing) > 0 {
		return models.ConflictError{Resource: "seat lock", Seats: missing, Err: models.ErrSeatsNotLocked}
	}

	for _, seat := range seats {
		lock := sl.seats[seat]
		apply(&lock)
		sl.seats[seat] = lock
	}
	return nil
}

// LiveLocks lists live locks on a schedule ordered by seat
func (s *MemorySeatLockStore) LiveLocks(ctx context.Context, scheduleID string, now time.Time) ([]models.SeatLock, error) {
	sl := s.schedule(scheduleID)
	sl.mu.Lock()
	defer sl.mu.Unlock()

	locks := make([]models.SeatLock, 0, len(sl.seats))
	for _, lock := range sl.seats {
		if lock.IsLive(now) {
			locks = append(locks, lock)
		}
	}
	sort.Slice(locks, func(i, j int) bool { return locks[i].SeatNumber < locks[j].SeatNumber })
	return locks, nil
}

// Sweep deletes expired locks
func (s *MemorySeatLockStore) Sweep(ctx context.Context, now time.Time) (int, error) {
	removed := 0
	for _, sl := range s.all() {
		sl.mu.Lock()
		for seat, lock := range sl.seats {
			if !lock.IsLive(now) {
				delete(sl.seats, seat)
				removed++
			}
		}
		sl.mu.Unlock()
	}
	return removed, nil
}
