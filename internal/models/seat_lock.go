package models

import (
	"sort"
	"time"
)

// SeatLock is an exclusive claim on one seat of one schedule. A nil
// ExpiresAt marks a permanent assignment made when a booking is confirmed.
type SeatLock struct {
	ScheduleID     string     `json:"schedule_id" db:"schedule_id"`
	SeatNumber     int        `json:"seat_number" db:"seat_number"`
	OwnerSessionID string     `json:"owner_session_id" db:"owner_session_id"`
	AcquiredAt     time.Time  `json:"acquired_at" db:"acquired_at"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty" db:"expires_at"`
}

// IsPermanent reports whether the lock has no TTL
func (l *SeatLock) IsPermanent() bool {
	return l.ExpiresAt == nil
}

// IsLive reports whether the lock still counts at now. Expired locks are
// treated as absent.
func (l *SeatLock) IsLive(now time.Time) bool {
	return l.ExpiresAt == nil || now.Before(*l.ExpiresAt)
}

// OwnedBy reports whether owner holds the lock
func (l *SeatLock) OwnedBy(owner string) bool {
	return l.OwnerSessionID == owner
}

// NormalizeSeats returns the seat numbers sorted ascending with duplicates
// removed. Multi-seat operations always walk seats in this order.
func NormalizeSeats(seats []int) []int {
	out := append([]int(nil), seats...)
	sort.Ints(out)
	n := 0
	for i, s := range out {
		if i > 0 && s == out[n-1] {
			continue
		}
		out[n] = s
		n++
	}
	return out[:n]
}

// HasDuplicateSeats reports whether seats lists a seat more than once
func HasDuplicateSeats(seats []int) bool {
	return len(NormalizeSeats(seats)) != len(seats)
}
