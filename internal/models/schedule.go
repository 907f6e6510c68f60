package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ScheduleStatus represents the status of a scheduled trip
type ScheduleStatus string

const (
	ScheduleStatusScheduled  ScheduleStatus = "scheduled"
	ScheduleStatusInProgress ScheduleStatus = "in_progress"
	ScheduleStatusCompleted  ScheduleStatus = "completed"
	ScheduleStatusCancelled  ScheduleStatus = "cancelled"
)

// Schedule is a single departure of a route with a fixed seat count
type Schedule struct {
	ID             string          `json:"id" db:"id"`
	RouteName      string          `json:"route_name" db:"route_name"`
	DepartureAt    time.Time       `json:"departure_at" db:"departure_at"`
	ArrivalAt      time.Time       `json:"arrival_at" db:"arrival_at"`
	TotalSeats     int             `json:"total_seats" db:"total_seats"`
	AvailableSeats int             `json:"available_seats" db:"available_seats"`
	FarePerSeat    decimal.Decimal `json:"fare_per_seat" db:"fare_per_seat"`
	Status         ScheduleStatus  `json:"status" db:"status"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at" db:"updated_at"`
}

// IsPastDeparture checks if the departure time has passed
func (s *Schedule) IsPastDeparture(now time.Time) bool {
	return !now.Before(s.DepartureAt)
}

// IsPastArrival checks if the arrival time has passed
func (s *Schedule) IsPastArrival(now time.Time) bool {
	return !now.Before(s.ArrivalAt)
}

// CanAcceptBooking checks if the schedule can take new reservations
func (s *Schedule) CanAcceptBooking(now time.Time) bool {
	return s.Status == ScheduleStatusScheduled && !s.IsPastDeparture(now)
}

// HasSeat checks if seat is within the schedule's seat range
func (s *Schedule) HasSeat(seat int) bool {
	return seat >= 1 && seat <= s.TotalSeats
}

// ReserveSeats takes seats out of the available pool
func (s *Schedule) ReserveSeats(n int) {
	s.AvailableSeats -= n
	if s.AvailableSeats < 0 {
		s.AvailableSeats = 0
	}
}

// ReleaseSeats returns seats from a cancelled booking to the pool
func (s *Schedule) ReleaseSeats(n int) {
	s.AvailableSeats += n
	if s.AvailableSeats > s.TotalSeats {
		s.AvailableSeats = s.TotalSeats
	}
}

// HoursBeforeDeparture returns the (possibly negative) hours until departure
func (s *Schedule) HoursBeforeDeparture(now time.Time) float64 {
	return s.DepartureAt.Sub(now).Hours()
}

// CreateScheduleRequest represents the request to register a bookable schedule
type CreateScheduleRequest struct {
	ID          string          `json:"id" binding:"required"`
	RouteName   string          `json:"route_name" binding:"required"`
	DepartureAt time.Time       `json:"departure_at" binding:"required"`
	ArrivalAt   time.Time       `json:"arrival_at" binding:"required"`
	TotalSeats  int             `json:"total_seats" binding:"required"`
	FarePerSeat decimal.Decimal `json:"fare_per_seat"`
}

// Validate validates the create schedule request
func (r *CreateScheduleRequest) Validate(now time.Time) error {
	if len(r.ID) > 64 {
		return ValidationError{Field: "id", Msg: "must be at most 64 characters"}
	}
	if r.TotalSeats < 1 || r.TotalSeats > 100 {
		return ValidationError{Field: "total_seats", Msg: "must be between 1 and 100"}
	}
	if !r.ArrivalAt.After(r.DepartureAt) {
		return ValidationError{Field: "arrival_at", Msg: "must be after departure_at"}
	}
	if !r.DepartureAt.After(now) {
		return ValidationError{Field: "departure_at", Msg: "must be in the future"}
	}
	if !r.FarePerSeat.IsPositive() {
		return ValidationError{Field: "fare_per_seat", Msg: "must be positive"}
	}
	return nil
}
