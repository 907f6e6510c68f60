package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ============================================================================
// BOOKING STATUS (matches DB ENUM booking_status)
// ============================================================================

// BookingStatus represents the lifecycle state of a booking
type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "pending"   // Seats held, waiting for payment
	BookingStatusConfirmed BookingStatus = "confirmed" // Paid, seats permanently assigned
	BookingStatusCancelled BookingStatus = "cancelled" // Cancelled by customer or session
	BookingStatusCompleted BookingStatus = "completed" // Trip arrived
	BookingStatusExpired   BookingStatus = "expired"   // Hold lapsed without payment
)

var bookingTransitions = map[BookingStatus][]BookingStatus{
	BookingStatusPending:   {BookingStatusConfirmed, BookingStatusCancelled, BookingStatusExpired},
	BookingStatusConfirmed: {BookingStatusCompleted, BookingStatusCancelled},
	BookingStatusCancelled: {},
	BookingStatusCompleted: {},
	BookingStatusExpired:   {},
}

// IsValid returns true for a known status
func (s BookingStatus) IsValid() bool {
	_, ok := bookingTransitions[s]
	return ok
}

// CanTransitionTo reports whether s -> target is an allowed transition
func (s BookingStatus) CanTransitionTo(target BookingStatus) bool {
	for _, t := range bookingTransitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

// IsTerminal returns true if no further transitions are possible
func (s BookingStatus) IsTerminal() bool {
	return len(bookingTransitions[s]) == 0
}

func (s BookingStatus) String() string {
	return string(s)
}

// ParseBookingStatus converts a string to a BookingStatus
func ParseBookingStatus(s string) (BookingStatus, error) {
	status := BookingStatus(s)
	if !status.IsValid() {
		return "", fmt.Errorf("invalid booking status: %s", s)
	}
	return status, nil
}

// ============================================================================
// JSONB PAYLOAD TYPES
// ============================================================================

// Passenger is one traveller on a booking, one per seat
type Passenger struct {
	Name       string  `json:"name"`
	SeatNumber int     `json:"seat_number"`
	Phone      *string `json:"phone,omitempty"`
	Gender     *string `json:"gender,omitempty"`
}

// Passengers is stored as JSONB
type Passengers []Passenger

// Value implements driver.Valuer for JSONB
func (p Passengers) Value() (driver.Value, error) {
	if p == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(p)
}

// Scan implements sql.Scanner for JSONB
func (p *Passengers) Scan(value interface{}) error {
	if value == nil {
		*p = nil
		return nil
	}
	b, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}
	return json.Unmarshal(b, p)
}

// ============================================================================
// BOOKING
// ============================================================================

// Booking is a reservation of one or more seats on a schedule
type Booking struct {
	ID                 uuid.UUID        `json:"id" db:"id"`
	BookingReference   string           `json:"booking_reference" db:"booking_reference"`
	CustomerID         *string          `json:"customer_id,omitempty" db:"customer_id"`
	GuestIdentifier    *string          `json:"guest_identifier,omitempty" db:"guest_identifier"`
	ContactEmail       *string          `json:"contact_email,omitempty" db:"contact_email"`
	ContactPhone       *string          `json:"contact_phone,omitempty" db:"contact_phone"`
	OwnerSessionID     string           `json:"-" db:"owner_session_id"`
	ScheduleID         string           `json:"schedule_id" db:"schedule_id"`
	SeatNumbers        IntArray         `json:"seat_numbers" db:"seat_numbers"`
	Passengers         Passengers       `json:"passengers" db:"passengers"`
	Pricing            PricingBreakdown `json:"pricing" db:"pricing"`
	Status             BookingStatus    `json:"status" db:"status"`
	Version            int              `json:"version" db:"version"`
	ExpiresAt          *time.Time       `json:"expires_at,omitempty" db:"expires_at"`
	PaymentReference   *string          `json:"payment_reference,omitempty" db:"payment_reference"`
	CancellationReason *string          `json:"cancellation_reason,omitempty" db:"cancellation_reason"`
	RefundQuote        *RefundQuote     `json:"refund_quote,omitempty" db:"refund_quote"`
	Device             *DeviceSnapshot  `json:"device,omitempty" db:"device"`
	ConfirmedAt        *time.Time       `json:"confirmed_at,omitempty" db:"confirmed_at"`
	CancelledAt        *time.Time       `json:"cancelled_at,omitempty" db:"cancelled_at"`
	CompletedAt        *time.Time       `json:"completed_at,omitempty" db:"completed_at"`
	CreatedAt          time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time        `json:"updated_at" db:"updated_at"`
}

// IsHoldLapsed reports whether a pending booking is past its expiry
func (b *Booking) IsHoldLapsed(now time.Time) bool {
	return b.Status == BookingStatusPending && b.ExpiresAt != nil && !now.Before(*b.ExpiresAt)
}

// Clone returns a copy that shares no slices or pointers with b
func (b *Booking) Clone() *Booking {
	if b == nil {
		return nil
	}
	c := *b
	c.SeatNumbers = append(IntArray(nil), b.SeatNumbers...)
	c.Passengers = append(Passengers(nil), b.Passengers...)
	c.ExpiresAt = cloneTime(b.ExpiresAt)
	c.ConfirmedAt = cloneTime(b.ConfirmedAt)
	c.CancelledAt = cloneTime(b.CancelledAt)
	c.CompletedAt = cloneTime(b.CompletedAt)
	if b.RefundQuote != nil {
		q := *b.RefundQuote
		c.RefundQuote = &q
	}
	if b.Device != nil {
		d := *b.Device
		c.Device = &d
	}
	return &c
}

// DeviceSnapshot is the client device recorded when a booking was created
type DeviceSnapshot struct {
	DeviceType string `json:"device_type"`
	OS         string `json:"os"`
	Browser    string `json:"browser"`
	Platform   string `json:"platform"`
	IsBot      bool   `json:"is_bot"`
}

// Value implements driver.Valuer for JSONB
func (d DeviceSnapshot) Value() (driver.Value, error) {
	return json.Marshal(d)
}

// Scan implements sql.Scanner for JSONB
func (d *DeviceSnapshot) Scan(value interface{}) error {
	if value == nil {
		return nil
	}
	b, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}
	return json.Unmarshal(b, d)
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
