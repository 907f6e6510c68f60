package models

import (
	"time"

	"github.com/google/uuid"
)

// BookingEventType names a booking lifecycle event
type BookingEventType string

const (
	EventBookingCreated   BookingEventType = "booking.created"
	EventBookingConfirmed BookingEventType = "booking.confirmed"
	EventBookingCancelled BookingEventType = "booking.cancelled"
	EventBookingExpired   BookingEventType = "booking.expired"
	EventBookingCompleted BookingEventType = "booking.completed"
)

// BookingEvent is published after every committed booking transition
type BookingEvent struct {
	Type             BookingEventType `json:"type"`
	BookingID        uuid.UUID        `json:"booking_id"`
	BookingReference string           `json:"booking_reference"`
	ScheduleID       string           `json:"schedule_id"`
	SeatNumbers      []int            `json:"seat_numbers"`
	Status           BookingStatus    `json:"status"`
	TotalPay         string           `json:"total_pay"`
	RefundAmount     string           `json:"refund_amount,omitempty"`
	OccurredAt       time.Time        `json:"occurred_at"`
}

// NewBookingEvent builds an event snapshot of b
func NewBookingEvent(t BookingEventType, b *Booking, at time.Time) BookingEvent {
	ev := BookingEvent{
		Type:             t,
		BookingID:        b.ID,
		BookingReference: b.BookingReference,
		ScheduleID:       b.ScheduleID,
		SeatNumbers:      append([]int(nil), b.SeatNumbers...),
		Status:           b.Status,
		TotalPay:         b.Pricing.TotalPay.String(),
		OccurredAt:       at,
	}
	if b.RefundQuote != nil {
		ev.RefundAmount = b.RefundQuote.RefundAmount.String()
	}
	return ev
}
