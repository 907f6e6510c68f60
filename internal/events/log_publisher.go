package events

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/smarttransit/seat-booking-core/internal/models"
)

// LogPublisher writes booking events to the application log. Used when no
// broker is configured.
type LogPublisher struct {
	logger *logrus.Logger
}

// NewLogPublisher creates a new LogPublisher
func NewLogPublisher(logger *logrus.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

// PublishBookingEvent logs the event
func (p *LogPublisher) PublishBookingEvent(_ context.Context, event models.BookingEvent) error {
	p.logger.WithFields(logrus.Fields{
		"event":       event.Type,
		"booking_id":  event.BookingID,
		"reference":   event.BookingReference,
		"schedule_id": event.ScheduleID,
		"seats":       event.SeatNumbers,
		"status":      event.Status,
	}).Info("Booking event")
	return nil
}
