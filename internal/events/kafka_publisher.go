package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/seat-booking-core/internal/config"
	"github.com/smarttransit/seat-booking-core/internal/models"
)

// MessageWriter is the part of *kafka.Writer the publisher uses
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher streams booking lifecycle events to a Kafka topic. Events
// are keyed by booking ID so all events of one booking stay ordered on one
// partition.
type KafkaPublisher struct {
	writer  MessageWriter
	timeout time.Duration
	logger  *logrus.Logger
}

// NewKafkaPublisher creates a publisher writing to cfg.Topic
func NewKafkaPublisher(cfg config.KafkaConfig, logger *logrus.Logger) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
	}
	return NewPublisherWithWriter(writer, logger)
}

// NewPublisherWithWriter creates a publisher over an existing writer
func NewPublisherWithWriter(w MessageWriter, logger *logrus.Logger) *KafkaPublisher {
	return &KafkaPublisher{writer: w, timeout: 5 * time.Second, logger: logger}
}

// PublishBookingEvent writes one event. The booking transition has already
// committed, so a failure here is reported but never undoes it.
func (p *KafkaPublisher) PublishBookingEvent(ctx context.Context, event models.BookingEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode booking event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.BookingID.String()),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
		},
		Time: event.OccurredAt,
	})
	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", event.Type, err)
	}

	p.logger.WithFields(logrus.Fields{
		"event":      event.Type,
		"booking_id": event.BookingID,
	}).Debug("Booking event published")
	return nil
}

// Close flushes pending messages and closes the writer
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
