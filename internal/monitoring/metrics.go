package monitoring

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the engine's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	seatLockAttempts  *prometheus.CounterVec
	seatLockDuration  prometheus.Histogram
	bookingTransition *prometheus.CounterVec
	paymentResults    *prometheus.CounterVec
	sweepExpired      *prometheus.CounterVec
	sweepDuration     prometheus.Histogram
	activeLocks       *prometheus.GaugeVec
	httpRequests      *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
}

// NewMetrics registers the collectors with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		seatLockAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "seat_lock_attempts_total",
				Help: "Seat lock acquisitions by result",
			},
			[]string{"result"},
		),
		seatLockDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "seat_lock_acquire_duration_seconds",
				Help:    "Time spent acquiring a multi-seat lock",
				Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
			},
		),
		bookingTransition: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "booking_transitions_total",
				Help: "Committed booking state transitions",
			},
			[]string{"to"},
		),
		paymentResults: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payment_attempts_total",
				Help: "Payment attempts by outcome",
			},
			[]string{"outcome"},
		),
		sweepExpired: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sweeper_records_total",
				Help: "Records moved by the expiration sweeper",
			},
			[]string{"kind"},
		),
		sweepDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "sweeper_tick_duration_seconds",
				Help:    "Duration of one sweeper tick",
				Buckets: prometheus.DefBuckets,
			},
		),
		activeLocks: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "seat_locks_active",
				Help: "Live seat locks per schedule at the last read",
			},
			[]string{"schedule_id"},
		),
		httpRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "HTTP requests by route and status",
			},
			[]string{"method", "route", "status"},
		),
		httpDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency by route",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}
}

// SeatLockAttempt records an acquire outcome: acquired, conflict or error
func (m *Metrics) SeatLockAttempt(result string, took time.Duration) {
	if m == nil {
		return
	}
	m.seatLockAttempts.WithLabelValues(result).Inc()
	m.seatLockDuration.Observe(took.Seconds())
}

// BookingTransition records a committed transition into status
func (m *Metrics) BookingTransition(status string) {
	if m == nil {
		return
	}
	m.bookingTransition.WithLabelValues(status).Inc()
}

// PaymentOutcome records approved, declined, invalid, timeout or error
func (m *Metrics) PaymentOutcome(outcome string) {
	if m == nil {
		return
	}
	m.paymentResults.WithLabelValues(outcome).Inc()
}

// SweepCount adds n records of kind moved by a sweeper tick
func (m *Metrics) SweepCount(kind string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.sweepExpired.WithLabelValues(kind).Add(float64(n))
}

// SweepDuration records how long a tick took
func (m *Metrics) SweepDuration(took time.Duration) {
	if m == nil {
		return
	}
	m.sweepDuration.Observe(took.Seconds())
}

// ActiveLocks sets the live lock gauge for a schedule
func (m *Metrics) ActiveLocks(scheduleID string, n int) {
	if m == nil {
		return
	}
	m.activeLocks.WithLabelValues(scheduleID).Set(float64(n))
}

// HTTPRequest records one served request. route is the matched pattern, not the raw path.
func (m *Metrics) HTTPRequest(method, route string, status int, took time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(took.Seconds())
}
