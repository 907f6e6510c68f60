package services

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/smarttransit/seat-booking-core/internal/clock"
)

// RateLimitStore counts hits per key in fixed windows
type RateLimitStore interface {
	// Hit records one request for key and returns the count in the current
	// window and when that window resets
	Hit(ctx context.Context, key string, window time.Duration, now time.Time) (int, time.Time, error)
}

// RateLimitService throttles seat reservation attempts so a single client
// cannot sweep a schedule's seat map
type RateLimitService struct {
	store  RateLimitStore
	config RateLimitConfig
	clock  clock.Clock
	logger *logrus.Logger
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	MaxSessionRequests int           // Max reserve calls per session
	SessionWindow      time.Duration // Time window for session rate limit
	MaxIPRequests      int           // Max reserve calls per IP
	IPWindow           time.Duration // Time window for IP rate limit
}

// DefaultRateLimitConfig returns the default rate limit configuration
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		MaxSessionRequests: 20,              // 20 requests
		SessionWindow:      1 * time.Minute, // per minute
		MaxIPRequests:      120,             // 120 requests
		IPWindow:           1 * time.Minute, // per minute
	}
}

// NewRateLimitService creates a new rate limit service
func NewRateLimitService(store RateLimitStore, config RateLimitConfig, clk clock.Clock, logger *logrus.Logger) *RateLimitService {
	return &RateLimitService{
		store:  store,
		config: config,
		clock:  clk,
		logger: logger,
	}
}

// RateLimitError represents a rate limit exceeded error
type RateLimitError struct {
	Message    string
	RetryAfter time.Time
	Type       string // "session" or "ip"
}

func (e *RateLimitError) Error() string {
	return e.Message
}

// CheckReservationRateLimit records a reservation attempt and fails once the
// session or the IP is over its limit. Empty identifiers are not limited.
func (s *RateLimitService) CheckReservationRateLimit(ctx context.Context, sessionID, ip string) error {
	now := s.clock.Now()

	if sessionID != "" && s.config.MaxSessionRequests > 0 {
		if err := s.check(ctx, "session", sessionID, s.config.MaxSessionRequests, s.config.SessionWindow, now); err != nil {
			return err
		}
	}
	if ip != "" && s.config.MaxIPRequests > 0 {
		if err := s.check(ctx, "ip", ip, s.config.MaxIPRequests, s.config.IPWindow, now); err != nil {
			return err
		}
	}
	return nil
}

func (s *RateLimitService) check(ctx context.Context, kind, identifier string, limit int, window time.Duration, now time.Time) error {
	count, resetAt, err := s.store.Hit(ctx, "reserve:"+kind+":"+identifier, window, now)
	if err != nil {
		// fail open, the seat locks stay consistent either way
		s.logger.WithError(err).WithField("type", kind).Warn("Rate limit store unavailable")
		return nil
	}
	if count <= limit {
		return nil
	}

	s.logger.WithFields(logrus.Fields{
		"type":        kind,
		"identifier":  identifier,
		"count":       count,
		"retry_after": resetAt,
	}).Warn("Reservation rate limit exceeded")

	return &RateLimitError{
		Message:    fmt.Sprintf("Too many seat reservation attempts. Please try again after %s", resetAt.Format("15:04:05")),
		RetryAfter: resetAt,
		Type:       kind,
	}
}
