package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/seat-booking-core/internal/clock"
	"github.com/smarttransit/seat-booking-core/internal/models"
	"github.com/smarttransit/seat-booking-core/internal/monitoring"
)

// SweepReport summarises one sweeper tick
type SweepReport struct {
	BookingsExpired    int `json:"bookings_expired"`
	LocksRemoved       int `json:"locks_removed"`
	SessionsExpired    int `json:"sessions_expired"`
	SchedulesStarted   int `json:"schedules_started"`
	SchedulesCompleted int `json:"schedules_completed"`
	BookingsCompleted  int `json:"bookings_completed"`
	Errors             int `json:"errors"`
}

// ExpirationService forces timed-out bookings, locks and sessions into their
// terminal states and moves schedules through departure and arrival
type ExpirationService struct {
	bookingStore  BookingStore
	scheduleStore ScheduleStore
	sessionStore  PaymentSessionStore
	bookings      *BookingService
	locks         *SeatLockService
	clock         clock.Clock
	interval      time.Duration
	batchSize     int
	metrics       *monitoring.Metrics
	logger        *logrus.Logger

	mu   sync.Mutex
	cron *cron.Cron
}

// NewExpirationService creates a new sweeper
func NewExpirationService(
	bookingStore BookingStore,
	scheduleStore ScheduleStore,
	sessionStore PaymentSessionStore,
	bookings *BookingService,
	locks *SeatLockService,
	clk clock.Clock,
	interval time.Duration,
	batchSize int,
	metrics *monitoring.Metrics,
	logger *logrus.Logger,
) *ExpirationService {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &ExpirationService{
		bookingStore:  bookingStore,
		scheduleStore: scheduleStore,
		sessionStore:  sessionStore,
		bookings:      bookings,
		locks:         locks,
		clock:         clk,
		interval:      interval,
		batchSize:     batchSize,
		metrics:       metrics,
		logger:        logger,
	}
}

// Start schedules the sweep every interval. A tick still running when the
// next one is due is skipped.
func (s *ExpirationService) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return fmt.Errorf("expiration service already started")
	}

	cronLogger := cron.PrintfLogger(s.logger)
	c := cron.New(
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	)
	c.Schedule(cron.Every(s.interval), cron.FuncJob(s.tick))
	c.Start()
	s.cron = c

	s.logger.WithField("interval", s.interval.String()).Info("Expiration sweeper started")
	return nil
}

// Stop stops scheduling and waits for a running tick to finish
func (s *ExpirationService) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	<-c.Stop().Done()
	s.logger.Info("Expiration sweeper stopped")
}

func (s *ExpirationService) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), s.interval)
	defer cancel()
	s.RunOnce(ctx)
}

// RunOnce runs a single sweep at the clock's current time. Safe to re-run:
// records already in a terminal state are skipped.
func (s *ExpirationService) RunOnce(ctx context.Context) SweepReport {
	start := time.Now()
	now := s.clock.Now()
	var report SweepReport

	s.expireBookings(ctx, now, &report)

	if n, err := s.locks.Sweep(ctx, now); err != nil {
		report.Errors++
		s.logger.WithError(err).Error("Failed to sweep seat locks")
	} else {
		report.LocksRemoved = n
	}

	if n, err := s.sessionStore.ExpireSessions(ctx, now); err != nil {
		report.Errors++
		s.logger.WithError(err).Error("Failed to expire payment sessions")
	} else {
		report.SessionsExpired = n
	}

	s.startDepartedSchedules(ctx, now, &report)
	s.completeArrivedSchedules(ctx, now, &report)

	s.metrics.SweepCount("bookings_expired", report.BookingsExpired)
	s.metrics.SweepCount("locks_removed", report.LocksRemoved)
	s.metrics.SweepCount("sessions_expired", report.SessionsExpired)
	s.metrics.SweepCount("bookings_completed", report.BookingsCompleted)
	s.metrics.SweepDuration(time.Since(start))

	if report != (SweepReport{}) {
		s.logger.WithFields(logrus.Fields{
			"bookings_expired":    report.BookingsExpired,
			"locks_removed":       report.LocksRemoved,
			"sessions_expired":    report.SessionsExpired,
			"schedules_started":   report.SchedulesStarted,
			"schedules_completed": report.SchedulesCompleted,
			"bookings_completed":  report.BookingsCompleted,
			"errors":              report.Errors,
		}).Info("Sweep finished")
	}
	return report
}

// expireBookings expires lapsed pending bookings in batches
func (s *ExpirationService) expireBookings(ctx context.Context, now time.Time, report *SweepReport) {
	for ctx.Err() == nil {
		batch, err := s.bookingStore.ListExpiredPendingBookings(ctx, now, s.batchSize)
		if err != nil {
			report.Errors++
			s.logger.WithError(err).Error("Failed to get expired bookings")
			return
		}

		progressed := 0
		for _, b := range batch {
			_, err := s.bookings.Expire(ctx, b.ID)
			switch {
			case err == nil:
				progressed++
			case models.IsConflict(err) || models.IsInvalidTransition(err):
				// confirmed or cancelled concurrently
				s.logger.WithError(err).WithField("booking_id", b.ID).Debug("Skipped booking expiry")
			default:
				report.Errors++
				s.logger.WithError(err).WithField("booking_id", b.ID).Error("Failed to expire booking")
			}
		}
		report.BookingsExpired += progressed

		if len(batch) < s.batchSize || progressed == 0 {
			return
		}
	}
}

func (s *ExpirationService) startDepartedSchedules(ctx context.Context, now time.Time, report *SweepReport) {
	departed, err := s.scheduleStore.ListSchedulesDeparted(ctx, now)
	if err != nil {
		report.Errors++
		s.logger.WithError(err).Error("Failed to get departed schedules")
		return
	}
	for _, sc := range departed {
		ok, err := s.scheduleStore.UpdateScheduleStatus(ctx, sc.ID, models.ScheduleStatusScheduled, models.ScheduleStatusInProgress)
		if err != nil {
			report.Errors++
			s.logger.WithError(err).WithField("schedule_id", sc.ID).Error("Failed to start schedule")
			continue
		}
		if ok {
			report.SchedulesStarted++
		}
	}
}

// completeArrivedSchedules completes confirmed bookings first and only then
// the schedule, so an interrupted tick is finished by the next one
func (s *ExpirationService) completeArrivedSchedules(ctx context.Context, now time.Time, report *SweepReport) {
	arrived, err := s.scheduleStore.ListSchedulesArrived(ctx, now)
	if err != nil {
		report.Errors++
		s.logger.WithError(err).Error("Failed to get arrived schedules")
		return
	}

	for _, sc := range arrived {
		confirmed, err := s.bookingStore.ListBookingsBySchedule(ctx, sc.ID, models.BookingStatusConfirmed)
		if err != nil {
			report.Errors++
			s.logger.WithError(err).WithField("schedule_id", sc.ID).Error("Failed to get confirmed bookings")
			continue
		}

		failed := false
		for _, b := range confirmed {
			if _, err := s.bookings.Complete(ctx, b.ID); err != nil {
				if models.IsConflict(err) || models.IsInvalidTransition(err) {
					continue
				}
				failed = true
				report.Errors++
				s.logger.WithError(err).WithField("booking_id", b.ID).Error("Failed to complete booking")
				continue
			}
			report.BookingsCompleted++
		}
		if failed {
			continue
		}

		ok, err := s.scheduleStore.UpdateScheduleStatus(ctx, sc.ID, models.ScheduleStatusInProgress, models.ScheduleStatusCompleted)
		if err != nil {
			report.Errors++
			s.logger.WithError(err).WithField("schedule_id", sc.ID).Error("Failed to complete schedule")
			continue
		}
		if ok {
			report.SchedulesCompleted++
		}
	}
}
