package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/seat-booking-core/internal/clock"
	"github.com/smarttransit/seat-booking-core/internal/models"
	"github.com/smarttransit/seat-booking-core/internal/monitoring"
	"github.com/smarttransit/seat-booking-core/pkg/payment"
	"github.com/smarttransit/seat-booking-core/pkg/validator"
)

// PaymentService brokers the pay-or-cancel protocol for pending bookings
type PaymentService struct {
	sessions       PaymentSessionStore
	bookings       *BookingService
	gateway        payment.Gateway
	cards          *validator.CardValidator
	clock          clock.Clock
	sessionTTL     time.Duration
	gatewayTimeout time.Duration
	currency       string
	inflight       sync.Map // payment ID -> struct{}
	metrics        *monitoring.Metrics
	logger         *logrus.Logger
}

// PaymentServiceConfig holds the payment session timings
type PaymentServiceConfig struct {
	SessionTTL     time.Duration
	GatewayTimeout time.Duration
	Currency       string
}

// NewPaymentService creates a new payment service
func NewPaymentService(
	sessions PaymentSessionStore,
	bookings *BookingService,
	gateway payment.Gateway,
	clk clock.Clock,
	cfg PaymentServiceConfig,
	metrics *monitoring.Metrics,
	logger *logrus.Logger,
) *PaymentService {
	return &PaymentService{
		sessions:       sessions,
		bookings:       bookings,
		gateway:        gateway,
		cards:          validator.NewCardValidator(),
		clock:          clk,
		sessionTTL:     cfg.SessionTTL,
		gatewayTimeout: cfg.GatewayTimeout,
		currency:       cfg.Currency,
		metrics:        metrics,
		logger:         logger,
	}
}

// CreateSession opens a payment session for a pending booking. The session
// never outlives the booking's hold.
func (s *PaymentService) CreateSession(ctx context.Context, bookingID uuid.UUID) (*models.PaymentSession, error) {
	booking, err := s.bookings.Get(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.Status != models.BookingStatusPending {
		return nil, models.InvalidTransitionError{Resource: "payment session", Msg: fmt.Sprintf("booking is %s, not pending", booking.Status)}
	}
	now := s.clock.Now()
	if booking.IsHoldLapsed(now) {
		return nil, models.ExpiredError{Resource: "booking", ID: booking.ID.String(), ExpiredAt: *booking.ExpiresAt}
	}

	expiresAt := now.Add(s.sessionTTL)
	if booking.ExpiresAt != nil && expiresAt.After(*booking.ExpiresAt) {
		expiresAt = *booking.ExpiresAt
	}

	session := &models.PaymentSession{
		ID:        uuid.New(),
		BookingID: booking.ID,
		Amount:    booking.Pricing.TotalPay,
		Currency:  booking.Pricing.Currency,
		Status:    models.PaymentSessionActive,
		ExpiresAt: expiresAt,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if session.Currency == "" {
		session.Currency = s.currency
	}

	if err := s.sessions.CreateSession(ctx, session, now); err != nil {
		if errors.Is(err, models.ErrActiveSessionExists) {
			return nil, models.InvalidTransitionError{Resource: "payment session", Msg: err.Error()}
		}
		return nil, fmt.Errorf("failed to create payment session: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"payment_id": session.ID,
		"booking_id": booking.ID,
		"amount":     session.Amount.String(),
		"expires_at": session.ExpiresAt,
	}).Info("Payment session created")

	return session, nil
}

// FetchSession returns a session. Lapsed or expired sessions fail with ExpiredError.
func (s *PaymentService) FetchSession(ctx context.Context, paymentID uuid.UUID) (*models.PaymentSession, error) {
	session, err := s.sessions.GetSession(ctx, paymentID)
	if err != nil {
		return nil, fmt.Errorf("failed to get payment session: %w", err)
	}
	if session == nil {
		return nil, models.NotFoundError{Resource: "payment session", ID: paymentID.String()}
	}
	if session.Status == models.PaymentSessionExpired ||
		(session.Status == models.PaymentSessionActive && !session.IsActiveAt(s.clock.Now())) {
		return nil, models.ExpiredError{Resource: "payment session", ID: paymentID.String(), ExpiredAt: session.ExpiresAt}
	}
	return session, nil
}

// CancelSession cancels an active session and the booking behind it. Nothing
// was captured, so no refund applies.
func (s *PaymentService) CancelSession(ctx context.Context, paymentID uuid.UUID) (*models.PaymentSession, error) {
	session, err := s.activeSession(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	next := session.Clone()
	next.Status = models.PaymentSessionCancelled
	next.UpdatedAt = s.clock.Now()
	ok, err := s.sessions.UpdateSession(ctx, next, models.PaymentSessionActive)
	if err != nil {
		return nil, fmt.Errorf("failed to cancel payment session: %w", err)
	}
	if !ok {
		return nil, models.ConflictError{Resource: "payment session", Msg: "session changed concurrently"}
	}

	if _, _, err := s.bookings.Cancel(ctx, session.BookingID, "payment session cancelled"); err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"payment_id": paymentID,
			"booking_id": session.BookingID,
		}).Warn("Booking not cancelled with its payment session")
	}

	s.logger.WithField("payment_id", paymentID).Info("Payment session cancelled")
	return next, nil
}

// ProcessPayment validates the card, settles with the gateway and confirms
// the booking on approval. A decline or a gateway timeout leaves both the
// session and the booking as they were, so the hold can be retried until it
// lapses.
func (s *PaymentService) ProcessPayment(ctx context.Context, paymentID uuid.UUID, card models.CardDetails) (*models.PaymentResult, error) {
	if _, busy := s.inflight.LoadOrStore(paymentID, struct{}{}); busy {
		return nil, models.ConflictError{Resource: "payment session", Msg: "a payment is already in progress"}
	}
	defer s.inflight.Delete(paymentID)

	session, err := s.activeSession(ctx, paymentID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	number, err := s.cards.Validate(card.Number, card.CVV, card.Brand, card.ExpiryMonth, card.ExpiryYear, now)
	if err != nil {
		s.metrics.PaymentOutcome("invalid")
		return nil, models.ValidationError{Field: "card", Err: err}
	}
	brand, _ := s.cards.NormalizeBrand(card.Brand)

	booking, err := s.bookings.Get(ctx, session.BookingID)
	if err != nil {
		return nil, err
	}
	if booking.Status != models.BookingStatusPending {
		return nil, models.InvalidTransitionError{Resource: "payment session", Msg: fmt.Sprintf("booking is %s, not pending", booking.Status)}
	}
	if booking.IsHoldLapsed(now) {
		return nil, models.ExpiredError{Resource: "booking", ID: booking.ID.String(), ExpiredAt: *booking.ExpiresAt}
	}
	// nothing is charged unless the seats can still be assigned
	if err := s.bookings.VerifySeatsHeld(ctx, booking); err != nil {
		s.metrics.PaymentOutcome("seats_lost")
		return nil, err
	}

	result, err := s.charge(ctx, payment.ChargeRequest{
		PaymentID:   session.ID.String(),
		Amount:      session.Amount.String(),
		Currency:    session.Currency,
		CardNumber:  number,
		CardBrand:   brand,
		Description: "Booking " + booking.BookingReference,
	})
	if err != nil {
		outcome := "error"
		if errors.Is(err, models.ErrPaymentTimeout) {
			outcome = "timeout"
		}
		s.metrics.PaymentOutcome(outcome)
		s.logger.WithError(err).WithField("payment_id", paymentID).Warn("Payment outcome unknown, booking left pending")
		return nil, err
	}

	attempt := session.Clone()
	attempt.Attempts++
	last4 := validator.Last4(number)
	fingerprint := payment.Fingerprint(number)
	attempt.CardLast4 = &last4
	attempt.CardFingerprint = &fingerprint
	attempt.UpdatedAt = s.clock.Now()

	if !result.Approved {
		reason := result.DeclineReason
		attempt.LastError = &reason
		if _, err := s.sessions.UpdateSession(ctx, attempt, models.PaymentSessionActive); err != nil {
			s.logger.WithError(err).WithField("payment_id", paymentID).Warn("Failed to record declined attempt")
		}
		s.metrics.PaymentOutcome("declined")
		s.logger.WithFields(logrus.Fields{
			"payment_id": paymentID,
			"booking_id": booking.ID,
			"reason":     reason,
		}).Warn("Payment declined")
		return nil, models.GatewayDeclinedError{PaymentID: paymentID.String(), Reason: reason}
	}

	confirmed, err := s.bookings.Confirm(ctx, booking.ID, result.TransactionID)
	if err != nil {
		s.metrics.PaymentOutcome("captured_unconfirmed")
		s.logger.WithError(err).WithFields(logrus.Fields{
			"payment_id":  paymentID,
			"booking_id":  booking.ID,
			"transaction": result.TransactionID,
			"amount":      session.Amount.String(),
		}).Error("Payment captured but booking confirmation failed, refund required")
		return nil, err
	}

	attempt.Status = models.PaymentSessionCompleted
	attempt.LastError = nil
	attempt.GatewayRef = &result.TransactionID
	ok, err := s.sessions.UpdateSession(ctx, attempt, models.PaymentSessionActive)
	if err != nil || !ok {
		s.logger.WithError(err).WithField("payment_id", paymentID).Warn("Booking confirmed but payment session not marked completed")
	}

	s.metrics.PaymentOutcome("approved")
	s.logger.WithFields(logrus.Fields{
		"payment_id":  paymentID,
		"booking_id":  confirmed.ID,
		"reference":   confirmed.BookingReference,
		"transaction": result.TransactionID,
	}).Info("Payment approved")

	return &models.PaymentResult{
		PaymentID:        paymentID,
		BookingReference: confirmed.BookingReference,
		GatewayReference: result.TransactionID,
		Booking:          confirmed,
	}, nil
}

// charge calls the gateway with a bounded timeout. The call runs in its own
// goroutine so a gateway that ignores ctx still cannot block the caller.
func (s *PaymentService) charge(ctx context.Context, req payment.ChargeRequest) (payment.ChargeResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
	defer cancel()

	type outcome struct {
		res payment.ChargeResult
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := s.gateway.Charge(ctx, req)
		done <- outcome{res, err}
	}()

	select {
	case o := <-done:
		if o.err != nil {
			if errors.Is(o.err, context.DeadlineExceeded) {
				return payment.ChargeResult{}, models.ErrPaymentTimeout
			}
			return payment.ChargeResult{}, fmt.Errorf("payment gateway %s: %w", s.gateway.GetName(), o.err)
		}
		return o.res, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return payment.ChargeResult{}, models.ErrPaymentTimeout
		}
		return payment.ChargeResult{}, ctx.Err()
	}
}

func (s *PaymentService) activeSession(ctx context.Context, paymentID uuid.UUID) (*models.PaymentSession, error) {
	session, err := s.FetchSession(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if session.Status != models.PaymentSessionActive {
		return nil, models.InvalidTransitionError{Resource: "payment session", Msg: fmt.Sprintf("session is %s", session.Status)}
	}
	return session, nil
}
