package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentSessionStatus matches DB ENUM payment_session_status
type PaymentSessionStatus string

const (
	PaymentSessionActive    PaymentSessionStatus = "active"
	PaymentSessionCompleted PaymentSessionStatus = "completed"
	PaymentSessionCancelled PaymentSessionStatus = "cancelled"
	PaymentSessionExpired   PaymentSessionStatus = "expired"
)

// PaymentSession is the bounded handshake between a pending booking and the gateway
type PaymentSession struct {
	ID              uuid.UUID            `json:"payment_id" db:"id"`
	BookingID       uuid.UUID            `json:"booking_id" db:"booking_id"`
	Amount          decimal.Decimal      `json:"amount" db:"amount"`
	Currency        string               `json:"currency" db:"currency"`
	Status          PaymentSessionStatus `json:"status" db:"status"`
	CardLast4       *string              `json:"card_last4,omitempty" db:"card_last4"`
	CardFingerprint *string              `json:"-" db:"card_fingerprint"`
	Attempts        int                  `json:"attempts" db:"attempts"`
	LastError       *string              `json:"last_error,omitempty" db:"last_error"`
	GatewayRef      *string              `json:"gateway_reference,omitempty" db:"gateway_reference"`
	ExpiresAt       time.Time            `json:"expires_at" db:"expires_at"`
	CreatedAt       time.Time            `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time            `json:"updated_at" db:"updated_at"`
}

// IsActiveAt reports whether the session is active and not past its expiry
func (s *PaymentSession) IsActiveAt(now time.Time) bool {
	return s.Status == PaymentSessionActive && now.Before(s.ExpiresAt)
}

// Clone returns a deep copy
func (s *PaymentSession) Clone() *PaymentSession {
	if s == nil {
		return nil
	}
	c := *s
	c.CardLast4 = cloneString(s.CardLast4)
	c.CardFingerprint = cloneString(s.CardFingerprint)
	c.LastError = cloneString(s.LastError)
	c.GatewayRef = cloneString(s.GatewayRef)
	return &c
}

// CardDetails is the card input to processPayment. It is never persisted.
type CardDetails struct {
	Number      string `json:"card_number"`
	CVV         string `json:"cvv"`
	ExpiryMonth int    `json:"expiry_month"`
	ExpiryYear  int    `json:"expiry_year"`
	Brand       string `json:"brand"`
	HolderName  string `json:"holder_name,omitempty"`
}

// PaymentResult is the outcome of a settled payment
type PaymentResult struct {
	PaymentID        uuid.UUID `json:"payment_id"`
	BookingReference string    `json:"booking_reference"`
	GatewayReference string    `json:"gateway_reference"`
	Booking          *Booking  `json:"booking"`
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
