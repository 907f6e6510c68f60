package services

import (
	"math"

	"github.com/shopspring/decimal"
	"github.com/smarttransit/seat-booking-core/internal/config"
	"github.com/smarttransit/seat-booking-core/internal/models"
)

// CancellationService applies the refund tiers
type CancellationService struct {
	cfg config.RefundConfig
}

// NewCancellationService creates a new cancellation policy service
func NewCancellationService(cfg config.RefundConfig) *CancellationService {
	return &CancellationService{cfg: cfg}
}

// Quote returns the refund for cancelling a fare of totalPay with
// hoursBeforeDeparture left. Negative hours mean the trip departed.
func (s *CancellationService) Quote(totalPay decimal.Decimal, hoursBeforeDeparture float64) (*models.RefundQuote, error) {
	if math.IsNaN(hoursBeforeDeparture) {
		return nil, models.ValidationError{Field: "hours_before_departure", Msg: "must be a number"}
	}
	if totalPay.IsNegative() {
		return nil, models.ValidationError{Field: "total_pay", Msg: "must not be negative"}
	}
	if hoursBeforeDeparture < 0 {
		return nil, models.NotCancellableError{HoursBeforeDeparture: hoursBeforeDeparture}
	}

	rate := s.RefundRate(hoursBeforeDeparture)
	refund := totalPay.Mul(rate).Round(0)

	return &models.RefundQuote{
		TotalPay:             totalPay,
		HoursBeforeDeparture: hoursBeforeDeparture,
		RefundRate:           rate,
		RefundAmount:         refund,
		CancellationFee:      totalPay.Sub(refund),
	}, nil
}

// RefundRate selects the tier for a non-negative hour count
func (s *CancellationService) RefundRate(hoursBeforeDeparture float64) decimal.Decimal {
	switch {
	case hoursBeforeDeparture >= s.cfg.FullRefundHours:
		return decimal.NewFromInt(1)
	case hoursBeforeDeparture >= s.cfg.PartialRefundHours:
		return s.cfg.PartialRefundRate
	default:
		return decimal.Zero
	}
}
