package services

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/smarttransit/seat-booking-core/internal/config"
	"github.com/smarttransit/seat-booking-core/internal/models"
)

var maxDiscount = decimal.RequireFromString("0.99")

// PricingService computes deterministic fare breakdowns. It holds no
// mutable state and is safe for concurrent use.
type PricingService struct {
	cfg      config.PricingConfig
	currency string
}

// NewPricingService creates a new pricing service
func NewPricingService(cfg config.PricingConfig, currency string) *PricingService {
	return &PricingService{cfg: cfg, currency: currency}
}

// Calculate prices numSeats seats at pricePerSeat. numSeats is coerced with
// ParseSeatCount and discount is clamped to [0, 0.99].
//
// Every amount is rounded to the configured unit and TotalPay is clamped to
// [MinTotal, MaxTotal]. The clamp difference is absorbed by the fees (and
// the bus fare when shrinking) so TotalPay always equals the sum of parts.
func (s *PricingService) Calculate(pricePerSeat decimal.Decimal, numSeats interface{}, discount decimal.Decimal) (*models.PricingBreakdown, error) {
	if pricePerSeat.IsNegative() {
		return nil, models.ValidationError{Field: "price_per_seat", Msg: "must not be negative"}
	}

	seats := ParseSeatCount(numSeats)
	discount = clampDiscount(discount)
	one := decimal.NewFromInt(1)

	baseFare := pricePerSeat.Mul(decimal.NewFromInt(int64(seats)))
	busFare := baseFare.Mul(one.Sub(discount))

	convenienceFee := s.round(busFare.Mul(s.cfg.ConvenienceFeePercent).Add(s.cfg.ConvenienceFeeFixed))
	bankCharge := s.round(busFare.Mul(s.cfg.BankChargePercent).Add(s.cfg.BankChargeFixed))
	baseFare = s.round(baseFare)
	busFare = s.round(busFare)

	total := busFare.Add(convenienceFee).Add(bankCharge)

	switch {
	case total.LessThan(s.cfg.MinTotal):
		convenienceFee = convenienceFee.Add(s.cfg.MinTotal.Sub(total))
		total = s.cfg.MinTotal
	case total.GreaterThan(s.cfg.MaxTotal):
		excess := total.Sub(s.cfg.MaxTotal)
		bankCharge, excess = shrink(bankCharge, excess)
		convenienceFee, excess = shrink(convenienceFee, excess)
		busFare, _ = shrink(busFare, excess)
		total = s.cfg.MaxTotal
	}

	return &models.PricingBreakdown{
		PricePerSeat:   pricePerSeat,
		NumSeats:       seats,
		BaseFare:       baseFare,
		Discount:       discount,
		BusFare:        busFare,
		ConvenienceFee: convenienceFee,
		BankCharge:     bankCharge,
		TotalPay:       total,
		Currency:       s.currency,
	}, nil
}

// ValidatePrice coerces a raw per-seat price into [MinPrice, MaxPrice].
// Unparseable input becomes MinPrice.
func (s *PricingService) ValidatePrice(raw interface{}) decimal.Decimal {
	price, ok := toDecimal(raw)
	if !ok {
		return s.cfg.MinPrice
	}
	if price.LessThan(s.cfg.MinPrice) {
		return s.cfg.MinPrice
	}
	if price.GreaterThan(s.cfg.MaxPrice) {
		return s.cfg.MaxPrice
	}
	return price
}

// CheckFare rejects a schedule fare outside [MinPrice, MaxPrice]
func (s *PricingService) CheckFare(fare decimal.Decimal) error {
	if fare.LessThan(s.cfg.MinPrice) || fare.GreaterThan(s.cfg.MaxPrice) {
		return models.ValidationError{
			Field: "fare_per_seat",
			Msg:   fmt.Sprintf("must be between %s and %s", s.cfg.MinPrice, s.cfg.MaxPrice),
		}
	}
	return nil
}

// round rounds to the nearest rounding unit, half away from zero
func (s *PricingService) round(d decimal.Decimal) decimal.Decimal {
	return d.Div(s.cfg.RoundingUnit).Round(0).Mul(s.cfg.RoundingUnit)
}

// ParseSeatCount coerces v to a positive seat count. Zero, negative and
// non-numeric input yield 1; fractional input is truncated.
func ParseSeatCount(v interface{}) int {
	var n int64
	switch x := v.(type) {
	case int:
		n = int64(x)
	case int32:
		n = int64(x)
	case int64:
		n = x
	case uint:
		n = int64(x)
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) || x > math.MaxInt32 {
			return 1
		}
		n = int64(x)
	case float32:
		return ParseSeatCount(float64(x))
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 1
		}
		return ParseSeatCount(parsed)
	case json.Number:
		return ParseSeatCount(x.String())
	case decimal.Decimal:
		n = x.IntPart()
	default:
		return 1
	}
	if n <= 0 || n > math.MaxInt32 {
		return 1
	}
	return int(n)
}

func toDecimal(v interface{}) (decimal.Decimal, bool) {
	switch x := v.(type) {
	case decimal.Decimal:
		return x, true
	case int:
		return decimal.NewFromInt(int64(x)), true
	case int64:
		return decimal.NewFromInt(x), true
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return decimal.Zero, false
		}
		return decimal.NewFromFloat(x), true
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(x))
		return d, err == nil
	case json.Number:
		d, err := decimal.NewFromString(x.String())
		return d, err == nil
	default:
		return decimal.Zero, false
	}
}

func clampDiscount(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	if d.GreaterThan(maxDiscount) {
		return maxDiscount
	}
	return d
}

// shrink lowers v by up to amount without going below zero and returns the
// new value and the part of amount still left
func shrink(v, amount decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	if v.GreaterThanOrEqual(amount) {
		return v.Sub(amount), decimal.Zero
	}
	return decimal.Zero, amount.Sub(v)
}
