package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"

	"github.com/shopspring/decimal"
)

// PricingBreakdown is the fare quote for a booking. All amounts are in
// minor currency units and TotalPay = BusFare + ConvenienceFee + BankCharge.
type PricingBreakdown struct {
	PricePerSeat   decimal.Decimal `json:"price_per_seat"`
	NumSeats       int             `json:"num_seats"`
	BaseFare       decimal.Decimal `json:"base_fare"`
	Discount       decimal.Decimal `json:"discount"`
	BusFare        decimal.Decimal `json:"bus_fare"`
	ConvenienceFee decimal.Decimal `json:"convenience_fee"`
	BankCharge     decimal.Decimal `json:"bank_charge"`
	TotalPay       decimal.Decimal `json:"total_pay"`
	Currency       string          `json:"currency"`
}

// IsBalanced reports whether the total equals the sum of its parts
func (p PricingBreakdown) IsBalanced() bool {
	return p.TotalPay.Equal(p.BusFare.Add(p.ConvenienceFee).Add(p.BankCharge))
}

// Value implements driver.Valuer for JSONB
func (p PricingBreakdown) Value() (driver.Value, error) {
	return json.Marshal(p)
}

// Scan implements sql.Scanner for JSONB
func (p *PricingBreakdown) Scan(value interface{}) error {
	if value == nil {
		return nil
	}
	b, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}
	return json.Unmarshal(b, p)
}
