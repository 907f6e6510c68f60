package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"

	"github.com/shopspring/decimal"
)

// RefundQuote is the outcome of applying the refund tiers to a fare.
// RefundAmount = round(TotalPay * RefundRate), CancellationFee = TotalPay - RefundAmount.
type RefundQuote struct {
	TotalPay             decimal.Decimal `json:"total_pay"`
	HoursBeforeDeparture float64         `json:"hours_before_departure"`
	RefundRate           decimal.Decimal `json:"refund_rate"`
	CancellationFee      decimal.Decimal `json:"cancellation_fee"`
	RefundAmount         decimal.Decimal `json:"refund_amount"`
}

// Value implements driver.Valuer for JSONB
func (q RefundQuote) Value() (driver.Value, error) {
	return json.Marshal(q)
}

// Scan implements sql.Scanner for JSONB
func (q *RefundQuote) Scan(value interface{}) error {
	if value == nil {
		return nil
	}
	b, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}
	return json.Unmarshal(b, q)
}
