package services

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/smarttransit/seat-booking-core/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func TestCalculate_SingleSeat(t *testing.T) {
	svc := NewPricingService(testPricingConfig(), "LKR")

	p, err := svc.Calculate(dec(100000), 1, decimal.Zero)
	require.NoError(t, err)

	assert.True(t, p.BusFare.Equal(dec(100000)), p.BusFare.String())
	assert.True(t, p.ConvenienceFee.Equal(dec(4000)), p.ConvenienceFee.String())
	assert.True(t, p.BankCharge.Equal(dec(2000)), p.BankCharge.String())
	assert.True(t, p.TotalPay.Equal(dec(106000)), p.TotalPay.String())
	assert.True(t, p.IsBalanced())
	assert.True(t, p.TotalPay.Mod(dec(1000)).IsZero())
	assert.Equal(t, "LKR", p.Currency)
}

func TestCalculate_SeatCountCoercion(t *testing.T) {
	svc := NewPricingService(testPricingConfig(), "LKR")
	one, err := svc.Calculate(dec(100000), 1, decimal.Zero)
	require.NoError(t, err)

	for _, n := range []interface{}{0, -1, "bad", nil, math.NaN(), "", []int{2}} {
		p, err := svc.Calculate(dec(100000), n, decimal.Zero)
		require.NoError(t, err)
		assert.Equal(t, 1, p.NumSeats, "%v", n)
		assert.True(t, p.TotalPay.Equal(one.TotalPay), "%v", n)
	}
}

func TestCalculate_MultipleSeatsAndDiscount(t *testing.T) {
	svc := NewPricingService(testPricingConfig(), "LKR")

	p, err := svc.Calculate(dec(50000), "3", decimal.RequireFromString("0.1"))
	require.NoError(t, err)

	assert.Equal(t, 3, p.NumSeats)
	assert.True(t, p.BaseFare.Equal(dec(150000)))
	assert.True(t, p.BusFare.Equal(dec(135000)))
	assert.True(t, p.IsBalanced())

	clamped, err := svc.Calculate(dec(50000), 1, decimal.NewFromInt(5))
	require.NoError(t, err)
	assert.True(t, clamped.Discount.Equal(decimal.RequireFromString("0.99")))

	negative, err := svc.Calculate(dec(50000), 1, decimal.NewFromInt(-1))
	require.NoError(t, err)
	assert.True(t, negative.Discount.IsZero())
}

func TestCalculate_ClampsTotal(t *testing.T) {
	svc := NewPricingService(testPricingConfig(), "LKR")

	t.Run("raised to minimum", func(t *testing.T) {
		p, err := svc.Calculate(dec(1000), 1, decimal.Zero)
		require.NoError(t, err)
		assert.True(t, p.TotalPay.Equal(dec(10000)), p.TotalPay.String())
		assert.True(t, p.IsBalanced())
	})

	t.Run("free fare still charged minimum", func(t *testing.T) {
		p, err := svc.Calculate(decimal.Zero, 1, decimal.Zero)
		require.NoError(t, err)
		assert.True(t, p.TotalPay.Equal(dec(10000)))
		assert.True(t, p.IsBalanced())
	})

	t.Run("capped at maximum", func(t *testing.T) {
		p, err := svc.Calculate(dec(10000000), 10, decimal.Zero)
		require.NoError(t, err)
		assert.True(t, p.TotalPay.Equal(dec(50000000)), p.TotalPay.String())
		assert.True(t, p.IsBalanced())
		assert.False(t, p.BusFare.IsNegative())
		assert.False(t, p.ConvenienceFee.IsNegative())
		assert.False(t, p.BankCharge.IsNegative())
	})
}

func TestCalculate_RejectsNegativePrice(t *testing.T) {
	svc := NewPricingService(testPricingConfig(), "LKR")
	_, err := svc.Calculate(dec(-5), 1, decimal.Zero)
	assert.True(t, models.IsValidation(err))
}

func TestCalculate_EveryFieldRounded(t *testing.T) {
	svc := NewPricingService(testPricingConfig(), "LKR")
	unit := dec(1000)

	for _, price := range []int64{1234, 99999, 100500, 123456, 777777} {
		for seats := 1; seats <= 4; seats++ {
			p, err := svc.Calculate(dec(price), seats, decimal.RequireFromString("0.07"))
			require.NoError(t, err)
			for _, v := range []decimal.Decimal{p.BaseFare, p.BusFare, p.ConvenienceFee, p.BankCharge, p.TotalPay} {
				assert.True(t, v.Mod(unit).IsZero(), "price=%d seats=%d value=%s", price, seats, v)
			}
			assert.True(t, p.IsBalanced())
		}
	}
}

func TestParseSeatCount(t *testing.T) {
	tests := []struct {
		in   interface{}
		want int
	}{
		{3, 3},
		{int64(2), 2},
		{2.9, 2},
		{"4", 4},
		{" 5 ", 5},
		{json.Number("6"), 6},
		{0, 1},
		{-3, 1},
		{"bad", 1},
		{nil, 1},
		{math.Inf(1), 1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseSeatCount(tt.in), "%#v", tt.in)
	}
}

func TestValidatePrice(t *testing.T) {
	svc := NewPricingService(testPricingConfig(), "LKR")

	assert.True(t, svc.ValidatePrice(dec(250000)).Equal(dec(250000)))
	assert.True(t, svc.ValidatePrice("250000").Equal(dec(250000)))
	assert.True(t, svc.ValidatePrice(250000.0).Equal(dec(250000)))
	assert.True(t, svc.ValidatePrice(10).Equal(dec(1000)))
	assert.True(t, svc.ValidatePrice(-10).Equal(dec(1000)))
	assert.True(t, svc.ValidatePrice(int64(99000000)).Equal(dec(10000000)))
	assert.True(t, svc.ValidatePrice("abc").Equal(dec(1000)))
	assert.True(t, svc.ValidatePrice(nil).Equal(dec(1000)))
	assert.True(t, svc.ValidatePrice(math.NaN()).Equal(dec(1000)))
}
