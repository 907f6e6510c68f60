package validator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 6, 15, 9, 0, 0, 0, time.UTC)

func TestCardValidate_Valid(t *testing.T) {
	v := NewCardValidator()

	validCards := []struct {
		name     string
		number   string
		cvv      string
		brand    string
		month    int
		year     int
		expected string
	}{
		{"visa", "4111111111111111", "123", "visa", 12, 2028, "4111111111111111"},
		{"with spaces", "4111 1111 1111 1111", "123", "visa", 1, 2027, "4111111111111111"},
		{"with dashes", "5500-0000-0000-0004", "999", "mastercard", 6, 2026, "5500000000000004"},
		{"amex four digit cvv", "3400000000000009", "1234", "amex", 6, 2026, "3400000000000009"},
		{"two digit year", "4111111111111111", "123", "visa", 7, 26, "4111111111111111"},
		{"empty brand defaults to visa", "4111111111111111", "321", "", 12, 2030, "4111111111111111"},
		{"decline sentinel is well formed", "0000000000000000", "000", "visa", 12, 2030, "0000000000000000"},
	}

	for _, tc := range validCards {
		t.Run(tc.name, func(t *testing.T) {
			sanitized, err := v.Validate(tc.number, tc.cvv, tc.brand, tc.month, tc.year, testNow)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, sanitized)
		})
	}
}

func TestCardValidate_Invalid(t *testing.T) {
	v := NewCardValidator()

	invalidCards := []struct {
		name        string
		number      string
		cvv         string
		brand       string
		month       int
		year        int
		expectedErr error
	}{
		{"empty number", "", "123", "visa", 12, 2030, ErrEmptyCardNumber},
		{"letters", "4111a11111111111", "123", "visa", 12, 2030, ErrCardNumberFormat},
		{"15 digits", "411111111111111", "123", "visa", 12, 2030, ErrCardNumberLength},
		{"17 digits", "41111111111111111", "123", "visa", 12, 2030, ErrCardNumberLength},
		{"visa with 4 digit cvv", "4111111111111111", "1234", "visa", 12, 2030, ErrInvalidCVV},
		{"amex with 3 digit cvv", "3400000000000009", "123", "amex", 12, 2030, ErrInvalidCVV},
		{"non numeric cvv", "4111111111111111", "12a", "visa", 12, 2030, ErrInvalidCVV},
		{"unknown brand", "4111111111111111", "123", "diners", 12, 2030, ErrUnsupportedBrand},
		{"month zero", "4111111111111111", "123", "visa", 0, 2030, ErrInvalidExpiryMonth},
		{"month 13", "4111111111111111", "123", "visa", 13, 2030, ErrInvalidExpiryMonth},
		{"last month", "4111111111111111", "123", "visa", 5, 2026, ErrCardExpired},
		{"last year", "4111111111111111", "123", "visa", 12, 2025, ErrCardExpired},
	}

	for _, tc := range invalidCards {
		t.Run(tc.name, func(t *testing.T) {
			_, err := v.Validate(tc.number, tc.cvv, tc.brand, tc.month, tc.year, testNow)
			assert.ErrorIs(t, err, tc.expectedErr)
		})
	}
}

func TestIsDeclineSentinel(t *testing.T) {
	assert.True(t, IsDeclineSentinel("0000000000000000"))
	assert.False(t, IsDeclineSentinel("0000000000000001"))
	assert.False(t, IsDeclineSentinel(""))
}

func TestLast4(t *testing.T) {
	assert.Equal(t, "1111", Last4("4111111111111111"))
	assert.Equal(t, "12", Last4("12"))
}
