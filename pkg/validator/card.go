package validator

import (
	"errors"
	"regexp"
	"strings"
	"time"
)

var (
	// ErrEmptyCardNumber indicates the card number is empty
	ErrEmptyCardNumber = errors.New("card number cannot be empty")

	// ErrCardNumberFormat indicates the card number contains non-digit characters
	ErrCardNumberFormat = errors.New("card number can only contain digits")

	// ErrCardNumberLength indicates the card number is not 16 digits
	ErrCardNumberLength = errors.New("card number must be exactly 16 digits")

	// ErrInvalidCVV indicates the CVV length does not match the card brand
	ErrInvalidCVV = errors.New("cvv must be 3 digits (4 for amex)")

	// ErrInvalidExpiryMonth indicates the expiry month is outside 1..12
	ErrInvalidExpiryMonth = errors.New("expiry month must be between 1 and 12")

	// ErrCardExpired indicates the expiry month/year is in the past
	ErrCardExpired = errors.New("card has expired")

	// ErrUnsupportedBrand indicates an unknown card brand
	ErrUnsupportedBrand = errors.New("card brand must be visa, mastercard or amex")
)

// Card brands
const (
	BrandVisa       = "visa"
	BrandMastercard = "mastercard"
	BrandAmex       = "amex"
)

const cardNumberLength = 16

var digitsRegex = regexp.MustCompile(`^\d+$`)

// CardValidator validates card input before it is sent for settlement
type CardValidator struct{}

// NewCardValidator creates a new card validator instance
func NewCardValidator() *CardValidator {
	return &CardValidator{}
}

// Validate checks number, CVV and expiry. An empty brand is treated as visa.
// Returns the sanitized card number (digits only).
func (v *CardValidator) Validate(number, cvv, brand string, expiryMonth, expiryYear int, now time.Time) (string, error) {
	if strings.TrimSpace(number) == "" {
		return "", ErrEmptyCardNumber
	}

	sanitized := v.Sanitize(number)
	if !digitsRegex.MatchString(sanitized) {
		return "", ErrCardNumberFormat
	}
	if len(sanitized) != cardNumberLength {
		return "", ErrCardNumberLength
	}

	normalizedBrand, err := v.NormalizeBrand(brand)
	if err != nil {
		return "", err
	}
	if !digitsRegex.MatchString(cvv) || len(cvv) != CVVLength(normalizedBrand) {
		return "", ErrInvalidCVV
	}

	if err := v.ValidateExpiry(expiryMonth, expiryYear, now); err != nil {
		return "", err
	}

	return sanitized, nil
}

// Sanitize removes spaces and dashes from a card number
func (v *CardValidator) Sanitize(number string) string {
	number = strings.ReplaceAll(number, " ", "")
	number = strings.ReplaceAll(number, "-", "")
	return number
}

// NormalizeBrand lowercases and checks the declared brand
func (v *CardValidator) NormalizeBrand(brand string) (string, error) {
	switch b := strings.ToLower(strings.TrimSpace(brand)); b {
	case "":
		return BrandVisa, nil
	case BrandVisa, BrandMastercard, BrandAmex:
		return b, nil
	case "american express", "american_express":
		return BrandAmex, nil
	default:
		return "", ErrUnsupportedBrand
	}
}

// ValidateExpiry accepts the current month and later. Two digit years are
// read as 20YY.
func (v *CardValidator) ValidateExpiry(month, year int, now time.Time) error {
	if month < 1 || month > 12 {
		return ErrInvalidExpiryMonth
	}
	if year < 100 {
		year += 2000
	}
	if year < now.Year() || (year == now.Year() && month < int(now.Month())) {
		return ErrCardExpired
	}
	return nil
}

// CVVLength returns the expected CVV length for a normalized brand
func CVVLength(brand string) int {
	if brand == BrandAmex {
		return 4
	}
	return 3
}

// IsDeclineSentinel reports whether the sanitized number is all zeros,
// which the deterministic gateway always declines
func IsDeclineSentinel(number string) bool {
	return len(number) > 0 && strings.Trim(number, "0") == ""
}

// Last4 returns the last four digits of a sanitized card number
func Last4(number string) string {
	if len(number) <= 4 {
		return number
	}
	return number[len(number)-4:]
}
