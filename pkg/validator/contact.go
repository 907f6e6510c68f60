package validator

import (
	"errors"
	"net/mail"
	"strings"
)

var (
	// ErrEmptyPhone indicates phone number is empty
	ErrEmptyPhone = errors.New("phone number cannot be empty")

	// ErrInvalidPhoneFormat indicates phone number contains invalid characters
	ErrInvalidPhoneFormat = errors.New("phone number can only contain digits")

	// ErrInvalidPhoneLength indicates phone number length is outside 9..15 digits
	ErrInvalidPhoneLength = errors.New("phone number must have 9 to 15 digits")

	// ErrInvalidEmail indicates a malformed email address
	ErrInvalidEmail = errors.New("email address is invalid")
)

// ContactValidator validates guest contact details
type ContactValidator struct{}

// NewContactValidator creates a new contact validator instance
func NewContactValidator() *ContactValidator {
	return &ContactValidator{}
}

// ValidatePhone accepts 0771234567, +94 77 123 4567, 077-123-4567 and
// returns the digits only
func (v *ContactValidator) ValidatePhone(phone string) (string, error) {
	if strings.TrimSpace(phone) == "" {
		return "", ErrEmptyPhone
	}

	sanitized := v.SanitizePhone(phone)
	if !digitsRegex.MatchString(sanitized) {
		return "", ErrInvalidPhoneFormat
	}
	if len(sanitized) < 9 || len(sanitized) > 15 {
		return "", ErrInvalidPhoneLength
	}
	return sanitized, nil
}

// SanitizePhone removes common separators
func (v *ContactValidator) SanitizePhone(phone string) string {
	r := strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", "+", "", ".", "")
	return r.Replace(phone)
}

// ValidateEmail returns the lowercased address
func (v *ContactValidator) ValidateEmail(email string) (string, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(email))
	if err != nil || addr.Name != "" || !strings.Contains(addr.Address, ".") {
		return "", ErrInvalidEmail
	}
	return strings.ToLower(addr.Address), nil
}
