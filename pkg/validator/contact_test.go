package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatePhone(t *testing.T) {
	v := NewContactValidator()

	valid := []struct {
		input    string
		expected string
		name     string
	}{
		{"0771234567", "0771234567", "Standard format"},
		{"077 123 4567", "0771234567", "With spaces"},
		{"+94 77-123-4567", "94771234567", "International"},
		{"(077) 123.4567", "0771234567", "Parentheses and dots"},
	}
	for _, tc := range valid {
		t.Run(tc.name, func(t *testing.T) {
			sanitized, err := v.ValidatePhone(tc.input)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, sanitized)
		})
	}

	invalid := []struct {
		input       string
		expectedErr error
		name        string
	}{
		{"", ErrEmptyPhone, "Empty"},
		{"0771a34567", ErrInvalidPhoneFormat, "Letters"},
		{"12345", ErrInvalidPhoneLength, "Too short"},
		{"1234567890123456", ErrInvalidPhoneLength, "Too long"},
	}
	for _, tc := range invalid {
		t.Run(tc.name, func(t *testing.T) {
			_, err := v.ValidatePhone(tc.input)
			assert.ErrorIs(t, err, tc.expectedErr)
		})
	}
}

func TestValidateEmail(t *testing.T) {
	v := NewContactValidator()

	email, err := v.ValidateEmail(" Nimal@Example.LK ")
	require.NoError(t, err)
	assert.Equal(t, "nimal@example.lk", email)

	for _, bad := range []string{"", "nimal", "nimal@", "Nimal <nimal@example.lk>", "nimal@localhost"} {
		_, err := v.ValidateEmail(bad)
		assert.ErrorIs(t, err, ErrInvalidEmail, bad)
	}
}
