package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	bookingReferencePrefix = "BKG"
	guestIdentifierPrefix  = "GUEST"
	maxGuestIdentifierLen  = 50
)

var (
	bookingReferencePattern = regexp.MustCompile(`^BKG-[A-Z0-9]+-[A-Z0-9]+$`)
	nonAlphanumeric         = regexp.MustCompile(`[^A-Za-z0-9]`)
	nonDigit                = regexp.MustCompile(`[^0-9]`)
)

// GenerateBookingReference generates a booking reference
// Format: BKG-<base36 millis>-<6 hex chars>
// Example: BKG-MF3K2Z1A-A1B2C3
// The random part is short, so callers must enforce uniqueness at the store
// and regenerate on collision.
func GenerateBookingReference(now time.Time) (string, error) {
	randomBytes := make([]byte, 3)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	timePart := strings.ToUpper(strconv.FormatInt(now.UnixMilli(), 36))
	randomPart := strings.ToUpper(hex.EncodeToString(randomBytes))

	return fmt.Sprintf("%s-%s-%s", bookingReferencePrefix, timePart, randomPart), nil
}

// IsValidBookingReference reports whether v is a string in booking reference format
func IsValidBookingReference(v interface{}) bool {
	s, ok := v.(string)
	if !ok {
		return false
	}
	return bookingReferencePattern.MatchString(s)
}

// GenerateGuestIdentifier builds GUEST-<base36 millis>-<emailPrefix>-<last4 of phone>,
// truncated to 50 characters. Missing email or phone fall back to placeholders.
func GenerateGuestIdentifier(now time.Time, email, phone string) string {
	emailPrefix := "NOEMAIL"
	if local, _, _ := strings.Cut(strings.TrimSpace(email), "@"); local != "" {
		if cleaned := nonAlphanumeric.ReplaceAllString(local, ""); cleaned != "" {
			emailPrefix = strings.ToUpper(cleaned)
		}
	}

	last4 := nonDigit.ReplaceAllString(phone, "")
	switch {
	case last4 == "":
		last4 = "0000"
	case len(last4) > 4:
		last4 = last4[len(last4)-4:]
	case len(last4) < 4:
		last4 = strings.Repeat("0", 4-len(last4)) + last4
	}

	timePart := strings.ToUpper(strconv.FormatInt(now.UnixMilli(), 36))
	id := fmt.Sprintf("%s-%s-%s-%s", guestIdentifierPrefix, timePart, emailPrefix, last4)
	if len(id) > maxGuestIdentifierLen {
		id = id[:maxGuestIdentifierLen]
	}
	return id
}
