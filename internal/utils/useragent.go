package utils

import (
	"strings"

	ua "github.com/mssola/user_agent"
	"github.com/smarttransit/seat-booking-core/internal/models"
)

var tabletIndicators = []string{"ipad", "tablet", "kindle", "playbook", "nexus 7", "nexus 9", "nexus 10", "xoom", "sm-t"}

// first match wins
var platforms = []struct{ needle, platform string }{
	{"android", "android"},
	{"iphone os", "ios"},
	{"ios", "ios"},
	{"windows", "windows"},
	{"mac os x", "mac"},
	{"macos", "mac"},
	{"chrome os", "chromeos"},
	{"ubuntu", "linux"},
	{"linux", "linux"},
}

// ParseDevice extracts the device snapshot stored on a booking. Returns nil
// for an empty User-Agent.
func ParseDevice(userAgent string) *models.DeviceSnapshot {
	if userAgent == "" {
		return nil
	}

	parser := ua.New(userAgent)
	browser, _ := parser.Browser()
	if browser == "" {
		browser = "Unknown"
	}

	return &models.DeviceSnapshot{
		DeviceType: deviceType(parser),
		OS:         osName(parser),
		Browser:    browser,
		Platform:   platform(parser),
		IsBot:      parser.Bot(),
	}
}

func deviceType(parser *ua.UserAgent) string {
	if !parser.Mobile() {
		return "desktop"
	}
	lower := strings.ToLower(parser.UA())
	for _, indicator := range tabletIndicators {
		if strings.Contains(lower, indicator) {
			return "tablet"
		}
	}
	return "mobile"
}

func osName(parser *ua.UserAgent) string {
	info := parser.OSInfo()
	if info.Name == "" {
		return "Unknown"
	}
	if info.Version != "" {
		return info.Name + " " + info.Version
	}
	return info.Name
}

func platform(parser *ua.UserAgent) string {
	name := strings.ToLower(parser.OSInfo().Name)
	for _, p := range platforms {
		if strings.Contains(name, p.needle) {
			return p.platform
		}
	}
	return "unknown"
}
