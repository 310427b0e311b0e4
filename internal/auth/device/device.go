// Package device turns User-Agent headers into the coarse device, browser and
// OS categories shown in a user's session list.
package device

import (
	"fmt"
	"strings"

	"github.com/mssola/useragent"
)

const (
	CategoryDesktop = "desktop"
	CategoryMobile  = "mobile"
	CategoryTablet  = "tablet"
	CategoryBot     = "bot"
	CategoryUnknown = "unknown"

	unknownBrowser = "Unknown Browser"
	unknownOS      = "Unknown OS"
	unknownDevice  = "Unknown Device"
)

// Info is the parsed view of a User-Agent.
type Info struct {
	Device  string
	Browser string
	OS      string
	// Display is a short human label such as "Chrome on Mac OS X".
	Display string
}

// Parse categorizes a User-Agent header. It never fails; unrecognized input
// yields the unknown categories.
func Parse(userAgent string) Info {
	userAgent = strings.TrimSpace(userAgent)
	if userAgent == "" {
		return Info{Device: CategoryUnknown, Browser: unknownBrowser, OS: unknownOS, Display: unknownDevice}
	}

	ua := useragent.New(userAgent)

	browser, _ := ua.Browser()
	if browser == "" {
		browser = unknownBrowser
	}

	osName := ua.OSInfo().Name
	if osName == "" {
		osName = strings.TrimSpace(ua.OS())
	}
	if osName == "" {
		osName = unknownOS
	}

	category := categorize(ua, userAgent)

	where := osName
	if platform := ua.Platform(); category != CategoryDesktop && platform != "" {
		where = platform
	}

	return Info{
		Device:  category,
		Browser: browser,
		OS:      osName,
		Display: strings.TrimSpace(fmt.Sprintf("%s on %s", browser, where)),
	}
}

// ParseUserAgent returns only the display label.
func ParseUserAgent(userAgent string) string {
	return Parse(userAgent).Display
}

func categorize(ua *useragent.UserAgent, raw string) string {
	switch {
	case ua.Bot():
		return CategoryBot
	case isTablet(raw):
		return CategoryTablet
	case ua.Mobile():
		return CategoryMobile
	default:
		return CategoryDesktop
	}
}

func isTablet(raw string) bool {
	lower := strings.ToLower(raw)
	if strings.Contains(lower, "ipad") || strings.Contains(lower, "tablet") {
		return true
	}
	// Android tablets omit the "Mobile" token that phones carry.
	return strings.Contains(lower, "android") && !strings.Contains(lower, "mobile")
}
