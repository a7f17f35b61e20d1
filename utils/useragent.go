package utils

import "strings"

// ClientInfo is what we keep from an inbound request's user agent.
type ClientInfo struct {
	Browser    string
	OS         string
	DeviceType string
}

// ParseUserAgent extracts browser, OS and device type from a raw user
// agent string. Heuristic substring matching, good enough for campaign
// reporting.
func ParseUserAgent(userAgent string) ClientInfo {
	ua := strings.ToLower(userAgent)

	browser := "unknown"
	switch {
	case strings.Contains(ua, "edg"):
		browser = "Edge"
	case strings.Contains(ua, "chrome"):
		browser = "Chrome"
	case strings.Contains(ua, "firefox"):
		browser = "Firefox"
	case strings.Contains(ua, "safari"):
		browser = "Safari"
	case strings.Contains(ua, "msie"), strings.Contains(ua, "trident"):
		browser = "Internet Explorer"
	}

	osName := "unknown"
	switch {
	case strings.Contains(ua, "windows"):
		osName = "Windows"
	// iPhone UAs contain "like Mac OS X", so iOS has to win over macOS
	case strings.Contains(ua, "iphone"), strings.Contains(ua, "ipad"):
		osName = "iOS"
	case strings.Contains(ua, "mac os"), strings.Contains(ua, "macintosh"):
		osName = "macOS"
	case strings.Contains(ua, "android"):
		osName = "Android"
	case strings.Contains(ua, "linux"):
		osName = "Linux"
	}

	deviceType := "desktop"
	switch {
	case strings.Contains(ua, "mobile"), strings.Contains(ua, "android"), strings.Contains(ua, "iphone"):
		deviceType = "mobile"
	case strings.Contains(ua, "ipad"), strings.Contains(ua, "tablet"):
		deviceType = "tablet"
	}

	return ClientInfo{Browser: browser, OS: osName, DeviceType: deviceType}
}
