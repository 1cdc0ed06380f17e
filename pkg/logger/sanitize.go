package logger

import (
	"log/slog"
	"net/url"
	"strings"
)

// SanitizedUsername masks a username for logging (e.g., "a****")
func SanitizedUsername(username string) string {
	if username == "" {
		return "[empty]"
	}
	if len(username) == 1 {
		return "*"
	}
	return string(username[0]) + strings.Repeat("*", len(username)-1)
}

// SanitizedServerURL strips userinfo and query from a server URL before logging
func SanitizedServerURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "[invalid-url]"
	}
	u.User = nil
	u.RawQuery = ""
	return u.String()
}

// RedactedAttr returns a redacted slog attribute for sensitive values
// In production, returns "[REDACTED]"; in development, returns the actual value
func RedactedAttr(key, value, env string) slog.Attr {
	if env == "production" {
		return slog.String(key, "[REDACTED]")
	}
	return slog.String(key, value)
}

// SanitizeQueryString checks if a query string contains sensitive parameters
// and returns true if the entire query string should be redacted
func SanitizeQueryString(rawQuery string) bool {
	sensitiveParams := []string{
		"password",
		"token",
		"secret",
		"auth",
		"code",
	}

	query := strings.ToLower(rawQuery)
	for _, param := range sensitiveParams {
		if strings.Contains(query, param+"=") {
			return true
		}
	}
	return false
}
