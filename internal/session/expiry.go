package session

import "time"

// DefaultTimeout is the sliding-expiration window for an idle session.
const DefaultTimeout = 30 * time.Minute

// Expired reports whether a session whose last login (or last refresh)
// happened at lastLogin has exceeded timeout by now. A zero lastLogin is
// treated as expired. Pure function, no side effects.
func Expired(lastLogin, now time.Time, timeout time.Duration) bool {
	if lastLogin.IsZero() {
		return true
	}
	return now.Sub(lastLogin) > timeout
}
