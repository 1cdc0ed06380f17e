package models

import "time"

// LoginResult is the closed outcome set of a login attempt. Classification
// from remote errors happens once, in the auth service; callers above it
// never inspect raw errors.
type LoginResult int

const (
	LoginSuccess LoginResult = iota
	LoginInvalidCredentials
	LoginServerError
	LoginNetworkError
	LoginAccountLocked
)

func (r LoginResult) String() string {
	switch r {
	case LoginSuccess:
		return "SUCCESS"
	case LoginInvalidCredentials:
		return "INVALID_CREDENTIALS"
	case LoginServerError:
		return "SERVER_ERROR"
	case LoginNetworkError:
		return "NETWORK_ERROR"
	case LoginAccountLocked:
		return "ACCOUNT_LOCKED"
	default:
		return "UNKNOWN"
	}
}

// Session describes the current login state. It is owned by session.State,
// mutated only by the auth service, and replaced wholesale on every
// login/logout/refresh.
type Session struct {
	LoggedIn      bool
	Username      string
	ServerURL     string
	LastLoginTime time.Time
}

// Credentials is a stored server/username/password triple. The password is
// an opaque secret and must never be logged.
type Credentials struct {
	ServerURL string
	Username  string
	Password  string
}

// Complete reports whether all three fields are present.
func (c Credentials) Complete() bool {
	return c.ServerURL != "" && c.Username != "" && c.Password != ""
}
