package models

import "errors"

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// Remote authentication failures, classified once at the remote
	// adapter boundary. Callers use errors.Is, never message text.
	ErrBadCredentials       = errors.New("bad credentials")
	ErrAlreadyAuthenticated = errors.New("already authenticated")
	ErrAccountDisabled      = errors.New("account is disabled")
	ErrAccountLocked        = errors.New("account is temporarily locked")
	ErrServer               = errors.New("server error")
	ErrNetwork              = errors.New("network unreachable")

	// Broken preconditions. These surface as returned errors rather
	// than LoginResult values.
	ErrNotInitialized = errors.New("remote client not initialized")
	ErrPersistence    = errors.New("credential store failure")
)
