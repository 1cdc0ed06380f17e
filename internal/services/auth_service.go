package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/xavim/fieldentry/internal/models"
	"github.com/xavim/fieldentry/internal/session"
	"github.com/xavim/fieldentry/internal/store"
	pkglogger "github.com/xavim/fieldentry/pkg/logger"
)

// RemoteAuthenticator is the authentication slice of the remote adapter.
type RemoteAuthenticator interface {
	Login(ctx context.Context, serverURL, username, password string) error
	Logout(ctx context.Context) error
	IsLoggedIn() bool
}

// CredentialStore is the slice of the secure store the auth service needs.
type CredentialStore interface {
	GetString(key, defaultVal string) string
	PutString(key, value string) error
	GetInt(key string, defaultVal int) int
	PutInt(key string, value int) error
	GetTime(key string) time.Time
	PutTime(key string, t time.Time) error
	Remove(keys ...string) error
}

// AuthService orchestrates login and logout against the remote server,
// enforces the failed-attempt lockout, and is the only writer of the
// session state.
type AuthService struct {
	remote      RemoteAuthenticator
	creds       CredentialStore
	state       *session.State
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger

	maxFailedAttempts int
	sessionTimeout    time.Duration
	now               func() time.Time
}

// NewAuthService creates a new AuthService. The initial session descriptor
// is rebuilt from the credential store and the remote adapter's state.
func NewAuthService(
	remote RemoteAuthenticator,
	creds CredentialStore,
	state *session.State,
	maxFailedAttempts int,
	sessionTimeout time.Duration,
	logger *slog.Logger,
	auditLogger *pkglogger.AuditLogger,
) *AuthService {
	s := &AuthService{
		remote:            remote,
		creds:             creds,
		state:             state,
		logger:            logger,
		auditLogger:       auditLogger,
		maxFailedAttempts: maxFailedAttempts,
		sessionTimeout:    sessionTimeout,
		now:               time.Now,
	}

	state.Publish(models.Session{
		LoggedIn:      remote.IsLoggedIn(),
		Username:      creds.GetString(store.KeyUsername, ""),
		ServerURL:     creds.GetString(store.KeyServerURL, ""),
		LastLoginTime: creds.GetTime(store.KeyLastLoginTime),
	})

	return s
}

// Login authenticates against the server. The lockout check runs before
// any remote call; every non-success outcome other than an
// already-authenticated session increments the username's failed-attempt
// counter. Persistence and initialization failures are returned as errors,
// not folded into the result.
func (s *AuthService) Login(ctx context.Context, serverURL, username, password string) (models.LoginResult, error) {
	attempts := s.GetFailedLoginAttempts(username)
	if attempts >= s.maxFailedAttempts {
		s.logger.Warn("login refused, account locked",
			slog.String("username", pkglogger.SanitizedUsername(username)),
			slog.Int("failed_attempts", attempts))
		s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
			EventType:     "login_failed",
			Username:      username,
			ServerURL:     serverURL,
			FailureReason: "account_locked",
			Success:       false,
		})
		return models.LoginAccountLocked, nil
	}

	err := s.remote.Login(ctx, serverURL, username, password)
	switch {
	case err == nil:
		// Credentials are written only after the remote call fully
		// succeeds, so an abandoned login never leaves a partial entry.
		if err := s.StoreCredentials(serverURL, username, password); err != nil {
			return 0, err
		}
		if err := s.ResetFailedLoginAttempts(username); err != nil {
			return 0, err
		}
		lastLogin := s.now()
		if err := s.creds.PutTime(store.KeyLastLoginTime, lastLogin); err != nil {
			return 0, err
		}

		s.state.Publish(models.Session{
			LoggedIn:      true,
			Username:      username,
			ServerURL:     serverURL,
			LastLoginTime: lastLogin,
		})

		s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
			EventType: "login_success",
			Username:  username,
			ServerURL: serverURL,
			Success:   true,
		})
		return models.LoginSuccess, nil

	case errors.Is(err, models.ErrAlreadyAuthenticated):
		// The wire session is already live; not a failure.
		return models.LoginSuccess, nil

	case errors.Is(err, models.ErrNotInitialized), errors.Is(err, models.ErrPersistence):
		return 0, err
	}

	if recordErr := s.RecordFailedLoginAttempt(username); recordErr != nil {
		return 0, recordErr
	}

	result := classifyLoginError(err)
	s.logger.Info("login failed",
		slog.String("username", pkglogger.SanitizedUsername(username)),
		slog.String("result", result.String()))
	s.auditLogger.LogAuthAttempt(pkglogger.AuditEvent{
		EventType:     "login_failed",
		Username:      username,
		ServerURL:     serverURL,
		FailureReason: result.String(),
		Success:       false,
	})
	return result, nil
}

// classifyLoginError collapses a typed remote error into the closed
// LoginResult set. Anything unclassified counts as a server error.
func classifyLoginError(err error) models.LoginResult {
	switch {
	case errors.Is(err, models.ErrBadCredentials):
		return models.LoginInvalidCredentials
	case errors.Is(err, models.ErrNetwork):
		return models.LoginNetworkError
	default:
		return models.LoginServerError
	}
}

// Logout ends the session. The remote logout is best effort: failures are
// logged, never surfaced. Stored credentials are cleared but failed-attempt
// counters survive to preserve lockout history.
func (s *AuthService) Logout(ctx context.Context) {
	username := s.state.Current().Username

	if err := s.remote.Logout(ctx); err != nil {
		s.logger.Warn("remote logout failed", slog.Any("error", err))
	}

	if err := s.ClearStoredCredentials(); err != nil {
		s.logger.Error("failed to clear stored credentials", slog.Any("error", err))
	}

	s.state.Publish(models.Session{LoggedIn: false})
	s.auditLogger.LogSessionEvent("logout", username)
}

// ValidateSession re-queries the remote logged-in flag, republishes a
// corrected descriptor when it disagrees with the cached one, and reports
// whether the session is both logged in and unexpired.
func (s *AuthService) ValidateSession(ctx context.Context) bool {
	isLogged := s.remote.IsLoggedIn()

	current := s.state.Current()
	if isLogged != current.LoggedIn {
		current.LoggedIn = isLogged
		s.state.Publish(current)
	}

	return isLogged && !s.IsSessionExpired()
}

// IsSessionExpired applies the timeout policy to the current descriptor.
func (s *AuthService) IsSessionExpired() bool {
	return session.Expired(s.state.Current().LastLoginTime, s.now(), s.sessionTimeout)
}

// RefreshSession stamps the sliding-expiration touch without
// re-authenticating.
func (s *AuthService) RefreshSession() error {
	lastLogin := s.now()
	if err := s.creds.PutTime(store.KeyLastLoginTime, lastLogin); err != nil {
		return err
	}

	current := s.state.Current()
	current.LastLoginTime = lastLogin
	s.state.Publish(current)
	return nil
}

// StoreCredentials persists the credential triple.
func (s *AuthService) StoreCredentials(serverURL, username, password string) error {
	if err := s.creds.PutString(store.KeyServerURL, serverURL); err != nil {
		return err
	}
	if err := s.creds.PutString(store.KeyUsername, username); err != nil {
		return err
	}
	return s.creds.PutString(store.KeyPassword, password)
}

// GetStoredCredentials returns the stored triple; absent fields are empty.
func (s *AuthService) GetStoredCredentials() models.Credentials {
	return models.Credentials{
		ServerURL: s.creds.GetString(store.KeyServerURL, ""),
		Username:  s.creds.GetString(store.KeyUsername, ""),
		Password:  s.creds.GetString(store.KeyPassword, ""),
	}
}

// ClearStoredCredentials removes the credential triple. Failed-attempt
// counters are intentionally untouched.
func (s *AuthService) ClearStoredCredentials() error {
	return s.creds.Remove(store.KeyServerURL, store.KeyUsername, store.KeyPassword)
}

// VerifyStoredCredentials replays login with the stored triple to silently
// re-establish a session.
func (s *AuthService) VerifyStoredCredentials(ctx context.Context) bool {
	creds := s.GetStoredCredentials()
	if !creds.Complete() {
		return false
	}

	result, err := s.Login(ctx, creds.ServerURL, creds.Username, creds.Password)
	return err == nil && result == models.LoginSuccess
}

// RecordFailedLoginAttempt increments the username's counter.
func (s *AuthService) RecordFailedLoginAttempt(username string) error {
	key := store.KeyFailedAttemptsPrefix + username
	return s.creds.PutInt(key, s.creds.GetInt(key, 0)+1)
}

// GetFailedLoginAttempts returns the username's counter.
func (s *AuthService) GetFailedLoginAttempts(username string) int {
	return s.creds.GetInt(store.KeyFailedAttemptsPrefix+username, 0)
}

// ResetFailedLoginAttempts clears the username's counter.
func (s *AuthService) ResetFailedLoginAttempts(username string) error {
	return s.creds.Remove(store.KeyFailedAttemptsPrefix + username)
}
