// Package login holds the presentation controller for the login flow: form
// field state, validation, and the state machine that drives the auth
// service and signals navigation to the view layer.
package login

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/xavim/fieldentry/internal/models"
	"github.com/xavim/fieldentry/internal/session"
)

// StateKind enumerates the controller states.
type StateKind int

const (
	StateInitial StateKind = iota
	StateLoading
	StateSuccess
	StateError
)

// State is the controller state; Message is set only for StateError.
type State struct {
	Kind    StateKind
	Message string
}

// EventKind enumerates signals emitted to the view layer.
type EventKind int

const (
	// EventNavigateHome tells the view to leave the login screen.
	EventNavigateHome EventKind = iota
	// EventShowMessage tells the view to show a transient notification.
	EventShowMessage
)

// Event is a navigation or notification signal.
type Event struct {
	Kind    EventKind
	Message string
}

// Authenticator is the slice of the auth service the controller drives.
type Authenticator interface {
	Login(ctx context.Context, serverURL, username, password string) (models.LoginResult, error)
	Logout(ctx context.Context)
	ValidateSession(ctx context.Context) bool
	GetStoredCredentials() models.Credentials
}

// form carries the entry fields; validity is derived, never stored stale.
type form struct {
	ServerURL string `validate:"required,http_url"`
	Username  string `validate:"required"`
	Password  string `validate:"required"`
}

// Global validator instance (reused across all controllers)
var validate = validator.New()

// Controller is the login presentation controller. It is created per
// screen visit; form state is discarded with it and never persisted.
type Controller struct {
	auth     Authenticator
	sessions *session.State
	logger   *slog.Logger

	mu        sync.Mutex
	form      form
	formValid bool
	state     State
	stop      func()

	events chan Event
}

// NewController creates a controller in the Initial state. Call Start to
// run the active-session check.
func NewController(auth Authenticator, sessions *session.State, logger *slog.Logger) *Controller {
	return &Controller{
		auth:     auth,
		sessions: sessions,
		logger:   logger,
		state:    State{Kind: StateInitial},
		events:   make(chan Event, 8),
	}
}

// Events returns the signal channel consumed by the view layer.
func (c *Controller) Events() <-chan Event {
	return c.events
}

// State returns the current controller state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Start runs the startup path: with a logged-in descriptor and a valid
// session it goes straight to Success and signals navigation without
// touching the form; otherwise stored credentials prefill the form and
// the controller stays at Initial. Start also subscribes the controller
// to session descriptor changes; Stop releases the subscription. Call
// Start at most once per controller.
func (c *Controller) Start(ctx context.Context) {
	updates, cancel := c.sessions.Observe()
	c.mu.Lock()
	c.stop = cancel
	c.mu.Unlock()
	go c.watchSessions(updates)

	if c.sessions.Current().LoggedIn && c.auth.ValidateSession(ctx) {
		c.setState(State{Kind: StateSuccess})
		c.emit(Event{Kind: EventNavigateHome})
		return
	}

	creds := c.auth.GetStoredCredentials()

	c.mu.Lock()
	c.form.ServerURL = creds.ServerURL
	c.form.Username = creds.Username
	c.form.Password = creds.Password
	c.revalidateLocked()
	c.mu.Unlock()
}

// Stop cancels the session subscription. Safe to call more than once;
// call it when the screen owning the controller is torn down.
func (c *Controller) Stop() {
	c.mu.Lock()
	stop := c.stop
	c.stop = nil
	c.mu.Unlock()
	if stop != nil {
		stop()
	}
}

// watchSessions reacts to descriptors published outside the controller's
// own flow. A logged-out descriptor arriving while the controller shows
// Success (a session ended or invalidated elsewhere) drops it back to
// Initial with the password cleared, so the view returns to the form.
func (c *Controller) watchSessions(updates <-chan models.Session) {
	for sess := range updates {
		if sess.LoggedIn {
			continue
		}

		c.mu.Lock()
		ended := c.state.Kind == StateSuccess
		if ended {
			c.state = State{Kind: StateInitial}
			c.form.Password = ""
			c.revalidateLocked()
		}
		c.mu.Unlock()

		if ended {
			c.emit(Event{Kind: EventShowMessage, Message: "Session ended, log in again"})
		}
	}
}

// SetServerURL updates the server URL field and recomputes validity.
func (c *Controller) SetServerURL(v string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.form.ServerURL = v
	c.revalidateLocked()
}

// SetUsername updates the username field and recomputes validity.
func (c *Controller) SetUsername(v string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.form.Username = v
	c.revalidateLocked()
}

// SetPassword updates the password field and recomputes validity.
func (c *Controller) SetPassword(v string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.form.Password = v
	c.revalidateLocked()
}

// FormValid reports whether the form can be submitted.
func (c *Controller) FormValid() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.formValid
}

// revalidateLocked recomputes form validity. Callers must hold c.mu.
func (c *Controller) revalidateLocked() {
	c.formValid = validate.Struct(c.form) == nil
}

// Login runs the guarded login flow. An invalid form only emits a
// message. When already logged in with the same credentials the flow
// short-circuits to Success without a network round-trip.
func (c *Controller) Login(ctx context.Context) {
	c.mu.Lock()
	f := c.form
	valid := c.formValid
	c.mu.Unlock()

	if !valid {
		c.emit(Event{Kind: EventShowMessage, Message: "Enter a valid server URL, username and password"})
		return
	}

	if c.sessions.Current().LoggedIn {
		stored := c.auth.GetStoredCredentials()
		if stored.ServerURL == f.ServerURL && stored.Username == f.Username && stored.Password == f.Password {
			c.setState(State{Kind: StateSuccess})
			c.emit(Event{Kind: EventNavigateHome})
			return
		}
	}

	c.setState(State{Kind: StateLoading})

	result, err := c.auth.Login(ctx, f.ServerURL, f.Username, f.Password)
	if err != nil {
		msg := "Login failed, try again later"
		if errors.Is(err, models.ErrNotInitialized) {
			msg = "System is not ready yet"
		} else if errors.Is(err, models.ErrPersistence) {
			msg = "Could not access secure storage"
		}
		c.logger.Error("login failed", slog.Any("error", err))
		c.setState(State{Kind: StateError, Message: msg})
		c.emit(Event{Kind: EventShowMessage, Message: msg})
		return
	}

	state, msg := mapResult(result)
	c.setState(state)
	if result == models.LoginSuccess {
		c.emit(Event{Kind: EventNavigateHome})
		return
	}
	c.emit(Event{Kind: EventShowMessage, Message: msg})
}

// mapResult converts a login result into a state and user-facing message.
func mapResult(result models.LoginResult) (State, string) {
	switch result {
	case models.LoginSuccess:
		return State{Kind: StateSuccess}, ""
	case models.LoginInvalidCredentials:
		msg := "Invalid username or password"
		return State{Kind: StateError, Message: msg}, msg
	case models.LoginAccountLocked:
		msg := "Account locked after too many failed attempts"
		return State{Kind: StateError, Message: msg}, msg
	case models.LoginNetworkError:
		msg := "Unable to reach the server, check your connection"
		return State{Kind: StateError, Message: msg}, msg
	default:
		msg := "Server error, try again later"
		return State{Kind: StateError, Message: msg}, msg
	}
}

// Logout delegates to the auth service, clears the in-memory password
// field, and returns to Initial.
func (c *Controller) Logout(ctx context.Context) {
	c.auth.Logout(ctx)

	c.mu.Lock()
	c.form.Password = ""
	c.revalidateLocked()
	c.mu.Unlock()

	c.setState(State{Kind: StateInitial})
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// emit never blocks; if the view is not draining events the oldest signal
// is dropped in favour of the newest.
func (c *Controller) emit(ev Event) {
	select {
	case c.events <- ev:
	default:
		select {
		case <-c.events:
		default:
		}
		c.events <- ev
	}
}
