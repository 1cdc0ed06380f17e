package login

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xavim/fieldentry/internal/models"
	"github.com/xavim/fieldentry/internal/session"
)

// MockAuthenticator implements Authenticator for testing
type MockAuthenticator struct {
	LoginFunc                func(ctx context.Context, serverURL, username, password string) (models.LoginResult, error)
	LogoutFunc               func(ctx context.Context)
	ValidateSessionFunc      func(ctx context.Context) bool
	GetStoredCredentialsFunc func() models.Credentials
}

func (m *MockAuthenticator) Login(ctx context.Context, serverURL, username, password string) (models.LoginResult, error) {
	if m.LoginFunc != nil {
		return m.LoginFunc(ctx, serverURL, username, password)
	}
	return models.LoginSuccess, nil
}

func (m *MockAuthenticator) Logout(ctx context.Context) {
	if m.LogoutFunc != nil {
		m.LogoutFunc(ctx)
	}
}

func (m *MockAuthenticator) ValidateSession(ctx context.Context) bool {
	if m.ValidateSessionFunc != nil {
		return m.ValidateSessionFunc(ctx)
	}
	return false
}

func (m *MockAuthenticator) GetStoredCredentials() models.Credentials {
	if m.GetStoredCredentialsFunc != nil {
		return m.GetStoredCredentialsFunc()
	}
	return models.Credentials{}
}

func newTestController(auth *MockAuthenticator, sess models.Session) *Controller {
	return NewController(auth, session.NewState(sess), slog.Default())
}

func fillValidForm(c *Controller) {
	c.SetServerURL("https://play.dhis2.org")
	c.SetUsername("admin")
	c.SetPassword("district")
}

func requireEvent(t *testing.T, c *Controller) Event {
	t.Helper()
	select {
	case ev := <-c.Events():
		return ev
	case <-time.After(time.Second):
		t.Fatal("expected an event")
		return Event{}
	}
}

func assertNoEvent(t *testing.T, c *Controller) {
	t.Helper()
	select {
	case ev := <-c.Events():
		t.Fatalf("unexpected event %+v", ev)
	default:
	}
}

func TestController_FormValidation(t *testing.T) {
	c := newTestController(&MockAuthenticator{}, models.Session{})

	assert.False(t, c.FormValid())

	c.SetServerURL("https://play.dhis2.org")
	c.SetUsername("admin")
	assert.False(t, c.FormValid())

	c.SetPassword("district")
	assert.True(t, c.FormValid())

	c.SetServerURL("not-a-url")
	assert.False(t, c.FormValid())

	c.SetServerURL("https://play.dhis2.org")
	assert.True(t, c.FormValid())
}

func TestController_Login_InvalidFormOnlyEmitsMessage(t *testing.T) {
	loginCalled := false
	auth := &MockAuthenticator{
		LoginFunc: func(ctx context.Context, serverURL, username, password string) (models.LoginResult, error) {
			loginCalled = true
			return models.LoginSuccess, nil
		},
	}
	c := newTestController(auth, models.Session{})

	c.Login(context.Background())

	assert.False(t, loginCalled)
	assert.Equal(t, StateInitial, c.State().Kind)
	ev := requireEvent(t, c)
	assert.Equal(t, EventShowMessage, ev.Kind)
}

func TestController_Login_SuccessNavigatesHome(t *testing.T) {
	auth := &MockAuthenticator{
		LoginFunc: func(ctx context.Context, serverURL, username, password string) (models.LoginResult, error) {
			assert.Equal(t, "https://play.dhis2.org", serverURL)
			assert.Equal(t, "admin", username)
			return models.LoginSuccess, nil
		},
	}
	c := newTestController(auth, models.Session{})
	fillValidForm(c)

	c.Login(context.Background())

	assert.Equal(t, StateSuccess, c.State().Kind)
	ev := requireEvent(t, c)
	assert.Equal(t, EventNavigateHome, ev.Kind)
}

func TestController_Login_ResultMessages(t *testing.T) {
	tests := []struct {
		name   string
		result models.LoginResult
	}{
		{"invalid credentials", models.LoginInvalidCredentials},
		{"account locked", models.LoginAccountLocked},
		{"network error", models.LoginNetworkError},
		{"server error", models.LoginServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auth := &MockAuthenticator{
				LoginFunc: func(ctx context.Context, serverURL, username, password string) (models.LoginResult, error) {
					return tt.result, nil
				},
			}
			c := newTestController(auth, models.Session{})
			fillValidForm(c)

			c.Login(context.Background())

			state := c.State()
			assert.Equal(t, StateError, state.Kind)
			assert.NotEmpty(t, state.Message)

			ev := requireEvent(t, c)
			assert.Equal(t, EventShowMessage, ev.Kind)
			assert.Equal(t, state.Message, ev.Message)
		})
	}
}

func TestController_Login_ErrorMapping(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		message string
	}{
		{"not initialized", models.ErrNotInitialized, "System is not ready yet"},
		{"persistence", models.ErrPersistence, "Could not access secure storage"},
		{"other", models.ErrInternalServer, "Login failed, try again later"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auth := &MockAuthenticator{
				LoginFunc: func(ctx context.Context, serverURL, username, password string) (models.LoginResult, error) {
					return 0, tt.err
				},
			}
			c := newTestController(auth, models.Session{})
			fillValidForm(c)

			c.Login(context.Background())

			state := c.State()
			assert.Equal(t, StateError, state.Kind)
			assert.Equal(t, tt.message, state.Message)
		})
	}
}

func TestController_Login_ShortCircuitsWhenAlreadyLoggedIn(t *testing.T) {
	loginCalled := false
	auth := &MockAuthenticator{
		LoginFunc: func(ctx context.Context, serverURL, username, password string) (models.LoginResult, error) {
			loginCalled = true
			return models.LoginSuccess, nil
		},
		GetStoredCredentialsFunc: func() models.Credentials {
			return models.Credentials{
				ServerURL: "https://play.dhis2.org",
				Username:  "admin",
				Password:  "district",
			}
		},
	}
	c := newTestController(auth, models.Session{LoggedIn: true, Username: "admin"})
	fillValidForm(c)

	c.Login(context.Background())

	assert.False(t, loginCalled)
	assert.Equal(t, StateSuccess, c.State().Kind)
	assert.Equal(t, EventNavigateHome, requireEvent(t, c).Kind)
}

func TestController_Login_DifferentCredentialsDoNotShortCircuit(t *testing.T) {
	loginCalled := false
	auth := &MockAuthenticator{
		LoginFunc: func(ctx context.Context, serverURL, username, password string) (models.LoginResult, error) {
			loginCalled = true
			return models.LoginSuccess, nil
		},
		GetStoredCredentialsFunc: func() models.Credentials {
			return models.Credentials{
				ServerURL: "https://play.dhis2.org",
				Username:  "someone-else",
				Password:  "other",
			}
		},
	}
	c := newTestController(auth, models.Session{LoggedIn: true, Username: "someone-else"})
	fillValidForm(c)

	c.Login(context.Background())

	assert.True(t, loginCalled)
}

func TestController_Start_ValidSessionNavigatesHome(t *testing.T) {
	auth := &MockAuthenticator{
		ValidateSessionFunc: func(ctx context.Context) bool { return true },
	}
	c := newTestController(auth, models.Session{LoggedIn: true, Username: "admin"})

	c.Start(context.Background())

	assert.Equal(t, StateSuccess, c.State().Kind)
	assert.Equal(t, EventNavigateHome, requireEvent(t, c).Kind)
}

func TestController_Start_PrefillsFormFromStoredCredentials(t *testing.T) {
	auth := &MockAuthenticator{
		GetStoredCredentialsFunc: func() models.Credentials {
			return models.Credentials{
				ServerURL: "https://play.dhis2.org",
				Username:  "admin",
				Password:  "district",
			}
		},
	}
	c := newTestController(auth, models.Session{})

	c.Start(context.Background())

	assert.Equal(t, StateInitial, c.State().Kind)
	assert.True(t, c.FormValid())
	assertNoEvent(t, c)
}

func TestController_Start_ExpiredSessionStaysOnLogin(t *testing.T) {
	auth := &MockAuthenticator{
		ValidateSessionFunc: func(ctx context.Context) bool { return false },
	}
	c := newTestController(auth, models.Session{LoggedIn: true, Username: "admin"})

	c.Start(context.Background())

	assert.Equal(t, StateInitial, c.State().Kind)
	assertNoEvent(t, c)
}

func TestController_Logout_ClearsPasswordAndResets(t *testing.T) {
	logoutCalled := false
	auth := &MockAuthenticator{
		LogoutFunc: func(ctx context.Context) { logoutCalled = true },
	}
	c := newTestController(auth, models.Session{LoggedIn: true})
	fillValidForm(c)
	require.True(t, c.FormValid())

	c.Logout(context.Background())

	assert.True(t, logoutCalled)
	assert.Equal(t, StateInitial, c.State().Kind)
	// The password field is gone, so the form no longer validates.
	assert.False(t, c.FormValid())
}

func TestController_ExternalLogoutDropsSuccess(t *testing.T) {
	sessions := session.NewState(models.Session{LoggedIn: true, Username: "admin"})
	auth := &MockAuthenticator{
		ValidateSessionFunc: func(ctx context.Context) bool { return true },
	}
	c := NewController(auth, sessions, slog.Default())

	c.Start(context.Background())
	defer c.Stop()

	require.Equal(t, StateSuccess, c.State().Kind)
	require.Equal(t, EventNavigateHome, requireEvent(t, c).Kind)
	fillValidForm(c)

	// The auth service ends the session elsewhere and publishes the
	// logged-out descriptor.
	sessions.Publish(models.Session{})

	require.Eventually(t, func() bool {
		return c.State().Kind == StateInitial
	}, time.Second, 5*time.Millisecond)

	// The password field is cleared along with the state change.
	assert.False(t, c.FormValid())
	ev := requireEvent(t, c)
	assert.Equal(t, EventShowMessage, ev.Kind)
}

func TestController_LoggedInPublishLeavesSuccessAlone(t *testing.T) {
	sessions := session.NewState(models.Session{LoggedIn: true, Username: "admin"})
	auth := &MockAuthenticator{
		ValidateSessionFunc: func(ctx context.Context) bool { return true },
	}
	c := NewController(auth, sessions, slog.Default())

	c.Start(context.Background())
	defer c.Stop()
	require.Equal(t, EventNavigateHome, requireEvent(t, c).Kind)

	sessions.Publish(models.Session{LoggedIn: true, Username: "admin", LastLoginTime: time.Now()})

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, StateSuccess, c.State().Kind)
	assertNoEvent(t, c)
}

func TestController_EventsConflateForSlowConsumers(t *testing.T) {
	auth := &MockAuthenticator{
		LoginFunc: func(ctx context.Context, serverURL, username, password string) (models.LoginResult, error) {
			return models.LoginNetworkError, nil
		},
	}
	c := newTestController(auth, models.Session{})
	fillValidForm(c)

	// More logins than the event buffer holds, with nobody draining.
	for i := 0; i < 20; i++ {
		c.Login(context.Background())
	}

	count := 0
	for {
		select {
		case <-c.Events():
			count++
			continue
		default:
		}
		break
	}
	assert.Greater(t, count, 0)
	assert.LessOrEqual(t, count, 8)
}
