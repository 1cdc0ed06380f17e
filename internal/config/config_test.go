package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, cfg.Client.ConnectTimeout)
	assert.Equal(t, 30*time.Second, cfg.Client.RequestTimeout)
	assert.Equal(t, 30*time.Minute, cfg.Client.SessionTimeout)
	assert.Equal(t, 5, cfg.Client.MaxFailedAttempts)

	assert.Equal(t, "8080", cfg.DevServer.Port)
	assert.Equal(t, 12*time.Hour, cfg.DevServer.TokenExpiry)
	assert.Equal(t, 10, cfg.DevServer.LoginRatePerMin)

	assert.NotEmpty(t, cfg.Store.Path)
	assert.NotEmpty(t, cfg.Store.KeyPath)
	assert.NotEmpty(t, cfg.Cache.Path)
}

func TestLoad_CustomValues(t *testing.T) {
	t.Setenv("FIELDENTRY_SERVER_URL", "https://play.dhis2.org")
	t.Setenv("FIELDENTRY_SESSION_TIMEOUT", "15m")
	t.Setenv("FIELDENTRY_MAX_FAILED_ATTEMPTS", "3")
	t.Setenv("DHIS2D_PORT", "9090")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://play.dhis2.org", cfg.Client.ServerURL)
	assert.Equal(t, 15*time.Minute, cfg.Client.SessionTimeout)
	assert.Equal(t, 3, cfg.Client.MaxFailedAttempts)
	assert.Equal(t, "9090", cfg.DevServer.Port)
}

func TestLoad_InvalidValuesFallBackToDefaults(t *testing.T) {
	t.Setenv("FIELDENTRY_SESSION_TIMEOUT", "not-a-duration")
	t.Setenv("FIELDENTRY_MAX_FAILED_ATTEMPTS", "not-a-number")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 30*time.Minute, cfg.Client.SessionTimeout)
	assert.Equal(t, 5, cfg.Client.MaxFailedAttempts)
}

func TestLoad_RejectsNonPositiveLimits(t *testing.T) {
	t.Setenv("FIELDENTRY_MAX_FAILED_ATTEMPTS", "0")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_DataDirDrivesDefaultPaths(t *testing.T) {
	t.Setenv("FIELDENTRY_DATA_DIR", "/tmp/fieldentry-test")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/tmp/fieldentry-test/credentials.enc", cfg.Store.Path)
	assert.Equal(t, "/tmp/fieldentry-test/master.key", cfg.Store.KeyPath)
	assert.Equal(t, "/tmp/fieldentry-test/cache.db", cfg.Cache.Path)
}

func TestValidateDevServer(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	cfg.DevServer.TokenSecret = ""
	assert.Error(t, cfg.ValidateDevServer())

	cfg.DevServer.TokenSecret = "short"
	assert.Error(t, cfg.ValidateDevServer())

	cfg.DevServer.TokenSecret = "long-enough-for-development"
	assert.NoError(t, cfg.ValidateDevServer())

	cfg.DevServer.Env = "production"
	cfg.DevServer.TokenSecret = "only-twenty-characters"
	assert.Error(t, cfg.ValidateDevServer())

	cfg.DevServer.TokenSecret = "this-secret-is-at-least-thirty-two-chars"
	assert.NoError(t, cfg.ValidateDevServer())
}
