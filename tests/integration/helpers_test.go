package integration

import (
	"log/slog"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xavim/fieldentry/internal/cache"
	"github.com/xavim/fieldentry/internal/config"
	"github.com/xavim/fieldentry/internal/devserver"
	"github.com/xavim/fieldentry/internal/models"
	"github.com/xavim/fieldentry/internal/remote"
	"github.com/xavim/fieldentry/internal/services"
	"github.com/xavim/fieldentry/internal/session"
	"github.com/xavim/fieldentry/internal/store"
	pkglogger "github.com/xavim/fieldentry/pkg/logger"
)

// TestEnv wires a full client stack against an in-process dev server.
type TestEnv struct {
	ServerURL string
	FixtureDB *devserver.Store

	Store     *store.SecureStore
	Cache     *cache.Cache
	Client    *remote.Client
	Sessions  *session.State
	Auth      *services.AuthService
	Datasets  *services.DatasetService
	DataEntry *services.DataEntryService
}

// NewTestEnv starts the dev server over httptest and builds the client
// stack in a temp directory, exactly as cmd/fieldentry wires it.
func NewTestEnv(t *testing.T) *TestEnv {
	t.Helper()
	logger := slog.Default()

	fixtureDB := devserver.NewStore()
	require.NoError(t, devserver.SeedDefaults(fixtureDB))

	srv := devserver.New(fixtureDB, config.DevServerConfig{
		Env:             "development",
		TokenSecret:     "integration-test-secret",
		TokenExpiry:     time.Hour,
		LoginRatePerMin: 1000,
	}, logger)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)

	dir := t.TempDir()
	secureStore, err := store.Open(config.StoreConfig{
		Path:    filepath.Join(dir, "credentials.enc"),
		KeyPath: filepath.Join(dir, "master.key"),
	}, logger)
	require.NoError(t, err)

	metaCache, err := cache.Open(config.CacheConfig{Path: filepath.Join(dir, "cache.db")}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { metaCache.Close() })

	client := remote.NewClient(5*time.Second, logger)
	sessions := session.NewState(models.Session{})
	auth := services.NewAuthService(client, secureStore, sessions, 5, 30*time.Minute,
		logger, pkglogger.NewAuditLogger(logger))

	return &TestEnv{
		ServerURL: ts.URL,
		FixtureDB: fixtureDB,
		Store:     secureStore,
		Cache:     metaCache,
		Client:    client,
		Sessions:  sessions,
		Auth:      auth,
		Datasets:  services.NewDatasetService(client, metaCache, sessions, logger),
		DataEntry: services.NewDataEntryService(client, metaCache, sessions, logger),
	}
}
