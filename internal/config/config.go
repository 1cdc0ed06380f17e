package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Client    ClientConfig
	Store     StoreConfig
	Cache     CacheConfig
	DevServer DevServerConfig
}

type ClientConfig struct {
	ServerURL         string
	LogLevel          string
	ConnectTimeout    time.Duration
	RequestTimeout    time.Duration
	SessionTimeout    time.Duration
	MaxFailedAttempts int
}

type StoreConfig struct {
	Path    string
	KeyPath string
}

type CacheConfig struct {
	Path string
}

type DevServerConfig struct {
	Port            string
	Env             string
	TokenSecret     string
	TokenExpiry     time.Duration
	LoginRatePerMin int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	dataDir := getEnv("FIELDENTRY_DATA_DIR", defaultDataDir())

	cfg := &Config{
		Client: ClientConfig{
			ServerURL:         getEnv("FIELDENTRY_SERVER_URL", ""),
			LogLevel:          getEnv("LOG_LEVEL", "info"),
			ConnectTimeout:    getEnvAsDuration("FIELDENTRY_CONNECT_TIMEOUT", 30*time.Second),
			RequestTimeout:    getEnvAsDuration("FIELDENTRY_REQUEST_TIMEOUT", 30*time.Second),
			SessionTimeout:    getEnvAsDuration("FIELDENTRY_SESSION_TIMEOUT", 30*time.Minute),
			MaxFailedAttempts: getEnvAsInt("FIELDENTRY_MAX_FAILED_ATTEMPTS", 5),
		},
		Store: StoreConfig{
			Path:    getEnv("FIELDENTRY_STORE_PATH", filepath.Join(dataDir, "credentials.enc")),
			KeyPath: getEnv("FIELDENTRY_KEY_PATH", filepath.Join(dataDir, "master.key")),
		},
		Cache: CacheConfig{
			Path: getEnv("FIELDENTRY_CACHE_PATH", filepath.Join(dataDir, "cache.db")),
		},
		DevServer: DevServerConfig{
			Port:            getEnv("DHIS2D_PORT", "8080"),
			Env:             getEnv("ENV", "development"),
			TokenSecret:     getEnv("DHIS2D_TOKEN_SECRET", ""),
			TokenExpiry:     getEnvAsDuration("DHIS2D_TOKEN_EXPIRY", 12*time.Hour),
			LoginRatePerMin: getEnvAsInt("DHIS2D_LOGIN_RATE_PER_MIN", 10),
			ReadTimeout:     getEnvAsDuration("DHIS2D_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvAsDuration("DHIS2D_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:     getEnvAsDuration("DHIS2D_IDLE_TIMEOUT", 60*time.Second),
		},
	}

	if cfg.Client.MaxFailedAttempts < 1 {
		return nil, fmt.Errorf("FIELDENTRY_MAX_FAILED_ATTEMPTS must be at least 1")
	}
	if cfg.Client.SessionTimeout <= 0 {
		return nil, fmt.Errorf("FIELDENTRY_SESSION_TIMEOUT must be positive")
	}

	return cfg, nil
}

// ValidateDevServer enforces requirements that only apply to the dev server
// binary, so the client can load config without a token secret set.
func (c *Config) ValidateDevServer() error {
	if c.DevServer.TokenSecret == "" {
		return fmt.Errorf("DHIS2D_TOKEN_SECRET is required")
	}

	minLength := 16
	if c.DevServer.Env == "production" {
		minLength = 32
	}
	if len(c.DevServer.TokenSecret) < minLength {
		return fmt.Errorf("DHIS2D_TOKEN_SECRET must be at least %d characters in %s environment (got %d)",
			minLength, c.DevServer.Env, len(c.DevServer.TokenSecret))
	}

	return nil
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".fieldentry"
	}
	return filepath.Join(home, ".fieldentry")
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}
