// Package store persists credentials and counters in an encrypted at-rest
// key-value file. Values are encrypted with AES-256-GCM under a key derived
// from a machine-local master key. Missing keys return zero values; IO or
// authentication failures surface as persistence errors.
package store

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/xavim/fieldentry/internal/config"
	"github.com/xavim/fieldentry/internal/models"
)

// Well-known keys. Failed-attempt counters use KeyFailedAttemptsPrefix
// followed by the username.
const (
	KeyServerURL            = "server_url"
	KeyUsername             = "username"
	KeyPassword             = "password"
	KeyLastLoginTime        = "last_login_time"
	KeyFailedAttemptsPrefix = "failed_attempts_"
)

// SecureStore is an encrypted key-value store backed by a single file.
// All operations are synchronous and safe for concurrent use.
type SecureStore struct {
	mu     sync.Mutex
	path   string
	salt   []byte
	aead   cipher.AEAD
	values map[string]string
	logger *slog.Logger
}

// Open loads (or initializes) the store at cfg.Path using the master key at
// cfg.KeyPath. A corrupt store file is a fatal condition.
func Open(cfg config.StoreConfig, logger *slog.Logger) (*SecureStore, error) {
	masterKey, err := loadOrCreateMasterKey(cfg.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrPersistence, err)
	}
	defer zeroBytes(masterKey)

	s := &SecureStore{
		path:   cfg.Path,
		values: make(map[string]string),
		logger: logger,
	}

	data, err := os.ReadFile(cfg.Path)
	if os.IsNotExist(err) {
		salt := make([]byte, saltSize)
		if _, err := io.ReadFull(rand.Reader, salt); err != nil {
			return nil, fmt.Errorf("%w: failed to generate salt: %v", models.ErrPersistence, err)
		}
		s.salt = salt
		if s.aead, err = deriveAEAD(masterKey, salt); err != nil {
			return nil, fmt.Errorf("%w: %v", models.ErrPersistence, err)
		}
		logger.Info("credential store initialized", slog.String("path", cfg.Path))
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read store: %v", models.ErrPersistence, err)
	}

	if len(data) < saltSize {
		return nil, fmt.Errorf("%w: %v", models.ErrPersistence, ErrCorrupt)
	}
	s.salt = data[:saltSize]
	if s.aead, err = deriveAEAD(masterKey, s.salt); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrPersistence, err)
	}

	plaintext, err := open(s.aead, data[saltSize:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrPersistence, err)
	}
	if err := json.Unmarshal(plaintext, &s.values); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrPersistence, ErrCorrupt)
	}

	return s, nil
}

// GetString returns the value for key, or defaultVal when absent.
func (s *SecureStore) GetString(key, defaultVal string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.values[key]; ok {
		return v
	}
	return defaultVal
}

// PutString stores value under key and persists the store.
func (s *SecureStore) PutString(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return s.flushLocked()
}

// GetInt returns the integer value for key, or defaultVal when absent
// or unparseable.
func (s *SecureStore) GetInt(key string, defaultVal int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	if !ok {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return n
}

// PutInt stores an integer value under key and persists the store.
func (s *SecureStore) PutInt(key string, value int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = strconv.Itoa(value)
	return s.flushLocked()
}

// GetTime returns the stored timestamp for key, or the zero time when absent.
func (s *SecureStore) GetTime(key string) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	if !ok {
		return time.Time{}
	}
	millis, err := strconv.ParseInt(v, 10, 64)
	if err != nil || millis == 0 {
		return time.Time{}
	}
	return time.UnixMilli(millis)
}

// PutTime stores a timestamp under key and persists the store.
func (s *SecureStore) PutTime(key string, t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = strconv.FormatInt(t.UnixMilli(), 10)
	return s.flushLocked()
}

// Contains reports whether key is present.
func (s *SecureStore) Contains(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.values[key]
	return ok
}

// Remove deletes key and persists the store. Removing an absent key is a no-op.
func (s *SecureStore) Remove(keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		delete(s.values, key)
	}
	return s.flushLocked()
}

// Clear removes every key and persists the empty store.
func (s *SecureStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values = make(map[string]string)
	return s.flushLocked()
}

// flushLocked writes salt|nonce|ciphertext atomically via a temp file rename.
// Callers must hold s.mu.
func (s *SecureStore) flushLocked() error {
	plaintext, err := json.Marshal(s.values)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrPersistence, err)
	}

	sealed, err := seal(s.aead, plaintext)
	zeroBytes(plaintext)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrPersistence, err)
	}

	data := append(append([]byte{}, s.salt...), sealed...)

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("%w: %v", models.ErrPersistence, err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("%w: %v", models.ErrPersistence, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("%w: %v", models.ErrPersistence, err)
	}

	return nil
}
