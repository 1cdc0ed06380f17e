package store

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// nonceSize is the AES-GCM nonce size (96 bits)
	nonceSize = 12

	// keySize is the AES-256 key size
	keySize = 32

	// saltSize is the PBKDF2 salt size
	saltSize = 32

	// pbkdf2Iterations follows the OWASP recommendation for PBKDF2-SHA-256
	pbkdf2Iterations = 600000
)

var (
	// ErrCorrupt indicates the store file failed authentication or parsing
	ErrCorrupt = errors.New("store file corrupt or tampered")
)

// loadOrCreateMasterKey reads the hex-encoded master key at path, creating
// a fresh random key with 0600 permissions on first use.
func loadOrCreateMasterKey(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		key, decodeErr := hex.DecodeString(string(data))
		if decodeErr != nil || len(key) != keySize {
			return nil, fmt.Errorf("%w: invalid master key file", ErrCorrupt)
		}
		return key, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read master key: %w", err)
	}

	key := make([]byte, keySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("failed to generate master key: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create key directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(hex.EncodeToString(key)), 0o600); err != nil {
		return nil, fmt.Errorf("failed to write master key: %w", err)
	}

	return key, nil
}

// deriveAEAD derives an AES-256-GCM cipher from the master key and salt
func deriveAEAD(masterKey, salt []byte) (cipher.AEAD, error) {
	derived := pbkdf2.Key(masterKey, salt, pbkdf2Iterations, keySize, sha256.New)
	defer zeroBytes(derived)

	block, err := aes.NewCipher(derived)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return aead, nil
}

// seal encrypts plaintext with a fresh random nonce, returning nonce|ciphertext
func seal(aead cipher.AEAD, plaintext []byte) ([]byte, error) {
	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

// open decrypts nonce|ciphertext produced by seal
func open(aead cipher.AEAD, data []byte) ([]byte, error) {
	if len(data) < nonceSize {
		return nil, ErrCorrupt
	}
	plaintext, err := aead.Open(nil, data[:nonceSize], data[nonceSize:], nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return plaintext, nil
}

// zeroBytes zeros sensitive byte slices to limit key material lifetime in memory
func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
