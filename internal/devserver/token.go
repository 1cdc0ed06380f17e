package devserver

import (
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenManager issues and validates the bearer tokens the dev server
// hands out on login. Logged-out tokens are tracked in a revocation set.
type TokenManager struct {
	secret []byte
	expiry time.Duration

	mu      sync.Mutex
	revoked map[string]struct{}
}

// NewTokenManager creates a new TokenManager.
func NewTokenManager(secret string, expiry time.Duration) *TokenManager {
	return &TokenManager{
		secret:  []byte(secret),
		expiry:  expiry,
		revoked: make(map[string]struct{}),
	}
}

// Generate creates a signed token for username.
func (tm *TokenManager) Generate(username string) (string, time.Time, error) {
	expiresAt := time.Now().Add(tm.expiry)

	claims := &jwt.RegisteredClaims{
		ID:        uuid.New().String(),
		Subject:   username,
		ExpiresAt: jwt.NewNumericDate(expiresAt),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		NotBefore: jwt.NewNumericDate(time.Now()),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(tm.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}

	return signed, expiresAt, nil
}

// Validate parses a token and returns its subject, rejecting revoked and
// expired tokens.
func (tm *TokenManager) Validate(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return tm.secret, nil
	})
	if err != nil {
		return "", err
	}

	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || !token.Valid {
		return "", fmt.Errorf("invalid token claims")
	}

	tm.mu.Lock()
	_, isRevoked := tm.revoked[claims.ID]
	tm.mu.Unlock()
	if isRevoked {
		return "", fmt.Errorf("token revoked")
	}

	return claims.Subject, nil
}

// Revoke adds a token's ID to the revocation set.
func (tm *TokenManager) Revoke(tokenString string) {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(t *jwt.Token) (any, error) {
		return tm.secret, nil
	})
	if err != nil {
		return
	}
	if claims, ok := token.Claims.(*jwt.RegisteredClaims); ok {
		tm.mu.Lock()
		tm.revoked[claims.ID] = struct{}{}
		tm.mu.Unlock()
	}
}
