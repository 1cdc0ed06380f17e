package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestExpired(t *testing.T) {
	now := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		lastLogin time.Time
		timeout   time.Duration
		want      bool
	}{
		{"fresh login", now.Add(-time.Minute), DefaultTimeout, false},
		{"just inside the window", now.Add(-29 * time.Minute), DefaultTimeout, false},
		{"exactly at the boundary", now.Add(-30 * time.Minute), DefaultTimeout, false},
		{"past the window", now.Add(-31 * time.Minute), DefaultTimeout, true},
		{"never logged in", time.Time{}, DefaultTimeout, true},
		{"short custom timeout", now.Add(-2 * time.Minute), time.Minute, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Expired(tt.lastLogin, now, tt.timeout))
		})
	}
}
