package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestLimiter(t *testing.T, perMinute, burst int) *Limiter {
	t.Helper()
	l := New(Config{
		RequestsPerMinute: perMinute,
		BurstSize:         burst,
		CleanupInterval:   time.Minute,
	})
	t.Cleanup(l.Stop)
	return l
}

func TestLimiter_BurstThenDeny(t *testing.T) {
	l := newTestLimiter(t, 60, 5)

	for i := 0; i < 5; i++ {
		assert.True(t, l.Allow("10.1.2.3"), "request %d inside the burst", i)
	}
	assert.False(t, l.Allow("10.1.2.3"), "burst exhausted")
}

func TestLimiter_KeysAreIndependent(t *testing.T) {
	l := newTestLimiter(t, 60, 3)

	for i := 0; i < 3; i++ {
		l.Allow("client-a")
	}
	assert.False(t, l.Allow("client-a"))
	assert.True(t, l.Allow("client-b"), "a throttled key must not starve others")
}

func TestLimiter_Refills(t *testing.T) {
	// 600/min = one token every 100ms.
	l := newTestLimiter(t, 600, 1)

	assert.True(t, l.Allow("k"))
	assert.False(t, l.Allow("k"))

	time.Sleep(110 * time.Millisecond)
	assert.True(t, l.Allow("k"), "token should refill after the interval")
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 60, cfg.RequestsPerMinute)
	assert.Equal(t, 10, cfg.BurstSize)
	assert.Equal(t, time.Minute, cfg.CleanupInterval)
}
