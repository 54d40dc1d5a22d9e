package service

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestRateLimiterAllowsUpToLimit(t *testing.T) {
	l := NewRateLimiter(60, time.Minute)
	sender := uuid.New()

	for i := 0; i < 60; i++ {
		assert.True(t, l.Allow(sender), "send %d should be allowed", i+1)
	}
	assert.False(t, l.Allow(sender), "61st send within the window must be rejected")
}

func TestRateLimiterWindowReset(t *testing.T) {
	l := NewRateLimiter(2, time.Minute)
	now := time.Now()
	l.now = func() time.Time { return now }
	sender := uuid.New()

	assert.True(t, l.Allow(sender))
	assert.True(t, l.Allow(sender))
	assert.False(t, l.Allow(sender))

	now = now.Add(time.Minute + time.Second)
	assert.True(t, l.Allow(sender), "window elapsed, counter must reset")
}

func TestRateLimiterPerSender(t *testing.T) {
	l := NewRateLimiter(1, time.Minute)
	a, b := uuid.New(), uuid.New()

	assert.True(t, l.Allow(a))
	assert.False(t, l.Allow(a))
	assert.True(t, l.Allow(b), "one sender hitting the cap must not throttle another")
}

func TestRateLimiterSweep(t *testing.T) {
	l := NewRateLimiter(1, time.Minute)
	now := time.Now()
	l.now = func() time.Time { return now }

	l.Allow(uuid.New())
	l.Allow(uuid.New())
	assert.Len(t, l.buckets, 2)

	now = now.Add(2 * time.Minute)
	l.Sweep()
	assert.Empty(t, l.buckets)
}
