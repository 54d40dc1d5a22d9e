package service

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// RateLimiter caps how many messages a sender may submit per window. It
// is process-local and resets on restart; its job is abuse damping, not
// accounting, so lost state is acceptable.
type RateLimiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	buckets map[uuid.UUID]*rateBucket
	now     func() time.Time
}

type rateBucket struct {
	count   int
	resetAt time.Time
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		limit:   limit,
		window:  window,
		buckets: make(map[uuid.UUID]*rateBucket),
		now:     time.Now,
	}
}

// Allow consumes one slot for the sender and reports whether the send may
// proceed. A rejected call does not consume a slot.
func (l *RateLimiter) Allow(senderID uuid.UUID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[senderID]
	if !ok || now.After(b.resetAt) {
		l.buckets[senderID] = &rateBucket{count: 1, resetAt: now.Add(l.window)}
		return true
	}
	if b.count >= l.limit {
		return false
	}
	b.count++
	return true
}

// Sweep drops expired buckets so idle senders do not accumulate
func (l *RateLimiter) Sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	for id, b := range l.buckets {
		if now.After(b.resetAt) {
			delete(l.buckets, id)
		}
	}
}
