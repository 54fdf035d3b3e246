package ratelimit

import (
	"context"
	"sync"
	"time"
)

// entry tracks one key's bucket with integer accounting: instead of a float
// token count, it stores the instant the bucket will next be full. A request
// is allowed while the debt (fullAt minus now) leaves room for one more
// token's worth of refill time.
type entry struct {
	fullAt   time.Time
	lastSeen time.Time
}

// MemoryLimiter is a per-key token bucket held entirely in process memory.
// A janitor goroutine drops keys that have been idle for a while so the map
// stays bounded.
type MemoryLimiter struct {
	perToken time.Duration // refill time for one token
	capacity time.Duration // perToken * burst

	mu      sync.Mutex
	entries map[string]*entry

	stopOnce sync.Once
	stop     chan struct{}
}

const idleEviction = 10 * time.Minute

// NewMemoryLimiter builds a limiter sustaining ratePerSec requests per second
// per key with the given burst capacity. Call Close to stop the janitor.
func NewMemoryLimiter(ratePerSec float64, burst int) *MemoryLimiter {
	if ratePerSec <= 0 {
		ratePerSec = 1
	}
	if burst < 1 {
		burst = 1
	}
	m := &MemoryLimiter{
		perToken: time.Duration(float64(time.Second) / ratePerSec),
		entries:  make(map[string]*entry),
		stop:     make(chan struct{}),
	}
	m.capacity = time.Duration(burst) * m.perToken
	go m.janitor()
	return m
}

// Allow consumes one token for key, reporting whether the request may
// proceed.
func (m *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	e, ok := m.entries[key]
	if !ok {
		e = &entry{fullAt: now}
		m.entries[key] = e
	}
	e.lastSeen = now

	// An empty bucket refills completely at e.fullAt. Taking a token pushes
	// that instant out by one refill interval, but never lets it lag behind
	// now (idle time fills the bucket, it does not bank extra credit).
	if e.fullAt.Before(now) {
		e.fullAt = now
	}
	if e.fullAt.Sub(now)+m.perToken > m.capacity {
		return false, nil
	}
	e.fullAt = e.fullAt.Add(m.perToken)
	return true, nil
}

// Close stops the janitor goroutine. Safe to call more than once.
func (m *MemoryLimiter) Close() error {
	m.stopOnce.Do(func() { close(m.stop) })
	return nil
}

func (m *MemoryLimiter) janitor() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.evict(time.Now().Add(-idleEviction))
		}
	}
}

func (m *MemoryLimiter) evict(cutoff time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, e := range m.entries {
		if e.lastSeen.Before(cutoff) {
			delete(m.entries, key)
		}
	}
}
