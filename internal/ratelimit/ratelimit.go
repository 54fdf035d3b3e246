// Package ratelimit provides a pluggable per-key rate limiter with an
// in-memory token bucket implementation and HTTP middleware.
package ratelimit

import "context"

// Limiter decides whether a request identified by an opaque key may proceed.
// Implementations must be safe for concurrent use. A returned error means the
// limiter itself malfunctioned; callers fail open rather than dropping
// traffic.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
	Close() error
}

// NoopLimiter permits everything. Used when limiting is disabled.
type NoopLimiter struct{}

func (NoopLimiter) Allow(context.Context, string) (bool, error) { return true, nil }
func (NoopLimiter) Close() error                                { return nil }
