// Package retry provides a generic retry executor with exponential backoff
// and selective error matching.
package retry

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"regexp"
	"strings"
	"time"
)

// Matcher decides whether an error is retryable.
type Matcher interface {
	Matches(err error) bool
}

// Substring matches errors whose text contains the given fragment.
type Substring string

func (s Substring) Matches(err error) bool {
	return strings.Contains(err.Error(), string(s))
}

// Pattern matches errors whose text matches a regular expression.
type Pattern struct{ re *regexp.Regexp }

// NewPattern compiles a regex matcher. Panics on an invalid expression;
// patterns are build-time constants.
func NewPattern(expr string) Pattern {
	return Pattern{re: regexp.MustCompile(expr)}
}

func (p Pattern) Matches(err error) bool {
	return p.re.MatchString(err.Error())
}

// Policy controls retry behavior. The zero value is not usable; call
// withDefaults or start from DefaultPolicy.
type Policy struct {
	// MaxAttempts is the total number of tries including the first.
	// 1 means no retry: the first failure is terminal.
	MaxAttempts int
	// InitialDelay before the second attempt.
	InitialDelay time.Duration
	// MaxDelay caps the backoff growth.
	MaxDelay time.Duration
	// BackoffFactor multiplies the delay after each failed attempt.
	BackoffFactor float64
	// RetryableErrors restricts which errors are retried. Empty means every
	// error is retryable.
	RetryableErrors []Matcher
	// OnRetry, if set, is called before each sleep with the attempt number
	// (1-based) and the error that triggered the retry.
	OnRetry func(attempt int, err error)
	// Logger receives retry warnings; nil disables logging.
	Logger *slog.Logger
}

// DefaultPolicy retries everything three times with 1s/2s backoff.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:   3,
		InitialDelay:  time.Second,
		MaxDelay:      30 * time.Second,
		BackoffFactor: 2,
	}
}

func (p Policy) withDefaults() Policy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 3
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = time.Second
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 30 * time.Second
	}
	if p.BackoffFactor <= 0 {
		p.BackoffFactor = 2
	}
	return p
}

func (p Policy) retryable(err error) bool {
	if len(p.RetryableErrors) == 0 {
		return true
	}
	for _, m := range p.RetryableErrors {
		if m.Matches(err) {
			return true
		}
	}
	return false
}

// Do runs fn up to policy.MaxAttempts times. A non-retryable error is
// returned immediately without sleeping. Between attempts the delay grows by
// BackoffFactor up to MaxDelay, with up to 20% random jitter added; the
// sleep aborts early if ctx is cancelled.
func Do[T any](ctx context.Context, policy Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	p := policy.withDefaults()

	delay := p.InitialDelay
	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		out, err := fn(ctx)
		if err == nil {
			return out, nil
		}
		lastErr = err

		if !p.retryable(err) {
			return zero, fmt.Errorf("retry: non-retryable error: %w", err)
		}
		if attempt == p.MaxAttempts {
			break
		}

		if p.OnRetry != nil {
			p.OnRetry(attempt, err)
		}
		if p.Logger != nil {
			p.Logger.Warn("retrying after failure",
				"attempt", attempt,
				"max_attempts", p.MaxAttempts,
				"delay", delay.String(),
				"error", err.Error(),
			)
		}

		// Up to 20% jitter so concurrent callers don't retry in lockstep.
		sleep := delay + time.Duration(rand.Float64()*0.2*float64(delay))
		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, fmt.Errorf("retry: %w", ctx.Err())
		case <-timer.C:
		}

		delay = time.Duration(float64(delay) * p.BackoffFactor)
		if delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}

	if p.Logger != nil {
		p.Logger.Warn("giving up after exhausting attempts",
			"max_attempts", p.MaxAttempts,
			"error", lastErr.Error(),
		)
	}
	return zero, fmt.Errorf("retry: exhausted %d attempts: %w", p.MaxAttempts, lastErr)
}

// NewRetryable wraps fn so every call runs under the given policy. The
// wrapper has the same signature as fn.
func NewRetryable[T any](policy Policy, fn func(ctx context.Context) (T, error)) func(ctx context.Context) (T, error) {
	return func(ctx context.Context) (T, error) {
		return Do(ctx, policy, fn)
	}
}
