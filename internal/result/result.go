// Package result implements the uniform success/failure envelope that every
// tool and the supervisor return, so callers branch on one shape instead of
// mixing Go errors with domain failures.
package result

import (
	"context"
	"fmt"
	"log/slog"
)

// Severity grades how bad a failure is for the caller.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Failure describes why an operation did not succeed. Source and Code come
// from the classification supplied at wrap time; Message carries the
// underlying error text.
type Failure struct {
	Source   string         `json:"source"`
	Code     string         `json:"code"`
	Severity Severity       `json:"severity"`
	Context  map[string]any `json:"context,omitempty"`
	Message  string         `json:"message"`
}

// Error implements the error interface so a Failure can be logged or
// wrapped like any other error when callers need to escalate.
func (f *Failure) Error() string {
	return fmt.Sprintf("%s [%s]: %s", f.Source, f.Code, f.Message)
}

// Result is the envelope returned by wrapped operations. Exactly one of
// Data (Success true) or Err (Success false) is meaningful.
type Result[T any] struct {
	Success bool     `json:"success"`
	Data    T        `json:"data,omitempty"`
	Err     *Failure `json:"error,omitempty"`
}

// Ok builds a successful envelope.
func Ok[T any](data T) Result[T] {
	return Result[T]{Success: true, Data: data}
}

// Fail builds a failed envelope.
func Fail[T any](f *Failure) Result[T] {
	return Result[T]{Success: false, Err: f}
}

// Classification is the static failure metadata attached when wrapping an
// operation. Context is copied into every Failure produced.
type Classification struct {
	Source   string
	Code     string
	Severity Severity
	Context  map[string]any
}

// Wrap runs fn and converts its outcome into an envelope. It never returns
// a Go error: any error from fn becomes a Failure carrying the
// classification plus the error text. The failure is also logged at a level
// matching its severity.
func Wrap[T any](ctx context.Context, logger *slog.Logger, c Classification, fn func(ctx context.Context) (T, error)) Result[T] {
	data, err := fn(ctx)
	if err == nil {
		return Ok(data)
	}

	f := &Failure{
		Source:   c.Source,
		Code:     c.Code,
		Severity: c.Severity,
		Context:  c.Context,
		Message:  err.Error(),
	}

	if logger != nil {
		level := slog.LevelWarn
		if c.Severity == SeverityHigh {
			level = slog.LevelError
		}
		logger.Log(ctx, level, "operation failed",
			"source", f.Source,
			"code", f.Code,
			"severity", string(f.Severity),
			"error", f.Message,
		)
	}
	return Fail[T](f)
}
