// Package registry holds the build-time table of tool actions the
// supervisor dispatches to. The table is closed: tools are registered here
// at construction, never at runtime, so a routing decision can only ever hit
// a known tool.
package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"

	"github.com/gearbox-hq/gearbox/internal/agent/tools"
	"github.com/gearbox-hq/gearbox/internal/result"
	"github.com/gearbox-hq/gearbox/internal/retry"
)

// Category groups tools by the kind of work they do.
type Category string

const (
	CategoryPerception    Category = "perception"
	CategoryScheduling    Category = "scheduling"
	CategoryCommunication Category = "communication"
	CategoryAnalysis      Category = "analysis"
	CategoryCommerce      Category = "commerce"
	CategoryTraining      Category = "training"
)

// Tool names. These are the only values routing can resolve.
const (
	ToolVision         = "vision"
	ToolCalendar       = "calendar"
	ToolVectorSearch   = "vectorSearch"
	ToolEmail          = "email"
	ToolSentiment      = "sentiment"
	ToolDocument       = "document"
	ToolTranslation    = "translation"
	ToolForecast       = "forecast"
	ToolTimeSeries     = "timeSeries"
	ToolPricing        = "pricing"
	ToolInsights       = "insights"
	ToolRecommendation = "recommendation"
	ToolTrainPolicy    = "trainPolicy"
)

// ErrUnknownTool is returned by Lookup for names outside the table.
var ErrUnknownTool = errors.New("registry: unknown tool")

// Registry is the immutable tool table.
type Registry struct {
	categories map[Category]map[string]tools.Func
	retryable  map[string]tools.Func
}

// New builds the registry from the tool set. The Retryable map holds
// pre-wrapped variants of the tools that talk to flaky externals, each with
// its own attempt cap and retryable error vocabulary.
func New(t *tools.Tools) *Registry {
	transient := []retry.Matcher{
		retry.Substring("timeout"),
		retry.Substring("network error"),
		retry.Substring("rate limit"),
		retry.Substring("connection refused"),
	}

	r := &Registry{
		categories: map[Category]map[string]tools.Func{
			CategoryPerception: {
				ToolVision: t.Vision,
			},
			CategoryScheduling: {
				ToolCalendar: t.Calendar,
			},
			CategoryCommunication: {
				ToolEmail:       t.Email,
				ToolTranslation: t.Translation,
			},
			CategoryAnalysis: {
				ToolVectorSearch:   t.VectorSearch,
				ToolSentiment:      t.Sentiment,
				ToolDocument:       t.Document,
				ToolForecast:       t.Forecast,
				ToolTimeSeries:     t.AnalyzeTimeSeries,
				ToolInsights:       t.Insights,
				ToolRecommendation: t.Recommendation,
			},
			CategoryCommerce: {
				ToolPricing: t.Pricing,
			},
			CategoryTraining: {
				ToolTrainPolicy: t.TrainPolicy,
			},
		},
		retryable: map[string]tools.Func{
			ToolVision: wrapRetryable(t.Vision, retry.Policy{
				MaxAttempts:     3,
				InitialDelay:    time.Second,
				MaxDelay:        10 * time.Second,
				BackoffFactor:   2,
				RetryableErrors: transient,
			}),
			ToolVectorSearch: wrapRetryable(t.VectorSearch, retry.Policy{
				MaxAttempts:     2,
				InitialDelay:    500 * time.Millisecond,
				MaxDelay:        5 * time.Second,
				BackoffFactor:   2,
				RetryableErrors: transient,
			}),
			ToolEmail: wrapRetryable(t.Email, retry.Policy{
				MaxAttempts:     4,
				InitialDelay:    time.Second,
				MaxDelay:        30 * time.Second,
				BackoffFactor:   2,
				RetryableErrors: transient,
			}),
		},
	}

	// Every registered variant records its duration, so tool latency shows
	// up under the same metric whether the supervisor or the HTTP surface
	// invoked it.
	for _, table := range r.categories {
		for name, fn := range table {
			table[name] = instrumented(name, fn)
		}
	}
	for name, fn := range r.retryable {
		r.retryable[name] = instrumented(name, fn)
	}
	return r
}

var toolMeter = otel.GetMeterProvider().Meter("gearbox/tools")

// instrumented wraps a tool func with an OTEL duration histogram.
func instrumented(name string, fn tools.Func) tools.Func {
	return func(ctx context.Context, orgID uuid.UUID, args map[string]any) (result.Result[tools.Output], error) {
		start := time.Now()
		res, err := fn(ctx, orgID, args)
		if hist, herr := toolMeter.Float64Histogram("tool.duration",
			otelmetric.WithUnit("ms")); herr == nil {
			hist.Record(ctx, float64(time.Since(start).Milliseconds()), otelmetric.WithAttributes(
				attribute.String("tool", name),
				attribute.Bool("success", err == nil && res.Success),
			))
		}
		return res, err
	}
}

// Lookup resolves a tool by name across all categories.
func (r *Registry) Lookup(name string) (tools.Func, error) {
	for _, table := range r.categories {
		if fn, ok := table[name]; ok {
			return fn, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownTool, name)
}

// Retryable returns the retry-wrapped variant of a tool, falling back to the
// plain variant for tools without one.
func (r *Registry) Retryable(name string) (tools.Func, error) {
	if fn, ok := r.retryable[name]; ok {
		return fn, nil
	}
	return r.Lookup(name)
}

// Category returns the tools registered under one category.
func (r *Registry) Category(c Category) map[string]tools.Func {
	return r.categories[c]
}

// Names returns every registered tool name.
func (r *Registry) Names() []string {
	var names []string
	for _, table := range r.categories {
		for name := range table {
			names = append(names, name)
		}
	}
	return names
}

// errNonRetryable aborts the retry loop for failures outside the transient
// vocabulary (it matches none of the substrings).
var errNonRetryable = errors.New("aborted")

// wrapRetryable lifts a tool into its retrying variant. Authorization errors
// pass through untouched and are never retried; envelope failures whose
// message matches the policy's vocabulary are retried, and the last envelope
// is returned once attempts are exhausted.
func wrapRetryable(fn tools.Func, policy retry.Policy) tools.Func {
	return func(ctx context.Context, orgID uuid.UUID, args map[string]any) (result.Result[tools.Output], error) {
		var authErr error
		var last result.Result[tools.Output]

		_, rerr := retry.Do(ctx, policy, func(ctx context.Context) (struct{}, error) {
			res, err := fn(ctx, orgID, args)
			if err != nil {
				authErr = err
				return struct{}{}, errNonRetryable
			}
			last = res
			if !res.Success {
				return struct{}{}, errors.New(res.Err.Message)
			}
			return struct{}{}, nil
		})

		if authErr != nil {
			return result.Result[tools.Output]{}, authErr
		}
		if rerr != nil && !last.Success {
			return last, nil
		}
		return last, nil
	}
}
