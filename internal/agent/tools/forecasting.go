package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/gearbox-hq/gearbox/internal/completion"
	"github.com/gearbox-hq/gearbox/internal/model"
	"github.com/gearbox-hq/gearbox/internal/result"
)

// parseSeries decodes the "series" argument into time points. The series is
// forwarded verbatim: ordering, duplicate timestamps, and gaps are the
// caller's responsibility.
func parseSeries(args map[string]any) ([]model.TimePoint, error) {
	raw, ok := args["series"]
	if !ok {
		return nil, fmt.Errorf("missing required argument %q", "series")
	}
	buf, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("series is not encodable: %w", err)
	}
	var series []model.TimePoint
	if err := json.Unmarshal(buf, &series); err != nil {
		return nil, fmt.Errorf("series must be a list of {timestamp, value}: %w", err)
	}
	return series, nil
}

// Forecast projects a demand or revenue series forward by the requested
// horizon using the completion service.
func (t *Tools) Forecast(ctx context.Context, orgID uuid.UUID, args map[string]any) (result.Result[Output], error) {
	if err := t.authorize(ctx, orgID); err != nil {
		return result.Result[Output]{}, err
	}

	return result.Wrap(ctx, t.deps.Logger, classify("forecastingTool", "FORECAST_FAILED", result.SeverityMedium),
		func(ctx context.Context) (Output, error) {
			series, err := parseSeries(args)
			if err != nil {
				return nil, err
			}
			horizon := argIntOr(args, "horizon", 7)
			metric := argStringOr(args, "metric", "demand")

			opID := t.deps.OpLog.OperationStart(ctx, "forecastSeries", map[string]any{
				"points": len(series), "horizon": horizon, "metric": metric,
			})

			seriesJSON, _ := json.Marshal(series)
			var parsed struct {
				Forecast []model.TimePoint `json:"forecast"`
				Trend    string            `json:"trend"`
			}
			err = t.deps.Completion.CompleteJSON(ctx, []completion.Message{
				{Role: "system", Content: fmt.Sprintf(`Forecast the next %d points of this workshop %s series.
Timestamps are unix milliseconds. Respond as JSON:
{"forecast": [{"timestamp": ..., "value": ...}], "trend": "up|flat|down"}`, horizon, metric)},
				{Role: "user", Content: string(seriesJSON)},
			}, &parsed)
			if err != nil {
				t.deps.OpLog.OperationEnd(ctx, opID, "forecastSeries", false, map[string]any{"error": err.Error()})
				return nil, err
			}

			t.deps.OpLog.OperationEnd(ctx, opID, "forecastSeries", true, map[string]any{"trend": parsed.Trend})
			return Output{"forecast": parsed.Forecast, "trend": parsed.Trend, "horizon": horizon}, nil
		}), nil
}

// AnalyzeTimeSeries characterizes a series (trend, seasonality, anomalies)
// without projecting it forward.
func (t *Tools) AnalyzeTimeSeries(ctx context.Context, orgID uuid.UUID, args map[string]any) (result.Result[Output], error) {
	if err := t.authorize(ctx, orgID); err != nil {
		return result.Result[Output]{}, err
	}

	return result.Wrap(ctx, t.deps.Logger, classify("forecastingTool", "TIMESERIES_FAILED", result.SeverityLow),
		func(ctx context.Context) (Output, error) {
			series, err := parseSeries(args)
			if err != nil {
				return nil, err
			}

			opID := t.deps.OpLog.OperationStart(ctx, "analyzeSeries", map[string]any{"points": len(series)})

			seriesJSON, _ := json.Marshal(series)
			var parsed struct {
				Trend       string   `json:"trend"`
				Seasonality string   `json:"seasonality"`
				Anomalies   []string `json:"anomalies"`
				Summary     string   `json:"summary"`
			}
			err = t.deps.Completion.CompleteJSON(ctx, []completion.Message{
				{Role: "system", Content: `Analyze this workshop time series (unix millisecond timestamps).
Respond as JSON: {"trend": "...", "seasonality": "...", "anomalies": [...], "summary": "..."}`},
				{Role: "user", Content: string(seriesJSON)},
			}, &parsed)
			if err != nil {
				t.deps.OpLog.OperationEnd(ctx, opID, "analyzeSeries", false, map[string]any{"error": err.Error()})
				return nil, err
			}

			t.deps.OpLog.OperationEnd(ctx, opID, "analyzeSeries", true, nil)
			return Output{
				"trend":       parsed.Trend,
				"seasonality": parsed.Seasonality,
				"anomalies":   parsed.Anomalies,
				"summary":     parsed.Summary,
			}, nil
		}), nil
}
