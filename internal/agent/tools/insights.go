package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/gearbox-hq/gearbox/internal/completion"
	"github.com/gearbox-hq/gearbox/internal/result"
)

// Insights summarizes operational data (utilization, revenue, retention)
// into actionable observations.
func (t *Tools) Insights(ctx context.Context, orgID uuid.UUID, args map[string]any) (result.Result[Output], error) {
	if err := t.authorize(ctx, orgID); err != nil {
		return result.Result[Output]{}, err
	}

	return result.Wrap(ctx, t.deps.Logger, classify("insightsTool", "INSIGHTS_FAILED", result.SeverityLow),
		func(ctx context.Context) (Output, error) {
			topic := argStringOr(args, "topic", "operations")
			dataJSON, _ := json.Marshal(args["data"])

			opID := t.deps.OpLog.OperationStart(ctx, "generateInsights", map[string]any{"topic": topic})

			var parsed struct {
				Insights []string `json:"insights"`
				Summary  string   `json:"summary"`
			}
			err := t.deps.Completion.CompleteJSON(ctx, []completion.Message{
				{Role: "system", Content: fmt.Sprintf(`Generate business insights about %s for an auto workshop.
Respond as JSON: {"insights": ["..."], "summary": "..."}`, topic)},
				{Role: "user", Content: string(dataJSON)},
			}, &parsed)
			if err != nil {
				t.deps.OpLog.OperationEnd(ctx, opID, "generateInsights", false, map[string]any{"error": err.Error()})
				return nil, err
			}

			t.deps.OpLog.OperationEnd(ctx, opID, "generateInsights", true, map[string]any{"count": len(parsed.Insights)})
			return Output{"topic": topic, "insights": parsed.Insights, "summary": parsed.Summary}, nil
		}), nil
}

// Recommendation suggests next services for a vehicle based on its history.
func (t *Tools) Recommendation(ctx context.Context, orgID uuid.UUID, args map[string]any) (result.Result[Output], error) {
	if err := t.authorize(ctx, orgID); err != nil {
		return result.Result[Output]{}, err
	}

	return result.Wrap(ctx, t.deps.Logger, classify("recommendationTool", "RECOMMENDATION_FAILED", result.SeverityLow),
		func(ctx context.Context) (Output, error) {
			vehicleID, err := argUUID(args, "vehicleId")
			if err != nil {
				return nil, err
			}

			opID := t.deps.OpLog.OperationStart(ctx, "recommendServices", map[string]any{"vehicleId": vehicleID.String()})

			history, err := t.deps.Store.ListServiceHistoryByVehicle(ctx, orgID, vehicleID, 20)
			if err != nil {
				t.deps.OpLog.OperationEnd(ctx, opID, "recommendServices", false, map[string]any{"error": err.Error()})
				return nil, err
			}

			historyJSON, _ := json.Marshal(history)
			var parsed struct {
				Recommendations []struct {
					Service string `json:"service"`
					Urgency string `json:"urgency"`
					Reason  string `json:"reason"`
				} `json:"recommendations"`
			}
			err = t.deps.Completion.CompleteJSON(ctx, []completion.Message{
				{Role: "system", Content: `Given a vehicle's service history, recommend upcoming services.
Respond as JSON: {"recommendations": [{"service": "...", "urgency": "low|medium|high", "reason": "..."}]}`},
				{Role: "user", Content: string(historyJSON)},
			}, &parsed)
			if err != nil {
				t.deps.OpLog.OperationEnd(ctx, opID, "recommendServices", false, map[string]any{"error": err.Error()})
				return nil, err
			}

			t.deps.OpLog.OperationEnd(ctx, opID, "recommendServices", true, map[string]any{"count": len(parsed.Recommendations)})
			return Output{"vehicleId": vehicleID.String(), "recommendations": parsed.Recommendations}, nil
		}), nil
}
