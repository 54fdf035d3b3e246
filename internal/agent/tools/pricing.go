package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/gearbox-hq/gearbox/internal/completion"
	"github.com/gearbox-hq/gearbox/internal/result"
)

// Breakdown is the base cost decomposition for a service quote.
type Breakdown struct {
	Labor float64 `json:"labor"`
	Parts float64 `json:"parts"`
	Taxes float64 `json:"taxes"`
	Total float64 `json:"total"`
}

// Adjustment is one candidate price modifier. Only applied adjustments
// contribute to the final total.
type Adjustment struct {
	Label   string  `json:"label"`
	Value   float64 `json:"value"`
	Applied bool    `json:"applied"`
	Reason  string  `json:"reason,omitempty"`
}

// Pricing is a three-step quote machine addressed by the "step" argument:
//
//	breakdown  -> derive labor/parts/taxes for the job
//	adjustment -> propose demand/loyalty adjustments for a breakdown
//	final      -> re-derive the breakdown and compute the total
//
// The final step never trusts a cached breakdown: it derives its own, then
// total = breakdown.total + sum(applied adjustment values) + customAdjustment.
func (t *Tools) Pricing(ctx context.Context, orgID uuid.UUID, args map[string]any) (result.Result[Output], error) {
	if err := t.authorize(ctx, orgID); err != nil {
		return result.Result[Output]{}, err
	}

	return result.Wrap(ctx, t.deps.Logger, classify("pricingTool", "PRICING_FAILED", result.SeverityHigh),
		func(ctx context.Context) (Output, error) {
			step := argStringOr(args, "step", "breakdown")
			switch step {
			case "breakdown":
				return t.priceBreakdown(ctx, args)
			case "adjustment":
				return t.priceAdjustment(ctx, args)
			case "final":
				return t.priceFinal(ctx, args)
			default:
				return nil, fmt.Errorf("pricing: invalid step %q", step)
			}
		}), nil
}

func (t *Tools) deriveBreakdown(ctx context.Context, args map[string]any) (Breakdown, error) {
	serviceType, err := argString(args, "serviceType")
	if err != nil {
		return Breakdown{}, err
	}
	details := argStringOr(args, "details", "")

	var b Breakdown
	err = t.deps.Completion.CompleteJSON(ctx, []completion.Message{
		{Role: "system", Content: `Estimate a price breakdown for an auto workshop job.
Respond as JSON: {"labor": 0.0, "parts": 0.0, "taxes": 0.0, "total": 0.0} where total is the sum.`},
		{Role: "user", Content: fmt.Sprintf("service: %s\n%s", serviceType, details)},
	}, &b)
	if err != nil {
		return Breakdown{}, err
	}
	return b, nil
}

func (t *Tools) priceBreakdown(ctx context.Context, args map[string]any) (Output, error) {
	opID := t.deps.OpLog.OperationStart(ctx, "priceBreakdown", map[string]any{"serviceType": args["serviceType"]})
	b, err := t.deriveBreakdown(ctx, args)
	if err != nil {
		t.deps.OpLog.OperationEnd(ctx, opID, "priceBreakdown", false, map[string]any{"error": err.Error()})
		return nil, err
	}
	t.deps.OpLog.OperationEnd(ctx, opID, "priceBreakdown", true, map[string]any{"total": b.Total})
	return Output{"step": "breakdown", "breakdown": b}, nil
}

func (t *Tools) priceAdjustment(ctx context.Context, args map[string]any) (Output, error) {
	opID := t.deps.OpLog.OperationStart(ctx, "priceAdjustment", nil)

	contextJSON, _ := json.Marshal(args)
	var parsed struct {
		Adjustments []Adjustment `json:"adjustments"`
	}
	err := t.deps.Completion.CompleteJSON(ctx, []completion.Message{
		{Role: "system", Content: `Propose price adjustments (loyalty discount, demand surcharge,
multi-service bundle) for this workshop quote. Mark each as applied or not.
Respond as JSON: {"adjustments": [{"label": "...", "value": 0.0, "applied": true, "reason": "..."}]}`},
		{Role: "user", Content: string(contextJSON)},
	}, &parsed)
	if err != nil {
		t.deps.OpLog.OperationEnd(ctx, opID, "priceAdjustment", false, map[string]any{"error": err.Error()})
		return nil, err
	}

	t.deps.OpLog.OperationEnd(ctx, opID, "priceAdjustment", true, map[string]any{"count": len(parsed.Adjustments)})
	return Output{"step": "adjustment", "adjustments": parsed.Adjustments}, nil
}

// parseAdjustments decodes the "adjustments" argument carried forward from
// the adjustment step.
func parseAdjustments(args map[string]any) ([]Adjustment, error) {
	raw, ok := args["adjustments"]
	if !ok {
		return nil, nil
	}
	buf, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("adjustments is not encodable: %w", err)
	}
	var adjustments []Adjustment
	if err := json.Unmarshal(buf, &adjustments); err != nil {
		return nil, fmt.Errorf("adjustments must be a list of {label, value, applied}: %w", err)
	}
	return adjustments, nil
}

func (t *Tools) priceFinal(ctx context.Context, args map[string]any) (Output, error) {
	opID := t.deps.OpLog.OperationStart(ctx, "priceFinal", nil)

	b, err := t.deriveBreakdown(ctx, args)
	if err != nil {
		t.deps.OpLog.OperationEnd(ctx, opID, "priceFinal", false, map[string]any{"error": err.Error()})
		return nil, err
	}

	adjustments, err := parseAdjustments(args)
	if err != nil {
		t.deps.OpLog.OperationEnd(ctx, opID, "priceFinal", false, map[string]any{"error": err.Error()})
		return nil, err
	}
	custom := argFloatOr(args, "customAdjustment", 0)

	total := b.Total + custom
	for _, a := range adjustments {
		if a.Applied {
			total += a.Value
		}
	}

	t.deps.OpLog.OperationEnd(ctx, opID, "priceFinal", true, map[string]any{"total": total})
	return Output{
		"step":             "final",
		"breakdown":        b,
		"adjustments":      adjustments,
		"customAdjustment": custom,
		"total":            total,
	}, nil
}
