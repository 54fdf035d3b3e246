package tools

import (
	"context"

	"github.com/google/uuid"

	"github.com/gearbox-hq/gearbox/internal/completion"
	"github.com/gearbox-hq/gearbox/internal/model"
	"github.com/gearbox-hq/gearbox/internal/result"
)

const visionPrompt = `You are a vehicle damage inspector for an auto workshop.
Given a description or URL of a vehicle photo, identify the affected component,
grade the severity as one of low, moderate, high, critical, and summarize the
visible condition. Respond as JSON:
{"component": "...", "severity": "...", "summary": "...", "findings": {...}}`

// Vision analyzes a vehicle image (by URL or description) and, when a
// vehicle ID is supplied, records the outcome as an assessment.
func (t *Tools) Vision(ctx context.Context, orgID uuid.UUID, args map[string]any) (result.Result[Output], error) {
	if err := t.authorize(ctx, orgID); err != nil {
		return result.Result[Output]{}, err
	}

	return result.Wrap(ctx, t.deps.Logger, classify("visionTool", "VISION_FAILED", result.SeverityHigh),
		func(ctx context.Context) (Output, error) {
			image := argStringOr(args, "imageUrl", argStringOr(args, "imageDescription", ""))
			opID := t.deps.OpLog.OperationStart(ctx, "analyzeVehicleImage", map[string]any{"image": image})

			var analysis struct {
				Component string         `json:"component"`
				Severity  string         `json:"severity"`
				Summary   string         `json:"summary"`
				Findings  map[string]any `json:"findings"`
			}
			err := t.deps.Completion.CompleteJSON(ctx, []completion.Message{
				{Role: "system", Content: visionPrompt},
				{Role: "user", Content: image},
			}, &analysis)
			if err != nil {
				t.deps.OpLog.OperationEnd(ctx, opID, "analyzeVehicleImage", false, map[string]any{"error": err.Error()})
				return nil, err
			}

			out := Output{
				"component": analysis.Component,
				"severity":  analysis.Severity,
				"summary":   analysis.Summary,
				"findings":  analysis.Findings,
			}

			// Persist an assessment when the caller tied the image to a vehicle.
			if vehicleID, err := argUUID(args, "vehicleId"); err == nil {
				a, err := t.deps.Store.CreateAssessment(ctx, model.Assessment{
					OrgID:      orgID,
					VehicleID:  vehicleID,
					AssessorID: "visionTool",
					Component:  analysis.Component,
					Severity:   model.AssessmentSeverity(analysis.Severity),
					Summary:    analysis.Summary,
					Findings:   analysis.Findings,
				})
				if err != nil {
					t.deps.OpLog.OperationEnd(ctx, opID, "analyzeVehicleImage", false, map[string]any{"error": err.Error()})
					return nil, err
				}
				out["assessmentId"] = a.ID.String()
			}

			t.deps.OpLog.OperationEnd(ctx, opID, "analyzeVehicleImage", true, map[string]any{"component": analysis.Component})
			return out, nil
		}), nil
}
