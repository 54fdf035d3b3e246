package tools

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/gearbox-hq/gearbox/internal/completion"
	"github.com/gearbox-hq/gearbox/internal/result"
)

// Sentiment grades the tone of customer feedback.
func (t *Tools) Sentiment(ctx context.Context, orgID uuid.UUID, args map[string]any) (result.Result[Output], error) {
	if err := t.authorize(ctx, orgID); err != nil {
		return result.Result[Output]{}, err
	}

	return result.Wrap(ctx, t.deps.Logger, classify("sentimentTool", "SENTIMENT_FAILED", result.SeverityLow),
		func(ctx context.Context) (Output, error) {
			text, err := argString(args, "text")
			if err != nil {
				return nil, err
			}

			opID := t.deps.OpLog.OperationStart(ctx, "analyzeSentiment", nil)

			var parsed struct {
				Sentiment string  `json:"sentiment"`
				Score     float64 `json:"score"`
				Reason    string  `json:"reason"`
			}
			err = t.deps.Completion.CompleteJSON(ctx, []completion.Message{
				{Role: "system", Content: `Classify the sentiment of customer feedback for an auto workshop.
Respond as JSON: {"sentiment": "positive|neutral|negative", "score": -1.0..1.0, "reason": "..."}`},
				{Role: "user", Content: text},
			}, &parsed)
			if err != nil {
				t.deps.OpLog.OperationEnd(ctx, opID, "analyzeSentiment", false, map[string]any{"error": err.Error()})
				return nil, err
			}

			t.deps.OpLog.OperationEnd(ctx, opID, "analyzeSentiment", true, map[string]any{"sentiment": parsed.Sentiment})
			return Output{"sentiment": parsed.Sentiment, "score": parsed.Score, "reason": parsed.Reason}, nil
		}), nil
}

// Document extracts structured fields from a document or generates one from
// structured data, selected by the "mode" argument.
func (t *Tools) Document(ctx context.Context, orgID uuid.UUID, args map[string]any) (result.Result[Output], error) {
	if err := t.authorize(ctx, orgID); err != nil {
		return result.Result[Output]{}, err
	}

	return result.Wrap(ctx, t.deps.Logger, classify("documentTool", "DOCUMENT_FAILED", result.SeverityMedium),
		func(ctx context.Context) (Output, error) {
			mode := argStringOr(args, "mode", "extract")
			text, err := argString(args, "text")
			if err != nil {
				return nil, err
			}

			var system string
			switch mode {
			case "extract":
				system = `Extract structured fields from this workshop document (work order,
inspection report, or parts list). Respond as JSON: {"fields": {...}}`
			case "generate":
				system = `Generate a short workshop document from the provided data.
Respond as JSON: {"document": "..."}`
			default:
				return nil, fmt.Errorf("document: invalid mode %q", mode)
			}

			opID := t.deps.OpLog.OperationStart(ctx, "processDocument", map[string]any{"mode": mode})

			var parsed map[string]any
			err = t.deps.Completion.CompleteJSON(ctx, []completion.Message{
				{Role: "system", Content: system},
				{Role: "user", Content: text},
			}, &parsed)
			if err != nil {
				t.deps.OpLog.OperationEnd(ctx, opID, "processDocument", false, map[string]any{"error": err.Error()})
				return nil, err
			}

			t.deps.OpLog.OperationEnd(ctx, opID, "processDocument", true, nil)
			return Output{"mode": mode, "result": parsed}, nil
		}), nil
}

// Translation translates customer-facing text, detecting the source language
// when none is supplied.
func (t *Tools) Translation(ctx context.Context, orgID uuid.UUID, args map[string]any) (result.Result[Output], error) {
	if err := t.authorize(ctx, orgID); err != nil {
		return result.Result[Output]{}, err
	}

	return result.Wrap(ctx, t.deps.Logger, classify("translationTool", "TRANSLATION_FAILED", result.SeverityLow),
		func(ctx context.Context) (Output, error) {
			text, err := argString(args, "text")
			if err != nil {
				return nil, err
			}
			target := argStringOr(args, "targetLanguage", "en")

			opID := t.deps.OpLog.OperationStart(ctx, "translateText", map[string]any{"target": target})

			var parsed struct {
				Translation      string `json:"translation"`
				DetectedLanguage string `json:"detectedLanguage"`
			}
			err = t.deps.Completion.CompleteJSON(ctx, []completion.Message{
				{Role: "system", Content: fmt.Sprintf(`Translate the text to %s. Detect the source language.
Respond as JSON: {"translation": "...", "detectedLanguage": "..."}`, target)},
				{Role: "user", Content: text},
			}, &parsed)
			if err != nil {
				t.deps.OpLog.OperationEnd(ctx, opID, "translateText", false, map[string]any{"error": err.Error()})
				return nil, err
			}

			t.deps.OpLog.OperationEnd(ctx, opID, "translateText", true, map[string]any{"detected": parsed.DetectedLanguage})
			return Output{
				"translation":      parsed.Translation,
				"detectedLanguage": parsed.DetectedLanguage,
				"targetLanguage":   target,
			}, nil
		}), nil
}
