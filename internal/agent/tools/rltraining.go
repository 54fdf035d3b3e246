package tools

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/gearbox-hq/gearbox/internal/model"
	"github.com/gearbox-hq/gearbox/internal/result"
	"github.com/gearbox-hq/gearbox/internal/storage"
)

// placeholderMetrics is the default TrainingMetricsFn. The interface is the
// contract; these numbers only prove the pipeline moved data.
func placeholderMetrics(experiences []model.Experience, epochs int) map[string]any {
	var totalReward float64
	for _, e := range experiences {
		totalReward += e.Reward
	}
	avg := 0.0
	if len(experiences) > 0 {
		avg = totalReward / float64(len(experiences))
	}
	return map[string]any{
		"experienceCount": len(experiences),
		"epochs":          epochs,
		"avgReward":       avg,
	}
}

// TrainPolicy runs one offline training pass for a named agent: read the
// newest experience batch, compute metrics, append the next policy version.
func (t *Tools) TrainPolicy(ctx context.Context, orgID uuid.UUID, args map[string]any) (result.Result[Output], error) {
	if err := t.authorize(ctx, orgID); err != nil {
		return result.Result[Output]{}, err
	}

	return result.Wrap(ctx, t.deps.Logger, classify("rlTrainingTool", "TRAINING_FAILED", result.SeverityMedium),
		func(ctx context.Context) (Output, error) {
			agentName, err := argString(args, "agentName")
			if err != nil {
				return nil, err
			}
			batchSize := argIntOr(args, "batchSize", 32)
			epochs := argIntOr(args, "epochs", 1)

			opID := t.deps.OpLog.OperationStart(ctx, "trainPolicy", map[string]any{
				"agentName": agentName, "batchSize": batchSize, "epochs": epochs,
			})

			experiences, err := t.deps.Store.ListExperiences(ctx, orgID, agentName, batchSize*epochs)
			if err != nil {
				t.deps.OpLog.OperationEnd(ctx, opID, "trainPolicy", false, map[string]any{"error": err.Error()})
				return nil, err
			}

			previousVersion := 0
			if latest, err := t.deps.Store.GetLatestPolicyVersion(ctx, orgID, agentName); err == nil {
				previousVersion = latest.Version
			} else if !errors.Is(err, storage.ErrNotFound) {
				t.deps.OpLog.OperationEnd(ctx, opID, "trainPolicy", false, map[string]any{"error": err.Error()})
				return nil, err
			}

			metrics := t.deps.Metrics(experiences, epochs)
			next, err := t.deps.Store.BumpPolicyVersion(ctx, orgID, agentName, metrics)
			if err != nil {
				t.deps.OpLog.OperationEnd(ctx, opID, "trainPolicy", false, map[string]any{"error": err.Error()})
				return nil, err
			}

			t.deps.OpLog.OperationEnd(ctx, opID, "trainPolicy", true, map[string]any{"version": next.Version})
			return Output{
				"agentName":       agentName,
				"previousVersion": previousVersion,
				"version":         next.Version,
				"metrics":         metrics,
			}, nil
		}), nil
}
