package supervisor

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/gearbox-hq/gearbox/internal/agent/registry"
	"github.com/gearbox-hq/gearbox/internal/agent/tools"
	"github.com/gearbox-hq/gearbox/internal/auth"
	"github.com/gearbox-hq/gearbox/internal/completion"
	"github.com/gearbox-hq/gearbox/internal/ctxutil"
	"github.com/gearbox-hq/gearbox/internal/model"
)

// mockCompleter routes Complete to a fixed routing reply and CompleteJSON to
// canned JSON (or errors) keyed by a substring of the system prompt.
type mockCompleter struct {
	completeReply string
	completeErr   error
	completeCalls int
	jsonCalls     int
	responses     map[string]string
	errs          map[string]error
}

func (m *mockCompleter) Complete(ctx context.Context, messages []completion.Message) (string, error) {
	m.completeCalls++
	return m.completeReply, m.completeErr
}

func (m *mockCompleter) CompleteJSON(ctx context.Context, messages []completion.Message, out any) error {
	m.jsonCalls++
	system := messages[0].Content
	for substr, err := range m.errs {
		if strings.Contains(system, substr) {
			return err
		}
	}
	for substr, resp := range m.responses {
		if strings.Contains(system, substr) {
			return json.Unmarshal([]byte(resp), out)
		}
	}
	return json.Unmarshal([]byte("{}"), out)
}

type mockStore struct {
	calls        int
	err          error
	trajectories []model.Trajectory
}

func (m *mockStore) CreateTrajectory(ctx context.Context, t model.Trajectory) (model.Trajectory, error) {
	m.calls++
	if m.err != nil {
		return model.Trajectory{}, m.err
	}
	t.ID = uuid.New()
	m.trajectories = append(m.trajectories, t)
	return t, nil
}

func authedCtx(orgID uuid.UUID) context.Context {
	return ctxutil.WithClaims(context.Background(), &auth.Claims{
		AccountID: "advisor@test",
		OrgID:     orgID,
		Role:      model.RoleMember,
	})
}

func routeReply(agents ...string) string {
	buf, _ := json.Marshal(map[string]any{"agents": agents})
	return string(buf)
}

func newSupervisor(mc *mockCompleter, store *mockStore, opts Options) *Supervisor {
	logger := slog.New(slog.DiscardHandler)
	reg := registry.New(tools.New(tools.Deps{Completion: mc, Logger: logger}))
	return New(Deps{
		Registry:   reg,
		Completion: mc,
		Store:      store,
		Logger:     logger,
		Options:    opts,
	})
}

func summaryResponse() map[string]string {
	return map[string]string{
		"Summarize the outcome": `{"summary": "run complete"}`,
	}
}

func TestRunRequiresMatchingOrg(t *testing.T) {
	mc := &mockCompleter{}
	store := &mockStore{}
	s := newSupervisor(mc, store, Options{})
	orgID := uuid.New()

	_, err := s.Run(context.Background(), orgID, "anything")
	assert.ErrorIs(t, err, tools.ErrUnauthorized)

	_, err = s.Run(authedCtx(uuid.New()), orgID, "anything")
	assert.ErrorIs(t, err, tools.ErrUnauthorized)

	// Nothing downstream was touched.
	assert.Zero(t, mc.completeCalls)
	assert.Zero(t, mc.jsonCalls)
	assert.Zero(t, store.calls)
}

// One failing step, one unknown agent, one succeeding tool: the run returns
// three ordered step records and a summary, not an error.
func TestRunPartialFailureContainsStepErrors(t *testing.T) {
	orgID := uuid.New()
	mc := &mockCompleter{
		completeReply: routeReply("SentimentTool", "UnknownAgent123", "DocumentTool"),
		responses: map[string]string{
			"Summarize the outcome":     `{"summary": "sentiment failed, document extracted"}`,
			"Extract structured fields": `{"fields": {"vin": "4Y1SL65848Z411439"}}`,
		},
		errs: map[string]error{
			"Classify the sentiment": errors.New("completion: status 503"),
		},
	}
	store := &mockStore{}
	s := newSupervisor(mc, store, Options{})

	res, err := s.Run(authedCtx(orgID), orgID,
		"Review the customer feedback sentiment and extract the inspection document")
	require.NoError(t, err)
	require.True(t, res.Success)

	require.Len(t, res.Data.Steps, 3)
	assert.Equal(t, model.StepFailed, res.Data.Steps[0].Status)
	assert.Contains(t, res.Data.Steps[0].Details, "503")
	assert.Equal(t, model.StepDone, res.Data.Steps[1].Status)
	assert.Equal(t, "unknown agent", res.Data.Steps[1].Details)
	assert.Equal(t, model.StepDone, res.Data.Steps[2].Status)
	assert.Equal(t, "sentiment failed, document extracted", res.Data.Summary)

	// The trajectory carries the full sequence and only the successful
	// results in context.
	require.Len(t, store.trajectories, 1)
	var content model.TrajectoryContent
	require.NoError(t, json.Unmarshal([]byte(store.trajectories[0].Content), &content))
	assert.Equal(t, []string{"SentimentTool", "UnknownAgent123", "DocumentTool"}, content.AgentSequence)
	assert.NotContains(t, content.ContextData, "SentimentToolResult")
	assert.Contains(t, content.ContextData, "DocumentToolResult")

	marker := content.ContextData["UnknownAgent123Result"].(map[string]any)
	assert.Equal(t, "unknown_agent", marker["status"])
	assert.Equal(t, "SupervisorAgent", store.trajectories[0].AgentName)
}

func TestRunMalformedRoutingRunsNothing(t *testing.T) {
	orgID := uuid.New()
	mc := &mockCompleter{
		completeReply: "I would suggest the SchedulerAgent for this.",
		responses:     summaryResponse(),
	}
	store := &mockStore{}
	s := newSupervisor(mc, store, Options{})

	res, err := s.Run(authedCtx(orgID), orgID, "book an oil change")
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Empty(t, res.Data.Steps)
	assert.Equal(t, "run complete", res.Data.Summary)
	assert.Equal(t, 1, store.calls)
}

func TestRunGateMiss(t *testing.T) {
	orgID := uuid.New()
	task := "schedule a brake job for tomorrow" // no translation keywords

	t.Run("default reports done", func(t *testing.T) {
		mc := &mockCompleter{completeReply: routeReply("TranslationTool"), responses: summaryResponse()}
		s := newSupervisor(mc, &mockStore{}, Options{})

		res, err := s.Run(authedCtx(orgID), orgID, task)
		require.NoError(t, err)
		require.Len(t, res.Data.Steps, 1)
		assert.Equal(t, model.StepDone, res.Data.Steps[0].Status)
		assert.Equal(t, "keyword gate not matched", res.Data.Steps[0].Details)
		// Only the summary hit the completion service.
		assert.Equal(t, 1, mc.jsonCalls)
	})

	t.Run("skipped when configured", func(t *testing.T) {
		mc := &mockCompleter{completeReply: routeReply("TranslationTool"), responses: summaryResponse()}
		s := newSupervisor(mc, &mockStore{}, Options{GateMissStatus: model.StepSkipped})

		res, err := s.Run(authedCtx(orgID), orgID, task)
		require.NoError(t, err)
		require.Len(t, res.Data.Steps, 1)
		assert.Equal(t, model.StepSkipped, res.Data.Steps[0].Status)
	})

	t.Run("gate matches on original task text", func(t *testing.T) {
		mc := &mockCompleter{
			completeReply: routeReply("TranslationTool"),
			responses: map[string]string{
				"Summarize the outcome": `{"summary": "translated"}`,
				"Translate the text":    `{"translation": "hola", "detectedLanguage": "en"}`,
			},
		}
		s := newSupervisor(mc, &mockStore{}, Options{})

		res, err := s.Run(authedCtx(orgID), orgID, "translate the estimate for the customer")
		require.NoError(t, err)
		require.Len(t, res.Data.Steps, 1)
		assert.Equal(t, model.StepDone, res.Data.Steps[0].Status)
	})
}

func TestRunDuplicateAgentContextKeys(t *testing.T) {
	orgID := uuid.New()

	run := func(policy ContextKeyPolicy) model.TrajectoryContent {
		mc := &mockCompleter{
			completeReply: routeReply("SchedulerAgent", "SchedulerAgent"),
			responses:     summaryResponse(),
		}
		store := &mockStore{}
		s := newSupervisor(mc, store, Options{ContextKeyPolicy: policy})

		res, err := s.Run(authedCtx(orgID), orgID, "double-book the bay")
		require.NoError(t, err)
		require.True(t, res.Success)
		require.Len(t, store.trajectories, 1)

		var content model.TrajectoryContent
		require.NoError(t, json.Unmarshal([]byte(store.trajectories[0].Content), &content))
		return content
	}

	t.Run("last wins", func(t *testing.T) {
		content := run(KeyLastWins)
		assert.Len(t, content.ContextData, 1)
		assert.Contains(t, content.ContextData, "SchedulerAgentResult")
	})

	t.Run("indexed", func(t *testing.T) {
		content := run(KeyIndexed)
		assert.Len(t, content.ContextData, 2)
		assert.Contains(t, content.ContextData, "SchedulerAgentResult")
		assert.Contains(t, content.ContextData, "SchedulerAgentResult2")
	})
}

func TestRunTopLevelFailuresBecomeEnvelope(t *testing.T) {
	orgID := uuid.New()

	t.Run("routing transport failure", func(t *testing.T) {
		mc := &mockCompleter{completeErr: errors.New("completion: connection refused")}
		store := &mockStore{}
		s := newSupervisor(mc, store, Options{})

		res, err := s.Run(authedCtx(orgID), orgID, "anything at all")
		require.NoError(t, err)
		assert.False(t, res.Success)
		assert.Equal(t, "SupervisorAgent", res.Err.Source)
		assert.Contains(t, res.Err.Message, "route")
		assert.Zero(t, store.calls)
	})

	t.Run("persistence failure", func(t *testing.T) {
		mc := &mockCompleter{completeReply: routeReply(), responses: summaryResponse()}
		store := &mockStore{err: errors.New("storage: create trajectory: connection reset")}
		s := newSupervisor(mc, store, Options{})

		res, err := s.Run(authedCtx(orgID), orgID, "anything at all")
		require.NoError(t, err)
		assert.False(t, res.Success)
		assert.Contains(t, res.Err.Message, "persist trajectory")
	})

	t.Run("empty task", func(t *testing.T) {
		mc := &mockCompleter{}
		s := newSupervisor(mc, &mockStore{}, Options{})

		res, err := s.Run(authedCtx(orgID), orgID, "   ")
		require.NoError(t, err)
		assert.False(t, res.Success)
		assert.Contains(t, res.Err.Message, "empty task")
		assert.Zero(t, mc.completeCalls)
	})
}

func TestRunCapsRoutedSequence(t *testing.T) {
	orgID := uuid.New()
	mc := &mockCompleter{
		completeReply: routeReply("SchedulerAgent", "InsightsAgent", "PerceptionAgent"),
		responses:     summaryResponse(),
	}
	s := newSupervisor(mc, &mockStore{}, Options{MaxSteps: 2})

	res, err := s.Run(authedCtx(orgID), orgID, "do everything")
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Len(t, res.Data.Steps, 2)
	assert.Equal(t, "SchedulerAgent", res.Data.Steps[0].Label)
	assert.Equal(t, "InsightsAgent", res.Data.Steps[1].Label)
}

func TestDefaultAgentsCoverRoster(t *testing.T) {
	agents := DefaultAgents()
	for _, name := range []string{
		AgentPerception, AgentScheduler, AgentDynamicPricing, AgentInsights, AgentRecommendation,
	} {
		fn, ok := agents[name]
		require.True(t, ok, name)
		out, err := fn(context.Background(), uuid.New(), "task")
		require.NoError(t, err)
		assert.Equal(t, name, out["agent"])
	}
}

func TestRunRecordsDurationMetric(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	prev := otel.GetMeterProvider()
	otel.SetMeterProvider(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))
	t.Cleanup(func() { otel.SetMeterProvider(prev) })

	mc := &mockCompleter{
		completeReply: routeReply("SchedulerAgent"),
		responses:     summaryResponse(),
	}
	store := &mockStore{}
	s := newSupervisor(mc, store, Options{})
	orgID := uuid.New()

	res, err := s.Run(authedCtx(orgID), orgID, "reshuffle tomorrow's schedule")
	require.NoError(t, err)
	require.True(t, res.Success)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	found := false
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == "supervisor.run.duration" {
				found = true
			}
		}
	}
	assert.True(t, found, "supervisor.run.duration histogram not recorded")
}
