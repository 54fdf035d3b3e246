package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gearbox-hq/gearbox/internal/auth"
	"github.com/gearbox-hq/gearbox/internal/completion"
	"github.com/gearbox-hq/gearbox/internal/ctxutil"
	"github.com/gearbox-hq/gearbox/internal/model"
	"github.com/gearbox-hq/gearbox/internal/storage"
)

// mockCompleter returns canned JSON keyed by a substring of the system prompt,
// and counts calls so auth-first tests can assert zero collaborator contact.
type mockCompleter struct {
	calls     int
	responses map[string]string // system-prompt substring -> JSON
	err       error
}

func (m *mockCompleter) Complete(ctx context.Context, messages []completion.Message) (string, error) {
	m.calls++
	return "", m.err
}

func (m *mockCompleter) CompleteJSON(ctx context.Context, messages []completion.Message, out any) error {
	m.calls++
	if m.err != nil {
		return m.err
	}
	system := messages[0].Content
	for substr, resp := range m.responses {
		if substr != "" && strings.Contains(system, substr) {
			return json.Unmarshal([]byte(resp), out)
		}
	}
	return json.Unmarshal([]byte("{}"), out)
}

type mockStore struct {
	calls         int
	experiences   []model.Experience
	latestVersion int
	history       []model.ServiceRecord
	appointments  []model.Appointment
}

func (m *mockStore) ListAppointmentsInRange(ctx context.Context, orgID uuid.UUID, from, to time.Time, limit int) ([]model.Appointment, error) {
	m.calls++
	return m.appointments, nil
}

func (m *mockStore) CreateAssessment(ctx context.Context, a model.Assessment) (model.Assessment, error) {
	m.calls++
	a.ID = uuid.New()
	return a, nil
}

func (m *mockStore) GetServiceRecords(ctx context.Context, orgID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]model.ServiceRecord, error) {
	m.calls++
	out := map[uuid.UUID]model.ServiceRecord{}
	for _, r := range m.history {
		out[r.ID] = r
	}
	return out, nil
}

func (m *mockStore) ListServiceHistoryByVehicle(ctx context.Context, orgID, vehicleID uuid.UUID, limit int) ([]model.ServiceRecord, error) {
	m.calls++
	return m.history, nil
}

func (m *mockStore) ListExperiences(ctx context.Context, orgID uuid.UUID, agentName string, limit int) ([]model.Experience, error) {
	m.calls++
	if limit < len(m.experiences) {
		return m.experiences[:limit], nil
	}
	return m.experiences, nil
}

func (m *mockStore) GetLatestPolicyVersion(ctx context.Context, orgID uuid.UUID, agentName string) (model.PolicyVersion, error) {
	m.calls++
	if m.latestVersion == 0 {
		return model.PolicyVersion{}, fmt.Errorf("storage: policy for %q: %w", agentName, storage.ErrNotFound)
	}
	return model.PolicyVersion{Version: m.latestVersion}, nil
}

func (m *mockStore) BumpPolicyVersion(ctx context.Context, orgID uuid.UUID, agentName string, metrics map[string]any) (model.PolicyVersion, error) {
	m.calls++
	m.latestVersion++
	return model.PolicyVersion{OrgID: orgID, AgentName: agentName, Version: m.latestVersion, Metrics: metrics}, nil
}

type mockMailer struct {
	calls int
	err   error
	to    string
}

func (m *mockMailer) Send(to, subject, body string) error {
	m.calls++
	m.to = to
	return m.err
}

func authedCtx(orgID uuid.UUID) context.Context {
	return ctxutil.WithClaims(context.Background(), &auth.Claims{
		AccountID: "mechanic@test",
		OrgID:     orgID,
		Role:      model.RoleMember,
	})
}

func newTestTools(completer *mockCompleter, store *mockStore, mailer *mockMailer) *Tools {
	return New(Deps{
		Store:      store,
		Completion: completer,
		Mailer:     mailer,
		Logger:     slog.New(slog.DiscardHandler),
	})
}

func TestAuthorizationRunsBeforeAnyCollaborator(t *testing.T) {
	completer := &mockCompleter{}
	store := &mockStore{}
	mailer := &mockMailer{}
	tl := newTestTools(completer, store, mailer)
	orgID := uuid.New()

	calls := map[string]Func{
		"vision":      tl.Vision,
		"calendar":    tl.Calendar,
		"email":       tl.Email,
		"sentiment":   tl.Sentiment,
		"pricing":     tl.Pricing,
		"trainPolicy": tl.TrainPolicy,
	}

	t.Run("no claims", func(t *testing.T) {
		for name, fn := range calls {
			_, err := fn(context.Background(), orgID, map[string]any{})
			assert.ErrorIs(t, err, ErrUnauthorized, name)
		}
	})

	t.Run("org mismatch", func(t *testing.T) {
		otherOrg := uuid.New()
		for name, fn := range calls {
			_, err := fn(authedCtx(otherOrg), orgID, map[string]any{})
			assert.ErrorIs(t, err, ErrUnauthorized, name)
		}
	})

	// The violation short-circuited before any external call.
	assert.Zero(t, completer.calls)
	assert.Zero(t, store.calls)
	assert.Zero(t, mailer.calls)
}

func TestEmailSendsAndWrapsFailure(t *testing.T) {
	orgID := uuid.New()
	ctx := authedCtx(orgID)

	t.Run("success", func(t *testing.T) {
		mailer := &mockMailer{}
		tl := newTestTools(&mockCompleter{}, &mockStore{}, mailer)
		res, err := tl.Email(ctx, orgID, map[string]any{
			"to": "client@example.com", "subject": "Your car is ready", "body": "Come pick it up.",
		})
		require.NoError(t, err)
		assert.True(t, res.Success)
		assert.Equal(t, "client@example.com", mailer.to)
	})

	t.Run("smtp failure becomes envelope", func(t *testing.T) {
		mailer := &mockMailer{err: errors.New("connection refused")}
		tl := newTestTools(&mockCompleter{}, &mockStore{}, mailer)
		res, err := tl.Email(ctx, orgID, map[string]any{
			"to": "client@example.com", "subject": "s", "body": "b",
		})
		require.NoError(t, err) // domain failure is never a direct error
		assert.False(t, res.Success)
		assert.Equal(t, "emailTool", res.Err.Source)
		assert.Contains(t, res.Err.Message, "connection refused")
	})

	t.Run("missing args become envelope", func(t *testing.T) {
		tl := newTestTools(&mockCompleter{}, &mockStore{}, &mockMailer{})
		res, err := tl.Email(ctx, orgID, map[string]any{"to": "client@example.com"})
		require.NoError(t, err)
		assert.False(t, res.Success)
	})
}

func TestVisionPersistsAssessmentWhenVehicleGiven(t *testing.T) {
	orgID := uuid.New()
	completer := &mockCompleter{responses: map[string]string{
		"damage inspector": `{"component": "front bumper", "severity": "moderate", "summary": "scraped paint", "findings": {"panels": 1}}`,
	}}
	store := &mockStore{}
	tl := newTestTools(completer, store, &mockMailer{})

	res, err := tl.Vision(authedCtx(orgID), orgID, map[string]any{
		"imageDescription": "scrape on front bumper",
		"vehicleId":        uuid.New().String(),
	})
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Equal(t, "front bumper", res.Data["component"])
	assert.NotEmpty(t, res.Data["assessmentId"])
}

func TestTrainPolicyBumpsVersion(t *testing.T) {
	orgID := uuid.New()
	store := &mockStore{experiences: []model.Experience{
		{Action: "schedule", Reward: 1.0},
		{Action: "defer", Reward: 0.0},
	}}
	tl := newTestTools(&mockCompleter{}, store, &mockMailer{})

	res, err := tl.TrainPolicy(authedCtx(orgID), orgID, map[string]any{
		"agentName": "SchedulerAgent", "batchSize": float64(10), "epochs": float64(2),
	})
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Equal(t, 0, res.Data["previousVersion"])
	assert.Equal(t, 1, res.Data["version"])

	metrics := res.Data["metrics"].(map[string]any)
	assert.Equal(t, 2, metrics["experienceCount"])
	assert.InDelta(t, 0.5, metrics["avgReward"], 1e-9)

	// A second run appends the next version.
	res, err = tl.TrainPolicy(authedCtx(orgID), orgID, map[string]any{"agentName": "SchedulerAgent"})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Data["version"])
	assert.Equal(t, 1, res.Data["previousVersion"])
}

func TestCalendarDefaultsToNextSevenDays(t *testing.T) {
	orgID := uuid.New()
	store := &mockStore{appointments: []model.Appointment{{ID: uuid.New()}}}
	tl := newTestTools(&mockCompleter{}, store, &mockMailer{})

	res, err := tl.Calendar(authedCtx(orgID), orgID, map[string]any{})
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Equal(t, 1, res.Data["count"])
}

func TestVectorSearchUnconfigured(t *testing.T) {
	orgID := uuid.New()
	tl := newTestTools(&mockCompleter{}, &mockStore{}, &mockMailer{})

	res, err := tl.VectorSearch(authedCtx(orgID), orgID, map[string]any{"query": "brakes"})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Err.Message, "not configured")
}
