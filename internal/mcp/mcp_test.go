package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/gearbox-hq/gearbox/internal/agent/registry"
	"github.com/gearbox-hq/gearbox/internal/agent/supervisor"
	"github.com/gearbox-hq/gearbox/internal/agent/tools"
	"github.com/gearbox-hq/gearbox/internal/auth"
	"github.com/gearbox-hq/gearbox/internal/completion"
	"github.com/gearbox-hq/gearbox/internal/ctxutil"
	"github.com/gearbox-hq/gearbox/internal/model"
)

// stubCompleter answers based on a substring of the system prompt, so each
// completion call site can be scripted independently.
type stubCompleter struct {
	replies map[string]string
}

func (c *stubCompleter) find(messages []completion.Message) (string, error) {
	if len(messages) == 0 {
		return "", fmt.Errorf("no messages")
	}
	for key, reply := range c.replies {
		if strings.Contains(messages[0].Content, key) {
			return reply, nil
		}
	}
	return "", fmt.Errorf("no scripted reply for prompt %q", messages[0].Content)
}

func (c *stubCompleter) Complete(_ context.Context, messages []completion.Message) (string, error) {
	return c.find(messages)
}

func (c *stubCompleter) CompleteJSON(_ context.Context, messages []completion.Message, out any) error {
	reply, err := c.find(messages)
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(reply), out)
}

type stubStore struct {
	trajectories []model.Trajectory
}

func (s *stubStore) CreateTrajectory(_ context.Context, tr model.Trajectory) (model.Trajectory, error) {
	s.trajectories = append(s.trajectories, tr)
	return tr, nil
}

func newTestServer(t *testing.T, sc *stubCompleter) *Server {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	toolset := tools.New(tools.Deps{Completion: sc, Logger: logger})
	reg := registry.New(toolset)
	sup := supervisor.New(supervisor.Deps{
		Registry:   reg,
		Completion: sc,
		Store:      &stubStore{},
		Logger:     logger,
	})
	return New(reg, sup, logger, "test")
}

var testOrg = uuid.New()

func authedCtx() context.Context {
	return ctxutil.WithClaims(context.Background(), &auth.Claims{
		AccountID: "mechanic-1",
		OrgID:     testOrg,
		Role:      model.RoleMember,
	})
}

func callRequest(name string, args map[string]any) mcplib.CallToolRequest {
	return mcplib.CallToolRequest{
		Params: mcplib.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func textOf(t *testing.T, res *mcplib.CallToolResult) string {
	t.Helper()
	require.Len(t, res.Content, 1)
	tc, ok := res.Content[0].(mcplib.TextContent)
	require.True(t, ok, "expected text content, got %T", res.Content[0])
	return tc.Text
}

func TestToolsRequireAuthentication(t *testing.T) {
	s := newTestServer(t, &stubCompleter{})

	for name, handler := range map[string]func(context.Context, mcplib.CallToolRequest) (*mcplib.CallToolResult, error){
		"gearbox_supervisor":     s.handleSupervisor,
		"gearbox_price_quote":    s.handlePriceQuote,
		"gearbox_search_history": s.handleSearchHistory,
	} {
		res, err := handler(context.Background(), callRequest(name, map[string]any{
			"task": "x", "service_type": "x", "query": "x",
		}))
		require.NoError(t, err, name)
		assert.True(t, res.IsError, name)
		assert.Contains(t, textOf(t, res), "authentication required", name)
	}
}

func TestSupervisorToolRunsTask(t *testing.T) {
	sc := &stubCompleter{replies: map[string]string{
		"dispatch tasks":        `{"agents": ["SchedulerAgent"]}`,
		"Summarize the outcome": `{"summary": "rescheduled two appointments"}`,
	}}
	s := newTestServer(t, sc)

	res, err := s.handleSupervisor(authedCtx(), callRequest("gearbox_supervisor", map[string]any{
		"task": "reshuffle tomorrow's schedule",
	}))
	require.NoError(t, err)
	require.False(t, res.IsError)

	var envelope struct {
		Success bool `json:"success"`
		Data    struct {
			Steps   []model.TaskStep `json:"steps"`
			Summary string           `json:"summary"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(textOf(t, res)), &envelope))
	assert.True(t, envelope.Success)
	require.Len(t, envelope.Data.Steps, 1)
	assert.Equal(t, "SchedulerAgent", envelope.Data.Steps[0].Label)
	assert.Equal(t, "rescheduled two appointments", envelope.Data.Summary)
}

func TestSupervisorToolValidatesTask(t *testing.T) {
	s := newTestServer(t, &stubCompleter{})

	res, err := s.handleSupervisor(authedCtx(), callRequest("gearbox_supervisor", map[string]any{
		"task": "   ",
	}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, textOf(t, res), "task is required")
}

func TestPriceQuoteFinalTotal(t *testing.T) {
	sc := &stubCompleter{replies: map[string]string{
		"price breakdown": `{"labor": 120, "parts": 60, "taxes": 18, "total": 198}`,
	}}
	s := newTestServer(t, sc)

	res, err := s.handlePriceQuote(authedCtx(), callRequest("gearbox_price_quote", map[string]any{
		"service_type":      "brake_service",
		"custom_adjustment": -20.0,
	}))
	require.NoError(t, err)
	require.False(t, res.IsError)

	var envelope struct {
		Success bool           `json:"success"`
		Data    map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(textOf(t, res)), &envelope))
	assert.True(t, envelope.Success)
	assert.Equal(t, "final", envelope.Data["step"])
	assert.InDelta(t, 178.0, envelope.Data["total"], 0.001)
}

func TestPriceQuoteRejectsUnknownStep(t *testing.T) {
	s := newTestServer(t, &stubCompleter{})

	res, err := s.handlePriceQuote(authedCtx(), callRequest("gearbox_price_quote", map[string]any{
		"service_type": "oil_change",
		"step":         "haggle",
	}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, textOf(t, res), "step must be")
}

func TestSearchHistoryUnconfiguredReturnsEnvelopeFailure(t *testing.T) {
	// No searcher or embedder wired: the tool reports failure inside the
	// envelope rather than as a protocol error.
	s := newTestServer(t, &stubCompleter{})

	res, err := s.handleSearchHistory(authedCtx(), callRequest("gearbox_search_history", map[string]any{
		"query": "grinding noise when braking",
	}))
	require.NoError(t, err)
	require.False(t, res.IsError)

	var envelope struct {
		Success bool `json:"success"`
		Err     *struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(textOf(t, res)), &envelope))
	assert.False(t, envelope.Success)
	require.NotNil(t, envelope.Err)
	assert.Equal(t, "VECTOR_SEARCH_FAILED", envelope.Err.Code)
}

func TestSearchHistoryRequiresQuery(t *testing.T) {
	s := newTestServer(t, &stubCompleter{})

	res, err := s.handleSearchHistory(authedCtx(), callRequest("gearbox_search_history", nil))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, textOf(t, res), "query is required")
}
