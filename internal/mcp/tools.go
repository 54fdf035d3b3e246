package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/gearbox-hq/gearbox/internal/agent/registry"
	"github.com/gearbox-hq/gearbox/internal/agent/tools"
	"github.com/gearbox-hq/gearbox/internal/ctxutil"
	"github.com/gearbox-hq/gearbox/internal/model"
)

func (s *Server) registerTools() {
	// gearbox_supervisor — run a free-text task through the supervisor.
	s.mcpServer.AddTool(
		mcplib.NewTool("gearbox_supervisor",
			mcplib.WithDescription(`Run a workshop task through the supervisor agent.

The supervisor routes the task to specialist agents (perception, scheduling,
pricing, insights, recommendations) and gated analysis tools, executes them in
sequence, and returns the per-step outcomes plus a summary.

WHEN TO USE: For any multi-step workshop request stated in natural language —
"inspect the uploaded damage photos and schedule a follow-up", "forecast next
week's demand and adjust pricing".

WHAT YOU GET BACK: A result envelope. success=false with an err block means
the run itself failed; individual step failures appear inside data.steps with
status "failed" and the run still completes.`),
			mcplib.WithDestructiveHintAnnotation(false),
			mcplib.WithOpenWorldHintAnnotation(true),
			mcplib.WithString("task",
				mcplib.Description("The task to orchestrate, in natural language"),
				mcplib.Required(),
			),
		),
		s.handleSupervisor,
	)

	// gearbox_price_quote — one-shot final quote for a service job.
	s.mcpServer.AddTool(
		mcplib.NewTool("gearbox_price_quote",
			mcplib.WithDescription(`Produce a price quote for a workshop service job.

Derives a labor/parts/taxes breakdown for the service type and computes the
final total, optionally shifted by a custom adjustment. Use step="breakdown"
to get just the decomposition without a total.`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("service_type",
				mcplib.Description("The kind of job to quote, e.g. brake_service, oil_change, timing_belt"),
				mcplib.Required(),
			),
			mcplib.WithString("details",
				mcplib.Description("Optional free-text details about the job (vehicle, parts, urgency)"),
			),
			mcplib.WithString("step",
				mcplib.Description("Quote step to run: breakdown, adjustment, or final"),
				mcplib.DefaultString("final"),
			),
			mcplib.WithNumber("custom_adjustment",
				mcplib.Description("Flat amount added to the final total (negative for discounts)"),
				mcplib.DefaultNumber(0),
			),
		),
		s.handlePriceQuote,
	)

	// gearbox_search_history — semantic search over past service jobs.
	s.mcpServer.AddTool(
		mcplib.NewTool("gearbox_search_history",
			mcplib.WithDescription(`Search the org's service history by meaning, not keywords.

Embeds the query and returns the most similar past service records, re-scored
by recency. Useful for precedent lookups: "grinding noise when braking",
"coolant leak after timing belt change".`),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithString("query",
				mcplib.Description("Natural language description of the job or symptom to look for"),
				mcplib.Required(),
			),
			mcplib.WithString("vehicle_id",
				mcplib.Description("Optional: restrict results to one vehicle (UUID)"),
			),
			mcplib.WithString("service_type",
				mcplib.Description("Optional: restrict results to one service type"),
			),
			mcplib.WithNumber("limit",
				mcplib.Description("Maximum number of records to return"),
				mcplib.Min(1),
				mcplib.Max(50),
				mcplib.DefaultNumber(5),
			),
		),
		s.handleSearchHistory,
	)
}

func (s *Server) handleSupervisor(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	claims, ok := ctxutil.Claims(ctx)
	if !ok {
		return errorResult("authentication required"), nil
	}

	task := strings.TrimSpace(request.GetString("task", ""))
	if task == "" {
		return errorResult("task is required"), nil
	}
	if len(task) > model.MaxTaskLen {
		return errorResult(fmt.Sprintf("task exceeds %d characters", model.MaxTaskLen)), nil
	}

	res, err := s.supervisor.Run(ctx, claims.OrgID, task)
	if err != nil {
		if errors.Is(err, tools.ErrUnauthorized) {
			return errorResult("not authorized for this org"), nil
		}
		s.logger.Error("mcp supervisor run failed", "error", err)
		return errorResult(fmt.Sprintf("supervisor run failed: %v", err)), nil
	}

	return jsonResult(res)
}

func (s *Server) handlePriceQuote(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	claims, ok := ctxutil.Claims(ctx)
	if !ok {
		return errorResult("authentication required"), nil
	}

	serviceType := request.GetString("service_type", "")
	if serviceType == "" {
		return errorResult("service_type is required"), nil
	}
	step := request.GetString("step", "final")
	switch step {
	case "breakdown", "adjustment", "final":
	default:
		return errorResult("step must be breakdown, adjustment, or final"), nil
	}

	args := map[string]any{
		"serviceType":      serviceType,
		"step":             step,
		"customAdjustment": request.GetFloat("custom_adjustment", 0),
	}
	if details := request.GetString("details", ""); details != "" {
		args["details"] = details
	}

	fn, err := s.registry.Lookup(registry.ToolPricing)
	if err != nil {
		return errorResult(fmt.Sprintf("pricing tool unavailable: %v", err)), nil
	}
	res, err := fn(ctx, claims.OrgID, args)
	if err != nil {
		if errors.Is(err, tools.ErrUnauthorized) {
			return errorResult("not authorized for this org"), nil
		}
		s.logger.Error("mcp price quote failed", "error", err)
		return errorResult(fmt.Sprintf("price quote failed: %v", err)), nil
	}

	return jsonResult(res)
}

func (s *Server) handleSearchHistory(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	claims, ok := ctxutil.Claims(ctx)
	if !ok {
		return errorResult("authentication required"), nil
	}

	query := strings.TrimSpace(request.GetString("query", ""))
	if query == "" {
		return errorResult("query is required"), nil
	}

	args := map[string]any{
		"query": query,
		"limit": request.GetInt("limit", 5),
	}
	if v := request.GetString("vehicle_id", ""); v != "" {
		args["vehicleId"] = v
	}
	if st := request.GetString("service_type", ""); st != "" {
		args["serviceType"] = st
	}

	// Retryable variant: vector search rides the transient-failure policy.
	fn, err := s.registry.Retryable(registry.ToolVectorSearch)
	if err != nil {
		return errorResult(fmt.Sprintf("search tool unavailable: %v", err)), nil
	}
	res, err := fn(ctx, claims.OrgID, args)
	if err != nil {
		if errors.Is(err, tools.ErrUnauthorized) {
			return errorResult("not authorized for this org"), nil
		}
		s.logger.Error("mcp history search failed", "error", err)
		return errorResult(fmt.Sprintf("history search failed: %v", err)), nil
	}

	return jsonResult(res)
}

// jsonResult renders any value as an indented JSON text content block.
func jsonResult(v any) (*mcplib.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errorResult(fmt.Sprintf("failed to encode result: %v", err)), nil
	}
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: string(data)},
		},
	}, nil
}
