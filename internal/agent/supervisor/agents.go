package supervisor

import (
	"context"

	"github.com/google/uuid"

	"github.com/gearbox-hq/gearbox/internal/agent/tools"
)

// AgentFn is a pluggable business-agent strategy. The defaults are canned
// markers standing in for real sub-agent pipelines; deployments replace them
// through Deps.Agents.
type AgentFn func(ctx context.Context, orgID uuid.UUID, task string) (tools.Output, error)

// Business agent names the router may emit.
const (
	AgentPerception     = "PerceptionAgent"
	AgentScheduler      = "SchedulerAgent"
	AgentDynamicPricing = "DynamicPricingAgent"
	AgentInsights       = "InsightsAgent"
	AgentRecommendation = "RecommendationAgent"
)

func stubAgent(name, note string) AgentFn {
	return func(ctx context.Context, orgID uuid.UUID, task string) (tools.Output, error) {
		return tools.Output{"agent": name, "status": "completed", "note": note}, nil
	}
}

// DefaultAgents returns the stub strategy for every business agent.
func DefaultAgents() map[string]AgentFn {
	return map[string]AgentFn{
		AgentPerception:     stubAgent(AgentPerception, "visual inspection queued"),
		AgentScheduler:      stubAgent(AgentScheduler, "scheduling pass completed"),
		AgentDynamicPricing: stubAgent(AgentDynamicPricing, "pricing model evaluated"),
		AgentInsights:       stubAgent(AgentInsights, "operational insights compiled"),
		AgentRecommendation: stubAgent(AgentRecommendation, "service recommendations drafted"),
	}
}
