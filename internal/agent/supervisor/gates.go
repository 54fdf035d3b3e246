package supervisor

import (
	"strings"

	"github.com/gearbox-hq/gearbox/internal/agent/registry"
)

// gate is a keyword predicate deciding whether a routed analysis tool
// actually runs. Gates are evaluated against the ORIGINAL task text, never
// against accumulated context, so earlier steps cannot un-gate later ones.
type gate struct {
	tool     string
	keywords []string
	args     func(task string) map[string]any
}

func (g gate) matches(task string) bool {
	lowered := strings.ToLower(task)
	for _, kw := range g.keywords {
		if strings.Contains(lowered, kw) {
			return true
		}
	}
	return false
}

func textArgs(task string) map[string]any {
	return map[string]any{"text": task}
}

// gatedTools maps routable tool-agent names to their gate and registry tool.
var gatedTools = map[string]gate{
	"SentimentTool": {
		tool:     registry.ToolSentiment,
		keywords: []string{"sentiment", "feedback"},
		args:     textArgs,
	},
	"DocumentTool": {
		tool:     registry.ToolDocument,
		keywords: []string{"document", "extract"},
		args:     textArgs,
	},
	"TranslationTool": {
		tool:     registry.ToolTranslation,
		keywords: []string{"translate", "language"},
		args:     textArgs,
	},
	"ForecastingTool": {
		tool:     registry.ToolForecast,
		keywords: []string{"forecast", "predict"},
		// No series travels with a free-text task; the tool receives an
		// empty one and projects from nothing.
		args: func(task string) map[string]any {
			return map[string]any{"series": []any{}, "metric": "demand"}
		},
	},
}
