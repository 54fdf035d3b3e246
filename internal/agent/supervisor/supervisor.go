// Package supervisor implements the orchestration state machine: route a
// free-text task to a sequence of agents and tools, execute them in order
// with partial-failure tolerance, summarize, and persist the trajectory.
package supervisor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"

	"github.com/gearbox-hq/gearbox/internal/agent/registry"
	"github.com/gearbox-hq/gearbox/internal/agent/tools"
	"github.com/gearbox-hq/gearbox/internal/completion"
	"github.com/gearbox-hq/gearbox/internal/ctxutil"
	"github.com/gearbox-hq/gearbox/internal/model"
	"github.com/gearbox-hq/gearbox/internal/oplog"
	"github.com/gearbox-hq/gearbox/internal/result"
)

// ContextKeyPolicy decides how a duplicate routed agent lands in the task
// context.
type ContextKeyPolicy string

const (
	// KeyLastWins overwrites the previous result under "<agent>Result".
	KeyLastWins ContextKeyPolicy = "last-wins"
	// KeyIndexed stores repeats under "<agent>Result2", "<agent>Result3", ...
	KeyIndexed ContextKeyPolicy = "indexed"
)

// Options tune run behavior. The zero value reproduces legacy semantics.
type Options struct {
	// GateMissStatus is the step status recorded when a routed tool's keyword
	// gate does not match the task text. Defaults to StepDone; StepSkipped
	// makes the miss visible to callers.
	GateMissStatus model.StepStatus
	// ContextKeyPolicy resolves duplicate routed agents. Defaults to
	// KeyLastWins.
	ContextKeyPolicy ContextKeyPolicy
	// MaxSteps caps how many routed agents execute in one run. Defaults to 10.
	MaxSteps int
}

// Store is the slice of the storage layer the supervisor persists to.
type Store interface {
	CreateTrajectory(ctx context.Context, t model.Trajectory) (model.Trajectory, error)
}

// Deps carries the supervisor's collaborators.
type Deps struct {
	Registry   *registry.Registry
	Completion tools.Completer
	Store      Store
	Logger     *slog.Logger
	OpLog      *oplog.Logger
	// Agents overrides the default business-agent strategies when set.
	Agents  map[string]AgentFn
	Options Options
}

// RunOutput is the payload of a successful run envelope.
type RunOutput struct {
	Steps   []model.TaskStep `json:"steps"`
	Summary string           `json:"summary"`
}

// Supervisor orchestrates one task at a time per call; instances are safe
// for concurrent use since each run owns its own context map and step list.
type Supervisor struct {
	registry   *registry.Registry
	completion tools.Completer
	store      Store
	logger     *slog.Logger
	oplog      *oplog.Logger
	agents     map[string]AgentFn
	opts       Options
}

// New wires a supervisor, filling defaults for every optional dependency.
func New(deps Deps) *Supervisor {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.OpLog == nil {
		deps.OpLog = oplog.New("SupervisorAgent", deps.Logger, nil)
	}
	if deps.Agents == nil {
		deps.Agents = DefaultAgents()
	}
	if deps.Options.GateMissStatus == "" {
		deps.Options.GateMissStatus = model.StepDone
	}
	if deps.Options.ContextKeyPolicy == "" {
		deps.Options.ContextKeyPolicy = KeyLastWins
	}
	if deps.Options.MaxSteps <= 0 {
		deps.Options.MaxSteps = 10
	}
	return &Supervisor{
		registry:   deps.Registry,
		completion: deps.Completion,
		store:      deps.Store,
		logger:     deps.Logger,
		oplog:      deps.OpLog,
		agents:     deps.Agents,
		opts:       deps.Options,
	}
}

// Run executes the full orchestration for one task. Authorization violations
// return a direct error before anything else happens; every other failure
// mode travels inside the envelope. Individual step failures never abort the
// run: they are recorded in the step list and execution continues.
func (s *Supervisor) Run(ctx context.Context, orgID uuid.UUID, task string) (result.Result[RunOutput], error) {
	if err := s.authorize(ctx, orgID); err != nil {
		return result.Result[RunOutput]{}, err
	}

	start := time.Now()
	res := result.Wrap(ctx, s.logger,
		result.Classification{Source: "SupervisorAgent", Code: "SUPERVISOR_FAILED", Severity: result.SeverityHigh},
		func(ctx context.Context) (RunOutput, error) {
			var zero RunOutput

			task = strings.TrimSpace(task)
			if task == "" {
				return zero, fmt.Errorf("supervisor: empty task")
			}
			if len(task) > model.MaxTaskLen {
				return zero, fmt.Errorf("supervisor: task exceeds %d bytes", model.MaxTaskLen)
			}

			opID := s.oplog.OperationStart(ctx, "superviseTask", map[string]any{"taskLength": len(task)})

			sequence, err := s.route(ctx, task)
			if err != nil {
				s.oplog.OperationEnd(ctx, opID, "superviseTask", false, map[string]any{"error": err.Error()})
				return zero, fmt.Errorf("supervisor: route: %w", err)
			}
			if len(sequence) > s.opts.MaxSteps {
				s.oplog.Warn(ctx, "truncating routed sequence", map[string]any{
					"routed": len(sequence), "maxSteps": s.opts.MaxSteps,
				})
				sequence = sequence[:s.opts.MaxSteps]
			}

			steps, contextData := s.execute(ctx, orgID, task, sequence)

			summary, err := s.summarize(ctx, task, contextData)
			if err != nil {
				s.oplog.OperationEnd(ctx, opID, "superviseTask", false, map[string]any{"error": err.Error()})
				return zero, fmt.Errorf("supervisor: summarize: %w", err)
			}

			if err := s.persist(ctx, orgID, task, sequence, contextData, summary); err != nil {
				s.oplog.OperationEnd(ctx, opID, "superviseTask", false, map[string]any{"error": err.Error()})
				return zero, fmt.Errorf("supervisor: persist trajectory: %w", err)
			}

			s.oplog.OperationEnd(ctx, opID, "superviseTask", true, map[string]any{
				"steps": len(steps), "agents": sequence,
			})
			return RunOutput{Steps: steps, Summary: summary}, nil
		})

	if hist, err := runMeter.Float64Histogram("supervisor.run.duration",
		otelmetric.WithUnit("ms")); err == nil {
		hist.Record(ctx, float64(time.Since(start).Milliseconds()), otelmetric.WithAttributes(
			attribute.Bool("success", res.Success),
		))
	}
	return res, nil
}

var runMeter = otel.GetMeterProvider().Meter("gearbox/supervisor")

func (s *Supervisor) authorize(ctx context.Context, orgID uuid.UUID) error {
	claims, ok := ctxutil.Claims(ctx)
	if !ok {
		return fmt.Errorf("%w: no credentials in context", tools.ErrUnauthorized)
	}
	if orgID == uuid.Nil {
		return fmt.Errorf("%w: missing org", tools.ErrUnauthorized)
	}
	if claims.OrgID != orgID {
		return fmt.Errorf("%w: org mismatch", tools.ErrUnauthorized)
	}
	return nil
}

// route asks the completion service which agents apply, in order. A reply
// that is not the expected JSON shape routes nothing; only a transport
// failure aborts the run.
func (s *Supervisor) route(ctx context.Context, task string) ([]string, error) {
	reply, err := s.completion.Complete(ctx, []completion.Message{
		{Role: "system", Content: routePrompt(s.roster())},
		{Role: "user", Content: task},
	})
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Agents []string `json:"agents"`
	}
	if err := json.Unmarshal([]byte(reply), &parsed); err != nil {
		s.oplog.Warn(ctx, "unroutable completion reply", map[string]any{"error": err.Error()})
		return nil, nil
	}
	return parsed.Agents, nil
}

// roster lists every name the router is allowed to emit.
func (s *Supervisor) roster() []string {
	names := make([]string, 0, len(s.agents)+len(gatedTools))
	for name := range s.agents {
		names = append(names, name)
	}
	for name := range gatedTools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func routePrompt(roster []string) string {
	return fmt.Sprintf(`You dispatch tasks for a vehicle-service workshop.
Available agents: %s.
Reply ONLY with JSON: {"agents": ["AgentName", ...]} listing the agents that
apply to the task, in execution order. Reply {"agents": []} if none apply.`,
		strings.Join(roster, ", "))
}

// execute runs the routed sequence in strict order, accumulating step records
// and the shared task context.
func (s *Supervisor) execute(ctx context.Context, orgID uuid.UUID, task string, sequence []string) ([]model.TaskStep, map[string]any) {
	steps := make([]model.TaskStep, 0, len(sequence))
	contextData := make(map[string]any)
	seen := make(map[string]int)

	for _, name := range sequence {
		step := model.TaskStep{Label: name, Status: model.StepRunning}
		key := s.contextKey(name, seen[name])
		seen[name]++

		switch {
		case s.agents[name] != nil:
			out, err := s.agents[name](ctx, orgID, task)
			if err != nil {
				step.Status = model.StepFailed
				step.Details = err.Error()
				s.oplog.Error(ctx, "agent step failed", map[string]any{"agent": name, "error": err.Error()})
				break
			}
			contextData[key] = out
			step.Status = model.StepDone

		case hasGate(name):
			g := gatedTools[name]
			if !g.matches(task) {
				step.Status = s.opts.GateMissStatus
				step.Details = "keyword gate not matched"
				break
			}
			fn, err := s.registry.Lookup(g.tool)
			if err != nil {
				step.Status = model.StepFailed
				step.Details = err.Error()
				break
			}
			res, err := fn(ctx, orgID, g.args(task))
			if err != nil {
				step.Status = model.StepFailed
				step.Details = err.Error()
				s.oplog.Error(ctx, "tool step failed", map[string]any{"agent": name, "error": err.Error()})
				break
			}
			if !res.Success {
				step.Status = model.StepFailed
				step.Details = res.Err.Message
				s.oplog.Error(ctx, "tool step failed", map[string]any{"agent": name, "error": res.Err.Message})
				break
			}
			contextData[key] = res.Data
			step.Status = model.StepDone

		default:
			// Closed dispatch: names outside the roster never execute
			// anything, but the run carries on.
			contextData[key] = map[string]any{"status": "unknown_agent", "data": nil}
			step.Status = model.StepDone
			step.Details = "unknown agent"
			s.oplog.Warn(ctx, "routed unknown agent", map[string]any{"agent": name})
		}

		steps = append(steps, step)
	}
	return steps, contextData
}

func hasGate(name string) bool {
	_, ok := gatedTools[name]
	return ok
}

// contextKey derives the task-context key for the nth occurrence of an agent.
func (s *Supervisor) contextKey(name string, occurrence int) string {
	if occurrence == 0 || s.opts.ContextKeyPolicy == KeyLastWins {
		return name + "Result"
	}
	return fmt.Sprintf("%sResult%d", name, occurrence+1)
}

func (s *Supervisor) summarize(ctx context.Context, task string, contextData map[string]any) (string, error) {
	contextJSON, err := json.Marshal(contextData)
	if err != nil {
		return "", fmt.Errorf("encode context: %w", err)
	}

	var parsed struct {
		Summary string `json:"summary"`
	}
	err = s.completion.CompleteJSON(ctx, []completion.Message{
		{Role: "system", Content: `Summarize the outcome of this workshop orchestration run in two or
three sentences for a service advisor. Respond as JSON: {"summary": "..."}`},
		{Role: "user", Content: fmt.Sprintf("Task: %s\nResults: %s", task, contextJSON)},
	}, &parsed)
	if err != nil {
		return "", err
	}
	return parsed.Summary, nil
}

func (s *Supervisor) persist(ctx context.Context, orgID uuid.UUID, task string, sequence []string, contextData map[string]any, summary string) error {
	content, err := json.Marshal(model.TrajectoryContent{
		Task:          task,
		AgentSequence: sequence,
		ContextData:   contextData,
		Summary:       summary,
	})
	if err != nil {
		return fmt.Errorf("encode trajectory: %w", err)
	}

	_, err = s.store.CreateTrajectory(ctx, model.Trajectory{
		OrgID:     orgID,
		AgentName: "SupervisorAgent",
		Content:   string(content),
	})
	return err
}
