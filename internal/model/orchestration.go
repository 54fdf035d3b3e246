package model

import (
	"time"

	"github.com/google/uuid"
)

// LogLevel enumerates operation-log severities.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// OperationLogEntry is one persisted operation-log record. Append-only;
// never mutated or deleted by this service.
type OperationLogEntry struct {
	ID        uuid.UUID      `json:"id"`
	OrgID     *uuid.UUID     `json:"org_id,omitempty"`
	AccountID *string        `json:"account_id,omitempty"`
	SessionID *string        `json:"session_id,omitempty"`
	Level     LogLevel       `json:"level"`
	Source    string         `json:"source"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data"`
	Timestamp time.Time      `json:"timestamp"`
}

// StepStatus enumerates the lifecycle states of one supervisor task step.
type StepStatus string

const (
	StepRunning StepStatus = "running"
	StepDone    StepStatus = "done"
	StepFailed  StepStatus = "failed"
	// StepSkipped marks a routed agent whose keyword gate did not match.
	// Legacy behavior reports these as done; the supervisor's GateMissStatus
	// option selects which of the two is emitted.
	StepSkipped StepStatus = "skipped"
)

// TaskStep records the progress of one routed agent inside a supervisor run.
type TaskStep struct {
	Label   string     `json:"label"`
	Status  StepStatus `json:"status"`
	Details string     `json:"details,omitempty"`
}

// Trajectory is the write-once audit record of one supervisor run, kept for
// later replay and offline policy training.
type Trajectory struct {
	ID        uuid.UUID `json:"id"`
	OrgID     uuid.UUID `json:"org_id"`
	AgentName string    `json:"agent_name"`
	Content   string    `json:"content"` // JSON: {task, agentSequence, contextData, summary}
	CreatedAt time.Time `json:"created_at"`
}

// TrajectoryContent is the JSON document stored in Trajectory.Content.
type TrajectoryContent struct {
	Task          string         `json:"task"`
	AgentSequence []string       `json:"agentSequence"`
	ContextData   map[string]any `json:"contextData"`
	Summary       string         `json:"summary"`
}

// PolicyVersion is one append-only policy snapshot for a named agent.
// Versions increase monotonically per (org, agent).
type PolicyVersion struct {
	ID        uuid.UUID      `json:"id"`
	OrgID     uuid.UUID      `json:"org_id"`
	AgentName string         `json:"agent_name"`
	Version   int            `json:"version"`
	Metrics   map[string]any `json:"metrics"`
	CreatedAt time.Time      `json:"created_at"`
}

// Experience is one recorded state/action/reward tuple consumed by the
// policy-training stub.
type Experience struct {
	ID        uuid.UUID      `json:"id"`
	OrgID     uuid.UUID      `json:"org_id"`
	AgentName string         `json:"agent_name"`
	State     map[string]any `json:"state"`
	Action    string         `json:"action"`
	Reward    float64        `json:"reward"`
	CreatedAt time.Time      `json:"created_at"`
}

// TimePoint is a raw observation in a time series handed to the forecasting
// tools. Ordering, duplicate timestamps, and gaps are the caller's problem;
// the tools forward the series verbatim.
type TimePoint struct {
	Timestamp int64   `json:"timestamp"` // unix millis
	Value     float64 `json:"value"`
}
