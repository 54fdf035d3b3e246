// Package tools implements the domain tool actions the supervisor routes
// work to. Every tool follows the same contract: authorize the tenant first
// (a violation is a direct error, never an envelope), log the operation
// start/end, do the work, and wrap the body in a result envelope.
package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/gearbox-hq/gearbox/internal/completion"
	"github.com/gearbox-hq/gearbox/internal/ctxutil"
	"github.com/gearbox-hq/gearbox/internal/embedding"
	"github.com/gearbox-hq/gearbox/internal/mail"
	"github.com/gearbox-hq/gearbox/internal/model"
	"github.com/gearbox-hq/gearbox/internal/oplog"
	"github.com/gearbox-hq/gearbox/internal/result"
	"github.com/gearbox-hq/gearbox/internal/search"
)

// ErrUnauthorized is returned directly (not as an envelope) when the caller's
// claims are missing or scoped to a different org than the one requested.
var ErrUnauthorized = errors.New("tools: unauthorized")

// Output is the uniform payload shape tools return inside the envelope.
type Output = map[string]any

// Func is the uniform tool signature held by the registry. The error return
// carries only authorization failures; everything else travels in the
// envelope.
type Func func(ctx context.Context, orgID uuid.UUID, args map[string]any) (result.Result[Output], error)

// Completer is the slice of the completion client tools depend on.
type Completer interface {
	Complete(ctx context.Context, messages []completion.Message) (string, error)
	CompleteJSON(ctx context.Context, messages []completion.Message, out any) error
}

// Store is the slice of the storage layer tools depend on.
type Store interface {
	ListAppointmentsInRange(ctx context.Context, orgID uuid.UUID, from, to time.Time, limit int) ([]model.Appointment, error)
	CreateAssessment(ctx context.Context, a model.Assessment) (model.Assessment, error)
	GetServiceRecords(ctx context.Context, orgID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]model.ServiceRecord, error)
	ListServiceHistoryByVehicle(ctx context.Context, orgID, vehicleID uuid.UUID, limit int) ([]model.ServiceRecord, error)
	ListExperiences(ctx context.Context, orgID uuid.UUID, agentName string, limit int) ([]model.Experience, error)
	GetLatestPolicyVersion(ctx context.Context, orgID uuid.UUID, agentName string) (model.PolicyVersion, error)
	BumpPolicyVersion(ctx context.Context, orgID uuid.UUID, agentName string, metrics map[string]any) (model.PolicyVersion, error)
}

// TrainingMetricsFn computes policy metrics from an experience batch. The
// default is a placeholder; real training plugs in here.
type TrainingMetricsFn func(experiences []model.Experience, epochs int) map[string]any

// Deps carries every collaborator the tools need. Nil optional fields
// (Searcher, Embedder) degrade the corresponding tool to an envelope error.
type Deps struct {
	Store      Store
	Completion Completer
	Embedder   embedding.Provider
	Searcher   search.Searcher
	Mailer     mail.Sender
	Logger     *slog.Logger
	OpLog      *oplog.Logger

	// Metrics overrides the placeholder training metrics when set.
	Metrics TrainingMetricsFn
}

// Tools binds the tool methods to their dependencies.
type Tools struct {
	deps Deps
}

// New creates the tool set. OpLog falls back to a slog-only logger.
func New(deps Deps) *Tools {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.OpLog == nil {
		deps.OpLog = oplog.New("tools", deps.Logger, nil)
	}
	if deps.Metrics == nil {
		deps.Metrics = placeholderMetrics
	}
	return &Tools{deps: deps}
}

// authorize enforces the tenant boundary. It runs before any collaborator is
// touched: no completion call, no query, no log entry happens for an
// unauthorized caller.
func (t *Tools) authorize(ctx context.Context, orgID uuid.UUID) error {
	claims, ok := ctxutil.Claims(ctx)
	if !ok {
		return fmt.Errorf("%w: no credentials in context", ErrUnauthorized)
	}
	if orgID == uuid.Nil {
		return fmt.Errorf("%w: missing org", ErrUnauthorized)
	}
	if claims.OrgID != orgID {
		return fmt.Errorf("%w: org mismatch", ErrUnauthorized)
	}
	return nil
}

// classify builds the per-tool failure classification.
func classify(source, code string, severity result.Severity) result.Classification {
	return result.Classification{Source: source, Code: code, Severity: severity}
}

// --- argument helpers ---

func argString(args map[string]any, key string) (string, error) {
	v, ok := args[key]
	if !ok {
		return "", fmt.Errorf("missing required argument %q", key)
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", fmt.Errorf("argument %q must be a non-empty string", key)
	}
	return s, nil
}

func argStringOr(args map[string]any, key, fallback string) string {
	if s, ok := args[key].(string); ok && s != "" {
		return s
	}
	return fallback
}

func argFloatOr(args map[string]any, key string, fallback float64) float64 {
	switch v := args[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return fallback
	}
}

func argIntOr(args map[string]any, key string, fallback int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return fallback
	}
}

func argUUID(args map[string]any, key string) (uuid.UUID, error) {
	s, err := argString(args, key)
	if err != nil {
		return uuid.Nil, err
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("argument %q is not a valid UUID: %w", key, err)
	}
	return id, nil
}
