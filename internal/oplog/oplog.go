// Package oplog provides the structured operation logger used by the tools
// and the supervisor. Every entry is mirrored to slog and appended to a
// persistent store; store failures are logged and swallowed so an audit-log
// outage never breaks the operation being logged.
package oplog

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"github.com/gearbox-hq/gearbox/internal/ctxutil"
	"github.com/gearbox-hq/gearbox/internal/model"
)

// Store persists operation-log entries. Implemented by storage.DB.
type Store interface {
	AppendOperationLog(ctx context.Context, entry model.OperationLogEntry) error
}

// Logger writes leveled, source-tagged operation entries.
type Logger struct {
	source string
	logger *slog.Logger
	store  Store
	attrs  map[string]any
}

// New creates a Logger for the given source (tool or agent name). store may
// be nil, in which case entries go to slog only.
func New(source string, logger *slog.Logger, store Store) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logger{source: source, logger: logger, store: store}
}

// Child returns a Logger that merges attrs into every entry. The parent is
// not mutated; child attrs win on key collision.
func (l *Logger) Child(attrs map[string]any) *Logger {
	merged := make(map[string]any, len(l.attrs)+len(attrs))
	maps.Copy(merged, l.attrs)
	maps.Copy(merged, attrs)
	return &Logger{source: l.source, logger: l.logger, store: l.store, attrs: merged}
}

func (l *Logger) Debug(ctx context.Context, msg string, data map[string]any) {
	l.log(ctx, model.LogDebug, msg, data)
}

func (l *Logger) Info(ctx context.Context, msg string, data map[string]any) {
	l.log(ctx, model.LogInfo, msg, data)
}

func (l *Logger) Warn(ctx context.Context, msg string, data map[string]any) {
	l.log(ctx, model.LogWarn, msg, data)
}

func (l *Logger) Error(ctx context.Context, msg string, data map[string]any) {
	l.log(ctx, model.LogError, msg, data)
}

// NewOperationID generates an operation correlation ID of the form
// op_<unix millis>_<random base36ish suffix>.
func NewOperationID() string {
	const alphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
	suffix := make([]byte, 9)
	for i := range suffix {
		suffix[i] = alphabet[rand.IntN(len(alphabet))]
	}
	return fmt.Sprintf("op_%d_%s", time.Now().UnixMilli(), suffix)
}

// OperationStart logs the start of a named operation and returns the
// operation ID the matching OperationEnd must be called with.
func (l *Logger) OperationStart(ctx context.Context, name string, data map[string]any) string {
	opID := NewOperationID()
	merged := map[string]any{"operationId": opID, "operationStatus": "started"}
	maps.Copy(merged, data)
	l.log(ctx, model.LogInfo, "operation started: "+name, merged)
	return opID
}

// OperationEnd logs the completion of an operation started with
// OperationStart, correlated by opID.
func (l *Logger) OperationEnd(ctx context.Context, opID, name string, success bool, data map[string]any) {
	status := "completed"
	level := model.LogInfo
	if !success {
		status = "failed"
		level = model.LogError
	}
	merged := map[string]any{"operationId": opID, "operationStatus": status}
	maps.Copy(merged, data)
	l.log(ctx, level, "operation "+status+": "+name, merged)
}

func (l *Logger) log(ctx context.Context, level model.LogLevel, msg string, data map[string]any) {
	merged := make(map[string]any, len(l.attrs)+len(data))
	maps.Copy(merged, l.attrs)
	maps.Copy(merged, data)

	slogLevel := slog.LevelInfo
	switch level {
	case model.LogDebug:
		slogLevel = slog.LevelDebug
	case model.LogWarn:
		slogLevel = slog.LevelWarn
	case model.LogError:
		slogLevel = slog.LevelError
	}
	l.logger.Log(ctx, slogLevel, msg, "source", l.source, "data", merged)

	if l.store == nil {
		return
	}

	entry := model.OperationLogEntry{
		ID:        uuid.New(),
		Level:     level,
		Source:    l.source,
		Message:   msg,
		Data:      merged,
		Timestamp: time.Now().UTC(),
	}
	if orgID := ctxutil.OrgID(ctx); orgID != uuid.Nil {
		entry.OrgID = &orgID
	}
	if accountID := ctxutil.AccountID(ctx); accountID != "" {
		entry.AccountID = &accountID
	}

	if err := l.store.AppendOperationLog(ctx, entry); err != nil {
		// Audit persistence is best-effort. Never propagate.
		l.logger.Warn("operation log persistence failed",
			"source", l.source, "error", err.Error())
	}
}
