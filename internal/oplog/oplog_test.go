package oplog

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/gearbox-hq/gearbox/internal/model"
)

type memStore struct {
	mu      sync.Mutex
	entries []model.OperationLogEntry
	fail    bool
}

func (s *memStore) AppendOperationLog(ctx context.Context, entry model.OperationLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("store down")
	}
	s.entries = append(s.entries, entry)
	return nil
}

func (s *memStore) all() []model.OperationLogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.OperationLogEntry(nil), s.entries...)
}

func newTestLogger(store Store) *Logger {
	return New("testTool", slog.New(slog.DiscardHandler), store)
}

func TestOperationIDFormat(t *testing.T) {
	id := NewOperationID()
	re := regexp.MustCompile(`^op_(\d+)_[a-z0-9]{9}$`)
	m := re.FindStringSubmatch(id)
	if m == nil {
		t.Fatalf("id %q does not match op_<millis>_<random>", id)
	}
	millis, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil || millis <= 0 {
		t.Fatalf("bad millis component in %q", id)
	}
}

func TestOperationStartEndCorrelation(t *testing.T) {
	store := &memStore{}
	l := newTestLogger(store)
	ctx := context.Background()

	opID := l.OperationStart(ctx, "analyzeImage", map[string]any{"vehicleId": "v-1"})
	l.OperationEnd(ctx, opID, "analyzeImage", true, map[string]any{"findings": 2})

	entries := store.all()
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if entries[0].Data["operationId"] != opID || entries[1].Data["operationId"] != opID {
		t.Fatal("start and end entries must share the operation id")
	}
	if entries[0].Data["operationStatus"] != "started" {
		t.Fatalf("start status = %v", entries[0].Data["operationStatus"])
	}
	if entries[1].Data["operationStatus"] != "completed" {
		t.Fatalf("end status = %v", entries[1].Data["operationStatus"])
	}
	if entries[0].Source != "testTool" {
		t.Fatalf("source = %q", entries[0].Source)
	}
}

func TestOperationEndFailure(t *testing.T) {
	store := &memStore{}
	l := newTestLogger(store)
	ctx := context.Background()

	opID := l.OperationStart(ctx, "sendEmail", nil)
	l.OperationEnd(ctx, opID, "sendEmail", false, map[string]any{"error": "smtp refused"})

	entries := store.all()
	if entries[1].Data["operationStatus"] != "failed" {
		t.Fatalf("status = %v, want failed", entries[1].Data["operationStatus"])
	}
	if entries[1].Level != model.LogError {
		t.Fatalf("level = %v, want error", entries[1].Level)
	}
	if !strings.Contains(entries[1].Message, "failed") {
		t.Fatalf("message = %q", entries[1].Message)
	}
}

func TestChildMergesWithoutMutatingParent(t *testing.T) {
	store := &memStore{}
	parent := newTestLogger(store)
	child := parent.Child(map[string]any{"sessionId": "s-1"})
	grandchild := child.Child(map[string]any{"sessionId": "s-2", "extra": true})

	ctx := context.Background()
	parent.Info(ctx, "from parent", nil)
	child.Info(ctx, "from child", nil)
	grandchild.Info(ctx, "from grandchild", nil)

	entries := store.all()
	if _, ok := entries[0].Data["sessionId"]; ok {
		t.Fatal("parent must not inherit child attrs")
	}
	if entries[1].Data["sessionId"] != "s-1" {
		t.Fatalf("child attrs = %v", entries[1].Data)
	}
	// Child attrs win on collision.
	if entries[2].Data["sessionId"] != "s-2" || entries[2].Data["extra"] != true {
		t.Fatalf("grandchild attrs = %v", entries[2].Data)
	}
}

func TestStoreFailureIsSwallowed(t *testing.T) {
	store := &memStore{fail: true}
	l := newTestLogger(store)
	ctx := context.Background()

	// Must not panic or propagate.
	opID := l.OperationStart(ctx, "anything", nil)
	l.OperationEnd(ctx, opID, "anything", true, nil)
	l.Error(ctx, "still fine", nil)
}

func TestNilStoreLogsToSlogOnly(t *testing.T) {
	l := newTestLogger(nil)
	l.Info(context.Background(), "no store", map[string]any{"k": "v"})
}
