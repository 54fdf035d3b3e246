package ratelimit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestMemoryLimiterAllowsBurst(t *testing.T) {
	m := NewMemoryLimiter(10, 5)
	defer m.Close()

	ctx := context.Background()
	for i := range 5 {
		ok, err := m.Allow(ctx, "k1")
		if err != nil {
			t.Fatalf("Allow error on request %d: %v", i, err)
		}
		if !ok {
			t.Fatalf("request %d within burst was denied", i)
		}
	}

	ok, _ := m.Allow(ctx, "k1")
	if ok {
		t.Fatal("request beyond burst was allowed")
	}
}

func TestMemoryLimiterRefills(t *testing.T) {
	// 1000 rps: one token per millisecond.
	m := NewMemoryLimiter(1000, 2)
	defer m.Close()

	ctx := context.Background()
	for range 2 {
		_, _ = m.Allow(ctx, "k1")
	}
	if ok, _ := m.Allow(ctx, "k1"); ok {
		t.Fatal("empty bucket allowed a request")
	}

	time.Sleep(5 * time.Millisecond)

	if ok, _ := m.Allow(ctx, "k1"); !ok {
		t.Fatal("bucket did not refill")
	}
}

func TestMemoryLimiterKeysAreIndependent(t *testing.T) {
	m := NewMemoryLimiter(1, 1)
	defer m.Close()

	ctx := context.Background()
	if ok, _ := m.Allow(ctx, "a"); !ok {
		t.Fatal("first request for key a denied")
	}
	if ok, _ := m.Allow(ctx, "a"); ok {
		t.Fatal("key a burst not enforced")
	}
	if ok, _ := m.Allow(ctx, "b"); !ok {
		t.Fatal("key b throttled by key a's bucket")
	}
}

func TestMemoryLimiterIdleDoesNotBankCredit(t *testing.T) {
	m := NewMemoryLimiter(1000, 2)
	defer m.Close()

	ctx := context.Background()
	for range 2 {
		_, _ = m.Allow(ctx, "k1")
	}

	// Idling far longer than a full refill must cap at burst, not bank
	// extra credit.
	time.Sleep(20 * time.Millisecond)
	allowed := 0
	for range 5 {
		if ok, _ := m.Allow(ctx, "k1"); ok {
			allowed++
		}
	}
	if allowed != 2 {
		t.Fatalf("allowed %d requests, want burst of 2", allowed)
	}
}

func TestMemoryLimiterEvictsIdleKeys(t *testing.T) {
	m := NewMemoryLimiter(1, 1)
	defer m.Close()

	_, _ = m.Allow(context.Background(), "stale")
	m.evict(time.Now().Add(time.Second))

	m.mu.Lock()
	n := len(m.entries)
	m.mu.Unlock()
	if n != 0 {
		t.Fatalf("expected stale entry evicted, %d remain", n)
	}
}

func TestMiddlewareRejectsWithEnvelope(t *testing.T) {
	m := NewMemoryLimiter(1, 1)
	defer m.Close()

	handler := Middleware(m, IPKey)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/vehicles", nil)
	req.RemoteAddr = "203.0.113.7:54321"

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("first request: got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request: got %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("missing Retry-After header")
	}
}

func TestMiddlewareEmptyKeySkips(t *testing.T) {
	m := NewMemoryLimiter(1, 1)
	defer m.Close()

	handler := Middleware(m, func(*http.Request) string { return "" })(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}))

	for range 10 {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if rec.Code != http.StatusNoContent {
			t.Fatalf("exempt request limited: %d", rec.Code)
		}
	}
}
