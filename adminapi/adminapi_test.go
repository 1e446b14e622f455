package adminapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"

	"github.com/fenwicklabs/proxycache/auditlog"
	"github.com/fenwicklabs/proxycache/cachestore"
)

func TestHealthz(t *testing.T) {
	s := New(0, cachestore.New(4), nil, zerolog.Nop())
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	s.httpServer.Handler.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if w.Header().Get("X-Request-Id") == "" {
		t.Fatal("expected requestID middleware to set X-Request-Id")
	}
}

func TestStatsReflectsCacheAndCounters(t *testing.T) {
	cache := cachestore.New(4)
	acc := cache.Open("key")
	acc.Set(cachestore.Entry{URL: "key"})
	acc.Close()

	s := New(0, cache, nil, zerolog.Nop())
	s.RecordOutcome("hit")
	s.RecordOutcome("stored")
	s.RecordOutcome("bypass")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/stats", nil)
	s.httpServer.Handler.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var stats statsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stats.TotalSlots != 4 {
		t.Fatalf("TotalSlots = %d, want 4", stats.TotalSlots)
	}
	if stats.OccupiedSlots != 1 {
		t.Fatalf("OccupiedSlots = %d, want 1", stats.OccupiedSlots)
	}
	if stats.Requests != 3 {
		t.Fatalf("Requests = %d, want 3", stats.Requests)
	}
	if stats.Hits != 1 {
		t.Fatalf("Hits = %d, want 1", stats.Hits)
	}
	if stats.Misses != 2 {
		t.Fatalf("Misses = %d, want 2", stats.Misses)
	}
}

func TestCacheEndpointListsSlots(t *testing.T) {
	cache := cachestore.New(2)
	acc := cache.Open("key")
	acc.Set(cachestore.Entry{URL: "key"})
	acc.Close()

	s := New(0, cache, nil, zerolog.Nop())
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/cache", nil)
	s.httpServer.Handler.ServeHTTP(w, req)

	var slots []cachestore.SlotInfo
	if err := json.Unmarshal(w.Body.Bytes(), &slots); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(slots) != 2 {
		t.Fatalf("got %d slots, want 2", len(slots))
	}
}

func TestAuditRouteAbsentWithoutSink(t *testing.T) {
	s := New(0, cachestore.New(4), nil, zerolog.Nop())
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/audit", nil)
	s.httpServer.Handler.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404 when audit is disabled", w.Code)
	}
}

func TestAuditRouteServesRecords(t *testing.T) {
	path := t.TempDir() + "/audit.db"
	sink, err := auditlog.Open(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer sink.Close()

	s := New(0, cachestore.New(4), sink, zerolog.Nop())
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/audit?limit=5", nil)
	s.httpServer.Handler.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}

func TestRecordOutcomeIgnoresUnknownOutcome(t *testing.T) {
	s := New(0, cachestore.New(4), nil, zerolog.Nop())
	s.RecordOutcome("not-a-real-outcome")
	if s.requests.Load() != 1 {
		t.Fatalf("requests = %d, want 1", s.requests.Load())
	}
	if s.hits.Load() != 0 || s.misses.Load() != 0 {
		t.Fatal("unknown outcomes should not bump hits or misses")
	}
}
