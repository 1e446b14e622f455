package auditlog

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestSubmitAndRecent(t *testing.T) {
	path := t.TempDir() + "/audit.db"
	s, err := Open(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	s.Submit(Record{RequestID: 1, ConnID: 1, Method: "GET", URL: "http://a/1", Status: "200", Outcome: "hit", StartedAt: time.Now(), ElapsedMS: 5})
	s.Submit(Record{RequestID: 2, ConnID: 1, Method: "GET", URL: "http://a/2", Status: "200", Outcome: "stored", StartedAt: time.Now(), ElapsedMS: 7})

	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	s2, err := Open(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("reopen Open() error = %v", err)
	}
	defer s2.Close()

	recs, err := s2.Recent(10)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("got %d records, want 2", len(recs))
	}
	// Most recent first.
	if recs[0].RequestID != 2 || recs[1].RequestID != 1 {
		t.Fatalf("order = %+v", recs)
	}
}

func TestRecentRespectsLimit(t *testing.T) {
	path := t.TempDir() + "/audit.db"
	s, err := Open(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	for i := 0; i < 5; i++ {
		s.Submit(Record{RequestID: uint64(i), Method: "GET", URL: "http://a/x", Status: "200", Outcome: "hit", StartedAt: time.Now()})
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	s2, err := Open(path, zerolog.Nop())
	if err != nil {
		t.Fatalf("reopen Open() error = %v", err)
	}
	defer s2.Close()

	recs, err := s2.Recent(2)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("got %d records, want 2", len(recs))
	}
}
