package proxylog

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestNewWritesToStdoutOnly(t *testing.T) {
	log, err := New("", zerolog.InfoLevel, "test-instance")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	log.Info().Msg("hello")
}

func TestNewWritesToLogFile(t *testing.T) {
	path := t.TempDir() + "/proxy.log"
	log, err := New(path, zerolog.InfoLevel, "test-instance")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	log.Info().Msg("hello")
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.Contains(string(raw), "hello") {
		t.Fatalf("log file = %q, want it to contain the logged message", raw)
	}
}

func TestNewRejectsUnwritablePath(t *testing.T) {
	if _, err := New("/nonexistent-dir/proxy.log", zerolog.InfoLevel, "x"); err == nil {
		t.Fatal("expected an error for an unwritable log path")
	}
}

func TestWithConnIDZeroIsNoID(t *testing.T) {
	base := zerolog.Nop()
	child := WithConnID(base, 0)
	if child.GetLevel() != base.GetLevel() {
		t.Fatal("WithConnID should not change the logger's level")
	}

	var buf bytes.Buffer
	WithConnID(zerolog.New(&buf), 0).Info().Msg("x")
	if !strings.Contains(buf.String(), `"conn":"(no-id)"`) {
		t.Fatalf("log line = %q, want conn rendered as (no-id)", buf.String())
	}
}

func TestWithConnIDNonZero(t *testing.T) {
	base := zerolog.Nop()
	child := WithConnID(base, 42)
	if child.GetLevel() != base.GetLevel() {
		t.Fatal("WithConnID should not change the logger's level")
	}
}
