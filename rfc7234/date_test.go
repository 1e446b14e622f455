package rfc7234

import (
	"testing"
	"time"
)

func TestParseHTTPDateRoundTrip(t *testing.T) {
	want := "Wed, 28 Feb 2018 20:51:55 GMT"
	tm, err := ParseHTTPDate(want)
	if err != nil {
		t.Fatalf("ParseHTTPDate() error = %v", err)
	}
	if got := FormatHTTPDate(tm); got != want {
		t.Fatalf("FormatHTTPDate() = %q, want %q", got, want)
	}
}

func TestParseHTTPDateRejectsOtherFormats(t *testing.T) {
	// RFC 850 style, not accepted.
	if _, err := ParseHTTPDate("Wednesday, 28-Feb-18 20:51:55 GMT"); err == nil {
		t.Fatal("expected an error for a non-IMF-fixdate timestamp")
	}
}

func TestParseDeltaSeconds(t *testing.T) {
	d, err := ParseDeltaSeconds("60")
	if err != nil {
		t.Fatalf("ParseDeltaSeconds() error = %v", err)
	}
	if d != 60*time.Second {
		t.Fatalf("got %v, want 60s", d)
	}
}

func TestParseDeltaSecondsOverflowClamps(t *testing.T) {
	d, err := ParseDeltaSeconds("999999999999999999")
	if err != nil {
		t.Fatalf("ParseDeltaSeconds() error = %v, want clamp not error", err)
	}
	if d != deltaSecondsSentinel*time.Second {
		t.Fatalf("got %v, want clamp to sentinel", d)
	}
}

func TestParseDeltaSecondsRejectsNonNumeric(t *testing.T) {
	if _, err := ParseDeltaSeconds("not-a-number"); err == nil {
		t.Fatal("expected an error")
	}
}
