package httpmsg

import "testing"

func TestCanonicalize(t *testing.T) {
	cases := map[string]string{
		"content-length":  "Content-Length",
		"Content-Length":  "Content-Length",
		"CONTENT-LENGTH":  "Content-Length",
		"x-forwarded-for": "X-Forwarded-For",
		"ETag":            "Etag",
	}
	for in, want := range cases {
		if got := Canonicalize(in); got != want {
			t.Fatalf("Canonicalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCanonicalizeIdempotent(t *testing.T) {
	for _, in := range []string{"content-length", "X-Forwarded-For", "ETAG"} {
		once := Canonicalize(in)
		twice := Canonicalize(once)
		if once != twice {
			t.Fatalf("Canonicalize not idempotent: %q -> %q -> %q", in, once, twice)
		}
	}
}

func TestMessageGetSetDelete(t *testing.T) {
	m := &Message{}
	if _, ok := m.Get("Content-Length"); ok {
		t.Fatal("expected no header on empty message")
	}
	m.Set("content-length", "5")
	if v, ok := m.Get("Content-Length"); !ok || v != "5" {
		t.Fatalf("got (%q, %v)", v, ok)
	}
	m.Set("Content-Length", "10")
	if len(m.Headers) != 1 {
		t.Fatalf("Set should replace, got %d headers", len(m.Headers))
	}
	m.Delete("Content-Length")
	if _, ok := m.Get("Content-Length"); ok {
		t.Fatal("expected header removed")
	}
}

func TestMessageValues(t *testing.T) {
	m := &Message{}
	m.Headers = append(m.Headers, Header{Key: "Set-Cookie", Value: "a=1"})
	m.Headers = append(m.Headers, Header{Key: "Set-Cookie", Value: "b=2"})
	got := m.Values("set-cookie")
	if len(got) != 2 || got[0] != "a=1" || got[1] != "b=2" {
		t.Fatalf("Values = %v", got)
	}
}

func TestMessageBytesRoundTrip(t *testing.T) {
	m := &Message{
		StartLine: [3]string{"GET", "/", "HTTP/1.1"},
		Headers:   []Header{{Key: "Host", Value: "example.com"}},
	}
	got := string(m.Bytes())
	want := "GET / HTTP/1.1\r\nHost: example.com\r\n\r\n"
	if got != want {
		t.Fatalf("Bytes() = %q, want %q", got, want)
	}
}

func TestMessageClone(t *testing.T) {
	m := &Message{
		StartLine: [3]string{"HTTP/1.1", "200", "OK"},
		Headers:   []Header{{Key: "Etag", Value: `"abc"`}},
		Body:      []byte("hello"),
	}
	clone := m.Clone()
	clone.Headers[0].Value = "changed"
	clone.Body[0] = 'H'
	if m.Headers[0].Value != `"abc"` {
		t.Fatal("Clone shares header slice with original")
	}
	if m.Body[0] != 'h' {
		t.Fatal("Clone shares body slice with original")
	}
}
