package ratelimit

import (
	"net/http"
	"testing"
	"time"
)

func TestParseRateLimitErrorQuotaResetDelay(t *testing.T) {
	body := []byte(`{"error":{"details":[{"@type":"ErrorInfo","metadata":{"quotaResetDelay":"128h12m18.724039275s"}}]}}`)
	ms, _ := ParseRateLimitError(body)
	if ms != 461538724 {
		t.Fatalf("expected 461538724ms, got %d", ms)
	}
}

func TestParseRateLimitErrorRetryInfo(t *testing.T) {
	body := []byte(`{"error":{"details":[{"@type":"type.googleapis.com/google.rpc.RetryInfo","retryDelay":"5s"}]}}`)
	ms, _ := ParseRateLimitError(body)
	if ms != 5000 {
		t.Fatalf("expected 5000ms, got %d", ms)
	}
}

func TestParseRateLimitErrorDefaultsToOneHour(t *testing.T) {
	ms, _ := ParseRateLimitError([]byte(`{"error":{"message":"rate limited"}}`))
	if ms != DefaultDelay.Milliseconds() {
		t.Fatalf("expected default 1h, got %dms", ms)
	}
}

func TestParseRetryAfterMsPrefersMsHeader(t *testing.T) {
	h := http.Header{}
	h.Set("Retry-After-Ms", "1500")
	h.Set("Retry-After", "30")
	ms, ok := ParseRetryAfterMs(h)
	if !ok || ms != 1500 {
		t.Fatalf("expected 1500ms from Retry-After-Ms, got %d ok=%v", ms, ok)
	}
}

func TestParseRetryAfterMsFallsBackToSeconds(t *testing.T) {
	h := http.Header{}
	h.Set("Retry-After", "30")
	ms, ok := ParseRetryAfterMs(h)
	if !ok || ms != 30000 {
		t.Fatalf("expected 30000ms, got %d ok=%v", ms, ok)
	}
}

func TestParseRetryAfterMsMissingHeaders(t *testing.T) {
	if _, ok := ParseRetryAfterMs(http.Header{}); ok {
		t.Fatalf("expected ok=false with no headers")
	}
}

func TestParseRetryAfterMsCapsAt24h(t *testing.T) {
	h := http.Header{}
	h.Set("Retry-After", "999999")
	ms, ok := ParseRetryAfterMs(h)
	if !ok {
		t.Fatalf("expected ok")
	}
	if ms != MaxDelay.Milliseconds() {
		t.Fatalf("expected capped at 24h (%dms), got %d", MaxDelay.Milliseconds(), ms)
	}
}

func TestModelFamily(t *testing.T) {
	cases := map[string]string{
		"claude-sonnet-4-5":    "claude",
		"gemini-2.5-flash":     "gemini-flash",
		"gemini-2.5-pro":       "gemini-pro",
		"gpt-5.2-codex":        "gpt-5.2-codex",
	}
	for in, want := range cases {
		if got := ModelFamily(in); got != want {
			t.Fatalf("ModelFamily(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMarkAndIsRateLimited(t *testing.T) {
	r := NewRegistry()
	r.MarkRateLimited("acct-a", "claude", 10, "claude-sonnet-4-5", "rate limited")
	if !r.IsRateLimited("acct-a", "claude") {
		t.Fatalf("expected acct-a to be rate limited immediately after marking")
	}
	time.Sleep(20 * time.Millisecond)
	if r.IsRateLimited("acct-a", "claude") {
		t.Fatalf("expected entry to have expired and been evicted")
	}
}

func TestGetMinWaitTime(t *testing.T) {
	r := NewRegistry()
	r.MarkRateLimited("acct-a", "claude", 50_000, "", "")
	if w := r.GetMinWaitTime([]string{"acct-a", "acct-b"}, "claude"); w != 0 {
		t.Fatalf("expected 0 because acct-b is not limited, got %v", w)
	}
	r.MarkRateLimited("acct-b", "claude", 10_000, "", "")
	w := r.GetMinWaitTime([]string{"acct-a", "acct-b"}, "claude")
	if w <= 0 || w > 10*time.Second {
		t.Fatalf("expected min wait near 10s, got %v", w)
	}
}
