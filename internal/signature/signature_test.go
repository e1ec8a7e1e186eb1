package signature

import (
	"context"
	"testing"
	"time"
)

func TestPutGetWithinTTL(t *testing.T) {
	c := NewCache()
	tk := TextKey("let me think about this")
	c.Put("claude", "session-1", tk, "sig-abc")
	got, ok := c.Get("claude", "session-1", tk)
	if !ok || got != "sig-abc" {
		t.Fatalf("expected cached signature, got %q ok=%v", got, ok)
	}
}

func TestSweepEvictsExpiredEntries(t *testing.T) {
	c := NewCache()
	tk := TextKey("short thought")
	c.entries[key{"claude", "s1", tk}] = value{signature: "old", insertedAt: time.Now().Add(-TTL - time.Minute)}
	c.sweep()
	if _, ok := c.Get("claude", "s1", tk); ok {
		t.Fatalf("expected entry older than TTL to be evicted by sweep")
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	c := NewCache()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("Run did not stop after context cancellation")
	}
}

func TestTextKeyTruncatesAt100Runes(t *testing.T) {
	long := make([]rune, 250)
	for i := range long {
		long[i] = 'a'
	}
	tk := TextKey(string(long))
	want := string(long[:100]) + "::250"
	if tk != want {
		t.Fatalf("textKey mismatch: got %q want %q", tk, want)
	}
}
