package toolschema

import (
	"encoding/json"
	"testing"
)

func TestNormalizeStringFieldNeverJSONParsed(t *testing.T) {
	cache := NewCache()
	cache.Put("search", json.RawMessage(`{"query":{"type":"string"}}`))
	args := map[string]any{"query": `[1,2,3]`}
	out := NormalizeToolCallArgs("search", args, cache)
	if out["query"] != `[1,2,3]` {
		t.Fatalf("expected string field left as literal string, got %#v", out["query"])
	}
}

func TestNormalizeArrayFieldParsedWhenStringified(t *testing.T) {
	cache := NewCache()
	cache.Put("search", json.RawMessage(`{"tags":{"type":"array"}}`))
	args := map[string]any{"tags": `["a","b"]`}
	out := NormalizeToolCallArgs("search", args, cache)
	arr, ok := out["tags"].([]any)
	if !ok || len(arr) != 2 {
		t.Fatalf("expected parsed array, got %#v", out["tags"])
	}
}

func TestNormalizeArrayFieldFallsBackOnParseFailure(t *testing.T) {
	cache := NewCache()
	cache.Put("search", json.RawMessage(`{"tags":{"type":"array"}}`))
	args := map[string]any{"tags": `not json`}
	out := NormalizeToolCallArgs("search", args, cache)
	if out["tags"] != "not json" {
		t.Fatalf("expected fallback to unescaped string, got %#v", out["tags"])
	}
}

func TestNormalizeUnknownFieldUnescapesOnly(t *testing.T) {
	out := NormalizeToolCallArgs("mystery", map[string]any{"x": `line1\nline2`}, nil)
	if out["x"] != "line1\nline2" {
		t.Fatalf("expected control-char unescape, got %#v", out["x"])
	}
}
