package gemini

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/cliproxyhub/mtproxy/internal/toolschema"
)

func TestHappyPathStreamingScenario(t *testing.T) {
	frames := []string{
		`{"response":{"candidates":[{"content":{"parts":[{"text":"he"}]}}]}}`,
		`{"response":{"candidates":[{"content":{"parts":[{"text":"llo"}]}}]}}`,
		`{"response":{"candidates":[{"finishReason":"STOP"}],"usageMetadata":{"promptTokenCount":1,"candidatesTokenCount":2,"totalTokenCount":3}}}`,
	}
	upstream := strings.NewReader("data: " + strings.Join(frames, "\ndata: ") + "\n")

	var buf bytes.Buffer
	if err := WriteSSE(&buf, upstream, "claude-sonnet-4-5", true, toolschema.NewCache(), "sess-1", nil, nil); err != nil {
		t.Fatalf("WriteSSE: %v", err)
	}

	out := buf.String()
	lines := extractDataLines(out)
	if len(lines) < 4 {
		t.Fatalf("expected at least 4 data lines, got %d: %v", len(lines), lines)
	}

	roleCount := 0
	var text strings.Builder
	doneCount := 0
	for i, l := range lines {
		if l == "[DONE]" {
			doneCount++
			if i != len(lines)-1 {
				t.Fatalf("[DONE] must be last line")
			}
			continue
		}
		var chunk map[string]any
		if err := json.Unmarshal([]byte(l), &chunk); err != nil {
			t.Fatalf("bad json chunk: %v", err)
		}
		choices := chunk["choices"].([]any)
		if len(choices) == 0 {
			continue
		}
		delta := choices[0].(map[string]any)["delta"].(map[string]any)
		if role, ok := delta["role"]; ok && role == "assistant" {
			roleCount++
		}
		if c, ok := delta["content"]; ok {
			text.WriteString(c.(string))
		}
	}
	if roleCount != 1 {
		t.Fatalf("expected exactly one assistant role chunk, got %d", roleCount)
	}
	if doneCount != 1 {
		t.Fatalf("expected exactly one [DONE], got %d", doneCount)
	}
	if text.String() != "hello" {
		t.Fatalf("expected concatenated text 'hello', got %q", text.String())
	}
}

func extractDataLines(sse string) []string {
	var out []string
	for _, line := range strings.Split(sse, "\n") {
		if strings.HasPrefix(line, "data: ") {
			out = append(out, strings.TrimPrefix(line, "data: "))
		}
	}
	return out
}

func TestNonStreamReasoningToggle(t *testing.T) {
	raw := []byte(`{"candidates":[{"content":{"parts":[{"text":"thinking...","thought":true},{"text":"answer"}]}}]}`)

	withReasoning, err := ConvertGeminiResponseNonStream(raw, "gemini-2.5-pro", true, nil, "sess-1", nil)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if withReasoning.Choices[0].Message.ReasoningContent != "thinking..." {
		t.Fatalf("expected reasoning_content populated, got %+v", withReasoning.Choices[0].Message)
	}

	withoutReasoning, err := ConvertGeminiResponseNonStream(raw, "gemini-2.5-pro", false, nil, "sess-1", nil)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	b, _ := json.Marshal(withoutReasoning.Choices[0].Message)
	if strings.Contains(string(b), "reasoning_content") {
		t.Fatalf("expected no reasoning_content key when includeReasoning=false, got %s", b)
	}
}

func TestMalformedFrameDroppedNotFatal(t *testing.T) {
	upstream := strings.NewReader("data: {not json}\ndata: {\"response\":{\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"ok\"}]}}]}}\n")
	var buf bytes.Buffer
	if err := WriteSSE(&buf, upstream, "m", false, nil, "sess-1", nil, func(error) {}); err != nil {
		t.Fatalf("WriteSSE should not abort on malformed frame: %v", err)
	}
	if !strings.Contains(buf.String(), "\"ok\"") {
		t.Fatalf("expected stream to continue past malformed frame")
	}
	if !strings.HasSuffix(strings.TrimRight(buf.String(), "\n"), "[DONE]") {
		t.Fatalf("expected stream to still terminate with [DONE]")
	}
}

// fakeSigWriter records Put calls so tests can assert the response-conversion
// path actually writes thought signatures back to the cache.
type fakeSigWriter struct {
	puts map[string]string
}

func (f *fakeSigWriter) Put(family, sessionID, textKey, sig string) {
	if f.puts == nil {
		f.puts = map[string]string{}
	}
	f.puts[family+"|"+sessionID+"|"+textKey] = sig
}

func TestNonStreamWritesThoughtSignatureBack(t *testing.T) {
	raw := []byte(`{"candidates":[{"content":{"parts":[{"text":"thinking...","thought":true,"thoughtSignature":"sig-abc"},{"text":"answer"}]}}]}`)
	sig := &fakeSigWriter{}
	if _, err := ConvertGeminiResponseNonStream(raw, "gemini-2.5-pro", true, nil, "sess-1", sig); err != nil {
		t.Fatalf("convert: %v", err)
	}
	key := "gemini|sess-1|" + textKeyFn("thinking...")
	if sig.puts[key] != "sig-abc" {
		t.Fatalf("expected thought signature written back under %q, got %+v", key, sig.puts)
	}
}

func TestStreamWritesThoughtSignatureBackEvenWhenReasoningHidden(t *testing.T) {
	upstream := strings.NewReader("data: " + `{"response":{"candidates":[{"content":{"parts":[{"text":"thinking...","thought":true,"thoughtSignature":"sig-xyz"}]}}]}}` + "\n")
	sig := &fakeSigWriter{}
	var buf bytes.Buffer
	if err := WriteSSE(&buf, upstream, "gemini-2.5-pro", false, nil, "sess-2", sig, nil); err != nil {
		t.Fatalf("WriteSSE: %v", err)
	}
	if strings.Contains(buf.String(), "reasoning_content") {
		t.Fatalf("expected no reasoning_content surfaced when includeReasoning=false: %s", buf.String())
	}
	key := "gemini|sess-2|" + textKeyFn("thinking...")
	if sig.puts[key] != "sig-xyz" {
		t.Fatalf("expected thought signature written back regardless of includeReasoning, got %+v", sig.puts)
	}
}
