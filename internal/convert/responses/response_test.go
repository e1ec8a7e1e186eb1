package responses

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestResponsesSSEFunctionCallAssembly(t *testing.T) {
	events := []string{
		`{"type":"response.output_item.added","output_index":0,"item":{"type":"function_call","call_id":"call_1","name":"get_weather"}}`,
		`{"type":"response.function_call_arguments.delta","output_index":0,"delta":"{\"city\":"}`,
		`{"type":"response.function_call_arguments.delta","output_index":0,"delta":"\"NYC\"}"}`,
		`{"type":"response.completed","response":{"status":"completed","usage":{"input_tokens":10,"output_tokens":5,"total_tokens":15}}}`,
	}
	upstream := strings.NewReader("data: " + strings.Join(events, "\ndata: ") + "\n")
	var buf bytes.Buffer
	if err := WriteSSE(&buf, upstream, "gpt-5.2-codex", false, nil); err != nil {
		t.Fatalf("WriteSSE: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, `"name":"get_weather"`) {
		t.Fatalf("expected function name in stream: %s", out)
	}
	if !strings.HasSuffix(strings.TrimRight(out, "\n"), "data: [DONE]") {
		t.Fatalf("expected terminal [DONE]: %s", out)
	}
	if !strings.Contains(out, `"finish_reason":"tool_calls"`) {
		t.Fatalf("expected tool_calls finish reason: %s", out)
	}
}

func TestConvertResponsesToChatNonStream(t *testing.T) {
	raw := []byte(`{
		"status": "completed",
		"output": [
			{"type":"message","content":[{"type":"output_text","text":"hello there"}]},
			{"type":"function_call","call_id":"call_9","name":"lookup","arguments":"{}"}
		],
		"usage": {"input_tokens": 3, "output_tokens": 4, "total_tokens": 7}
	}`)
	out, err := ConvertResponsesToChat(raw, "gpt-5.2-codex", false)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	msg := out.Choices[0].Message
	var content string
	_ = json.Unmarshal(msg.Content, &content)
	if content != "hello there" {
		t.Fatalf("expected text preserved, got %q", content)
	}
	if len(msg.ToolCalls) != 1 || msg.ToolCalls[0].ID != "call_9" {
		t.Fatalf("expected tool call preserved, got %+v", msg.ToolCalls)
	}
	if out.Choices[0].FinishReason != "tool_calls" {
		t.Fatalf("expected tool_calls finish reason, got %s", out.Choices[0].FinishReason)
	}
	if out.Usage == nil || out.Usage.TotalTokens != 7 {
		t.Fatalf("expected usage preserved, got %+v", out.Usage)
	}
}

// TestConvertResponsesToChatDropsReasoningWithoutGate covers spec.md
// Scenario 6: a request with no reasoning field must produce no
// reasoning_content key at all, even when upstream emits a reasoning item.
func TestConvertResponsesToChatDropsReasoningWithoutGate(t *testing.T) {
	raw := []byte(`{
		"status": "completed",
		"output": [
			{"type":"reasoning","summary":[{"type":"summary_text","text":"thinking..."}]},
			{"type":"message","content":[{"type":"output_text","text":"hello there"}]}
		]
	}`)

	out, err := ConvertResponsesToChat(raw, "gpt-5.2-codex", false)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if out.Choices[0].Message.ReasoningContent != "" {
		t.Fatalf("expected no reasoning_content without the gate, got %q", out.Choices[0].Message.ReasoningContent)
	}

	out, err = ConvertResponsesToChat(raw, "gpt-5.2-codex", true)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if out.Choices[0].Message.ReasoningContent != "thinking..." {
		t.Fatalf("expected reasoning_content preserved with the gate on, got %q", out.Choices[0].Message.ReasoningContent)
	}
}

// TestResponsesSSEReasoningGate covers the streaming path's equivalent gate:
// reasoning_text.delta events are dropped entirely unless includeReasoning.
func TestResponsesSSEReasoningGate(t *testing.T) {
	events := []string{
		`{"type":"response.reasoning_text.delta","delta":"thinking..."}`,
		`{"type":"response.output_text.delta","delta":"hello"}`,
		`{"type":"response.completed","response":{"status":"completed"}}`,
	}
	upstream := strings.NewReader("data: " + strings.Join(events, "\ndata: ") + "\n")
	var buf bytes.Buffer
	if err := WriteSSE(&buf, upstream, "gpt-5.2-codex", false, nil); err != nil {
		t.Fatalf("WriteSSE: %v", err)
	}
	if strings.Contains(buf.String(), "reasoning_content") {
		t.Fatalf("expected no reasoning_content without the gate: %s", buf.String())
	}

	buf.Reset()
	upstream = strings.NewReader("data: " + strings.Join(events, "\ndata: ") + "\n")
	if err := WriteSSE(&buf, upstream, "gpt-5.2-codex", true, nil); err != nil {
		t.Fatalf("WriteSSE: %v", err)
	}
	if !strings.Contains(buf.String(), `"reasoning_content":"thinking..."`) {
		t.Fatalf("expected reasoning_content preserved with the gate on: %s", buf.String())
	}
}
