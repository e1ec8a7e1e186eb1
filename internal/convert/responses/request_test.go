package responses

import (
	"encoding/json"
	"testing"

	"github.com/cliproxyhub/mtproxy/internal/convert/common"
)

func rawStr(t *testing.T, s string) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

func TestChatToResponsesPreservesTextAndToolCalls(t *testing.T) {
	req := &common.ChatCompletionRequest{
		Model: "gpt-5.2-codex",
		Messages: []common.ChatMessage{
			{Role: "system", Content: rawStr(t, "be terse")},
			{Role: "user", Content: rawStr(t, "what's the weather")},
			{
				Role:    "assistant",
				Content: rawStr(t, "let me check"),
				ToolCalls: []common.ToolCall{
					{ID: "call_1", Type: "function", Function: common.FunctionCall{Name: "get_weather", Arguments: `{"city":"NYC"}`}},
				},
			},
			{Role: "tool", ToolCallID: "call_1", Content: rawStr(t, "72F sunny")},
		},
	}

	out := ConvertChatToResponses(req)
	if out.Store {
		t.Fatalf("store must always be false")
	}
	if out.Instructions != "be terse" {
		t.Fatalf("expected instructions derived from system message, got %q", out.Instructions)
	}

	var sawUserText, sawAssistantText, sawFunctionCall, sawFunctionOutput bool
	for _, item := range out.Input {
		switch item.Type {
		case "message":
			if item.Role == "user" && string(item.Content) == `"what's the weather"` {
				sawUserText = true
			}
			if item.Role == "assistant" && string(item.Content) == `"let me check"` {
				sawAssistantText = true
			}
		case "function_call":
			if item.CallID == "call_1" && item.Name == "get_weather" && item.Arguments == `{"city":"NYC"}` {
				sawFunctionCall = true
			}
		case "function_call_output":
			if item.CallID == "call_1" && item.Output == "72F sunny" {
				sawFunctionOutput = true
			}
		}
	}
	if !sawUserText || !sawAssistantText || !sawFunctionCall || !sawFunctionOutput {
		t.Fatalf("round trip lost content: input=%+v", out.Input)
	}
}

func TestChatToResponsesDefaultInstructions(t *testing.T) {
	req := &common.ChatCompletionRequest{
		Model:    "gpt-5.2-codex",
		Messages: []common.ChatMessage{{Role: "user", Content: rawStr(t, "hi")}},
	}
	out := ConvertChatToResponses(req)
	if out.Instructions != defaultInstructions {
		t.Fatalf("expected default instructions, got %q", out.Instructions)
	}
}
