package gemini

import (
	"encoding/json"
	"testing"

	"github.com/cliproxyhub/mtproxy/internal/convert/common"
)

func rawMsg(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

func TestOrphanToolCallSanitisation(t *testing.T) {
	req := &common.ChatCompletionRequest{
		Messages: []common.ChatMessage{
			{
				Role: "assistant",
				ToolCalls: []common.ToolCall{
					{ID: "A", Type: "function", Function: common.FunctionCall{Name: "f", Arguments: "{}"}},
					{ID: "B", Type: "function", Function: common.FunctionCall{Name: "g", Arguments: "{}"}},
				},
			},
			{Role: "tool", ToolCallID: "A", Name: "f", Content: rawMsg(t, "ok")},
		},
	}
	out := ConvertChatToGeminiRequest(req)

	var calls, responses []string
	for _, c := range out.Contents {
		for _, p := range c.Parts {
			if p.FunctionCall != nil {
				calls = append(calls, p.FunctionCall.ID)
			}
			if p.FunctionResponse != nil {
				responses = append(responses, p.FunctionResponse.ID)
			}
		}
	}
	if len(calls) != 1 || calls[0] != "A" {
		t.Fatalf("expected exactly one functionCall id=A, got %v", calls)
	}
	if len(responses) != 1 || responses[0] != "A" {
		t.Fatalf("expected exactly one functionResponse id=A, got %v", responses)
	}
}

func TestNoMessageHasEmptyParts(t *testing.T) {
	req := &common.ChatCompletionRequest{
		Messages: []common.ChatMessage{
			{Role: "user", Content: rawMsg(t, "hi")},
			{Role: "assistant", ToolCalls: []common.ToolCall{
				{ID: "Z", Type: "function", Function: common.FunctionCall{Name: "orphan", Arguments: "{}"}},
			}},
		},
	}
	out := ConvertChatToGeminiRequest(req)
	for _, c := range out.Contents {
		if len(c.Parts) == 0 {
			t.Fatalf("found content with empty parts: %+v", c)
		}
	}
}

func TestNoModelMessageMixesTextAndFunctionCall(t *testing.T) {
	req := &common.ChatCompletionRequest{
		Messages: []common.ChatMessage{
			{Role: "user", Content: rawMsg(t, "call a tool please")},
			{
				Role:    "assistant",
				Content: rawMsg(t, "sure, calling now"),
				ToolCalls: []common.ToolCall{
					{ID: "A", Type: "function", Function: common.FunctionCall{Name: "f", Arguments: "{}"}},
				},
			},
			{Role: "tool", ToolCallID: "A", Name: "f", Content: rawMsg(t, "done")},
		},
	}
	out := ConvertChatToGeminiRequest(req)
	for _, c := range out.Contents {
		if c.Role != "model" {
			continue
		}
		hasText, hasCall := false, false
		for _, p := range c.Parts {
			if p.Text != "" {
				hasText = true
			}
			if p.FunctionCall != nil {
				hasCall = true
			}
		}
		if hasText && hasCall {
			t.Fatalf("model message mixes text and functionCall: %+v", c)
		}
	}
}

func TestSystemInstructionCoalesced(t *testing.T) {
	req := &common.ChatCompletionRequest{
		Messages: []common.ChatMessage{
			{Role: "system", Content: rawMsg(t, "be terse")},
			{Role: "user", Content: rawMsg(t, "hi")},
		},
	}
	out := ConvertChatToGeminiRequest(req)
	if out.SystemInstruction == nil || len(out.SystemInstruction.Parts) != 1 || out.SystemInstruction.Parts[0].Text != "be terse" {
		t.Fatalf("expected coalesced system instruction, got %+v", out.SystemInstruction)
	}
}

func TestReasoningEffortMapsToThinkingBudget(t *testing.T) {
	req := &common.ChatCompletionRequest{
		Messages:        []common.ChatMessage{{Role: "user", Content: rawMsg(t, "hi")}},
		ReasoningEffort: "high",
	}
	out := ConvertChatToGeminiRequest(req)
	if out.GenerationConfig == nil || out.GenerationConfig.ThinkingConfig == nil {
		t.Fatalf("expected a thinkingConfig")
	}
	if *out.GenerationConfig.ThinkingConfig.ThinkingBudget != 32000 {
		t.Fatalf("expected budget 32000 for high effort, got %d", *out.GenerationConfig.ThinkingConfig.ThinkingBudget)
	}
}
