package responses

import (
	"encoding/json"
	"strings"

	"github.com/cliproxyhub/mtproxy/internal/convert/common"
)

// ConvertChatToResponses implements the chat->Responses half of §4.2.4.
// Temperature/top_p are deliberately never forwarded (upstream rejects
// them); store is always false.
func ConvertChatToResponses(req *common.ChatCompletionRequest) *Request {
	out := &Request{
		Model:  req.Model,
		Store:  false,
		Stream: req.Stream,
	}

	var instructionParts []string
	for _, msg := range req.Messages {
		switch msg.Role {
		case "system", "developer":
			for _, t := range extractTextParts(msg.Content) {
				instructionParts = append(instructionParts, t)
			}
			out.Input = append(out.Input, Item{
				Type:    "message",
				Role:    "developer",
				Content: textContentJSON(msg.Content),
			})
		case "user":
			out.Input = append(out.Input, Item{
				Type:    "message",
				Role:    "user",
				Content: textContentJSON(msg.Content),
			})
		case "assistant":
			if hasText(msg.Content) {
				out.Input = append(out.Input, Item{
					Type:    "message",
					Role:    "assistant",
					Content: textContentJSON(msg.Content),
				})
			}
			for _, tc := range msg.ToolCalls {
				out.Input = append(out.Input, Item{
					Type:      "function_call",
					ID:        tc.ID,
					CallID:    tc.ID,
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				})
			}
		case "tool":
			out.Input = append(out.Input, Item{
				Type:   "function_call_output",
				CallID: msg.ToolCallID,
				Output: rawContentToPlainString(msg.Content),
			})
		}
	}

	if len(req.Tools) > 0 {
		out.Tools = make([]Tool, 0, len(req.Tools))
		for _, t := range req.Tools {
			out.Tools = append(out.Tools, Tool{
				Type:        "function",
				Name:        t.Function.Name,
				Description: t.Function.Description,
				Parameters:  t.Function.Parameters,
			})
		}
	}

	out.Instructions = strings.Join(instructionParts, "\n")
	if out.Instructions == "" {
		out.Instructions = defaultInstructions
	}

	wantsReasoning := req.ReasoningEffort != "" || req.Reasoning != nil
	if wantsReasoning || len(out.Tools) > 0 {
		out.Include = []string{"reasoning.encrypted_content"}
	}
	if wantsReasoning {
		effort := req.ReasoningEffort
		if req.Reasoning != nil && req.Reasoning.Effort != "" {
			effort = req.Reasoning.Effort
		}
		out.Reasoning = &ReasoningParam{Effort: effort}
	}

	return out
}

func hasText(raw json.RawMessage) bool {
	return len(extractTextParts(raw)) > 0
}

func extractTextParts(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if s == "" {
			return nil
		}
		return []string{s}
	}
	var parts []common.ContentPart
	if err := json.Unmarshal(raw, &parts); err == nil {
		var out []string
		for _, p := range parts {
			if p.Type == "text" && p.Text != "" {
				out = append(out, p.Text)
			}
		}
		return out
	}
	return nil
}

func textContentJSON(raw json.RawMessage) json.RawMessage {
	texts := extractTextParts(raw)
	joined := strings.Join(texts, "")
	b, _ := json.Marshal(joined)
	return b
}

func rawContentToPlainString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.Join(extractTextParts(raw), "")
}
