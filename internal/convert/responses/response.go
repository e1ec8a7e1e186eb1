package responses

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/cliproxyhub/mtproxy/internal/convert/common"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

// StreamState is the explicit state struct for the Responses SSE -> chat SSE
// transducer, mirroring the codexResponsesSSEState shape of the reverse
// transform: a pull-based transducer with no global state, one entry per
// open function-call output index.
type StreamState struct {
	CompletionID    string
	IsFirstChunk    bool
	FunctionCalls   map[int]*openFunctionCall
	NextToolIndex   int
	AnyFunctionCall bool
}

type openFunctionCall struct {
	toolIndex int
	id        string
	name      string
}

// NewStreamState constructs the initial state for one Responses SSE stream.
func NewStreamState() *StreamState {
	return &StreamState{
		CompletionID:  "chatcmpl-" + uuid.NewString(),
		IsFirstChunk:  true,
		FunctionCalls: map[int]*openFunctionCall{},
	}
}

// TransformEvent consumes one already-unwrapped `data: {...}` JSON payload
// from a Responses API stream and emits zero or more OpenAI chunks.
// includeReasoning gates whether reasoning-text deltas are surfaced at all,
// matching gemini.TransformFrame's gate: with no reasoning field on the
// inbound request, a response has no reasoning_content key even if upstream
// emitted thought parts.
func TransformEvent(st *StreamState, payload []byte, model string, includeReasoning bool) ([]*common.ChatCompletionChunk, error) {
	root := gjson.ParseBytes(payload)
	typ := root.Get("type").String()
	if typ == "" {
		return nil, common.MalformedUpstreamFrame("missing type field")
	}

	switch typ {
	case "response.output_text.delta":
		return []*common.ChatCompletionChunk{st.chunk(model, common.Delta{Content: root.Get("delta").String()}, "")}, nil

	case "response.reasoning_text.delta", "response.reasoning_summary_text.delta":
		if !includeReasoning {
			return nil, nil
		}
		return []*common.ChatCompletionChunk{st.chunk(model, common.Delta{ReasoningContent: root.Get("delta").String()}, "")}, nil

	case "response.output_item.added":
		item := root.Get("item")
		if item.Get("type").String() != "function_call" {
			return nil, nil
		}
		outputIndex := int(root.Get("output_index").Int())
		ofc := &openFunctionCall{
			toolIndex: st.NextToolIndex,
			id:        item.Get("call_id").String(),
			name:      item.Get("name").String(),
		}
		if ofc.id == "" {
			ofc.id = "call_" + uuid.NewString()
		}
		st.NextToolIndex++
		st.FunctionCalls[outputIndex] = ofc
		st.AnyFunctionCall = true
		return []*common.ChatCompletionChunk{st.chunk(model, common.Delta{ToolCalls: []common.DeltaToolCall{{
			Index: ofc.toolIndex,
			ID:    ofc.id,
			Type:  "function",
			Function: &common.DeltaFunctionCall{
				Name:      ofc.name,
				Arguments: "",
			},
		}}}, "")}, nil

	case "response.function_call_arguments.delta":
		outputIndex := int(root.Get("output_index").Int())
		ofc, ok := st.FunctionCalls[outputIndex]
		if !ok {
			return nil, common.MalformedUpstreamFrame("function_call_arguments.delta with no open call")
		}
		delta := root.Get("delta").String()
		return []*common.ChatCompletionChunk{st.chunk(model, common.Delta{ToolCalls: []common.DeltaToolCall{{
			Index:    ofc.toolIndex,
			Function: &common.DeltaFunctionCall{Arguments: delta},
		}}}, "")}, nil

	case "response.completed", "response.done":
		status := root.Get("response.status").String()
		finish := "stop"
		if st.AnyFunctionCall {
			finish = "tool_calls"
		} else if status == "incomplete" {
			finish = "length"
		}
		chunks := []*common.ChatCompletionChunk{st.chunk(model, common.Delta{}, finish)}
		if usage := root.Get("response.usage"); usage.Exists() {
			chunks = append(chunks, &common.ChatCompletionChunk{
				ID:     st.CompletionID,
				Object: "chat.completion.chunk",
				Model:  model,
				Usage: &common.Usage{
					PromptTokens:     int(usage.Get("input_tokens").Int()),
					CompletionTokens: int(usage.Get("output_tokens").Int()),
					TotalTokens:      int(usage.Get("total_tokens").Int()),
				},
			})
		}
		return chunks, nil

	default:
		// Unrecognised event types (response.created, response.in_progress,
		// reasoning summary part boundaries, etc.) carry no content the
		// chat.completions shape can express; drop them silently.
		return nil, nil
	}
}

func (st *StreamState) chunk(model string, delta common.Delta, finishReason string) *common.ChatCompletionChunk {
	if st.IsFirstChunk {
		delta.Role = "assistant"
		st.IsFirstChunk = false
	}
	choice := common.ChatCompletionChunkChoice{Delta: delta}
	if finishReason != "" {
		choice.FinishReason = finishReason
	}
	return &common.ChatCompletionChunk{
		ID:      st.CompletionID,
		Object:  "chat.completion.chunk",
		Model:   model,
		Choices: []common.ChatCompletionChunkChoice{choice},
	}
}

// WriteSSE drives TransformEvent over a line-delimited Responses API stream
// (event:/data: pairs, blank-line delimited) and writes the translated chat
// SSE chunks to w, terminating with [DONE].
func WriteSSE(w io.Writer, upstream io.Reader, model string, includeReasoning bool, onMalformed func(error)) error {
	st := NewStreamState()
	scanner := bufio.NewScanner(upstream)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSuffix(scanner.Bytes(), []byte("\r"))
		if !bytes.HasPrefix(line, []byte("data:")) {
			continue
		}
		payload := bytes.TrimSpace(line[5:])
		if len(payload) == 0 {
			continue
		}
		chunks, err := TransformEvent(st, payload, model, includeReasoning)
		if err != nil {
			if onMalformed != nil {
				onMalformed(err)
			}
			continue
		}
		for _, c := range chunks {
			b, merr := json.Marshal(c)
			if merr != nil {
				return merr
			}
			if _, werr := fmt.Fprintf(w, "data: %s\n\n", b); werr != nil {
				return werr
			}
		}
	}
	_, err := fmt.Fprint(w, "data: [DONE]\n\n")
	return err
}

// ConvertResponsesToChat builds a single non-streaming chat.completions
// response from a final `response.completed`-shaped Responses API body (the
// `response` object, already unwrapped by the caller if it arrived inside an
// SSE envelope).
func ConvertResponsesToChat(raw []byte, model string, includeReasoning bool) (*common.ChatCompletionResponse, error) {
	root := gjson.ParseBytes(raw)
	out := &common.ChatCompletionResponse{
		ID:     "chatcmpl-" + uuid.NewString(),
		Object: "chat.completion",
		Model:  model,
	}

	var text, reasoning string
	var toolCalls []common.ToolCall
	root.Get("output").ForEach(func(_, item gjson.Result) bool {
		switch item.Get("type").String() {
		case "message":
			item.Get("content").ForEach(func(_, part gjson.Result) bool {
				if part.Get("type").String() == "output_text" {
					text += part.Get("text").String()
				}
				return true
			})
		case "reasoning":
			item.Get("summary").ForEach(func(_, part gjson.Result) bool {
				reasoning += part.Get("text").String()
				return true
			})
		case "function_call":
			id := item.Get("call_id").String()
			if id == "" {
				id = "call_" + uuid.NewString()
			}
			toolCalls = append(toolCalls, common.ToolCall{
				ID:   id,
				Type: "function",
				Function: common.FunctionCall{
					Name:      item.Get("name").String(),
					Arguments: item.Get("arguments").String(),
				},
			})
		}
		return true
	})

	msg := common.ChatMessage{Role: "assistant"}
	if text != "" {
		b, _ := json.Marshal(text)
		msg.Content = b
	}
	if includeReasoning && reasoning != "" {
		msg.ReasoningContent = reasoning
	}
	if len(toolCalls) > 0 {
		msg.ToolCalls = toolCalls
	}

	finish := "stop"
	if len(toolCalls) > 0 {
		finish = "tool_calls"
	} else if root.Get("status").String() == "incomplete" {
		finish = "length"
	}

	out.Choices = []common.ChatCompletionChoice{{Message: msg, FinishReason: finish}}
	if usage := root.Get("usage"); usage.Exists() {
		out.Usage = &common.Usage{
			PromptTokens:     int(usage.Get("input_tokens").Int()),
			CompletionTokens: int(usage.Get("output_tokens").Int()),
			TotalTokens:      int(usage.Get("total_tokens").Int()),
		}
	}
	return out, nil
}
