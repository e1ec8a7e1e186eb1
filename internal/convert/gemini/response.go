package gemini

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/cliproxyhub/mtproxy/internal/convert/common"
	"github.com/cliproxyhub/mtproxy/internal/toolschema"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

func mapFinishReason(reason string, hasToolCalls bool) string {
	switch reason {
	case "STOP":
		if hasToolCalls {
			return "tool_calls"
		}
		return "stop"
	case "MAX_TOKENS":
		return "length"
	case "TOOL_CALLS":
		return "tool_calls"
	default:
		if hasToolCalls {
			return "tool_calls"
		}
		return "stop"
	}
}

// unwrapResponseEnvelope strips an optional array-wrapping and/or
// `response:` envelope key from a raw Gemini frame.
func unwrapResponseEnvelope(raw []byte) []byte {
	root := gjson.ParseBytes(raw)
	if root.IsArray() {
		arr := root.Array()
		if len(arr) == 0 {
			return raw
		}
		raw = []byte(arr[0].Raw)
		root = gjson.ParseBytes(raw)
	}
	if inner := root.Get("response"); inner.Exists() {
		return []byte(inner.Raw)
	}
	return raw
}

// signatureWriter is the subset of *signature.Cache the response-conversion
// path needs; narrow interface for the same decoupling reason as
// signatureLookup in envelope.go.
type signatureWriter interface {
	Put(family, sessionID, textKey, sig string)
}

// ConvertGeminiResponseNonStream implements §4.2.3's non-streaming path.
func ConvertGeminiResponseNonStream(raw []byte, model string, includeReasoning bool, toolCache *toolschema.Cache, sessionID string, sigCache signatureWriter) (*common.ChatCompletionResponse, error) {
	unwrapped := unwrapResponseEnvelope(raw)
	var resp Response
	if err := json.Unmarshal(unwrapped, &resp); err != nil {
		return nil, common.MalformedUpstreamFrame(err.Error())
	}

	out := &common.ChatCompletionResponse{
		ID:     "chatcmpl-" + uuid.NewString(),
		Object: "chat.completion",
		Model:  model,
	}

	for i, cand := range resp.Candidates {
		var text, reasoning strings.Builder
		var toolCalls []common.ToolCall
		for _, p := range cand.Content.Parts {
			switch {
			case p.FunctionCall != nil:
				args := toolschema.NormalizeToolCallArgs(p.FunctionCall.Name, p.FunctionCall.Args, toolCache)
				argsJSON, _ := json.Marshal(args)
				id := p.FunctionCall.ID
				if id == "" {
					id = "call_" + uuid.NewString()
				}
				toolCalls = append(toolCalls, common.ToolCall{
					ID:   id,
					Type: "function",
					Function: common.FunctionCall{
						Name:      p.FunctionCall.Name,
						Arguments: string(argsJSON),
					},
				})
			case p.Thought:
				reasoning.WriteString(p.Text)
				if sigCache != nil && p.ThoughtSignature != "" {
					sigCache.Put("gemini", sessionID, textKeyFn(p.Text), p.ThoughtSignature)
				}
			case p.Text != "":
				text.WriteString(p.Text)
			}
		}

		msg := common.ChatMessage{Role: "assistant"}
		if text.Len() > 0 {
			content, _ := json.Marshal(text.String())
			msg.Content = content
		}
		if len(toolCalls) > 0 {
			msg.ToolCalls = toolCalls
		}
		choice := common.ChatCompletionChoice{
			Index:        i,
			Message:      msg,
			FinishReason: mapFinishReason(cand.FinishReason, len(toolCalls) > 0),
		}
		out.Choices = append(out.Choices, choice)
		if includeReasoning && reasoning.Len() > 0 {
			out.Choices[i].Message.ReasoningContent = reasoning.String()
		}
	}

	if resp.UsageMetadata != nil {
		out.Usage = &common.Usage{
			PromptTokens:     resp.UsageMetadata.PromptTokenCount,
			CompletionTokens: resp.UsageMetadata.CandidatesTokenCount,
			TotalTokens:      resp.UsageMetadata.TotalTokenCount,
		}
	}
	return out, nil
}

// StreamState is the explicit state struct threaded through the pull-based
// SSE transducer (§9 design notes): isFirstChunk, toolCallIndex,
// hasToolCalls, toolCallIds (name -> stableId), and a single completionId.
type StreamState struct {
	CompletionID     string
	IsFirstChunk     bool
	ToolCallIndex    int
	HasToolCalls     bool
	ToolCallIDByName map[string]string
	UsagePromptTok   int
	UsageCompTok     int
	UsageTotalTok    int
	SawUsage         bool
}

// NewStreamState constructs the initial state for one SSE response.
func NewStreamState() *StreamState {
	return &StreamState{
		CompletionID:     "chatcmpl-" + uuid.NewString(),
		IsFirstChunk:     true,
		ToolCallIDByName: map[string]string{},
	}
}

// TransformFrame consumes one already-unwrapped Gemini response frame and
// emits zero or more OpenAI chunks, per the pull-based, back-pressure-driven
// model in §5/§9: at most one upstream frame in, zero-or-more downstream
// frames out, before yielding back to the caller.
func TransformFrame(st *StreamState, raw []byte, model string, includeReasoning bool, toolCache *toolschema.Cache, sessionID string, sigCache signatureWriter) ([]*common.ChatCompletionChunk, error) {
	unwrapped := unwrapResponseEnvelope(raw)
	var resp Response
	if err := json.Unmarshal(unwrapped, &resp); err != nil {
		return nil, common.MalformedUpstreamFrame(err.Error())
	}

	var chunks []*common.ChatCompletionChunk
	for _, cand := range resp.Candidates {
		for _, p := range cand.Content.Parts {
			switch {
			case p.FunctionCall != nil:
				st.HasToolCalls = true
				name := p.FunctionCall.Name
				id, ok := st.ToolCallIDByName[name]
				if !ok {
					id = p.FunctionCall.ID
					if id == "" {
						id = "call_" + uuid.NewString()
					}
					st.ToolCallIDByName[name] = id
				}
				args := toolschema.NormalizeToolCallArgs(name, p.FunctionCall.Args, toolCache)
				argsJSON, _ := json.Marshal(args)
				delta := common.Delta{ToolCalls: []common.DeltaToolCall{{
					Index: st.ToolCallIndex,
					ID:    id,
					Type:  "function",
					Function: &common.DeltaFunctionCall{
						Name:      name,
						Arguments: string(argsJSON),
					},
				}}}
				st.ToolCallIndex++
				chunks = append(chunks, st.chunk(model, delta, ""))
			case p.Thought:
				if sigCache != nil && p.ThoughtSignature != "" {
					sigCache.Put("gemini", sessionID, textKeyFn(p.Text), p.ThoughtSignature)
				}
				if !includeReasoning {
					continue
				}
				chunks = append(chunks, st.chunk(model, common.Delta{ReasoningContent: p.Text}, ""))
			case p.Text != "":
				chunks = append(chunks, st.chunk(model, common.Delta{Content: p.Text}, ""))
			}
		}
		if cand.FinishReason != "" {
			chunks = append(chunks, st.chunk(model, common.Delta{}, mapFinishReason(cand.FinishReason, st.HasToolCalls)))
		}
	}
	if resp.UsageMetadata != nil {
		st.UsagePromptTok = resp.UsageMetadata.PromptTokenCount
		st.UsageCompTok = resp.UsageMetadata.CandidatesTokenCount
		st.UsageTotalTok = resp.UsageMetadata.TotalTokenCount
		st.SawUsage = true
	}
	return chunks, nil
}

// chunk builds one OpenAI chunk, stamping role:"assistant" on the very
// first chunk only.
func (st *StreamState) chunk(model string, delta common.Delta, finishReason string) *common.ChatCompletionChunk {
	if st.IsFirstChunk {
		delta.Role = "assistant"
		st.IsFirstChunk = false
	}
	c := &common.ChatCompletionChunk{
		ID:     st.CompletionID,
		Object: "chat.completion.chunk",
		Model:  model,
	}
	choice := common.ChatCompletionChunkChoice{Delta: delta}
	if finishReason != "" {
		choice.FinishReason = finishReason
	}
	c.Choices = []common.ChatCompletionChunkChoice{choice}
	return c
}

// Flush returns the trailing usage chunk (if any usage was observed), with
// an empty choices array. It does not emit [DONE]; WriteSSE writes that
// marker after the flushed chunks, so usage precedes [DONE].
func (st *StreamState) Flush(model string) []*common.ChatCompletionChunk {
	var out []*common.ChatCompletionChunk
	if st.SawUsage {
		c := &common.ChatCompletionChunk{
			ID:      st.CompletionID,
			Object:  "chat.completion.chunk",
			Model:   model,
			Choices: []common.ChatCompletionChunkChoice{},
			Usage: &common.Usage{
				PromptTokens:     st.UsagePromptTok,
				CompletionTokens: st.UsageCompTok,
				TotalTokens:      st.UsageTotalTok,
			},
		}
		out = append(out, c)
	}
	return out
}

// WriteSSE drives TransformFrame/Flush over a line-delimited `data: ...`
// upstream body, writing each resulting chunk as an SSE frame to w, then a
// final `data: [DONE]\n\n`. Malformed frames are logged and dropped (via the
// onMalformed callback) without aborting the stream.
func WriteSSE(w io.Writer, upstream io.Reader, model string, includeReasoning bool, toolCache *toolschema.Cache, sessionID string, sigCache signatureWriter, onMalformed func(error)) error {
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
		chunks, err := TransformFrame(st, payload, model, includeReasoning, toolCache, sessionID, sigCache)
		if err != nil {
			if onMalformed != nil {
				onMalformed(err)
			}
			continue
		}
		for _, c := range chunks {
			if err := writeChunk(w, c); err != nil {
				return err
			}
		}
	}
	for _, c := range st.Flush(model) {
		if err := writeChunk(w, c); err != nil {
			return err
		}
	}
	_, err := fmt.Fprint(w, "data: [DONE]\n\n")
	return err
}

func writeChunk(w io.Writer, c *common.ChatCompletionChunk) error {
	b, err := json.Marshal(c)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", b)
	return err
}

// UnwrapAntigravityLine strips the `response:` wrapper and array-wrapping
// from one already-stripped `data: ...` SSE payload, ahead of the regular
// Gemini->OpenAI transform (§4.2.3's "Antigravity unwrap transform").
func UnwrapAntigravityLine(payload []byte) []byte {
	return unwrapResponseEnvelope(payload)
}
