package httpapi

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/cliproxyhub/mtproxy/internal/convert/common"
	"github.com/cliproxyhub/mtproxy/internal/dispatcher"
)

// anthropicRequest is the subset of the Messages API wire shape this thin
// adapter understands: plain-string or multi-part content, an optional
// top-level system prompt, and the streaming flag (§6: "a thin
// Anthropic->OpenAI adapter lives outside the core").
type anthropicRequest struct {
	Model       string             `json:"model"`
	Messages    []anthropicMessage `json:"messages"`
	System      json.RawMessage    `json:"system,omitempty"`
	MaxTokens   int                `json:"max_tokens,omitempty"`
	Stream      bool               `json:"stream,omitempty"`
	Temperature *float64           `json:"temperature,omitempty"`
}

type anthropicMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

type anthropicContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// Messages handles POST /v1/messages: translates the Anthropic-shaped body
// into a common.ChatCompletionRequest, dispatches it exactly like
// /v1/chat/completions, then translates the OpenAI-shaped result back.
func (s *Server) Messages(c *gin.Context) {
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		writeError(c, httpError(http.StatusBadRequest, "reading request body: "+err.Error()))
		return
	}
	var in anthropicRequest
	if err := json.Unmarshal(raw, &in); err != nil {
		writeError(c, httpError(http.StatusBadRequest, "invalid JSON body: "+err.Error()))
		return
	}
	if in.Model == "" {
		writeError(c, httpError(http.StatusBadRequest, "model is required"))
		return
	}

	chatReq, err := anthropicToChat(&in)
	if err != nil {
		writeError(c, httpError(http.StatusBadRequest, "translating request: "+err.Error()))
		return
	}
	body, err := json.Marshal(chatReq)
	if err != nil {
		writeError(c, httpError(http.StatusInternalServerError, "re-encoding request: "+err.Error()))
		return
	}

	resp, err := s.Dispatcher.Dispatch(requestContext(c), &dispatcher.Request{
		UserID: userID(c),
		Model:  in.Model,
		Body:   body,
		Stream: in.Stream,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	if in.Stream {
		s.writeAnthropicStream(c, resp.Stream, in.Model)
		return
	}
	c.JSON(http.StatusOK, chatToAnthropic(resp.JSON, in.Model))
}

// anthropicToChat flattens the system prompt and per-message content blocks
// into the OpenAI messages[] shape; only text blocks are carried (§6 scope:
// "thin" adapter, not full tool-use/image parity).
func anthropicToChat(in *anthropicRequest) (*common.ChatCompletionRequest, error) {
	out := &common.ChatCompletionRequest{
		Model:  in.Model,
		Stream: in.Stream,
	}
	if in.MaxTokens > 0 {
		out.MaxTokens = &in.MaxTokens
	}
	out.Temperature = in.Temperature

	if len(in.System) > 0 {
		text, err := flattenAnthropicContent(in.System)
		if err != nil {
			return nil, fmt.Errorf("system: %w", err)
		}
		if text != "" {
			contentJSON, _ := json.Marshal(text)
			out.Messages = append(out.Messages, common.ChatMessage{Role: "system", Content: contentJSON})
		}
	}

	for _, m := range in.Messages {
		text, err := flattenAnthropicContent(m.Content)
		if err != nil {
			return nil, fmt.Errorf("message: %w", err)
		}
		contentJSON, _ := json.Marshal(text)
		out.Messages = append(out.Messages, common.ChatMessage{Role: m.Role, Content: contentJSON})
	}
	return out, nil
}

// flattenAnthropicContent accepts either a plain JSON string or an array of
// {"type":"text","text":...} blocks and returns the concatenated text.
func flattenAnthropicContent(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", nil
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return asString, nil
	}
	var blocks []anthropicContentBlock
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return "", err
	}
	var sb strings.Builder
	for _, b := range blocks {
		if b.Type == "text" {
			sb.WriteString(b.Text)
		}
	}
	return sb.String(), nil
}

// chatToAnthropic renders a buffered OpenAI response in the Messages API
// non-streaming shape.
func chatToAnthropic(resp *common.ChatCompletionResponse, model string) gin.H {
	text := ""
	stopReason := "end_turn"
	if resp != nil && len(resp.Choices) > 0 {
		choice := resp.Choices[0]
		var asString string
		if json.Unmarshal(choice.Message.Content, &asString) == nil {
			text = asString
		}
		if choice.FinishReason == "length" {
			stopReason = "max_tokens"
		}
	}
	usage := gin.H{"input_tokens": 0, "output_tokens": 0}
	if resp != nil && resp.Usage != nil {
		usage = gin.H{"input_tokens": resp.Usage.PromptTokens, "output_tokens": resp.Usage.CompletionTokens}
	}
	return gin.H{
		"id":          "msg_" + uuid.NewString(),
		"type":        "message",
		"role":        "assistant",
		"model":       model,
		"content":     []gin.H{{"type": "text", "text": text}},
		"stop_reason": stopReason,
		"usage":       usage,
	}
}

// writeAnthropicStream re-frames the provider's OpenAI-shaped SSE chunks as
// the Messages API's event-typed stream (message_start / content_block_delta
// / message_stop), the minimal event sequence most Anthropic SDKs require.
func (s *Server) writeAnthropicStream(c *gin.Context, upstream io.ReadCloser, model string) {
	defer upstream.Close()
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		writeError(c, httpError(http.StatusInternalServerError, "streaming unsupported by response writer"))
		return
	}
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache, no-transform")
	c.Header("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)

	writeEvent(c.Writer, "message_start", gin.H{
		"type": "message_start",
		"message": gin.H{
			"id": "msg_" + uuid.NewString(), "type": "message", "role": "assistant",
			"model": model, "content": []any{}, "usage": gin.H{"input_tokens": 0, "output_tokens": 0},
		},
	})
	writeEvent(c.Writer, "content_block_start", gin.H{
		"type": "content_block_start", "index": 0,
		"content_block": gin.H{"type": "text", "text": ""},
	})
	flusher.Flush()

	scanner := bufio.NewScanner(upstream)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	index := 0
	for scanner.Scan() {
		line := scanner.Text()
		data, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			continue
		}
		if data == "[DONE]" {
			break
		}
		var chunk common.ChatCompletionChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue
		}
		for _, choice := range chunk.Choices {
			if choice.Delta.Content == "" {
				continue
			}
			writeEvent(c.Writer, "content_block_delta", gin.H{
				"type": "content_block_delta", "index": index,
				"delta": gin.H{"type": "text_delta", "text": choice.Delta.Content},
			})
			flusher.Flush()
		}
	}

	writeEvent(c.Writer, "content_block_stop", gin.H{"type": "content_block_stop", "index": 0})
	writeEvent(c.Writer, "message_delta", gin.H{
		"type": "message_delta", "delta": gin.H{"stop_reason": "end_turn"},
	})
	writeEvent(c.Writer, "message_stop", gin.H{"type": "message_stop"})
	flusher.Flush()
}

func writeEvent(w io.Writer, event string, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		return
	}
	var buf bytes.Buffer
	buf.WriteString("event: ")
	buf.WriteString(event)
	buf.WriteString("\ndata: ")
	buf.Write(body)
	buf.WriteString("\n\n")
	_, _ = w.Write(buf.Bytes())
}
