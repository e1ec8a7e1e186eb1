package httpapi

import (
	"bufio"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cliproxyhub/mtproxy/internal/convert/common"
	"github.com/cliproxyhub/mtproxy/internal/dispatcher"
)

// ChatCompletions handles POST /v1/chat/completions: the OpenAI-shaped
// inbound body is handed to the dispatcher (C9) unchanged, and the upstream
// Response (already OpenAI-shaped by the provider, §4.1) is streamed or
// written straight through, matching the teacher's
// handleStreamingResponse/handleNonStreamingResponse split in
// sdk/api/handlers/openai/openai_responses_handlers.go.
func (s *Server) ChatCompletions(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		writeError(c, httpError(http.StatusBadRequest, "reading request body: "+err.Error()))
		return
	}

	var probe struct {
		Model  string `json:"model"`
		Stream bool   `json:"stream"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		writeError(c, httpError(http.StatusBadRequest, "invalid JSON body: "+err.Error()))
		return
	}
	if probe.Model == "" {
		writeError(c, httpError(http.StatusBadRequest, "model is required"))
		return
	}

	req := &dispatcher.Request{
		UserID: userID(c),
		Model:  probe.Model,
		Body:   body,
		Stream: probe.Stream,
	}

	resp, err := s.Dispatcher.Dispatch(requestContext(c), req)
	if err != nil {
		writeError(c, err)
		return
	}

	if probe.Stream {
		s.writeStream(c, resp.Stream)
		return
	}
	s.writeBuffered(c, resp.JSON)
}

// writeBuffered sends a buffered, already-OpenAI-shaped chat completion.
func (s *Server) writeBuffered(c *gin.Context, body *common.ChatCompletionResponse) {
	c.Header("Content-Type", "application/json")
	payload, err := json.Marshal(body)
	if err != nil {
		writeError(c, httpError(http.StatusInternalServerError, "encoding response: "+err.Error()))
		return
	}
	c.Data(http.StatusOK, "application/json", payload)
}

// writeStream copies the provider's already-framed SSE body to the caller,
// flushing after every write and interleaving ": keep-alive" SSE comment
// lines per the configured interval (Streaming.KeepAliveSeconds).
func (s *Server) writeStream(c *gin.Context, upstream io.ReadCloser) {
	defer upstream.Close()

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		writeError(c, httpError(http.StatusInternalServerError, "streaming unsupported by response writer"))
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache, no-transform")
	c.Header("Connection", "keep-alive")
	if s.Cfg != nil && s.Cfg.Streaming.DisableProxyBuffering {
		c.Header("X-Accel-Buffering", "no")
	}
	c.Writer.WriteHeader(http.StatusOK)
	flusher.Flush()

	keepAlive := s.streamingKeepAlive()
	done := make(chan struct{})
	if keepAlive > 0 {
		go s.sendKeepAlives(c, keepAlive, done)
		defer close(done)
	}

	reader := bufio.NewReader(upstream)
	buf := make([]byte, 32*1024)
	for {
		n, err := reader.Read(buf)
		if n > 0 {
			if _, werr := c.Writer.Write(buf[:n]); werr != nil {
				return
			}
			flusher.Flush()
		}
		if err != nil {
			return
		}
	}
}

func (s *Server) sendKeepAlives(c *gin.Context, interval time.Duration, done <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	flusher, _ := c.Writer.(http.Flusher)
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if _, err := c.Writer.Write([]byte(": keep-alive\n\n")); err != nil {
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
	}
}

// streamingKeepAlive returns the SSE keep-alive interval for this server.
// Returning 0 disables keep-alives (default when unset), matching
// handlers.StreamingKeepAliveInterval in the teacher.
func (s *Server) streamingKeepAlive() time.Duration {
	if s.Cfg == nil || s.Cfg.Streaming.KeepAliveSeconds <= 0 {
		return 0
	}
	return time.Duration(s.Cfg.Streaming.KeepAliveSeconds) * time.Second
}
