// Package passthrough implements the shared upstream-call machinery for
// providers whose upstream already speaks OpenAI chat.completions on the
// wire (Qwen Code, iFlow, Kiro, Nvidia NIM, Ollama Cloud, OpenRouter, GitHub
// Copilot) — only the base URL, path, and auth header differ per provider.
// Grounded in the teacher's req/v3-based upstream clients (imroc/req is the
// HTTP client used throughout `internal/runtime/executor`).
package passthrough

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/imroc/req/v3"

	"github.com/cliproxyhub/mtproxy/internal/convert/common"
	"github.com/cliproxyhub/mtproxy/internal/provider"
)

// Client issues an OpenAI-compatible chat.completions call against a single
// upstream base URL, streaming or buffered.
type Client struct {
	BaseURL string
	Path    string // defaults to "/chat/completions" if empty
	// AuthHeader builds the header name/value pair carrying the credential,
	// e.g. ("Authorization", "Bearer "+cred). Defaults to Bearer auth.
	AuthHeader func(credential string) (name, value string)
	// ExtraHeaders are set on every request alongside the auth header (e.g.
	// iFlow's per-request HMAC signature).
	ExtraHeaders map[string]string
	http         *req.Client
}

// NewClient builds a Client with a configured req/v3 HTTP client matching
// the teacher's outbound-client conventions (shared transport, timeouts).
func NewClient(baseURL string) *Client {
	return &Client{BaseURL: baseURL, http: req.C()}
}

func (c *Client) authHeader(credential string) (string, string) {
	if c.AuthHeader != nil {
		return c.AuthHeader(credential)
	}
	return "Authorization", "Bearer " + credential
}

// MakeRequest POSTs body to BaseURL+Path with the given bearer credential,
// returning either a streamed body (Stream non-nil) or a buffered,
// already-OpenAI-shaped JSON response.
func (c *Client) MakeRequest(ctx context.Context, credential string, body []byte, stream bool) (*provider.Response, error) {
	path := c.Path
	if path == "" {
		path = "/chat/completions"
	}
	name, value := c.authHeader(credential)

	request := c.http.R().SetContext(ctx).SetHeader(name, value).SetHeader("Content-Type", "application/json").SetBodyBytes(body)
	for k, v := range c.ExtraHeaders {
		request = request.SetHeader(k, v)
	}
	if stream {
		// Keep the body as a live reader instead of req's default
		// read-into-memory, so the SSE frames can be piped straight through.
		request = request.DisableAutoReadResponse()
	}
	resp, err := request.Post(c.BaseURL + path)
	if err != nil {
		return nil, common.NewError(common.KindUpstreamTransient, fmt.Sprintf("passthrough: upstream request failed: %v", err))
	}

	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(resp.Body)
		return nil, classifyError(resp.StatusCode, raw, resp.Header)
	}

	if stream {
		return &provider.Response{Stream: resp.Body, StatusCode: resp.StatusCode, Headers: resp.Header}, nil
	}

	raw, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		return nil, common.NewError(common.KindUpstreamTransient, "passthrough: reading upstream body: "+err.Error())
	}
	var parsed common.ChatCompletionResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, common.MalformedUpstreamFrame(err.Error())
	}
	return &provider.Response{JSON: &parsed, StatusCode: resp.StatusCode, Headers: resp.Header}, nil
}

func classifyError(status int, body []byte, headers http.Header) *common.ProxyError {
	switch {
	case status == 429:
		return common.NewError(common.KindRateLimited, "passthrough: upstream rate limited").WithBody(body).WithHeaders(headers)
	case status == 401:
		return common.NewError(common.KindUnauthorized, "passthrough: upstream rejected credentials")
	case status == 403:
		return common.NewError(common.KindForbidden, "passthrough: upstream forbidden")
	case status == 400 || status == 409 || status == 422:
		return common.NewError(common.KindInvalidRequest, fmt.Sprintf("passthrough: upstream rejected request (%d)", status))
	case status == 500 || status == 502 || status == 503 || status == 504:
		return common.NewError(common.KindUpstreamTransient, fmt.Sprintf("passthrough: upstream server error (%d)", status))
	default:
		return common.NewError(common.KindInternal, fmt.Sprintf("passthrough: unexpected upstream status %d", status))
	}
}
