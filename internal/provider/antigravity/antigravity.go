// Package antigravity implements the C7 Provider for Google Antigravity /
// Code Assist, the hardest upstream: PKCE OAuth plus the full
// chat.completions<->Gemini Code Assist envelope pipeline (C6).
package antigravity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/imroc/req/v3"

	"github.com/cliproxyhub/mtproxy/internal/accountstore"
	"github.com/cliproxyhub/mtproxy/internal/convert/common"
	"github.com/cliproxyhub/mtproxy/internal/convert/gemini"
	"github.com/cliproxyhub/mtproxy/internal/provider"
	"github.com/cliproxyhub/mtproxy/internal/provider/pkceprovider"
	"github.com/cliproxyhub/mtproxy/internal/signature"
	"github.com/cliproxyhub/mtproxy/internal/toolschema"
)

const (
	authEndpoint  = "https://accounts.google.com/o/oauth2/v2/auth"
	tokenEndpoint = "https://oauth2.googleapis.com/token"
	scope         = "https://www.googleapis.com/auth/cloud-platform https://www.googleapis.com/auth/userinfo.email"

	generateContentPath       = "/v1internal:generateContent"
	streamGenerateContentPath = "/v1internal:streamGenerateContent?alt=sse"
	loadCodeAssistPath        = "/v1internal:loadCodeAssist"
)

// codeAssistHost* list the Code Assist hosts in the per-call-kind order the
// upstream actually honors: generate/streamGenerate calls prefer the staging
// hosts (daily, then autopush) before falling back to prod, while the
// loadCodeAssist discovery call prefers prod before falling back to daily.
var (
	codeAssistAPIHosts = []string{
		"https://daily-cloudcode-pa.sandbox.googleapis.com",
		"https://autopush-cloudcode-pa.sandbox.googleapis.com",
		"https://cloudcode-pa.googleapis.com",
	}
	codeAssistDiscoveryHosts = []string{
		"https://cloudcode-pa.googleapis.com",
		"https://daily-cloudcode-pa.sandbox.googleapis.com",
	}
)

var supportedModels = map[string]struct{}{
	"claude-opus-4-5":    {},
	"claude-sonnet-4-5":  {},
	"gemini-3-pro":       {},
	"gemini-3-flash":     {},
}

// Provider is the Antigravity upstream.
type Provider struct {
	*pkceprovider.Engine
	sigCache  *signature.Cache
	toolCache *toolschema.Cache
	http      *req.Client
}

// New builds the Antigravity provider, sharing a thought-signature cache
// with whatever else routes through it (the dispatcher owns one C4 cache
// per process and hands it to every Gemini-family provider).
func New(clientID, clientSecret, redirectURI string, sigCache *signature.Cache) *Provider {
	engine := pkceprovider.NewEngine(pkceprovider.Spec{
		Name:          "antigravity",
		AuthEndpoint:  authEndpoint,
		TokenEndpoint: tokenEndpoint,
		ClientID:      clientID,
		ClientSecret:  clientSecret,
		Scope:         scope,
		RedirectURI:   redirectURI,
		FetchAccountInfo: fetchAccountInfo,
	})
	return &Provider{Engine: engine, sigCache: sigCache, toolCache: toolschema.NewCache(), http: req.C()}
}

func (p *Provider) Config() provider.Config {
	return provider.Config{Name: "antigravity", DisplayName: "Google Antigravity", SupportedModels: supportedModels}
}

// PrepareRequest is a no-op for Antigravity; the agent-window synthetic
// tool-call injection (§4.1 item 6) is Copilot-specific.
func (p *Provider) PrepareRequest(context.Context, *accountstore.Account, []byte, string) []byte { return nil }

// MakeRequest converts the OpenAI request to the Gemini Code Assist
// envelope, issues the upstream call, and converts the response back.
func (p *Provider) MakeRequest(ctx context.Context, credential string, account *accountstore.Account, body []byte, stream bool) (*provider.Response, error) {
	var chatReq common.ChatCompletionRequest
	if err := json.Unmarshal(body, &chatReq); err != nil {
		return nil, common.NewError(common.KindInvalidRequest, "antigravity: decode request: "+err.Error())
	}

	geminiReq := gemini.ConvertChatToGeminiRequest(&chatReq)
	sessionID := gemini.DeriveSessionID(chatReq.Messages)
	envelope := gemini.BuildEnvelope(account.ProjectID, chatReq.Model, sessionID, geminiReq, p.sigCache)

	payload, err := json.Marshal(envelope)
	if err != nil {
		return nil, common.NewError(common.KindInternal, "antigravity: marshal envelope: "+err.Error())
	}

	path := generateContentPath
	if stream {
		path = streamGenerateContentPath
	}
	resp, err := p.postCodeAssist(ctx, credential, path, payload, stream)
	if err != nil {
		return nil, common.NewError(common.KindUpstreamTransient, fmt.Sprintf("antigravity: upstream request failed: %v", err))
	}

	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(resp.Body)
		return nil, classifyUpstreamError(resp.StatusCode, raw, resp.Header)
	}

	if stream {
		pr, pw := io.Pipe()
		go func() {
			defer resp.Body.Close()
			err := gemini.WriteSSE(pw, resp.Body, chatReq.Model, includeReasoning(&chatReq), p.toolCache, sessionID, p.sigCache, func(error) {})
			_ = pw.CloseWithError(err)
		}()
		return &provider.Response{Stream: pr, StatusCode: resp.StatusCode, Headers: resp.Header}, nil
	}

	raw, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		return nil, common.NewError(common.KindUpstreamTransient, "antigravity: reading upstream body: "+err.Error())
	}
	parsed, err := gemini.ConvertGeminiResponseNonStream(raw, chatReq.Model, includeReasoning(&chatReq), p.toolCache, sessionID, p.sigCache)
	if err != nil {
		return nil, err
	}
	return &provider.Response{JSON: parsed, StatusCode: resp.StatusCode, Headers: resp.Header}, nil
}

// postCodeAssist tries codeAssistAPIHosts in order, falling back to the next
// host on a transport error or a 429/5xx response, per §6's "daily->autopush
// ->prod for API calls" ordering. It returns the first response that isn't a
// transport error or retryable status, or the last attempt's result once
// every host has been tried.
func (p *Provider) postCodeAssist(ctx context.Context, credential, path string, payload []byte, stream bool) (*req.Response, error) {
	var resp *req.Response
	var err error
	for i, host := range codeAssistAPIHosts {
		request := p.http.R().SetContext(ctx).
			SetHeader("Authorization", "Bearer "+credential).
			SetHeader("Content-Type", "application/json").
			SetBodyBytes(payload)
		if stream {
			request = request.DisableAutoReadResponse()
		}
		resp, err = request.Post(host + path)
		if err == nil && resp.StatusCode != 429 && resp.StatusCode < 500 {
			return resp, nil
		}
		if i < len(codeAssistAPIHosts)-1 {
			if resp != nil {
				resp.Body.Close()
			}
			continue
		}
	}
	return resp, err
}

func includeReasoning(req *common.ChatCompletionRequest) bool {
	return req.Reasoning != nil || req.ReasoningEffort != ""
}

func classifyUpstreamError(status int, body []byte, headers map[string][]string) *common.ProxyError {
	h := make(map[string][]string, len(headers))
	for k, v := range headers {
		h[k] = v
	}
	switch {
	case status == 429:
		return common.NewError(common.KindRateLimited, "antigravity: upstream rate limited").WithBody(body).WithHeaders(h)
	case status == 401:
		return common.NewError(common.KindUnauthorized, "antigravity: upstream rejected credentials")
	case status == 403:
		return common.NewError(common.KindForbidden, "antigravity: upstream forbidden")
	case status == 400 || status == 409 || status == 422:
		return common.NewError(common.KindInvalidRequest, fmt.Sprintf("antigravity: upstream rejected request (%d)", status))
	case status >= 500:
		return common.NewError(common.KindUpstreamTransient, fmt.Sprintf("antigravity: upstream server error (%d)", status))
	default:
		return common.NewError(common.KindInternal, fmt.Sprintf("antigravity: unexpected upstream status %d", status))
	}
}

func fetchAccountInfo(ctx context.Context, accessToken string) (*pkceprovider.AccountInfo, error) {
	client := req.C()
	var resp *req.Response
	var err error
	for i, host := range codeAssistDiscoveryHosts {
		resp, err = client.R().SetContext(ctx).
			SetHeader("Authorization", "Bearer "+accessToken).
			SetBodyBytes([]byte(`{}`)).
			Post(host + loadCodeAssistPath)
		if err == nil && resp.StatusCode < 500 {
			break
		}
		if i == len(codeAssistDiscoveryHosts)-1 {
			break
		}
	}
	if err != nil {
		return nil, err
	}
	raw := resp.Bytes()
	var parsed struct {
		CloudaicompanionProject string `json:"cloudaicompanionProject"`
		CurrentTier             struct {
			ID string `json:"id"`
		} `json:"currentTier"`
	}
	if err := json.Unmarshal(bytes.TrimSpace(raw), &parsed); err != nil {
		return nil, err
	}
	return &pkceprovider.AccountInfo{
		ProjectID: parsed.CloudaicompanionProject,
		Tier:      accountstore.Tier(parsed.CurrentTier.ID),
	}, nil
}
