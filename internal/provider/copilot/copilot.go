// Package copilot implements the C7 Provider for GitHub Copilot:
// device-code OAuth against GitHub, a second hop exchanging the GitHub
// token for a short-lived Copilot API token, and the agent-window
// synthetic tool-call injection in PrepareRequest (§4.1 item 6).
package copilot

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/imroc/req/v3"

	"github.com/cliproxyhub/mtproxy/internal/accountstore"
	"github.com/cliproxyhub/mtproxy/internal/convert/common"
	"github.com/cliproxyhub/mtproxy/internal/oauthflow"
	"github.com/cliproxyhub/mtproxy/internal/provider"
	"github.com/cliproxyhub/mtproxy/internal/provider/passthrough"
)

const (
	deviceCodeURL    = "https://github.com/login/device/code"
	accessTokenURL   = "https://github.com/login/oauth/access_token"
	copilotTokenURL  = "https://api.github.com/copilot_internal/v2/token"
	chatURL          = "https://api.githubcopilot.com"
	githubScope      = "read:user"
	agentWindow      = 5 * time.Hour
	refreshBuffer    = 5 * time.Minute
)

var supportedModels = map[string]struct{}{
	"gpt-5":        {},
	"gpt-5-mini":   {},
	"claude-sonnet-4.5": {},
	"o3-mini":      {},
}

// defaultClientID is GitHub's published device-flow client id for the Copilot CLI
// integration; overridable via GITHUB_COPILOT_CLIENT_ID (§6).
const defaultClientID = "Iv1.b507a08c87ecfe98"

// Provider is the GitHub Copilot upstream. It satisfies
// provider.DeviceCodeProvider in place of the PKCE surface.
type Provider struct {
	clientID string
	client   *passthrough.Client
	http     *req.Client

	mu        sync.Mutex
	windows   map[string]time.Time // accountID -> window expiry
	headerDue map[string]bool      // accountID -> whether this call's touchWindow found it already in-window
}

// New builds the Copilot provider.
func New(clientID string) *Provider {
	if clientID == "" {
		clientID = defaultClientID
	}
	return &Provider{
		clientID:  clientID,
		client:    passthrough.NewClient(chatURL),
		http:      req.C(),
		windows:   make(map[string]time.Time),
		headerDue: make(map[string]bool),
	}
}

func (p *Provider) Config() provider.Config {
	return provider.Config{Name: "copilot", DisplayName: "GitHub Copilot", SupportedModels: supportedModels}
}

func (p *Provider) GetAuthURL(string, string) (string, error) {
	return "", provider.ErrUnsupportedAuthFlow
}

func (p *Provider) ExchangeCode(context.Context, string, string, string) (*provider.OAuthResult, error) {
	return nil, provider.ErrUnsupportedAuthFlow
}

// InitiateDeviceCode requests a device/user code pair from GitHub.
func (p *Provider) InitiateDeviceCode(ctx context.Context) (*provider.DeviceCodeInit, error) {
	resp, err := p.http.R().SetContext(ctx).
		SetHeader("Accept", "application/json").
		SetFormData(map[string]string{"client_id": p.clientID, "scope": githubScope}).
		Post(deviceCodeURL)
	if err != nil {
		return nil, common.NewError(common.KindUpstreamTransient, "copilot: device code request failed: "+err.Error())
	}
	var dc oauthflow.DeviceCodeResponse
	if err := json.Unmarshal(resp.Bytes(), &dc); err != nil {
		return nil, common.MalformedUpstreamFrame(err.Error())
	}
	return &provider.DeviceCodeInit{
		DeviceCode:      dc.DeviceCode,
		UserCode:        dc.UserCode,
		VerificationURI: dc.VerificationURI,
		Interval:        time.Duration(dc.Interval) * time.Second,
		ExpiresAt:       time.Now().Add(time.Duration(dc.ExpiresIn) * time.Second),
	}, nil
}

// PollDeviceCode polls GitHub's access-token endpoint, then exchanges the
// resulting GitHub token for the short-lived Copilot API token.
func (p *Provider) PollDeviceCode(ctx context.Context, init *provider.DeviceCodeInit) (*provider.OAuthResult, error) {
	dc := &oauthflow.DeviceCodeResponse{
		DeviceCode: init.DeviceCode,
		Interval:   int(init.Interval / time.Second),
		ExpiresIn:  int(time.Until(init.ExpiresAt) / time.Second),
	}

	result := oauthflow.PollDeviceCode(ctx, dc, p.pollGitHubToken)
	switch result.Outcome {
	case oauthflow.PollAuthorized:
	case oauthflow.PollDenied:
		return nil, common.NewError(common.KindForbidden, "copilot: device authorization denied")
	case oauthflow.PollExpired:
		return nil, common.NewError(common.KindInvalidRequest, "copilot: device code expired")
	default:
		return nil, common.NewError(common.KindUpstreamTransient, fmt.Sprintf("copilot: device poll failed: %v", result.Err))
	}

	copilotToken, err := p.fetchCopilotToken(ctx, result.AccessToken)
	if err != nil {
		return nil, err
	}

	return &provider.OAuthResult{
		AccessToken:  copilotToken.token,
		RefreshToken: result.AccessToken, // the long-lived GitHub token refreshes the Copilot token
		ExpiresAt:    copilotToken.expiresAt,
	}, nil
}

// pollGitHubToken is the oauthflow.TokenPoller for GitHub's device-flow
// access-token endpoint; it must hand back a *http.Response since
// classifyPollResponse inspects the status code directly.
func (p *Provider) pollGitHubToken(ctx context.Context, deviceCode string) (*http.Response, []byte, error) {
	form := url.Values{
		"client_id":   {p.clientID},
		"device_code": {deviceCode},
		"grant_type":  {"urn:ietf:params:oauth:grant-type:device_code"},
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, accessTokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, nil, err
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		return nil, nil, err
	}
	body, err := oauthflow.DrainBody(resp)
	if err != nil {
		return nil, nil, err
	}
	return resp, body, nil
}

func (p *Provider) RefreshToken(ctx context.Context, refreshToken string) (*provider.OAuthResult, error) {
	copilotToken, err := p.fetchCopilotToken(ctx, refreshToken)
	if err != nil {
		return nil, err
	}
	return &provider.OAuthResult{
		AccessToken:  copilotToken.token,
		RefreshToken: refreshToken,
		ExpiresAt:    copilotToken.expiresAt,
	}, nil
}

type copilotToken struct {
	token     string
	expiresAt time.Time
}

func (p *Provider) fetchCopilotToken(ctx context.Context, githubToken string) (*copilotToken, error) {
	resp, err := p.http.R().SetContext(ctx).
		SetHeader("Authorization", "token "+githubToken).
		SetHeader("Accept", "application/json").
		Get(copilotTokenURL)
	if err != nil {
		return nil, common.NewError(common.KindUpstreamTransient, "copilot: token exchange failed: "+err.Error())
	}
	if resp.StatusCode >= 400 {
		return nil, common.NewError(common.KindUnauthorized, fmt.Sprintf("copilot: token exchange rejected (%d)", resp.StatusCode))
	}
	var parsed struct {
		Token     string `json:"token"`
		ExpiresAt int64  `json:"expires_at"`
	}
	if err := json.Unmarshal(resp.Bytes(), &parsed); err != nil {
		return nil, common.MalformedUpstreamFrame(err.Error())
	}
	return &copilotToken{token: parsed.Token, expiresAt: time.Unix(parsed.ExpiresAt, 0)}, nil
}

// GetValidCredentials refreshes the Copilot API token (buffer 5m per §4.1)
// using the long-lived GitHub token stored as RefreshToken.
func (p *Provider) GetValidCredentials(ctx context.Context, account *accountstore.Account, repo accountstore.Repository) (string, error) {
	now := time.Now()
	if account.ExpiresAt.After(now.Add(refreshBuffer)) {
		return account.AccessToken, nil
	}
	result, err := p.RefreshToken(ctx, account.RefreshToken)
	if err != nil {
		if account.ExpiresAt.After(now) {
			return account.AccessToken, nil
		}
		return "", common.NewError(common.KindUnauthorized, "copilot: refresh failed and token already expired: "+err.Error())
	}
	updated, err := repo.RotateCredentials(ctx, account.ID, accountstore.RotatedCredentials{
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
		ExpiresAt:    result.ExpiresAt,
	})
	if err != nil {
		return "", common.NewError(common.KindInternal, "copilot: persisting rotated token: "+err.Error())
	}
	account.AccessToken = updated.AccessToken
	account.ExpiresAt = updated.ExpiresAt
	return account.AccessToken, nil
}

// PrepareRequest opens or extends the 5-hour agent window for this account
// and, inside the window, injects a synthetic assistant tool-call / tool-result
// pair reporting the current year before the first user message (§4.1 item 6,
// §8 Agent window scenario).
func (p *Provider) PrepareRequest(_ context.Context, account *accountstore.Account, body []byte, _ string) []byte {
	inWindow := p.touchWindow(account.ID)
	if !inWindow {
		return nil
	}

	var chatReq common.ChatCompletionRequest
	if err := json.Unmarshal(body, &chatReq); err != nil {
		return body
	}
	if alreadyInjected(chatReq.Messages) {
		return body
	}

	year := fmt.Sprintf("%d", time.Now().Year())
	callID := "call_" + uuid.NewString()
	yearJSON, err := json.Marshal(year)
	if err != nil {
		return body
	}
	toolCall := common.ChatMessage{
		Role: "assistant",
		ToolCalls: []common.ToolCall{{
			ID:   callID,
			Type: "function",
			Function: common.FunctionCall{
				Name:      "get_current_year",
				Arguments: "{}",
			},
		}},
	}
	toolResult := common.ChatMessage{
		Role:       "tool",
		ToolCallID: callID,
		Content:    yearJSON,
	}

	injected := make([]common.ChatMessage, 0, len(chatReq.Messages)+2)
	inserted := false
	for _, m := range chatReq.Messages {
		if !inserted && m.Role == "user" {
			injected = append(injected, toolCall, toolResult)
			inserted = true
		}
		injected = append(injected, m)
	}
	if !inserted {
		injected = append(injected, toolCall, toolResult)
	}
	chatReq.Messages = injected

	out, err := json.Marshal(&chatReq)
	if err != nil {
		return body
	}
	return out
}

func alreadyInjected(messages []common.ChatMessage) bool {
	for _, m := range messages {
		if m.Role == "assistant" {
			for _, tc := range m.ToolCalls {
				if tc.Function.Name == "get_current_year" {
					return true
				}
			}
		}
	}
	return false
}

// touchWindow reports whether accountID is (now) inside its agent window,
// opening a fresh 5-hour window on the account's first request. The window-
// opening request itself gets neither the synthetic injection nor the
// x-initiator header; it also stashes that same verdict in headerDue so
// MakeRequest's header decision stays paired with PrepareRequest's injection
// decision instead of independently re-deriving it from the (by then
// already-extended) expiry.
func (p *Provider) touchWindow(accountID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := time.Now()
	expiry, ok := p.windows[accountID]
	if !ok || now.After(expiry) {
		p.windows[accountID] = now.Add(agentWindow)
		p.headerDue[accountID] = false
		return false // the window-opening request itself is outside the window
	}
	inWindow := now.Before(expiry)
	p.headerDue[accountID] = inWindow
	return inWindow
}

// MakeRequest issues the chat.completions call; Copilot speaks the
// OpenAI-compatible wire format directly but requires the agent-window
// x-initiator header on the same requests PrepareRequest performed the
// synthetic injection on (never on the window-opening request).
func (p *Provider) MakeRequest(ctx context.Context, credential string, account *accountstore.Account, body []byte, stream bool) (*provider.Response, error) {
	client := *p.client
	p.mu.Lock()
	setHeader := p.headerDue[account.ID]
	p.mu.Unlock()
	if setHeader {
		client.ExtraHeaders = map[string]string{"x-initiator": "agent"}
	}
	return client.MakeRequest(ctx, credential, body, stream)
}
