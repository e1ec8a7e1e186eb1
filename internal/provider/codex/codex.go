// Package codex implements the C7 Provider for ChatGPT Codex: device-code
// OAuth against OpenAI, chatgpt_account_id/workspace_id extraction from the
// id_token's JWT claims (decoded without signature verification — this
// proxy only reads claims OpenAI itself just issued over TLS, it never
// trusts a caller-supplied token), and the OpenAI Responses API wire
// format (C6).
package codex

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/imroc/req/v3"

	"github.com/cliproxyhub/mtproxy/internal/accountstore"
	"github.com/cliproxyhub/mtproxy/internal/convert/common"
	"github.com/cliproxyhub/mtproxy/internal/convert/responses"
	"github.com/cliproxyhub/mtproxy/internal/oauthflow"
	"github.com/cliproxyhub/mtproxy/internal/provider"
)

const (
	deviceCodeURL  = "https://auth.openai.com/oauth/device/code"
	tokenURL       = "https://auth.openai.com/oauth/token"
	responsesURL   = "https://chatgpt.com/backend-api/codex/responses"
	scope          = "openid profile email offline_access"
	refreshBuffer  = 5 * time.Minute
	fallbackOrgURL = "https://api.openai.com/auth.chatgpt_account_id"
)

var supportedModels = map[string]struct{}{
	"gpt-5.1-codex":       {},
	"gpt-5.1-codex-mini":  {},
	"gpt-5.2-codex":       {},
}

const defaultClientID = "app_EMoamEEZ73f0CkXaXp7hrann"

// Provider is the Codex upstream.
type Provider struct {
	clientID string
	http     *req.Client
}

// New builds the Codex provider.
func New(clientID string) *Provider {
	if clientID == "" {
		clientID = defaultClientID
	}
	return &Provider{clientID: clientID, http: req.C()}
}

func (p *Provider) Config() provider.Config {
	return provider.Config{Name: "codex", DisplayName: "ChatGPT Codex", SupportedModels: supportedModels}
}

func (p *Provider) GetAuthURL(string, string) (string, error) {
	return "", provider.ErrUnsupportedAuthFlow
}

func (p *Provider) ExchangeCode(context.Context, string, string, string) (*provider.OAuthResult, error) {
	return nil, provider.ErrUnsupportedAuthFlow
}

// InitiateDeviceCode requests a device/user code pair from OpenAI.
func (p *Provider) InitiateDeviceCode(ctx context.Context) (*provider.DeviceCodeInit, error) {
	resp, err := p.http.R().SetContext(ctx).
		SetHeader("Accept", "application/json").
		SetFormData(map[string]string{"client_id": p.clientID, "scope": scope}).
		Post(deviceCodeURL)
	if err != nil {
		return nil, common.NewError(common.KindUpstreamTransient, "codex: device code request failed: "+err.Error())
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

type tokenPayload struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	IDToken      string `json:"id_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// PollDeviceCode polls OpenAI's token endpoint, tolerating the
// Codex-specific 403/404 "device authorization unknown" response as
// pending (scenario 5, §8), then fills in account/workspace ids. The poll
// result carries no id_token, so populateClaims goes straight to its
// fallback lookup.
func (p *Provider) PollDeviceCode(ctx context.Context, init *provider.DeviceCodeInit) (*provider.OAuthResult, error) {
	dc := &oauthflow.DeviceCodeResponse{
		DeviceCode: init.DeviceCode,
		Interval:   int(init.Interval / time.Second),
		ExpiresIn:  int(time.Until(init.ExpiresAt) / time.Second),
	}

	result := oauthflow.PollDeviceCode(ctx, dc, p.pollToken)
	switch result.Outcome {
	case oauthflow.PollAuthorized:
	case oauthflow.PollDenied:
		return nil, common.NewError(common.KindForbidden, "codex: device authorization denied")
	case oauthflow.PollExpired:
		return nil, common.NewError(common.KindInvalidRequest, "codex: device code expired")
	default:
		return nil, common.NewError(common.KindUpstreamTransient, fmt.Sprintf("codex: device poll failed: %v", result.Err))
	}

	out := &provider.OAuthResult{
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
		ExpiresAt:    time.Now().Add(time.Duration(result.ExpiresIn) * time.Second),
	}
	p.populateClaims(ctx, out, "")
	return out, nil
}

func (p *Provider) pollToken(ctx context.Context, deviceCode string) (*http.Response, []byte, error) {
	form := url.Values{
		"client_id":   {p.clientID},
		"device_code": {deviceCode},
		"grant_type":  {"urn:ietf:params:oauth:grant-type:device_code"},
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(form.Encode()))
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

// RefreshToken rotates Codex's access token, preserving the refresh token
// when OpenAI's response omits a fresh one.
func (p *Provider) RefreshToken(ctx context.Context, refreshToken string) (*provider.OAuthResult, error) {
	resp, err := p.http.R().SetContext(ctx).
		SetFormData(map[string]string{
			"client_id":     p.clientID,
			"refresh_token": refreshToken,
			"grant_type":    "refresh_token",
		}).
		Post(tokenURL)
	if err != nil {
		return nil, common.NewError(common.KindUpstreamTransient, "codex: refresh request failed: "+err.Error())
	}
	if resp.StatusCode >= 400 {
		return nil, common.NewError(common.KindUnauthorized, fmt.Sprintf("codex: refresh rejected (%d)", resp.StatusCode))
	}
	var tp tokenPayload
	if err := json.Unmarshal(resp.Bytes(), &tp); err != nil {
		return nil, common.MalformedUpstreamFrame(err.Error())
	}
	out := &provider.OAuthResult{
		AccessToken:  tp.AccessToken,
		RefreshToken: tp.RefreshToken,
		ExpiresAt:    time.Now().Add(time.Duration(tp.ExpiresIn) * time.Second),
	}
	if out.RefreshToken == "" {
		out.RefreshToken = refreshToken
	}
	p.populateClaims(ctx, out, tp.IDToken)
	return out, nil
}

// populateClaims fills AccountID/WorkspaceID from the id_token's JWT
// claims, falling back through the documented chain when the token itself
// doesn't carry them (§4.5): auth.chatgpt_account_id -> workspace_id ->
// default organization id.
func (p *Provider) populateClaims(ctx context.Context, out *provider.OAuthResult, idToken string) {
	if idToken != "" {
		claims, err := decodeJWTClaims(idToken)
		if err == nil {
			if v, ok := claims["chatgpt_account_id"].(string); ok && v != "" {
				out.AccountID = v
			}
			if v, ok := claims["workspace_id"].(string); ok && v != "" {
				out.WorkspaceID = v
			}
			if auth, ok := claims["https://api.openai.com/auth"].(map[string]any); ok {
				if v, ok := auth["chatgpt_account_id"].(string); ok && out.AccountID == "" {
					out.AccountID = v
				}
				if v, ok := auth["organization_id"].(string); ok && out.WorkspaceID == "" {
					out.WorkspaceID = v
				}
			}
		}
	}
	if out.AccountID != "" {
		return
	}
	resp, err := p.http.R().SetContext(ctx).SetHeader("Authorization", "Bearer "+out.AccessToken).Get(fallbackOrgURL)
	if err != nil {
		return
	}
	var fallback struct {
		ChatGPTAccountID string `json:"chatgpt_account_id"`
		WorkspaceID      string `json:"workspace_id"`
	}
	if json.Unmarshal(resp.Bytes(), &fallback) == nil {
		if fallback.ChatGPTAccountID != "" {
			out.AccountID = fallback.ChatGPTAccountID
		}
		if fallback.WorkspaceID != "" && out.WorkspaceID == "" {
			out.WorkspaceID = fallback.WorkspaceID
		}
	}
}

// decodeJWTClaims base64url-decodes the middle segment of a JWT and parses
// it as JSON, without verifying the signature: this proxy only ever reads
// claims out of a token OpenAI itself just handed back over TLS, never a
// caller-supplied bearer token, so a full JWT library's verification
// surface buys nothing here.
func decodeJWTClaims(token string) (map[string]any, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("codex: malformed JWT")
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, fmt.Errorf("codex: decode JWT payload: %w", err)
	}
	var claims map[string]any
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, fmt.Errorf("codex: parse JWT claims: %w", err)
	}
	return claims, nil
}

// GetValidCredentials refreshes Codex's access token with a 5-minute
// buffer per §4.1.
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
		return "", common.NewError(common.KindUnauthorized, "codex: refresh failed and token already expired: "+err.Error())
	}
	updated, err := repo.RotateCredentials(ctx, account.ID, accountstore.RotatedCredentials{
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
		ExpiresAt:    result.ExpiresAt,
	})
	if err != nil {
		return "", common.NewError(common.KindInternal, "codex: persisting rotated token: "+err.Error())
	}
	account.AccessToken = updated.AccessToken
	account.RefreshToken = updated.RefreshToken
	account.ExpiresAt = updated.ExpiresAt
	if result.AccountID != "" {
		account.AccountID = result.AccountID
	}
	if result.WorkspaceID != "" {
		account.WorkspaceID = result.WorkspaceID
	}
	return account.AccessToken, nil
}

func (p *Provider) PrepareRequest(context.Context, *accountstore.Account, []byte, string) []byte { return nil }

// MakeRequest converts the chat.completions request into a Responses API
// call and converts the response back.
func (p *Provider) MakeRequest(ctx context.Context, credential string, account *accountstore.Account, body []byte, stream bool) (*provider.Response, error) {
	var chatReq common.ChatCompletionRequest
	if err := json.Unmarshal(body, &chatReq); err != nil {
		return nil, common.NewError(common.KindInvalidRequest, "codex: decode request: "+err.Error())
	}
	respReq := responses.ConvertChatToResponses(&chatReq)
	respReq.Stream = stream
	includeReasoning := chatReq.Reasoning != nil || chatReq.ReasoningEffort != ""

	payload, err := json.Marshal(respReq)
	if err != nil {
		return nil, common.NewError(common.KindInternal, "codex: marshal responses request: "+err.Error())
	}

	request := p.http.R().SetContext(ctx).
		SetHeader("Authorization", "Bearer "+credential).
		SetHeader("Content-Type", "application/json").
		SetHeader("ChatGPT-Account-Id", account.AccountID).
		SetBodyBytes(payload)
	if stream {
		request = request.DisableAutoReadResponse()
	}
	resp, err := request.Post(responsesURL)
	if err != nil {
		return nil, common.NewError(common.KindUpstreamTransient, fmt.Sprintf("codex: upstream request failed: %v", err))
	}

	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(resp.Body)
		return nil, classifyUpstreamError(resp.StatusCode, raw, resp.Header)
	}

	if stream {
		pr, pw := io.Pipe()
		go func() {
			defer resp.Body.Close()
			err := responses.WriteSSE(pw, resp.Body, chatReq.Model, includeReasoning, func(error) {})
			_ = pw.CloseWithError(err)
		}()
		return &provider.Response{Stream: pr, StatusCode: resp.StatusCode, Headers: resp.Header}, nil
	}

	raw, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		return nil, common.NewError(common.KindUpstreamTransient, "codex: reading upstream body: "+err.Error())
	}
	parsed, err := responses.ConvertResponsesToChat(raw, chatReq.Model, includeReasoning)
	if err != nil {
		return nil, err
	}
	return &provider.Response{JSON: parsed, StatusCode: resp.StatusCode, Headers: resp.Header}, nil
}

func classifyUpstreamError(status int, body []byte, headers http.Header) *common.ProxyError {
	switch {
	case status == 429:
		return common.NewError(common.KindRateLimited, "codex: upstream rate limited").WithBody(body).WithHeaders(headers)
	case status == 401:
		return common.NewError(common.KindUnauthorized, "codex: upstream rejected credentials")
	case status == 403:
		return common.NewError(common.KindForbidden, "codex: upstream forbidden")
	case status == 400 || status == 409 || status == 422:
		return common.NewError(common.KindInvalidRequest, fmt.Sprintf("codex: upstream rejected request (%d)", status))
	case status >= 500:
		return common.NewError(common.KindUpstreamTransient, fmt.Sprintf("codex: upstream server error (%d)", status))
	default:
		return common.NewError(common.KindInternal, fmt.Sprintf("codex: unexpected upstream status %d", status))
	}
}
