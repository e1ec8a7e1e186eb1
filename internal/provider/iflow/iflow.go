// Package iflow implements the C7 Provider for iFlow: PKCE OAuth via the
// shared pkceprovider engine (with its user-info-derived apiKey carve-out,
// §4.1 item 4), plus an OpenAI-compatible passthrough call carrying the
// iFlow request signature header.
package iflow

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/imroc/req/v3"

	"github.com/cliproxyhub/mtproxy/internal/accountstore"
	"github.com/cliproxyhub/mtproxy/internal/provider"
	"github.com/cliproxyhub/mtproxy/internal/provider/passthrough"
	"github.com/cliproxyhub/mtproxy/internal/provider/pkceprovider"
)

const (
	authEndpoint  = "https://iflow.cn/oauth/authorize"
	tokenEndpoint = "https://iflow.cn/oauth/token"
	userInfoURL   = "https://iflow.cn/oauth/userinfo"
	baseURL       = "https://apis.iflow.cn/v1"
	scope         = "openid profile"
	clientName    = "cliproxy"
)

var supportedModels = map[string]struct{}{
	"qwen3-max":    {},
	"deepseek-v3.2": {},
	"kimi-k2":      {},
}

// Provider is the iFlow upstream.
type Provider struct {
	*pkceprovider.Engine
	client *passthrough.Client
}

// New builds the iFlow provider. MakeRequest sends every call through a copy
// of the passthrough client whose ExtraHeaders carry the HMAC-signed
// x-iflow-signature header alongside the bearer token (§6).
func New(clientID, clientSecret, redirectURI string) *Provider {
	engine := pkceprovider.NewEngine(pkceprovider.Spec{
		Name:             "iflow",
		AuthEndpoint:     authEndpoint,
		TokenEndpoint:    tokenEndpoint,
		ClientID:         clientID,
		ClientSecret:     clientSecret,
		Scope:            scope,
		RedirectURI:      redirectURI,
		FetchAccountInfo: fetchAccountInfo,
	})
	client := passthrough.NewClient(baseURL)
	return &Provider{Engine: engine, client: client}
}

func (p *Provider) Config() provider.Config {
	return provider.Config{Name: "iflow", DisplayName: "iFlow", SupportedModels: supportedModels}
}

func (p *Provider) PrepareRequest(context.Context, *accountstore.Account, []byte, string) []byte { return nil }

func (p *Provider) MakeRequest(ctx context.Context, credential string, account *accountstore.Account, body []byte, stream bool) (*provider.Response, error) {
	sig, ts := signRequest(account.APIKey, account.ID)
	signed := *p.client
	signed.ExtraHeaders = map[string]string{
		"x-iflow-signature": sig,
		"x-iflow-timestamp": ts,
	}
	return signed.MakeRequest(ctx, credential, body, stream)
}

// signRequest computes x-iflow-signature = HMAC-SHA256(apiKey,
// "clientName:sessionId:ts") per §6.
func signRequest(apiKey, sessionID string) (sig, ts string) {
	ts = fmt.Sprintf("%d", time.Now().Unix())
	mac := hmac.New(sha256.New, []byte(apiKey))
	mac.Write([]byte(fmt.Sprintf("%s:%s:%s", clientName, sessionID, ts)))
	return hex.EncodeToString(mac.Sum(nil)), ts
}

func fetchAccountInfo(ctx context.Context, accessToken string) (*pkceprovider.AccountInfo, error) {
	client := req.C()
	resp, err := client.R().SetContext(ctx).
		SetHeader("Authorization", "Bearer "+accessToken).
		Get(userInfoURL)
	if err != nil {
		return nil, err
	}
	raw := resp.Bytes()

	// The user-info endpoint sometimes wraps the payload in {"data": ...}.
	var wrapped struct {
		Data json.RawMessage `json:"data"`
	}
	payload := raw
	if err := json.Unmarshal(raw, &wrapped); err == nil && len(wrapped.Data) > 0 {
		payload = wrapped.Data
	}

	var parsed struct {
		Email  string `json:"email"`
		APIKey string `json:"apiKey"`
		ID     string `json:"id"`
	}
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return nil, err
	}
	return &pkceprovider.AccountInfo{Email: parsed.Email, APIKey: parsed.APIKey, AccountID: parsed.ID}, nil
}
