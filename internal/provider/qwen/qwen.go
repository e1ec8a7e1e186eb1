// Package qwen implements the C7 Provider for Qwen Code: PKCE OAuth via the
// shared pkceprovider engine, plus an OpenAI-compatible passthrough call
// (Qwen's DashScope-compatible endpoint already speaks chat.completions).
package qwen

import (
	"context"
	"encoding/json"

	"github.com/imroc/req/v3"

	"github.com/cliproxyhub/mtproxy/internal/accountstore"
	"github.com/cliproxyhub/mtproxy/internal/provider"
	"github.com/cliproxyhub/mtproxy/internal/provider/passthrough"
	"github.com/cliproxyhub/mtproxy/internal/provider/pkceprovider"
)

const (
	authEndpoint  = "https://chat.qwen.ai/oauth/authorize"
	tokenEndpoint = "https://chat.qwen.ai/oauth/token"
	baseURL       = "https://portal.qwen.ai/v1"
	scope         = "openid profile email model.completion"
	userInfoURL   = "https://chat.qwen.ai/oauth/userinfo"
)

var supportedModels = map[string]struct{}{
	"qwen3-max":      {},
	"qwen3-coder":    {},
	"qwen3-coder-plus": {},
}

// Provider is the Qwen Code upstream.
type Provider struct {
	*pkceprovider.Engine
	client *passthrough.Client
}

// New builds the Qwen Code provider.
func New(clientID, clientSecret, redirectURI string) *Provider {
	engine := pkceprovider.NewEngine(pkceprovider.Spec{
		Name:             "qwen_code",
		AuthEndpoint:     authEndpoint,
		TokenEndpoint:    tokenEndpoint,
		ClientID:         clientID,
		ClientSecret:     clientSecret,
		Scope:            scope,
		RedirectURI:      redirectURI,
		FetchAccountInfo: fetchAccountInfo,
	})
	return &Provider{Engine: engine, client: passthrough.NewClient(baseURL)}
}

func (p *Provider) Config() provider.Config {
	return provider.Config{Name: "qwen_code", DisplayName: "Qwen Code", SupportedModels: supportedModels}
}

func (p *Provider) PrepareRequest(context.Context, *accountstore.Account, []byte, string) []byte { return nil }

func (p *Provider) MakeRequest(ctx context.Context, credential string, _ *accountstore.Account, body []byte, stream bool) (*provider.Response, error) {
	return p.client.MakeRequest(ctx, credential, body, stream)
}

func fetchAccountInfo(ctx context.Context, accessToken string) (*pkceprovider.AccountInfo, error) {
	client := req.C()
	resp, err := client.R().SetContext(ctx).
		SetHeader("Authorization", "Bearer "+accessToken).
		Get(userInfoURL)
	if err != nil {
		return nil, err
	}
	var parsed struct {
		Email string `json:"email"`
		Sub   string `json:"sub"`
	}
	if err := json.Unmarshal(resp.Bytes(), &parsed); err != nil {
		return nil, err
	}
	return &pkceprovider.AccountInfo{Email: parsed.Email, AccountID: parsed.Sub}, nil
}
