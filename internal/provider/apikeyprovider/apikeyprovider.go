// Package apikeyprovider implements the C7 Provider contract for the
// closed set of upstreams that authenticate with a caller-supplied static
// API key instead of an OAuth flow: Kiro, Nvidia NIM, Ollama Cloud, and
// OpenRouter. There is no auth-code/device-code dance, no refresh, and no
// fetchAccountInfo step — GetValidCredentials just decrypts the stored key.
package apikeyprovider

import (
	"context"

	"github.com/cliproxyhub/mtproxy/internal/accountstore"
	"github.com/cliproxyhub/mtproxy/internal/cipher"
	"github.com/cliproxyhub/mtproxy/internal/convert/common"
	"github.com/cliproxyhub/mtproxy/internal/provider"
	"github.com/cliproxyhub/mtproxy/internal/provider/passthrough"
)

// Provider is the generic API-key-authenticated upstream.
type Provider struct {
	cfg    provider.Config
	cipher cipher.Cipher
	client *passthrough.Client
}

// New builds an API-key Provider for a single upstream base URL.
func New(name string, supportedModels map[string]struct{}, baseURL string, c cipher.Cipher) *Provider {
	return &Provider{
		cfg:    provider.Config{Name: name, DisplayName: name, SupportedModels: supportedModels},
		cipher: c,
		client: passthrough.NewClient(baseURL),
	}
}

func (p *Provider) Config() provider.Config { return p.cfg }

func (p *Provider) GetAuthURL(string, string) (string, error) {
	return "", provider.ErrUnsupportedAuthFlow
}

func (p *Provider) ExchangeCode(context.Context, string, string, string) (*provider.OAuthResult, error) {
	return nil, provider.ErrUnsupportedAuthFlow
}

func (p *Provider) RefreshToken(context.Context, string) (*provider.OAuthResult, error) {
	return nil, provider.ErrUnsupportedAuthFlow
}

// GetValidCredentials decrypts and returns the account's static API key.
// API-key accounts never expire (ExpiresAt = creation + 1y, per §3's
// account-invariant), so there is no refresh path to run here.
func (p *Provider) GetValidCredentials(_ context.Context, account *accountstore.Account, _ accountstore.Repository) (string, error) {
	if account.APIKey == "" {
		return "", common.NewError(common.KindUnauthorized, "apikeyprovider: account has no API key")
	}
	key, err := p.cipher.Open(account.APIKey)
	if err != nil {
		return "", common.NewError(common.KindUnauthorized, "apikeyprovider: decrypt API key: "+err.Error())
	}
	return key, nil
}

func (p *Provider) PrepareRequest(context.Context, *accountstore.Account, []byte, string) []byte {
	return nil
}

func (p *Provider) MakeRequest(ctx context.Context, credential string, _ *accountstore.Account, body []byte, stream bool) (*provider.Response, error) {
	return p.client.MakeRequest(ctx, credential, body, stream)
}
