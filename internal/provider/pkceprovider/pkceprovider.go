// Package pkceprovider implements the shared PKCE auth-code OAuth surface
// (GetAuthURL/ExchangeCode/RefreshToken/GetValidCredentials) common to
// Antigravity, Gemini CLI, Qwen Code, and iFlow — only the endpoints,
// client id/secret, scope, and the post-exchange identity-fetch step differ
// per provider (§4.5).
package pkceprovider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/imroc/req/v3"

	"github.com/cliproxyhub/mtproxy/internal/accountstore"
	"github.com/cliproxyhub/mtproxy/internal/convert/common"
	"github.com/cliproxyhub/mtproxy/internal/oauthflow"
	"github.com/cliproxyhub/mtproxy/internal/provider"
)

// AccountInfo is what a provider's identity-fetch step (loadCodeAssist,
// iFlow user-info, Google userinfo) contributes on top of the raw token
// exchange result.
type AccountInfo struct {
	Email       string
	ProjectID   string
	Tier        accountstore.Tier
	APIKey      string
	AccountID   string
	WorkspaceID string
}

// Spec is the per-provider configuration the engine needs.
type Spec struct {
	Name         string
	AuthEndpoint string
	TokenEndpoint string
	ClientID     string
	ClientSecret string // empty for public clients
	Scope        string
	RedirectURI  string

	// FetchAccountInfo calls the provider's identity endpoint with a fresh
	// access token. May be nil if the provider has nothing beyond the token
	// response itself.
	FetchAccountInfo func(ctx context.Context, accessToken string) (*AccountInfo, error)
}

// Engine implements the OAuth-surface quarter of the C7 Provider contract;
// concrete providers embed it and add PrepareRequest/MakeRequest.
type Engine struct {
	Spec Spec
	http *req.Client
}

// NewEngine builds an Engine for the given spec.
func NewEngine(spec Spec) *Engine {
	return &Engine{Spec: spec, http: req.C()}
}

// GetAuthURL builds the provider's authorization URL per §4.5.
func (e *Engine) GetAuthURL(state, codeVerifier string) (string, error) {
	_, challenge, err := pkceChallengeFromVerifier(codeVerifier)
	if err != nil {
		return "", err
	}
	return oauthflow.BuildAuthURL(oauthflow.AuthURLParams{
		AuthEndpoint: e.Spec.AuthEndpoint,
		ClientID:     e.Spec.ClientID,
		RedirectURI:  e.Spec.RedirectURI,
		Scope:        e.Spec.Scope,
		State:        state,
		Challenge:    challenge,
	}), nil
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	Error        string `json:"error"`
	ErrorDesc    string `json:"error_description"`
}

// ExchangeCode trades an authorization code for tokens, then runs the
// provider's identity-fetch step.
func (e *Engine) ExchangeCode(ctx context.Context, code, redirectURI, codeVerifier string) (*provider.OAuthResult, error) {
	if redirectURI == "" {
		redirectURI = e.Spec.RedirectURI
	}
	form := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {redirectURI},
		"client_id":     {e.Spec.ClientID},
		"code_verifier": {codeVerifier},
	}
	if e.Spec.ClientSecret != "" {
		form.Set("client_secret", e.Spec.ClientSecret)
	}
	return e.doTokenRequest(ctx, form)
}

// RefreshToken rotates a refresh token for an access token, preserving the
// prior refresh token when the provider doesn't itself rotate it.
func (e *Engine) RefreshToken(ctx context.Context, refreshToken string) (*provider.OAuthResult, error) {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
		"client_id":     {e.Spec.ClientID},
	}
	if e.Spec.ClientSecret != "" {
		form.Set("client_secret", e.Spec.ClientSecret)
	}
	result, err := e.doTokenRequest(ctx, form)
	if err != nil {
		return nil, err
	}
	if result.RefreshToken == "" {
		result.RefreshToken = refreshToken
	}
	return result, nil
}

func (e *Engine) doTokenRequest(ctx context.Context, form url.Values) (*provider.OAuthResult, error) {
	formData := make(map[string]string, len(form))
	for k := range form {
		formData[k] = form.Get(k)
	}
	resp, err := e.http.R().SetContext(ctx).SetFormData(formData).Post(e.Spec.TokenEndpoint)
	if err != nil {
		return nil, common.NewError(common.KindUpstreamTransient, fmt.Sprintf("%s: token request failed: %v", e.Spec.Name, err))
	}
	raw := resp.Bytes()
	var tr tokenResponse
	if err := json.Unmarshal(raw, &tr); err != nil {
		return nil, common.MalformedUpstreamFrame(err.Error())
	}
	if resp.StatusCode >= 400 || tr.Error != "" {
		msg := tr.ErrorDesc
		if msg == "" {
			msg = tr.Error
		}
		return nil, common.NewError(common.KindUnauthorized, fmt.Sprintf("%s: token exchange rejected: %s", e.Spec.Name, msg))
	}

	result := &provider.OAuthResult{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		ExpiresAt:    time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second),
	}

	if e.Spec.FetchAccountInfo != nil {
		info, err := e.Spec.FetchAccountInfo(ctx, tr.AccessToken)
		if err == nil && info != nil {
			result.Email = info.Email
			result.ProjectID = info.ProjectID
			result.Tier = info.Tier
			result.APIKey = info.APIKey
			result.AccountID = info.AccountID
			result.WorkspaceID = info.WorkspaceID
		}
		// A failed identity-fetch is tolerated: the refresh/exchange itself
		// still succeeded (§4.1 item 4's iFlow-apiKey carve-out generalises
		// to every identity-fetch step).
	}
	return result, nil
}

// GetValidCredentials implements the §4.1 item 5 contract: refresh when
// within the provider's buffer of expiry, persist atomically, fall back to
// the existing token on a refresh failure that hasn't yet expired, and fail
// Unauthorized when it has.
func (e *Engine) GetValidCredentials(ctx context.Context, account *accountstore.Account, repo accountstore.Repository) (string, error) {
	now := time.Now()
	if !accountstore.NeedsRefresh(e.Spec.Name, account.ExpiresAt, now) {
		return account.AccessToken, nil
	}

	result, err := e.RefreshToken(ctx, account.RefreshToken)
	if err != nil {
		if account.ExpiresAt.After(now) {
			return account.AccessToken, nil
		}
		return "", common.NewError(common.KindUnauthorized, "pkceprovider: refresh failed and token already expired: "+err.Error())
	}

	rotated := accountstore.RotatedCredentials{
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
		ExpiresAt:    result.ExpiresAt,
		APIKey:       result.APIKey,
	}
	updated, err := repo.RotateCredentials(ctx, account.ID, rotated)
	if err != nil {
		return "", common.NewError(common.KindInternal, "pkceprovider: persisting rotated credentials: "+err.Error())
	}
	account.AccessToken = updated.AccessToken
	account.RefreshToken = updated.RefreshToken
	account.ExpiresAt = updated.ExpiresAt
	return account.AccessToken, nil
}

// pkceChallengeFromVerifier recomputes the S256 challenge for a verifier the
// caller already generated (GeneratePKCE is called once at auth-start and
// the verifier is threaded back in on GetAuthURL so both share one pair).
func pkceChallengeFromVerifier(verifier string) (string, string, error) {
	if strings.TrimSpace(verifier) == "" {
		return "", "", common.NewError(common.KindInvalidRequest, "pkceprovider: missing code_verifier")
	}
	return oauthflow.ChallengeFromVerifier(verifier)
}
