// Package provider defines the C7 Provider abstraction: a per-upstream
// record of closures covering OAuth surface, request preparation, and the
// upstream call itself, matching §9's "interfaces as a record of closures,
// not deep inheritance" design note.
package provider

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/cliproxyhub/mtproxy/internal/accountstore"
	"github.com/cliproxyhub/mtproxy/internal/convert/common"
)

// Config is a provider's static identity (§4.1 item 1).
type Config struct {
	Name            string
	DisplayName     string
	SupportedModels map[string]struct{}
}

// OAuthResult is the shape every OAuth-surface method returns.
type OAuthResult struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	Email        string
	APIKey       string
	ProjectID    string
	Tier         accountstore.Tier
	AccountID    string
	WorkspaceID  string
}

// Response is the already-OpenAI-shaped result of makeRequest: either a
// buffered body (Stream nil, JSON populated) or a stream the dispatcher pipes
// straight through to the caller.
type Response struct {
	Stream     io.ReadCloser
	JSON       *common.ChatCompletionResponse
	StatusCode int
	Headers    http.Header
}

// Provider is the C7 contract. Concrete providers are built with
// functional-option-style constructors returning a value satisfying this
// interface; the registry (C8) holds name -> Provider.
type Provider interface {
	Config() Config

	// GetAuthURL builds an authorization URL for PKCE/auth-code flows.
	// Returns UnsupportedAuthFlow for Device-Code or API-key providers.
	GetAuthURL(state, codeVerifier string) (string, error)

	// ExchangeCode trades an auth-code-flow code for tokens.
	ExchangeCode(ctx context.Context, code, redirectURI, codeVerifier string) (*OAuthResult, error)

	// RefreshToken rotates a refresh token, returning the same value back
	// when the provider doesn't itself rotate it.
	RefreshToken(ctx context.Context, refreshToken string) (*OAuthResult, error)

	// GetValidCredentials returns the Authorization-header credential for
	// the next upstream call, refreshing and persisting first if needed
	// (§4.1 item 5 contract).
	GetValidCredentials(ctx context.Context, account *accountstore.Account, repo accountstore.Repository) (string, error)

	// PrepareRequest performs last-chance, provider-specific normalisation
	// of the outbound body. A nil result leaves the outbound body as it
	// was; providers with nothing to add return nil.
	PrepareRequest(ctx context.Context, account *accountstore.Account, body []byte, endpoint string) []byte

	// MakeRequest issues the upstream call.
	MakeRequest(ctx context.Context, credential string, account *accountstore.Account, body []byte, stream bool) (*Response, error)
}

// ErrUnsupportedAuthFlow is returned by GetAuthURL on Device-Code/API-key
// providers, which have no authorization-URL step.
var ErrUnsupportedAuthFlow = common.NewError(common.KindInvalidRequest, "provider: unsupported auth flow for this provider")

// DeviceCodeProvider is implemented by providers using the device-code flow
// (Copilot, Codex) in place of GetAuthURL/ExchangeCode.
type DeviceCodeProvider interface {
	Provider
	InitiateDeviceCode(ctx context.Context) (*DeviceCodeInit, error)
	PollDeviceCode(ctx context.Context, init *DeviceCodeInit) (*OAuthResult, error)
}

// DeviceCodeInit is the device/user code pair returned by the device
// endpoint (§4.5).
type DeviceCodeInit struct {
	DeviceCode      string
	UserCode        string
	VerificationURI string
	Interval        time.Duration
	ExpiresAt       time.Time
}
