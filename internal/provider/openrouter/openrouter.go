// Package openrouter wires the API-key-authenticated OpenRouter upstream
// into the C7 Provider contract via the shared apikeyprovider engine.
package openrouter

import (
	"github.com/cliproxyhub/mtproxy/internal/cipher"
	"github.com/cliproxyhub/mtproxy/internal/provider"
	"github.com/cliproxyhub/mtproxy/internal/provider/apikeyprovider"
)

const baseURL = "https://openrouter.ai/api/v1"

var supportedModels = map[string]struct{}{
	"openrouter/anthropic/claude-sonnet-4.5": {},
	"openrouter/google/gemini-3-pro":         {},
	"openrouter/meta-llama/llama-4-maverick": {},
}

// New builds the OpenRouter provider.
func New(c cipher.Cipher) provider.Provider {
	return apikeyprovider.New("openrouter", supportedModels, baseURL, c)
}
