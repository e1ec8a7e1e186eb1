// Package ollamacloud wires the API-key-authenticated Ollama Cloud upstream
// into the C7 Provider contract via the shared apikeyprovider engine.
package ollamacloud

import (
	"github.com/cliproxyhub/mtproxy/internal/cipher"
	"github.com/cliproxyhub/mtproxy/internal/provider"
	"github.com/cliproxyhub/mtproxy/internal/provider/apikeyprovider"
)

const baseURL = "https://ollama.com/api"

var supportedModels = map[string]struct{}{
	"gpt-oss:120b-cloud":     {},
	"deepseek-v3.1:671b":     {},
	"qwen3-coder:480b-cloud": {},
}

// New builds the Ollama Cloud provider.
func New(c cipher.Cipher) provider.Provider {
	return apikeyprovider.New("ollama_cloud", supportedModels, baseURL, c)
}
