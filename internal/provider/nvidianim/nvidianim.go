// Package nvidianim wires the API-key-authenticated Nvidia NIM upstream into
// the C7 Provider contract via the shared apikeyprovider engine.
package nvidianim

import (
	"github.com/cliproxyhub/mtproxy/internal/cipher"
	"github.com/cliproxyhub/mtproxy/internal/provider"
	"github.com/cliproxyhub/mtproxy/internal/provider/apikeyprovider"
)

const baseURL = "https://integrate.api.nvidia.com/v1"

var supportedModels = map[string]struct{}{
	"nvidia/llama-3.3-nemotron-super-49b": {},
	"nvidia/nemotron-4-340b-instruct":     {},
}

// New builds the Nvidia NIM provider.
func New(c cipher.Cipher) provider.Provider {
	return apikeyprovider.New("nvidia_nim", supportedModels, baseURL, c)
}
