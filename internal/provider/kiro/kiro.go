// Package kiro wires the API-key-authenticated Kiro upstream into the C7
// Provider contract via the shared apikeyprovider engine.
package kiro

import (
	"github.com/cliproxyhub/mtproxy/internal/cipher"
	"github.com/cliproxyhub/mtproxy/internal/provider"
	"github.com/cliproxyhub/mtproxy/internal/provider/apikeyprovider"
)

const baseURL = "https://api.kiro.dev/v1"

var supportedModels = map[string]struct{}{
	"kiro-claude-sonnet-4.5": {},
	"kiro-claude-opus-4.5":   {},
}

// New builds the Kiro provider.
func New(c cipher.Cipher) provider.Provider {
	return apikeyprovider.New("kiro", supportedModels, baseURL, c)
}
