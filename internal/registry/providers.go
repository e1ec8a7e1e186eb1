package registry

import (
	"strings"
	"sync"

	"github.com/cliproxyhub/mtproxy/internal/provider"
)

// ProviderFactory lazily constructs a Provider the first time its name is
// resolved, so providers with expensive construction (HTTP clients, TLS
// fingerprinting transports) only pay that cost if actually used.
type ProviderFactory func() provider.Provider

// providerAliases maps alternate spellings callers use in model prefixes or
// CLI arguments onto the canonical provider name.
var providerAliases = map[string]string{
	"github-copilot": "copilot",
	"github_copilot": "copilot",
	"gh-copilot":     "copilot",
	"gemini-cli":     "gemini_cli",
	"geminicli":      "gemini_cli",
	"nvidia-nim":     "nvidia_nim",
	"nvidianim":      "nvidia_nim",
	"ollama-cloud":   "ollama_cloud",
	"ollamacloud":    "ollama_cloud",
	"openrouter.ai":  "openrouter",
	"qwen-code":      "qwen_code",
	"qwencode":       "qwen_code",
}

// ProviderRegistry is the C8 name -> Provider lazy singleton map.
type ProviderRegistry struct {
	mu        sync.Mutex
	factories map[string]ProviderFactory
	instances map[string]provider.Provider
}

var (
	globalProvidersOnce sync.Once
	globalProviders     *ProviderRegistry
)

// GetGlobalProviderRegistry returns the process-wide provider registry.
func GetGlobalProviderRegistry() *ProviderRegistry {
	globalProvidersOnce.Do(func() {
		globalProviders = NewProviderRegistry()
	})
	return globalProviders
}

// NewProviderRegistry builds an empty registry, primarily for tests.
func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{
		factories: make(map[string]ProviderFactory),
		instances: make(map[string]provider.Provider),
	}
}

// Register installs a factory for the canonical provider name. Re-registering
// a name replaces the factory and drops any already-built instance.
func (r *ProviderRegistry) Register(name string, factory ProviderFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
	delete(r.instances, name)
}

// NormalizeName resolves an alias to its canonical provider name.
func NormalizeName(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	if canonical, ok := providerAliases[n]; ok {
		return canonical
	}
	return n
}

// Get resolves name (applying alias normalisation) to its Provider,
// constructing it via the registered factory on first use.
func (r *ProviderRegistry) Get(name string) (provider.Provider, bool) {
	canonical := NormalizeName(name)

	r.mu.Lock()
	defer r.mu.Unlock()

	if inst, ok := r.instances[canonical]; ok {
		return inst, true
	}
	factory, ok := r.factories[canonical]
	if !ok {
		return nil, false
	}
	inst := factory()
	r.instances[canonical] = inst
	return inst, true
}

// Names returns every canonical provider name with a registered factory.
func (r *ProviderRegistry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	return names
}

// ProvidersForModel returns every registered provider whose Config declares
// support for the given bare model id.
func (r *ProviderRegistry) ProvidersForModel(model string) []provider.Provider {
	r.mu.Lock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	r.mu.Unlock()

	var out []provider.Provider
	for _, name := range names {
		p, ok := r.Get(name)
		if !ok {
			continue
		}
		if _, claims := p.Config().SupportedModels[model]; claims {
			out = append(out, p)
		}
	}
	return out
}
