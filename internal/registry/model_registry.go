// Package registry implements C8: the provider-agnostic model catalogue.
// Each upstream client (one per linked account) registers the models it can
// currently serve; the registry aggregates these into the /v1/models listing
// and resolves which provider(s) can serve a given model ID, the way the
// teacher's executors each publish their own FetchModels result into a
// shared catalogue consumed by the API layer.
package registry

import "sync"

// ThinkingSupport describes a model's extended-thinking/reasoning budget
// envelope, where applicable (Claude-shaped thinking, passthru GLM models).
type ThinkingSupport struct {
	Min            int
	Max            int
	ZeroAllowed    bool
	DynamicAllowed bool
}

// ModelInfo is the provider-agnostic description of one routable model.
type ModelInfo struct {
	ID                  string
	Object              string
	Created             int64
	OwnedBy             string
	Type                string
	DisplayName         string
	Description         string
	ContextLength       int
	MaxCompletionTokens int
	UserDefined         bool
	Thinking            *ThinkingSupport
}

// ModelRegistry aggregates the models every registered client currently
// exposes, keyed by an opaque client ID (one per linked account or passthru
// definition). A model ID may be served by more than one provider type at
// once (e.g. the same alias reachable via two linked accounts).
type ModelRegistry struct {
	mu      sync.RWMutex
	clients map[string]clientEntry
}

type clientEntry struct {
	providerType string
	models       []*ModelInfo
}

var (
	globalRegistryOnce sync.Once
	globalRegistry     *ModelRegistry
)

// GetGlobalRegistry returns the process-wide singleton registry.
func GetGlobalRegistry() *ModelRegistry {
	globalRegistryOnce.Do(func() {
		globalRegistry = NewModelRegistry()
	})
	return globalRegistry
}

// NewModelRegistry builds an empty registry. Exposed mainly for tests that
// want isolation from the process-wide singleton.
func NewModelRegistry() *ModelRegistry {
	return &ModelRegistry{clients: make(map[string]clientEntry)}
}

// RegisterClient publishes the model set one client (account or passthru
// definition) currently serves under the given provider type.
func (r *ModelRegistry) RegisterClient(clientID, providerType string, models []*ModelInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[clientID] = clientEntry{providerType: providerType, models: models}
}

// UnregisterClient removes a previously registered client's models, e.g. on
// account deactivation or test teardown.
func (r *ModelRegistry) UnregisterClient(clientID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.clients, clientID)
}

// GetModelProviders returns the distinct provider types currently able to
// serve the given model ID.
func (r *ModelRegistry) GetModelProviders(modelID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool)
	var providers []string
	for _, entry := range r.clients {
		for _, m := range entry.models {
			if m.ID == modelID && !seen[entry.providerType] {
				seen[entry.providerType] = true
				providers = append(providers, entry.providerType)
			}
		}
	}
	return providers
}

// GetModelInfo returns the first registered ModelInfo matching modelID under
// providerType, or nil if none is registered.
func (r *ModelRegistry) GetModelInfo(modelID, providerType string) *ModelInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, entry := range r.clients {
		if entry.providerType != providerType {
			continue
		}
		for _, m := range entry.models {
			if m.ID == modelID {
				return m
			}
		}
	}
	return nil
}

// ModelsFromSupported builds the minimal ModelInfo list for a provider's
// Config.SupportedModels set, used to seed the registry for providers with
// no hand-curated static definitions (model_definitions_static_data.go only
// covers the OpenAI/iFlow families).
func ModelsFromSupported(supported map[string]struct{}, ownedBy string) []*ModelInfo {
	out := make([]*ModelInfo, 0, len(supported))
	for id := range supported {
		out = append(out, &ModelInfo{ID: id, Object: "model", OwnedBy: ownedBy, DisplayName: id})
	}
	return out
}

// GetAvailableModels returns the deduplicated model catalogue rendered in
// responseFormat's list-item shape ("openai" or "claude"). Every registered
// model is eligible regardless of which provider type registered it — the
// format only controls the rendered shape, not which models are visible.
func (r *ModelRegistry) GetAvailableModels(responseFormat string) []map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool)
	var out []map[string]any
	for _, entry := range r.clients {
		for _, m := range entry.models {
			if seen[m.ID] {
				continue
			}
			seen[m.ID] = true
			out = append(out, convertModelToMap(m, responseFormat))
		}
	}
	return out
}

// convertModelToMap renders one ModelInfo into the OpenAI-compatible
// /v1/models list-item shape, adding the context_window/max_tokens aliases
// clients commonly probe for, and omitting size fields entirely when unset
// rather than publishing a misleading zero.
func convertModelToMap(m *ModelInfo, responseFormat string) map[string]any {
	out := map[string]any{
		"id":       m.ID,
		"object":   "model",
		"created":  m.Created,
		"owned_by": m.OwnedBy,
	}
	if responseFormat == "claude" {
		out["type"] = "model"
		out["display_name"] = m.DisplayName
	}
	if m.ContextLength > 0 {
		out["context_length"] = m.ContextLength
		out["context_window"] = m.ContextLength
	}
	if m.MaxCompletionTokens > 0 {
		out["max_completion_tokens"] = m.MaxCompletionTokens
		out["max_tokens"] = m.MaxCompletionTokens
	}
	if m.UserDefined {
		out["user_defined"] = true
	}
	if m.Thinking != nil {
		out["thinking"] = map[string]any{
			"min":             m.Thinking.Min,
			"max":             m.Thinking.Max,
			"zero_allowed":    m.Thinking.ZeroAllowed,
			"dynamic_allowed": m.Thinking.DynamicAllowed,
		}
	}
	return out
}
