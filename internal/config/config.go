package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// PassthruRoute describes one user-defined model that bypasses the OAuth
// provider pool entirely and is forwarded straight to a caller-supplied
// upstream (e.g. a self-hosted GLM/Z.ai endpoint), per SPEC_FULL's
// supplemented passthru-models feature.
type PassthruRoute struct {
	Model            string            `yaml:"model" json:"model"`
	ModelRoutingName string            `yaml:"model-routing-name,omitempty" json:"model-routing-name,omitempty"`
	Protocol         string            `yaml:"protocol" json:"protocol"`
	BaseURL          string            `yaml:"base-url" json:"base-url"`
	APIKey           string            `yaml:"api-key" json:"api-key"`
	UpstreamModel    string            `yaml:"upstream-model,omitempty" json:"upstream-model,omitempty"`
	ContextWindow    int               `yaml:"context-window,omitempty" json:"context-window,omitempty"`
	MaxTokens        int               `yaml:"max-tokens,omitempty" json:"max-tokens,omitempty"`
	Headers          map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`
}

// Config is the proxy's full configuration, loaded from YAML with
// environment-variable overrides layered on top (in the teacher's
// SDKConfig style, generalised to this proxy's own settings).
type Config struct {
	Port int `yaml:"port" json:"port"`

	AuthDir string `yaml:"auth-dir,omitempty" json:"auth-dir,omitempty"`

	SDKConfig `yaml:",inline"`

	Passthru []PassthruRoute `yaml:"passthru,omitempty" json:"passthru,omitempty"`

	// DatabaseURL, when set, switches the account repository from the
	// in-memory implementation to PostgreSQL (C2).
	DatabaseURL string `yaml:"database-url,omitempty" json:"database-url,omitempty"`
}

// LoadConfigOptional reads and parses the YAML config file at path, applies
// environment overrides, and returns the result. When optional is true, a
// missing file or malformed PASSTHRU_MODELS_JSON environment override is
// tolerated and an empty/partial Config is returned instead of an error —
// mirroring the teacher's tolerant startup path for environments that rely
// entirely on env vars (containers, `go run` smoke tests).
func LoadConfigOptional(path string, optional bool) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if unmarshalErr := yaml.Unmarshal(data, cfg); unmarshalErr != nil {
			if optional {
				cfg = &Config{}
			} else {
				return nil, fmt.Errorf("config: parse %s: %w", path, unmarshalErr)
			}
		}
	case optional:
		// Missing file is fine when optional; env vars may supply everything.
	default:
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := applyPassthruEnvOverride(cfg, optional); err != nil {
		return nil, err
	}
	applyStreamingEnvOverrides(cfg)

	return cfg, nil
}

// applyPassthruEnvOverride merges PASSTHRU_MODELS_JSON, a JSON array of
// PassthruRoute, into cfg.Passthru. Invalid JSON is an error unless optional.
func applyPassthruEnvOverride(cfg *Config, optional bool) error {
	raw := strings.TrimSpace(os.Getenv("PASSTHRU_MODELS_JSON"))
	if raw == "" {
		return nil
	}
	var routes []PassthruRoute
	if err := json.Unmarshal([]byte(raw), &routes); err != nil {
		if optional {
			return nil
		}
		return fmt.Errorf("config: parse PASSTHRU_MODELS_JSON: %w", err)
	}
	cfg.Passthru = routes
	return nil
}

// applyStreamingEnvOverrides layers STREAMING_KEEPALIVE_SECONDS and
// STREAMING_DISABLE_PROXY_BUFFERING on top of whatever streaming.* the YAML
// file set, ignoring malformed or non-positive values so a bad env var never
// silently disables a keep-alive interval the operator configured in YAML.
func applyStreamingEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("STREAMING_KEEPALIVE_SECONDS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Streaming.KeepAliveSeconds = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("STREAMING_DISABLE_PROXY_BUFFERING")); v != "" {
		if b, err := strconv.ParseBool(strings.ToLower(v)); err == nil {
			cfg.Streaming.DisableProxyBuffering = b
		}
	}
}
