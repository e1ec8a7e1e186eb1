// Package wireall registers every closed-set provider's factory into the
// process-wide registry (C8). Call Register once during startup, after
// the environment-derived Options are assembled.
package wireall

import (
	"os"

	"github.com/cliproxyhub/mtproxy/internal/cipher"
	"github.com/cliproxyhub/mtproxy/internal/oauthflow"
	"github.com/cliproxyhub/mtproxy/internal/provider"
	"github.com/cliproxyhub/mtproxy/internal/provider/antigravity"
	"github.com/cliproxyhub/mtproxy/internal/provider/codex"
	"github.com/cliproxyhub/mtproxy/internal/provider/copilot"
	"github.com/cliproxyhub/mtproxy/internal/provider/geminicli"
	"github.com/cliproxyhub/mtproxy/internal/provider/iflow"
	"github.com/cliproxyhub/mtproxy/internal/provider/kiro"
	"github.com/cliproxyhub/mtproxy/internal/provider/nvidianim"
	"github.com/cliproxyhub/mtproxy/internal/provider/ollamacloud"
	"github.com/cliproxyhub/mtproxy/internal/provider/openrouter"
	"github.com/cliproxyhub/mtproxy/internal/provider/qwen"
	"github.com/cliproxyhub/mtproxy/internal/registry"
	"github.com/cliproxyhub/mtproxy/internal/signature"
)

// Options carries the dependencies shared by every provider. The
// per-provider OAuth client overrides (§6: *_CLIENT_ID/*_CLIENT_SECRET) are
// read from the environment by Register itself.
type Options struct {
	RedirectURI string
	Cipher      cipher.Cipher
	SigCache    *signature.Cache
}

// Register installs every provider's factory into reg.
func Register(reg *registry.ProviderRegistry, opts Options) {
	sigCache := opts.SigCache
	if sigCache == nil {
		sigCache = signature.NewCache()
	}
	redirectURI := opts.RedirectURI
	if redirectURI == "" {
		redirectURI = oauthflow.FixedCallbackRedirectURI
	}

	reg.Register("antigravity", func() provider.Provider {
		return antigravity.New(
			envOr("ANTIGRAVITY_CLIENT_ID", ""),
			envOr("ANTIGRAVITY_CLIENT_SECRET", ""),
			redirectURI,
			sigCache,
		)
	})
	reg.Register("gemini_cli", func() provider.Provider {
		return geminicli.New(
			envOr("GEMINI_CLI_CLIENT_ID", ""),
			envOr("GEMINI_CLI_CLIENT_SECRET", ""),
			redirectURI,
			sigCache,
		)
	})
	reg.Register("qwen_code", func() provider.Provider {
		return qwen.New(
			envOr("QWEN_CLIENT_ID", ""),
			envOr("QWEN_CLIENT_SECRET", ""),
			redirectURI,
		)
	})
	reg.Register("iflow", func() provider.Provider {
		return iflow.New(
			envOr("IFLOW_CLIENT_ID", ""),
			envOr("IFLOW_CLIENT_SECRET", ""),
			oauthflow.FixedCallbackRedirectURI,
		)
	})
	reg.Register("copilot", func() provider.Provider {
		return copilot.New(envOr("GITHUB_COPILOT_CLIENT_ID", ""))
	})
	reg.Register("codex", func() provider.Provider {
		return codex.New(envOr("CODEX_CLIENT_ID", ""))
	})
	reg.Register("kiro", func() provider.Provider { return kiro.New(opts.Cipher) })
	reg.Register("nvidia_nim", func() provider.Provider { return nvidianim.New(opts.Cipher) })
	reg.Register("ollama_cloud", func() provider.Provider { return ollamacloud.New(opts.Cipher) })
	reg.Register("openrouter", func() provider.Provider { return openrouter.New(opts.Cipher) })
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
