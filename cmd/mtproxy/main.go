// Command mtproxy is the multi-tenant LLM proxy entrypoint: `serve` runs
// the HTTP API, `login <provider>` drives that provider's OAuth/API-key
// surface from the terminal, and `token inspect` decodes a stored
// credential's expiry for troubleshooting — modeled on the teacher's
// plain-print login UX (sdk/auth/github_copilot.go, internal/cmd/grok_login.go),
// generalized to a hand-rolled flag-based subcommand dispatch instead of a
// CLI framework, matching the teacher's `internal/cmd` package style.
package main

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/atotto/clipboard"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/cliproxyhub/mtproxy/internal/accountstore"
	"github.com/cliproxyhub/mtproxy/internal/browseropen"
	"github.com/cliproxyhub/mtproxy/internal/cipher"
	"github.com/cliproxyhub/mtproxy/internal/config"
	"github.com/cliproxyhub/mtproxy/internal/dispatcher"
	"github.com/cliproxyhub/mtproxy/internal/httpapi"
	"github.com/cliproxyhub/mtproxy/internal/logging"
	"github.com/cliproxyhub/mtproxy/internal/oauthflow"
	"github.com/cliproxyhub/mtproxy/internal/provider"
	"github.com/cliproxyhub/mtproxy/internal/ratelimit"
	"github.com/cliproxyhub/mtproxy/internal/registry"
	"github.com/cliproxyhub/mtproxy/internal/signature"
	"github.com/cliproxyhub/mtproxy/internal/provider/wireall"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		runServe(os.Args[2:])
	case "login":
		runLogin(os.Args[2:])
	case "token":
		runToken(os.Args[2:])
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Println("usage: mtproxy <serve|login <provider>|token inspect <account-file>> [--config path]")
}

// apiKeyOnlyProviders authenticate with a caller-supplied static key instead
// of any OAuth surface (internal/provider/apikeyprovider); `login` prompts
// for the key directly instead of driving GetAuthURL/InitiateDeviceCode.
var apiKeyOnlyProviders = map[string]bool{
	"kiro":         true,
	"nvidia_nim":   true,
	"ollama_cloud": true,
	"openrouter":   true,
}

type appContext struct {
	cfg        *config.Config
	cipher     cipher.Cipher
	accounts   accountstore.Repository
	proxyKeys  accountstore.ProxyKeyRepository
	providers  *registry.ProviderRegistry
	models     *registry.ModelRegistry
	limits     *ratelimit.Registry
	sigCache   *signature.Cache
	dispatcher *dispatcher.Dispatcher
}

// bootstrap wires every collaborator exactly once, shared by `serve` and
// `login` (login needs the provider registry and cipher, not the HTTP
// server).
func bootstrap(configPath string) (*appContext, error) {
	cfg, err := config.LoadConfigOptional(configPath, true)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	logging.Configure(logging.Options{Level: envOr("LOG_LEVEL", "info")})

	key, err := loadCipherKey()
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewChaCha20Poly1305(key)
	if err != nil {
		return nil, fmt.Errorf("building cipher: %w", err)
	}

	var accounts accountstore.Repository
	if cfg.DatabaseURL != "" {
		pg, err := accountstore.NewPostgresRepository(context.Background(), cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connecting to postgres: %w", err)
		}
		accounts = pg
	} else {
		mem := accountstore.NewMemoryRepository()
		dir := cfg.AuthDir
		if dir == "" {
			dir = ".auth"
		}
		stored, err := accountstore.LoadDir(dir)
		if err != nil {
			log.WithError(err).Warn("mtproxy: loading file-backed accounts")
		}
		for _, a := range stored {
			if err := mem.Create(context.Background(), a); err != nil {
				log.WithError(err).WithField("account", a.ID).Warn("mtproxy: restoring account")
			}
		}
		accounts = mem
	}

	sigCache := signature.NewCache()
	providers := registry.NewProviderRegistry()
	wireall.Register(providers, wireall.Options{
		RedirectURI: oauthflow.FixedCallbackRedirectURI,
		Cipher:      aead,
		SigCache:    sigCache,
	})

	models := registry.NewModelRegistry()
	for _, name := range providers.Names() {
		p, ok := providers.Get(name)
		if !ok {
			continue
		}
		accts, err := accounts.ListActive(context.Background(), "", name)
		if err != nil {
			continue
		}
		for _, a := range accts {
			models.RegisterClient(a.ID, name, registry.ModelsFromSupported(p.Config().SupportedModels, name))
		}
	}

	limits := ratelimit.NewRegistry()

	return &appContext{
		cfg:        cfg,
		cipher:     aead,
		accounts:   accounts,
		proxyKeys:  accountstore.NewMemoryProxyKeyRepository(),
		providers:  providers,
		models:     models,
		limits:     limits,
		sigCache:   sigCache,
		dispatcher: dispatcher.New(providers, accounts, limits),
	}, nil
}

func runServe(args []string) {
	configPath := flagValue(args, "--config", "config.yaml")
	rt, err := bootstrap(configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "mtproxy serve:", err)
		os.Exit(1)
	}

	server := httpapi.NewServer(rt.cfg, rt.dispatcher, rt.models, rt.providers, rt.accounts, rt.proxyKeys)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	signature.StartSweeper(gctx, g, rt.sigCache)
	g.Go(func() error {
		return config.Watch(gctx, configPath, func(updated *config.Config) {
			*rt.cfg = *updated
			log.Info("mtproxy: config reloaded")
		})
	})

	port := rt.cfg.Port
	if port == 0 {
		port = 8317
	}
	addr := fmt.Sprintf(":%d", port)
	httpServer := &http.Server{Addr: addr, Handler: server.Router()}

	g.Go(func() error {
		log.WithField("addr", addr).Info("mtproxy: listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		fmt.Fprintln(os.Stderr, "mtproxy serve:", err)
		os.Exit(1)
	}
}

func runLogin(args []string) {
	if len(args) == 0 {
		fmt.Println("usage: mtproxy login <provider> [--config path] [--no-browser]")
		os.Exit(1)
	}
	providerName := args[0]
	configPath := flagValue(args[1:], "--config", "config.yaml")
	noBrowser := hasFlag(args[1:], "--no-browser")

	rt, err := bootstrap(configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "mtproxy login:", err)
		os.Exit(1)
	}

	p, ok := rt.providers.Get(providerName)
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown provider %q; known providers: %s\n", providerName, strings.Join(rt.providers.Names(), ", "))
		os.Exit(1)
	}

	var account *accountstore.Account
	switch {
	case apiKeyOnlyProviders[providerName]:
		account, err = loginAPIKey(providerName, rt.cipher)
	case isDeviceCodeProvider(p):
		account, err = loginDeviceCode(p.(provider.DeviceCodeProvider), providerName, noBrowser)
	default:
		account, err = loginPKCE(p, providerName, noBrowser)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "login failed:", err)
		os.Exit(1)
	}

	if rt.cfg.DatabaseURL != "" {
		if err := rt.accounts.Create(context.Background(), account); err != nil {
			fmt.Fprintln(os.Stderr, "saving account:", err)
			os.Exit(1)
		}
		fmt.Println("Account saved to the configured database.")
		return
	}
	dir := rt.cfg.AuthDir
	if dir == "" {
		dir = ".auth"
	}
	path, err := accountstore.SaveToFile(dir, account)
	if err != nil {
		fmt.Fprintln(os.Stderr, "saving account:", err)
		os.Exit(1)
	}
	fmt.Printf("Account saved to %s\n", path)
}

func isDeviceCodeProvider(p provider.Provider) bool {
	_, ok := p.(provider.DeviceCodeProvider)
	return ok
}

func loginDeviceCode(p provider.DeviceCodeProvider, providerName string, noBrowser bool) (*accountstore.Account, error) {
	ctx := context.Background()
	init, err := p.InitiateDeviceCode(ctx)
	if err != nil {
		return nil, err
	}
	fmt.Printf("Enter the code %s at %s\n", init.UserCode, init.VerificationURI)
	if err := clipboard.WriteAll(init.UserCode); err == nil {
		fmt.Println("(user code copied to clipboard)")
	}
	browseropen.Open(init.VerificationURI, noBrowser)
	fmt.Println("Waiting for authorization...")

	result, err := p.PollDeviceCode(ctx, init)
	if err != nil {
		return nil, err
	}
	return newAccount(providerName, result), nil
}

// loginPKCE drives the auth-code flow via a short-lived local HTTP listener
// on oauthflow.FixedCallbackPort, capturing the redirect's code/state pair
// automatically instead of asking the operator to paste it.
func loginPKCE(p provider.Provider, providerName string, noBrowser bool) (*accountstore.Account, error) {
	verifier, _, err := oauthflow.GeneratePKCE()
	if err != nil {
		return nil, err
	}
	state := randomState()

	authURL, err := p.GetAuthURL(state, verifier)
	if err != nil {
		return nil, err
	}

	codeCh := make(chan string, 1)
	errCh := make(chan error, 1)
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth2callback", func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		if query.Get("state") != state {
			http.Error(w, "state mismatch", http.StatusBadRequest)
			errCh <- fmt.Errorf("oauth callback: state mismatch")
			return
		}
		if errParam := query.Get("error"); errParam != "" {
			http.Error(w, errParam, http.StatusBadRequest)
			errCh <- fmt.Errorf("oauth callback: %s", errParam)
			return
		}
		fmt.Fprintln(w, "Login complete, you can close this tab.")
		codeCh <- query.Get("code")
	})
	srv := &http.Server{Addr: fmt.Sprintf(":%d", oauthflow.FixedCallbackPort), Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	defer srv.Close()

	browseropen.Open(authURL, noBrowser)
	fmt.Println("Waiting for the browser redirect...")

	select {
	case code := <-codeCh:
		result, err := p.ExchangeCode(context.Background(), code, oauthflow.FixedCallbackRedirectURI, verifier)
		if err != nil {
			return nil, err
		}
		return newAccount(providerName, result), nil
	case err := <-errCh:
		return nil, err
	case <-time.After(5 * time.Minute):
		return nil, fmt.Errorf("oauth callback: timed out waiting for redirect")
	}
}

func loginAPIKey(providerName string, c cipher.Cipher) (*accountstore.Account, error) {
	fmt.Printf("Paste the %s API key: ", providerName)
	raw, err := readSecret()
	if err != nil {
		return nil, err
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("empty API key")
	}
	sealed, err := c.Seal(raw)
	if err != nil {
		return nil, fmt.Errorf("encrypting API key: %w", err)
	}
	return &accountstore.Account{
		ID:           randomState(),
		Provider:     providerName,
		APIKey:       sealed,
		RefreshToken: sealed,
		IsActive:     true,
		ExpiresAt:    time.Now().AddDate(1, 0, 0),
		CreatedAt:    time.Now(),
	}, nil
}

// readSecret reads a line from stdin without echoing it when stdin is a
// terminal, matching the domain-stack's golang.org/x/term usage; falls back
// to a plain scan when stdin is piped (non-interactive CI use).
func readSecret() (string, error) {
	if term.IsTerminal(int(os.Stdin.Fd())) {
		raw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil {
			return "", err
		}
		return string(raw), nil
	}
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return line, nil
}

func newAccount(providerName string, result *provider.OAuthResult) *accountstore.Account {
	return &accountstore.Account{
		ID:           randomState(),
		Provider:     providerName,
		Email:        result.Email,
		AccessToken:  result.AccessToken,
		RefreshToken: result.RefreshToken,
		ExpiresAt:    result.ExpiresAt,
		IsActive:     true,
		ProjectID:    result.ProjectID,
		Tier:         result.Tier,
		APIKey:       result.APIKey,
		AccountID:    result.AccountID,
		WorkspaceID:  result.WorkspaceID,
		CreatedAt:    time.Now(),
	}
}

func runToken(args []string) {
	if len(args) < 2 || args[0] != "inspect" {
		fmt.Println("usage: mtproxy token inspect <account-file.json>")
		os.Exit(1)
	}
	data, err := os.ReadFile(args[1])
	if err != nil {
		fmt.Fprintln(os.Stderr, "reading account file:", err)
		os.Exit(1)
	}
	var a accountstore.Account
	if err := json.Unmarshal(data, &a); err != nil {
		fmt.Fprintln(os.Stderr, "parsing account file:", err)
		os.Exit(1)
	}
	fmt.Printf("provider:   %s\n", a.Provider)
	fmt.Printf("email:      %s\n", a.Email)
	fmt.Printf("expires at: %s\n", a.ExpiresAt.Format(time.RFC3339))
	if time.Now().After(a.ExpiresAt) {
		fmt.Println("status:     EXPIRED")
	} else {
		fmt.Printf("status:     valid for %s\n", time.Until(a.ExpiresAt).Round(time.Second))
	}
}

func loadCipherKey() ([]byte, error) {
	raw := os.Getenv("MTPROXY_CIPHER_KEY")
	if raw == "" {
		return nil, fmt.Errorf("MTPROXY_CIPHER_KEY is required (32 bytes, base64url-encoded)")
	}
	key, err := base64.RawURLEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("decoding MTPROXY_CIPHER_KEY: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("MTPROXY_CIPHER_KEY must decode to 32 bytes, got %d", len(key))
	}
	return key, nil
}

func randomState() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing means the platform RNG is broken; nothing
		// downstream can recover from that, so panic like the stdlib would.
		panic(err)
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func flagValue(args []string, name, fallback string) string {
	for i, a := range args {
		if a == name && i+1 < len(args) {
			return args[i+1]
		}
		if strings.HasPrefix(a, name+"=") {
			return strings.TrimPrefix(a, name+"=")
		}
	}
	return fallback
}

func hasFlag(args []string, name string) bool {
	for _, a := range args {
		if a == name {
			return true
		}
	}
	return false
}
