package dispatcher

import (
	"context"
	"testing"
	"time"

	"github.com/cliproxyhub/mtproxy/internal/accountstore"
	"github.com/cliproxyhub/mtproxy/internal/convert/common"
	"github.com/cliproxyhub/mtproxy/internal/provider"
	"github.com/cliproxyhub/mtproxy/internal/ratelimit"
	"github.com/cliproxyhub/mtproxy/internal/registry"
)

type fakeProvider struct {
	name   string
	models map[string]struct{}
	calls  []string
	fail   map[string]*common.ProxyError // accountID -> error to return once
}

func (p *fakeProvider) Config() provider.Config {
	return provider.Config{Name: p.name, SupportedModels: p.models}
}
func (p *fakeProvider) GetAuthURL(string, string) (string, error) { return "", nil }
func (p *fakeProvider) ExchangeCode(context.Context, string, string, string) (*provider.OAuthResult, error) {
	return nil, nil
}
func (p *fakeProvider) RefreshToken(context.Context, string) (*provider.OAuthResult, error) {
	return nil, nil
}
func (p *fakeProvider) GetValidCredentials(_ context.Context, acct *accountstore.Account, _ accountstore.Repository) (string, error) {
	return "cred-" + acct.ID, nil
}
func (p *fakeProvider) PrepareRequest(context.Context, *accountstore.Account, []byte, string) []byte {
	return nil
}
func (p *fakeProvider) MakeRequest(_ context.Context, _ string, acct *accountstore.Account, _ []byte, _ bool) (*provider.Response, error) {
	p.calls = append(p.calls, acct.ID)
	if e, ok := p.fail[acct.ID]; ok {
		delete(p.fail, acct.ID)
		return nil, e
	}
	return &provider.Response{StatusCode: 200, JSON: &common.ChatCompletionResponse{ID: "ok-" + acct.ID}}, nil
}

func newTestDispatcher(t *testing.T, p *fakeProvider, accounts []*accountstore.Account) *Dispatcher {
	t.Helper()
	repo := accountstore.NewMemoryRepository()
	for _, a := range accounts {
		if err := repo.Create(context.Background(), a); err != nil {
			t.Fatalf("seed account: %v", err)
		}
	}
	reg := registry.NewProviderRegistry()
	reg.Register(p.name, func() provider.Provider { return p })
	return New(reg, repo, ratelimit.NewRegistry())
}

func TestDispatchPicksOldestHealthyAccountRoundRobin(t *testing.T) {
	p := &fakeProvider{name: "antigravity", models: map[string]struct{}{"claude-opus-4-5": {}}}
	now := time.Now()
	accounts := []*accountstore.Account{
		{ID: "a-newer", UserID: "u1", Provider: "antigravity", IsActive: true, CreatedAt: now},
		{ID: "a-older", UserID: "u1", Provider: "antigravity", IsActive: true, CreatedAt: now.Add(-time.Hour)},
	}
	d := newTestDispatcher(t, p, accounts)

	resp, err := d.Dispatch(context.Background(), &Request{UserID: "u1", Model: "claude-opus-4-5"})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if resp.JSON.ID != "ok-a-older" {
		t.Fatalf("expected oldest account picked first, got %s", resp.JSON.ID)
	}
}

func TestDispatch429FailsOverToNextAccount(t *testing.T) {
	p := &fakeProvider{
		name:   "antigravity",
		models: map[string]struct{}{"claude-opus-4-5": {}},
		fail: map[string]*common.ProxyError{
			"a1": common.NewError(common.KindRateLimited, "rate limited").WithBody([]byte(`{}`)),
		},
	}
	now := time.Now()
	accounts := []*accountstore.Account{
		{ID: "a1", UserID: "u1", Provider: "antigravity", IsActive: true, CreatedAt: now.Add(-time.Hour)},
		{ID: "a2", UserID: "u1", Provider: "antigravity", IsActive: true, CreatedAt: now},
	}
	d := newTestDispatcher(t, p, accounts)

	resp, err := d.Dispatch(context.Background(), &Request{UserID: "u1", Model: "claude-opus-4-5"})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if resp.JSON.ID != "ok-a2" {
		t.Fatalf("expected failover to a2, got %s", resp.JSON.ID)
	}
	if !d.RateLimits.IsRateLimited("a1", ratelimit.ModelFamily("claude-opus-4-5")) {
		t.Fatal("expected a1 to be marked rate limited")
	}
}

func TestDispatchExplicitProviderPrefix(t *testing.T) {
	p := &fakeProvider{name: "codex", models: map[string]struct{}{"gpt-5.2": {}}}
	accounts := []*accountstore.Account{
		{ID: "a1", UserID: "u1", Provider: "codex", IsActive: true, CreatedAt: time.Now()},
	}
	d := newTestDispatcher(t, p, accounts)

	_, err := d.Dispatch(context.Background(), &Request{UserID: "u1", Model: "codex/gpt-5.2"})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(p.calls) != 1 {
		t.Fatalf("expected exactly one upstream call, got %d", len(p.calls))
	}
}

func TestDispatchNoProviderClaimsModelIsInvalidRequest(t *testing.T) {
	p := &fakeProvider{name: "codex", models: map[string]struct{}{"gpt-5.2": {}}}
	d := newTestDispatcher(t, p, nil)

	_, err := d.Dispatch(context.Background(), &Request{UserID: "u1", Model: "unknown-model"})
	pe, ok := err.(*common.ProxyError)
	if !ok || pe.Kind != common.KindInvalidRequest {
		t.Fatalf("expected KindInvalidRequest, got %v", err)
	}
}
